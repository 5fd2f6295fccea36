package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidLabel indicates a malformed service label.
	ErrInvalidLabel = errors.New("invalid service label")

	// ErrUnsupported indicates the operation or level is not supported on
	// this platform.
	ErrUnsupported = errors.New("unsupported on this platform")

	// ErrNotFound indicates the service is not installed.
	ErrNotFound = errors.New("service not found")
)

// CommandError reports a native service-manager command that could not be
// run or exited non-zero. It carries the exit status and whatever the
// command printed.
type CommandError struct {
	Name     string
	Args     []string
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Output)
	if msg == "" {
		msg = "no output"
	}
	return fmt.Sprintf("%s %s: exit code %d: %s",
		e.Name, strings.Join(e.Args, " "), e.ExitCode, msg)
}
