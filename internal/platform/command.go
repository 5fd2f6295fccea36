// Package platform contains the per-platform service managers and the
// native-manager selection logic. Each manager translates a portable
// install request into the platform's artifact and control commands.
package platform

import (
	"bytes"
	"errors"
	"os/exec"
	"strings"

	"svcmgr/internal/service"
)

// lookPath is swapped in tests that exercise platform detection.
var lookPath = exec.LookPath

// cmdOutput is the captured result of one native command invocation.
type cmdOutput struct {
	exitCode int
	stdout   []byte
	stderr   []byte
}

// runFunc executes a native tool and captures its streams. Managers hold a
// runFunc so tests can record invocations instead of shelling out. A non-nil
// error is returned only when the command could not be run at all; a
// non-zero exit is reported through exitCode.
type runFunc func(name string, args ...string) (cmdOutput, error)

func runCommand(name string, args ...string) (cmdOutput, error) {
	cmd := exec.Command(name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = nil
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := cmdOutput{stdout: stdout.Bytes(), stderr: stderr.Bytes()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.exitCode = exitErr.ExitCode()
			return out, nil
		}
		return out, err
	}
	return out, nil
}

// message picks the most useful stream for error reporting: stderr, then
// stdout, then a placeholder.
func (o cmdOutput) message() string {
	msg := strings.TrimSpace(string(o.stderr))
	if msg == "" {
		msg = strings.TrimSpace(string(o.stdout))
	}
	return msg
}

func (o cmdOutput) succeeded() bool {
	return o.exitCode == 0
}

// wrap converts a command invocation into an error when it failed. err is
// the transport-level failure from the runFunc (binary missing and the
// like), out the captured result otherwise.
func wrap(name string, args []string, out cmdOutput, err error) error {
	if err != nil {
		return &service.CommandError{Name: name, Args: args, ExitCode: -1, Output: err.Error()}
	}
	if out.succeeded() {
		return nil
	}
	return &service.CommandError{Name: name, Args: args, ExitCode: out.exitCode, Output: out.message()}
}

// run executes and wraps in one step for callers that only care about
// success.
func run(r runFunc, name string, args ...string) error {
	out, err := r(name, args...)
	return wrap(name, args, out, err)
}
