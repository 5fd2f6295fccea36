package service

import (
	"fmt"
	"time"
)

// RestartKind enumerates the portable restart policy variants.
type RestartKind int

const (
	// RestartNever leaves the process down after any exit.
	RestartNever RestartKind = iota

	// RestartAlways relaunches the process after any exit.
	RestartAlways

	// RestartOnFailure relaunches the process only after a non-zero exit.
	RestartOnFailure

	// RestartOnSuccess relaunches the process only after a zero exit.
	RestartOnSuccess
)

func (k RestartKind) String() string {
	switch k {
	case RestartNever:
		return "never"
	case RestartAlways:
		return "always"
	case RestartOnFailure:
		return "on-failure"
	case RestartOnSuccess:
		return "on-success"
	default:
		return fmt.Sprintf("restart-kind(%d)", int(k))
	}
}

// ParseRestartKind parses the textual policy names used in definition files.
func ParseRestartKind(s string) (RestartKind, error) {
	switch s {
	case "", "never":
		return RestartNever, nil
	case "always":
		return RestartAlways, nil
	case "on-failure":
		return RestartOnFailure, nil
	case "on-success":
		return RestartOnSuccess, nil
	default:
		return RestartNever, fmt.Errorf("unknown restart policy %q", s)
	}
}

// RestartPolicy is the portable description of exit-triggered relaunch
// behavior. Delay applies to Always, OnFailure and OnSuccess; MaxRetries and
// ResetAfter apply to OnFailure only. Zero values mean "platform default" /
// "unbounded" / "no reset window".
type RestartPolicy struct {
	Kind       RestartKind
	Delay      time.Duration
	MaxRetries int
	ResetAfter time.Duration
}

// Validate rejects negative fields and fields that have no meaning for the
// policy's kind, before any adapter touches the filesystem.
func (p RestartPolicy) Validate() error {
	if p.Delay < 0 {
		return fmt.Errorf("restart policy: negative delay %v", p.Delay)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("restart policy: negative max retries %d", p.MaxRetries)
	}
	if p.ResetAfter < 0 {
		return fmt.Errorf("restart policy: negative reset window %v", p.ResetAfter)
	}
	if p.Kind != RestartOnFailure {
		if p.MaxRetries != 0 {
			return fmt.Errorf("restart policy: max retries is only valid for on-failure, not %s", p.Kind)
		}
		if p.ResetAfter != 0 {
			return fmt.Errorf("restart policy: reset window is only valid for on-failure, not %s", p.Kind)
		}
	}
	if p.Kind == RestartNever && p.Delay != 0 {
		return fmt.Errorf("restart policy: delay has no meaning for %s", p.Kind)
	}
	return nil
}
