package service

import "fmt"

// Level is the scope a service is registered at.
type Level int

const (
	// LevelSystem registers the service machine-wide. Requires elevated
	// privileges; the service runs independent of any logged-in user.
	LevelSystem Level = iota

	// LevelUser registers the service for the calling user only. Not every
	// platform has a user-level concept.
	LevelUser
)

func (l Level) String() string {
	switch l {
	case LevelSystem:
		return "system"
	case LevelUser:
		return "user"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Status is the coarse running state reported by the native manager.
type Status int

const (
	StatusNotInstalled Status = iota
	StatusRunning
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusNotInstalled:
		return "not installed"
	case StatusRunning:
		return "running"
	case StatusStopped:
		return "stopped"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// EnvVar is one environment variable passed to the service process. The
// install request keeps variables as an ordered list because most artifact
// formats are line-oriented and order matters when reading them back by eye.
type EnvVar struct {
	Name  string
	Value string
}

// InstallRequest describes one service in platform-neutral terms. It is
// built by the caller per install call and not retained afterwards.
type InstallRequest struct {
	// Label addresses the service across all lifecycle calls.
	Label Label

	// Program is the path of the executable to run.
	Program string

	// Args are the program arguments, in order.
	Args []string

	// Contents, when non-empty, is written verbatim as the native artifact
	// and bypasses generation entirely.
	Contents string

	// Username runs the service as the named account when the platform
	// supports it.
	Username string

	// WorkingDirectory sets the process working directory.
	WorkingDirectory string

	// Environment is the ordered environment variable list.
	Environment []EnvVar

	// Autostart launches the service at boot (or login, for user-level
	// services). Independent of an explicit Start call.
	Autostart bool

	// Restart is the portable restart policy. A platform-specific override
	// on the manager's config takes precedence over it.
	Restart RestartPolicy
}

// Validate checks the request before any side effect happens.
func (r InstallRequest) Validate() error {
	if r.Label.IsZero() {
		return fmt.Errorf("%w: empty label", ErrInvalidLabel)
	}
	if r.Program == "" {
		return fmt.Errorf("install %s: program path is empty", r.Label)
	}
	for _, env := range r.Environment {
		if env.Name == "" {
			return fmt.Errorf("install %s: environment variable with empty name", r.Label)
		}
	}
	if err := r.Restart.Validate(); err != nil {
		return fmt.Errorf("install %s: %w", r.Label, err)
	}
	return nil
}

// Command returns the program followed by its arguments.
func (r InstallRequest) Command() []string {
	return append([]string{r.Program}, r.Args...)
}

// Manager is the uniform lifecycle contract every platform adapter
// implements. Install never starts the service; Start and Stop never touch
// the artifact. All operations are synchronous and block for the duration of
// the underlying command or filesystem call.
type Manager interface {
	// Available reports whether the native manager can be used on this
	// machine (control binary present, API reachable).
	Available() (bool, error)

	// Install validates the request, renders the native artifact and
	// registers it. Re-installing an existing label replaces the artifact
	// completely.
	Install(req InstallRequest) error

	// Uninstall stops the service best-effort, then removes the artifact
	// and deregisters it. Returns ErrNotFound if the service is not
	// installed.
	Uninstall(label Label) error

	// Start launches the service, clearing any install-time disabled state
	// the platform needs for install/start orthogonality.
	Start(label Label) error

	// Stop halts the service without touching the artifact.
	Stop(label Label) error

	// Status reports the native manager's view of the service.
	Status(label Label) (Status, error)

	// Level returns the current target level.
	Level() Level

	// SetLevel switches between system and user scope. Returns
	// ErrUnsupported for platform/level combinations that do not exist.
	SetLevel(level Level) error
}
