package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"howett.net/plist"

	"svcmgr/internal/logger"
	"svcmgr/internal/service"
)

const launchctlBin = "launchctl"

// LaunchdConfig carries launchd-specific settings.
type LaunchdConfig struct {
	// KeepAlive, when set, is written verbatim and takes precedence over
	// the request's portable restart policy.
	KeepAlive *bool

	// DirPath overrides the plist directory. Empty means
	// /Library/LaunchDaemons or ~/Library/LaunchAgents depending on the
	// level.
	DirPath string
}

// LaunchdManager manages services through property lists and launchctl.
type LaunchdManager struct {
	user   bool
	config LaunchdConfig
	run    runFunc
	uid    int
}

// NewLaunchd returns a system-level launchd manager.
func NewLaunchd() *LaunchdManager {
	return NewLaunchdWithConfig(LaunchdConfig{})
}

// NewLaunchdWithConfig returns a system-level launchd manager with the given
// settings.
func NewLaunchdWithConfig(config LaunchdConfig) *LaunchdManager {
	return &LaunchdManager{config: config, run: runCommand, uid: os.Getuid()}
}

// Available reports whether launchctl is on the search path.
func (m *LaunchdManager) Available() (bool, error) {
	if _, err := lookPath(launchctlBin); err != nil {
		return false, nil
	}
	return true, nil
}

// launchdPlist is the serialized shape of a job definition. Field order is
// fixed so repeated installs produce identical artifacts.
type launchdPlist struct {
	Label                string            `plist:"Label"`
	ProgramArguments     []string          `plist:"ProgramArguments"`
	UserName             string            `plist:"UserName,omitempty"`
	WorkingDirectory     string            `plist:"WorkingDirectory,omitempty"`
	EnvironmentVariables map[string]string `plist:"EnvironmentVariables,omitempty"`
	RunAtLoad            bool              `plist:"RunAtLoad"`
	Disabled             bool              `plist:"Disabled,omitempty"`
	KeepAlive            interface{}       `plist:"KeepAlive,omitempty"`
}

// Install renders and writes the plist. launchd only reads plists when a job
// is bootstrapped, so nothing starts here.
func (m *LaunchdManager) Install(req service.InstallRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	dir, err := m.dirPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create plist directory: %w", err)
	}

	var data []byte
	if req.Contents != "" {
		data = []byte(req.Contents)
	} else {
		var keepAlive interface{}
		if m.config.KeepAlive != nil {
			keepAlive = *m.config.KeepAlive
		} else {
			var warnings []string
			keepAlive, warnings = resolveLaunchdRestart(req.Restart)
			logWarnings("launchd", req.Label, warnings)
		}

		job := launchdPlist{
			Label:            req.Label.Qualified(),
			ProgramArguments: req.Command(),
			UserName:         req.Username,
			WorkingDirectory: req.WorkingDirectory,
			RunAtLoad:        req.Autostart,
			KeepAlive:        keepAlive,
			// A keep-alive job would start as soon as launchd loads
			// the plist. Keeping it disabled until the first explicit
			// start preserves install/start separation; Start lifts
			// the override with launchctl enable.
			Disabled: keepAlive != nil && keepAlive != false,
		}
		if len(req.Environment) > 0 {
			job.EnvironmentVariables = make(map[string]string, len(req.Environment))
			for _, env := range req.Environment {
				job.EnvironmentVariables[env.Name] = env.Value
			}
		}
		data, err = plist.MarshalIndent(job, plist.XMLFormat, "\t")
		if err != nil {
			return fmt.Errorf("marshal plist: %w", err)
		}
	}

	path := filepath.Join(dir, req.Label.Qualified()+".plist")
	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return err
	}

	logger.WithComponent("launchd").Info().
		Str("service", req.Label.String()).
		Str("level", m.Level().String()).
		Msg("Installed plist")
	return nil
}

// Uninstall boots the job out best-effort and removes the plist.
func (m *LaunchdManager) Uninstall(label service.Label) error {
	dir, err := m.dirPath()
	if err != nil {
		return err
	}
	path := filepath.Join(dir, label.Qualified()+".plist")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("uninstall %s: %w", label, service.ErrNotFound)
		}
		return fmt.Errorf("uninstall %s: %w", label, err)
	}

	if err := run(m.run, launchctlBin, "bootout", m.target(label)); err != nil {
		logger.WithComponent("launchd").Warn().
			Str("service", label.String()).Err(err).
			Msg("Bootout before uninstall failed")
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove plist: %w", err)
	}
	return nil
}

// Start bootstraps the job into its domain and kicks it off. The enable and
// bootstrap steps are best-effort so starting an already-loaded job works.
func (m *LaunchdManager) Start(label service.Label) error {
	dir, err := m.dirPath()
	if err != nil {
		return err
	}
	path := filepath.Join(dir, label.Qualified()+".plist")

	if err := run(m.run, launchctlBin, "enable", m.target(label)); err != nil {
		logger.WithComponent("launchd").Debug().
			Str("service", label.String()).Err(err).
			Msg("Enable failed")
	}
	if err := run(m.run, launchctlBin, "bootstrap", m.domain(), path); err != nil {
		logger.WithComponent("launchd").Debug().
			Str("service", label.String()).Err(err).
			Msg("Bootstrap failed")
	}
	return run(m.run, launchctlBin, "kickstart", m.target(label))
}

// Stop boots the job out of its domain. The plist stays in place.
func (m *LaunchdManager) Stop(label service.Label) error {
	return run(m.run, launchctlBin, "bootout", m.target(label))
}

// Status inspects the loaded job. A plist on disk with no loaded job counts
// as stopped.
func (m *LaunchdManager) Status(label service.Label) (service.Status, error) {
	dir, err := m.dirPath()
	if err != nil {
		return service.StatusNotInstalled, err
	}
	path := filepath.Join(dir, label.Qualified()+".plist")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return service.StatusNotInstalled, nil
	}

	out, err := m.run(launchctlBin, "print", m.target(label))
	if err != nil {
		return service.StatusStopped, wrap(launchctlBin, []string{"print", m.target(label)}, out, err)
	}
	if !out.succeeded() {
		return service.StatusStopped, nil
	}
	if strings.Contains(string(out.stdout), "state = running") {
		return service.StatusRunning, nil
	}
	return service.StatusStopped, nil
}

// Level returns the current target level.
func (m *LaunchdManager) Level() service.Level {
	if m.user {
		return service.LevelUser
	}
	return service.LevelSystem
}

// SetLevel switches between the daemon and agent domains.
func (m *LaunchdManager) SetLevel(level service.Level) error {
	m.user = level == service.LevelUser
	return nil
}

func (m *LaunchdManager) dirPath() (string, error) {
	if m.config.DirPath != "" {
		return m.config.DirPath, nil
	}
	if m.user {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("locate home directory: %w", err)
		}
		return filepath.Join(home, "Library", "LaunchAgents"), nil
	}
	return filepath.Join("/Library", "LaunchDaemons"), nil
}

func (m *LaunchdManager) domain() string {
	if m.user {
		return fmt.Sprintf("gui/%d", m.uid)
	}
	return "system"
}

func (m *LaunchdManager) target(label service.Label) string {
	return m.domain() + "/" + label.Qualified()
}

// resolveLaunchdRestart maps the portable policy onto KeepAlive. launchd
// restarts jobs immediately and without an attempt budget, so delay,
// retry-cap and window settings are reported as lost.
func resolveLaunchdRestart(policy service.RestartPolicy) (interface{}, []string) {
	var warnings []string
	if policy.Delay > 0 {
		warnings = append(warnings, "launchd restarts immediately; restart delay ignored")
	}
	if policy.MaxRetries > 0 {
		warnings = append(warnings, "launchd keeps restarting without an attempt limit; max retries ignored")
	}
	if policy.ResetAfter > 0 {
		warnings = append(warnings, "launchd has no retry window; reset-after ignored")
	}

	switch policy.Kind {
	case service.RestartAlways:
		return true, warnings
	case service.RestartOnFailure:
		return map[string]bool{"SuccessfulExit": false}, warnings
	case service.RestartOnSuccess:
		return map[string]bool{"SuccessfulExit": true}, warnings
	default:
		return nil, nil
	}
}
