package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alessio/shellescape"

	"svcmgr/internal/logger"
	"svcmgr/internal/service"
)

const systemctlBin = "systemctl"

// SystemdConfig carries systemd-specific settings.
type SystemdConfig struct {
	// Restart, when non-empty, is written verbatim as the unit's Restart=
	// value and takes precedence over the request's portable restart
	// policy.
	Restart string

	// DirPath overrides the unit directory. Empty means the standard
	// location for the current level.
	DirPath string
}

// SystemdManager manages services through systemd unit files and systemctl.
type SystemdManager struct {
	user   bool
	config SystemdConfig
	run    runFunc
}

// NewSystemd returns a system-level systemd manager.
func NewSystemd() *SystemdManager {
	return NewSystemdWithConfig(SystemdConfig{})
}

// NewSystemdWithConfig returns a system-level systemd manager with the given
// settings.
func NewSystemdWithConfig(config SystemdConfig) *SystemdManager {
	return &SystemdManager{config: config, run: runCommand}
}

// Available reports whether systemctl is on the search path.
func (m *SystemdManager) Available() (bool, error) {
	if _, err := lookPath(systemctlBin); err != nil {
		return false, nil
	}
	return true, nil
}

// Install renders the unit file, registers it with a daemon-reload and, when
// autostart is requested, enables it. The service is not started.
func (m *SystemdManager) Install(req service.InstallRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	dir, err := m.dirPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create unit directory: %w", err)
	}

	unit := req.Contents
	if unit == "" {
		res, warnings := resolveSystemdRestart(m.config.Restart, req.Restart)
		logWarnings("systemd", req.Label, warnings)
		unit = renderUnit(req, res, m.user)
	}

	name := req.Label.Script()
	if err := writeFileAtomic(filepath.Join(dir, name+".service"), []byte(unit), 0o644); err != nil {
		return err
	}

	if err := run(m.run, systemctlBin, m.args("daemon-reload")...); err != nil {
		return err
	}
	if req.Autostart {
		if err := run(m.run, systemctlBin, m.args("enable", name+".service")...); err != nil {
			return err
		}
	}

	logger.WithComponent("systemd").Info().
		Str("service", req.Label.String()).
		Str("level", m.Level().String()).
		Msg("Installed unit")
	return nil
}

// Uninstall stops and disables the service best-effort, removes the unit
// file and reloads the daemon.
func (m *SystemdManager) Uninstall(label service.Label) error {
	dir, err := m.dirPath()
	if err != nil {
		return err
	}
	name := label.Script()
	unitPath := filepath.Join(dir, name+".service")
	if _, err := os.Stat(unitPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("uninstall %s: %w", label, service.ErrNotFound)
		}
		return fmt.Errorf("uninstall %s: %w", label, err)
	}

	// A failure to stop must not leave the unit file orphaned.
	if err := run(m.run, systemctlBin, m.args("stop", name+".service")...); err != nil {
		logger.WithComponent("systemd").Warn().
			Str("service", label.String()).Err(err).
			Msg("Stop before uninstall failed")
	}
	if err := run(m.run, systemctlBin, m.args("disable", name+".service")...); err != nil {
		logger.WithComponent("systemd").Warn().
			Str("service", label.String()).Err(err).
			Msg("Disable before uninstall failed")
	}

	if err := os.Remove(unitPath); err != nil {
		return fmt.Errorf("remove unit file: %w", err)
	}
	return run(m.run, systemctlBin, m.args("daemon-reload")...)
}

// Start launches the service.
func (m *SystemdManager) Start(label service.Label) error {
	return run(m.run, systemctlBin, m.args("start", label.Script()+".service")...)
}

// Stop halts the service without touching the unit file.
func (m *SystemdManager) Stop(label service.Label) error {
	return run(m.run, systemctlBin, m.args("stop", label.Script()+".service")...)
}

// Status reports the unit's active state.
func (m *SystemdManager) Status(label service.Label) (service.Status, error) {
	dir, err := m.dirPath()
	if err != nil {
		return service.StatusNotInstalled, err
	}
	unitPath := filepath.Join(dir, label.Script()+".service")
	if _, err := os.Stat(unitPath); os.IsNotExist(err) {
		return service.StatusNotInstalled, nil
	}

	args := m.args("is-active", label.Script()+".service")
	out, err := m.run(systemctlBin, args...)
	if err != nil {
		return service.StatusStopped, wrap(systemctlBin, args, out, err)
	}
	if strings.TrimSpace(string(out.stdout)) == "active" {
		return service.StatusRunning, nil
	}
	return service.StatusStopped, nil
}

// Level returns the current target level.
func (m *SystemdManager) Level() service.Level {
	if m.user {
		return service.LevelUser
	}
	return service.LevelSystem
}

// SetLevel switches between /etc/systemd/system and the per-user unit
// directory.
func (m *SystemdManager) SetLevel(level service.Level) error {
	m.user = level == service.LevelUser
	return nil
}

func (m *SystemdManager) dirPath() (string, error) {
	if m.config.DirPath != "" {
		return m.config.DirPath, nil
	}
	if m.user {
		cfgDir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("locate user config directory: %w", err)
		}
		return filepath.Join(cfgDir, "systemd", "user"), nil
	}
	return "/etc/systemd/system", nil
}

// args prepends --user for user-level invocations.
func (m *SystemdManager) args(cmd string, rest ...string) []string {
	out := make([]string, 0, len(rest)+2)
	if m.user {
		out = append(out, "--user")
	}
	out = append(out, cmd)
	return append(out, rest...)
}

// systemdRestart is the native restart configuration computed from the
// portable policy.
type systemdRestart struct {
	mode     string
	delay    time.Duration
	retries  int
	window   time.Duration
	verbatim bool
}

// resolveSystemdRestart maps the portable policy onto Restart=, RestartSec=,
// StartLimitBurst= and StartLimitIntervalSec=. systemd can express every
// portable variant, so no approximation warnings are produced; a non-empty
// override wins over the policy and is rendered verbatim.
func resolveSystemdRestart(override string, policy service.RestartPolicy) (systemdRestart, []string) {
	if override != "" {
		return systemdRestart{mode: override, verbatim: true}, nil
	}

	res := systemdRestart{
		delay:   policy.Delay,
		retries: policy.MaxRetries,
		window:  policy.ResetAfter,
	}
	switch policy.Kind {
	case service.RestartNever:
		res.mode = "no"
	case service.RestartAlways:
		res.mode = "always"
	case service.RestartOnFailure:
		res.mode = "on-failure"
	case service.RestartOnSuccess:
		res.mode = "on-success"
	}
	return res, nil
}

// renderUnit produces the unit file text. Environment lines keep the
// request's variable order.
func renderUnit(req service.InstallRequest, res systemdRestart, user bool) string {
	var b strings.Builder

	b.WriteString("[Unit]\n")
	fmt.Fprintf(&b, "Description=%s\n", req.Label.Script())
	if res.retries > 0 {
		// StartLimitBurst counts starts, not restarts: the initial
		// launch occupies one slot.
		fmt.Fprintf(&b, "StartLimitBurst=%d\n", res.retries+1)
	}
	if res.window > 0 {
		fmt.Fprintf(&b, "StartLimitIntervalSec=%s\n", formatSeconds(res.window))
	}

	b.WriteString("\n[Service]\n")
	fmt.Fprintf(&b, "ExecStart=%s\n", shellescape.QuoteCommand(req.Command()))
	fmt.Fprintf(&b, "Restart=%s\n", res.mode)
	if !res.verbatim && res.delay > 0 {
		fmt.Fprintf(&b, "RestartSec=%s\n", formatSeconds(res.delay))
	}
	if req.Username != "" {
		fmt.Fprintf(&b, "User=%s\n", req.Username)
	}
	if req.WorkingDirectory != "" {
		fmt.Fprintf(&b, "WorkingDirectory=%s\n", req.WorkingDirectory)
	}
	for _, env := range req.Environment {
		fmt.Fprintf(&b, "Environment=%q\n", env.Name+"="+env.Value)
	}

	b.WriteString("\n[Install]\n")
	if user {
		b.WriteString("WantedBy=default.target\n")
	} else {
		b.WriteString("WantedBy=multi-user.target\n")
	}

	return b.String()
}

// formatSeconds renders a duration the way unit files expect: plain seconds,
// fractional only when needed.
func formatSeconds(d time.Duration) string {
	secs := d.Seconds()
	if secs == float64(int64(secs)) {
		return fmt.Sprintf("%d", int64(secs))
	}
	return fmt.Sprintf("%g", secs)
}
