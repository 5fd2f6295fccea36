package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alessio/shellescape"

	"svcmgr/internal/logger"
	"svcmgr/internal/service"
)

const (
	rcServiceBin = "rc-service"
	rcUpdateBin  = "rc-update"
)

// OpenRCConfig carries OpenRC-specific settings.
type OpenRCConfig struct {
	// DirPath overrides the init script directory. Empty means
	// /etc/init.d.
	DirPath string
}

// OpenRCManager manages services through openrc-run scripts. OpenRC has no
// per-user service domain, so only the system level is supported.
type OpenRCManager struct {
	config OpenRCConfig
	run    runFunc
}

// NewOpenRC returns an OpenRC manager.
func NewOpenRC() *OpenRCManager {
	return NewOpenRCWithConfig(OpenRCConfig{})
}

// NewOpenRCWithConfig returns an OpenRC manager with the given settings.
func NewOpenRCWithConfig(config OpenRCConfig) *OpenRCManager {
	return &OpenRCManager{config: config, run: runCommand}
}

// Available reports whether rc-service is on the search path.
func (m *OpenRCManager) Available() (bool, error) {
	if _, err := lookPath(rcServiceBin); err != nil {
		return false, nil
	}
	return true, nil
}

// Install writes the init script and, when autostart is requested, adds the
// service to the default runlevel.
func (m *OpenRCManager) Install(req service.InstallRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	dir := m.dirPath()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create init directory: %w", err)
	}

	script := req.Contents
	if script == "" {
		res, warnings := resolveOpenRCRestart(req.Restart)
		logWarnings("openrc", req.Label, warnings)
		script = renderOpenRCScript(req, res)
	}

	name := req.Label.Script()
	if err := writeFileAtomic(filepath.Join(dir, name), []byte(script), 0o755); err != nil {
		return err
	}

	if req.Autostart {
		if err := run(m.run, rcUpdateBin, "add", name, "default"); err != nil {
			return err
		}
	}

	logger.WithComponent("openrc").Info().
		Str("service", req.Label.String()).
		Msg("Installed init script")
	return nil
}

// Uninstall stops the service and drops it from the runlevel best-effort,
// then removes the init script.
func (m *OpenRCManager) Uninstall(label service.Label) error {
	name := label.Script()
	path := filepath.Join(m.dirPath(), name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("uninstall %s: %w", label, service.ErrNotFound)
		}
		return fmt.Errorf("uninstall %s: %w", label, err)
	}

	if err := run(m.run, rcServiceBin, name, "stop"); err != nil {
		logger.WithComponent("openrc").Warn().
			Str("service", label.String()).Err(err).
			Msg("Stop before uninstall failed")
	}
	if err := run(m.run, rcUpdateBin, "del", name, "default"); err != nil {
		logger.WithComponent("openrc").Warn().
			Str("service", label.String()).Err(err).
			Msg("Runlevel removal failed")
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove init script: %w", err)
	}
	return nil
}

// Start launches the service.
func (m *OpenRCManager) Start(label service.Label) error {
	return run(m.run, rcServiceBin, label.Script(), "start")
}

// Stop halts the service.
func (m *OpenRCManager) Stop(label service.Label) error {
	return run(m.run, rcServiceBin, label.Script(), "stop")
}

// Status reports the service state via rc-service status, which exits
// non-zero for stopped services.
func (m *OpenRCManager) Status(label service.Label) (service.Status, error) {
	name := label.Script()
	if _, err := os.Stat(filepath.Join(m.dirPath(), name)); os.IsNotExist(err) {
		return service.StatusNotInstalled, nil
	}

	out, err := m.run(rcServiceBin, name, "status")
	if err != nil {
		return service.StatusStopped, wrap(rcServiceBin, []string{name, "status"}, out, err)
	}
	if out.succeeded() {
		return service.StatusRunning, nil
	}
	return service.StatusStopped, nil
}

// Level always reports the system level.
func (m *OpenRCManager) Level() service.Level {
	return service.LevelSystem
}

// SetLevel rejects the user level.
func (m *OpenRCManager) SetLevel(level service.Level) error {
	if level == service.LevelUser {
		return fmt.Errorf("openrc user services: %w", service.ErrUnsupported)
	}
	return nil
}

func (m *OpenRCManager) dirPath() string {
	if m.config.DirPath != "" {
		return m.config.DirPath
	}
	return "/etc/init.d"
}

// openrcRestart is the supervise-daemon respawn configuration. supervise is
// false for never-restart services, which run under plain start-stop-daemon.
type openrcRestart struct {
	supervise     bool
	respawnDelay  int
	respawnMax    int
	respawnPeriod int
}

// resolveOpenRCRestart maps the portable policy onto supervise-daemon
// respawn settings. supervise-daemon restarts on any exit, so policies that
// discriminate on exit status lose that condition.
func resolveOpenRCRestart(policy service.RestartPolicy) (openrcRestart, []string) {
	if policy.Kind == service.RestartNever {
		return openrcRestart{}, nil
	}

	var warnings []string
	switch policy.Kind {
	case service.RestartOnFailure:
		warnings = append(warnings, "supervise-daemon restarts on any exit; on-failure condition widened to always")
	case service.RestartOnSuccess:
		warnings = append(warnings, "supervise-daemon restarts on any exit; on-success condition widened to always")
	}

	return openrcRestart{
		supervise:     true,
		respawnDelay:  int(policy.Delay.Seconds()),
		respawnMax:    policy.MaxRetries,
		respawnPeriod: int(policy.ResetAfter.Seconds()),
	}, warnings
}

// renderOpenRCScript produces the openrc-run init script.
func renderOpenRCScript(req service.InstallRequest, res openrcRestart) string {
	var b strings.Builder

	b.WriteString("#!/sbin/openrc-run\n\n")
	for _, env := range req.Environment {
		fmt.Fprintf(&b, "export %s=%s\n", env.Name, shellescape.Quote(env.Value))
	}
	if len(req.Environment) > 0 {
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "name=%s\n", shellescape.Quote(req.Label.Script()))
	fmt.Fprintf(&b, "description=%s\n", shellescape.Quote(req.Label.Qualified()))
	fmt.Fprintf(&b, "command=%s\n", shellescape.Quote(req.Program))
	if len(req.Args) > 0 {
		fmt.Fprintf(&b, "command_args=%s\n", shellescape.Quote(shellescape.QuoteCommand(req.Args)))
	}
	if req.Username != "" {
		fmt.Fprintf(&b, "command_user=%s\n", shellescape.Quote(req.Username))
	}
	if req.WorkingDirectory != "" {
		fmt.Fprintf(&b, "directory=%s\n", shellescape.Quote(req.WorkingDirectory))
	}
	b.WriteString("pidfile=\"/run/${RC_SVCNAME}.pid\"\n")

	if res.supervise {
		b.WriteString("supervisor=\"supervise-daemon\"\n")
		if res.respawnDelay > 0 {
			fmt.Fprintf(&b, "respawn_delay=%d\n", res.respawnDelay)
		}
		if res.respawnMax > 0 {
			fmt.Fprintf(&b, "respawn_max=%d\n", res.respawnMax)
		}
		if res.respawnPeriod > 0 {
			fmt.Fprintf(&b, "respawn_period=%d\n", res.respawnPeriod)
		}
	} else {
		b.WriteString("command_background=true\n")
	}

	return b.String()
}
