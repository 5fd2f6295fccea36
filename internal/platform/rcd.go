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
	serviceBin = "service"
	sysrcBin   = "sysrc"
)

// RcdConfig carries FreeBSD rc.d-specific settings.
type RcdConfig struct {
	// DirPath overrides the rc.d script directory. Empty means
	// /usr/local/etc/rc.d.
	DirPath string
}

// RcdManager manages services through FreeBSD rc.d scripts. Processes run
// under daemon(8); there is no per-user domain.
type RcdManager struct {
	config RcdConfig
	run    runFunc
}

// NewRcd returns an rc.d manager.
func NewRcd() *RcdManager {
	return NewRcdWithConfig(RcdConfig{})
}

// NewRcdWithConfig returns an rc.d manager with the given settings.
func NewRcdWithConfig(config RcdConfig) *RcdManager {
	return &RcdManager{config: config, run: runCommand}
}

// Available reports whether the service command is on the search path.
func (m *RcdManager) Available() (bool, error) {
	if _, err := lookPath(serviceBin); err != nil {
		return false, nil
	}
	return true, nil
}

// Install writes the rc.d script and, when autostart is requested, flips the
// rcvar on through sysrc. rc.d has no supervisor, so any restart policy
// other than never is reported as lost.
func (m *RcdManager) Install(req service.InstallRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	if req.Restart.Kind != service.RestartNever {
		logWarnings("rcd", req.Label, []string{
			"rc.d does not supervise processes; restart policy ignored",
		})
	}

	dir := m.dirPath()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create rc.d directory: %w", err)
	}

	script := req.Contents
	if script == "" {
		script = renderRcdScript(req)
	}

	name := req.Label.Script()
	if err := writeFileAtomic(filepath.Join(dir, name), []byte(script), 0o555); err != nil {
		return err
	}

	if req.Autostart {
		if err := run(m.run, sysrcBin, rcvarName(name)+"=YES"); err != nil {
			return err
		}
	}

	logger.WithComponent("rcd").Info().
		Str("service", req.Label.String()).
		Msg("Installed rc.d script")
	return nil
}

// Uninstall stops the service and clears its rcvar best-effort, then removes
// the script.
func (m *RcdManager) Uninstall(label service.Label) error {
	name := label.Script()
	path := filepath.Join(m.dirPath(), name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("uninstall %s: %w", label, service.ErrNotFound)
		}
		return fmt.Errorf("uninstall %s: %w", label, err)
	}

	if err := run(m.run, serviceBin, name, "onestop"); err != nil {
		logger.WithComponent("rcd").Warn().
			Str("service", label.String()).Err(err).
			Msg("Stop before uninstall failed")
	}
	if err := run(m.run, sysrcBin, "-x", rcvarName(name)); err != nil {
		logger.WithComponent("rcd").Warn().
			Str("service", label.String()).Err(err).
			Msg("Clearing rcvar failed")
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove rc.d script: %w", err)
	}
	return nil
}

// Start launches the service regardless of its rcvar.
func (m *RcdManager) Start(label service.Label) error {
	return run(m.run, serviceBin, label.Script(), "onestart")
}

// Stop halts the service regardless of its rcvar.
func (m *RcdManager) Stop(label service.Label) error {
	return run(m.run, serviceBin, label.Script(), "onestop")
}

// Status reports the service state via onestatus, which exits non-zero for
// stopped services.
func (m *RcdManager) Status(label service.Label) (service.Status, error) {
	name := label.Script()
	if _, err := os.Stat(filepath.Join(m.dirPath(), name)); os.IsNotExist(err) {
		return service.StatusNotInstalled, nil
	}

	out, err := m.run(serviceBin, name, "onestatus")
	if err != nil {
		return service.StatusStopped, wrap(serviceBin, []string{name, "onestatus"}, out, err)
	}
	if out.succeeded() {
		return service.StatusRunning, nil
	}
	return service.StatusStopped, nil
}

// Level always reports the system level.
func (m *RcdManager) Level() service.Level {
	return service.LevelSystem
}

// SetLevel rejects the user level.
func (m *RcdManager) SetLevel(level service.Level) error {
	if level == service.LevelUser {
		return fmt.Errorf("rc.d user services: %w", service.ErrUnsupported)
	}
	return nil
}

func (m *RcdManager) dirPath() string {
	if m.config.DirPath != "" {
		return m.config.DirPath
	}
	return "/usr/local/etc/rc.d"
}

// rcvarName derives the knob name from the script name. rc.conf variables
// cannot contain hyphens.
func rcvarName(name string) string {
	return strings.ReplaceAll(name, "-", "_") + "_enable"
}

// renderRcdScript produces the rc.d script. The process runs detached under
// daemon(8) with a pidfile so rc.subr can track it.
func renderRcdScript(req service.InstallRequest) string {
	name := req.Label.Script()
	varName := strings.ReplaceAll(name, "-", "_")

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("#\n")
	fmt.Fprintf(&b, "# PROVIDE: %s\n", name)
	b.WriteString("# REQUIRE: LOGIN FILESYSTEMS\n")
	b.WriteString("# KEYWORD: shutdown\n\n")
	b.WriteString(". /etc/rc.subr\n\n")

	for _, env := range req.Environment {
		fmt.Fprintf(&b, "export %s=%s\n", env.Name, shellescape.Quote(env.Value))
	}
	if len(req.Environment) > 0 {
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "name=%s\n", shellescape.Quote(varName))
	fmt.Fprintf(&b, "rcvar=%s\n", shellescape.Quote(varName+"_enable"))
	fmt.Fprintf(&b, "desc=%s\n", shellescape.Quote(req.Label.Qualified()))
	b.WriteString("\nload_rc_config $name\n")
	fmt.Fprintf(&b, ": ${%s_enable:=\"NO\"}\n\n", varName)

	fmt.Fprintf(&b, "pidfile=\"/var/run/%s.pid\"\n", varName)
	fmt.Fprintf(&b, "procname=%s\n", shellescape.Quote(req.Program))
	if req.Username != "" {
		fmt.Fprintf(&b, "%s_user=%s\n", varName, shellescape.Quote(req.Username))
	}
	if req.WorkingDirectory != "" {
		fmt.Fprintf(&b, "%s_chdir=%s\n", varName, shellescape.Quote(req.WorkingDirectory))
	}
	b.WriteString("command=\"/usr/sbin/daemon\"\n")
	fmt.Fprintf(&b, "command_args=\"-c -S -T %s -p ${pidfile} %s\"\n",
		varName, shellescape.QuoteCommand(req.Command()))
	b.WriteString("\nrun_rc_command \"$1\"\n")

	return b.String()
}
