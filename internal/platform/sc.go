package platform

import (
	"errors"
	"fmt"
	"strings"

	"svcmgr/internal/logger"
	"svcmgr/internal/service"
)

const scBin = "sc.exe"

// Exit code reported by sc.exe when the named service does not exist.
const scErrServiceDoesNotExist = 1060

// ScConfig carries sc.exe-specific settings, passed through to sc create.
type ScConfig struct {
	// ServiceType is the type= value (for example "own"). Empty keeps
	// sc's default.
	ServiceType string

	// StartType is the start= value and takes precedence over the
	// request's autostart flag.
	StartType string

	// ErrorControl is the error= value.
	ErrorControl string
}

// ScManager manages Windows services by driving sc.exe. Registration lives
// in the service control manager's database, so there is no artifact file.
type ScManager struct {
	config ScConfig
	run    runFunc
}

// NewSc returns an sc.exe manager.
func NewSc() *ScManager {
	return NewScWithConfig(ScConfig{})
}

// NewScWithConfig returns an sc.exe manager with the given settings.
func NewScWithConfig(config ScConfig) *ScManager {
	return &ScManager{config: config, run: runCommand}
}

// Available reports whether sc.exe is on the search path.
func (m *ScManager) Available() (bool, error) {
	if _, err := lookPath(scBin); err != nil {
		return false, nil
	}
	return true, nil
}

// Install registers the service and configures its failure actions. The
// service is created stopped.
func (m *ScManager) Install(req service.InstallRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if req.Contents != "" {
		return fmt.Errorf("sc has no definition file: %w", service.ErrUnsupported)
	}

	name := req.Label.Qualified()
	log := logger.WithComponent("sc")
	if len(req.Environment) > 0 {
		log.Warn().Str("service", name).
			Msg("sc cannot set environment variables; ignored")
	}
	if req.WorkingDirectory != "" {
		log.Warn().Str("service", name).
			Msg("sc cannot set a working directory; ignored")
	}

	start := "demand"
	if req.Autostart {
		start = "auto"
	}
	if m.config.StartType != "" {
		start = m.config.StartType
	}

	// sc's option syntax requires the space after "binPath=" to live in
	// the next argument.
	args := []string{"create", name,
		"binPath=", windowsCommandLine(req.Command()),
		"start=", start,
	}
	if m.config.ServiceType != "" {
		args = append(args, "type=", m.config.ServiceType)
	}
	if m.config.ErrorControl != "" {
		args = append(args, "error=", m.config.ErrorControl)
	}
	if req.Username != "" {
		args = append(args, "obj=", req.Username)
	}
	if err := run(m.run, scBin, args...); err != nil {
		return err
	}

	res, warnings := resolveScRestart(req.Restart)
	logWarnings("sc", req.Label, warnings)
	if len(res.actions) > 0 {
		failureArgs := []string{"failure", name,
			"reset=", fmt.Sprintf("%d", res.resetSeconds),
			"actions=", strings.Join(res.actions, "/"),
		}
		if err := run(m.run, scBin, failureArgs...); err != nil {
			return err
		}
	}
	if res.failureFlag {
		if err := run(m.run, scBin, "failureflag", name, "1"); err != nil {
			return err
		}
	}

	log.Info().Str("service", name).Msg("Registered service")
	return nil
}

// Uninstall stops the service best-effort and deletes its registration.
func (m *ScManager) Uninstall(label service.Label) error {
	name := label.Qualified()

	if err := run(m.run, scBin, "stop", name); err != nil {
		logger.WithComponent("sc").Warn().
			Str("service", name).Err(err).
			Msg("Stop before delete failed")
	}

	err := run(m.run, scBin, "delete", name)
	if isScNotFound(err) {
		return fmt.Errorf("uninstall %s: %w", label, service.ErrNotFound)
	}
	return err
}

// Start launches the service.
func (m *ScManager) Start(label service.Label) error {
	return run(m.run, scBin, "start", label.Qualified())
}

// Stop halts the service.
func (m *ScManager) Stop(label service.Label) error {
	return run(m.run, scBin, "stop", label.Qualified())
}

// Status queries the service state.
func (m *ScManager) Status(label service.Label) (service.Status, error) {
	name := label.Qualified()
	out, err := m.run(scBin, "query", name)
	if err != nil {
		return service.StatusNotInstalled, wrap(scBin, []string{"query", name}, out, err)
	}
	if !out.succeeded() {
		if out.exitCode == scErrServiceDoesNotExist {
			return service.StatusNotInstalled, nil
		}
		return service.StatusNotInstalled, wrap(scBin, []string{"query", name}, out, nil)
	}
	if strings.Contains(string(out.stdout), "RUNNING") {
		return service.StatusRunning, nil
	}
	return service.StatusStopped, nil
}

// Level always reports the system level.
func (m *ScManager) Level() service.Level {
	return service.LevelSystem
}

// SetLevel rejects the user level.
func (m *ScManager) SetLevel(level service.Level) error {
	if level == service.LevelUser {
		return fmt.Errorf("sc user services: %w", service.ErrUnsupported)
	}
	return nil
}

// isScNotFound reports whether err carries sc's missing-service exit code.
func isScNotFound(err error) bool {
	var cmdErr *service.CommandError
	return errors.As(err, &cmdErr) && cmdErr.ExitCode == scErrServiceDoesNotExist
}

// scRestart is the failure-action configuration for sc failure / failureflag.
type scRestart struct {
	actions      []string
	resetSeconds int
	failureFlag  bool
}

// resolveScRestart maps the portable policy onto SCM failure actions. The
// SCM repeats the last action forever, so a bounded retry count ends the
// list with a none action; it only reacts to failures, so always and
// on-success policies set the failure flag and widen to crash-or-exit.
func resolveScRestart(policy service.RestartPolicy) (scRestart, []string) {
	if policy.Kind == service.RestartNever {
		return scRestart{}, nil
	}

	var warnings []string
	res := scRestart{resetSeconds: int(policy.ResetAfter.Seconds())}
	delayMs := policy.Delay.Milliseconds()

	switch policy.Kind {
	case service.RestartAlways:
		res.failureFlag = true
		warnings = append(warnings, "service control manager restarts only on failure; clean exits are flagged as failures to approximate always")
	case service.RestartOnSuccess:
		res.failureFlag = true
		warnings = append(warnings, "service control manager cannot restart only on success; widened to any exit")
	}

	if policy.MaxRetries > 0 {
		for i := 0; i < policy.MaxRetries; i++ {
			res.actions = append(res.actions, fmt.Sprintf("restart/%d", delayMs))
		}
		// Terminal none action keeps the SCM from repeating the last
		// restart beyond the budget.
		res.actions = append(res.actions, "\"\"/0")
	} else {
		res.actions = append(res.actions, fmt.Sprintf("restart/%d", delayMs))
	}

	return res, warnings
}

// windowsCommandLine joins the program and its arguments into the single
// command line the service control manager hands to CreateProcess, quoting
// per the CommandLineToArgvW rules.
func windowsCommandLine(cmd []string) string {
	parts := make([]string, 0, len(cmd))
	for _, tok := range cmd {
		parts = append(parts, windowsArg(tok))
	}
	return strings.Join(parts, " ")
}

// windowsArg quotes a single token. Backslashes are literal except when they
// precede a double quote or the closing quote, where each one doubles.
func windowsArg(tok string) string {
	if tok == "" {
		return `""`
	}
	hasSpace := strings.ContainsAny(tok, " \t")
	if !hasSpace && !strings.ContainsAny(tok, `"\`) {
		return tok
	}
	if !strings.ContainsAny(tok, `"\`) {
		return `"` + tok + `"`
	}

	var b strings.Builder
	if hasSpace {
		b.WriteByte('"')
	}
	slashes := 0
	for i := 0; i < len(tok); i++ {
		c := tok[i]
		switch c {
		case '\\':
			slashes++
		case '"':
			for ; slashes > 0; slashes-- {
				b.WriteByte('\\')
			}
			b.WriteByte('\\')
		default:
			slashes = 0
		}
		b.WriteByte(c)
	}
	if hasSpace {
		for ; slashes > 0; slashes-- {
			b.WriteByte('\\')
		}
		b.WriteByte('"')
	}
	return b.String()
}
