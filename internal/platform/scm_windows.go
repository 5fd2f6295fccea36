//go:build windows

package platform

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"

	"svcmgr/internal/logger"
	"svcmgr/internal/service"
)

// ScmManager manages Windows services directly through the service control
// manager API instead of shelling out to sc.exe.
type ScmManager struct{}

// NewScm returns a service control manager backed manager.
func NewScm() *ScmManager {
	return &ScmManager{}
}

func newScm() (service.Manager, error) {
	return NewScm(), nil
}

// Available reports whether the service control manager accepts a
// connection, which requires elevation.
func (m *ScmManager) Available() (bool, error) {
	c, err := mgr.Connect()
	if err != nil {
		return false, nil
	}
	c.Disconnect()
	return true, nil
}

// Install registers the service, replacing an existing registration with the
// same name, and configures its recovery actions. The service is created
// stopped.
func (m *ScmManager) Install(req service.InstallRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if req.Contents != "" {
		return fmt.Errorf("service control manager has no definition file: %w", service.ErrUnsupported)
	}

	name := req.Label.Qualified()
	log := logger.WithComponent("scm")
	if len(req.Environment) > 0 {
		log.Warn().Str("service", name).
			Msg("service control manager cannot set environment variables; ignored")
	}
	if req.WorkingDirectory != "" {
		log.Warn().Str("service", name).
			Msg("service control manager cannot set a working directory; ignored")
	}

	c, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connect to service control manager: %w", err)
	}
	defer c.Disconnect()

	startType := uint32(mgr.StartManual)
	if req.Autostart {
		startType = mgr.StartAutomatic
	}
	config := mgr.Config{
		DisplayName:      name,
		StartType:        startType,
		ServiceStartName: req.Username,
	}

	s, err := c.OpenService(name)
	if err == nil {
		config.BinaryPathName = windowsCommandLine(req.Command())
		if err := s.UpdateConfig(config); err != nil {
			s.Close()
			return fmt.Errorf("update service %s: %w", name, err)
		}
	} else {
		s, err = c.CreateService(name, req.Program, config, req.Args...)
		if err != nil {
			return fmt.Errorf("create service %s: %w", name, err)
		}
	}
	defer s.Close()

	res, warnings := resolveScmRestart(req.Restart)
	logWarnings("scm", req.Label, warnings)
	if len(res.actions) > 0 {
		if err := s.SetRecoveryActions(res.actions, res.resetPeriod); err != nil {
			return fmt.Errorf("set recovery actions for %s: %w", name, err)
		}
	}
	if res.nonCrashFailures {
		if err := s.SetRecoveryActionsOnNonCrashFailures(true); err != nil {
			return fmt.Errorf("set non-crash recovery for %s: %w", name, err)
		}
	}

	log.Info().Str("service", name).Msg("Registered service")
	return nil
}

// Uninstall stops the service best-effort and deletes its registration.
func (m *ScmManager) Uninstall(label service.Label) error {
	c, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connect to service control manager: %w", err)
	}
	defer c.Disconnect()

	name := label.Qualified()
	s, err := c.OpenService(name)
	if err != nil {
		if errors.Is(err, windows.ERROR_SERVICE_DOES_NOT_EXIST) {
			return fmt.Errorf("uninstall %s: %w", label, service.ErrNotFound)
		}
		return fmt.Errorf("open service %s: %w", name, err)
	}
	defer s.Close()

	if _, err := s.Control(svc.Stop); err != nil {
		logger.WithComponent("scm").Warn().
			Str("service", name).Err(err).
			Msg("Stop before delete failed")
	}
	if err := s.Delete(); err != nil {
		return fmt.Errorf("delete service %s: %w", name, err)
	}
	return nil
}

// Start launches the service.
func (m *ScmManager) Start(label service.Label) error {
	return m.withService(label, func(s *mgr.Service) error {
		return s.Start()
	})
}

// Stop halts the service.
func (m *ScmManager) Stop(label service.Label) error {
	return m.withService(label, func(s *mgr.Service) error {
		_, err := s.Control(svc.Stop)
		return err
	})
}

// Status queries the service state.
func (m *ScmManager) Status(label service.Label) (service.Status, error) {
	c, err := mgr.Connect()
	if err != nil {
		return service.StatusNotInstalled, fmt.Errorf("connect to service control manager: %w", err)
	}
	defer c.Disconnect()

	s, err := c.OpenService(label.Qualified())
	if err != nil {
		if errors.Is(err, windows.ERROR_SERVICE_DOES_NOT_EXIST) {
			return service.StatusNotInstalled, nil
		}
		return service.StatusNotInstalled, fmt.Errorf("open service %s: %w", label.Qualified(), err)
	}
	defer s.Close()

	status, err := s.Query()
	if err != nil {
		return service.StatusStopped, fmt.Errorf("query service %s: %w", label.Qualified(), err)
	}
	if status.State == svc.Running {
		return service.StatusRunning, nil
	}
	return service.StatusStopped, nil
}

// Level always reports the system level.
func (m *ScmManager) Level() service.Level {
	return service.LevelSystem
}

// SetLevel rejects the user level.
func (m *ScmManager) SetLevel(level service.Level) error {
	if level == service.LevelUser {
		return fmt.Errorf("service control manager user services: %w", service.ErrUnsupported)
	}
	return nil
}

func (m *ScmManager) withService(label service.Label, fn func(*mgr.Service) error) error {
	c, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connect to service control manager: %w", err)
	}
	defer c.Disconnect()

	name := label.Qualified()
	s, err := c.OpenService(name)
	if err != nil {
		if errors.Is(err, windows.ERROR_SERVICE_DOES_NOT_EXIST) {
			return fmt.Errorf("service %s: %w", label, service.ErrNotFound)
		}
		return fmt.Errorf("open service %s: %w", name, err)
	}
	defer s.Close()
	return fn(s)
}

// scmRestart is the recovery-action configuration applied after
// registration.
type scmRestart struct {
	actions          []mgr.RecoveryAction
	resetPeriod      uint32
	nonCrashFailures bool
}

// resolveScmRestart maps the portable policy onto SCM recovery actions,
// mirroring the sc.exe translation: bounded budgets end with a no-op action
// and non-failure policies opt in to non-crash recovery.
func resolveScmRestart(policy service.RestartPolicy) (scmRestart, []string) {
	if policy.Kind == service.RestartNever {
		return scmRestart{}, nil
	}

	var warnings []string
	res := scmRestart{resetPeriod: uint32(policy.ResetAfter.Seconds())}

	switch policy.Kind {
	case service.RestartAlways:
		res.nonCrashFailures = true
		warnings = append(warnings, "service control manager restarts only on failure; clean exits are flagged as failures to approximate always")
	case service.RestartOnSuccess:
		res.nonCrashFailures = true
		warnings = append(warnings, "service control manager cannot restart only on success; widened to any exit")
	}

	restart := mgr.RecoveryAction{Type: mgr.ServiceRestart, Delay: policy.Delay}
	if policy.MaxRetries > 0 {
		for i := 0; i < policy.MaxRetries; i++ {
			res.actions = append(res.actions, restart)
		}
		res.actions = append(res.actions, mgr.RecoveryAction{Type: mgr.NoAction})
	} else {
		res.actions = append(res.actions, restart)
	}

	return res, warnings
}
