package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/beevik/etree"

	"svcmgr/internal/logger"
	"svcmgr/internal/service"
)

const winswBin = "winsw.exe"

// WinSwPathEnv names the environment variable that points at the WinSW
// executable when it is not on the search path.
const WinSwPathEnv = "WINSW_PATH"

// WinSwConfig carries WinSW-specific settings.
type WinSwConfig struct {
	// ExePath overrides the WinSW executable location. Empty means
	// WINSW_PATH, then the search path.
	ExePath string

	// DirPath overrides the base directory holding one subdirectory per
	// service. Empty means %ProgramData%\winsw.
	DirPath string

	// Priority, when non-empty, is written as the wrapped process
	// priority (for example "belownormal").
	Priority string

	// StopTimeout, when non-zero, bounds how long WinSW waits for the
	// process to exit on stop.
	StopTimeout time.Duration
}

// WinSwManager manages Windows services through WinSW, which wraps each
// service in an XML definition and relays lifecycle commands to the SCM.
type WinSwManager struct {
	config WinSwConfig
	run    runFunc
}

// NewWinSw returns a WinSW manager.
func NewWinSw() *WinSwManager {
	return NewWinSwWithConfig(WinSwConfig{})
}

// NewWinSwWithConfig returns a WinSW manager with the given settings.
func NewWinSwWithConfig(config WinSwConfig) *WinSwManager {
	return &WinSwManager{config: config, run: runCommand}
}

// Available reports whether the WinSW executable can be located.
func (m *WinSwManager) Available() (bool, error) {
	_, err := m.exePath()
	return err == nil, nil
}

// Install renders the XML definition into the service's own directory and
// registers it with WinSW. The service is not started.
func (m *WinSwManager) Install(req service.InstallRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	exe, err := m.exePath()
	if err != nil {
		return err
	}

	name := req.Label.Qualified()
	dir := filepath.Join(m.dirPath(), name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create service directory: %w", err)
	}

	var data []byte
	if req.Contents != "" {
		// WinSW rejects malformed definitions only at run time; catch
		// them before the artifact lands.
		probe := etree.NewDocument()
		if err := probe.ReadFromString(req.Contents); err != nil {
			return fmt.Errorf("invalid service definition: %w", err)
		}
		data = []byte(req.Contents)
	} else {
		res, warnings := resolveWinSwRestart(req.Restart)
		logWarnings("winsw", req.Label, warnings)
		data, err = renderWinSwXML(req, res, m.config)
		if err != nil {
			return err
		}
	}

	xmlPath := filepath.Join(dir, name+".xml")
	if err := writeFileAtomic(xmlPath, data, 0o644); err != nil {
		return err
	}
	if err := run(m.run, exe, "install", xmlPath); err != nil {
		return err
	}

	logger.WithComponent("winsw").Info().
		Str("service", name).
		Msg("Installed service definition")
	return nil
}

// Uninstall stops the service best-effort, deregisters it and removes its
// directory.
func (m *WinSwManager) Uninstall(label service.Label) error {
	exe, err := m.exePath()
	if err != nil {
		return err
	}

	name := label.Qualified()
	dir := filepath.Join(m.dirPath(), name)
	xmlPath := filepath.Join(dir, name+".xml")
	if _, err := os.Stat(xmlPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("uninstall %s: %w", label, service.ErrNotFound)
		}
		return fmt.Errorf("uninstall %s: %w", label, err)
	}

	if err := run(m.run, exe, "stop", xmlPath); err != nil {
		logger.WithComponent("winsw").Warn().
			Str("service", name).Err(err).
			Msg("Stop before uninstall failed")
	}
	if err := run(m.run, exe, "uninstall", xmlPath); err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove service directory: %w", err)
	}
	return nil
}

// Start launches the service.
func (m *WinSwManager) Start(label service.Label) error {
	return m.lifecycle(label, "start")
}

// Stop halts the service.
func (m *WinSwManager) Stop(label service.Label) error {
	return m.lifecycle(label, "stop")
}

// Status reports the service state from winsw status output.
func (m *WinSwManager) Status(label service.Label) (service.Status, error) {
	name := label.Qualified()
	xmlPath := filepath.Join(m.dirPath(), name, name+".xml")
	if _, err := os.Stat(xmlPath); os.IsNotExist(err) {
		return service.StatusNotInstalled, nil
	}

	exe, err := m.exePath()
	if err != nil {
		return service.StatusNotInstalled, err
	}
	out, err := m.run(exe, "status", xmlPath)
	if err != nil || !out.succeeded() {
		return service.StatusNotInstalled, wrap(exe, []string{"status", xmlPath}, out, err)
	}
	switch {
	case strings.Contains(string(out.stdout), "Started"),
		strings.Contains(string(out.stdout), "running"):
		return service.StatusRunning, nil
	default:
		return service.StatusStopped, nil
	}
}

// Level always reports the system level.
func (m *WinSwManager) Level() service.Level {
	return service.LevelSystem
}

// SetLevel rejects the user level.
func (m *WinSwManager) SetLevel(level service.Level) error {
	if level == service.LevelUser {
		return fmt.Errorf("winsw user services: %w", service.ErrUnsupported)
	}
	return nil
}

func (m *WinSwManager) lifecycle(label service.Label, verb string) error {
	exe, err := m.exePath()
	if err != nil {
		return err
	}
	name := label.Qualified()
	return run(m.run, exe, verb, filepath.Join(m.dirPath(), name, name+".xml"))
}

func (m *WinSwManager) exePath() (string, error) {
	if m.config.ExePath != "" {
		return m.config.ExePath, nil
	}
	if p := os.Getenv(WinSwPathEnv); p != "" {
		return p, nil
	}
	p, err := lookPath(winswBin)
	if err != nil {
		return "", fmt.Errorf("locate winsw executable: %w", err)
	}
	return p, nil
}

func (m *WinSwManager) dirPath() string {
	if m.config.DirPath != "" {
		return m.config.DirPath
	}
	base := os.Getenv("ProgramData")
	if base == "" {
		base = `C:\ProgramData`
	}
	return filepath.Join(base, "winsw")
}

// winswRestart is the onfailure configuration for the XML definition.
type winswRestart struct {
	restarts   int
	bounded    bool
	delay      string
	resetAfter string
}

// resolveWinSwRestart maps the portable policy onto onfailure elements.
// WinSW only reacts to failed exits, so always and on-success policies are
// widened with a warning.
func resolveWinSwRestart(policy service.RestartPolicy) (winswRestart, []string) {
	if policy.Kind == service.RestartNever {
		return winswRestart{}, nil
	}

	var warnings []string
	switch policy.Kind {
	case service.RestartAlways:
		warnings = append(warnings, "winsw restarts only after failure; clean exits will not restart")
	case service.RestartOnSuccess:
		warnings = append(warnings, "winsw cannot restart only on success; approximated with on-failure restarts")
	}

	res := winswRestart{
		restarts: policy.MaxRetries,
		bounded:  policy.MaxRetries > 0,
		delay:    fmt.Sprintf("%d sec", int(policy.Delay.Seconds())),
	}
	if !res.bounded {
		res.restarts = 1
	}
	if policy.ResetAfter > 0 {
		res.resetAfter = fmt.Sprintf("%d sec", int(policy.ResetAfter.Seconds()))
	}
	return res, warnings
}

// renderWinSwXML produces the service definition document.
func renderWinSwXML(req service.InstallRequest, res winswRestart, config WinSwConfig) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("service")
	name := req.Label.Qualified()
	root.CreateElement("id").SetText(name)
	root.CreateElement("name").SetText(name)
	root.CreateElement("description").SetText(name)
	root.CreateElement("executable").SetText(req.Program)
	if len(req.Args) > 0 {
		root.CreateElement("arguments").SetText(windowsCommandLine(req.Args))
	}
	if req.WorkingDirectory != "" {
		root.CreateElement("workingdirectory").SetText(req.WorkingDirectory)
	}
	if req.Username != "" {
		account := root.CreateElement("serviceaccount")
		account.CreateElement("username").SetText(req.Username)
	}
	for _, env := range req.Environment {
		el := root.CreateElement("env")
		el.CreateAttr("name", env.Name)
		el.CreateAttr("value", env.Value)
	}

	mode := "Manual"
	if req.Autostart {
		mode = "Automatic"
	}
	root.CreateElement("startmode").SetText(mode)

	for i := 0; i < res.restarts; i++ {
		el := root.CreateElement("onfailure")
		el.CreateAttr("action", "restart")
		el.CreateAttr("delay", res.delay)
	}
	if res.restarts == 0 || res.bounded {
		// The last action repeats, so a bounded budget needs an
		// explicit trailing no-op; a never policy states it outright.
		el := root.CreateElement("onfailure")
		el.CreateAttr("action", "none")
	}
	if res.resetAfter != "" {
		root.CreateElement("resetfailure").SetText(res.resetAfter)
	}

	if config.Priority != "" {
		root.CreateElement("priority").SetText(config.Priority)
	}
	if config.StopTimeout > 0 {
		root.CreateElement("stoptimeout").SetText(fmt.Sprintf("%d sec", int(config.StopTimeout.Seconds())))
	}

	doc.Indent(2)
	data, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("marshal service definition: %w", err)
	}
	return data, nil
}
