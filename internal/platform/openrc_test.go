package platform

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"svcmgr/internal/service"
)

func TestOpenRCManager_Install(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeCommand{}
	m := NewOpenRCWithConfig(OpenRCConfig{DirPath: dir})
	m.run = fake.run

	req := testRequest()
	req.Autostart = true
	req.Restart = service.RestartPolicy{
		Kind:       service.RestartOnFailure,
		Delay:      5 * time.Second,
		MaxRetries: 3,
		ResetAfter: time.Minute,
	}
	if err := m.Install(req); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	path := filepath.Join(dir, "example-app")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("init script not written: %v", err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("script mode = %o, want 755", info.Mode().Perm())
	}

	data, _ := os.ReadFile(path)
	text := string(data)
	for _, want := range []string{
		"#!/sbin/openrc-run",
		"command=/usr/bin/app",
		"command_args='--port 8080'",
		"supervisor=\"supervise-daemon\"",
		"respawn_delay=5",
		"respawn_max=3",
		"respawn_period=60",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("script missing %q:\n%s", want, text)
		}
	}

	if !fake.calledWith("rc-update add example-app default") {
		t.Errorf("autostart install did not add runlevel, calls: %v", fake.calls)
	}
	if fake.calledWith("rc-service example-app start") {
		t.Error("install must not start the service")
	}
}

func TestOpenRCManager_InstallNeverRestart(t *testing.T) {
	dir := t.TempDir()
	m := NewOpenRCWithConfig(OpenRCConfig{DirPath: dir})
	m.run = (&fakeCommand{}).run

	if err := m.Install(testRequest()); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "example-app"))
	if strings.Contains(string(data), "supervise-daemon") {
		t.Errorf("never-restart script should not use a supervisor:\n%s", data)
	}
	if !strings.Contains(string(data), "command_background=true") {
		t.Errorf("never-restart script must background the command:\n%s", data)
	}
}

func TestOpenRCManager_Uninstall(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeCommand{}
	m := NewOpenRCWithConfig(OpenRCConfig{DirPath: dir})
	m.run = fake.run

	if err := m.Install(testRequest()); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if err := m.Uninstall(service.MustParseLabel("com.example.app")); err != nil {
		t.Fatalf("Uninstall() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "example-app")); !os.IsNotExist(err) {
		t.Error("init script still present after uninstall")
	}
	if !fake.calledWith("rc-service example-app stop") {
		t.Error("stop not attempted before uninstall")
	}
	if !fake.calledWith("rc-update del example-app default") {
		t.Error("runlevel removal not attempted")
	}

	err := m.Uninstall(service.MustParseLabel("com.example.app"))
	if !errors.Is(err, service.ErrNotFound) {
		t.Errorf("second Uninstall() error = %v, want ErrNotFound", err)
	}
}

func TestOpenRCManager_Status(t *testing.T) {
	dir := t.TempDir()
	m := NewOpenRCWithConfig(OpenRCConfig{DirPath: dir})
	label := service.MustParseLabel("com.example.app")

	m.run = (&fakeCommand{}).run
	if status, _ := m.Status(label); status != service.StatusNotInstalled {
		t.Errorf("Status() = %v, want not-installed", status)
	}

	if err := m.Install(testRequest()); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	m.run = (&fakeCommand{stubs: []commandStub{
		{match: "status", out: cmdOutput{stdout: []byte(" * status: started\n")}},
	}}).run
	if status, _ := m.Status(label); status != service.StatusRunning {
		t.Errorf("Status() = %v, want running", status)
	}

	m.run = (&fakeCommand{stubs: []commandStub{
		{match: "status", out: cmdOutput{exitCode: 3, stdout: []byte(" * status: stopped\n")}},
	}}).run
	if status, _ := m.Status(label); status != service.StatusStopped {
		t.Errorf("Status() = %v, want stopped", status)
	}
}

func TestOpenRCManager_UserLevelRejected(t *testing.T) {
	m := NewOpenRC()
	if err := m.SetLevel(service.LevelUser); !errors.Is(err, service.ErrUnsupported) {
		t.Errorf("SetLevel(user) error = %v, want ErrUnsupported", err)
	}
	if m.Level() != service.LevelSystem {
		t.Errorf("Level() = %v, want system", m.Level())
	}
}

func TestResolveOpenRCRestart(t *testing.T) {
	res, warnings := resolveOpenRCRestart(service.RestartPolicy{Kind: service.RestartNever})
	if res.supervise || warnings != nil {
		t.Errorf("never = (%+v, %v), want no supervision", res, warnings)
	}

	res, warnings = resolveOpenRCRestart(service.RestartPolicy{Kind: service.RestartAlways, Delay: 2 * time.Second})
	if !res.supervise || res.respawnDelay != 2 {
		t.Errorf("always = %+v", res)
	}
	if len(warnings) != 0 {
		t.Errorf("always warnings = %v, want none", warnings)
	}

	_, warnings = resolveOpenRCRestart(service.RestartPolicy{Kind: service.RestartOnFailure})
	if len(warnings) != 1 {
		t.Errorf("on-failure warnings = %v, want condition loss reported", warnings)
	}
	_, warnings = resolveOpenRCRestart(service.RestartPolicy{Kind: service.RestartOnSuccess})
	if len(warnings) != 1 {
		t.Errorf("on-success warnings = %v, want condition loss reported", warnings)
	}
}
