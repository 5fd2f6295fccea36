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

func testRequest() service.InstallRequest {
	return service.InstallRequest{
		Label:   service.MustParseLabel("com.example.app"),
		Program: "/usr/bin/app",
		Args:    []string{"--port", "8080"},
	}
}

func TestSystemdManager_Install(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeCommand{}
	m := NewSystemdWithConfig(SystemdConfig{DirPath: dir})
	m.run = fake.run

	req := testRequest()
	req.Username = "svc"
	req.WorkingDirectory = "/var/lib/app"
	req.Environment = []service.EnvVar{{Name: "FOO", Value: "bar"}}
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

	data, err := os.ReadFile(filepath.Join(dir, "example-app.service"))
	if err != nil {
		t.Fatalf("unit file not written: %v", err)
	}
	want := `[Unit]
Description=example-app
StartLimitBurst=4
StartLimitIntervalSec=60

[Service]
ExecStart=/usr/bin/app --port 8080
Restart=on-failure
RestartSec=5
User=svc
WorkingDirectory=/var/lib/app
Environment="FOO=bar"

[Install]
WantedBy=multi-user.target
`
	if string(data) != want {
		t.Errorf("unit file = %q, want %q", data, want)
	}

	if !fake.calledWith("daemon-reload") {
		t.Error("daemon-reload not invoked")
	}
	if !fake.calledWith("enable example-app.service") {
		t.Error("enable not invoked for autostart install")
	}
	if fake.calledWith("start") {
		t.Errorf("install must not start the service, calls: %v", fake.calls)
	}
}

func TestSystemdManager_InstallNoAutostart(t *testing.T) {
	fake := &fakeCommand{}
	m := NewSystemdWithConfig(SystemdConfig{DirPath: t.TempDir()})
	m.run = fake.run

	if err := m.Install(testRequest()); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if fake.calledWith("enable") {
		t.Error("enable invoked without autostart")
	}
}

func TestSystemdManager_InstallReplaces(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeCommand{}
	m := NewSystemdWithConfig(SystemdConfig{DirPath: dir})
	m.run = fake.run

	req := testRequest()
	if err := m.Install(req); err != nil {
		t.Fatalf("first Install() error = %v", err)
	}
	req.Args = []string{"--port", "9090"}
	if err := m.Install(req); err != nil {
		t.Fatalf("second Install() error = %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "example-app.service"))
	if !strings.Contains(string(data), "--port 9090") {
		t.Errorf("reinstall did not replace the unit: %q", data)
	}
}

func TestSystemdManager_InstallVerbatimContents(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeCommand{}
	m := NewSystemdWithConfig(SystemdConfig{DirPath: dir})
	m.run = fake.run

	req := testRequest()
	req.Contents = "[Unit]\nDescription=custom\n"
	if err := m.Install(req); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "example-app.service"))
	if string(data) != req.Contents {
		t.Errorf("unit file = %q, want verbatim contents", data)
	}
}

func TestSystemdManager_Uninstall(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeCommand{}
	m := NewSystemdWithConfig(SystemdConfig{DirPath: dir})
	m.run = fake.run

	if err := m.Install(testRequest()); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	label := service.MustParseLabel("com.example.app")
	if err := m.Uninstall(label); err != nil {
		t.Fatalf("Uninstall() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "example-app.service")); !os.IsNotExist(err) {
		t.Error("unit file still present after uninstall")
	}
	if !fake.calledWith("stop example-app.service") {
		t.Error("stop not attempted before uninstall")
	}
	if !fake.calledWith("disable example-app.service") {
		t.Error("disable not attempted before uninstall")
	}
}

func TestSystemdManager_UninstallMissing(t *testing.T) {
	m := NewSystemdWithConfig(SystemdConfig{DirPath: t.TempDir()})
	m.run = (&fakeCommand{}).run

	err := m.Uninstall(service.MustParseLabel("com.example.ghost"))
	if !errors.Is(err, service.ErrNotFound) {
		t.Errorf("Uninstall() error = %v, want ErrNotFound", err)
	}
}

func TestSystemdManager_UninstallSurvivesStopFailure(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeCommand{stubs: []commandStub{
		{match: "stop", out: cmdOutput{exitCode: 1, stderr: []byte("not running")}},
	}}
	m := NewSystemdWithConfig(SystemdConfig{DirPath: dir})
	m.run = fake.run

	if err := m.Install(testRequest()); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if err := m.Uninstall(service.MustParseLabel("com.example.app")); err != nil {
		t.Fatalf("Uninstall() error = %v, want stop failure ignored", err)
	}
}

func TestSystemdManager_Status(t *testing.T) {
	dir := t.TempDir()
	m := NewSystemdWithConfig(SystemdConfig{DirPath: dir})
	label := service.MustParseLabel("com.example.app")

	m.run = (&fakeCommand{}).run
	status, err := m.Status(label)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status != service.StatusNotInstalled {
		t.Errorf("Status() = %v, want not-installed", status)
	}

	if err := m.Install(testRequest()); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	m.run = (&fakeCommand{stubs: []commandStub{
		{match: "is-active", out: cmdOutput{stdout: []byte("active\n")}},
	}}).run
	if status, _ = m.Status(label); status != service.StatusRunning {
		t.Errorf("Status() = %v, want running", status)
	}

	m.run = (&fakeCommand{stubs: []commandStub{
		{match: "is-active", out: cmdOutput{exitCode: 3, stdout: []byte("inactive\n")}},
	}}).run
	if status, _ = m.Status(label); status != service.StatusStopped {
		t.Errorf("Status() = %v, want stopped", status)
	}
}

func TestSystemdManager_UserLevel(t *testing.T) {
	fake := &fakeCommand{}
	m := NewSystemdWithConfig(SystemdConfig{DirPath: t.TempDir()})
	m.run = fake.run

	if err := m.SetLevel(service.LevelUser); err != nil {
		t.Fatalf("SetLevel() error = %v", err)
	}
	if m.Level() != service.LevelUser {
		t.Errorf("Level() = %v, want user", m.Level())
	}
	if err := m.Start(service.MustParseLabel("com.example.app")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !fake.calledWith("--user start example-app.service") {
		t.Errorf("user-level start missing --user, calls: %v", fake.calls)
	}
}

func TestResolveSystemdRestart(t *testing.T) {
	res, warnings := resolveSystemdRestart("", service.RestartPolicy{Kind: service.RestartAlways, Delay: 2 * time.Second})
	if res.mode != "always" || res.delay != 2*time.Second {
		t.Errorf("resolve always = %+v", res)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}

	res, _ = resolveSystemdRestart("", service.RestartPolicy{Kind: service.RestartNever})
	if res.mode != "no" {
		t.Errorf("never mode = %q, want no", res.mode)
	}

	res, _ = resolveSystemdRestart("on-abnormal", service.RestartPolicy{Kind: service.RestartAlways})
	if res.mode != "on-abnormal" || !res.verbatim {
		t.Errorf("override not applied verbatim: %+v", res)
	}
}

func TestRenderUnitDeterministic(t *testing.T) {
	req := testRequest()
	req.Environment = []service.EnvVar{{Name: "A", Value: "1"}, {Name: "B", Value: "2"}}
	res, _ := resolveSystemdRestart("", service.RestartPolicy{Kind: service.RestartOnFailure})

	first := renderUnit(req, res, false)
	for i := 0; i < 10; i++ {
		if got := renderUnit(req, res, false); got != first {
			t.Fatal("renderUnit output varies between calls")
		}
	}
	if !strings.Contains(first, "Environment=\"A=1\"\nEnvironment=\"B=2\"\n") {
		t.Errorf("environment lines out of order:\n%s", first)
	}
}
