package platform

import (
	"errors"
	"strings"
	"testing"
	"time"

	"svcmgr/internal/service"
)

func TestScManager_Install(t *testing.T) {
	fake := &fakeCommand{}
	m := &ScManager{run: fake.run}

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

	if !fake.calledWith("create com.example.app binPath= /usr/bin/app --port 8080 start= auto") {
		t.Errorf("create not issued, calls: %v", fake.calls)
	}
	if !fake.calledWith("failure com.example.app reset= 60 actions= restart/5000/restart/5000/restart/5000/\"\"/0") {
		t.Errorf("failure actions not issued, calls: %v", fake.calls)
	}
	if fake.calledWith("sc.exe start") {
		t.Error("install must not start the service")
	}
	if fake.calledWith("failureflag") {
		t.Error("on-failure policy must not set the failure flag")
	}
}

func TestScManager_InstallAlwaysSetsFailureFlag(t *testing.T) {
	fake := &fakeCommand{}
	m := &ScManager{run: fake.run}

	req := testRequest()
	req.Restart = service.RestartPolicy{Kind: service.RestartAlways, Delay: time.Second}
	if err := m.Install(req); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if !fake.calledWith("failureflag com.example.app 1") {
		t.Errorf("failure flag not set for always policy, calls: %v", fake.calls)
	}
	if !fake.calledWith("actions= restart/1000") {
		t.Errorf("unbounded restart action missing, calls: %v", fake.calls)
	}
}

func TestScManager_InstallConfigOverrides(t *testing.T) {
	fake := &fakeCommand{}
	m := NewScWithConfig(ScConfig{ServiceType: "own", StartType: "delayed-auto", ErrorControl: "normal"})
	m.run = fake.run

	if err := m.Install(testRequest()); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if !fake.calledWith("start= delayed-auto") {
		t.Errorf("start type override not applied, calls: %v", fake.calls)
	}
	if !fake.calledWith("type= own") || !fake.calledWith("error= normal") {
		t.Errorf("type/error overrides not applied, calls: %v", fake.calls)
	}
}

func TestScManager_InstallRejectsContents(t *testing.T) {
	m := &ScManager{run: (&fakeCommand{}).run}
	req := testRequest()
	req.Contents = "<xml/>"
	if err := m.Install(req); !errors.Is(err, service.ErrUnsupported) {
		t.Errorf("Install() with contents error = %v, want ErrUnsupported", err)
	}
}

func TestScManager_UninstallMissing(t *testing.T) {
	fake := &fakeCommand{stubs: []commandStub{
		{match: "delete", out: cmdOutput{exitCode: 1060, stderr: []byte("The specified service does not exist")}},
	}}
	m := &ScManager{run: fake.run}

	err := m.Uninstall(service.MustParseLabel("com.example.ghost"))
	if !errors.Is(err, service.ErrNotFound) {
		t.Errorf("Uninstall() error = %v, want ErrNotFound", err)
	}
}

func TestScManager_UninstallSurvivesStopFailure(t *testing.T) {
	fake := &fakeCommand{stubs: []commandStub{
		{match: "stop", out: cmdOutput{exitCode: 1062, stderr: []byte("The service has not been started")}},
	}}
	m := &ScManager{run: fake.run}

	if err := m.Uninstall(service.MustParseLabel("com.example.app")); err != nil {
		t.Fatalf("Uninstall() error = %v, want stop failure ignored", err)
	}
	if !fake.calledWith("delete com.example.app") {
		t.Errorf("delete not issued, calls: %v", fake.calls)
	}
}

func TestScManager_Status(t *testing.T) {
	label := service.MustParseLabel("com.example.app")

	m := &ScManager{run: (&fakeCommand{stubs: []commandStub{
		{match: "query", out: cmdOutput{stdout: []byte("        STATE              : 4  RUNNING\n")}},
	}}).run}
	if status, _ := m.Status(label); status != service.StatusRunning {
		t.Errorf("Status() = %v, want running", status)
	}

	m = &ScManager{run: (&fakeCommand{stubs: []commandStub{
		{match: "query", out: cmdOutput{stdout: []byte("        STATE              : 1  STOPPED\n")}},
	}}).run}
	if status, _ := m.Status(label); status != service.StatusStopped {
		t.Errorf("Status() = %v, want stopped", status)
	}

	m = &ScManager{run: (&fakeCommand{stubs: []commandStub{
		{match: "query", out: cmdOutput{exitCode: 1060}},
	}}).run}
	if status, _ := m.Status(label); status != service.StatusNotInstalled {
		t.Errorf("Status() = %v, want not-installed", status)
	}
}

func TestResolveScRestart(t *testing.T) {
	res, warnings := resolveScRestart(service.RestartPolicy{Kind: service.RestartNever})
	if len(res.actions) != 0 || res.failureFlag || warnings != nil {
		t.Errorf("never = (%+v, %v), want nothing", res, warnings)
	}

	res, _ = resolveScRestart(service.RestartPolicy{
		Kind:       service.RestartOnFailure,
		Delay:      2 * time.Second,
		MaxRetries: 2,
	})
	want := []string{"restart/2000", "restart/2000", "\"\"/0"}
	if strings.Join(res.actions, "/") != strings.Join(want, "/") {
		t.Errorf("bounded actions = %v, want %v", res.actions, want)
	}

	res, warnings = resolveScRestart(service.RestartPolicy{Kind: service.RestartOnSuccess})
	if !res.failureFlag {
		t.Error("on-success must set the failure flag")
	}
	if len(warnings) != 1 {
		t.Errorf("on-success warnings = %v, want widening reported", warnings)
	}
}

func TestWindowsCommandLine(t *testing.T) {
	got := windowsCommandLine([]string{`C:\Program Files\app.exe`, "--flag", "two words"})
	want := `"C:\Program Files\app.exe" --flag "two words"`
	if got != want {
		t.Errorf("windowsCommandLine() = %q, want %q", got, want)
	}
}

func TestWindowsArg(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`C:\app\bin.exe`, `C:\app\bin.exe`},
		{"two words", `"two words"`},
		{`say "hi"`, `"say \"hi\""`},
		{`C:\Program Files\`, `"C:\Program Files\\"`},
		{`a\\"b`, `a\\\\\"b`},
		{"", `""`},
	}
	for _, tt := range tests {
		if got := windowsArg(tt.in); got != tt.want {
			t.Errorf("windowsArg(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestScManager_UserLevelRejected(t *testing.T) {
	m := NewSc()
	if err := m.SetLevel(service.LevelUser); !errors.Is(err, service.ErrUnsupported) {
		t.Errorf("SetLevel(user) error = %v, want ErrUnsupported", err)
	}
}
