package platform

import (
	"fmt"
	"runtime"

	"svcmgr/internal/service"
)

// Config aggregates the per-adapter settings for managers that take any.
type Config struct {
	Systemd SystemdConfig
	Launchd LaunchdConfig
	OpenRC  OpenRCConfig
	Rcd     RcdConfig
	Sc      ScConfig
	WinSw   WinSwConfig
}

// New returns the manager for an explicitly chosen kind.
func New(kind service.Kind) (service.Manager, error) {
	return NewWithConfig(kind, Config{})
}

// NewWithConfig returns the manager for an explicitly chosen kind with the
// given adapter settings.
func NewWithConfig(kind service.Kind, config Config) (service.Manager, error) {
	switch kind {
	case service.KindSystemd:
		return NewSystemdWithConfig(config.Systemd), nil
	case service.KindLaunchd:
		return NewLaunchdWithConfig(config.Launchd), nil
	case service.KindOpenRC:
		return NewOpenRCWithConfig(config.OpenRC), nil
	case service.KindRcd:
		return NewRcdWithConfig(config.Rcd), nil
	case service.KindSc:
		return NewScWithConfig(config.Sc), nil
	case service.KindScm:
		return newScm()
	case service.KindWinSw:
		return NewWinSwWithConfig(config.WinSw), nil
	default:
		return nil, fmt.Errorf("manager kind %q: %w", kind, service.ErrUnsupported)
	}
}

// Detect returns the native manager for the running platform. On Linux,
// systemd is preferred and OpenRC is the fallback.
func Detect(config Config) (service.Manager, error) {
	return detectFor(runtime.GOOS, config)
}

func detectFor(goos string, config Config) (service.Manager, error) {
	switch goos {
	case "darwin":
		return NewLaunchdWithConfig(config.Launchd), nil
	case "windows":
		return NewScWithConfig(config.Sc), nil
	case "freebsd", "netbsd", "openbsd", "dragonfly":
		return NewRcdWithConfig(config.Rcd), nil
	case "linux":
		systemd := NewSystemdWithConfig(config.Systemd)
		if ok, _ := systemd.Available(); ok {
			return systemd, nil
		}
		openrc := NewOpenRCWithConfig(config.OpenRC)
		if ok, _ := openrc.Available(); ok {
			return openrc, nil
		}
		return nil, fmt.Errorf("no init system found: %w", service.ErrUnsupported)
	default:
		return nil, fmt.Errorf("platform %s: %w", goos, service.ErrUnsupported)
	}
}
