package service

import "fmt"

// Kind names a concrete service-manager implementation.
type Kind string

const (
	KindSystemd Kind = "systemd"
	KindLaunchd Kind = "launchd"
	KindOpenRC  Kind = "openrc"
	KindRcd     Kind = "rcd"
	KindSc      Kind = "sc"
	KindScm     Kind = "scm"
	KindWinSw   Kind = "winsw"
)

// Kinds lists every known manager kind.
func Kinds() []Kind {
	return []Kind{KindSystemd, KindLaunchd, KindOpenRC, KindRcd, KindSc, KindScm, KindWinSw}
}

// ParseKind parses a manager kind name as used by the -manager flag and
// definition files.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if s == string(k) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown service manager kind %q", s)
}
