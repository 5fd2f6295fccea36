// Package service defines the portable service description shared by every
// platform manager: labels, levels, restart policies, install requests and
// the Manager interface itself.
package service

import (
	"fmt"
	"regexp"
	"strings"
)

// labelTokenPattern restricts each dot-separated token of a label.
var labelTokenPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Label identifies a service, e.g. `com.example.my-service`.
// A label is validated once by ParseLabel and immutable afterwards.
type Label struct {
	// Qualifier used by naming schemes like launchd, e.g. `com` or `org`.
	Qualifier string

	// Organization associated with the service, e.g. `example`.
	Organization string

	// Application name associated with the service, e.g. `my-service`.
	Application string
}

// ParseLabel parses a fully-qualified name in the form
// `{qualifier}.{organization}.{application}`. One- and two-token forms omit
// the leading parts; tokens beyond the first two fold into the application
// name. Every token must be non-empty and limited to letters, digits,
// hyphens and underscores.
func ParseLabel(s string) (Label, error) {
	if s == "" {
		return Label{}, fmt.Errorf("%w: empty label", ErrInvalidLabel)
	}

	tokens := strings.Split(s, ".")
	for _, tok := range tokens {
		if !labelTokenPattern.MatchString(tok) {
			return Label{}, fmt.Errorf("%w: bad token %q in %q", ErrInvalidLabel, tok, s)
		}
	}

	switch len(tokens) {
	case 1:
		return Label{Application: tokens[0]}, nil
	case 2:
		return Label{Organization: tokens[0], Application: tokens[1]}, nil
	default:
		return Label{
			Qualifier:    tokens[0],
			Organization: tokens[1],
			Application:  strings.Join(tokens[2:], "."),
		}, nil
	}
}

// MustParseLabel is ParseLabel for static labels; it panics on error.
func MustParseLabel(s string) Label {
	label, err := ParseLabel(s)
	if err != nil {
		panic(err)
	}
	return label
}

// Qualified returns the fully-qualified name
// `{qualifier}.{organization}.{application}`, used for launchd plists,
// Windows service names and WinSW descriptors.
func (l Label) Qualified() string {
	var b strings.Builder
	if l.Qualifier != "" {
		b.WriteString(l.Qualifier)
		b.WriteByte('.')
	}
	if l.Organization != "" {
		b.WriteString(l.Organization)
		b.WriteByte('.')
	}
	b.WriteString(l.Application)
	return b.String()
}

// Script returns the `{organization}-{application}` form used for unit file
// and init script names.
func (l Label) Script() string {
	if l.Organization == "" {
		return l.Application
	}
	return l.Organization + "-" + l.Application
}

// IsZero reports whether the label is unset.
func (l Label) IsZero() bool {
	return l == Label{}
}

func (l Label) String() string {
	return l.Qualified()
}
