package service

import (
	"errors"
	"testing"
)

func TestParseLabel(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      Label
		qualified string
		script    string
	}{
		{
			name:      "three tokens",
			input:     "com.example.app123",
			want:      Label{Qualifier: "com", Organization: "example", Application: "app123"},
			qualified: "com.example.app123",
			script:    "example-app123",
		},
		{
			name:      "two tokens",
			input:     "example.app123",
			want:      Label{Organization: "example", Application: "app123"},
			qualified: "example.app123",
			script:    "example-app123",
		},
		{
			name:      "single token",
			input:     "app123",
			want:      Label{Application: "app123"},
			qualified: "app123",
			script:    "app123",
		},
		{
			name:      "extra tokens fold into application",
			input:     "com.example.group.app",
			want:      Label{Qualifier: "com", Organization: "example", Application: "group.app"},
			qualified: "com.example.group.app",
			script:    "example-group.app",
		},
		{
			name:      "hyphen and underscore",
			input:     "com.example.my-service_2",
			want:      Label{Qualifier: "com", Organization: "example", Application: "my-service_2"},
			qualified: "com.example.my-service_2",
			script:    "example-my-service_2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLabel(tt.input)
			if err != nil {
				t.Fatalf("ParseLabel(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseLabel(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
			if q := got.Qualified(); q != tt.qualified {
				t.Errorf("Qualified() = %q, want %q", q, tt.qualified)
			}
			if s := got.Script(); s != tt.script {
				t.Errorf("Script() = %q, want %q", s, tt.script)
			}
		})
	}
}

func TestParseLabel_Invalid(t *testing.T) {
	tests := []string{
		"",
		".",
		"com..app",
		"com.example.",
		".example.app",
		"com.exa mple.app",
		"com.example.app!",
		"-leading.example.app",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := ParseLabel(input)
			if err == nil {
				t.Fatalf("ParseLabel(%q) succeeded, want error", input)
			}
			if !errors.Is(err, ErrInvalidLabel) {
				t.Errorf("ParseLabel(%q) error = %v, want ErrInvalidLabel", input, err)
			}
		})
	}
}
