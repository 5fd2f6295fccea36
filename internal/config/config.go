// Package config provides configuration management for the service manager
// CLI: the manager selection, adapter overrides and the declarative service
// definitions applied by the apply and watch verbs.
package config

import (
	"fmt"
	"time"

	"svcmgr/internal/logger"
	"svcmgr/internal/service"
)

// Config is the root configuration structure.
type Config struct {
	// Manager picks the adapter by kind. Empty means platform detection.
	Manager string `json:"Manager"`

	// Level is "system" or "user".
	Level string `json:"Level"`

	Logging  logger.Config   `json:"Logging"`
	Adapters AdaptersConfig  `json:"Adapters"`
	Services []ServiceConfig `json:"Services"`
}

// AdaptersConfig carries per-adapter overrides.
type AdaptersConfig struct {
	Systemd SystemdConfig `json:"Systemd"`
	Launchd LaunchdConfig `json:"Launchd"`
	OpenRC  OpenRCConfig  `json:"OpenRC"`
	Rcd     RcdConfig     `json:"Rcd"`
	Sc      ScConfig      `json:"Sc"`
	WinSw   WinSwConfig   `json:"WinSw"`
}

// SystemdConfig mirrors the systemd adapter settings.
type SystemdConfig struct {
	Restart string `json:"Restart"`
	DirPath string `json:"DirPath"`
}

// LaunchdConfig mirrors the launchd adapter settings.
type LaunchdConfig struct {
	DirPath string `json:"DirPath"`
}

// OpenRCConfig mirrors the OpenRC adapter settings.
type OpenRCConfig struct {
	DirPath string `json:"DirPath"`
}

// RcdConfig mirrors the rc.d adapter settings.
type RcdConfig struct {
	DirPath string `json:"DirPath"`
}

// ScConfig mirrors the sc.exe adapter settings.
type ScConfig struct {
	ServiceType  string `json:"ServiceType"`
	StartType    string `json:"StartType"`
	ErrorControl string `json:"ErrorControl"`
}

// WinSwConfig mirrors the WinSW adapter settings.
type WinSwConfig struct {
	ExePath string `json:"ExePath"`
	DirPath string `json:"DirPath"`
}

// ServiceConfig is one declarative service definition.
type ServiceConfig struct {
	Label            string        `json:"Label"`
	Program          string        `json:"Program"`
	Args             []string      `json:"Args"`
	User             string        `json:"User"`
	WorkingDirectory string        `json:"WorkingDirectory"`
	Environment      []EnvEntry    `json:"Environment"`
	Contents         string        `json:"Contents"`
	Autostart        bool          `json:"Autostart"`
	Restart          RestartConfig `json:"Restart"`
}

// EnvEntry is one environment variable. A list keeps the order stable in
// rendered artifacts.
type EnvEntry struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

// RestartConfig is the portable restart policy of one service.
type RestartConfig struct {
	Policy     string        `json:"Policy"`
	Delay      time.Duration `json:"Delay"`
	MaxRetries int           `json:"MaxRetries"`
	ResetAfter time.Duration `json:"ResetAfter"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Level:   "system",
		Logging: logger.DefaultConfig(),
	}
}

// Merge applies non-zero values from other to this config. Service
// definitions are replaced wholesale when other carries any.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Manager != "" {
		c.Manager = other.Manager
	}
	if other.Level != "" {
		c.Level = other.Level
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.FilePath != "" {
		c.Logging.FilePath = other.Logging.FilePath
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxBackups != 0 {
		c.Logging.MaxBackups = other.Logging.MaxBackups
	}
	if other.Logging.MaxAgeDays != 0 {
		c.Logging.MaxAgeDays = other.Logging.MaxAgeDays
	}
	c.Logging.Compress = other.Logging.Compress
	c.Logging.Console = other.Logging.Console

	if other.Adapters.Systemd.Restart != "" {
		c.Adapters.Systemd.Restart = other.Adapters.Systemd.Restart
	}
	if other.Adapters.Systemd.DirPath != "" {
		c.Adapters.Systemd.DirPath = other.Adapters.Systemd.DirPath
	}
	if other.Adapters.Launchd.DirPath != "" {
		c.Adapters.Launchd.DirPath = other.Adapters.Launchd.DirPath
	}
	if other.Adapters.OpenRC.DirPath != "" {
		c.Adapters.OpenRC.DirPath = other.Adapters.OpenRC.DirPath
	}
	if other.Adapters.Rcd.DirPath != "" {
		c.Adapters.Rcd.DirPath = other.Adapters.Rcd.DirPath
	}
	if other.Adapters.Sc.ServiceType != "" {
		c.Adapters.Sc.ServiceType = other.Adapters.Sc.ServiceType
	}
	if other.Adapters.Sc.StartType != "" {
		c.Adapters.Sc.StartType = other.Adapters.Sc.StartType
	}
	if other.Adapters.Sc.ErrorControl != "" {
		c.Adapters.Sc.ErrorControl = other.Adapters.Sc.ErrorControl
	}
	if other.Adapters.WinSw.ExePath != "" {
		c.Adapters.WinSw.ExePath = other.Adapters.WinSw.ExePath
	}
	if other.Adapters.WinSw.DirPath != "" {
		c.Adapters.WinSw.DirPath = other.Adapters.WinSw.DirPath
	}

	if len(other.Services) > 0 {
		c.Services = other.Services
	}
}

// ParseLevel converts the configured level string.
func (c *Config) ParseLevel() (service.Level, error) {
	switch c.Level {
	case "", "system":
		return service.LevelSystem, nil
	case "user":
		return service.LevelUser, nil
	default:
		return service.LevelSystem, fmt.Errorf("unknown level %q", c.Level)
	}
}

// Request converts one service definition into an install request.
func (sc ServiceConfig) Request() (service.InstallRequest, error) {
	label, err := service.ParseLabel(sc.Label)
	if err != nil {
		return service.InstallRequest{}, err
	}
	kind, err := service.ParseRestartKind(sc.Restart.Policy)
	if err != nil {
		return service.InstallRequest{}, fmt.Errorf("service %s: %w", sc.Label, err)
	}

	req := service.InstallRequest{
		Label:            label,
		Program:          sc.Program,
		Args:             sc.Args,
		Contents:         sc.Contents,
		Username:         sc.User,
		WorkingDirectory: sc.WorkingDirectory,
		Autostart:        sc.Autostart,
		Restart: service.RestartPolicy{
			Kind:       kind,
			Delay:      sc.Restart.Delay,
			MaxRetries: sc.Restart.MaxRetries,
			ResetAfter: sc.Restart.ResetAfter,
		},
	}
	for _, env := range sc.Environment {
		req.Environment = append(req.Environment, service.EnvVar{Name: env.Name, Value: env.Value})
	}
	if err := req.Validate(); err != nil {
		return service.InstallRequest{}, fmt.Errorf("service %s: %w", sc.Label, err)
	}
	return req, nil
}

// Requests converts every service definition, failing on the first invalid
// one.
func (c *Config) Requests() ([]service.InstallRequest, error) {
	reqs := make([]service.InstallRequest, 0, len(c.Services))
	for _, sc := range c.Services {
		req, err := sc.Request()
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}
