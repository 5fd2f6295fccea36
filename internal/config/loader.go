package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"svcmgr/internal/logger"
)

// rawConfig is used for JSON unmarshaling with duration strings.
type rawConfig struct {
	Manager  string             `json:"Manager"`
	Level    string             `json:"Level"`
	Logging  rawLoggingConfig   `json:"Logging"`
	Adapters AdaptersConfig     `json:"Adapters"`
	Services []rawServiceConfig `json:"Services"`
}

type rawServiceConfig struct {
	Label            string           `json:"Label"`
	Program          string           `json:"Program"`
	Args             []string         `json:"Args"`
	User             string           `json:"User"`
	WorkingDirectory string           `json:"WorkingDirectory"`
	Environment      []EnvEntry       `json:"Environment"`
	Contents         string           `json:"Contents"`
	Autostart        bool             `json:"Autostart"`
	Restart          rawRestartConfig `json:"Restart"`
}

type rawRestartConfig struct {
	Policy     string `json:"Policy"`
	Delay      string `json:"Delay"`
	MaxRetries int    `json:"MaxRetries"`
	ResetAfter string `json:"ResetAfter"`
}

type rawLoggingConfig struct {
	Level      string `json:"Level"`
	FilePath   string `json:"FilePath"`
	MaxSizeMB  int    `json:"MaxSizeMB"`
	MaxBackups int    `json:"MaxBackups"`
	MaxAgeDays int    `json:"MaxAgeDays"`
	Compress   bool   `json:"Compress"`
	Console    bool   `json:"Console"`
}

// Load reads configuration from the specified file path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from JSON bytes and merges it over the
// defaults.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	cfg := DefaultConfig()
	parsed, err := convertRawConfig(&raw)
	if err != nil {
		return nil, err
	}

	cfg.Merge(parsed)
	return cfg, nil
}

func convertRawConfig(raw *rawConfig) (*Config, error) {
	cfg := &Config{
		Manager:  raw.Manager,
		Level:    raw.Level,
		Logging:  convertRawLogging(&raw.Logging),
		Adapters: raw.Adapters,
	}

	for _, rawSvc := range raw.Services {
		svc, err := convertRawService(&rawSvc)
		if err != nil {
			return nil, err
		}
		cfg.Services = append(cfg.Services, *svc)
	}

	return cfg, nil
}

func convertRawService(raw *rawServiceConfig) (*ServiceConfig, error) {
	svc := &ServiceConfig{
		Label:            raw.Label,
		Program:          raw.Program,
		Args:             raw.Args,
		User:             raw.User,
		WorkingDirectory: raw.WorkingDirectory,
		Environment:      raw.Environment,
		Contents:         raw.Contents,
		Autostart:        raw.Autostart,
		Restart: RestartConfig{
			Policy:     raw.Restart.Policy,
			MaxRetries: raw.Restart.MaxRetries,
		},
	}

	if raw.Restart.Delay != "" {
		d, err := time.ParseDuration(raw.Restart.Delay)
		if err != nil {
			return nil, fmt.Errorf("invalid restart delay for service %s: %w", raw.Label, err)
		}
		svc.Restart.Delay = d
	}

	if raw.Restart.ResetAfter != "" {
		d, err := time.ParseDuration(raw.Restart.ResetAfter)
		if err != nil {
			return nil, fmt.Errorf("invalid reset-after for service %s: %w", raw.Label, err)
		}
		svc.Restart.ResetAfter = d
	}

	return svc, nil
}

func convertRawLogging(raw *rawLoggingConfig) logger.Config {
	return logger.Config{
		Level:      raw.Level,
		FilePath:   raw.FilePath,
		MaxSizeMB:  raw.MaxSizeMB,
		MaxBackups: raw.MaxBackups,
		MaxAgeDays: raw.MaxAgeDays,
		Compress:   raw.Compress,
		Console:    raw.Console,
	}
}
