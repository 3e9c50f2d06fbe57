// Package config loads the read-only settings file. Values come from, in
// increasing priority: built-in defaults, the YAML file, environment
// variables, and command-line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"dualscribe/export"
	"dualscribe/transcriber"
)

const APIKeyEnv = "DEEPGRAM_API_KEY"

type Settings struct {
	APIKey            string `yaml:"api_key"`
	Language          string `yaml:"language"`
	Model             string `yaml:"model"`
	Endpoint          string `yaml:"endpoint"`
	MicDeviceID       string `yaml:"mic_device_id"`
	SystemDeviceID    string `yaml:"system_device_id"`
	TimestampsEnabled bool   `yaml:"timestamps_enabled"`
	ExportFormat      string `yaml:"export_format"`
	LogLevel          string `yaml:"log_level"`
	MetricsAddr       string `yaml:"metrics_addr"`
}

func Default() Settings {
	return Settings{
		Language:          transcriber.DefaultLanguage,
		Model:             transcriber.DefaultModel,
		Endpoint:          transcriber.DefaultEndpoint,
		TimestampsEnabled: true,
		ExportFormat:      string(export.FormatMarkdown),
		LogLevel:          "info",
	}
}

// DefaultPath is settings.yaml in the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "dualscribe", "settings.yaml"), nil
}

// Load reads path, falling back to defaults when the file does not exist,
// then applies environment overrides and validates the result.
func Load(path string) (Settings, error) {
	s := Default()
	f, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Settings{}, fmt.Errorf("config: open %q: %w", path, err)
	default:
		defer f.Close()
		if s, err = decode(f, s); err != nil {
			return Settings{}, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}
	s.ApplyEnv()
	if err := Validate(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func decode(r io.Reader, s Settings) (Settings, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf("config: decode yaml: %w", err)
	}
	return s, nil
}

func (s *Settings) ApplyEnv() {
	if key := os.Getenv(APIKeyEnv); key != "" {
		s.APIKey = key
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate returns every problem found, joined. A missing API key is not an
// error here: listing devices and the doctor work without one.
func Validate(s Settings) error {
	var errs []error
	if s.Language == "" {
		errs = append(errs, errors.New("language is required"))
	}
	if s.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if u, err := url.Parse(s.Endpoint); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = append(errs, fmt.Errorf("endpoint %q must be a ws:// or wss:// URL", s.Endpoint))
	}
	if _, err := export.ParseFormat(s.ExportFormat); err != nil {
		errs = append(errs, fmt.Errorf("export_format: %w", err))
	}
	if s.LogLevel != "" && !validLogLevels[s.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", s.LogLevel))
	}
	return errors.Join(errs...)
}

// Transcriber returns the connection settings for the transcription client.
func (s Settings) Transcriber() transcriber.Config {
	return transcriber.Config{
		APIKey:   s.APIKey,
		Endpoint: s.Endpoint,
		Language: s.Language,
		Model:    s.Model,
	}
}
