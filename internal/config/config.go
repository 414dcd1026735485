// Package config loads the directory server configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete server configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Events     EventsConfig     `yaml:"events"`
	Validation ValidationConfig `yaml:"validation"`
	Log        LogConfig        `yaml:"log"`
	Bridge     BridgeConfig     `yaml:"bridge"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	// Heartbeat is the interval of SSE keep-alive comments.
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// StoreConfig configures the SQLite database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// EventsConfig sizes the event log and stream buffers.
type EventsConfig struct {
	// Retention is the number of events kept for Last-Event-ID replay.
	Retention    int `yaml:"retention"`
	ReaderBuffer int `yaml:"reader_buffer"`
}

// ValidationConfig toggles Thing Description schema checks.
type ValidationConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BridgeConfig configures optional event forwarding.
type BridgeConfig struct {
	NATS NATSConfig `yaml:"nats"`
}

// NATSConfig configures the NATS bridge. An empty URL disables it.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8081",
			ReadHeaderTimeout: 10 * time.Second,
			Heartbeat:         30 * time.Second,
		},
		Store: StoreConfig{Path: "data/thingdir.db"},
		Events: EventsConfig{
			Retention:    10000,
			ReaderBuffer: 64,
		},
		Validation: ValidationConfig{Enabled: true},
		Log:        LogConfig{Level: "info", Format: "text"},
		Bridge: BridgeConfig{NATS: NATSConfig{
			SubjectPrefix: "thingdir",
		}},
	}
}

// Load reads path over the defaults. Keys absent from the file keep their
// default values. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	defer f.Close()

	cfg := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.ReadHeaderTimeout <= 0 {
		errs = append(errs, errors.New("server.read_header_timeout must be positive"))
	}
	if c.Server.Heartbeat <= 0 {
		errs = append(errs, errors.New("server.heartbeat must be positive"))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if c.Events.Retention < 1 {
		errs = append(errs, fmt.Errorf("events.retention must be at least 1, got %d", c.Events.Retention))
	}
	if c.Events.ReaderBuffer < 1 {
		errs = append(errs, fmt.Errorf("events.reader_buffer must be at least 1, got %d", c.Events.ReaderBuffer))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Bridge.NATS.URL != "" && c.Bridge.NATS.SubjectPrefix == "" {
		errs = append(errs, errors.New("bridge.nats.subject_prefix is required when bridge.nats.url is set"))
	}
	return errors.Join(errs...)
}

// SlogLevel parses the configured level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
