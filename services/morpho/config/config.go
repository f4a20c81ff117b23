// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates Arbor configuration.
//
// Configuration is resolved in priority order: environment variables
// override file values, which override defaults. Durations in YAML use
// Go syntax ("250ms", "1m30s").
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/arbor/pkg/logging"
	"github.com/AleutianAI/arbor/services/morpho/batch"
	"github.com/AleutianAI/arbor/services/morpho/cache"
	"github.com/AleutianAI/arbor/services/morpho/storage/badger"
	"github.com/AleutianAI/arbor/services/morpho/telemetry"
)

// configValidate is the validator instance for config structs.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
}

// Duration wraps time.Duration so YAML values can use forms like
// "250ms" or "1m30s" instead of raw nanosecond integers.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root configuration for the Arbor service and CLI.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	Batch     BatchConfig     `yaml:"batch"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServiceConfig identifies this deployment.
type ServiceConfig struct {
	Name        string `yaml:"name" validate:"required"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port" validate:"gte=1,lte=65535"`
	ReadTimeout     Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout    Duration `yaml:"write_timeout" validate:"gte=0"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" validate:"gte=0"`

	// RateLimit is the sustained request rate per second. Zero disables
	// rate limiting.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`
	RateBurst int     `yaml:"rate_burst" validate:"gte=0"`

	// MaxGraphs caps the in-memory graph registry.
	MaxGraphs int `yaml:"max_graphs" validate:"gte=1"`
}

// Addr returns the host:port the server binds to.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig controls the BadgerDB result archive.
type StorageConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Path       string   `yaml:"path"`
	InMemory   bool     `yaml:"in_memory"`
	SyncWrites bool     `yaml:"sync_writes"`
	GCInterval Duration `yaml:"gc_interval" validate:"gte=0"`
}

// ToBadger converts this section into the storage layer's Config.
func (c StorageConfig) ToBadger() badger.Config {
	cfg := badger.DefaultConfig()
	cfg.Path = c.Path
	cfg.InMemory = c.InMemory
	cfg.SyncWrites = c.SyncWrites
	cfg.GCInterval = c.GCInterval.Std()
	return cfg
}

// CacheConfig controls the in-memory result cache.
type CacheConfig struct {
	MaxEntries int      `yaml:"max_entries" validate:"gte=1"`
	MaxAge     Duration `yaml:"max_age" validate:"gte=0"`
}

// Options converts this section into cache constructor options.
func (c CacheConfig) Options() []cache.CacheOption {
	opts := []cache.CacheOption{cache.WithMaxEntries(c.MaxEntries)}
	if c.MaxAge > 0 {
		opts = append(opts, cache.WithMaxAge(c.MaxAge.Std()))
	}
	return opts
}

// BatchConfig controls the batch analysis runner.
type BatchConfig struct {
	Workers     int      `yaml:"workers" validate:"gte=1,lte=256"`
	TaskTimeout Duration `yaml:"task_timeout" validate:"gte=0"`
}

// Options converts this section into batch runner options.
func (c BatchConfig) Options() []batch.RunnerOption {
	opts := []batch.RunnerOption{batch.WithWorkers(c.Workers)}
	if c.TaskTimeout > 0 {
		opts = append(opts, batch.WithTaskTimeout(c.TaskTimeout.Std()))
	}
	return opts
}

// TelemetryConfig controls tracing and metrics exporters.
type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=otlp jaeger stdout none"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=prometheus stdout none"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
}

// ToTelemetry converts this section plus the service identity into the
// telemetry package's Config.
func (c TelemetryConfig) ToTelemetry(svc ServiceConfig) telemetry.Config {
	return telemetry.Config{
		ServiceName:    svc.Name,
		ServiceVersion: svc.Version,
		Environment:    svc.Environment,
		TraceExporter:  c.TraceExporter,
		MetricExporter: c.MetricExporter,
		OTLPEndpoint:   c.OTLPEndpoint,
		OTLPInsecure:   c.OTLPInsecure,
	}
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
	Dir    string `yaml:"dir"`
}

// ToLogging converts this section into the logging package's Config.
func (c LoggingConfig) ToLogging(service string) logging.Config {
	return logging.Config{
		Level:   logging.ParseLevel(c.Level),
		LogDir:  c.Dir,
		Service: service,
		JSON:    c.Format == "json",
	}
}

// Default returns the development defaults every load starts from.
func Default() Config {
	return Config{
		Service: ServiceConfig{
			Name:        "arbor",
			Version:     "1.0.0",
			Environment: "development",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(60 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
			RateLimit:       50,
			RateBurst:       100,
			MaxGraphs:       256,
		},
		Storage: StorageConfig{
			Enabled:    false,
			SyncWrites: true,
			GCInterval: Duration(5 * time.Minute),
		},
		Cache: CacheConfig{
			MaxEntries: cache.DefaultMaxEntries,
		},
		Batch: BatchConfig{
			Workers: 8,
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "otlp",
			MetricExporter: "prometheus",
			OTLPEndpoint:   "localhost:4317",
			OTLPInsecure:   true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load resolves configuration with priority: env > file > defaults.
//
// Inputs:
//   - configPath: Path to a YAML config file. Empty skips file loading;
//     a missing file is not an error, defaults apply.
//
// Outputs:
//   - Config: Merged, validated configuration.
//   - error: Non-nil if the file is unreadable or the result is invalid.
func Load(configPath string) (Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := loadFile(configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	loadFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func loadFromEnv(cfg *Config) {
	if v := os.Getenv("ARBOR_ENV"); v != "" {
		cfg.Service.Environment = v
	}
	if v := os.Getenv("ARBOR_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("ARBOR_SERVER_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = i
		}
	}
	if v := os.Getenv("ARBOR_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.RateLimit = f
		}
	}
	if v := os.Getenv("ARBOR_STORAGE_ENABLED"); v != "" {
		cfg.Storage.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("ARBOR_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("ARBOR_CACHE_MAX_ENTRIES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxEntries = i
		}
	}
	if v := os.Getenv("ARBOR_BATCH_WORKERS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Batch.Workers = i
		}
	}
	if v := os.Getenv("OTEL_TRACES_EXPORTER"); v != "" {
		cfg.Telemetry.TraceExporter = v
	}
	if v := os.Getenv("OTEL_METRICS_EXPORTER"); v != "" {
		cfg.Telemetry.MetricExporter = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := os.Getenv("ARBOR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ARBOR_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// Validate checks that the configuration is usable.
//
// Outputs:
//   - error: Non-nil if any field is out of range or required fields
//     are missing.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return err
	}
	if c.Storage.Enabled && !c.Storage.InMemory && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required when storage is enabled")
	}
	return nil
}
