// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the dispatch service configuration: defaults, an
// optional YAML file, then environment overrides, validated before use.
// Construction is explicit — nothing here runs at import time.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full dispatch service configuration.
type Config struct {
	// Port is the HTTP listen port.
	Port int `yaml:"port" validate:"gte=1,lte=65535"`

	// DataDir is the directory for embedded storage (audit trail, dedup
	// window). Empty disables persistence; both stores fall back to
	// process memory.
	DataDir string `yaml:"dataDir"`

	// SessionTTL is the inactivity window before a session is evicted.
	SessionTTL time.Duration `yaml:"sessionTTL" validate:"gt=0"`

	// MaxPendingAge is how long an unanswered confirmation stays valid.
	MaxPendingAge time.Duration `yaml:"maxPendingAge" validate:"gt=0"`

	// DedupWindow is the idempotency window for duplicate suppression.
	DedupWindow time.Duration `yaml:"dedupWindow" validate:"gt=0"`

	// ConfirmationToken is the exact reply destructive actions require.
	ConfirmationToken string `yaml:"confirmationToken" validate:"required"`

	// TurnsPerMinute caps dispatch turns per user. Zero disables limiting.
	TurnsPerMinute int `yaml:"turnsPerMinute" validate:"gte=0"`

	// Debug enables verbose request logging.
	Debug bool `yaml:"debug"`
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		Port:              8080,
		SessionTTL:        4 * time.Hour,
		MaxPendingAge:     10 * time.Minute,
		DedupWindow:       5 * time.Minute,
		ConfirmationToken: "YES",
		TurnsPerMinute:    60,
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// non-empty), then environment overrides, then validation.
//
// Environment variables:
//
//	ZENA_PORT, ZENA_DATA_DIR, ZENA_SESSION_TTL, ZENA_MAX_PENDING_AGE,
//	ZENA_DEDUP_WINDOW, ZENA_CONFIRMATION_TOKEN, ZENA_TURNS_PER_MINUTE,
//	ZENA_DEBUG
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: reading %q: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parsing %q: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ZENA_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("ZENA_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("ZENA_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SessionTTL = d
		}
	}
	if v := os.Getenv("ZENA_MAX_PENDING_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.MaxPendingAge = d
		}
	}
	if v := os.Getenv("ZENA_DEDUP_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.DedupWindow = d
		}
	}
	if v := os.Getenv("ZENA_CONFIRMATION_TOKEN"); v != "" {
		cfg.ConfirmationToken = v
	}
	if v := os.Getenv("ZENA_TURNS_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TurnsPerMinute = n
		}
	}
	if v := os.Getenv("ZENA_DEBUG"); v != "" {
		cfg.Debug = v == "true" || v == "1"
	}
}
