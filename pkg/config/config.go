// Package config resolves runtime configuration in priority order:
// defaults -> YAML file -> environment overrides. The file is optional so the
// binary boots with sensible defaults for local runs.
package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration.
type Config struct {
	HTTPPort string
	DBPath   string

	IGVRate               decimal.Decimal
	MoratoryRate          decimal.Decimal
	BackdoorThreshold     decimal.Decimal
	TransactionCost       decimal.Decimal
	ProjectionHorizonDays int
}

// configFile mirrors the YAML schema. Rates and amounts are plain strings so
// they pass through to decimal parsing without a float detour.
type configFile struct {
	HTTPPort string `yaml:"http_port"`
	DBPath   string `yaml:"db_path"`

	IGVRate               string `yaml:"igv_rate"`
	MoratoryRate          string `yaml:"moratory_rate"`
	BackdoorThreshold     string `yaml:"backdoor_threshold"`
	TransactionCost       string `yaml:"transaction_cost"`
	ProjectionHorizonDays int    `yaml:"projection_horizon_days"`
}

// Load reads the config file at path (skipped when path is empty or the file
// does not exist) and applies environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := &Config{
		HTTPPort:              "8080",
		DBPath:                "factorops.db",
		IGVRate:               decimal.NewFromFloat(0.18),
		MoratoryRate:          decimal.NewFromFloat(0.03),
		BackdoorThreshold:     decimal.NewFromInt(100),
		TransactionCost:       decimal.NewFromInt(25),
		ProjectionHorizonDays: 90,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("could not read config file: %w", err)
			}
		} else {
			var file configFile
			if err := yaml.Unmarshal(data, &file); err != nil {
				return nil, fmt.Errorf("could not parse config file: %w", err)
			}
			if err := cfg.applyFile(file); err != nil {
				return nil, err
			}
		}
	}

	cfg.HTTPPort = getEnv("FACTOROPS_HTTP_PORT", cfg.HTTPPort)
	cfg.DBPath = getEnv("FACTOROPS_DB_PATH", cfg.DBPath)

	return cfg, nil
}

func (c *Config) applyFile(file configFile) error {
	if file.HTTPPort != "" {
		c.HTTPPort = file.HTTPPort
	}
	if file.DBPath != "" {
		c.DBPath = file.DBPath
	}
	if file.ProjectionHorizonDays > 0 {
		c.ProjectionHorizonDays = file.ProjectionHorizonDays
	}

	for _, field := range []struct {
		name  string
		raw   string
		value *decimal.Decimal
	}{
		{"igv_rate", file.IGVRate, &c.IGVRate},
		{"moratory_rate", file.MoratoryRate, &c.MoratoryRate},
		{"backdoor_threshold", file.BackdoorThreshold, &c.BackdoorThreshold},
		{"transaction_cost", file.TransactionCost, &c.TransactionCost},
	} {
		if field.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(field.raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", field.name, field.raw, err)
		}
		*field.value = d
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value if not set
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
