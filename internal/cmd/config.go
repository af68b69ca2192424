package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the optional yaml overrides. Environment variables win
// over file values; the file exists for things awkward to express in
// env (durations, lists).
type Config struct {
	Server struct {
		Addr    string `yaml:"addr"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"server"`
	Rooms struct {
		StaleRetention Duration `yaml:"stale_retention"`
		SweepInterval  Duration `yaml:"sweep_interval"`
	} `yaml:"rooms"`
	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`
}

// Duration accepts human-readable yaml values like "10m" or "24h";
// yaml.v3 has no native time.Duration decoding.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	config := &Config{}
	config.Rooms.StaleRetention = Duration(24 * time.Hour)
	config.Rooms.SweepInterval = Duration(10 * time.Minute)

	if path == "" {
		return config, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return config, nil
}
