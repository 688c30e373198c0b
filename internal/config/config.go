package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Env    string `yaml:"env"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Levels struct {
		// Store is one of file, redis, postgres, memory.
		Store string `yaml:"store"`
		File  string `yaml:"file"`
		TTL   string `yaml:"ttl"`
	} `yaml:"levels"`
	Transport struct {
		// Backend is one of local, poll, peer, realtime.
		Backend      string `yaml:"backend"`
		RelayURL     string `yaml:"relayUrl"`
		PollInterval string `yaml:"pollInterval"`
	} `yaml:"transport"`
	AI struct {
		BaseURL string `yaml:"baseUrl"`
		Model   string `yaml:"model"`
	} `yaml:"ai"`
}

// Load reads YAML config from path. A missing file yields the zero config so
// every command works out of the box with defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
