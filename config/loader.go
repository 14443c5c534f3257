package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables recognized by Load. Each one overrides the
// corresponding config.yml value when set. A timeout of 0 means run
// indefinitely.
const (
	EnvServerURL      = "QUIETROUTE_SERVER_URL"
	EnvServerPort     = "QUIETROUTE_SERVER_PORT"
	EnvTimeoutMS      = "QUIETROUTE_TIMEOUT_MS"
	EnvLayoutFilePath = "QUIETROUTE_NETWORK_LAYOUT_FILE_PATH"
)

// Defaults applied after loading.
const (
	DefaultServerPort       = 8042
	DefaultFeedPort         = 443
	DefaultFeedPath         = "/network-events"
	DefaultFeedDestination  = "/passengers"
	DefaultMaxSlowdown      = 1.0
	DefaultMinQuietnessGain = 0.1
	DefaultKCandidates      = 20
)

// Load reads the application configuration from the given YAML file,
// applies environment overrides and defaults, then validates and returns it.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to a default configuration
// when no config file exists at path. Environment overrides still apply.
func LoadOrDefault(path string) (AppConfig, error) {
	if _, err := os.Stat(path); err != nil {
		var cfg AppConfig
		applyEnvOverrides(&cfg)
		applyDefaults(&cfg)
		v := validator.New()
		if err := v.Struct(cfg); err != nil {
			return cfg, fmt.Errorf("validating config: %w", err)
		}
		return cfg, nil
	}
	return Load(path)
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv(EnvServerURL); v != "" {
		cfg.Feed.URL = v
	}
	if v := os.Getenv(EnvServerPort); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Feed.Port = p
		}
	}
	if v := os.Getenv(EnvTimeoutMS); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			cfg.RunTimeoutMS = ms
		}
	}
	if v := os.Getenv(EnvLayoutFilePath); v != "" {
		cfg.Network.LayoutFilePath = v
	}
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Name == "" {
		cfg.Server.Name = "quiet-route"
	}
	if cfg.Feed.URL == "" {
		cfg.Feed.URL = "ltnm.learncppthroughprojects.com"
	}
	if cfg.Feed.Port == 0 {
		cfg.Feed.Port = DefaultFeedPort
	}
	if cfg.Feed.Path == "" {
		cfg.Feed.Path = DefaultFeedPath
	}
	if cfg.Feed.Destination == "" {
		cfg.Feed.Destination = DefaultFeedDestination
	}
	if cfg.Planner.MaxSlowdown == 0 {
		cfg.Planner.MaxSlowdown = DefaultMaxSlowdown
	}
	if cfg.Planner.MinQuietnessGain == 0 {
		cfg.Planner.MinQuietnessGain = DefaultMinQuietnessGain
	}
	if cfg.Planner.KCandidates == 0 {
		cfg.Planner.KCandidates = DefaultKCandidates
	}
	if cfg.GTFSRT.ReadIntervalMS == 0 {
		cfg.GTFSRT.ReadIntervalMS = 30000
	}
}
