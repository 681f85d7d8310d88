package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// WatchTarget is one subscriber application managed by `beacon watch`.
type WatchTarget struct {
	SiteID     string   `toml:"site_id"`
	APIKey     string   `toml:"api_key"`
	AppURL     string   `toml:"app_url"`
	ExtraPaths []string `toml:"extra_paths"`
}

// WatchConfig is the TOML file format consumed by `beacon watch --config`.
type WatchConfig struct {
	Targets []WatchTarget `toml:"targets"`
}

// loadWatchConfig parses the TOML watch configuration at path.
func loadWatchConfig(path string) (*WatchConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read watch config: %w", err)
	}
	var cfg WatchConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse watch config: %w", err)
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("watch config %s has no targets", path)
	}
	for i, t := range cfg.Targets {
		if t.SiteID == "" {
			return nil, fmt.Errorf("target %d: site_id is required", i)
		}
		if t.APIKey == "" {
			return nil, fmt.Errorf("target %d (%s): api_key is required", i, t.SiteID)
		}
		if t.AppURL == "" {
			return nil, fmt.Errorf("target %d (%s): app_url is required", i, t.SiteID)
		}
	}
	return &cfg, nil
}
