package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level snowbanker run configuration. A run selects one
// strategy, the brokerage endpoint it trades against, and where its key
// files and working state live.
type Config struct {
	API struct {
		URL string `json:"url" yaml:"url"`
	} `json:"api" yaml:"api"`
	Keys struct {
		Dir        string `json:"dpath" yaml:"dpath"`
		APIFile    string `json:"api_fname" yaml:"api_fname"`
		SecretFile string `json:"secret_fname" yaml:"secret_fname"`
	} `json:"keys" yaml:"keys"`
	Assets struct {
		HistoryLength int `json:"phistory_length" yaml:"phistory_length"`
	} `json:"assets" yaml:"assets"`
	Strat struct {
		Name        string `json:"name" yaml:"name"`
		TickSeconds int    `json:"tick_rate" yaml:"tick_rate"`
		WorkDir     string `json:"work_dpath" yaml:"work_dpath"`
		ConfigPath  string `json:"config_fpath" yaml:"config_fpath"`
	} `json:"strat" yaml:"strat"`
}

func (c *Config) Validate() error {
	if c.API.URL == "" {
		return errors.New("api.url cannot be empty")
	}
	if c.Keys.Dir == "" || c.Keys.APIFile == "" || c.Keys.SecretFile == "" {
		return errors.New("keys.dpath, keys.api_fname and keys.secret_fname are all required")
	}
	if c.Strat.Name == "" {
		return errors.New("strat.name cannot be empty")
	}
	if c.Strat.TickSeconds <= 0 {
		return fmt.Errorf("strat.tick_rate must be positive, got %d", c.Strat.TickSeconds)
	}
	if c.Strat.WorkDir == "" {
		return errors.New("strat.work_dpath cannot be empty")
	}
	return nil
}

// APIKeyPath returns the path of the configured API key file.
func (c *Config) APIKeyPath() string {
	return filepath.Join(c.Keys.Dir, c.Keys.APIFile)
}

// SecretKeyPath returns the path of the configured secret key file.
func (c *Config) SecretKeyPath() string {
	return filepath.Join(c.Keys.Dir, c.Keys.SecretFile)
}

// LoadConfig reads a snowbanker configuration from a JSON or YAML file,
// picked by extension. Missing optional values are defaulted.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var c Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &c)
	default:
		err = json.Unmarshal(b, &c)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if c.API.URL == "" {
		c.API.URL = "https://paper-api.alpaca.markets"
	}
	if c.Assets.HistoryLength == 0 {
		c.Assets.HistoryLength = 100
	}
	if c.Strat.TickSeconds == 0 {
		c.Strat.TickSeconds = 3600
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}
