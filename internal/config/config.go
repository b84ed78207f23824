// internal/config/config.go
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	Remote struct {
		BaseURL string `json:"base_url"`
		Timeout int    `json:"timeout_seconds"`
	} `json:"remote"`

	Lock struct {
		Dir            string `json:"dir"`
		PollMillis     int    `json:"poll_millis"`
		StaleAfterSecs int    `json:"stale_after_seconds"`
	} `json:"lock"`

	Snapshot struct {
		Dir       string `json:"dir"`
		CacheSize int    `json:"cache_size"`
	} `json:"snapshot"`

	Limits struct {
		MaxEdits      int `json:"max_edits"`
		MaxSearchSize int `json:"max_search_size"`
	} `json:"limits"`

	LogLevel string `json:"log_level"` // debug, info, warn, error
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	var c Config
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	c.Remote.Timeout = 10
	c.Lock.Dir = filepath.Join(home, ".scriptsync", "locks")
	c.Lock.PollMillis = 100
	c.Lock.StaleAfterSecs = 300
	c.Snapshot.Dir = filepath.Join(home, ".scriptsync", "snapshots")
	c.Snapshot.CacheSize = 256
	c.Limits.MaxEdits = 20
	c.Limits.MaxSearchSize = 1000
	c.LogLevel = "info"
	return &c
}

// Path returns the config file location, honoring SCRIPTSYNC_CONFIG.
func Path() string {
	if p := os.Getenv("SCRIPTSYNC_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config/config.json"
	}
	return filepath.Join(home, ".scriptsync", "config.json")
}

// Load reads the config at path, filling unset fields with defaults.
// A missing file is not an error; defaults are returned.
func Load(path string) (*Config, error) {
	config := Default()

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(config); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) LockPoll() time.Duration {
	return time.Duration(c.Lock.PollMillis) * time.Millisecond
}

func (c *Config) LockStaleAfter() time.Duration {
	return time.Duration(c.Lock.StaleAfterSecs) * time.Second
}

func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.Timeout) * time.Second
}
