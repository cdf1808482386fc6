// Package config loads sitebuilder settings: built-in defaults, overlaid by
// an optional TOML file, overlaid by command-line flags in internal/cli.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
)

// Duration reads TOML strings such as "800ms" or "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type StorageConfig struct {
	// Driver is sqlite, postgres, mysql, mongo or http.
	Driver string `toml:"driver"`
	// DSN is the SQL data source, or the API base URL for http.
	DSN string `toml:"dsn"`
}

type MongoConfig struct {
	URI          string `toml:"uri"`
	Database     string `toml:"database"`
	Transactions bool   `toml:"transactions"`
}

// RedisConfig enables the version cache when Addr is set.
type RedisConfig struct {
	Addr     string   `toml:"addr"`
	Password string   `toml:"password"`
	DB       int      `toml:"db"`
	TTL      Duration `toml:"ttl"`
}

type AutosaveConfig struct {
	Debounce      Duration `toml:"debounce"`
	RetryInterval Duration `toml:"retry_interval"`
	SaveTimeout   Duration `toml:"save_timeout"`
}

type VersionsConfig struct {
	AutoSnapshot string `toml:"auto_snapshot"`
}

type APIConfig struct {
	Addr string `toml:"addr"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Config holds every runtime setting.
type Config struct {
	DataDir  string         `toml:"data_dir"`
	Storage  StorageConfig  `toml:"storage"`
	Mongo    MongoConfig    `toml:"mongo"`
	Redis    RedisConfig    `toml:"redis"`
	Autosave AutosaveConfig `toml:"autosave"`
	Versions VersionsConfig `toml:"versions"`
	API      APIConfig      `toml:"api"`
	Log      LogConfig      `toml:"log"`
}

var drivers = map[string]bool{"sqlite": true, "postgres": true, "mysql": true, "mongo": true, "http": true}

var levels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// DataDir is ~/.local/share/sitebuilder, falling back to the working
// directory when the home directory is unknown.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sitebuilder"
	}
	return filepath.Join(home, ".local", "share", "sitebuilder")
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// LoadDefaults populates c with settings that work out of the box.
func (c *Config) LoadDefaults() {
	c.DataDir = DataDir()
	c.Storage = StorageConfig{Driver: "sqlite", DSN: filepath.Join(c.DataDir, "sitebuilder.db")}
	c.Mongo = MongoConfig{URI: "mongodb://localhost:27017", Database: "sitebuilder", Transactions: true}
	c.Redis = RedisConfig{TTL: Duration{time.Hour}}
	c.Autosave = AutosaveConfig{
		Debounce:      Duration{800 * time.Millisecond},
		RetryInterval: Duration{5 * time.Second},
		SaveTimeout:   Duration{30 * time.Second},
	}
	c.API = APIConfig{Addr: "127.0.0.1:8420"}
	c.Log = LogConfig{Level: "info"}
}

// Load applies defaults and overlays the TOML file at path. A missing file
// is not an error; an empty path means DefaultPath.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if path == "" {
		path = DefaultPath()
	}
	md, err := toml.DecodeFile(path, cfg)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if keys := md.Undecoded(); len(keys) > 0 {
			return nil, fmt.Errorf("config %s: unknown key %s", path, keys[0])
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values a decoder cannot.
func (c *Config) Validate() error {
	if !drivers[c.Storage.Driver] {
		return fmt.Errorf("storage.driver %q: want sqlite, postgres, mysql, mongo or http", c.Storage.Driver)
	}
	if c.Storage.Driver != "mongo" && c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required for driver %s", c.Storage.Driver)
	}
	if c.Autosave.Debounce.Duration <= 0 {
		return fmt.Errorf("autosave.debounce must be positive")
	}
	if c.Autosave.RetryInterval.Duration < 0 || c.Autosave.SaveTimeout.Duration < 0 {
		return fmt.Errorf("autosave intervals must not be negative")
	}
	if c.Versions.AutoSnapshot != "" {
		if _, err := cron.ParseStandard(c.Versions.AutoSnapshot); err != nil {
			return fmt.Errorf("versions.auto_snapshot: %w", err)
		}
	}
	if !levels[c.Log.Level] {
		return fmt.Errorf("log.level %q: want debug, info, warn or error", c.Log.Level)
	}
	return nil
}
