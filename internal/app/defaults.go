package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jerome/simply-versioned/internal/config"
)

// Defaults are the locations and store svctl falls back to when no config
// file has been written yet.
//
// Environment variables:
//   - SV_CONFIG_PATH: config file location (default: ~/.config/svctl.toml)
//   - SV_HOME: base directory for svctl data (default: ~/.local/share/simply-versioned)
//   - SV_DATABASE: store type written by "config init" (default: sqlite)
//   - SV_DSN: connection string when SV_DATABASE is postgres
type Defaults struct {
	ConfigPath string
	BaseDir    string
	Database   string
	DSN        string
}

// GetDefaults reads the environment and fills in home-relative fallbacks.
func GetDefaults() (*Defaults, error) {
	d := &Defaults{
		ConfigPath: os.Getenv("SV_CONFIG_PATH"),
		BaseDir:    os.Getenv("SV_HOME"),
		Database:   os.Getenv("SV_DATABASE"),
		DSN:        os.Getenv("SV_DSN"),
	}
	if d.Database == "" {
		d.Database = "sqlite"
	}
	if d.ConfigPath != "" && d.BaseDir != "" {
		return d, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}
	if d.ConfigPath == "" {
		d.ConfigPath = filepath.Join(homeDir, ".config", "svctl.toml")
	}
	if d.BaseDir == "" {
		d.BaseDir = filepath.Join(homeDir, ".local", "share", "simply-versioned")
	}
	return d, nil
}

// LogDir is where operation logs are written.
func (d *Defaults) LogDir() string {
	return filepath.Join(d.BaseDir, "log")
}

// DataDir is the directory a file-backed store keeps its data in. SQLite and
// Badger get separate directories so switching types never mixes their files.
// Stores without local files have none.
func (d *Defaults) DataDir() string {
	switch d.Database {
	case "sqlite":
		return filepath.Join(d.BaseDir, "db")
	case "badger":
		return filepath.Join(d.BaseDir, "badger")
	}
	return ""
}

// NewConfig returns the config "config init" writes for these defaults.
func (d *Defaults) NewConfig() *config.Config {
	cfg := config.NewConfig(d.BaseDir)
	cfg.LogDir = d.LogDir()
	cfg.Database = config.DatabaseConfig{
		Type:    d.Database,
		DataDir: d.DataDir(),
	}
	if d.Database == "postgres" {
		cfg.Database.DSN = d.DSN
	}
	return cfg
}
