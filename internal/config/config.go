package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultSyncIntervalMinutes is used whenever the configured interval
	// is missing or out of range.
	DefaultSyncIntervalMinutes = 15

	// MinSyncIntervalMinutes / MaxSyncIntervalMinutes bound the auto-sync
	// interval (one minute to one day).
	MinSyncIntervalMinutes = 1
	MaxSyncIntervalMinutes = 1440
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the status API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the persisted synchronization configuration. The host owns
// this file; the sync core consumes it read-only except for refreshed
// OAuth tokens and the last-sync timestamp, which are written back here.
type Config struct {
	// Enabled turns synchronization on. When false the manager holds no
	// engine and every sync entry point reports a configuration error.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// ClientID / ClientSecret are the OAuth client credentials.
	ClientID     string `yaml:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"client_secret"`

	// CalendarID is the single remote calendar this session syncs with.
	CalendarID string `yaml:"calendar_id" json:"calendar_id"`

	// AccessToken / RefreshToken are the current OAuth tokens. The access
	// token is replaced in place when a mid-sync refresh succeeds.
	AccessToken  string `yaml:"access_token,omitempty" json:"access_token,omitempty"`
	RefreshToken string `yaml:"refresh_token,omitempty" json:"refresh_token,omitempty"`

	// LastSync is the completion time of the most recent successful pass.
	LastSync time.Time `yaml:"last_sync,omitempty" json:"last_sync,omitempty"`

	// AutoSync enables the periodic background pass.
	AutoSync bool `yaml:"auto_sync" json:"auto_sync"`

	// SyncIntervalMinutes is the auto-sync period, clamped to
	// [MinSyncIntervalMinutes, MaxSyncIntervalMinutes].
	SyncIntervalMinutes int `yaml:"sync_interval_minutes" json:"sync_interval_minutes"`

	// NoteDir is the root directory of the local note store.
	NoteDir string `yaml:"note_dir" json:"note_dir"`

	// Listen is the HTTP listen address for the status API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used when combining clock-time fields
	// with calendar dates. Empty means the process-local zone.
	Timezone string `yaml:"timezone,omitempty" json:"timezone,omitempty"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:             false,
		AutoSync:            true,
		SyncIntervalMinutes: DefaultSyncIntervalMinutes,
		NoteDir:             "./notes",
		Listen:              "127.0.0.1:8099",
	}
}

// Normalize fills in missing/zero values so partially-filled configs
// still behave correctly.
func (c *Config) Normalize() {
	if c.SyncIntervalMinutes < MinSyncIntervalMinutes || c.SyncIntervalMinutes > MaxSyncIntervalMinutes {
		c.SyncIntervalMinutes = DefaultSyncIntervalMinutes
	}
	if c.NoteDir == "" {
		c.NoteDir = "./notes"
	}
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8099"
	}
}

// Location resolves the configured timezone, falling back to time.Local
// for empty or unknown names.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Clone returns a deep copy so a manager rebuild can hold an immutable
// snapshot while the host mutates the original.
func (c *Config) Clone() *Config {
	out := *c
	if c.BasicAuth != nil {
		ba := *c.BasicAuth
		out.BasicAuth = &ba
	}
	return &out
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written (0600) and
// returned; otherwise the file is unmarshalled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed. Tokens live in
// this file, so the tight mode matters.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".notecal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
