package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Default base map, used when a profile leaves basemap.url empty.
const (
	DefaultBasemapURL         = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"
	DefaultBasemapAttribution = "Tile data &copy; OpenStreetMap contributors"
)

// ErrNoConfig indicates a profile directory without a config file.
var ErrNoConfig = errors.New("no config.toml or config.yaml in profile")

// IPCConfig defines where the map client connects.
type IPCConfig struct {
	SocketPath    string `toml:"socketPath" yaml:"socketPath"`
	WebSocketAddr string `toml:"websocketAddr" yaml:"websocketAddr"`
}

// StorageConfig defines SQLite tuning options.
type StorageConfig struct {
	DBPath      string `toml:"dbPath" yaml:"dbPath"`
	JournalMode string `toml:"journalMode" yaml:"journalMode"`
	Synchronous string `toml:"synchronous" yaml:"synchronous"`
}

// VCSRemote config.
type VCSRemote struct {
	URL           string `toml:"url" yaml:"url"`
	CredentialRef string `toml:"credentialRef" yaml:"credentialRef"`
}

// VCSConfig defines the Git archive of map state snapshots.
type VCSConfig struct {
	Enabled     bool      `toml:"enabled" yaml:"enabled"`
	Branch      string    `toml:"branch" yaml:"branch"`
	AutoPush    bool      `toml:"autoPush" yaml:"autoPush"`
	AuthorName  string    `toml:"authorName" yaml:"authorName"`
	AuthorEmail string    `toml:"authorEmail" yaml:"authorEmail"`
	Remote      VCSRemote `toml:"remote" yaml:"remote"`
}

// LoggingConfig defines basic logging knobs.
type LoggingConfig struct {
	Level       string `toml:"level" yaml:"level"`
	FilePath    string `toml:"filePath" yaml:"filePath"`
	FileMaxSize int    `toml:"fileMaxSizeMB" yaml:"fileMaxSizeMB"`
	FileBackups int    `toml:"fileMaxBackups" yaml:"fileMaxBackups"`
}

// BasemapConfig is the tile source of the bootstrap base layer.
type BasemapConfig struct {
	URL         string `toml:"url" yaml:"url"`
	Attribution string `toml:"attribution" yaml:"attribution"`
}

// VisServerConfig points at the tile server. An empty URL disables ingest.
type VisServerConfig struct {
	URL      string `toml:"url" yaml:"url"`
	Provider string `toml:"provider" yaml:"provider"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `toml:"addr" yaml:"addr"`
}

// ProfileConfig aggregates service configuration for a profile.
type ProfileConfig struct {
	ProfileName string          `toml:"profileName" yaml:"profileName"`
	Storage     StorageConfig   `toml:"storage" yaml:"storage"`
	VCS         VCSConfig       `toml:"vcs" yaml:"vcs"`
	IPC         IPCConfig       `toml:"ipc" yaml:"ipc"`
	Logging     LoggingConfig   `toml:"logging" yaml:"logging"`
	Basemap     BasemapConfig   `toml:"basemap" yaml:"basemap"`
	VisServer   VisServerConfig `toml:"visServer" yaml:"visServer"`
	Metrics     MetricsConfig   `toml:"metrics" yaml:"metrics"`
}

// DefaultProfile returns a profile with every required field filled in.
func DefaultProfile(name string) *ProfileConfig {
	return &ProfileConfig{
		ProfileName: name,
		Storage: StorageConfig{
			DBPath:      "state.db",
			JournalMode: "WAL",
			Synchronous: "NORMAL",
		},
		VCS: VCSConfig{
			Branch:      "main",
			AuthorName:  "geonb",
			AuthorEmail: "geonb@localhost",
		},
		IPC: IPCConfig{SocketPath: "ipc.sock"},
		Logging: LoggingConfig{
			Level:       "info",
			FileMaxSize: 10,
		},
		Basemap: BasemapConfig{
			URL:         DefaultBasemapURL,
			Attribution: DefaultBasemapAttribution,
		},
	}
}

// Load reads a config file. Files ending in .yaml or .yml are YAML, anything
// else is TOML.
func Load(path string) (*ProfileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg ProfileConfig
	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = toml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadProfile loads the config file of a profile directory.
func LoadProfile(dir string) (*ProfileConfig, error) {
	path, err := ConfigPath(dir)
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// ConfigPath returns the config file of a profile directory, preferring
// config.toml.
func ConfigPath(dir string) (string, error) {
	for _, name := range []string{"config.toml", "config.yaml", "config.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoConfig, dir)
}

// Save writes cfg to path in the format implied by its extension.
func Save(path string, cfg *ProfileConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if isYAML(path) {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
	} else if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}

// ResolvePath interprets p relative to the profile directory.
func ResolvePath(profileDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(profileDir, p)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func (cfg *ProfileConfig) validate() error {
	if cfg.ProfileName == "" {
		return fmt.Errorf("profileName required")
	}
	if cfg.Storage.DBPath == "" {
		return fmt.Errorf("storage.dbPath required")
	}
	if cfg.IPC.SocketPath == "" {
		return fmt.Errorf("ipc.socketPath required")
	}
	if cfg.VCS.Branch == "" {
		cfg.VCS.Branch = "main"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Basemap.URL == "" {
		cfg.Basemap.URL = DefaultBasemapURL
		if cfg.Basemap.Attribution == "" {
			cfg.Basemap.Attribution = DefaultBasemapAttribution
		}
	}
	if cfg.VisServer.URL != "" {
		parsed, err := url.Parse(cfg.VisServer.URL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return fmt.Errorf("visServer.url must be an http(s) url")
		}
	}
	return nil
}
