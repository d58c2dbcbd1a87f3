package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, name := range []string{"config.toml", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			cfg := DefaultProfile("dev")
			cfg.VisServer.URL = "http://localhost:8000/ktile"
			cfg.Metrics.Addr = "127.0.0.1:9464"
			if err := Save(filepath.Join(dir, name), cfg); err != nil {
				t.Fatalf("save: %v", err)
			}
			loaded, err := LoadProfile(dir)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if loaded.ProfileName != "dev" || loaded.VisServer.URL != cfg.VisServer.URL || loaded.Metrics.Addr != cfg.Metrics.Addr {
				t.Fatalf("unexpected config %+v", loaded)
			}
			if loaded.Basemap.URL != DefaultBasemapURL {
				t.Fatalf("expected default basemap, got %s", loaded.Basemap.URL)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	body := "profileName = \"p\"\n[storage]\ndbPath = \"db\"\n[ipc]\nsocketPath = \"sock\"\n"
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadProfile(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.VCS.Branch != "main" || cfg.Logging.Level != "info" || cfg.Basemap.Attribution != DefaultBasemapAttribution {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ProfileConfig)
		want   string
	}{
		{"profile name", func(c *ProfileConfig) { c.ProfileName = "" }, "profileName"},
		{"db path", func(c *ProfileConfig) { c.Storage.DBPath = "" }, "storage.dbPath"},
		{"socket", func(c *ProfileConfig) { c.IPC.SocketPath = "" }, "ipc.socketPath"},
		{"vis url", func(c *ProfileConfig) { c.VisServer.URL = "ftp://tiles" }, "visServer.url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultProfile("x")
			tc.mutate(cfg)
			err := cfg.validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadProfileMissing(t *testing.T) {
	if _, err := LoadProfile(t.TempDir()); !errors.Is(err, ErrNoConfig) {
		t.Fatalf("expected ErrNoConfig, got %v", err)
	}
}

func TestResolvePath(t *testing.T) {
	if got := ResolvePath("/profiles/dev", "state.db"); got != filepath.Join("/profiles/dev", "state.db") {
		t.Fatalf("unexpected relative resolution %s", got)
	}
	if got := ResolvePath("/profiles/dev", "/var/state.db"); got != "/var/state.db" {
		t.Fatalf("absolute paths must be kept, got %s", got)
	}
}
