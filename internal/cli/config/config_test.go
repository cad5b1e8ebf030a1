package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.AdminAddr != "127.0.0.1:9180" || cfg.Output != "table" || cfg.ServerConfig != "" {
		t.Errorf("Default() = %+v", cfg)
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()
	if filepath.Base(path) != "cli.yaml" || filepath.Base(filepath.Dir(path)) != ".clinvault" {
		t.Errorf("DefaultConfigPath() = %q", path)
	}
}

func TestLoad_Missing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *cfg != *Default() {
		t.Errorf("Load(missing) = %+v", cfg)
	}
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	if err := os.WriteFile(path, []byte("output: json\nserver_config: /etc/clinvault/server.yaml\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Output != "json" || cfg.ServerConfig != "/etc/clinvault/server.yaml" {
		t.Errorf("loaded %+v", cfg)
	}
	if cfg.AdminAddr != Default().AdminAddr {
		t.Errorf("AdminAddr = %q, want default", cfg.AdminAddr)
	}
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	if err := os.WriteFile(path, []byte("output: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load should fail on malformed YAML")
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "cli.yaml")
	want := &CLIConfig{ServerConfig: "/srv/server.yaml", AdminAddr: "127.0.0.1:1", Output: "yaml"}

	if err := Save(want, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if *got != *want {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
}
