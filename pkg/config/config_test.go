package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rubiojr/timetrip/pkg/timeline"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	return dir
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	dir := isolate(t)
	cfg, err := LoadConfig(filepath.Join(dir, "nope.toml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.APIURL != DefaultAPIURL || cfg.Shell.Port != DefaultShellPort {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.DefaultStartYear != timeline.DefaultStartYear || cfg.DefaultEndYear != timeline.DefaultEndYear {
		t.Fatalf("default range = [%d, %d]", cfg.DefaultStartYear, cfg.DefaultEndYear)
	}
	if cfg.Crossfade.Duration.Duration != 2*time.Second || cfg.Clusters.Grace.Duration != 2*time.Second {
		t.Fatalf("timers = %+v %+v", cfg.Crossfade, cfg.Clusters)
	}
	if !strings.HasSuffix(cfg.StorageDir, filepath.Join("data", "timetrip")) {
		t.Fatalf("storage dir = %s", cfg.StorageDir)
	}
}

func TestLoadFile(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, `
api_url = "https://timeline.example.com"
request_timeout = "15s"
default_start_year = -3000
default_end_year = 1500

[crossfade]
duration = "750ms"
reduced_motion = true

[highlight]
settle_delay = "120ms"

[spatial]
default_radius = 250.0

[shell]
port = 9000
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.APIURL != "https://timeline.example.com" || cfg.RequestTimeout.Duration != 15*time.Second {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.DefaultStartYear != -3000 || cfg.DefaultEndYear != 1500 {
		t.Fatalf("range = [%d, %d]", cfg.DefaultStartYear, cfg.DefaultEndYear)
	}
	if !cfg.Crossfade.ReducedMotion || cfg.Crossfade.Duration.Duration != 750*time.Millisecond {
		t.Fatalf("crossfade = %+v", cfg.Crossfade)
	}
	if cfg.Highlight.SettleDelay.Duration != 120*time.Millisecond || cfg.Spatial.DefaultRadius != 250 {
		t.Fatalf("highlight/spatial = %+v %+v", cfg.Highlight, cfg.Spatial)
	}
	// Unset keys keep their defaults.
	if cfg.Shell.Host != DefaultShellHost || cfg.ShellAddr() != "localhost:9000" {
		t.Fatalf("shell = %+v", cfg.Shell)
	}
	if cfg.Clusters.Grace.Duration != 2*time.Second {
		t.Fatalf("grace = %s", cfg.Clusters.Grace)
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, `api_url = "http://file.example"`)
	t.Setenv("TIMETRIP_API_URL", "http://env.example:5000")
	t.Setenv("TIMETRIP_REDUCED_MOTION", "true")
	t.Setenv("TIMETRIP_CLUSTER_GRACE", "5s")
	t.Setenv("TIMETRIP_SHELL_PORT", "9999")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.APIURL != "http://env.example:5000" {
		t.Fatalf("api url = %s", cfg.APIURL)
	}
	if !cfg.Crossfade.ReducedMotion || cfg.Clusters.Grace.Duration != 5*time.Second || cfg.Shell.Port != 9999 {
		t.Fatalf("cfg = %+v", cfg)
	}

	t.Setenv("TIMETRIP_SHELL_PORT", "not-a-port")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected an error for a malformed override")
	}
}

func TestValidate(t *testing.T) {
	dir := isolate(t)
	tests := []struct {
		name string
		body string
	}{
		{"bad scheme", `api_url = "ftp://x"`},
		{"inverted range", "default_start_year = 10\ndefault_end_year = 5"},
		{"negative fade", "[crossfade]\nduration = \"-1s\""},
		{"negative radius", "[spatial]\ndefault_radius = -3.0"},
		{"port", "[shell]\nport = 70000"},
		{"bad duration", `request_timeout = "soon"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, dir, tt.body)); err == nil {
				t.Fatalf("expected %s to be rejected", tt.name)
			}
		})
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	dir := isolate(t)
	cfg, err := GetDefaultConfig()
	if err != nil {
		t.Fatal(err)
	}
	cfg.APIURL = "https://api.example.org"
	path := filepath.Join(dir, "nested", "config.toml")
	if err := cfg.SaveTemplateConfig(path); err != nil {
		t.Fatalf("SaveTemplateConfig: %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), cfg.StorageDir) || strings.Contains(string(data), "/home/user/.local/share/timetrip") {
		t.Fatal("storage dir placeholder not replaced")
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("loading generated template: %v", err)
	}
	if loaded.APIURL != "https://api.example.org" || loaded.StorageDir != cfg.StorageDir {
		t.Fatalf("loaded = %+v", loaded)
	}
	if loaded.Spatial.DefaultRadius != 500 || loaded.Shell.Port != 8787 {
		t.Fatalf("sample values not loaded: %+v", loaded)
	}
}

func TestSaveConfig(t *testing.T) {
	dir := isolate(t)
	cfg, _ := GetDefaultConfig()
	cfg.Crossfade.Duration = Duration{1500 * time.Millisecond}
	path := filepath.Join(dir, "saved.toml")
	if err := cfg.SaveConfig(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Crossfade.Duration.Duration != 1500*time.Millisecond {
		t.Fatalf("duration = %s", loaded.Crossfade.Duration)
	}
}
