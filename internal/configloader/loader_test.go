// SPDX-License-Identifier: AGPL-3.0-or-later

package configloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/uran-qa/uran/internal/paths"
)

func TestLoadServerConfigMissingFile(t *testing.T) {
	t.Cleanup(func() { paths.SetDataDirOverride("") })

	cfg, err := LoadServerConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if cfg.Bind != "" || cfg.Dev || cfg.Metrics != nil {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}

func TestLoadServerConfigParsesYAML(t *testing.T) {
	t.Cleanup(func() { paths.SetDataDirOverride("") })

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
bind: 0.0.0.0:9090
log: json
dev: true
dev_user_id: 11111111-1111-1111-1111-111111111111
metrics: false
shutdown_seconds: 30
data_dir: ` + dir + `
storage:
  max_bytes: 1048576
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Bind != "0.0.0.0:9090" || cfg.Log != "json" || !cfg.Dev {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Metrics == nil || *cfg.Metrics {
		t.Fatalf("expected metrics disabled, got %+v", cfg.Metrics)
	}
	if cfg.ShutdownSeconds != 30 {
		t.Fatalf("expected shutdown 30s, got %d", cfg.ShutdownSeconds)
	}
	if cfg.Storage.MaxBytes != 1048576 {
		t.Fatalf("expected storage cap, got %d", cfg.Storage.MaxBytes)
	}
	if cfg.DataDir != dir {
		t.Fatalf("expected data dir %s, got %s", dir, cfg.DataDir)
	}
}

func TestLoadServerConfigEnvMapDataDir(t *testing.T) {
	t.Cleanup(func() { paths.SetDataDirOverride("") })

	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	path := filepath.Join(dir, "config.yaml")
	content := `
env:
  DATA_DIR: ` + dataDir + `
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DataDir != dataDir {
		t.Fatalf("expected env-map data dir %s, got %s", dataDir, cfg.DataDir)
	}
	if paths.DataDir() != dataDir {
		t.Fatalf("expected paths override applied, got %s", paths.DataDir())
	}
}

func TestLoadServerConfigRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("bind: [nope"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadServerConfig(path); err == nil {
		t.Fatal("expected decode error")
	}
}
