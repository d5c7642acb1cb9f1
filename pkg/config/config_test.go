package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zerozero.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  address: 127.0.0.1
  port: 7117
storage:
  data_path: /tmp/zz
security:
  api_key: s3cret
queue:
  ttl: 48h
deliver:
  max_payload: 64KB
  drain_timeout: 500ms
retention:
  enabled: true
  cron: "0 * * * *"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:7117" {
		t.Fatalf("addr: %q", cfg.Addr())
	}
	if cfg.Queue.TTL.Duration() != 48*time.Hour {
		t.Fatalf("ttl: %v", cfg.Queue.TTL.Duration())
	}
	if cfg.Deliver.MaxPayload.Int64() != 64000 {
		t.Fatalf("max payload: %d", cfg.Deliver.MaxPayload.Int64())
	}
	if cfg.Deliver.DrainTimeout.Duration() != 500*time.Millisecond {
		t.Fatalf("drain timeout: %v", cfg.Deliver.DrainTimeout.Duration())
	}
	if !cfg.Retention.Enabled || cfg.Retention.Cron != "0 * * * *" {
		t.Fatalf("retention: %+v", cfg.Retention)
	}
}

func TestDurationNumericSeconds(t *testing.T) {
	path := writeConfig(t, "queue:\n  ttl: 90\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Queue.TTL.Duration() != 90*time.Second {
		t.Fatalf("ttl: %v", cfg.Queue.TTL.Duration())
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	if _, err := Load(path); err == nil {
		t.Fatal("bad yaml accepted")
	}
}

func TestParseConfigEnvs(t *testing.T) {
	t.Setenv("ZEROZERO_ADDR", "0.0.0.0:9000")
	t.Setenv("ZEROZERO_API_KEY", "k1")
	t.Setenv("ZEROZERO_QUEUE_TTL", "12h")
	t.Setenv("ZEROZERO_NOTIFY_URL", "https://relay.example")
	cfg, used := ParseConfigEnvs()
	if !used {
		t.Fatal("env not detected")
	}
	if cfg.Addr() != "0.0.0.0:9000" || cfg.Security.APIKey != "k1" {
		t.Fatalf("env config: %+v", cfg)
	}
	if cfg.Queue.TTL.Duration() != 12*time.Hour || cfg.Notify.URL != "https://relay.example" {
		t.Fatalf("env config: %+v", cfg)
	}
}

func TestLoadEffectivePrecedence(t *testing.T) {
	fileCfg := &Config{}
	fileCfg.Server.Address = "127.0.0.1"
	fileCfg.Server.Port = 7000
	fileCfg.Storage.DataPath = "/file/data"
	envCfg := &Config{}
	envCfg.Server.Address = "10.0.0.1"
	envCfg.Server.Port = 8000

	// explicit --config requires the file
	if _, err := LoadEffectiveConfig(Flags{Config: "/missing.yaml", Set: map[string]bool{"config": true}}, &Config{}, false, envCfg); err == nil {
		t.Fatal("missing explicit config accepted")
	}

	// explicit flags win
	res, err := LoadEffectiveConfig(Flags{Addr: ":9999", Set: map[string]bool{"addr": true}}, fileCfg, true, envCfg)
	if err != nil {
		t.Fatalf("flags: %v", err)
	}
	if res.Source != "flags" || res.Addr != ":9999" || res.DataPath != "/file/data" {
		t.Fatalf("flags result: %+v", res)
	}

	// then the file
	res, err = LoadEffectiveConfig(Flags{Set: map[string]bool{}}, fileCfg, true, envCfg)
	if err != nil || res.Source != "config" || res.Addr != "127.0.0.1:7000" {
		t.Fatalf("file result: %v %+v", err, res)
	}

	// env fallback, with defaults filled in
	res, err = LoadEffectiveConfig(Flags{Set: map[string]bool{}}, &Config{}, false, envCfg)
	if err != nil || res.Source != "env" || res.Addr != "10.0.0.1:8000" || res.DataPath != DefaultDataPath {
		t.Fatalf("env result: %v %+v", err, res)
	}
}
