package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadSubstitutesEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("REPLICA_DSN", "postgres://replica@db/replica_wallets")

	dir := t.TempDir()
	path := filepath.Join(dir, "replica.yaml")
	contents := `
environment: staging
group:
  key_index: 1
  threshold: 1
  peer_commits_hex: ["aa", "bb"]
signer:
  secret_key_share_path: /run/secrets/share.hex
event_store:
  dsn: "${REPLICA_DSN}"
genesis:
  enabled: true
  amount_nano: 1000000
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.EventStore.DSN != "postgres://replica@db/replica_wallets" {
		t.Fatalf("dsn = %q, want substituted value", cfg.EventStore.DSN)
	}
	if cfg.Group.KeyIndex != 1 || cfg.Group.Threshold != 1 {
		t.Fatalf("unexpected group settings: %+v", cfg.Group)
	}
	if cfg.Server.ListenAddr != ":8443" {
		t.Fatalf("listen addr default = %q, want :8443", cfg.Server.ListenAddr)
	}
	if cfg.Server.ReadTimeout.Duration() != 10*time.Second {
		t.Fatalf("read timeout default = %s, want 10s", cfg.Server.ReadTimeout.Duration())
	}
	if !cfg.Genesis.Enabled || cfg.Genesis.AmountNano != 1000000 {
		t.Fatalf("unexpected genesis settings: %+v", cfg.Genesis)
	}
}

func TestLoadEnvDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "replica.yaml")
	contents := `
event_store:
  dsn: "${REPLICA_DSN_UNSET:-postgres://localhost/replica}"
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EventStore.DSN != "postgres://localhost/replica" {
		t.Fatalf("dsn = %q, want default fallback", cfg.EventStore.DSN)
	}
}
