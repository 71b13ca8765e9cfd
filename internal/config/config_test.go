package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromPathMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "authd.yaml")
	body := `
listenAddr: "127.0.0.1:9000"
challenge:
  ttl: 2m
redis:
  addr: "localhost:6379"
ledger:
  baseUrl: "http://ledger:3000"
  adminPublicKey: "ab"
rateLimits:
  - route: challenge
    max: 5
    window: 30s
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Fatalf("listenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Challenge.TTL != 2*time.Minute {
		t.Fatalf("challenge ttl = %v", cfg.Challenge.TTL)
	}
	// File did not set session ttl, default survives.
	if cfg.Session.TTL != 30*time.Minute {
		t.Fatalf("session ttl = %v", cfg.Session.TTL)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("redis addr = %q", cfg.Redis.Addr)
	}
	if len(cfg.RateLimits) != 1 || cfg.RateLimits[0].Max != 5 {
		t.Fatalf("rate limits = %+v", cfg.RateLimits)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "authd.yaml")
	if err := os.WriteFile(path, []byte(`listenAddr: ":1111"`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("NS_LISTEN_ADDR", ":2222")
	t.Setenv("NS_CHALLENGE_TTL", "90s")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.ListenAddr != ":2222" {
		t.Fatalf("listenAddr = %q, want env override", cfg.ListenAddr)
	}
	if cfg.Challenge.TTL != 90*time.Second {
		t.Fatalf("challenge ttl = %v", cfg.Challenge.TTL)
	}
}

func TestMalformedEnvOverridesAreRejected(t *testing.T) {
	cases := []struct{ name, value string }{
		{"NS_CHALLENGE_TTL", "fivemins"},
		{"NS_SESSION_TTL", "30"},
		{"NS_REDIS_DB", "one"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.name, tc.value)
			if _, err := LoadFromPath(""); err == nil {
				t.Fatalf("%s=%q accepted", tc.name, tc.value)
			}
		})
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "authd.yaml")
	if err := os.WriteFile(path, []byte("challenge:\n  ttl: -5s\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFromPath(path); err == nil {
		t.Fatal("negative challenge ttl accepted")
	}
}

func TestMissingDefaultLocationsFallBackToDefaults(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "definitely-missing.yaml"))
	if err == nil {
		t.Fatal("explicit missing path should error")
	}
	_ = cfg

	// With no explicit path, missing candidates are fine.
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	os.Chdir(t.TempDir())
	cfg, err = LoadFromPath("")
	if err != nil {
		t.Fatalf("LoadFromPath(\"\"): %v", err)
	}
	if cfg.ListenAddr != ":8545" {
		t.Fatalf("listenAddr = %q, want default", cfg.ListenAddr)
	}
}
