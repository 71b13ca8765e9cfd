// Package config loads daemon configuration from YAML with NS_* environment
// overrides layered on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string      `yaml:"listenAddr"`
	DataDir    string      `yaml:"dataDir"`
	Challenge  Challenge   `yaml:"challenge"`
	Session    Session     `yaml:"session"`
	Redis      Redis       `yaml:"redis"`
	Ledger     Ledger      `yaml:"ledger"`
	RateLimits []RateLimit `yaml:"rateLimits"`
}

type Challenge struct {
	TTL time.Duration `yaml:"ttl"`
}

type Session struct {
	TTL time.Duration `yaml:"ttl"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Ledger struct {
	BaseURL           string        `yaml:"baseUrl"`
	AdminPublicKeyHex string        `yaml:"adminPublicKey"`
	RequestTimeout    time.Duration `yaml:"requestTimeout"`
}

// RateLimit is a fixed-window cap for one route class.
type RateLimit struct {
	Route  string        `yaml:"route"`
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

func Default() Config {
	return Config{
		ListenAddr: ":8545",
		DataDir:    "data",
		Challenge:  Challenge{TTL: 5 * time.Minute},
		Session:    Session{TTL: 30 * time.Minute},
		Ledger:     Ledger{RequestTimeout: 10 * time.Second},
		RateLimits: []RateLimit{
			{Route: "challenge", Max: 30, Window: time.Minute},
			{Route: "verify", Max: 30, Window: time.Minute},
		},
	}
}

// LoadFromPath reads configPath when given, otherwise tries the usual
// locations, then applies env overrides. A missing file is not an error;
// an unreadable or invalid one is.
func LoadFromPath(configPath string) (Config, error) {
	cfg := Default()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates,
			"configs/authd.yaml",
			"/etc/nullspace/authd.yaml",
		)
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if configPath != "" {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
			continue
		}
		var parsed Config
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		merge(&cfg, parsed)
		break
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func merge(dst *Config, src Config) {
	if src.ListenAddr != "" {
		dst.ListenAddr = src.ListenAddr
	}
	if src.DataDir != "" {
		dst.DataDir = src.DataDir
	}
	if src.Challenge.TTL != 0 {
		dst.Challenge.TTL = src.Challenge.TTL
	}
	if src.Session.TTL != 0 {
		dst.Session.TTL = src.Session.TTL
	}
	if src.Redis.Addr != "" {
		dst.Redis = src.Redis
	}
	if src.Ledger.BaseURL != "" {
		dst.Ledger.BaseURL = src.Ledger.BaseURL
	}
	if src.Ledger.AdminPublicKeyHex != "" {
		dst.Ledger.AdminPublicKeyHex = src.Ledger.AdminPublicKeyHex
	}
	if src.Ledger.RequestTimeout != 0 {
		dst.Ledger.RequestTimeout = src.Ledger.RequestTimeout
	}
	if src.RateLimits != nil {
		dst.RateLimits = src.RateLimits
	}
}

// applyEnvOverrides rejects unparseable values: a typo'd override silently
// falling back to defaults is worse than a refused start.
func applyEnvOverrides(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("NS_LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("NS_DATA_DIR")); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("NS_REDIS_ADDR")); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("NS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := strings.TrimSpace(os.Getenv("NS_LEDGER_URL")); v != "" {
		cfg.Ledger.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("NS_ADMIN_PUBLIC_KEY")); v != "" {
		cfg.Ledger.AdminPublicKeyHex = v
	}
	if v := strings.TrimSpace(os.Getenv("NS_CHALLENGE_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("NS_CHALLENGE_TTL: %w", err)
		}
		cfg.Challenge.TTL = d
	}
	if v := strings.TrimSpace(os.Getenv("NS_SESSION_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("NS_SESSION_TTL: %w", err)
		}
		cfg.Session.TTL = d
	}
	if v := strings.TrimSpace(os.Getenv("NS_REDIS_DB")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("NS_REDIS_DB: %w", err)
		}
		cfg.Redis.DB = n
	}
	return nil
}

func (c Config) validate() error {
	if c.ListenAddr == "" {
		return errors.New("listenAddr must not be empty")
	}
	if c.Challenge.TTL <= 0 {
		return errors.New("challenge.ttl must be a positive duration")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session.ttl must be a positive duration")
	}
	for _, rl := range c.RateLimits {
		if rl.Route == "" || rl.Max <= 0 || rl.Window <= 0 {
			return fmt.Errorf("rate limit for route %q is invalid", rl.Route)
		}
	}
	return nil
}
