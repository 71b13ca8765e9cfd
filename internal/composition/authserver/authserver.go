// Package authserver wires configuration, stores, signer and transport into
// a runnable auth daemon.
package authserver

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"nullspace/go-auth/internal/challenge"
	"nullspace/go-auth/internal/config"
	"nullspace/go-auth/internal/httpapi"
	"nullspace/go-auth/internal/keysigner"
	"nullspace/go-auth/internal/ledger"
	"nullspace/go-auth/internal/metrics"
	"nullspace/go-auth/internal/platform/privacylog"
	"nullspace/go-auth/internal/securestore"
	"nullspace/go-auth/internal/session"

	"github.com/redis/go-redis/v9"
)

// New builds the daemon from a config path. The returned server owns the
// listen socket; Run blocks until the context is cancelled.
func New(ctx context.Context, configPath string) (*httpapi.Server, error) {
	cfg, err := config.LoadFromPath(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(privacylog.WrapHandler(slog.NewJSONHandler(os.Stderr, nil)))
	slog.SetDefault(logger)

	dir, err := securestore.NewDirStore(filepath.Join(cfg.DataDir, "keys"))
	if err != nil {
		return nil, err
	}
	deviceStore, err := securestore.NewDeviceStore(dir)
	if err != nil {
		return nil, err
	}
	signer := keysigner.New(deviceStore)

	var redisClient redis.UniversalClient
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var store challenge.Store
	if redisClient != nil {
		store = challenge.NewRedisStore(redisClient)
	} else {
		store = challenge.NewMemoryStore()
	}
	challenges, err := challenge.NewService(store, cfg.Challenge.TTL)
	if err != nil {
		return nil, err
	}
	sessions, err := session.NewIssuer(signer, cfg.Session.TTL)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	srv := httpapi.NewServer(cfg.ListenAddr, challenges, sessions, cfg.RateLimits, m, logger)

	// Surface keyring problems at startup rather than on the first request.
	if _, err := signer.PublicKey(ctx); err != nil {
		return nil, err
	}

	if cfg.Ledger.BaseURL != "" && cfg.Ledger.AdminPublicKeyHex != "" {
		client := ledger.NewClient(cfg.Ledger.BaseURL, cfg.Ledger.RequestTimeout)
		var counter ledger.Counter
		if redisClient != nil {
			counter = ledger.NewRedisCounter(redisClient)
		} else {
			counter = ledger.NewLocalCounter()
		}
		// The submitter seeds nonces from its own signing key's account; the
		// configured admin key only decides who may call the endpoint.
		submitter, err := ledger.NewSubmitter(ctx, client, counter, signer)
		if err != nil {
			return nil, err
		}
		srv.EnableAdmin(submitter, cfg.Ledger.AdminPublicKeyHex)
	}
	return srv, nil
}
