package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"pi-storefront/internal/common/config"
	"pi-storefront/internal/features/session/repository"
	"pi-storefront/internal/features/session/repository/file"
	"pi-storefront/internal/features/session/repository/memory"
	redisstore "pi-storefront/internal/features/session/repository/redis"
	"pi-storefront/internal/features/session/sdk"
	"pi-storefront/internal/features/session/service"
	"pi-storefront/internal/features/session/verifier"
	"pi-storefront/internal/platform/redis"
)

// openStore picks the persisted record backend. The returned func releases it.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, func(), error) {
	switch cfg.Session.Store {
	case config.StoreMemory:
		return memory.NewStore(), func() {}, nil
	case config.StoreRedis:
		client, err := redis.Open(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis store: %w", err)
		}
		return redisstore.NewStore(client, client.KeyPrefix), func() { _ = client.Close() }, nil
	default:
		path := cfg.Session.FilePath
		if path == "" {
			var err error
			if path, err = file.DefaultPath(); err != nil {
				return nil, nil, fmt.Errorf("resolve session file: %w", err)
			}
		}
		return file.NewStore(path), func() {}, nil
	}
}

func newLocator(cfg *config.Config) sdk.Locator {
	if cfg.Session.BridgePath == "" {
		return sdk.Absent
	}
	return sdk.NewFileBridge(cfg.Session.BridgePath)
}

func newManager(cfg *config.Config, store repository.Store, lg zerolog.Logger, notices io.Writer) *service.Manager {
	return service.NewManager(
		store,
		newLocator(cfg),
		verifier.NewClient(cfg.Session.VerifyURL, cfg.Session.VerifyTimeout),
		service.NewWriterNotifier(notices),
		lg,
		service.Options{
			Interactive:  cfg.Session.Interactive,
			PollInterval: cfg.Session.PollInterval,
			TokenTimeout: cfg.Session.TokenTimeout,
			DevAutoLogin: cfg.Session.DevAutoLogin,
		},
	)
}
