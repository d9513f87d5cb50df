package credentials

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"pamana/notes/internal/config"
	"pamana/notes/internal/logging"
)

// Open picks the store named by cfg.CredentialStore. The returned closer
// releases any connection the store holds.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (Store, func() error, error) {
	logger = logging.OrDefault(logger)
	noop := func() error { return nil }

	switch cfg.CredentialStore {
	case "memory":
		return NewMemoryStore(), noop, nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, nil, errors.New("redis credential store requires REDIS_ADDR")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, errors.Wrap(err, "redis ping failed")
		}
		logger.Debug("credential store opened", "kind", "redis", "profile", cfg.Profile)
		return NewRedisStore(client, cfg.Profile), client.Close, nil
	case "", "file":
		store, err := NewFileStore(cfg.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		logger.Debug("credential store opened", "kind", "file", "path", cfg.CredentialsFile)
		return store, noop, nil
	default:
		return nil, nil, errors.Errorf("unknown credential store %q", cfg.CredentialStore)
	}
}
