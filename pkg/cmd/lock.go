package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/procshift/pkg/lock"
)

// NewLocker creates the instance lock for provider: "local" (in-process) or
// "redis". The returned close function releases the provider's resources.
func NewLocker(ctx context.Context, logger *slog.Logger, provider, redisURL string) (lock.Locker, func() error, error) {
	switch provider {
	case "", "local":
		return lock.NewLocal(), func() error { return nil }, nil
	case "redis":
		if redisURL == "" {
			return nil, nil, errors.New("redis lock provider requires a redis url")
		}

		locker, closeFn, err := lock.NewRedisFromURL(ctx, redisURL, logger)
		if err != nil {
			return nil, nil, err
		}

		return locker, closeFn, nil
	default:
		return nil, nil, fmt.Errorf("unsupported lock provider: %s", provider)
	}
}
