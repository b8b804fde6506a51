package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	DefaultTTL          = 30 * time.Second
	DefaultRetryBackoff = 50 * time.Millisecond
	defaultKeyPrefix    = "procshift:lock:"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every process connected to the same Redis
// server. A held lock expires after its TTL if the holder disappears.
type Redis struct {
	client  redis.UniversalClient
	logger  *slog.Logger
	ttl     time.Duration
	backoff time.Duration
	prefix  string
}

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

// WithTTL sets how long a lock survives without being released.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

// WithRetryBackoff sets the pause between acquisition attempts.
func WithRetryBackoff(d time.Duration) RedisOption {
	return func(r *Redis) { r.backoff = d }
}

// WithKeyPrefix sets the prefix prepended to instance ids.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// NewRedis wraps client. The client is owned by the caller.
func NewRedis(client redis.UniversalClient, logger *slog.Logger, opts ...RedisOption) *Redis {
	r := &Redis{
		client:  client,
		logger:  logger.With("module", "redis_lock"),
		ttl:     DefaultTTL,
		backoff: DefaultRetryBackoff,
		prefix:  defaultKeyPrefix,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// NewRedisFromURL parses a redis:// URL, pings the server and returns a
// locker that owns the client.
func NewRedisFromURL(ctx context.Context, url string, logger *slog.Logger, opts ...RedisOption) (*Redis, func() error, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", options.Addr, "db", options.DB)

	return NewRedis(client, logger, opts...), client.Close, nil
}

func (r *Redis) Lock(ctx context.Context, instanceID string) (func(), error) {
	key := r.prefix + instanceID
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}

			return nil, fmt.Errorf("failed to acquire lock for %s: %w", instanceID, err)
		}

		if ok {
			break
		}

		timer := time.NewTimer(r.backoff)

		select {
		case <-ctx.Done():
			timer.Stop()

			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return func() {
		// The caller's context may already be cancelled.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := r.release(releaseCtx, key, token); err != nil {
			r.logger.WarnContext(releaseCtx, "Failed to release lock", "instance_id", instanceID, "error", err)
		}
	}, nil
}

func (r *Redis) release(ctx context.Context, key, token string) error {
	deleted, err := releaseScript.Run(ctx, r.client, []string{key}, token).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to run release script: %w", err)
	}

	if deleted == 0 {
		return ErrNotHeld
	}

	return nil
}
