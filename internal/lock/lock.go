// Package lock keeps two deploy runs from sending transactions for the same
// network at once.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Sentinel errors
var (
	ErrLocked  = errors.New("palmdeploy: another deploy run holds the lock")
	ErrNotHeld = errors.New("palmdeploy: lock expired or taken over")
)

// DefaultTTL bounds how long a crashed run can block others. A live run
// extends its lock every third of the TTL.
const DefaultTTL = 10 * time.Minute

// ReleaseFunc gives the lock back.
type ReleaseFunc func(ctx context.Context) error

// Locker hands out per-network locks.
type Locker interface {
	Acquire(ctx context.Context, network string) (ReleaseFunc, error)
}

// NoopLocker always succeeds. It is used when no redis is configured.
type NoopLocker struct{}

// Acquire implements Locker.
func (NoopLocker) Acquire(context.Context, string) (ReleaseFunc, error) {
	return func(context.Context) error { return nil }, nil
}

// redisClient is the part of *redis.Client the locker uses.
type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// releaseScript deletes the key only if it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// extendScript resets the TTL only if the key still holds our token.
const extendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`

// RedisLocker is a single-instance redis lock: SET NX PX, a
// compare-and-PEXPIRE renewal while held, and a compare-and-delete release.
type RedisLocker struct {
	client redisClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisLocker creates a locker on client.
func NewRedisLocker(client redisClient, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLocker{client: client, ttl: ttl, logger: logger}
}

// Key returns the redis key for network.
func Key(network string) string {
	return fmt.Sprintf("palmdeploy:lock:%s", strings.ToLower(network))
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, network string) (ReleaseFunc, error) {
	key := Key(network)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, key)
	}

	l.logger.Debug("deploy lock acquired",
		slog.String("key", key),
		slog.Duration("ttl", l.ttl),
	)

	renewCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	renewed := make(chan struct{})
	go l.renew(renewCtx, key, token, renewed)

	return func(ctx context.Context) error {
		stop()
		<-renewed

		n, err := l.client.Eval(ctx, releaseScript, []string{key}, token).Int64()
		if err != nil {
			return fmt.Errorf("release lock: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrNotHeld, key)
		}
		l.logger.Debug("deploy lock released", slog.String("key", key))
		return nil
	}, nil
}

// renew extends the lock every third of the TTL until ctx is done or the
// lock is lost.
func (l *RedisLocker) renew(ctx context.Context, key, token string, done chan<- struct{}) {
	defer close(done)

	interval := l.ttl / 3
	if interval <= 0 {
		interval = l.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := l.client.Eval(ctx, extendScript, []string{key}, token, l.ttl.Milliseconds()).Int64()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Warn("failed to extend deploy lock", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}
		if n == 0 {
			l.logger.Error("deploy lock lost", slog.String("key", key))
			return
		}
		l.logger.Debug("deploy lock extended", slog.String("key", key))
	}
}

// Open returns a redis locker for redisURL, or a NoopLocker when it is
// empty, plus a close function.
func Open(ctx context.Context, redisURL string, ttl time.Duration, logger *slog.Logger) (Locker, func(), error) {
	if redisURL == "" {
		return NoopLocker{}, func() {}, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisLocker(client, ttl, logger), func() { client.Close() }, nil
}

var (
	_ Locker = NoopLocker{}
	_ Locker = (*RedisLocker)(nil)
)
