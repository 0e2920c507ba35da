// Package redisstore provides the shared third-party token cache and the
// distributed publish lock on Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
)

const lockPrefix = "launchpad:lock:"

// ErrTokenUnavailable is returned when the token key holds no value.
var ErrTokenUnavailable = errors.New("third-party access token is not available")

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Config configures the Redis store.
type Config struct {
	Addr     string
	Password string
	DB       int
	// TokenKey holds the third-party platform access token, maintained by
	// the platform integration.
	TokenKey string
	LockTTL  time.Duration
	// RetryInterval is the wait between lock attempts.
	RetryInterval time.Duration
}

// Store implements TokenSource and LockManager.
type Store struct {
	client        *redis.Client
	tokenKey      string
	lockTTL       time.Duration
	retryInterval time.Duration
	logger        *slog.Logger
}

// Ensure Store implements the interfaces.
var (
	_ ports.TokenSource = (*Store)(nil)
	_ ports.LockManager = (*Store)(nil)
)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}

	ttl := cfg.LockTTL
	if ttl == 0 {
		ttl = time.Minute
	}
	retry := cfg.RetryInterval
	if retry == 0 {
		retry = 50 * time.Millisecond
	}
	return &Store{
		client:        client,
		tokenKey:      cfg.TokenKey,
		lockTTL:       ttl,
		retryInterval: retry,
		logger:        slog.Default().With("component", "redis_store"),
	}, nil
}

// ThirdPartyToken returns the cached third-party platform access token.
func (s *Store) ThirdPartyToken(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, s.tokenKey).Result()
	if err == redis.Nil || (err == nil && token == "") {
		return "", ErrTokenUnavailable
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", s.tokenKey, err)
	}
	return token, nil
}

// Acquire takes the lock for key, polling until it is free or ctx is done.
// The lock expires after the configured TTL if its holder dies.
func (s *Store) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := lockPrefix + key
	token := uuid.NewString()

	for {
		ok, err := s.client.SetNX(ctx, redisKey, token, s.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquiring lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for lock %s: %w", key, ctx.Err())
		case <-time.After(s.retryInterval):
		}
	}

	release := func() {
		// Use a fresh context: the caller's may already be canceled.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, s.client, []string{redisKey}, token).Err(); err != nil {
			s.logger.Warn("failed to release lock", "key", key, "error", err)
		}
	}
	return release, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the connection.
func (s *Store) Close() error {
	return s.client.Close()
}
