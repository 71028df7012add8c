package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medcmd/src/logger"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	contextKeyPrefix = "context:"
	lockKeyPrefix    = "context-lock:"

	// sessionLockTTL bounds how long a crashed holder can block a session.
	sessionLockTTL    = 30 * time.Second
	lockRetryInterval = 20 * time.Millisecond
)

// unlockScript deletes the lock only if this holder still owns it.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps each session as one JSON document whose Redis TTL follows
// the latest entry expiry, so abandoned sessions disappear on their own.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore connects to redisURL and checks the connection.
func NewRedisStore(ctx context.Context, redisURL string, opts ...Option) (*RedisStore, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}

	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}

	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreFromClient(client, opts...), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, opts ...Option) *RedisStore {
	s := newSettings(opts)
	return &RedisStore{client: client, now: s.now}
}

func (r *RedisStore) key(sessionID string) string {
	return contextKeyPrefix + sessionID
}

func (r *RedisStore) Load(ctx context.Context, sessionID string) (map[string]Entry, error) {
	data, err := r.client.Get(ctx, r.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return map[string]Entry{}, nil
		}
		return nil, fmt.Errorf("failed to load context: %w", err)
	}

	entries := map[string]Entry{}
	if err := sonic.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context: %w", err)
	}
	return entries, nil
}

func (r *RedisStore) Save(ctx context.Context, sessionID string, entries map[string]Entry) error {
	var latest time.Time
	for _, e := range entries {
		if e.ExpiresAt.After(latest) {
			latest = e.ExpiresAt
		}
	}

	ttl := latest.Sub(r.now())
	if len(entries) == 0 || ttl <= 0 {
		return r.Delete(ctx, sessionID)
	}

	data, err := sonic.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}
	if err := r.client.Set(ctx, r.key(sessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save context: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete context: %w", err)
	}
	return nil
}

// LockSession takes a lock shared by every process using this Redis, waiting
// until it is free or ctx is done.
func (r *RedisStore) LockSession(ctx context.Context, sessionID string) (func(), error) {
	key := lockKeyPrefix + sessionID
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, key, token, sessionLockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to lock session: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to lock session: %w", ctx.Err())
		case <-time.After(lockRetryInterval):
		}
	}

	return func() {
		if err := unlockScript.Run(context.Background(), r.client, []string{key}, token).Err(); err != nil {
			logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to release session lock")
		}
	}, nil
}

func (r *RedisStore) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
