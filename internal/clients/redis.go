package clients

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"school-fees/pkg/cache/redis"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	MaxRetries  int
	DialTimeout time.Duration
	Timeout     time.Duration

	Prefix  string
	LockTTL time.Duration
}

type RedisClient struct {
	raw     *redis.Client
	prefix  string
	lockTTL time.Duration
}

const lockPollInterval = 50 * time.Millisecond

// releases the lock only when it is still held by the caller's token
var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisClient(cfg RedisConfig) (*RedisClient, error) {
	rdb, err := redis.NewRedisConnection(redis.ConnectionInfo{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: cfg.DialTimeout,
		Timeout:     cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	prefix := cfg.Prefix
	if prefix == "" {
		if envPrefix := os.Getenv("REDIS_PREFIX"); envPrefix != "" {
			prefix = envPrefix
		} else {
			prefix = "school_fees_"
		}
	}

	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}

	return &RedisClient{
		raw:     rdb,
		prefix:  prefix,
		lockTTL: lockTTL,
	}, nil
}

func (c *RedisClient) Close() {
	if c.raw == nil {
		return
	}
	redis.Close(c.raw)
}

func (c *RedisClient) withPrefix(key string) string {
	return c.prefix + key
}

func (c *RedisClient) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.raw.Set(ctx, c.withPrefix(key), value, ttl).Err()
}

func (c *RedisClient) Get(ctx context.Context, key string) (string, error) {
	return c.raw.Get(ctx, c.withPrefix(key)).Result()
}

func (c *RedisClient) SAdd(ctx context.Context, key string, members ...any) error {
	return c.raw.SAdd(ctx, c.withPrefix(key), members...).Err()
}

func (c *RedisClient) SMembers(ctx context.Context, key string) ([]string, error) {
	return c.raw.SMembers(ctx, c.withPrefix(key)).Result()
}

func (c *RedisClient) SRem(ctx context.Context, key string, members ...any) error {
	return c.raw.SRem(ctx, c.withPrefix(key), members...).Err()
}

// Lock acquires a lease on key shared by every replica talking to the same redis.
// It polls until the lease is free or ctx is done. The lease expires after the
// configured TTL so a crashed holder cannot block generation forever.
func (c *RedisClient) Lock(ctx context.Context, key string) (func(), error) {
	full := c.withPrefix("lock:" + key)
	token := uuid.NewString()

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		ok, err := c.raw.SetNX(ctx, full, token, c.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %q: %w", key, err)
		}
		if ok {
			return func() {
				// detached from the request so a cancelled request still frees the lease
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = unlockScript.Run(releaseCtx, c.raw, []string{full}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(fmt.Errorf("acquire lock %q", key), ctx.Err())
		case <-ticker.C:
		}
	}
}

// IsRedisNil reports whether err means the key does not exist.
func IsRedisNil(err error) bool {
	return errors.Is(err, goredis.Nil)
}
