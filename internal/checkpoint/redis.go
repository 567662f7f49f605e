package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/zhouzirui/finpilot/backend/internal/model/chat"
)

// RedisConfig configures the Redis checkpoint backend.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// TTL expires idle sessions; zero keeps them forever.
	TTL time.Duration
}

// ConnGetter hands out Redis connections. *redis.Pool satisfies it.
type ConnGetter interface {
	GetContext(ctx context.Context) (redis.Conn, error)
}

// RedisStore keeps checkpoints as encoded strings under KeyPrefix+sessionID.
type RedisStore struct {
	pool   ConnGetter
	prefix string
	ttl    time.Duration
}

// NewRedisPool builds a connection pool for cfg.
func NewRedisPool(cfg RedisConfig) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     8,
		IdleTimeout: 5 * time.Minute,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", cfg.Addr,
				redis.DialPassword(cfg.Password),
				redis.DialDatabase(cfg.DB),
				redis.DialConnectTimeout(5*time.Second),
			)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// NewRedisStore wraps a pool.
func NewRedisStore(pool ConnGetter, cfg RedisConfig) *RedisStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "session:"
	}
	return &RedisStore{pool: pool, prefix: prefix, ttl: cfg.TTL}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// Load fetches and decodes the checkpoint.
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*chat.Session, error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("get redis connection: %w", err)
	}
	defer conn.Close()

	data, err := redis.Bytes(redis.DoContext(conn, ctx, "GET", s.key(sessionID)))
	if errors.Is(err, redis.ErrNil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", sessionID, err)
	}
	return Decode(data)
}

// Save encodes and writes the checkpoint, refreshing the TTL when set.
func (s *RedisStore) Save(ctx context.Context, sessionID string, session *chat.Session) error {
	if sessionID == "" {
		return ErrSessionIDRequired
	}

	data, err := Encode(session)
	if err != nil {
		return err
	}

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("get redis connection: %w", err)
	}
	defer conn.Close()

	args := []any{s.key(sessionID), data}
	if s.ttl > 0 {
		args = append(args, "PX", s.ttl.Milliseconds())
	}
	if _, err := redis.DoContext(conn, ctx, "SET", args...); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", sessionID, err)
	}
	return nil
}
