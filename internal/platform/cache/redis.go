// Package cache connects to the Redis instance that holds sessions and the job queue.
package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Options configures the Redis connection shared by sessions and the job queue.
type Options struct {
	Addr     string
	Username string
	Password string
	DB       int
	TLS      *tls.Config
	PoolSize int
}

// ParseOptions reads a redis:// or rediss:// URL. An empty url returns fallback unchanged.
func ParseOptions(url string, fallback Options) (Options, error) {
	if url == "" {
		return fallback, nil
	}
	parsed, err := redis.ParseURL(url)
	if err != nil {
		return Options{}, fmt.Errorf("platform/cache: parse url: %w", err)
	}
	return Options{
		Addr:     parsed.Addr,
		Username: parsed.Username,
		Password: parsed.Password,
		DB:       parsed.DB,
		TLS:      parsed.TLSConfig,
		PoolSize: fallback.PoolSize,
	}, nil
}

func (o Options) client() *redis.Options {
	return &redis.Options{
		Addr:        o.Addr,
		Username:    o.Username,
		Password:    o.Password,
		DB:          o.DB,
		TLSConfig:   o.TLS,
		PoolSize:    o.PoolSize,
		DialTimeout: 5 * time.Second,
	}
}

// New connects and pings. The ping is bounded to five seconds regardless of ctx.
func New(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(opts.client())
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping %s: %w", opts.Addr, err)
	}
	return client, nil
}

// AsynqOpt points the job queue at the same Redis.
func (o Options) AsynqOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:      o.Addr,
		Username:  o.Username,
		Password:  o.Password,
		DB:        o.DB,
		TLSConfig: o.TLS,
		PoolSize:  o.PoolSize,
	}
}

// RedisPinger adapts a Redis client to app.Pinger.
type RedisPinger struct {
	Client redis.UniversalClient
}

func (p RedisPinger) Ping(ctx context.Context) error {
	return p.Client.Ping(ctx).Err()
}
