// Package cache holds the shared Redis client and the swap listing cache
// built on it.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"slotswap/internal/middleware"
	"slotswap/internal/observability"

	"github.com/redis/go-redis/v9"
)

var client *redis.Client

// errorCounter counts failed commands per command name. Misses are not
// failures.
type errorCounter struct{}

func (errorCounter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (errorCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		countFailure(cmd.Name(), err)
		return err
	}
}

func (errorCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		countFailure("pipeline", err)
		return err
	}
}

func countFailure(name string, err error) {
	if err != nil && !errors.Is(err, redis.Nil) {
		observability.RedisErrors.WithLabelValues(name).Inc()
	}
}

func options(addr string) (*redis.Options, error) {
	if strings.Contains(addr, "://") {
		return redis.ParseURL(addr)
	}
	return &redis.Options{Addr: addr}, nil
}

// Connect dials addr, a host:port or redis:// URL, and installs the client
// for the package. It returns nil when Redis is unreachable; the listing
// cache, revocation, quotas and cross-instance events are then off.
func Connect(addr string) *redis.Client {
	opts, err := options(addr)
	if err != nil {
		middleware.Logger.Warn("invalid REDIS_URL, running without redis",
			slog.String("addr", addr), slog.String("error", err.Error()))
		Use(nil)
		return nil
	}

	c := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		middleware.Logger.Warn("redis unreachable, running without redis", slog.String("error", err.Error()))
		_ = c.Close()
		Use(nil)
		return nil
	}

	middleware.Logger.Info("redis connected", slog.String("addr", opts.Addr))
	Use(c)
	return c
}

// Use installs c as the package client. nil disables caching.
func Use(c *redis.Client) {
	if c != nil {
		c.AddHook(errorCounter{})
	}
	client = c
}

// Close releases the package client.
func Close() error {
	if client == nil {
		return nil
	}
	err := client.Close()
	client = nil
	return err
}
