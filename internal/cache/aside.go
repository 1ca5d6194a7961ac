package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"slotswap/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// Remember returns the value cached under key, or calls load and caches its
// result for ttl. Cache failures never fail the call: a broken or missing
// Redis degrades to calling load every time. A non-positive ttl skips the
// cache.
func Remember[T any](ctx context.Context, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if ttl <= 0 || client == nil {
		return load()
	}

	var cached T
	hit, err := lookup(ctx, key, &cached)
	if err != nil {
		middleware.Logger.DebugContext(ctx, "cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	if hit {
		return cached, nil
	}

	fresh, err := load()
	if err != nil {
		return fresh, err
	}
	if raw, merr := json.Marshal(fresh); merr == nil {
		client.Set(ctx, key, raw, ttl)
	}
	return fresh, nil
}

func lookup(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}
