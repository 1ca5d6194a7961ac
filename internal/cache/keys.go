package cache

import (
	"context"
	"fmt"
	"log/slog"

	"slotswap/internal/middleware"
)

const (
	SwapListKeyPrefix = "swaps:list:"
	swapListKeyFormat = SwapListKeyPrefix + "course=%s:status=%s"

	// BlacklistKeyPrefix prefixes revoked JWT ids.
	BlacklistKeyPrefix = "blacklist:"
)

// SwapListKey is the listing cache key for one courseCode/status filter pair.
// Empty filters are part of the key.
func SwapListKey(courseCode, status string) string {
	return fmt.Sprintf(swapListKeyFormat, courseCode, status)
}

// BlacklistKey is the key marking a revoked token id.
func BlacklistKey(jti string) string {
	return BlacklistKeyPrefix + jti
}

// InvalidateSwapLists drops every cached listing. Any write to a swap
// request can change the result of any filter combination.
func InvalidateSwapLists(ctx context.Context) {
	if client == nil {
		return
	}
	iter := client.Scan(ctx, 0, SwapListKeyPrefix+"*", 100).Iterator()
	batch := make([]string, 0, 100)
	for iter.Next(ctx) {
		if batch = append(batch, iter.Val()); len(batch) == cap(batch) {
			client.Unlink(ctx, batch...)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "scan swap list cache keys", slog.String("error", err.Error()))
	}
	if len(batch) > 0 {
		client.Unlink(ctx, batch...)
	}
}
