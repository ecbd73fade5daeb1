// Package rate implements a fixed-window admission gate on Redis.
// Each (class, address) pair gets a counter that lives for one window;
// the first increment arms the expiry. When Redis is unreachable the
// gate fails open: throttling is protective, not load-bearing, and a
// degraded limiter must not take authentication down with it.
package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "rl:"

// Limit is the admission budget for one traffic class.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Default classes. Unknown classes fall back to "default".
const (
	ClassLogin    = "login"
	ClassRegister = "register"
	ClassDefault  = "default"
)

// DefaultLimits returns the stock per-class budgets.
func DefaultLimits() map[string]Limit {
	return map[string]Limit{
		ClassLogin:    {Requests: 10, Window: time.Minute},
		ClassRegister: {Requests: 5, Window: time.Minute},
		ClassDefault:  {Requests: 50, Window: time.Second},
	}
}

// Gate admits or denies requests per class and source address.
type Gate struct {
	client redis.UniversalClient
	limits map[string]Limit
	log    *zap.Logger
}

// NewGate builds a gate. Nil limits means DefaultLimits.
func NewGate(client redis.UniversalClient, limits map[string]Limit, log *zap.Logger) *Gate {
	if limits == nil {
		limits = DefaultLimits()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{client: client, limits: limits, log: log}
}

// Allow records one attempt and reports whether it fits the window.
// Denied attempts still count, so hammering a closed window keeps it
// closed.
func (g *Gate) Allow(ctx context.Context, class, addr string) bool {
	limit, ok := g.limits[class]
	if !ok {
		limit, ok = g.limits[ClassDefault]
		if !ok {
			return true
		}
	}

	key := fmt.Sprintf("%s%s:%s", keyPrefix, class, addr)
	count, err := g.client.Incr(ctx, key).Result()
	if err != nil {
		g.log.Warn("rate gate degraded, admitting request",
			zap.String("class", class),
			zap.Error(err))
		return true
	}
	if count == 1 {
		if err := g.client.Expire(ctx, key, limit.Window).Err(); err != nil {
			g.log.Warn("rate gate could not arm window expiry",
				zap.String("class", class),
				zap.Error(err))
		}
	}
	return count <= int64(limit.Requests)
}

// Remaining reports how many requests are left in the current window
// without consuming one. Store errors degrade to the full budget.
func (g *Gate) Remaining(ctx context.Context, class, addr string) int {
	limit, ok := g.limits[class]
	if !ok {
		limit, ok = g.limits[ClassDefault]
		if !ok {
			return 0
		}
	}
	key := fmt.Sprintf("%s%s:%s", keyPrefix, class, addr)
	count, err := g.client.Get(ctx, key).Int64()
	if err != nil {
		return limit.Requests
	}
	remaining := limit.Requests - int(count)
	if remaining < 0 {
		return 0
	}
	return remaining
}
