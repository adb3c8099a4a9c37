package ratelimit

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/walrusgate/contentgate/common/logger"
)

//go:embed rate_limit.lua
var routeScript string

// Bucket names the counter that decided a request
type Bucket string

const (
	BucketGlobal   Bucket = "global"
	BucketIdentity Bucket = "identity"
)

// Decision is the outcome of one rate limit check. When the request is
// rejected, Bucket, Count and Limit describe the counter that tripped.
type Decision struct {
	Allowed           bool
	Bucket            Bucket
	Count             int64
	Limit             int64
	RetryAfterSeconds int64
}

// RateLimiter applies fixed-window route limits using Redis + Lua
type RateLimiter struct {
	redis  *redis.Client
	script *redis.Script
	log    *logger.Logger
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(client *redis.Client, log *logger.Logger) *RateLimiter {
	return &RateLimiter{
		redis:  client,
		script: redis.NewScript(routeScript),
		log:    log,
	}
}

func globalKey(scope string) string {
	return "rate_limit:global:" + scope
}

func identityKey(scope, identity string) string {
	return "rate_limit:identity:" + scope + ":" + identity
}

// Allow counts one request against route's global limit and, unless
// identity is empty, its per-identity limit. Both counters are updated in
// one script call.
func (r *RateLimiter) Allow(ctx context.Context, route RouteLimit, identity string) (*Decision, error) {
	route = route.Normalize()

	keys := []string{globalKey(route.Scope)}
	if identity != "" {
		keys = append(keys, identityKey(route.Scope, identity))
	}

	raw, err := r.script.Run(ctx, r.redis, keys, route.Global, route.PerUser, route.WindowSeconds).Int64Slice()
	if err != nil {
		r.log.Error("rate limit check failed", "scope", route.Scope, "error", err)
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(raw) != 5 {
		return nil, fmt.Errorf("unexpected rate limit script result: %v", raw)
	}

	d := &Decision{
		Allowed:           raw[0] == 1,
		Bucket:            BucketGlobal,
		Count:             raw[2],
		Limit:             raw[3],
		RetryAfterSeconds: raw[4],
	}
	if raw[1] == 2 {
		d.Bucket = BucketIdentity
	}

	if !d.Allowed {
		r.log.Warn("rate limit exceeded",
			"scope", route.Scope,
			"bucket", d.Bucket,
			"identity", identity,
			"count", d.Count,
			"retry_after", d.RetryAfterSeconds)
	}
	return d, nil
}
