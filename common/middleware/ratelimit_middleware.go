package middleware

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/walrusgate/contentgate/common/ratelimit"
)

// IdentityFunc extracts the resolved caller identity from a request.
// It returns "" for anonymous callers.
type IdentityFunc func(c echo.Context) string

var rejections = map[ratelimit.Bucket]struct{ code, message string }{
	ratelimit.BucketGlobal: {
		"global_rate_limit_exceeded",
		"Service is experiencing high load. Please try again later.",
	},
	ratelimit.BucketIdentity: {
		"user_rate_limit_exceeded",
		"You have exceeded your request quota. Please wait before trying again.",
	},
}

// RateLimitMiddleware applies a route's global and per-identity limits.
// Limits fail open: a Redis error lets the request through.
func RateLimitMiddleware(rateLimiter *ratelimit.RateLimiter, route ratelimit.RouteLimit, identity IdentityFunc) echo.MiddlewareFunc {
	route = route.Normalize()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			who := identity(c)

			d, err := rateLimiter.Allow(c.Request().Context(), route, who)
			if err != nil || d.Allowed {
				return next(c)
			}

			reject := rejections[d.Bucket]
			details := map[string]interface{}{
				"limit":               d.Limit,
				"current_count":       d.Count,
				"retry_after_seconds": d.RetryAfterSeconds,
			}
			if d.Bucket == ratelimit.BucketIdentity {
				details["identity"] = who
			}

			c.Response().Header().Set("Retry-After", strconv.FormatInt(d.RetryAfterSeconds, 10))
			return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
				"error":   reject.code,
				"message": reject.message,
				"details": details,
			})
		}
	}
}
