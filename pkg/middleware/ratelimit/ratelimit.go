package ratelimitmw

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/retro_games/pkg/logging"
	"github.com/Skotchmaster/retro_games/pkg/ratelimit"
)

// ByIP limits requests per client IP in the given bucket. Limiter errors fail open.
// onLimited hooks run before a rejected request is answered with 429.
func ByIP(l ratelimit.Limiter, bucket string, onLimited ...func(c echo.Context)) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if l == nil {
				return next(c)
			}
			ctx := c.Request().Context()
			ok, err := l.AllowNamed(ctx, bucket, c.RealIP())
			if err != nil {
				logging.FromContext(ctx).Error("rate_limit_error", "bucket", bucket, "error", err)
				return next(c)
			}
			if !ok {
				logging.FromContext(ctx).Warn("rate_limited", "status", 429, "bucket", bucket)
				for _, fn := range onLimited {
					fn(c)
				}
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
			}
			return next(c)
		}
	}
}
