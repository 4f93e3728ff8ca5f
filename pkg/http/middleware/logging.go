package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	applogger "FinRange/pkg/logger"
)

// RequestLogging logs each request; 5xx responses log at error level and
// requests slower than slowThreshold at warn.
func RequestLogging(l *applogger.Logger, slowThreshold time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req, res := c.Request(), c.Response()
			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("route", routeLabel(c)),
				applogger.Int("status", res.Status),
				applogger.Duration("duration_ms", time.Since(start)),
				applogger.Int64("bytes", res.Size),
			}
			switch {
			case res.Status >= 500:
				l.Error("http request failed", fields...)
			case slowThreshold > 0 && time.Since(start) >= slowThreshold:
				l.Warn("http request slow", fields...)
			default:
				l.Debug("http request", fields...)
			}
			return nil
		}
	}
}
