package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeaders sets the response headers appropriate for a JSON API that
// returns patient information. HSTS is only sent when hsts is true, which the
// server enables outside development.
func SecurityHeaders(hsts bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "0")

			// Nothing is ever rendered, so deny all loading and embedding.
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

			if hsts {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			h.Set("Referrer-Policy", "no-referrer")

			// Care plans carry patient details and must not be cached.
			h.Set("Cache-Control", "no-store")

			return next(c)
		}
	}
}
