package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"filedrop/internal/server/service"

	"github.com/labstack/echo/v4"
)

const adminIDKey = "admin_id"

// bearerToken extracts the session token from the Authorization header.
func bearerToken(c echo.Context) string {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

// AdminID returns the authenticated admin's ID set by SessionAuth.
func AdminID(c echo.Context) string {
	id, _ := c.Get(adminIDKey).(string)
	return id
}

// SessionAuth returns an echo middleware that validates the bearer session
// token on every request and stores the admin ID in the request context.
// Missing, unknown and expired tokens all get the same answer.
func SessionAuth(auth *service.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c)
			if token == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}

			adminID, err := auth.Validate(c.Request().Context(), token)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}

			c.Set(adminIDKey, adminID)
			return next(c)
		}
	}
}

// RequestLogger returns an echo middleware that logs requests using slog.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			slog.Info("request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"latency_ms", time.Since(start).Milliseconds(),
				"ip", c.RealIP(),
				"user_agent", req.UserAgent(),
				"bytes_out", res.Size,
			)

			return err
		}
	}
}
