package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const identityKey contextKey = "identity"

// publicPaths lists URL paths that bypass authentication. These are the
// login endpoint and infrastructure endpoints that must be reachable without
// credentials.
var publicPaths = map[string]bool{
	"/health":     true,
	"/health/db":  true,
	"/auth/login": true,
	"/docs":       true,
}

// Skipper returns true for requests whose path should skip authentication.
func Skipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// Middleware is the gateway filter. Every request either matches a public
// path and is forwarded untouched, or must carry a well-formed
// "Authorization: Bearer <token>" header. Header absence or malformation is
// rejected before the verifier is invoked. On success the caller identity is
// attached to the request context and trusted downstream.
func Middleware(verifier *Verifier, skipper func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			identity, err := verifier.Verify(parts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}

			ctx := context.WithValue(c.Request().Context(), identityKey, identity)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// IdentityFromContext returns the identity the gateway attached, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// SubjectFromContext returns the authenticated subject, or "" when the
// request was not authenticated (public paths).
func SubjectFromContext(ctx context.Context) string {
	id, _ := ctx.Value(identityKey).(Identity)
	return id.Subject
}
