package auth

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

const identityKey = "auth.identity"

// RequireAuth gates a route group behind a valid, non-revoked access token.
// The resolved identity is stored per request on the echo context, never on
// shared state.
func RequireAuth(uc *Usecase) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tok := accessTokenFrom(c)
			if tok == "" {
				return fail(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			}
			id, err := uc.Authenticate(c.Request().Context(), tok)
			if err != nil {
				if errors.Is(err, ErrStoreUnavailable) {
					return fail(c, http.StatusServiceUnavailable, "store_unavailable", "service temporarily unavailable")
				}
				return fail(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			}
			c.Set(identityKey, id)
			return next(c)
		}
	}
}

func IdentityFrom(c echo.Context) (Identity, bool) {
	id, ok := c.Get(identityKey).(Identity)
	return id, ok
}
