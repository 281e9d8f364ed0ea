package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"

	refreshCookiePath = "/api/v1/auth/refresh"
)

// CookieConfig governs how tokens ride on the response. The refresh cookie
// is scoped to the refresh route, so browsers never attach it elsewhere.
type CookieConfig struct {
	AccessTTL time.Duration `mapstructure:"access_ttl"`
	Secure    bool          `mapstructure:"secure"`
}

func setAccessCookie(c echo.Context, tok string, cfg CookieConfig) {
	c.SetCookie(&http.Cookie{
		Name:     accessCookie,
		Value:    tok,
		Path:     "/",
		MaxAge:   int(cfg.AccessTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func setRefreshCookie(c echo.Context, tok string, ttl time.Duration, cfg CookieConfig) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookie,
		Value:    tok,
		Path:     refreshCookiePath,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearAuthCookies(c echo.Context, cfg CookieConfig) {
	c.SetCookie(&http.Cookie{
		Name: accessCookie, Value: "", Path: "/", MaxAge: -1,
		HttpOnly: true, Secure: cfg.Secure, SameSite: http.SameSiteStrictMode,
	})
	c.SetCookie(&http.Cookie{
		Name: refreshCookie, Value: "", Path: refreshCookiePath, MaxAge: -1,
		HttpOnly: true, Secure: cfg.Secure, SameSite: http.SameSiteStrictMode,
	})
}
