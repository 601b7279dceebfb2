package middleware

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

type SecurityConfig struct {
	// HSTSMaxAge enables Strict-Transport-Security when positive (seconds).
	HSTSMaxAge int
	// CacheablePrefixes lists path prefixes whose responses may be cached.
	// Everything else carries patient or order data and is marked no-store.
	CacheablePrefixes []string
}

func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		CacheablePrefixes: []string{"/api/pharmacy/all", "/api/users/doctors"},
	}
}

// SecurityHeaders hardens API responses. Responses are no-store unless their
// path has a cacheable prefix.
func SecurityHeaders(cfg SecurityConfig) echo.MiddlewareFunc {
	hsts := ""
	if cfg.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.Itoa(cfg.HSTSMaxAge) + "; includeSubDomains"
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			if hsts != "" {
				h.Set("Strict-Transport-Security", hsts)
			}
			if !cacheable(c.Request().URL.Path, cfg.CacheablePrefixes) {
				h.Set("Cache-Control", "no-store")
			}
			return next(c)
		}
	}
}

func cacheable(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
