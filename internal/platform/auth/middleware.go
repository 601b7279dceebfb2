package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const identityKey contextKey = "identity"

// Roles a user may hold.
const (
	RolePatient  = "patient"
	RoleDoctor   = "doctor"
	RolePharmacy = "pharmacy"
)

// Identity is the authenticated caller attached to every request context.
type Identity struct {
	UserID string
	Role   string
	Name   string
}

// Claims is the bearer token payload.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
	Name string `json:"name"`
}

// TokenIssuer signs and verifies HS256 bearer tokens.
type TokenIssuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &TokenIssuer{key: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for id.
func (ti *TokenIssuer) Issue(id Identity) (string, error) {
	now := ti.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
		},
		Role: id.Role,
		Name: id.Name,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses tokenStr and returns the identity it carries.
func (ti *TokenIssuer) Verify(tokenStr string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return ti.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(ti.now))
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("token has no subject")
	}
	return Identity{UserID: claims.Subject, Role: claims.Role, Name: claims.Name}, nil
}

// JWTMiddleware requires a valid bearer token and stores the Identity in the
// request context. Paths for which skip returns true pass through untouched.
func JWTMiddleware(issuer *TokenIssuer, skip func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skip != nil && skip(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			id, err := issuer.Verify(parts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), id)))
			return next(c)
		}
	}
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

func UserIDFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.UserID
}

// CallerID returns the authenticated user id parsed as a UUID.
func CallerID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return uuid.Nil, false
	}
	parsed, err := uuid.Parse(id.UserID)
	if err != nil {
		return uuid.Nil, false
	}
	return parsed, true
}

func RoleFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.Role
}

// PublicPaths are routes reachable without a bearer token.
var PublicPaths = map[string]bool{
	"/health":                          true,
	"/health/db":                       true,
	"/metrics":                         true,
	"/ws":                              true,
	"/api/auth/register":               true,
	"/api/auth/login":                  true,
	"/api/symptom-checker/query":       true,
	"/api/pharmacy/all":                true,
	"/api/pharmacy/:id":                true,
	"/api/pharmacy/:id/medicines":      true,
	"/api/pharmacy/search/stock/:name": true,
}

// Skipper reports whether the matched route is public.
func Skipper(c echo.Context) bool {
	return PublicPaths[c.Path()]
}
