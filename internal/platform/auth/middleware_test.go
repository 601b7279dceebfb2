package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const testSecret = "test-secret-key-for-unit-tests-only"

func runMiddleware(t *testing.T, issuer *TokenIssuer, header string) (*Identity, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen *Identity
	handler := func(c echo.Context) error {
		if id, ok := IdentityFromContext(c.Request().Context()); ok {
			seen = &id
		}
		return c.String(http.StatusOK, "ok")
	}

	err := JWTMiddleware(issuer, nil)(handler)(c)
	return seen, err
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)
	token, err := issuer.Issue(Identity{UserID: "u1", Role: RoleDoctor, Name: "Dr. Rao"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.UserID != "u1" || id.Role != RoleDoctor || id.Name != "Dr. Rao" {
		t.Errorf("unexpected identity: %+v", id)
	}
}

func TestTokenIssuer_Expired(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := issuer.Issue(Identity{UserID: "u1", Role: RolePatient})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	issuer.now = time.Now
	if _, err := issuer.Verify(token); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestTokenIssuer_WrongKey(t *testing.T) {
	token, err := NewTokenIssuer("other-key", time.Hour).Issue(Identity{UserID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewTokenIssuer(testSecret, time.Hour).Verify(token); err == nil {
		t.Error("expected token signed with another key to be rejected")
	}
}

func TestTokenIssuer_RejectsNoneAlg(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
		Role:             RolePharmacy,
	})
	str, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	if _, err := NewTokenIssuer(testSecret, time.Hour).Verify(str); err == nil {
		t.Error("expected unsigned token to be rejected")
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err := runMiddleware(t, NewTokenIssuer(testSecret, time.Hour), "")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", httpErr.Code)
	}
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runMiddleware(t, NewTokenIssuer(testSecret, time.Hour), tt.header)
			if err == nil {
				t.Fatal("expected error")
			}
			httpErr, ok := err.(*echo.HTTPError)
			if !ok || httpErr.Code != http.StatusUnauthorized {
				t.Errorf("expected 401 HTTPError, got %v", err)
			}
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)
	token, err := issuer.Issue(Identity{UserID: "p1", Role: RolePatient, Name: "Asha"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen, err := runMiddleware(t, issuer, "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen == nil || seen.UserID != "p1" || seen.Role != RolePatient {
		t.Errorf("expected identity in context, got %+v", seen)
	}
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	e := echo.New()
	called := false
	e.Use(JWTMiddleware(NewTokenIssuer(testSecret, time.Hour), Skipper))
	e.GET("/health", func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !called {
		t.Errorf("expected public path to bypass auth, got %d", rec.Code)
	}
}
