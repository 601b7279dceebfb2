package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newRoleContext(id *Identity) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if id != nil {
		req = req.WithContext(WithIdentity(req.Context(), *id))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestRequireRole_Allowed(t *testing.T) {
	c, rec := newRoleContext(&Identity{UserID: "d1", Role: RoleDoctor})

	err := RequireRole(RoleDoctor, RolePharmacy)(okHandler)(c)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	c, _ := newRoleContext(&Identity{UserID: "p1", Role: RolePatient})

	err := RequireRole(RoleDoctor)(okHandler)(c)
	if err == nil {
		t.Fatal("expected error for unauthorized role")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestRequireRole_NoIdentity(t *testing.T) {
	c, _ := newRoleContext(nil)

	err := RequireRole(RolePatient)(okHandler)(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestIsSelf(t *testing.T) {
	c, _ := newRoleContext(&Identity{UserID: "u1", Role: RolePatient})
	if !IsSelf(c, "u1") {
		t.Error("expected IsSelf to match own id")
	}
	if IsSelf(c, "u2") {
		t.Error("expected IsSelf to reject other id")
	}
}

func TestCallerID(t *testing.T) {
	want := uuid.New()
	c, _ := newRoleContext(&Identity{UserID: want.String(), Role: RolePatient})
	got, ok := CallerID(c.Request().Context())
	if !ok || got != want {
		t.Errorf("expected %s, got %s (ok=%v)", want, got, ok)
	}

	c, _ = newRoleContext(&Identity{UserID: "not-a-uuid"})
	if _, ok := CallerID(c.Request().Context()); ok {
		t.Error("expected non-uuid subject to be rejected")
	}

	c, _ = newRoleContext(nil)
	if _, ok := CallerID(c.Request().Context()); ok {
		t.Error("expected missing identity to be rejected")
	}
}
