package pharmacy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruralcare/telemed/internal/platform/apperr"
	"github.com/ruralcare/telemed/internal/platform/auth"
)

// newTestServer mounts the routes behind a stub that trusts the
// X-Test-User / X-Test-Role headers in place of a bearer token.
func newTestServer(t *testing.T) (*fixture, *echo.Echo) {
	t.Helper()
	f := newFixture(t, DefaultConfig())
	e := echo.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(zerolog.Nop())
	api := e.Group("/api", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if user := c.Request().Header.Get("X-Test-User"); user != "" {
				id := auth.Identity{UserID: user, Role: c.Request().Header.Get("X-Test-Role")}
				c.SetRequest(c.Request().WithContext(auth.WithIdentity(c.Request().Context(), id)))
			}
			return next(c)
		}
	})
	NewHandler(f.svc).RegisterRoutes(api)
	return f, e
}

func do(e *echo.Echo, method, path, body string, user uuid.UUID, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if user != uuid.Nil {
		req.Header.Set("X-Test-User", user.String())
		req.Header.Set("X-Test-Role", role)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestHandler_PublicCatalog(t *testing.T) {
	f, e := newTestServer(t)
	f.addMedicine(t, "Paracetamol", "20", "0", 100)

	rec := do(e, http.MethodGet, "/api/pharmacy/all?search=village", "", uuid.Nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	rec = do(e, http.MethodGet, "/api/pharmacy/"+f.pharmacy.ID.String()+"/medicines", "", uuid.Nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"medicineName":"Paracetamol"`)
	assert.Contains(t, rec.Body.String(), `"stockStatus":"in-stock"`)

	rec = do(e, http.MethodGet, "/api/pharmacy/search/stock/para", "", uuid.Nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pharmacyName":"Village Care Pharmacy"`)

	rec = do(e, http.MethodGet, "/api/pharmacy/not-a-uuid", "", uuid.Nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_RoleGating(t *testing.T) {
	f, e := newTestServer(t)
	patient := uuid.New()

	rec := do(e, http.MethodPost, "/api/pharmacy/medicines", `{"medicineName":"X","price":1,"quantity":1}`, patient, auth.RolePatient)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(e, http.MethodGet, "/api/pharmacy/cart/"+f.pharmacy.ID.String(), "", f.owner, auth.RolePharmacy)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(e, http.MethodGet, "/api/pharmacy/cart/"+f.pharmacy.ID.String(), "", uuid.Nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_CartToOrderFlow(t *testing.T) {
	f, e := newTestServer(t)
	patient := uuid.New()
	a := f.addMedicine(t, "A", "100", "0", 10)
	b := f.addMedicine(t, "B", "50", "0", 10)

	for _, line := range []struct {
		id  uuid.UUID
		qty int
	}{{a.ID, 2}, {b.ID, 4}} {
		body := fmt.Sprintf(`{"pharmacyId":%q,"medicineId":%q,"quantity":%d}`, f.pharmacy.ID, line.id, line.qty)
		rec := do(e, http.MethodPost, "/api/pharmacy/cart/add", body, patient, auth.RolePatient)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	checkout := fmt.Sprintf(`{"pharmacyId":%q,"orderType":"delivery","deliveryAddress":{"name":"Asha","phone":"9","addressLine1":"H4","city":"Kothur","state":"TS","pincode":"509228"}}`, f.pharmacy.ID)
	rec := do(e, http.MethodPost, "/api/pharmacy/orders", checkout, patient, auth.RolePatient)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var order struct {
		OrderID     string `json:"orderId"`
		TotalAmount string `json:"totalAmount"`
		DeliveryFee string `json:"deliveryFee"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, "450", order.TotalAmount)
	assert.Equal(t, "50", order.DeliveryFee)

	rec = do(e, http.MethodPut, "/api/pharmacy/orders/"+order.OrderID+"/status",
		`{"status":"confirmed","note":"Stock verified"}`, f.owner, auth.RolePharmacy)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"note":"Stock verified"`)

	rec = do(e, http.MethodGet, "/api/pharmacy/orders/"+order.OrderID, "", patient, auth.RolePatient)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"confirmed"`)

	rec = do(e, http.MethodGet, "/api/pharmacy/my/orders?status=confirmed", "", f.owner, auth.RolePharmacy)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	rec = do(e, http.MethodPost, "/api/pharmacy/orders", checkout, patient, auth.RolePatient)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperr.CodeEmptyCart, errorCode(t, rec))
}

func TestHandler_InsufficientStockIsConflict(t *testing.T) {
	f, e := newTestServer(t)
	patient := uuid.New()
	a := f.addMedicine(t, "A", "10", "0", 1)

	body := fmt.Sprintf(`{"pharmacyId":%q,"medicineId":%q,"quantity":5}`, f.pharmacy.ID, a.ID)
	rec := do(e, http.MethodPost, "/api/pharmacy/cart/add", body, patient, auth.RolePatient)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperr.CodeInsufficientStock, errorCode(t, rec))
}

func TestHandler_CartItemRoutes(t *testing.T) {
	f, e := newTestServer(t)
	patient := uuid.New()
	a := f.addMedicine(t, "A", "10", "0", 10)
	f.add(t, patient, a, 2)
	base := "/api/pharmacy/cart/" + f.pharmacy.ID.String()

	rec := do(e, http.MethodPut, base+"/"+a.ID.String(), `{"quantity":5}`, patient, auth.RolePatient)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"totalAmount":"50"`)

	rec = do(e, http.MethodDelete, base+"/clear", "", patient, auth.RolePatient)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"items":[]`)

	rec = do(e, http.MethodPut, base+"/"+a.ID.String(), `{"quantity":"many"}`, patient, auth.RolePatient)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
