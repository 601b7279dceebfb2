package pharmacy

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ruralcare/telemed/internal/platform/apperr"
	"github.com/ruralcare/telemed/internal/platform/auth"
	"github.com/ruralcare/telemed/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/pharmacy")
	owner := auth.RequireRole(auth.RolePharmacy)
	patient := auth.RequireRole(auth.RolePatient)

	// Public catalog
	g.GET("/all", h.ListPharmacies)
	g.GET("/search/stock/:name", h.SearchStock)
	g.GET("/:id", h.GetPharmacy)
	g.GET("/:id/medicines", h.ListMedicines)

	// Owner
	g.POST("/create", h.CreatePharmacy, owner)
	g.GET("/my/profile", h.MyPharmacy, owner)
	g.PUT("/my/profile", h.UpdatePharmacy, owner)
	g.POST("/medicines", h.AddMedicine, owner)
	g.GET("/my/medicines", h.MyMedicines, owner)
	g.PUT("/medicines/:id", h.UpdateMedicine, owner)
	g.DELETE("/medicines/:id", h.DeleteMedicine, owner)
	g.GET("/my/orders", h.ListPharmacyOrders, owner)
	g.PUT("/orders/:orderId/status", h.UpdateOrderStatus, owner)

	// Customer
	g.GET("/cart/:pharmacyId", h.GetCart, patient)
	g.POST("/cart/add", h.AddToCart, patient)
	g.PUT("/cart/:pharmacyId/:medicineId", h.UpdateCartItem, patient)
	g.DELETE("/cart/:pharmacyId/clear", h.ClearCart, patient)
	g.DELETE("/cart/:pharmacyId/:medicineId", h.RemoveCartItem, patient)
	g.POST("/orders", h.Checkout, patient)
	g.GET("/my/patient-orders", h.ListCustomerOrders, patient)

	g.GET("/orders/:orderId", h.GetOrder)
}

func bindErr() error {
	return apperr.Validation(apperr.CodeInvalidInput, "invalid request body")
}

func caller(c echo.Context) (uuid.UUID, error) {
	id, ok := auth.CallerID(c.Request().Context())
	if !ok {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return id, nil
}

func parseID(c echo.Context, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		return uuid.Nil, apperr.Validation(apperr.CodeInvalidInput, "invalid %s", param)
	}
	return id, nil
}

// -- Pharmacy --

func (h *Handler) ListPharmacies(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := PharmacyFilter{Search: c.QueryParam("search"), Location: c.QueryParam("location")}
	items, total, err := h.svc.ListPharmacies(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Pharmacy{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetPharmacy(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.GetPharmacy(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CreatePharmacy(c echo.Context) error {
	owner, err := caller(c)
	if err != nil {
		return err
	}
	var in PharmacyInput
	if err := c.Bind(&in); err != nil {
		return bindErr()
	}
	p, err := h.svc.CreatePharmacy(c.Request().Context(), owner, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) MyPharmacy(c echo.Context) error {
	owner, err := caller(c)
	if err != nil {
		return err
	}
	p, err := h.svc.MyPharmacy(c.Request().Context(), owner)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePharmacy(c echo.Context) error {
	owner, err := caller(c)
	if err != nil {
		return err
	}
	var in PharmacyInput
	if err := c.Bind(&in); err != nil {
		return bindErr()
	}
	p, err := h.svc.UpdatePharmacy(c.Request().Context(), owner, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// -- Medicine --

func medicineFilter(c echo.Context) MedicineFilter {
	return MedicineFilter{Search: c.QueryParam("search"), Category: c.QueryParam("category")}
}

func (h *Handler) ListMedicines(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListMedicines(c.Request().Context(), id, medicineFilter(c), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Medicine{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) MyMedicines(c echo.Context) error {
	owner, err := caller(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.MyMedicines(c.Request().Context(), owner, medicineFilter(c), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Medicine{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) SearchStock(c echo.Context) error {
	matches, err := h.svc.SearchStock(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	if matches == nil {
		matches = []*StockMatch{}
	}
	return c.JSON(http.StatusOK, matches)
}

func (h *Handler) AddMedicine(c echo.Context) error {
	owner, err := caller(c)
	if err != nil {
		return err
	}
	var in MedicineInput
	if err := c.Bind(&in); err != nil {
		return bindErr()
	}
	m, err := h.svc.AddMedicine(c.Request().Context(), owner, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) UpdateMedicine(c echo.Context) error {
	owner, err := caller(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in MedicineInput
	if err := c.Bind(&in); err != nil {
		return bindErr()
	}
	m, err := h.svc.UpdateMedicine(c.Request().Context(), owner, id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) DeleteMedicine(c echo.Context) error {
	owner, err := caller(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteMedicine(c.Request().Context(), owner, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Cart --

func (h *Handler) GetCart(c echo.Context) error {
	user, err := caller(c)
	if err != nil {
		return err
	}
	pharmacyID, err := parseID(c, "pharmacyId")
	if err != nil {
		return err
	}
	cart, err := h.svc.GetCart(c.Request().Context(), user, pharmacyID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cart)
}

func (h *Handler) AddToCart(c echo.Context) error {
	user, err := caller(c)
	if err != nil {
		return err
	}
	var in AddToCartInput
	if err := c.Bind(&in); err != nil {
		return bindErr()
	}
	cart, err := h.svc.AddItem(c.Request().Context(), user, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cart)
}

func (h *Handler) UpdateCartItem(c echo.Context) error {
	user, err := caller(c)
	if err != nil {
		return err
	}
	pharmacyID, err := parseID(c, "pharmacyId")
	if err != nil {
		return err
	}
	medicineID, err := parseID(c, "medicineId")
	if err != nil {
		return err
	}
	var body struct {
		Quantity int `json:"quantity"`
	}
	if err := c.Bind(&body); err != nil {
		return bindErr()
	}
	cart, err := h.svc.UpdateItem(c.Request().Context(), user, pharmacyID, medicineID, body.Quantity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cart)
}

func (h *Handler) RemoveCartItem(c echo.Context) error {
	user, err := caller(c)
	if err != nil {
		return err
	}
	pharmacyID, err := parseID(c, "pharmacyId")
	if err != nil {
		return err
	}
	medicineID, err := parseID(c, "medicineId")
	if err != nil {
		return err
	}
	cart, err := h.svc.RemoveItem(c.Request().Context(), user, pharmacyID, medicineID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cart)
}

func (h *Handler) ClearCart(c echo.Context) error {
	user, err := caller(c)
	if err != nil {
		return err
	}
	pharmacyID, err := parseID(c, "pharmacyId")
	if err != nil {
		return err
	}
	cart, err := h.svc.ClearCart(c.Request().Context(), user, pharmacyID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cart)
}

// -- Orders --

func (h *Handler) Checkout(c echo.Context) error {
	user, err := caller(c)
	if err != nil {
		return err
	}
	var in CheckoutInput
	if err := c.Bind(&in); err != nil {
		return bindErr()
	}
	o, err := h.svc.Checkout(c.Request().Context(), user, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) GetOrder(c echo.Context) error {
	id, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	o, err := h.svc.GetOrder(c.Request().Context(), id, c.Param("orderId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) ListCustomerOrders(c echo.Context) error {
	user, err := caller(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	orders, total, err := h.svc.ListCustomerOrders(c.Request().Context(), user, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if orders == nil {
		orders = []*Order{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(orders, total, pg))
}

func (h *Handler) ListPharmacyOrders(c echo.Context) error {
	owner, err := caller(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	orders, total, err := h.svc.ListPharmacyOrders(c.Request().Context(), owner, c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if orders == nil {
		orders = []*Order{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(orders, total, pg))
}

func (h *Handler) UpdateOrderStatus(c echo.Context) error {
	owner, err := caller(c)
	if err != nil {
		return err
	}
	var in StatusUpdateInput
	if err := c.Bind(&in); err != nil {
		return bindErr()
	}
	o, err := h.svc.UpdateOrderStatus(c.Request().Context(), owner, c.Param("orderId"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}
