package appointment

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
	g := api.Group("/appointments")
	doctor := auth.RequireRole(auth.RoleDoctor)
	patient := auth.RequireRole(auth.RolePatient)

	g.POST("/book", h.Book, patient)
	g.GET("/patient/:id", h.ListForPatient)
	g.GET("/doctor/:id", h.ListForDoctor)
	g.GET("/:id", h.Get)
	g.PUT("/:id/confirm", h.Confirm, doctor)
	g.PUT("/:id/reject", h.Reject, doctor)
	g.PUT("/:id/cancel", h.Cancel, patient)
	g.PUT("/:id/complete", h.Complete)
}

func caller(c echo.Context) (uuid.UUID, error) {
	id, ok := auth.CallerID(c.Request().Context())
	if !ok {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return id, nil
}

// callerAndID returns the authenticated user and the :id path parameter.
func callerAndID(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	user, err := caller(c)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, apperr.Validation(apperr.CodeInvalidInput, "invalid id")
	}
	return user, id, nil
}

func (h *Handler) Book(c echo.Context) error {
	user, err := caller(c)
	if err != nil {
		return err
	}
	var in BookInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation(apperr.CodeInvalidInput, "invalid request body")
	}
	if in.PatientID == uuid.Nil {
		in.PatientID = user
	}
	v, err := h.svc.Book(c.Request().Context(), user, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) Get(c echo.Context) error {
	user, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	v, err := h.svc.Get(c.Request().Context(), user, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) ListForPatient(c echo.Context) error {
	user, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForPatient(c.Request().Context(), user, id, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*View{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListForDoctor(c echo.Context) error {
	user, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForDoctor(c.Request().Context(), user, id, c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*View{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Confirm(c echo.Context) error {
	user, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	var in ConfirmInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation(apperr.CodeInvalidInput, "invalid request body")
	}
	v, err := h.svc.Confirm(c.Request().Context(), user, id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

// reasonBody accepts the reason under its generic or legacy key.
type reasonBody struct {
	Reason          string `json:"reason"`
	RejectionReason string `json:"rejectionReason"`
}

func (b reasonBody) text() string {
	if b.Reason != "" {
		return b.Reason
	}
	return b.RejectionReason
}

func (h *Handler) Reject(c echo.Context) error {
	user, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	var body reasonBody
	if err := c.Bind(&body); err != nil {
		return apperr.Validation(apperr.CodeInvalidInput, "invalid request body")
	}
	v, err := h.svc.Reject(c.Request().Context(), user, id, body.text())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) Cancel(c echo.Context) error {
	user, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	var body reasonBody
	if err := c.Bind(&body); err != nil {
		return apperr.Validation(apperr.CodeInvalidInput, "invalid request body")
	}
	v, err := h.svc.Cancel(c.Request().Context(), user, id, body.text())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) Complete(c echo.Context) error {
	user, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	v, err := h.svc.Complete(c.Request().Context(), user, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}
