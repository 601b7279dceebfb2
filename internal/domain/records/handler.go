package records

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ruralcare/telemed/internal/platform/apperr"
	"github.com/ruralcare/telemed/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/records")
	g.POST("/create", h.Create, auth.RequireRole(auth.RoleDoctor))
	g.GET("/:patientId", h.List)
	g.GET("/:patientId/download", h.Download)
}

func callerIdentity(c echo.Context) (auth.Identity, error) {
	id, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return auth.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return id, nil
}

func patientParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return uuid.Nil, apperr.Validation(apperr.CodeInvalidInput, "invalid patient id")
	}
	return id, nil
}

func (h *Handler) Create(c echo.Context) error {
	doctor, ok := auth.CallerID(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation(apperr.CodeInvalidInput, "invalid request body")
	}
	rec, err := h.svc.Create(c.Request().Context(), doctor, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) List(c echo.Context) error {
	caller, err := callerIdentity(c)
	if err != nil {
		return err
	}
	patientID, err := patientParam(c)
	if err != nil {
		return err
	}
	recs, err := h.svc.List(c.Request().Context(), caller, patientID)
	if err != nil {
		return err
	}
	if recs == nil {
		recs = []*Record{}
	}
	return c.JSON(http.StatusOK, recs)
}

func (h *Handler) Download(c echo.Context) error {
	caller, err := callerIdentity(c)
	if err != nil {
		return err
	}
	patientID, err := patientParam(c)
	if err != nil {
		return err
	}
	export, err := h.svc.Export(c.Request().Context(), caller, patientID)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename="+export.FileName)
	if export.ArchiveID != "" {
		c.Response().Header().Set("X-Archive-Id", export.ArchiveID)
	}
	return c.Blob(http.StatusOK, "application/pdf", export.Content)
}
