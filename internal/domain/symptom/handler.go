package symptom

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ruralcare/telemed/internal/platform/apperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/symptom-checker/query", h.Query)
}

type queryRequest struct {
	Text string `json:"text"`
}

func (h *Handler) Query(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation(apperr.CodeInvalidInput, "invalid request body")
	}
	return c.JSON(http.StatusOK, h.svc.Query(c.Request().Context(), req.Text))
}
