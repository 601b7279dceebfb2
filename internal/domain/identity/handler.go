package identity

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
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)

	users := api.Group("/users")
	users.GET("/doctors", h.ListDoctors)
	users.GET("/doctors/specialization", h.DoctorsBySpecialization)
	users.GET("/doctor/:id", h.GetProfile)
	users.GET("/:id", h.GetProfile)
	users.PUT("/:id", h.UpdateProfile)
	users.PUT("/:id/password", h.UpdatePassword)
}

func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation(apperr.CodeInvalidInput, "invalid request body")
	}
	u, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) Login(c echo.Context) error {
	var in LoginInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation(apperr.CodeInvalidInput, "invalid request body")
	}
	res, err := h.svc.Login(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) GetProfile(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	u, err := h.svc.GetProfile(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	caller, ok := auth.CallerID(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	var upd ProfileUpdate
	if err := c.Bind(&upd); err != nil {
		return apperr.Validation(apperr.CodeInvalidInput, "invalid request body")
	}
	u, err := h.svc.UpdateProfile(c.Request().Context(), caller, id, upd)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) UpdatePassword(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	caller, ok := auth.CallerID(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	var change PasswordChange
	if err := c.Bind(&change); err != nil {
		return apperr.Validation(apperr.CodeInvalidInput, "invalid request body")
	}
	if err := h.svc.UpdatePassword(c.Request().Context(), caller, id, change); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "password updated"})
}

func (h *Handler) ListDoctors(c echo.Context) error {
	doctors, err := h.svc.ListDoctors(c.Request().Context())
	if err != nil {
		return err
	}
	if doctors == nil {
		doctors = []*User{}
	}
	return c.JSON(http.StatusOK, doctors)
}

func (h *Handler) DoctorsBySpecialization(c echo.Context) error {
	groups, err := h.svc.DoctorsBySpecialization(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, groups)
}

func parseID(c echo.Context, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		return uuid.Nil, apperr.Validation(apperr.CodeInvalidInput, "invalid %s", param)
	}
	return id, nil
}
