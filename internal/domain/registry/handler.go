package registry

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medyassinekhlif/TrueCare/internal/platform/auth"
	"github.com/medyassinekhlif/TrueCare/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/insurers", h.RegisterInsurer)
	admin.POST("/insurers/:insurerId/verify", h.VerifyInsurer)
	admin.POST("/doctors", h.RegisterDoctor)

	insurer := api.Group("/insurer", auth.RequireRole(auth.RoleInsurer))
	insurer.GET("/profile", h.GetInsurerProfile)
	insurer.PUT("/plans", h.UpdatePlans)
	insurer.POST("/clients", h.AddClient)
	insurer.GET("/clients", h.ListClients)
	insurer.GET("/clients/:clientId", h.GetClient)
	insurer.GET("/clients/:clientId/bulletins", h.ListClientBulletins)

	doctor := api.Group("/doctor", auth.RequireRole(auth.RoleDoctor))
	doctor.POST("/bulletins", h.CreateBulletin)
	doctor.GET("/bulletins", h.ListAuthoredBulletins)

	client := api.Group("/client", auth.RequireRole(auth.RoleClient))
	client.GET("/bulletins", h.ListOwnBulletins)
	client.GET("/insurance", h.GetInsuranceDetails)
}

// httpError maps registry errors onto HTTP statuses.
func httpError(err error) error {
	msg := err.Error()
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, strings.TrimPrefix(msg, ErrValidation.Error()+": "))
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, msg)
	case errors.Is(err, ErrNotVerified):
		return echo.NewHTTPError(http.StatusForbidden, "Insurer account not verified")
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, msg)
	default:
		return err
	}
}

func identity(c echo.Context) string {
	return auth.UserIDFromContext(c.Request().Context())
}

func parseParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// -- Admin --

func (h *Handler) RegisterInsurer(c echo.Context) error {
	var in InsurerRegistration
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ins, err := h.svc.RegisterInsurer(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, ins)
}

func (h *Handler) VerifyInsurer(c echo.Context) error {
	id, err := parseParam(c, "insurerId")
	if err != nil {
		return err
	}
	ins, err := h.svc.VerifyInsurer(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ins)
}

func (h *Handler) RegisterDoctor(c echo.Context) error {
	var in DoctorRegistration
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	doc, err := h.svc.RegisterDoctor(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, doc)
}

// -- Insurer --

func (h *Handler) GetInsurerProfile(c echo.Context) error {
	ins, err := h.svc.InsurerForIdentity(c.Request().Context(), identity(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ins)
}

func (h *Handler) UpdatePlans(c echo.Context) error {
	var body struct {
		Plans []PlanTier `json:"plans"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ins, err := h.svc.UpdatePlans(c.Request().Context(), identity(c), body.Plans)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ins)
}

func (h *Handler) AddClient(c echo.Context) error {
	var in ClientEnrollment
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	client, err := h.svc.AddClient(c.Request().Context(), identity(c), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, client)
}

func (h *Handler) ListClients(c echo.Context) error {
	clients, err := h.svc.ListOwnedClients(c.Request().Context(), identity(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(clients, pagination.FromContext(c)))
}

func (h *Handler) GetClient(c echo.Context) error {
	id, err := parseParam(c, "clientId")
	if err != nil {
		return err
	}
	client, err := h.svc.GetOwnedClient(c.Request().Context(), identity(c), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, client)
}

func (h *Handler) ListClientBulletins(c echo.Context) error {
	id, err := parseParam(c, "clientId")
	if err != nil {
		return err
	}
	items, err := h.svc.ListOwnedClientBulletins(c.Request().Context(), identity(c), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(items, pagination.FromContext(c)))
}

// -- Doctor --

func (h *Handler) CreateBulletin(c echo.Context) error {
	var in BulletinInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.CreateBulletin(c.Request().Context(), identity(c), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) ListAuthoredBulletins(c echo.Context) error {
	items, err := h.svc.ListAuthoredBulletins(c.Request().Context(), identity(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(items, pagination.FromContext(c)))
}

// -- Client --

func (h *Handler) ListOwnBulletins(c echo.Context) error {
	items, err := h.svc.ListOwnBulletins(c.Request().Context(), identity(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(items, pagination.FromContext(c)))
}

func (h *Handler) GetInsuranceDetails(c echo.Context) error {
	details, err := h.svc.GetInsuranceDetails(c.Request().Context(), identity(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, details)
}
