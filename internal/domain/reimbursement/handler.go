package reimbursement

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medyassinekhlif/TrueCare/internal/domain/registry"
	"github.com/medyassinekhlif/TrueCare/internal/platform/auth"
	"github.com/medyassinekhlif/TrueCare/internal/platform/predictor"
	"github.com/medyassinekhlif/TrueCare/pkg/pagination"
)

const (
	msgEstimated     = "Reimbursement estimated successfully"
	msgAlreadyExists = "Reimbursement estimation already exists"

	msgClientNotFound   = "Client not found or not associated with this insurer"
	msgBulletinNotFound = "Medical bulletin not found or not associated with this client"
	msgServerError      = "Server error during reimbursement estimation"
	msgTimedOut         = "Reimbursement estimation timed out"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	insurer := api.Group("/insurer", auth.RequireRole(auth.RoleInsurer))
	insurer.POST("/estimations", h.Estimate)
	insurer.GET("/clients/:clientId/estimations", h.ListClientEstimations)
	insurer.GET("/bulletins/:bulletinId/estimation", h.GetBulletinEstimation)

	client := api.Group("/client", auth.RequireRole(auth.RoleClient))
	client.GET("/bulletins/:bulletinId", h.GetOwnBulletin)
}

type estimateResponse struct {
	Message         string              `json:"message"`
	Estimation      *Estimation         `json:"estimation"`
	TotalAmountPaid float64             `json:"totalAmountPaid"`
	Plan            registry.ClientPlan `json:"plan"`
	AlreadyExisted  bool                `json:"alreadyExisted"`
}

// httpError maps estimator errors onto statuses. Ownership failures share
// the not-found message so callers cannot discover records they do not own.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidIdentifier):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInsurerNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Insurer not found")
	case errors.Is(err, ErrInsurerNotVerified):
		return echo.NewHTTPError(http.StatusForbidden, "Insurer account not verified")
	case errors.Is(err, ErrClientNotFound), errors.Is(err, ErrClientNotAssociated):
		return echo.NewHTTPError(http.StatusNotFound, msgClientNotFound)
	case errors.Is(err, ErrBulletinNotFound), errors.Is(err, ErrBulletinNotAssociated):
		return echo.NewHTTPError(http.StatusNotFound, msgBulletinNotFound)
	case errors.Is(err, ErrPredictorResponseInvalid):
		return echo.NewHTTPError(http.StatusBadGateway, "Invalid predictor response").SetInternal(err)
	case errors.Is(err, ErrPredictorUnavailable):
		return predictorError(err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, msgTimedOut).SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, msgServerError).SetInternal(err)
	}
}

func predictorError(err error) error {
	status := http.StatusBadGateway
	if errors.Is(err, predictor.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	detail := "Unknown error"
	var se *predictor.StatusError
	if errors.As(err, &se) && se.Detail != "" {
		detail = se.Detail
	}
	return echo.NewHTTPError(status, "Predictor failed: "+detail).SetInternal(err)
}

func identity(c echo.Context) string {
	return auth.UserIDFromContext(c.Request().Context())
}

func (h *Handler) Estimate(c echo.Context) error {
	var req EstimateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Estimate(c.Request().Context(), identity(c), req.ClientID, req.MedicalBulletinID)
	if err != nil {
		return httpError(err)
	}

	status, msg := http.StatusCreated, msgEstimated
	if res.AlreadyExisted {
		status, msg = http.StatusOK, msgAlreadyExists
	}
	return c.JSON(status, estimateResponse{
		Message:         msg,
		Estimation:      res.Estimation,
		TotalAmountPaid: res.TotalAmountPaid,
		Plan:            res.Plan,
		AlreadyExisted:  res.AlreadyExisted,
	})
}

func (h *Handler) ListClientEstimations(c echo.Context) error {
	items, err := h.svc.ListEstimationsForClient(c.Request().Context(), identity(c), c.Param("clientId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(items, pagination.FromContext(c)))
}

func (h *Handler) GetBulletinEstimation(c echo.Context) error {
	lookup, err := h.svc.GetEstimationForBulletin(c.Request().Context(), identity(c), c.Param("bulletinId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, lookup)
}

func (h *Handler) GetOwnBulletin(c echo.Context) error {
	view, err := h.svc.GetClientBulletin(c.Request().Context(), identity(c), c.Param("bulletinId"))
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Client profile not found")
		}
		return httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}
