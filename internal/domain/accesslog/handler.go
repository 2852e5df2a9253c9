package accesslog

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/healthlock/consentd/internal/platform/auth"
	"github.com/healthlock/consentd/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/access-logs", h.ListOwnEntries, auth.RequireRole(auth.RolePatient))
}

// ListOwnEntries returns the caller's own audit trail. The patient id comes
// from the token, never from the request, so one patient cannot read
// another's log.
func (h *Handler) ListOwnEntries(c echo.Context) error {
	ctx := c.Request().Context()
	patientID, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid caller identity")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForPatient(ctx, patientID, pg.Limit, pg.Offset)
	if err != nil {
		log.Error().Err(err).Str("patient_id", patientID.String()).Msg("failed to list access log")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list access log")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
