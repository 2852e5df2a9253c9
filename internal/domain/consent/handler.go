package consent

import (
	"errors"
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

// RegisterRoutes mounts the consent management surface. Every route requires
// the patient role: only patients mutate or inspect their own grants.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/consent", auth.RequireRole(auth.RolePatient))
	g.GET("/applications", h.ListApplicationGrants)
	g.PUT("/applications/:appId", h.UpsertApplicationGrant)
	g.DELETE("/applications/:appId", h.RevokeApplicationGrant)
	g.GET("/practitioners", h.ListPractitionerGrants)
	g.PUT("/practitioners/:practitionerId", h.UpsertPractitionerGrant)
	g.PATCH("/practitioners/:grantId/status", h.SetPractitionerGrantStatus)
}

type upsertGrantRequest struct {
	Fields  []string `json:"fields"`
	Purpose string   `json:"purpose"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func callerID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid caller identity")
	}
	return id, nil
}

// mapServiceError translates domain errors into HTTP responses. Unexpected
// errors are logged here and deliberately not echoed to the client.
func mapServiceError(c echo.Context, err error, op string) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Msg)
	case errors.Is(err, ErrNotAPractitioner):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "target is not a registered practitioner")
	case errors.Is(err, ErrGrantNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "grant not found")
	default:
		log.Error().Err(err).Str("op", op).Msg("consent operation failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "consent operation failed")
	}
}

func (h *Handler) ListApplicationGrants(c echo.Context) error {
	return h.listGrants(c, KindApplication)
}

func (h *Handler) ListPractitionerGrants(c echo.Context) error {
	return h.listGrants(c, KindPractitioner)
}

func (h *Handler) listGrants(c echo.Context, kind string) error {
	patientID, err := callerID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListGrants(c.Request().Context(), patientID, kind, pg.Limit, pg.Offset)
	if err != nil {
		return mapServiceError(c, err, "list_grants")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpsertApplicationGrant(c echo.Context) error {
	patientID, err := callerID(c)
	if err != nil {
		return err
	}
	appID, err := uuid.Parse(c.Param("appId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid application id")
	}
	var req upsertGrantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Fields == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "fields is required")
	}

	g, err := h.svc.UpsertApplicationGrant(c.Request().Context(), patientID, appID, req.Fields, req.Purpose)
	if err != nil {
		return mapServiceError(c, err, "upsert_application_grant")
	}
	log.Info().
		Str("patient_id", patientID.String()).
		Str("application_id", appID.String()).
		Strs("allowed_fields", g.AllowedFields).
		Str("status", g.Status).
		Msg("application grant updated")
	return c.JSON(http.StatusOK, g)
}

func (h *Handler) RevokeApplicationGrant(c echo.Context) error {
	patientID, err := callerID(c)
	if err != nil {
		return err
	}
	appID, err := uuid.Parse(c.Param("appId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid application id")
	}

	g, err := h.svc.RevokeApplicationGrant(c.Request().Context(), patientID, appID)
	if err != nil {
		return mapServiceError(c, err, "revoke_application_grant")
	}
	log.Info().
		Str("patient_id", patientID.String()).
		Str("application_id", appID.String()).
		Msg("application grant revoked")
	return c.JSON(http.StatusOK, g)
}

func (h *Handler) UpsertPractitionerGrant(c echo.Context) error {
	patientID, err := callerID(c)
	if err != nil {
		return err
	}
	practitionerID, err := uuid.Parse(c.Param("practitionerId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid practitioner id")
	}
	var req upsertGrantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	// Unlike applications, omitting fields here selects the practitioner
	// default (everything consentable).
	g, err := h.svc.UpsertPractitionerGrant(c.Request().Context(), patientID, practitionerID, req.Fields, req.Purpose)
	if err != nil {
		return mapServiceError(c, err, "upsert_practitioner_grant")
	}
	log.Info().
		Str("patient_id", patientID.String()).
		Str("practitioner_id", practitionerID.String()).
		Strs("allowed_fields", g.AllowedFields).
		Str("status", g.Status).
		Msg("practitioner grant updated")
	return c.JSON(http.StatusOK, g)
}

func (h *Handler) SetPractitionerGrantStatus(c echo.Context) error {
	patientID, err := callerID(c)
	if err != nil {
		return err
	}
	grantID, err := uuid.Parse(c.Param("grantId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid grant id")
	}
	var req setStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	g, err := h.svc.SetPractitionerGrantStatus(c.Request().Context(), patientID, grantID, req.Status)
	if err != nil {
		return mapServiceError(c, err, "set_practitioner_grant_status")
	}
	log.Info().
		Str("patient_id", patientID.String()).
		Str("grant_id", grantID.String()).
		Str("status", g.Status).
		Msg("practitioner grant status changed")
	return c.JSON(http.StatusOK, g)
}
