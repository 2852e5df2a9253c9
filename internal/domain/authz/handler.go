package authz

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/healthlock/consentd/internal/domain/consent"
	"github.com/healthlock/consentd/internal/platform/auth"
)

// IdempotencyKeyHeader lets a requester safely retry a data request without
// producing a second audit entry.
const IdempotencyKeyHeader = "Idempotency-Key"

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/data-requests", h.RequestData,
		auth.RequireRole(auth.RoleApplication, auth.RoleDoctor))
}

type dataRequest struct {
	PatientID string `json:"patient_id"`
	Purpose   string `json:"purpose"`
}

// dataResponse is the wire shape: granted answers carry the redacted field
// map, denied answers carry only the reason string.
type dataResponse struct {
	Status string            `json:"status"`
	Fields map[string]string `json:"fields,omitempty"`
	Reason string            `json:"reason,omitempty"`
}

// RequestData evaluates a data-access attempt. The requester's identity and
// kind come from the token, never from the body, so an application cannot
// borrow a practitioner's grants.
func (h *Handler) RequestData(c echo.Context) error {
	ctx := c.Request().Context()

	requesterID, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid caller identity")
	}
	var kind string
	switch auth.RoleFromContext(ctx) {
	case auth.RoleApplication:
		kind = consent.KindApplication
	case auth.RoleDoctor:
		kind = consent.KindPractitioner
	default:
		return echo.NewHTTPError(http.StatusForbidden, "role cannot request data")
	}

	var req dataRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	if req.Purpose == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "purpose is required")
	}

	dec, err := h.engine.Authorize(ctx, Request{
		PatientID:      patientID,
		RequesterID:    requesterID,
		RequesterKind:  kind,
		Purpose:        req.Purpose,
		IdempotencyKey: c.Request().Header.Get(IdempotencyKeyHeader),
	})
	if errors.Is(err, ErrIdempotencyKeyReused) {
		return echo.NewHTTPError(http.StatusConflict, "idempotency key was used by a different request")
	}
	if err != nil {
		log.Error().Err(err).Str("requester_id", requesterID.String()).Msg("authorization failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "authorization failed")
	}

	// Denials are well-formed 200 responses, not HTTP errors: the request
	// was understood and answered, the answer is no.
	if dec.Decision == DecisionDenied {
		return c.JSON(http.StatusOK, dataResponse{
			Status: "denied",
			Reason: dec.DenialReason,
		})
	}
	return c.JSON(http.StatusOK, dataResponse{
		Status: "success",
		Fields: dec.Data,
	})
}
