package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/healthlock/consentd/internal/domain/accesslog"
	"github.com/healthlock/consentd/internal/domain/consent"
	"github.com/healthlock/consentd/internal/domain/identity"
)

// Decision outcomes.
const (
	DecisionGranted = "granted"
	DecisionDenied  = "denied"
)

// ErrIdempotencyKeyReused is returned when an idempotency key is presented
// with a different requester or patient than the request it was first
// recorded for.
var ErrIdempotencyKeyReused = errors.New("idempotency key was used by a different request")

// Request is one data-access attempt by an application or practitioner.
type Request struct {
	PatientID      uuid.UUID
	RequesterID    uuid.UUID
	RequesterKind  string
	Purpose        string
	IdempotencyKey string
}

// Decision is the engine's answer. Denied decisions never say whether the
// patient exists: a missing patient, a missing grant, and a revoked grant all
// come back through the same two reason strings.
type Decision struct {
	Decision     string
	DenialReason string
	Data         map[string]string
	Fields       []string
	LogID        uuid.UUID
}

// GrantSource is the consent point lookup the engine evaluates against.
type GrantSource interface {
	Lookup(ctx context.Context, patientID, requesterID uuid.UUID, kind string) (*consent.Grant, error)
}

// PatientSource resolves patient records for redaction.
type PatientSource interface {
	GetPatientRecord(ctx context.Context, id uuid.UUID) (*identity.Profile, error)
}

// AuditLog is the append-only trail every decision lands in before the
// response leaves the engine.
type AuditLog interface {
	RecordSuccess(ctx context.Context, patientID, requesterID uuid.UUID, kind, purpose string, fields []string, idemKey string) (*accesslog.Entry, error)
	RecordDenial(ctx context.Context, patientID, requesterID uuid.UUID, kind, purpose, reason, idemKey string) (*accesslog.Entry, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*accesslog.Entry, error)
}

// TxRunner executes fn atomically. Production wires this to a serializable
// database transaction so the grant read and the log append commit together.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Engine struct {
	grants   GrantSource
	patients PatientSource
	audit    AuditLog
	runTx    TxRunner
}

func NewEngine(grants GrantSource, patients PatientSource, audit AuditLog, runTx TxRunner) *Engine {
	if runTx == nil {
		runTx = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	return &Engine{grants: grants, patients: patients, audit: audit, runTx: runTx}
}

// Authorize evaluates one access request: consent lookup, redaction, audit
// append, in that order, atomically. The decision is only returned once its
// log entry has committed, so no response can exist without a trail.
func (e *Engine) Authorize(ctx context.Context, req Request) (*Decision, error) {
	var dec *Decision
	err := e.runTx(ctx, func(ctx context.Context) error {
		var err error
		dec, err = e.decide(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	evt := log.Info()
	if dec.Decision == DecisionDenied {
		evt = log.Warn().Str("denial_reason", dec.DenialReason)
	}
	evt.
		Str("requester_id", req.RequesterID.String()).
		Str("requester_kind", req.RequesterKind).
		Str("decision", dec.Decision).
		Str("log_id", dec.LogID.String()).
		Msg("access request decided")
	return dec, nil
}

func (e *Engine) decide(ctx context.Context, req Request) (*Decision, error) {
	if req.IdempotencyKey != "" {
		prior, err := e.audit.FindByIdempotencyKey(ctx, req.IdempotencyKey)
		if err == nil {
			// A replay is only a replay when it is the same request from
			// the same caller. A key reused by another requester (or
			// against another patient) must never short-circuit the
			// consent check.
			if prior.RequesterID != req.RequesterID ||
				prior.PatientID != req.PatientID ||
				prior.RequesterKind != req.RequesterKind {
				return nil, ErrIdempotencyKeyReused
			}
			return e.replay(ctx, prior)
		}
		if !errors.Is(err, accesslog.ErrEntryNotFound) {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
	}

	grant, err := e.grants.Lookup(ctx, req.PatientID, req.RequesterID, req.RequesterKind)
	if errors.Is(err, consent.ErrGrantNotFound) {
		return e.deny(ctx, req, accesslog.ReasonNoConsent)
	}
	if err != nil {
		return nil, fmt.Errorf("grant lookup: %w", err)
	}
	if !grant.Permits() {
		return e.deny(ctx, req, accesslog.ReasonConsentRevoked)
	}

	patient, err := e.patients.GetPatientRecord(ctx, req.PatientID)
	if errors.Is(err, identity.ErrNotFound) {
		// A grant pointing at a nonexistent patient answers exactly like
		// no grant at all.
		return e.deny(ctx, req, accesslog.ReasonNoConsent)
	}
	if err != nil {
		return nil, fmt.Errorf("load patient record: %w", err)
	}

	data, released := Redact(patient, grant.AllowedFields)
	entry, err := e.audit.RecordSuccess(ctx, req.PatientID, req.RequesterID, req.RequesterKind,
		req.Purpose, released, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("append access log: %w", err)
	}
	return &Decision{
		Decision: DecisionGranted,
		Data:     data,
		Fields:   released,
		LogID:    entry.ID,
	}, nil
}

func (e *Engine) deny(ctx context.Context, req Request, reason string) (*Decision, error) {
	entry, err := e.audit.RecordDenial(ctx, req.PatientID, req.RequesterID, req.RequesterKind,
		req.Purpose, reason, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("append access log: %w", err)
	}
	return &Decision{
		Decision:     DecisionDenied,
		DenialReason: reason,
		LogID:        entry.ID,
	}, nil
}

// replay rebuilds the response for a request already answered under the same
// idempotency key. No new log entry is written. Successful replays re-read
// the record but release only the fields the original decision released.
func (e *Engine) replay(ctx context.Context, prior *accesslog.Entry) (*Decision, error) {
	if prior.Status == accesslog.StatusDenied {
		return &Decision{
			Decision:     DecisionDenied,
			DenialReason: prior.DenialReason,
			LogID:        prior.ID,
		}, nil
	}

	patient, err := e.patients.GetPatientRecord(ctx, prior.PatientID)
	if err != nil {
		return nil, fmt.Errorf("load patient record for replay: %w", err)
	}
	data, released := Redact(patient, prior.FieldsAccessed)
	return &Decision{
		Decision: DecisionGranted,
		Data:     data,
		Fields:   released,
		LogID:    prior.ID,
	}, nil
}
