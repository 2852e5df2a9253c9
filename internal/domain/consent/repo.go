package consent

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrGrantNotFound is returned when no grant exists for the requested key.
var ErrGrantNotFound = errors.New("grant not found")

type GrantRepository interface {
	// Upsert replaces the grant for (patient, requester, kind) wholesale.
	// An existing row keeps its id, so re-submitting the same grant is
	// idempotent.
	Upsert(ctx context.Context, g *Grant) (*Grant, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Grant, error)
	// Lookup is the point lookup on the unique grant key.
	Lookup(ctx context.Context, patientID, requesterID uuid.UUID, kind string) (*Grant, error)
	// UpdateStatus toggles active/revoked without touching allowed_fields.
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*Grant, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, kind string, limit, offset int) ([]*Grant, int, error)
}
