package accesslog

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrEntryNotFound is returned when no entry matches the requested key.
var ErrEntryNotFound = errors.New("access log entry not found")

type EntryRepository interface {
	// Append inserts one entry. The log is append-only: there is no update
	// or delete path.
	Append(ctx context.Context, e *Entry) (*Entry, error)
	// GetByIdempotencyKey finds a prior entry written under the same
	// client-supplied key, enabling replay of an already-answered request.
	GetByIdempotencyKey(ctx context.Context, key string) (*Entry, error)
	// ListByPatient returns the patient's trail, newest first.
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Entry, int, error)
}
