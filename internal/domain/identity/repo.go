package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no profile exists for the requested id.
var ErrNotFound = errors.New("profile not found")

type ProfileRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	ListByRole(ctx context.Context, role string, limit, offset int) ([]*Profile, int, error)
}
