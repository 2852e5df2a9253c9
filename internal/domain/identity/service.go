package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/healthlock/consentd/internal/platform/auth"
)

type Service struct {
	repo ProfileRepository
}

func NewService(repo ProfileRepository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return s.repo.GetByID(ctx, id)
}

// GetPatientRecord returns the profile only when it belongs to a patient.
// Callers in the authorization path depend on this so a grant keyed to a
// non-patient id can never release data.
func (s *Service) GetPatientRecord(ctx context.Context, id uuid.UUID) (*Profile, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Role != auth.RolePatient {
		return nil, ErrNotFound
	}
	return p, nil
}

// IsDoctor reports whether the id resolves to a profile carrying the doctor
// role claim.
func (s *Service) IsDoctor(ctx context.Context, id uuid.UUID) (bool, error) {
	p, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.Role == auth.RoleDoctor, nil
}

// ListApplications returns the registered third-party application directory.
func (s *Service) ListApplications(ctx context.Context, limit, offset int) ([]*Profile, int, error) {
	return s.repo.ListByRole(ctx, auth.RoleApplication, limit, offset)
}
