package accesslog

import (
	"context"

	"github.com/google/uuid"
)

type Service struct {
	repo EntryRepository
}

func NewService(repo EntryRepository) *Service {
	return &Service{repo: repo}
}

// RecordSuccess appends a granted-access entry listing exactly the fields
// that were released.
func (s *Service) RecordSuccess(ctx context.Context, patientID, requesterID uuid.UUID, kind, purpose string, fields []string, idemKey string) (*Entry, error) {
	return s.repo.Append(ctx, &Entry{
		PatientID:      patientID,
		RequesterID:    requesterID,
		RequesterKind:  kind,
		Purpose:        purpose,
		FieldsAccessed: fields,
		Status:         StatusSuccess,
		IdempotencyKey: idemKey,
	})
}

// RecordDenial appends a denied-access entry. Denied entries carry no field
// list: nothing was released.
func (s *Service) RecordDenial(ctx context.Context, patientID, requesterID uuid.UUID, kind, purpose, reason, idemKey string) (*Entry, error) {
	return s.repo.Append(ctx, &Entry{
		PatientID:      patientID,
		RequesterID:    requesterID,
		RequesterKind:  kind,
		Purpose:        purpose,
		FieldsAccessed: []string{},
		Status:         StatusDenied,
		DenialReason:   reason,
		IdempotencyKey: idemKey,
	})
}

// FindByIdempotencyKey returns the prior entry for a replayed request, or
// ErrEntryNotFound when the key is fresh.
func (s *Service) FindByIdempotencyKey(ctx context.Context, key string) (*Entry, error) {
	return s.repo.GetByIdempotencyKey(ctx, key)
}

// ListForPatient returns the patient's own audit trail, newest first.
func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}
