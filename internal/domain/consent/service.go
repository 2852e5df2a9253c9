package consent

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/healthlock/consentd/internal/domain/identity"
)

// ErrNotAPractitioner is returned when a practitioner grant targets an id
// whose role claim is not doctor.
var ErrNotAPractitioner = errors.New("target id does not belong to a practitioner")

// ValidationError marks a request that was rejected before any state change.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// RoleVerifier resolves whether an id carries the doctor role claim. The
// identity service satisfies it; the indirection keeps this package free of
// a hard dependency on identity internals.
type RoleVerifier interface {
	IsDoctor(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service struct {
	repo  GrantRepository
	roles RoleVerifier
}

func NewService(repo GrantRepository, roles RoleVerifier) *Service {
	return &Service{repo: repo, roles: roles}
}

// canonicalizeFields validates the requested field names and returns them
// deduplicated in canonical record order, so stored grants (and everything
// derived from them) are order-stable regardless of request order.
func canonicalizeFields(fields []string) ([]string, error) {
	requested := make(map[string]bool, len(fields))
	for _, f := range fields {
		if !identity.IsConsentable(f) {
			return nil, validationErrorf("field %q cannot be granted", f)
		}
		requested[f] = true
	}
	out := make([]string, 0, len(requested))
	for _, f := range identity.ConsentableFields() {
		if requested[f] {
			out = append(out, f)
		}
	}
	return out, nil
}

// deriveStatus enforces the grant invariant: a grant is active exactly when
// it still names at least one field.
func deriveStatus(fields []string) string {
	if len(fields) == 0 {
		return StatusRevoked
	}
	return StatusActive
}

// UpsertApplicationGrant replaces the application's allowed-field set
// wholesale. An empty set is a revocation.
func (s *Service) UpsertApplicationGrant(ctx context.Context, patientID, applicationID uuid.UUID, fields []string, purpose string) (*Grant, error) {
	canonical, err := canonicalizeFields(fields)
	if err != nil {
		return nil, err
	}
	if purpose == "" {
		purpose = DefaultPurpose
	}
	return s.repo.Upsert(ctx, &Grant{
		PatientID:     patientID,
		RequesterID:   applicationID,
		RequesterKind: KindApplication,
		AllowedFields: canonical,
		Status:        deriveStatus(canonical),
		Purpose:       purpose,
	})
}

// RevokeApplicationGrant clears the field set and marks the grant revoked.
// Revoking a grant that does not exist, or one already revoked, is a no-op
// and never an error.
func (s *Service) RevokeApplicationGrant(ctx context.Context, patientID, applicationID uuid.UUID) (*Grant, error) {
	existing, err := s.repo.Lookup(ctx, patientID, applicationID, KindApplication)
	if errors.Is(err, ErrGrantNotFound) {
		// Nothing to revoke; answer with the state the caller asked for
		// without minting a row.
		return &Grant{
			PatientID:     patientID,
			RequesterID:   applicationID,
			RequesterKind: KindApplication,
			AllowedFields: []string{},
			Status:        StatusRevoked,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	if existing.Status == StatusRevoked && len(existing.AllowedFields) == 0 {
		return existing, nil
	}

	existing.AllowedFields = []string{}
	existing.Status = StatusRevoked
	return s.repo.Upsert(ctx, existing)
}

// UpsertPractitionerGrant creates or replaces a practitioner grant. The
// target id must resolve to a doctor. A nil field list means the documented
// practitioner default: all consentable fields.
func (s *Service) UpsertPractitionerGrant(ctx context.Context, patientID, practitionerID uuid.UUID, fields []string, purpose string) (*Grant, error) {
	isDoctor, err := s.roles.IsDoctor(ctx, practitionerID)
	if err != nil {
		return nil, fmt.Errorf("verify practitioner role: %w", err)
	}
	if !isDoctor {
		return nil, ErrNotAPractitioner
	}

	if fields == nil {
		fields = identity.ConsentableFields()
	}
	canonical, err := canonicalizeFields(fields)
	if err != nil {
		return nil, err
	}
	if purpose == "" {
		purpose = DefaultPurpose
	}
	return s.repo.Upsert(ctx, &Grant{
		PatientID:     patientID,
		RequesterID:   practitionerID,
		RequesterKind: KindPractitioner,
		AllowedFields: canonical,
		Status:        deriveStatus(canonical),
		Purpose:       purpose,
	})
}

// SetPractitionerGrantStatus toggles a practitioner grant between active and
// revoked without altering its field set, so re-enabling restores the
// previously chosen fields. Only the owning patient may toggle, and a grant
// with no fields cannot be activated.
func (s *Service) SetPractitionerGrantStatus(ctx context.Context, patientID, grantID uuid.UUID, status string) (*Grant, error) {
	if status != StatusActive && status != StatusRevoked {
		return nil, validationErrorf("status must be %q or %q", StatusActive, StatusRevoked)
	}

	g, err := s.repo.GetByID(ctx, grantID)
	if err != nil {
		return nil, err
	}
	// A foreign grant id is reported exactly like a missing one.
	if g.PatientID != patientID || g.RequesterKind != KindPractitioner {
		return nil, ErrGrantNotFound
	}
	if g.Status == status {
		return g, nil
	}
	if status == StatusActive && len(g.AllowedFields) == 0 {
		return nil, validationErrorf("cannot activate a grant with no allowed fields")
	}
	return s.repo.UpdateStatus(ctx, grantID, status)
}

// Lookup is the read-path point lookup used by the authorization engine.
func (s *Service) Lookup(ctx context.Context, patientID, requesterID uuid.UUID, kind string) (*Grant, error) {
	return s.repo.Lookup(ctx, patientID, requesterID, kind)
}

// ListGrants returns the patient's own grants of the given kind.
func (s *Service) ListGrants(ctx context.Context, patientID uuid.UUID, kind string, limit, offset int) ([]*Grant, int, error) {
	return s.repo.ListByPatient(ctx, patientID, kind, limit, offset)
}
