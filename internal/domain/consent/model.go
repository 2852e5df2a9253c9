package consent

import (
	"time"

	"github.com/google/uuid"
)

// Requester kinds. The (patient, requester, kind) triple is the unique grant
// key, so an application id and a practitioner id can never shadow each
// other.
const (
	KindApplication  = "application"
	KindPractitioner = "practitioner"
)

// Grant statuses.
const (
	StatusActive  = "active"
	StatusRevoked = "revoked"
)

// DefaultPurpose is recorded when a patient grants access without stating a
// purpose of their own.
const DefaultPurpose = "Patient granted access via dashboard"

// Grant is a consent record authorizing a named requester to read a field
// set of a patient's demographic record.
type Grant struct {
	ID            uuid.UUID `db:"id" json:"id"`
	PatientID     uuid.UUID `db:"patient_id" json:"patient_id"`
	RequesterID   uuid.UUID `db:"requester_id" json:"requester_id"`
	RequesterKind string    `db:"requester_kind" json:"requester_kind"`
	AllowedFields []string  `db:"allowed_fields" json:"allowed_fields"`
	Status        string    `db:"status" json:"status"`
	Purpose       string    `db:"purpose" json:"purpose"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Permits reports whether the grant currently authorizes any access at all.
func (g *Grant) Permits() bool {
	return g.Status == StatusActive && len(g.AllowedFields) > 0
}
