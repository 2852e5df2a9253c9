package accesslog

import (
	"time"

	"github.com/google/uuid"
)

// Entry outcomes.
const (
	StatusSuccess = "success"
	StatusDenied  = "denied"
)

// Denial reasons recorded alongside denied entries. The wording is part of
// the API: clients render it verbatim.
const (
	ReasonNoConsent      = "NoConsent"
	ReasonConsentRevoked = "ConsentRevoked"
)

// Entry is one immutable line of the audit trail. Entries are only ever
// appended; nothing in the system updates or deletes them.
type Entry struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Timestamp      time.Time `db:"ts" json:"timestamp"`
	PatientID      uuid.UUID `db:"patient_id" json:"patient_id"`
	RequesterID    uuid.UUID `db:"requester_id" json:"requester_id"`
	RequesterKind  string    `db:"requester_kind" json:"requester_kind"`
	Purpose        string    `db:"purpose" json:"purpose"`
	FieldsAccessed []string  `db:"fields_accessed" json:"fields_accessed"`
	Status         string    `db:"status" json:"status"`
	DenialReason   string    `db:"denial_reason" json:"denial_reason,omitempty"`
	IdempotencyKey string    `db:"idempotency_key" json:"-"`
}
