package identity

import (
	"time"

	"github.com/google/uuid"
)

// Field names of the patient demographic record. The consentable list is
// canonical: redacted responses and access-log field sequences always follow
// this order, whatever order a caller asked in.
const (
	FieldFullName      = "full_name"
	FieldDOB           = "dob"
	FieldAddress       = "address"
	FieldClinicalNotes = "clinical_notes"
)

var consentableFields = []string{FieldFullName, FieldDOB, FieldAddress}

// ConsentableFields returns the canonical ordered list of field names a
// patient may grant access to. clinical_notes is reserved and never part of
// this list.
func ConsentableFields() []string {
	out := make([]string, len(consentableFields))
	copy(out, consentableFields)
	return out
}

// IsConsentable reports whether the named field may appear in a grant.
func IsConsentable(name string) bool {
	for _, f := range consentableFields {
		if f == name {
			return true
		}
	}
	return false
}

// Profile maps to the profile table. Patients, doctors and registered
// applications all live in the same directory; the role claim issued by the
// identity provider mirrors the Role column here.
type Profile struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Role          string    `db:"role" json:"role"`
	FullName      string    `db:"full_name" json:"full_name"`
	DOB           string    `db:"dob" json:"dob,omitempty"`
	Address       string    `db:"address" json:"address,omitempty"`
	ClinicalNotes string    `db:"clinical_notes" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// FieldValue returns the value of the named demographic field. The second
// return is false for unknown names and for clinical_notes, which is not
// addressable through the consent engine.
func (p *Profile) FieldValue(name string) (string, bool) {
	switch name {
	case FieldFullName:
		return p.FullName, true
	case FieldDOB:
		return p.DOB, true
	case FieldAddress:
		return p.Address, true
	default:
		return "", false
	}
}
