package authz

import (
	"github.com/healthlock/consentd/internal/domain/identity"
)

// Redact projects a patient record down to the granted field set. The output
// is keyed by field name and built by walking the consentable registry, so
// clinical notes can never appear regardless of what the grant claims, and
// unknown field names in the grant are silently ignored.
func Redact(p *identity.Profile, allowed []string) (map[string]string, []string) {
	granted := make(map[string]bool, len(allowed))
	for _, f := range allowed {
		granted[f] = true
	}

	data := make(map[string]string, len(allowed))
	var released []string
	for _, f := range identity.ConsentableFields() {
		if !granted[f] {
			continue
		}
		v, ok := p.FieldValue(f)
		if !ok {
			continue
		}
		data[f] = v
		released = append(released, f)
	}
	return data, released
}
