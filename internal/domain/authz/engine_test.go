package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/healthlock/consentd/internal/domain/accesslog"
	"github.com/healthlock/consentd/internal/domain/consent"
	"github.com/healthlock/consentd/internal/domain/identity"
)

// -- Mocks --

type grantKey struct {
	patientID   uuid.UUID
	requesterID uuid.UUID
	kind        string
}

type mockGrantSource struct {
	grants map[grantKey]*consent.Grant
}

func (m *mockGrantSource) Lookup(_ context.Context, patientID, requesterID uuid.UUID, kind string) (*consent.Grant, error) {
	g, ok := m.grants[grantKey{patientID, requesterID, kind}]
	if !ok {
		return nil, consent.ErrGrantNotFound
	}
	return g, nil
}

type mockPatientSource struct {
	patients map[uuid.UUID]*identity.Profile
}

func (m *mockPatientSource) GetPatientRecord(_ context.Context, id uuid.UUID) (*identity.Profile, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return p, nil
}

type mockAuditLog struct {
	entries   []*accesslog.Entry
	appendErr error
}

func (m *mockAuditLog) append(e *accesslog.Entry) (*accesslog.Entry, error) {
	if m.appendErr != nil {
		return nil, m.appendErr
	}
	e.ID = uuid.New()
	e.Timestamp = time.Now()
	m.entries = append(m.entries, e)
	return e, nil
}

func (m *mockAuditLog) RecordSuccess(_ context.Context, patientID, requesterID uuid.UUID, kind, purpose string, fields []string, idemKey string) (*accesslog.Entry, error) {
	return m.append(&accesslog.Entry{
		PatientID: patientID, RequesterID: requesterID, RequesterKind: kind,
		Purpose: purpose, FieldsAccessed: fields, Status: accesslog.StatusSuccess,
		IdempotencyKey: idemKey,
	})
}

func (m *mockAuditLog) RecordDenial(_ context.Context, patientID, requesterID uuid.UUID, kind, purpose, reason, idemKey string) (*accesslog.Entry, error) {
	return m.append(&accesslog.Entry{
		PatientID: patientID, RequesterID: requesterID, RequesterKind: kind,
		Purpose: purpose, FieldsAccessed: []string{}, Status: accesslog.StatusDenied,
		DenialReason: reason, IdempotencyKey: idemKey,
	})
}

func (m *mockAuditLog) FindByIdempotencyKey(_ context.Context, key string) (*accesslog.Entry, error) {
	for _, e := range m.entries {
		if key != "" && e.IdempotencyKey == key {
			return e, nil
		}
	}
	return nil, accesslog.ErrEntryNotFound
}

type engineFixture struct {
	engine   *Engine
	grants   *mockGrantSource
	patients *mockPatientSource
	audit    *mockAuditLog
}

func newEngineFixture() *engineFixture {
	f := &engineFixture{
		grants:   &mockGrantSource{grants: make(map[grantKey]*consent.Grant)},
		patients: &mockPatientSource{patients: make(map[uuid.UUID]*identity.Profile)},
		audit:    &mockAuditLog{},
	}
	f.engine = NewEngine(f.grants, f.patients, f.audit, nil)
	return f
}

func (f *engineFixture) addPatient() uuid.UUID {
	id := uuid.New()
	f.patients.patients[id] = &identity.Profile{
		ID:            id,
		Role:          "patient",
		FullName:      "Ada Nwosu",
		DOB:           "1984-03-12",
		Address:       "14 Marina Road, Lagos",
		ClinicalNotes: "hypertension follow-up",
	}
	return id
}

func (f *engineFixture) addGrant(patientID, requesterID uuid.UUID, kind, status string, fields []string) {
	f.grants.grants[grantKey{patientID, requesterID, kind}] = &consent.Grant{
		ID: uuid.New(), PatientID: patientID, RequesterID: requesterID,
		RequesterKind: kind, AllowedFields: fields, Status: status,
	}
}

func request(patientID, requesterID uuid.UUID) Request {
	return Request{
		PatientID:     patientID,
		RequesterID:   requesterID,
		RequesterKind: consent.KindApplication,
		Purpose:       "care coordination",
	}
}

func TestAuthorize_NoConsent(t *testing.T) {
	f := newEngineFixture()
	patientID := f.addPatient()

	dec, err := f.engine.Authorize(context.Background(), request(patientID, uuid.New()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Decision != DecisionDenied || dec.DenialReason != accesslog.ReasonNoConsent {
		t.Errorf("expected NoConsent denial, got %+v", dec)
	}
	if dec.Data != nil {
		t.Error("denied decision must carry no data")
	}
	if len(f.audit.entries) != 1 || f.audit.entries[0].Status != accesslog.StatusDenied {
		t.Fatal("denial must be logged")
	}
}

func TestAuthorize_ConsentRevoked(t *testing.T) {
	f := newEngineFixture()
	patientID := f.addPatient()
	appID := uuid.New()
	f.addGrant(patientID, appID, consent.KindApplication, consent.StatusRevoked,
		[]string{identity.FieldFullName})

	dec, err := f.engine.Authorize(context.Background(), request(patientID, appID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Decision != DecisionDenied || dec.DenialReason != accesslog.ReasonConsentRevoked {
		t.Errorf("expected ConsentRevoked denial, got %+v", dec)
	}
}

func TestAuthorize_ActiveGrantWithNoFieldsDenies(t *testing.T) {
	f := newEngineFixture()
	patientID := f.addPatient()
	appID := uuid.New()
	f.addGrant(patientID, appID, consent.KindApplication, consent.StatusActive, nil)

	dec, err := f.engine.Authorize(context.Background(), request(patientID, appID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Decision != DecisionDenied || dec.DenialReason != accesslog.ReasonConsentRevoked {
		t.Errorf("a grant permitting nothing must deny as revoked, got %+v", dec)
	}
}

func TestAuthorize_GrantedReleasesOnlyAllowedFields(t *testing.T) {
	f := newEngineFixture()
	patientID := f.addPatient()
	appID := uuid.New()
	f.addGrant(patientID, appID, consent.KindApplication, consent.StatusActive,
		[]string{identity.FieldFullName, identity.FieldDOB})

	dec, err := f.engine.Authorize(context.Background(), request(patientID, appID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Decision != DecisionGranted {
		t.Fatalf("expected granted, got %+v", dec)
	}
	if len(dec.Data) != 2 {
		t.Errorf("expected 2 fields, got %v", dec.Data)
	}
	if _, ok := dec.Data[identity.FieldAddress]; ok {
		t.Error("address was not granted and must not be released")
	}
	if _, ok := dec.Data[identity.FieldClinicalNotes]; ok {
		t.Error("clinical_notes must never be released")
	}

	if len(f.audit.entries) != 1 {
		t.Fatal("success must be logged")
	}
	entry := f.audit.entries[0]
	if entry.Status != accesslog.StatusSuccess {
		t.Errorf("expected success entry, got %s", entry.Status)
	}
	if len(entry.FieldsAccessed) != 2 {
		t.Errorf("log must list exactly the released fields, got %v", entry.FieldsAccessed)
	}
	if dec.LogID != entry.ID {
		t.Error("decision must reference the entry it was logged under")
	}
}

func TestAuthorize_NonexistentPatientLooksLikeNoConsent(t *testing.T) {
	f := newEngineFixture()
	appID := uuid.New()

	missing, err := f.engine.Authorize(context.Background(), request(uuid.New(), appID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Same requester, real patient, no grant: the two denials must be
	// indistinguishable apart from ids.
	patientID := f.addPatient()
	real, err := f.engine.Authorize(context.Background(), request(patientID, appID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if missing.Decision != DecisionDenied || real.Decision != DecisionDenied {
		t.Fatal("both requests must be denied")
	}
	if missing.DenialReason != real.DenialReason {
		t.Errorf("denial reasons differ: %q vs %q", missing.DenialReason, real.DenialReason)
	}
	if missing.DenialReason != accesslog.ReasonNoConsent {
		t.Errorf("expected NoConsent, got %q", missing.DenialReason)
	}
}

func TestAuthorize_GrantForMissingPatientDenies(t *testing.T) {
	f := newEngineFixture()
	patientID, appID := uuid.New(), uuid.New()
	f.addGrant(patientID, appID, consent.KindApplication, consent.StatusActive,
		[]string{identity.FieldFullName})

	dec, err := f.engine.Authorize(context.Background(), request(patientID, appID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Decision != DecisionDenied || dec.DenialReason != accesslog.ReasonNoConsent {
		t.Errorf("a grant with no backing record must deny as NoConsent, got %+v", dec)
	}
}

func TestAuthorize_IdempotentReplay(t *testing.T) {
	f := newEngineFixture()
	patientID := f.addPatient()
	appID := uuid.New()
	f.addGrant(patientID, appID, consent.KindApplication, consent.StatusActive,
		[]string{identity.FieldDOB})

	req := request(patientID, appID)
	req.IdempotencyKey = "retry-abc123"

	first, err := f.engine.Authorize(context.Background(), req)
	if err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	second, err := f.engine.Authorize(context.Background(), req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if len(f.audit.entries) != 1 {
		t.Fatalf("replay must not append a second entry, have %d", len(f.audit.entries))
	}
	if first.LogID != second.LogID {
		t.Error("replay must reference the original log entry")
	}
	if second.Decision != DecisionGranted || second.Data[identity.FieldDOB] != "1984-03-12" {
		t.Errorf("replay must carry the original answer, got %+v", second)
	}
}

func TestAuthorize_ReplayRejectsForeignRequester(t *testing.T) {
	f := newEngineFixture()
	patientID := f.addPatient()
	appID := uuid.New()
	f.addGrant(patientID, appID, consent.KindApplication, consent.StatusActive,
		[]string{identity.FieldFullName, identity.FieldDOB})

	granted := request(patientID, appID)
	granted.IdempotencyKey = "shared-key"
	if _, err := f.engine.Authorize(context.Background(), granted); err != nil {
		t.Fatalf("seed request: %v", err)
	}

	// A different requester with no grant of its own presents the same key.
	intruder := request(patientID, uuid.New())
	intruder.IdempotencyKey = "shared-key"
	dec, err := f.engine.Authorize(context.Background(), intruder)
	if !errors.Is(err, ErrIdempotencyKeyReused) {
		t.Fatalf("expected ErrIdempotencyKeyReused, got dec=%+v err=%v", dec, err)
	}
	if dec != nil {
		t.Fatal("a reused key must release nothing")
	}

	// Same requester, different patient: also not a replay.
	crossPatient := request(uuid.New(), appID)
	crossPatient.IdempotencyKey = "shared-key"
	if _, err := f.engine.Authorize(context.Background(), crossPatient); !errors.Is(err, ErrIdempotencyKeyReused) {
		t.Fatalf("expected ErrIdempotencyKeyReused across patients, got %v", err)
	}
}

func TestAuthorize_AuditAppendFailureReleasesNothing(t *testing.T) {
	f := newEngineFixture()
	patientID := f.addPatient()
	appID := uuid.New()
	f.addGrant(patientID, appID, consent.KindApplication, consent.StatusActive,
		[]string{identity.FieldFullName})
	f.audit.appendErr = errors.New("log write failed")

	dec, err := f.engine.Authorize(context.Background(), request(patientID, appID))
	if err == nil {
		t.Fatal("an unloggable decision must be an error")
	}
	if dec != nil {
		t.Fatalf("no data may leave without a committed log entry, got %+v", dec)
	}

	// Denials are held to the same rule.
	dec, err = f.engine.Authorize(context.Background(), request(patientID, uuid.New()))
	if err == nil || dec != nil {
		t.Fatalf("unloggable denial must also error, got dec=%+v err=%v", dec, err)
	}
}

func TestAuthorize_DeniedReplay(t *testing.T) {
	f := newEngineFixture()
	patientID := f.addPatient()

	req := request(patientID, uuid.New())
	req.IdempotencyKey = "retry-denied"

	if _, err := f.engine.Authorize(context.Background(), req); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	dec, err := f.engine.Authorize(context.Background(), req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if dec.Decision != DecisionDenied || dec.DenialReason != accesslog.ReasonNoConsent {
		t.Errorf("denied replay must repeat the original denial, got %+v", dec)
	}
	if len(f.audit.entries) != 1 {
		t.Errorf("replay must not append a second entry, have %d", len(f.audit.entries))
	}
}
