package accesslog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

// -- Mock Entry Repository --

type mockEntryRepo struct {
	entries []*Entry
}

func (m *mockEntryRepo) Append(_ context.Context, e *Entry) (*Entry, error) {
	stored := *e
	stored.ID = uuid.New()
	stored.Timestamp = time.Now()
	m.entries = append(m.entries, &stored)
	return &stored, nil
}

func (m *mockEntryRepo) GetByIdempotencyKey(_ context.Context, key string) (*Entry, error) {
	for _, e := range m.entries {
		if e.IdempotencyKey == key && key != "" {
			return e, nil
		}
	}
	return nil, ErrEntryNotFound
}

func (m *mockEntryRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	var out []*Entry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].PatientID == patientID {
			out = append(out, m.entries[i])
		}
	}
	return out, len(out), nil
}

func TestRecordDenial_NoFieldsReleased(t *testing.T) {
	repo := &mockEntryRepo{}
	svc := NewService(repo)

	e, err := svc.RecordDenial(context.Background(), uuid.New(), uuid.New(),
		"application", "care coordination", ReasonNoConsent, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Status != StatusDenied {
		t.Errorf("expected denied status, got %s", e.Status)
	}
	if e.DenialReason != ReasonNoConsent {
		t.Errorf("expected NoConsent reason, got %s", e.DenialReason)
	}
	if len(e.FieldsAccessed) != 0 {
		t.Errorf("denied entry must list no fields, got %v", e.FieldsAccessed)
	}
}

func TestRecordSuccess_ListsReleasedFields(t *testing.T) {
	repo := &mockEntryRepo{}
	svc := NewService(repo)

	e, err := svc.RecordSuccess(context.Background(), uuid.New(), uuid.New(),
		"practitioner", "follow-up visit", []string{"full_name", "dob"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Status != StatusSuccess || e.DenialReason != "" {
		t.Errorf("unexpected outcome: status=%s reason=%s", e.Status, e.DenialReason)
	}
	if len(e.FieldsAccessed) != 2 {
		t.Errorf("expected released field list, got %v", e.FieldsAccessed)
	}
}

func TestListForPatient_ScopedAndNewestFirst(t *testing.T) {
	repo := &mockEntryRepo{}
	svc := NewService(repo)
	mine, other := uuid.New(), uuid.New()

	if _, err := svc.RecordDenial(context.Background(), mine, uuid.New(), "application", "p", ReasonNoConsent, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RecordSuccess(context.Background(), mine, uuid.New(), "application", "p", []string{"dob"}, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RecordSuccess(context.Background(), other, uuid.New(), "application", "p", []string{"dob"}, ""); err != nil {
		t.Fatal(err)
	}

	items, total, err := svc.ListForPatient(context.Background(), mine, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("expected 2 entries for patient, got total=%d len=%d", total, len(items))
	}
	if items[0].Status != StatusSuccess {
		t.Error("expected newest entry first")
	}
}

func TestFindByIdempotencyKey(t *testing.T) {
	repo := &mockEntryRepo{}
	svc := NewService(repo)

	if _, err := svc.FindByIdempotencyKey(context.Background(), "fresh-key"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound for fresh key, got %v", err)
	}

	if _, err := svc.RecordSuccess(context.Background(), uuid.New(), uuid.New(),
		"application", "p", []string{"dob"}, "seen-key"); err != nil {
		t.Fatal(err)
	}
	e, err := svc.FindByIdempotencyKey(context.Background(), "seen-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.IdempotencyKey != "seen-key" {
		t.Errorf("wrong entry returned: %s", e.IdempotencyKey)
	}
}
