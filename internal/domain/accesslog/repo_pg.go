package accesslog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthlock/consentd/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type EntryRepoPG struct {
	pool *pgxpool.Pool
}

func NewEntryRepoPG(pool *pgxpool.Pool) *EntryRepoPG {
	return &EntryRepoPG{pool: pool}
}

func (r *EntryRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const entryCols = `id, ts, patient_id, requester_id, requester_kind, purpose, fields_accessed, status, denial_reason, idempotency_key`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var reason, key *string
	err := row.Scan(
		&e.ID, &e.Timestamp, &e.PatientID, &e.RequesterID, &e.RequesterKind,
		&e.Purpose, &e.FieldsAccessed, &e.Status, &reason, &key,
	)
	if reason != nil {
		e.DenialReason = *reason
	}
	if key != nil {
		e.IdempotencyKey = *key
	}
	return &e, err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *EntryRepoPG) Append(ctx context.Context, e *Entry) (*Entry, error) {
	q := fmt.Sprintf(`INSERT INTO access_log
		(id, patient_id, requester_id, requester_kind, purpose, fields_accessed, status, denial_reason, idempotency_key)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING %s`, entryCols)

	id := e.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	fields := e.FieldsAccessed
	if fields == nil {
		fields = []string{}
	}
	stored, err := scanEntry(r.conn(ctx).QueryRow(ctx, q,
		id, e.PatientID, e.RequesterID, e.RequesterKind,
		e.Purpose, fields, e.Status, nullable(e.DenialReason), nullable(e.IdempotencyKey),
	))
	if err != nil {
		return nil, fmt.Errorf("append access log entry: %w", err)
	}
	return stored, nil
}

func (r *EntryRepoPG) GetByIdempotencyKey(ctx context.Context, key string) (*Entry, error) {
	q := fmt.Sprintf("SELECT %s FROM access_log WHERE idempotency_key = $1", entryCols)
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx, q, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup access log entry by key: %w", err)
	}
	return e, nil
}

func (r *EntryRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		"SELECT COUNT(*) FROM access_log WHERE patient_id = $1", patientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count access log entries: %w", err)
	}

	q := fmt.Sprintf(`SELECT %s FROM access_log
		WHERE patient_id = $1
		ORDER BY ts DESC LIMIT $2 OFFSET $3`, entryCols)
	rows, err := r.conn(ctx).Query(ctx, q, patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list access log entries: %w", err)
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan access log entry: %w", err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate access log entries: %w", err)
	}
	return items, total, nil
}
