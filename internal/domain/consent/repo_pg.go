package consent

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

type GrantRepoPG struct {
	pool *pgxpool.Pool
}

func NewGrantRepoPG(pool *pgxpool.Pool) *GrantRepoPG {
	return &GrantRepoPG{pool: pool}
}

func (r *GrantRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const grantCols = `id, patient_id, requester_id, requester_kind, allowed_fields, status, purpose, created_at, updated_at`

func scanGrant(row pgx.Row) (*Grant, error) {
	var g Grant
	err := row.Scan(
		&g.ID, &g.PatientID, &g.RequesterID, &g.RequesterKind,
		&g.AllowedFields, &g.Status, &g.Purpose,
		&g.CreatedAt, &g.UpdatedAt,
	)
	return &g, err
}

func (r *GrantRepoPG) Upsert(ctx context.Context, g *Grant) (*Grant, error) {
	q := fmt.Sprintf(`INSERT INTO consent_grant
		(id, patient_id, requester_id, requester_kind, allowed_fields, status, purpose)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (patient_id, requester_id, requester_kind)
	DO UPDATE SET
		allowed_fields = EXCLUDED.allowed_fields,
		status = EXCLUDED.status,
		purpose = EXCLUDED.purpose,
		updated_at = NOW()
	RETURNING %s`, grantCols)

	id := g.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	stored, err := scanGrant(r.conn(ctx).QueryRow(ctx, q,
		id, g.PatientID, g.RequesterID, g.RequesterKind,
		g.AllowedFields, g.Status, g.Purpose,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert grant: %w", err)
	}
	return stored, nil
}

func (r *GrantRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Grant, error) {
	q := fmt.Sprintf("SELECT %s FROM consent_grant WHERE id = $1", grantCols)
	g, err := scanGrant(r.conn(ctx).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrGrantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get grant %s: %w", id, err)
	}
	return g, nil
}

func (r *GrantRepoPG) Lookup(ctx context.Context, patientID, requesterID uuid.UUID, kind string) (*Grant, error) {
	q := fmt.Sprintf(`SELECT %s FROM consent_grant
		WHERE patient_id = $1 AND requester_id = $2 AND requester_kind = $3`, grantCols)
	g, err := scanGrant(r.conn(ctx).QueryRow(ctx, q, patientID, requesterID, kind))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrGrantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup grant: %w", err)
	}
	return g, nil
}

func (r *GrantRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*Grant, error) {
	q := fmt.Sprintf(`UPDATE consent_grant SET status = $2, updated_at = NOW()
		WHERE id = $1 RETURNING %s`, grantCols)
	g, err := scanGrant(r.conn(ctx).QueryRow(ctx, q, id, status))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrGrantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update grant status: %w", err)
	}
	return g, nil
}

func (r *GrantRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, kind string, limit, offset int) ([]*Grant, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		"SELECT COUNT(*) FROM consent_grant WHERE patient_id = $1 AND requester_kind = $2",
		patientID, kind).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count grants: %w", err)
	}

	q := fmt.Sprintf(`SELECT %s FROM consent_grant
		WHERE patient_id = $1 AND requester_kind = $2
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`, grantCols)
	rows, err := r.conn(ctx).Query(ctx, q, patientID, kind, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var items []*Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan grant: %w", err)
		}
		items = append(items, g)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate grants: %w", err)
	}
	return items, total, nil
}
