package identity

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

type ProfileRepoPG struct {
	pool *pgxpool.Pool
}

func NewProfileRepoPG(pool *pgxpool.Pool) *ProfileRepoPG {
	return &ProfileRepoPG{pool: pool}
}

func (r *ProfileRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const profileCols = `id, role, full_name, dob, address, clinical_notes, created_at, updated_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(
		&p.ID, &p.Role, &p.FullName, &p.DOB, &p.Address, &p.ClinicalNotes,
		&p.CreatedAt, &p.UpdatedAt,
	)
	return &p, err
}

func (r *ProfileRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	q := fmt.Sprintf("SELECT %s FROM profile WHERE id = $1", profileCols)
	p, err := scanProfile(r.conn(ctx).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", id, err)
	}
	return p, nil
}

func (r *ProfileRepoPG) ListByRole(ctx context.Context, role string, limit, offset int) ([]*Profile, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		"SELECT COUNT(*) FROM profile WHERE role = $1", role).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count profiles: %w", err)
	}

	q := fmt.Sprintf(
		"SELECT %s FROM profile WHERE role = $1 ORDER BY full_name LIMIT $2 OFFSET $3",
		profileCols)
	rows, err := r.conn(ctx).Query(ctx, q, role, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var items []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan profile: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate profiles: %w", err)
	}
	return items, total, nil
}
