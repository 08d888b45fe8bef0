package cases

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-gov/meridian/internal/authz"
	"github.com/meridian-gov/meridian/internal/platform/db"
	"github.com/meridian-gov/meridian/internal/shared"
)

const caseColumns = `id, number, title, description, status, owner_id, COALESCE(assigned_judge_id, 0), created_at, updated_at`

// Repository persists cases in PostgreSQL. Visibility predicates are
// pushed into the SQL before pagination so restricted actors never
// page over rows they cannot see.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListCases returns the page of cases matching the filter inside the
// visibility scope, plus the total match count.
func (r *Repository) ListCases(ctx context.Context, scope authz.Predicate, filter Filter) ([]Case, int, error) {
	clause, args := scope.SQL("owner_id", "assigned_judge_id", 1)
	where := "WHERE " + clause
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM cases `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM cases %s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		caseColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// GetCase fetches one case by id.
func (r *Repository) GetCase(ctx context.Context, id int64) (Case, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = $1`, id)
	c, err := scanCase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Case{}, shared.ErrNotFound
		}
		return Case{}, err
	}
	return c, nil
}

// CreateCase inserts a new case. The audit callback runs inside the
// same transaction: if the audit record cannot be committed, the insert
// is rolled back and never becomes visible.
func (r *Repository) CreateCase(ctx context.Context, c Case, audit func(context.Context, Case) error) (Case, error) {
	var created Case
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO cases (number, title, description, status, owner_id, assigned_judge_id)
			 VALUES ($1, $2, $3, $4, $5, NULLIF($6, 0))
			 RETURNING `+caseColumns,
			c.Number, c.Title, c.Description, string(c.Status), c.OwnerID, c.AssignedJudgeID)
		var err error
		created, err = scanCase(row)
		if err != nil {
			return err
		}
		return audit(ctx, created)
	})
	if err != nil {
		return Case{}, err
	}
	return created, nil
}

// UpdateCase persists mutable case fields. Like CreateCase, the update
// commits only after the audit callback succeeds.
func (r *Repository) UpdateCase(ctx context.Context, c Case, audit func(context.Context, Case) error) (Case, error) {
	var updated Case
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`UPDATE cases
			 SET title = $2, description = $3, status = $4, assigned_judge_id = NULLIF($5, 0), updated_at = now()
			 WHERE id = $1
			 RETURNING `+caseColumns,
			c.ID, c.Title, c.Description, string(c.Status), c.AssignedJudgeID)
		c2, err := scanCase(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return err
		}
		updated = c2
		return audit(ctx, c2)
	})
	if err != nil {
		return Case{}, err
	}
	return updated, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (Case, error) {
	var c Case
	var status string
	if err := row.Scan(&c.ID, &c.Number, &c.Title, &c.Description, &status, &c.OwnerID, &c.AssignedJudgeID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Case{}, err
	}
	c.Status = Status(status)
	return c, nil
}
