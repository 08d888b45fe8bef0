package documents

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

const documentColumns = `d.id, d.case_id, d.title, d.mime_type, d.storage_path, d.owner_id, COALESCE(c.assigned_judge_id, 0), d.created_at, d.updated_at`

// Repository persists documents in PostgreSQL. Listings join the
// owning case so judge visibility can be resolved in SQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListByCase returns the documents of one case within the scope.
func (r *Repository) ListByCase(ctx context.Context, scope authz.Predicate, caseID int64) ([]Document, error) {
	clause, args := scope.SQL("d.owner_id", "c.assigned_judge_id", 1)
	args = append(args, caseID)
	query := fmt.Sprintf(
		`SELECT %s FROM documents d JOIN cases c ON c.id = d.case_id
		 WHERE %s AND d.case_id = $%d ORDER BY d.id`,
		documentColumns, clause, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetDocument fetches one document by id.
func (r *Repository) GetDocument(ctx context.Context, id int64) (Document, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents d JOIN cases c ON c.id = d.case_id WHERE d.id = $1`, id)
	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, shared.ErrNotFound
		}
		return Document{}, err
	}
	return d, nil
}

// CreateDocument inserts a new document and touches the owning case in
// one transaction, so a filing always bumps the case's activity stamp.
// The audit callback runs inside that transaction: no audit record, no
// document.
func (r *Repository) CreateDocument(ctx context.Context, d Document, audit func(context.Context, Document) error) (Document, error) {
	var created Document
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO documents (case_id, title, mime_type, storage_path, owner_id)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id, case_id, title, mime_type, storage_path, owner_id, 0, created_at, updated_at`,
			d.CaseID, d.Title, d.MimeType, d.StoragePath, d.OwnerID)
		doc, err := scanDocument(row)
		if err != nil {
			return err
		}
		if err := tx.QueryRow(ctx,
			`UPDATE cases SET updated_at = now() WHERE id = $1 RETURNING COALESCE(assigned_judge_id, 0)`,
			d.CaseID).Scan(&doc.AssignedJudgeID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return err
		}
		created = doc
		return audit(ctx, doc)
	})
	if err != nil {
		return Document{}, err
	}
	return created, nil
}

// UpdateDocument persists mutable document fields, committing only
// after the audit callback succeeds.
func (r *Repository) UpdateDocument(ctx context.Context, d Document, audit func(context.Context, Document) error) (Document, error) {
	var updated Document
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`WITH updated AS (
				UPDATE documents SET title = $2, mime_type = $3, updated_at = now()
				WHERE id = $1
				RETURNING id, case_id, title, mime_type, storage_path, owner_id, created_at, updated_at
			 )
			 SELECT d.id, d.case_id, d.title, d.mime_type, d.storage_path, d.owner_id, COALESCE(c.assigned_judge_id, 0), d.created_at, d.updated_at
			 FROM updated d JOIN cases c ON c.id = d.case_id`,
			d.ID, d.Title, d.MimeType)
		d2, err := scanDocument(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return err
		}
		updated = d2
		return audit(ctx, d2)
	})
	if err != nil {
		return Document{}, err
	}
	return updated, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var d Document
	if err := row.Scan(&d.ID, &d.CaseID, &d.Title, &d.MimeType, &d.StoragePath, &d.OwnerID, &d.AssignedJudgeID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return Document{}, err
	}
	return d, nil
}
