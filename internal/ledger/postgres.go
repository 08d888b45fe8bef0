package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists audit records in the audit_records table. The
// table carries a primary key on sequence_no; the single-writer
// committer makes conflicts impossible in normal operation, and the
// constraint turns any write-path bug into a hard error instead of a
// forked chain.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const recordColumns = `sequence_no, occurred_at, actor_id, actor_role, action, resource_type, resource_id, decision, reason, field_diff, prev_hash, record_hash, erased`

// Insert persists a committed record.
func (s *PostgresStore) Insert(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO audit_records (`+recordColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.SequenceNo, rec.Timestamp.UTC(), rec.ActorID, rec.ActorRole, rec.Action,
		rec.ResourceType, rec.ResourceID, rec.Decision, rec.Reason, rec.FieldDiff,
		rec.PrevHash, rec.RecordHash, rec.Erased)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("ledger: duplicate sequence %d: %w", rec.SequenceNo, err)
		}
		return err
	}
	return nil
}

// Last returns the highest-sequence record.
func (s *PostgresStore) Last(ctx context.Context) (Record, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM audit_records ORDER BY sequence_no DESC LIMIT 1`)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return rec, true, nil
}

// Range returns records within [from, to] in sequence order.
func (s *PostgresStore) Range(ctx context.Context, from, to int64) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM audit_records WHERE sequence_no >= $1`
	args := []any{from}
	if to > 0 {
		query += ` AND sequence_no <= $2`
		args = append(args, to)
	}
	query += ` ORDER BY sequence_no`
	return s.queryRecords(ctx, query, args)
}

// RangeForActor restricts Range to the actor's own records. The filter
// is part of the query, never applied after the fact.
func (s *PostgresStore) RangeForActor(ctx context.Context, actorID, from, to int64) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM audit_records WHERE actor_id = $1 AND sequence_no >= $2`
	args := []any{actorID, from}
	if to > 0 {
		query += ` AND sequence_no <= $3`
		args = append(args, to)
	}
	query += ` ORDER BY sequence_no`
	return s.queryRecords(ctx, query, args)
}

// ExpiredBefore returns non-erased records past the retention cutoff.
func (s *PostgresStore) ExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]Record, error) {
	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM audit_records WHERE erased = FALSE AND occurred_at < $1 ORDER BY sequence_no LIMIT $2`,
		[]any{cutoff.UTC(), limit})
}

// ErasePayload blanks the payload columns while keeping the chain
// columns untouched.
func (s *PostgresStore) ErasePayload(ctx context.Context, sequenceNo int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE audit_records
		SET actor_id = 0, actor_role = '', action = '', resource_type = '', resource_id = 0,
		    decision = '', reason = '', field_diff = NULL, erased = TRUE
		WHERE sequence_no = $1`, sequenceNo)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ledger: sequence %d not found", sequenceNo)
	}
	return nil
}

func (s *PostgresStore) queryRecords(ctx context.Context, query string, args []any) ([]Record, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.SequenceNo, &rec.Timestamp, &rec.ActorID, &rec.ActorRole,
		&rec.Action, &rec.ResourceType, &rec.ResourceID, &rec.Decision, &rec.Reason,
		&rec.FieldDiff, &rec.PrevHash, &rec.RecordHash, &rec.Erased)
	return rec, err
}

var _ Store = (*PostgresStore)(nil)
