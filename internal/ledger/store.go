package ledger

import (
	"context"
	"time"
)

// Store is the durable, append-friendly medium for audit records. The
// committer is the only writer of new records and the retention guard
// the only caller of ErasePayload; implementations do not need to guard
// against concurrent appends.
type Store interface {
	// Insert persists a fully stamped record. Sequence numbers are
	// unique; inserting a duplicate sequence is an error.
	Insert(ctx context.Context, rec Record) error
	// Last returns the highest-sequence record, or ok=false for an
	// empty ledger.
	Last(ctx context.Context) (rec Record, ok bool, err error)
	// Range returns records with from <= sequence_no <= to in ascending
	// order. A zero to means "through the end of the ledger".
	Range(ctx context.Context, from, to int64) ([]Record, error)
	// RangeForActor is Range restricted to records where the given
	// principal is the actor, applied in the query before any limit.
	RangeForActor(ctx context.Context, actorID, from, to int64) ([]Record, error)
	// ExpiredBefore returns non-erased records with a timestamp strictly
	// before the cutoff, oldest first, capped at limit.
	ExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]Record, error)
	// ErasePayload clears the payload fields of one record while
	// preserving sequence_no, timestamp, prev_hash, and record_hash.
	ErasePayload(ctx context.Context, sequenceNo int64) error
}
