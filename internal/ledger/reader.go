package ledger

import (
	"context"

	"github.com/meridian-gov/meridian/internal/authz"
	"github.com/meridian-gov/meridian/internal/shared"
)

// exportBatchSize bounds memory while streaming ranges.
const exportBatchSize = 500

// Reader serves visibility-filtered ledger reads. Record order is public
// (append-only, totally ordered by sequence), but record contents are
// not: only admins and clerks read arbitrary records, everyone else
// reads only records where they are the actor.
type Reader struct {
	store Store
}

// NewReader constructs a Reader.
func NewReader(store Store) *Reader {
	return &Reader{store: store}
}

// RecordsFor returns records in [from, to] visible to the actor. The
// actor filter is pushed into the store query, never applied after
// fetching. An inactive actor is refused outright rather than handed a
// silent empty page.
func (r *Reader) RecordsFor(ctx context.Context, actor authz.Principal, from, to int64) ([]Record, error) {
	if !actor.Active {
		return nil, shared.ErrForbidden
	}
	switch actor.Role {
	case authz.RoleAdmin, authz.RoleClerk:
		return r.store.Range(ctx, from, to)
	default:
		return r.store.RangeForActor(ctx, actor.ID, from, to)
	}
}

// ExportRange streams records in [from, to] to fn in sequence order.
// Serialization is the caller's concern; this core hands over domain
// records. Batching keeps memory flat for multi-year ranges.
func (r *Reader) ExportRange(ctx context.Context, from, to int64, fn func(Record) error) error {
	if from < 1 {
		from = 1
	}
	cursor := from
	for {
		batchEnd := cursor + exportBatchSize - 1
		if to > 0 && batchEnd > to {
			batchEnd = to
		}
		batch, err := r.store.Range(ctx, cursor, batchEnd)
		if err != nil {
			return err
		}
		for _, rec := range batch {
			if err := fn(rec); err != nil {
				return err
			}
		}
		if len(batch) == 0 || (to > 0 && batchEnd >= to) {
			return nil
		}
		cursor = batchEnd + 1
	}
}
