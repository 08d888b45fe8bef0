package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests. It is deliberately
// not offered as a runtime fallback: a volatile audit store would void
// the durability guarantee the ledger exists to provide.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[int64]Record
	order   []int64
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[int64]Record)}
}

// Insert stores the record.
func (s *MemoryStore) Insert(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.SequenceNo]; exists {
		return fmt.Errorf("ledger: duplicate sequence %d", rec.SequenceNo)
	}
	s.records[rec.SequenceNo] = rec
	s.order = append(s.order, rec.SequenceNo)
	sort.Slice(s.order, func(i, j int) bool { return s.order[i] < s.order[j] })
	return nil
}

// Last returns the highest-sequence record.
func (s *MemoryStore) Last(ctx context.Context) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.order) == 0 {
		return Record{}, false, nil
	}
	return s.records[s.order[len(s.order)-1]], true, nil
}

// Range returns records within [from, to].
func (s *MemoryStore) Range(ctx context.Context, from, to int64) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, seq := range s.order {
		if seq < from {
			continue
		}
		if to > 0 && seq > to {
			break
		}
		out = append(out, s.records[seq])
	}
	return out, nil
}

// RangeForActor returns the actor's own records within [from, to].
func (s *MemoryStore) RangeForActor(ctx context.Context, actorID, from, to int64) ([]Record, error) {
	all, err := s.Range(ctx, from, to)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, rec := range all {
		if rec.ActorID == actorID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ExpiredBefore returns non-erased records older than the cutoff.
func (s *MemoryStore) ExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, seq := range s.order {
		rec := s.records[seq]
		if rec.Erased || !rec.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ErasePayload clears the payload of one record, keeping chain linkage.
func (s *MemoryStore) ErasePayload(ctx context.Context, sequenceNo int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[sequenceNo]
	if !ok {
		return fmt.Errorf("ledger: sequence %d not found", sequenceNo)
	}
	rec.ActorID = 0
	rec.ActorRole = ""
	rec.Action = ""
	rec.ResourceType = ""
	rec.ResourceID = 0
	rec.Decision = ""
	rec.Reason = ""
	rec.FieldDiff = nil
	rec.Erased = true
	s.records[sequenceNo] = rec
	return nil
}

// Tamper overwrites a stored record in place. Test helper for chain
// verification scenarios; no production code path reaches it.
func (s *MemoryStore) Tamper(sequenceNo int64, mutate func(*Record)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[sequenceNo]
	mutate(&rec)
	s.records[sequenceNo] = rec
}

var _ Store = (*MemoryStore)(nil)
