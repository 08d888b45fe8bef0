package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T, store Store) *Ledger {
	t.Helper()
	l, err := NewLedger(context.Background(), Config{Store: store})
	require.NoError(t, err)
	t.Cleanup(l.Close)
	return l
}

func testDraft(actorID int64) Draft {
	return Draft{
		ActorID:      actorID,
		ActorRole:    "lawyer",
		Action:       "update",
		ResourceType: "case",
		ResourceID:   42,
		Decision:     "allow",
		FieldDiff:    map[string]FieldChange{"title": {Before: "a", After: "b"}},
	}
}

func TestAppendStampsSequenceAndChain(t *testing.T) {
	store := NewMemoryStore()
	l := newTestLedger(t, store)

	first, err := l.Append(context.Background(), testDraft(1))
	require.NoError(t, err)
	second, err := l.Append(context.Background(), testDraft(2))
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.SequenceNo)
	assert.Equal(t, GenesisHash(), first.PrevHash)
	assert.Equal(t, int64(2), second.SequenceNo)
	assert.Equal(t, first.RecordHash, second.PrevHash)
	assert.False(t, second.Timestamp.Before(first.Timestamp))
}

func TestAppendTotalOrderingUnderConcurrency(t *testing.T) {
	store := NewMemoryStore()
	l := newTestLedger(t, store)

	const n = 64
	var wg sync.WaitGroup
	seqs := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(actor int64) {
			defer wg.Done()
			rec, err := l.Append(context.Background(), testDraft(actor))
			if err != nil {
				t.Errorf("append: %v", err)
				return
			}
			seqs <- rec.SequenceNo
		}(int64(i + 1))
	}
	wg.Wait()
	close(seqs)

	seen := make(map[int64]bool, n)
	for seq := range seqs {
		if seen[seq] {
			t.Fatalf("duplicate sequence %d", seq)
		}
		seen[seq] = true
	}
	require.Len(t, seen, n)
	for i := int64(1); i <= n; i++ {
		if !seen[i] {
			t.Fatalf("sequence gap at %d", i)
		}
	}

	// The persisted chain must link every record to its predecessor.
	verifier := NewVerifier(store, nil, nil)
	require.NoError(t, verifier.VerifyChain(context.Background(), 1, 0))
}

func TestAppendResumesChainAfterRestart(t *testing.T) {
	store := NewMemoryStore()
	l := newTestLedger(t, store)
	last, err := l.Append(context.Background(), testDraft(1))
	require.NoError(t, err)
	l.Close()

	restarted, err := NewLedger(context.Background(), Config{Store: store})
	require.NoError(t, err)
	defer restarted.Close()

	next, err := restarted.Append(context.Background(), testDraft(2))
	require.NoError(t, err)
	assert.Equal(t, last.SequenceNo+1, next.SequenceNo)
	assert.Equal(t, last.RecordHash, next.PrevHash)
}

func TestAppendAfterCloseFails(t *testing.T) {
	store := NewMemoryStore()
	l, err := NewLedger(context.Background(), Config{Store: store})
	require.NoError(t, err)
	l.Close()

	_, err = l.Append(context.Background(), testDraft(1))
	require.ErrorIs(t, err, ErrClosed)
}

type slowStore struct {
	*MemoryStore
	delay time.Duration
}

func (s *slowStore) Insert(ctx context.Context, rec Record) error {
	time.Sleep(s.delay)
	return s.MemoryStore.Insert(ctx, rec)
}

func TestAppendTimeoutFailsClosed(t *testing.T) {
	store := &slowStore{MemoryStore: NewMemoryStore(), delay: 150 * time.Millisecond}
	l, err := NewLedger(context.Background(), Config{Store: store, AppendTimeout: 20 * time.Millisecond})
	require.NoError(t, err)

	_, err = l.Append(context.Background(), testDraft(1))
	require.ErrorIs(t, err, ErrAppendTimeout)

	// The enqueued draft still commits: the append is not cancellable
	// once queued, even when the caller has already given up.
	l.Close()
	recs, err := store.Range(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

type failingStore struct {
	*MemoryStore
	failures int
}

func (s *failingStore) Insert(ctx context.Context, rec Record) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("transient store failure")
	}
	return s.MemoryStore.Insert(ctx, rec)
}

func TestCommitterRetriesTransientFailures(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore(), failures: 2}
	l, err := NewLedger(context.Background(), Config{Store: store, AppendTimeout: 2 * time.Second})
	require.NoError(t, err)
	defer l.Close()

	rec, err := l.Append(context.Background(), testDraft(1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.SequenceNo)
}

func TestCommitterKeepsTimestampsMonotonic(t *testing.T) {
	store := NewMemoryStore()
	times := []time.Time{
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC), // clock stepped back
	}
	idx := 0
	clock := func() time.Time {
		t := times[idx]
		if idx < len(times)-1 {
			idx++
		}
		return t
	}
	l, err := NewLedger(context.Background(), Config{Store: store, Clock: clock})
	require.NoError(t, err)
	defer l.Close()

	first, err := l.Append(context.Background(), testDraft(1))
	require.NoError(t, err)
	second, err := l.Append(context.Background(), testDraft(2))
	require.NoError(t, err)
	assert.False(t, second.Timestamp.Before(first.Timestamp))
}
