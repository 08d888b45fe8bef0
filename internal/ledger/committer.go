package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Metrics is the narrow instrumentation surface the committer reports
// to. The observability package provides the production implementation.
type Metrics interface {
	ObserveAppend(seconds float64)
	SetAppendQueueDepth(depth int)
	IncAppendRetry()
}

// Config collects the committer's dependencies.
type Config struct {
	Store  Store
	Logger *slog.Logger
	// Metrics may be nil.
	Metrics Metrics
	// Clock may be overridden in tests; defaults to time.Now.
	Clock func() time.Time
	// AppendTimeout bounds how long a caller waits for its record to be
	// durably committed. Defaults to 5s.
	AppendTimeout time.Duration
	// QueueSize bounds the draft queue. Defaults to 256.
	QueueSize int
}

type appendResult struct {
	rec Record
	err error
}

type pendingAppend struct {
	draft Draft
	diff  json.RawMessage
	done  chan appendResult
}

// Ledger serializes all appends through a single committer goroutine so
// prev_hash linkage is never ambiguous under concurrency. Callers block
// until their record is durably committed; a decision is never returned
// upstream before its audit record exists.
type Ledger struct {
	store         Store
	logger        *slog.Logger
	metrics       Metrics
	clock         func() time.Time
	appendTimeout time.Duration

	queue chan pendingAppend

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	// committer-local chain state, touched only by the committer
	// goroutine after startup.
	nextSeq  int64
	prevHash string
	lastTS   time.Time
}

// NewLedger loads the chain head from the store and starts the
// committer.
func NewLedger(ctx context.Context, cfg Config) (*Ledger, error) {
	if cfg.Store == nil {
		return nil, errors.New("ledger: store required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.AppendTimeout <= 0 {
		cfg.AppendTimeout = 5 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	l := &Ledger{
		store:         cfg.Store,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		clock:         cfg.Clock,
		appendTimeout: cfg.AppendTimeout,
		queue:         make(chan pendingAppend, cfg.QueueSize),
		nextSeq:       1,
		prevHash:      GenesisHash(),
	}

	last, ok, err := cfg.Store.Last(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		l.nextSeq = last.SequenceNo + 1
		l.prevHash = last.RecordHash
		l.lastTS = last.Timestamp
	}

	l.wg.Add(1)
	go l.run()
	return l, nil
}

// Append enqueues the draft and blocks until it is committed or the
// append times out. Context cancellation only matters before the draft
// is enqueued: once queued, the committer always finishes the write so
// no acknowledged decision can go unaudited. On ErrAppendTimeout the
// record may still land, but the caller must fail its mutation closed.
func (l *Ledger) Append(ctx context.Context, draft Draft) (Record, error) {
	diff, err := marshalDiff(draft.FieldDiff)
	if err != nil {
		return Record{}, err
	}

	p := pendingAppend{draft: draft, diff: diff, done: make(chan appendResult, 1)}

	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return Record{}, ErrClosed
	}
	select {
	case l.queue <- p:
		l.mu.RUnlock()
	case <-ctx.Done():
		l.mu.RUnlock()
		return Record{}, ctx.Err()
	}

	if l.metrics != nil {
		l.metrics.SetAppendQueueDepth(len(l.queue))
	}

	timer := time.NewTimer(l.appendTimeout)
	defer timer.Stop()
	select {
	case res := <-p.done:
		return res.rec, res.err
	case <-timer.C:
		return Record{}, ErrAppendTimeout
	}
}

// Close stops accepting new drafts and drains the queue before
// returning. Drafts already enqueued are still committed.
func (l *Ledger) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()
	l.wg.Wait()
}

func (l *Ledger) run() {
	defer l.wg.Done()
	for p := range l.queue {
		start := time.Now()
		rec, err := l.commit(p)
		if l.metrics != nil {
			l.metrics.ObserveAppend(time.Since(start).Seconds())
			l.metrics.SetAppendQueueDepth(len(l.queue))
		}
		p.done <- appendResult{rec: rec, err: err}
	}
}

func (l *Ledger) commit(p pendingAppend) (Record, error) {
	ts := l.clock().UTC()
	if ts.Before(l.lastTS) {
		// Clock went backwards; keep the stamp monotonic.
		ts = l.lastTS
	}

	rec := Record{
		SequenceNo:   l.nextSeq,
		Timestamp:    ts,
		ActorID:      p.draft.ActorID,
		ActorRole:    p.draft.ActorRole,
		Action:       p.draft.Action,
		ResourceType: p.draft.ResourceType,
		ResourceID:   p.draft.ResourceID,
		Decision:     p.draft.Decision,
		Reason:       p.draft.Reason,
		FieldDiff:    p.diff,
		PrevHash:     l.prevHash,
	}
	rec.RecordHash = computeHash(rec, l.prevHash)

	if err := l.insertWithRetry(rec); err != nil {
		l.logger.Error("audit append failed", slog.Int64("sequence", rec.SequenceNo), slog.Any("error", err))
		return Record{}, err
	}

	l.nextSeq++
	l.prevHash = rec.RecordHash
	l.lastTS = ts
	return rec, nil
}

// insertWithRetry commits the record, retrying transient store failures
// with backoff. The insert runs on a background context: once a draft
// reaches the committer it is past the point of cancellation.
func (l *Ledger) insertWithRetry(rec Record) error {
	backoff := 50 * time.Millisecond
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			if l.metrics != nil {
				l.metrics.IncAppendRetry()
			}
			time.Sleep(backoff)
			backoff *= 2
		}
		ctx, cancel := context.WithTimeout(context.Background(), l.appendTimeout)
		err = l.store.Insert(ctx, rec)
		cancel()
		if err == nil {
			return nil
		}
		l.logger.Warn("audit insert retry", slog.Int("attempt", attempt+1), slog.Any("error", err))
	}
	return err
}
