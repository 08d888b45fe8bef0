// Package ledger implements the append-only, hash-chained audit log.
// Every authorization decision and committed mutation in the platform is
// recorded here; records are usable as legal evidence and sit under a
// 7-year statutory retention.
package ledger

import (
	"encoding/json"
	"errors"
	"time"
)

// RetentionDays is the statutory retention period for audit records.
const RetentionDays = 2555

var (
	// ErrIntegrity signals a hash chain mismatch. This is fatal for the
	// verifying process: it means a committed record was altered.
	ErrIntegrity = errors.New("ledger: chain integrity violation")
	// ErrRetention signals an attempted erasure inside the retention
	// window. It is rejected, never silently ignored.
	ErrRetention = errors.New("ledger: record still under retention")
	// ErrAppendTimeout signals that an append did not durably commit in
	// time. The caller must treat the associated mutation as failed.
	ErrAppendTimeout = errors.New("ledger: append timed out")
	// ErrClosed is returned for appends after shutdown began.
	ErrClosed = errors.New("ledger: closed")
)

// FieldChange captures a single field's before/after values in a
// committed mutation.
type FieldChange struct {
	Before any `json:"before"`
	After  any `json:"after"`
}

// Draft is an audit record as produced by a request handler, before the
// committer stamps sequence, timestamp, and hashes.
type Draft struct {
	ActorID      int64
	ActorRole    string
	Action       string
	ResourceType string
	ResourceID   int64
	Decision     string
	Reason       string
	FieldDiff    map[string]FieldChange
}

// Record is a committed audit record. Once committed it is never
// mutated; the only permitted change is payload erasure by the retention
// guard after the statutory window, which sets Erased and clears the
// payload fields while keeping the chain linkage intact.
type Record struct {
	SequenceNo   int64
	Timestamp    time.Time
	ActorID      int64
	ActorRole    string
	Action       string
	ResourceType string
	ResourceID   int64
	Decision     string
	Reason       string
	FieldDiff    json.RawMessage
	PrevHash     string
	RecordHash   string
	Erased       bool
}

// marshalDiff produces the canonical byte form of a field diff. The
// bytes are stored verbatim and hashed, so verification recomputes over
// exactly what was committed. encoding/json sorts map keys, which keeps
// the serialization deterministic.
func marshalDiff(diff map[string]FieldChange) (json.RawMessage, error) {
	if len(diff) == 0 {
		return nil, nil
	}
	return json.Marshal(diff)
}
