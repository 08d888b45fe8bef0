package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// genesisSeed roots the hash chain. The first record's prev_hash is the
// SHA-256 of this string, so an empty ledger has a well-known anchor.
const genesisSeed = "meridian/audit-ledger/genesis/v1"

// GenesisHash returns the chain anchor for sequence 1.
func GenesisHash() string {
	sum := sha256.Sum256([]byte(genesisSeed))
	return hex.EncodeToString(sum[:])
}

// hashPayload is the canonical serialization of a record for hashing.
// All fields are scalars or pre-marshaled bytes so json.Marshal produces
// identical output for identical records.
type hashPayload struct {
	SequenceNo   int64           `json:"sequence_no"`
	Timestamp    string          `json:"timestamp"`
	ActorID      int64           `json:"actor_id"`
	ActorRole    string          `json:"actor_role"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   int64           `json:"resource_id"`
	Decision     string          `json:"decision"`
	Reason       string          `json:"reason"`
	FieldDiff    json.RawMessage `json:"field_diff,omitempty"`
}

// computeHash derives record_hash = SHA-256(canonical(record) || prev_hash).
func computeHash(r Record, prevHash string) string {
	payload := hashPayload{
		SequenceNo:   r.SequenceNo,
		Timestamp:    r.Timestamp.UTC().Format(time.RFC3339Nano),
		ActorID:      r.ActorID,
		ActorRole:    r.ActorRole,
		Action:       r.Action,
		ResourceType: r.ResourceType,
		ResourceID:   r.ResourceID,
		Decision:     r.Decision,
		Reason:       r.Reason,
		FieldDiff:    r.FieldDiff,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		// hashPayload contains only marshalable fields; an error here
		// means FieldDiff holds invalid JSON, which Append rejects.
		panic("ledger: canonical serialization failed: " + err.Error())
	}
	h := sha256.New()
	h.Write(data)
	h.Write([]byte(prevHash))
	return hex.EncodeToString(h.Sum(nil))
}
