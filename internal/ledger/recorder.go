package ledger

import (
	"context"
	"errors"

	"github.com/meridian-gov/meridian/internal/authz"
)

// DecisionMetrics counts policy decisions; implemented by the
// observability package.
type DecisionMetrics interface {
	RecordDecision(role, resource, action, verdict string)
}

// Recorder turns policy decisions and committed mutations into ledger
// drafts. Every decision is recorded, Deny included: denied attempts
// are security evidence in their own right.
type Recorder struct {
	ledger  *Ledger
	metrics DecisionMetrics
}

// NewRecorder returns a recorder writing to the given ledger. metrics
// may be nil.
func NewRecorder(l *Ledger, metrics DecisionMetrics) *Recorder {
	return &Recorder{ledger: l, metrics: metrics}
}

// Record appends one decision outcome. diff carries the before/after
// values of the applied mutation and must be nil for denies and reads.
// The call blocks until the record is durably committed; an error here
// means the operation must fail closed regardless of the decision.
func (r *Recorder) Record(ctx context.Context, actor authz.Principal, res authz.Resource, action authz.Action, dec authz.Decision, diff map[string]FieldChange) (Record, error) {
	if r == nil || r.ledger == nil {
		return Record{}, errors.New("ledger: recorder not initialised")
	}
	if r.metrics != nil {
		r.metrics.RecordDecision(string(actor.Role), string(res.Type), string(action), string(dec.Verdict))
	}
	draft := Draft{
		ActorID:      actor.ID,
		ActorRole:    string(actor.Role),
		Action:       string(action),
		ResourceType: string(res.Type),
		ResourceID:   res.ID,
		Decision:     string(dec.Verdict),
		Reason:       dec.Reason,
		FieldDiff:    diff,
	}
	return r.ledger.Append(ctx, draft)
}
