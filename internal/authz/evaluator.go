package authz

import (
	"context"
	"sort"
)

// Evaluator computes access decisions. It holds no mutable state and is
// safe for concurrent use: the registry is read-only after startup and
// the directory is only consulted to validate judge reassignments.
type Evaluator struct {
	registry  *Registry
	directory Directory
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(registry *Registry, directory Directory) *Evaluator {
	return &Evaluator{registry: registry, directory: directory}
}

// Evaluate decides whether the actor may perform the action on the
// resource. For mutations the delta carries the requested field values;
// for reads only the delta keys matter and an empty delta means the full
// record. Deny is returned as a value, never as an error, so callers can
// audit it like any other outcome.
func (e *Evaluator) Evaluate(ctx context.Context, actor Principal, res Resource, action Action, delta FieldDelta) Decision {
	if !actor.Role.Valid() {
		return Decision{Verdict: Deny, Reason: ReasonUnknownRole}
	}
	if !actor.Active && !isSelfProfileRead(actor, res, action) {
		return Decision{Verdict: Deny, Reason: ReasonInactiveActor}
	}

	rule := e.registry.Lookup(actor.Role, res.Type, action)
	if rule.Verdict != Allow {
		return Decision{Verdict: Deny, Reason: ReasonNoRule}
	}

	if rule.OwnOnly {
		if actor.Role == RoleJudge {
			if res.AssignedJudgeID != actor.ID {
				return Decision{Verdict: Deny, Reason: ReasonNotAssigned}
			}
		} else if res.OwnerID != actor.ID {
			return Decision{Verdict: Deny, Reason: ReasonNotOwner}
		}
	}

	switch action {
	case ActionRead:
		return Decision{Verdict: Allow, ReadableFields: readableFields(rule.Scope, delta)}
	case ActionCreate, ActionUpdate:
		writable := make([]string, 0, len(delta))
		for _, field := range delta.Fields() {
			if !rule.Scope.Contains(field) {
				// Whole-request deny: partial application would leave
				// the resource in a state the caller never asked for.
				return Decision{Verdict: Deny, Reason: ReasonFieldOutOfScope}
			}
			writable = append(writable, field)
		}
		if action == ActionUpdate {
			if target, ok := delta["assigned_judge_id"]; ok {
				if !e.validJudgeTarget(ctx, target) {
					return Decision{Verdict: Deny, Reason: ReasonBadJudgeTarget}
				}
			}
		}
		sort.Strings(writable)
		return Decision{Verdict: Allow, WritableFields: writable}
	default:
		return Decision{Verdict: Allow}
	}
}

// validJudgeTarget checks that a requested assigned_judge_id references
// an active judge. Any resolution failure fails closed.
func (e *Evaluator) validJudgeTarget(ctx context.Context, target any) bool {
	id, ok := principalID(target)
	if !ok || id == 0 {
		return false
	}
	if e.directory == nil {
		return false
	}
	p, err := e.directory.PrincipalByID(ctx, id)
	if err != nil {
		return false
	}
	return p.Role == RoleJudge && p.Active
}

// isSelfProfileRead is the single carve-out for inactive principals: they
// may still read their own user record to request reactivation.
func isSelfProfileRead(actor Principal, res Resource, action Action) bool {
	return action == ActionRead && res.Type == ResourceUser && res.OwnerID == actor.ID
}

// readableFields intersects the scope with the requested fields. Reads
// degrade to partial visibility instead of failing outright, so the
// result is the set the caller may keep; nil means the full record.
func readableFields(scope FieldScope, requested FieldDelta) []string {
	if len(requested) == 0 {
		return scope.Names()
	}
	fields := make([]string, 0, len(requested))
	for _, field := range requested.Fields() {
		if scope.Contains(field) {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)
	return fields
}

func principalID(v any) (int64, bool) {
	switch id := v.(type) {
	case int64:
		return id, true
	case int:
		return int64(id), true
	case float64:
		return int64(id), true
	default:
		return 0, false
	}
}
