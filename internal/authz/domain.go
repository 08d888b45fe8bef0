package authz

import "context"

// Role is the closed set of roles recognised by the platform. Role
// assignments live on the user account; a principal's role is fixed for
// the lifetime of the request that resolved it.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleJudge   Role = "judge"
	RoleLawyer  Role = "lawyer"
	RoleClerk   Role = "clerk"
	RoleCitizen Role = "citizen"
)

// Valid reports whether the role is part of the closed enumeration.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleJudge, RoleLawyer, RoleClerk, RoleCitizen:
		return true
	}
	return false
}

// Action is an operation attempted against a resource.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"

	// ActionLogin is decided by the authentication service rather than
	// the capability table, but its outcome is audited like any other.
	ActionLogin Action = "login"
)

// ResourceType identifies the kind of resource a rule or request targets.
type ResourceType string

const (
	ResourceCase     ResourceType = "case"
	ResourceDocument ResourceType = "document"
	ResourceUser     ResourceType = "user"
)

// Principal describes the authenticated actor for a single request.
type Principal struct {
	ID     int64
	Role   Role
	Active bool
}

// Resource is the snapshot of the target supplied by the owning service
// before it applies a mutation. AssignedJudgeID is zero when the resource
// has no judge association.
type Resource struct {
	Type            ResourceType
	ID              int64
	OwnerID         int64
	AssignedJudgeID int64
	Status          string
}

// Verdict is the outcome of a policy evaluation.
type Verdict string

const (
	Allow Verdict = "allow"
	Deny  Verdict = "deny"
)

// Deny reasons recorded alongside decisions.
const (
	ReasonNoRule          = "no_rule"
	ReasonUnknownRole     = "unknown_role"
	ReasonInactiveActor   = "inactive_actor"
	ReasonNotOwner        = "not_owner"
	ReasonNotAssigned     = "not_assigned_judge"
	ReasonFieldOutOfScope = "field_out_of_scope"
	ReasonBadJudgeTarget  = "invalid_judge_assignment"
)

// Decision is the result of evaluating an attempted action. Deny is an
// expected outcome, not an error: callers branch on Verdict and audit
// both outcomes.
type Decision struct {
	Verdict        Verdict
	Reason         string
	ReadableFields []string
	WritableFields []string
}

// Allowed reports whether the decision permits the action.
func (d Decision) Allowed() bool {
	return d.Verdict == Allow
}

// FieldDelta is the set of fields a mutation wants to touch, keyed by
// field name with the requested new value.
type FieldDelta map[string]any

// Fields returns the delta's field names in unspecified order.
func (d FieldDelta) Fields() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	return names
}

// Directory resolves principals referenced by a mutation, used to
// validate judge reassignment targets.
type Directory interface {
	PrincipalByID(ctx context.Context, id int64) (Principal, error)
}
