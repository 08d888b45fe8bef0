package authz

import (
	"fmt"
	"strings"
)

// Predicate is the declarative visibility scope for a principal. It is
// applied at the query layer before pagination, counting, or
// aggregation; filtering after counting would leak how many resources
// exist outside the actor's scope.
type Predicate struct {
	unrestricted bool
	ownerID      *int64
	judgeID      *int64
}

// Unrestricted reports whether the predicate matches everything.
func (p Predicate) Unrestricted() bool {
	return p.unrestricted
}

// Empty reports whether the predicate matches nothing.
func (p Predicate) Empty() bool {
	return !p.unrestricted && p.ownerID == nil && p.judgeID == nil
}

// SQL renders the predicate as a WHERE fragment using positional
// placeholders starting at argIndex, returning the fragment and its
// arguments. ownerCol and judgeCol name the resource table's owner and
// assigned-judge columns.
func (p Predicate) SQL(ownerCol, judgeCol string, argIndex int) (string, []any) {
	switch {
	case p.unrestricted:
		return "TRUE", nil
	case p.ownerID != nil:
		return fmt.Sprintf("%s = $%d", ownerCol, argIndex), []any{*p.ownerID}
	case p.judgeID != nil:
		return fmt.Sprintf("%s = $%d", judgeCol, argIndex), []any{*p.judgeID}
	default:
		return "FALSE", nil
	}
}

// Matches applies the predicate to an in-memory snapshot.
func (p Predicate) Matches(res Resource) bool {
	switch {
	case p.unrestricted:
		return true
	case p.ownerID != nil:
		return res.OwnerID == *p.ownerID
	case p.judgeID != nil:
		return res.AssignedJudgeID == *p.judgeID
	default:
		return false
	}
}

// String describes the predicate for logging.
func (p Predicate) String() string {
	frag, args := p.SQL("owner_id", "assigned_judge_id", 1)
	if len(args) == 0 {
		return frag
	}
	return strings.Replace(frag, "$1", fmt.Sprint(args[0]), 1)
}

// ScopeFor derives the visibility predicate for the actor over a
// resource type. Inactive principals and unknown roles enumerate
// nothing.
func ScopeFor(actor Principal, resource ResourceType) Predicate {
	if !actor.Active || !actor.Role.Valid() {
		return Predicate{}
	}
	switch actor.Role {
	case RoleAdmin, RoleClerk:
		return Predicate{unrestricted: true}
	case RoleJudge:
		id := actor.ID
		return Predicate{judgeID: &id}
	default:
		id := actor.ID
		return Predicate{ownerID: &id}
	}
}
