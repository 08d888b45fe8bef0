package authz

// FieldScope is either every field of a resource or an explicit
// allow-list of field names.
type FieldScope struct {
	All    bool
	Fields []string
}

// ScopeAll grants every field.
func ScopeAll() FieldScope {
	return FieldScope{All: true}
}

// ScopeOf grants exactly the named fields.
func ScopeOf(fields ...string) FieldScope {
	return FieldScope{Fields: fields}
}

// Contains reports whether the scope covers the named field.
func (s FieldScope) Contains(field string) bool {
	if s.All {
		return true
	}
	for _, f := range s.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Names returns the explicit field list, or nil for an all-fields scope.
func (s FieldScope) Names() []string {
	if s.All {
		return nil
	}
	out := make([]string, len(s.Fields))
	copy(out, s.Fields)
	return out
}

// CapabilityRule resolves one (role, resource type, action) triple. Rules
// are data: the table below is loaded once at startup and never mutated.
// OwnOnly narrows the rule to resources the actor owns (or, for judges,
// is assigned to).
type CapabilityRule struct {
	Role     Role
	Resource ResourceType
	Action   Action
	Verdict  Verdict
	Scope    FieldScope
	OwnOnly  bool
}

type ruleKey struct {
	role     Role
	resource ResourceType
	action   Action
}

// Registry is the immutable capability table. Lookups that miss the table
// fail closed with a synthetic deny-all rule; absence of a rule is never
// treated as the absence of a restriction.
type Registry struct {
	rules map[ruleKey]CapabilityRule
}

// NewRegistry builds the registry from the static rule table. Changing
// the table requires a new process generation; there is deliberately no
// hot-reload path.
func NewRegistry() *Registry {
	r := &Registry{rules: make(map[ruleKey]CapabilityRule, len(ruleTable))}
	for _, rule := range ruleTable {
		r.rules[ruleKey{rule.Role, rule.Resource, rule.Action}] = rule
	}
	return r
}

// Lookup returns the rule for the triple, or a deny-all rule when no
// explicit entry exists.
func (r *Registry) Lookup(role Role, resource ResourceType, action Action) CapabilityRule {
	if rule, ok := r.rules[ruleKey{role, resource, action}]; ok {
		return rule
	}
	return CapabilityRule{Role: role, Resource: resource, Action: action, Verdict: Deny}
}

func allowAll(role Role, resource ResourceType, action Action) CapabilityRule {
	return CapabilityRule{Role: role, Resource: resource, Action: action, Verdict: Allow, Scope: ScopeAll()}
}

func allowOwn(role Role, resource ResourceType, action Action, scope FieldScope) CapabilityRule {
	return CapabilityRule{Role: role, Resource: resource, Action: action, Verdict: Allow, Scope: scope, OwnOnly: true}
}

// ruleTable is the complete grant set. Every triple absent from this
// table resolves to Deny.
var ruleTable = []CapabilityRule{
	// Admin: unrestricted on every resource type.
	allowAll(RoleAdmin, ResourceCase, ActionRead),
	allowAll(RoleAdmin, ResourceCase, ActionCreate),
	allowAll(RoleAdmin, ResourceCase, ActionUpdate),
	allowAll(RoleAdmin, ResourceCase, ActionDelete),
	allowAll(RoleAdmin, ResourceDocument, ActionRead),
	allowAll(RoleAdmin, ResourceDocument, ActionCreate),
	allowAll(RoleAdmin, ResourceDocument, ActionUpdate),
	allowAll(RoleAdmin, ResourceDocument, ActionDelete),
	allowAll(RoleAdmin, ResourceUser, ActionRead),
	allowAll(RoleAdmin, ResourceUser, ActionCreate),
	allowAll(RoleAdmin, ResourceUser, ActionUpdate),
	allowAll(RoleAdmin, ResourceUser, ActionDelete),

	// Clerk: registry staff. Full read/write on cases and documents,
	// read-only on user accounts. No deletes.
	allowAll(RoleClerk, ResourceCase, ActionRead),
	allowAll(RoleClerk, ResourceCase, ActionCreate),
	allowAll(RoleClerk, ResourceCase, ActionUpdate),
	allowAll(RoleClerk, ResourceDocument, ActionRead),
	allowAll(RoleClerk, ResourceDocument, ActionCreate),
	allowAll(RoleClerk, ResourceDocument, ActionUpdate),
	allowAll(RoleClerk, ResourceUser, ActionRead),

	// Judge: scoped to cases assigned to them. May move a case through
	// its lifecycle but never reassign it or touch filing metadata.
	allowOwn(RoleJudge, ResourceCase, ActionRead, ScopeAll()),
	allowOwn(RoleJudge, ResourceCase, ActionUpdate, ScopeOf("status", "description")),
	allowOwn(RoleJudge, ResourceDocument, ActionRead, ScopeAll()),
	allowOwn(RoleJudge, ResourceUser, ActionRead, ScopeAll()),
	allowOwn(RoleJudge, ResourceUser, ActionUpdate, ScopeOf("name", "email")),

	// Lawyer: scoped to cases and documents they filed. May amend filing
	// text but never status or judge assignment.
	allowOwn(RoleLawyer, ResourceCase, ActionRead, ScopeAll()),
	{Role: RoleLawyer, Resource: ResourceCase, Action: ActionCreate, Verdict: Allow, Scope: ScopeOf("number", "title", "description")},
	allowOwn(RoleLawyer, ResourceCase, ActionUpdate, ScopeOf("title", "description")),
	allowOwn(RoleLawyer, ResourceDocument, ActionRead, ScopeAll()),
	{Role: RoleLawyer, Resource: ResourceDocument, Action: ActionCreate, Verdict: Allow, Scope: ScopeOf("case_id", "title", "mime_type")},
	allowOwn(RoleLawyer, ResourceDocument, ActionUpdate, ScopeOf("title", "mime_type")),
	allowOwn(RoleLawyer, ResourceUser, ActionRead, ScopeAll()),
	allowOwn(RoleLawyer, ResourceUser, ActionUpdate, ScopeOf("name", "email")),

	// Citizen: scoped to their own filings.
	allowOwn(RoleCitizen, ResourceCase, ActionRead, ScopeAll()),
	{Role: RoleCitizen, Resource: ResourceCase, Action: ActionCreate, Verdict: Allow, Scope: ScopeOf("title", "description")},
	allowOwn(RoleCitizen, ResourceCase, ActionUpdate, ScopeOf("title", "description")),
	allowOwn(RoleCitizen, ResourceDocument, ActionRead, ScopeAll()),
	{Role: RoleCitizen, Resource: ResourceDocument, Action: ActionCreate, Verdict: Allow, Scope: ScopeOf("case_id", "title", "mime_type")},
	allowOwn(RoleCitizen, ResourceUser, ActionRead, ScopeAll()),
	allowOwn(RoleCitizen, ResourceUser, ActionUpdate, ScopeOf("name", "email")),
}
