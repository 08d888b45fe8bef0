package authz

import "testing"

func TestLookupMissFailsClosed(t *testing.T) {
	reg := NewRegistry()

	rule := reg.Lookup(RoleCitizen, ResourceUser, ActionDelete)
	if rule.Verdict != Deny {
		t.Fatalf("expected deny for absent rule, got %s", rule.Verdict)
	}
	if rule.Scope.All || len(rule.Scope.Fields) != 0 {
		t.Fatalf("synthetic deny rule must not grant fields: %+v", rule.Scope)
	}
}

func TestDenyByDefaultAcrossAllTriples(t *testing.T) {
	reg := NewRegistry()
	granted := make(map[ruleKey]bool, len(ruleTable))
	for _, rule := range ruleTable {
		granted[ruleKey{rule.Role, rule.Resource, rule.Action}] = true
	}

	roles := []Role{RoleAdmin, RoleJudge, RoleLawyer, RoleClerk, RoleCitizen}
	resources := []ResourceType{ResourceCase, ResourceDocument, ResourceUser}
	actions := []Action{ActionRead, ActionCreate, ActionUpdate, ActionDelete}
	for _, role := range roles {
		for _, resource := range resources {
			for _, action := range actions {
				rule := reg.Lookup(role, resource, action)
				if granted[ruleKey{role, resource, action}] {
					if rule.Verdict != Allow {
						t.Errorf("(%s,%s,%s): table grants but lookup denies", role, resource, action)
					}
					continue
				}
				if rule.Verdict != Deny {
					t.Errorf("(%s,%s,%s): no table entry but lookup allows", role, resource, action)
				}
			}
		}
	}
}

func TestAdminAndClerkRulesNeverOwnScoped(t *testing.T) {
	for _, rule := range ruleTable {
		if (rule.Role == RoleAdmin || rule.Role == RoleClerk) && rule.OwnOnly {
			t.Errorf("(%s,%s,%s): admin/clerk rule marked own-only", rule.Role, rule.Resource, rule.Action)
		}
	}
}

func TestLawyerUpdateScopeExcludesStatusAndAssignment(t *testing.T) {
	reg := NewRegistry()
	rule := reg.Lookup(RoleLawyer, ResourceCase, ActionUpdate)
	if rule.Verdict != Allow {
		t.Fatalf("expected allow, got %s", rule.Verdict)
	}
	for _, field := range []string{"status", "assigned_judge_id", "owner_id"} {
		if rule.Scope.Contains(field) {
			t.Errorf("lawyer case update scope must not contain %q", field)
		}
	}
	if !rule.Scope.Contains("title") || !rule.Scope.Contains("description") {
		t.Errorf("lawyer case update scope missing title/description: %+v", rule.Scope)
	}
}
