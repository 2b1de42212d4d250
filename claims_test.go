package authcore

import (
	"sort"
	"testing"
)

func TestClassifyRoleHierarchy(t *testing.T) {
	b := newClaimsBuilder(nil)

	cases := []struct {
		raw    string
		level  RoleLevel
		weight int
	}{
		{"System Administrator", RoleSystemAdmin, 100},
		{"sysadmin", RoleSystemAdmin, 100},
		{"Director of Operations", RoleExecutive, 80},
		{"Campaign Manager", RoleManager, 60},
		{"Team Lead", RoleTeamLead, 40},
		{"senior agent", RoleTeamLead, 40},
		{"agent", RoleAgent, 20},
		{"quality analyst", RoleCustom, customRoleWeight},
	}

	for _, tc := range cases {
		entry := b.classify(tc.raw)
		if entry.Level != tc.level || entry.Weight != tc.weight {
			t.Errorf("classify(%q) = %s/%d, want %s/%d", tc.raw, entry.Level, entry.Weight, tc.level, tc.weight)
		}
	}
}

func TestBuildCapabilityFlags(t *testing.T) {
	b := newClaimsBuilder(nil)

	cases := []struct {
		name          string
		roles         []string
		isAdmin       bool
		globalScope   bool
		wantSysAdmin  bool
		wantExecutive bool
		wantManager   bool
	}{
		{"agent", []string{"agent"}, false, false, false, false, false},
		{"manager", []string{"supervisor"}, false, false, false, false, true},
		{"executive", []string{"vp of sales"}, false, false, false, true, true},
		{"sysadmin role", []string{"system administrator"}, false, false, true, true, true},
		{"admin flag", []string{"agent"}, true, false, true, true, true},
		{"global scope", []string{"agent"}, false, true, true, true, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u := seedUser()
			u.Roles = tc.roles
			u.IsAdmin = tc.isAdmin
			scope := CampaignScope{IsGlobalAdmin: tc.globalScope}

			auth := b.Build(u, nil, scope)
			if auth.IsSystemAdmin != tc.wantSysAdmin {
				t.Errorf("IsSystemAdmin = %v, want %v", auth.IsSystemAdmin, tc.wantSysAdmin)
			}
			if auth.IsExecutive != tc.wantExecutive {
				t.Errorf("IsExecutive = %v, want %v", auth.IsExecutive, tc.wantExecutive)
			}
			if auth.IsManager != tc.wantManager {
				t.Errorf("IsManager = %v, want %v", auth.IsManager, tc.wantManager)
			}
			if auth.CanManageUsers != auth.IsExecutive || auth.CanManagePages != auth.IsManager {
				t.Errorf("capability flags out of step: %+v", auth)
			}
		})
	}
}

func TestBuildReportingGraph(t *testing.T) {
	b := newClaimsBuilder(nil)
	u := seedUser()

	profile := &AccessProfile{
		Assignments: []CampaignAssignment{
			{CampaignID: "camp-1", UserID: "u1", ManagerID: "boss-1"},
			{CampaignID: "camp-1", UserID: "u7", ManagerID: "u1"},
			{CampaignID: "camp-1", UserID: "u3", ManagerID: "u1"},
			{CampaignID: "camp-2", UserID: "u9", ManagerID: "someone-else"},
		},
		Permissions: []CampaignPermission{
			{CampaignID: "camp-1", UserID: "u1", Level: "manage"},
			{CampaignID: "camp-2", UserID: "other", Level: "admin"},
		},
	}

	auth := b.Build(u, profile, CampaignScope{})

	if auth.ManagerID != "boss-1" {
		t.Fatalf("expected manager boss-1, got %q", auth.ManagerID)
	}
	if len(auth.DirectReports) != 2 || auth.DirectReports[0] != "u3" || auth.DirectReports[1] != "u7" {
		t.Fatalf("expected sorted reports [u3 u7], got %v", auth.DirectReports)
	}
	// An agent with direct reports is a manager.
	if !auth.IsManager {
		t.Fatal("expected manager capability from reporting graph")
	}
	if auth.CampaignPermissions["camp-1"] != "manage" {
		t.Fatalf("expected own permission only, got %v", auth.CampaignPermissions)
	}
	if _, leaked := auth.CampaignPermissions["camp-2"]; leaked {
		t.Fatal("another user's permission leaked into the profile")
	}
}

func TestClaimStringsDeterministic(t *testing.T) {
	b := newClaimsBuilder(nil)
	u := seedUser()
	u.Roles = []string{"agent", "Team Lead"}

	scope := CampaignScope{
		IsGlobalAdmin:      true,
		AllowedCampaignIDs: []string{"camp-2", "camp-1"},
		ManagedCampaignIDs: []string{"camp-1"},
	}

	first := b.Build(u, nil, scope).Claims
	second := b.Build(u, nil, scope).Claims

	if len(first) == 0 {
		t.Fatal("expected claims")
	}
	if !sort.StringsAreSorted(first) {
		t.Fatalf("claims must be sorted: %v", first)
	}
	if len(first) != len(second) {
		t.Fatalf("claims not deterministic: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("claims not deterministic at %d: %q vs %q", i, first[i], second[i])
		}
	}

	want := map[string]bool{
		"admin:global":            false,
		"auth:login-enabled":      false,
		"auth:email-confirmed":    false,
		"campaign:camp-1:access":  false,
		"campaign:camp-1:manage":  false,
		"campaign:camp-2:access":  false,
		"role:agent:level:20":     false,
		"role:team-lead:level:40": false,
	}
	for _, c := range first {
		if _, ok := want[c]; ok {
			want[c] = true
		}
	}
	for claim, seen := range want {
		if !seen {
			t.Errorf("missing claim %q in %v", claim, first)
		}
	}
}

func TestCustomRoleRulesReplaceDefaults(t *testing.T) {
	b := newClaimsBuilder([]RoleRule{
		{Name: "dispatcher", Level: RoleManager, Weight: 60},
	})

	entry := b.classify("dispatcher")
	if entry.Level != RoleManager {
		t.Fatalf("expected custom rule to match, got %+v", entry)
	}
	// Stock names are gone once rules are replaced.
	entry = b.classify("system administrator")
	if entry.Level != RoleCustom {
		t.Fatalf("expected custom fallback, got %+v", entry)
	}
}
