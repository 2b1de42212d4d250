package authcore

import (
	"sort"
	"strconv"
	"strings"
)

// RoleLevel classifies a role within the hierarchy.
type RoleLevel string

const (
	RoleSystemAdmin RoleLevel = "SYSTEM_ADMIN"
	RoleExecutive   RoleLevel = "EXECUTIVE"
	RoleManager     RoleLevel = "MANAGER"
	RoleTeamLead    RoleLevel = "TEAM_LEAD"
	RoleAgent       RoleLevel = "AGENT"
	RoleCustom      RoleLevel = "CUSTOM"
)

// RoleRule matches raw role names against one hierarchy level. Matching is
// case-insensitive: an exact name/alias match first, then alias substring
// containment. The highest-weight match wins.
type RoleRule struct {
	Name    string
	Level   RoleLevel
	Weight  int
	Aliases []string
}

// DefaultRoleRules is the stock workforce hierarchy. Deployments with their
// own role taxonomy inject a replacement via Builder.WithRoleRules.
func DefaultRoleRules() []RoleRule {
	return []RoleRule{
		{Name: "system administrator", Level: RoleSystemAdmin, Weight: 100, Aliases: []string{"sysadmin", "system admin", "superadmin", "administrator"}},
		{Name: "executive", Level: RoleExecutive, Weight: 80, Aliases: []string{"director", "vp", "chief", "head of"}},
		{Name: "manager", Level: RoleManager, Weight: 60, Aliases: []string{"campaign manager", "operations manager", "supervisor"}},
		{Name: "team lead", Level: RoleTeamLead, Weight: 40, Aliases: []string{"lead", "senior agent"}},
		{Name: "agent", Level: RoleAgent, Weight: 20, Aliases: []string{"representative", "rep", "associate"}},
	}
}

const customRoleWeight = 10

// RoleEntry is one classified role on the authorization profile.
type RoleEntry struct {
	Name   string
	Level  RoleLevel
	Weight int
}

// AuthorizationProfile is the flattened capability snapshot attached to
// authenticated user payloads. Claims are advisory and unsigned; downstream
// authorization must re-check the structured flags.
type AuthorizationProfile struct {
	Roles               []RoleEntry
	IsSystemAdmin       bool
	IsExecutive         bool
	IsManager           bool
	CanManageUsers      bool
	CanManagePages      bool
	CampaignPermissions map[string]string
	ManagerID           string
	DirectReports       []string
	Claims              []string
}

type claimsBuilder struct {
	rules []RoleRule
}

func newClaimsBuilder(rules []RoleRule) *claimsBuilder {
	if len(rules) == 0 {
		rules = DefaultRoleRules()
	}
	return &claimsBuilder{rules: rules}
}

// Build recomputes the authorization profile. Nothing here is persisted.
func (b *claimsBuilder) Build(user *User, profile *AccessProfile, scope CampaignScope) *AuthorizationProfile {
	out := &AuthorizationProfile{
		CampaignPermissions: map[string]string{},
	}

	maxWeight := 0
	for _, raw := range user.Roles {
		entry := b.classify(raw)
		out.Roles = append(out.Roles, entry)
		if entry.Weight > maxWeight {
			maxWeight = entry.Weight
		}
	}

	if profile != nil {
		for _, perm := range profile.Permissions {
			if perm.UserID == user.ID && perm.CampaignID != "" {
				out.CampaignPermissions[perm.CampaignID] = perm.Level
			}
		}
		for _, a := range profile.Assignments {
			if a.ManagerID == user.ID && a.UserID != "" {
				out.DirectReports = append(out.DirectReports, a.UserID)
			}
			if a.UserID == user.ID && out.ManagerID == "" {
				out.ManagerID = a.ManagerID
			}
		}
		sort.Strings(out.DirectReports)
	}

	out.IsSystemAdmin = user.IsAdmin || scope.IsGlobalAdmin || maxWeight >= 100
	out.IsExecutive = out.IsSystemAdmin || maxWeight >= 80
	out.IsManager = out.IsExecutive || maxWeight >= 60 || len(out.DirectReports) > 0
	out.CanManageUsers = out.IsExecutive
	out.CanManagePages = out.IsManager

	out.Claims = b.claimStrings(user, scope, out)
	return out
}

func (b *claimsBuilder) classify(rawName string) RoleEntry {
	name := strings.ToLower(strings.TrimSpace(rawName))

	bestWeight := -1
	var bestRule RoleRule
	for _, rule := range b.rules {
		if b.matches(rule, name) && rule.Weight > bestWeight {
			bestWeight = rule.Weight
			bestRule = rule
		}
	}
	if bestWeight < 0 {
		return RoleEntry{Name: rawName, Level: RoleCustom, Weight: customRoleWeight}
	}
	return RoleEntry{Name: rawName, Level: bestRule.Level, Weight: bestRule.Weight}
}

func (b *claimsBuilder) matches(rule RoleRule, name string) bool {
	if name == "" {
		return false
	}
	if name == strings.ToLower(rule.Name) {
		return true
	}
	for _, alias := range rule.Aliases {
		a := strings.ToLower(alias)
		if name == a || strings.Contains(name, a) {
			return true
		}
	}
	return false
}

// claimStrings produces the deterministic, de-duplicated claim list.
func (b *claimsBuilder) claimStrings(user *User, scope CampaignScope, auth *AuthorizationProfile) []string {
	set := map[string]struct{}{}
	add := func(c string) { set[c] = struct{}{} }

	if user.CanLogin {
		add("auth:login-enabled")
	} else {
		add("auth:login-disabled")
	}
	if user.EmailConfirmed {
		add("auth:email-confirmed")
	} else {
		add("auth:email-unconfirmed")
	}

	if scope.IsGlobalAdmin {
		add("admin:global")
	}
	for _, id := range scope.AllowedCampaignIDs {
		add("campaign:" + id + ":access")
	}
	for _, id := range scope.ManagedCampaignIDs {
		add("campaign:" + id + ":manage")
	}
	for _, id := range scope.AdminCampaignIDs {
		add("campaign:" + id + ":admin")
	}

	for _, role := range auth.Roles {
		normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(role.Name)), " ", "-")
		add("role:" + normalized + ":level:" + strconv.Itoa(role.Weight))
	}

	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
