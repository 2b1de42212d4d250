package authcore

import (
	"context"
)

// Warnings attached to successful tenant resolutions.
const (
	WarningNoCampaignAssignments = "NO_CAMPAIGN_ASSIGNMENTS"
	WarningTenantProfileDegraded = "TENANT_PROFILE_DEGRADED"
)

// tenantResolver computes a user's campaign scope per login. Profiles are
// never cached between logins; the resolved scope is serialized into the
// session for later replay.
type tenantResolver struct {
	profiles AccessProfileProvider
}

func newTenantResolver(profiles AccessProfileProvider) *tenantResolver {
	return &tenantResolver{profiles: profiles}
}

// Resolve builds the tenant access for user. A failing or absent provider
// degrades to a single-campaign scope from the user record. An empty
// allowed set for a non-global-admin resolves successfully with
// NeedsCampaignAssignment set; only an explicitly requested campaign
// outside the allowed set denies.
func (r *tenantResolver) Resolve(ctx context.Context, user *User, requestedCampaignID string) (*TenantAccess, error) {
	if user == nil {
		return nil, ErrTenantProfile
	}

	profile, warnings := r.loadProfile(ctx, user)

	if user.IsAdmin {
		profile.IsGlobalAdmin = true
	}

	if requestedCampaignID != "" && !profile.IsGlobalAdmin {
		if !containsString(profile.AllowedCampaignIDs, requestedCampaignID) {
			return nil, ErrCampaignAccessDenied
		}
	}

	needsAssignment := false
	if !profile.IsGlobalAdmin && len(profile.AllowedCampaignIDs) == 0 {
		needsAssignment = true
		warnings = append(warnings, WarningNoCampaignAssignments)
	}

	active := r.activeCampaign(profile, requestedCampaignID)

	scope := CampaignScope{
		IsGlobalAdmin:      profile.IsGlobalAdmin,
		DefaultCampaignID:  profile.DefaultCampaignID,
		ActiveCampaignID:   active,
		AllowedCampaignIDs: profile.AllowedCampaignIDs,
		ManagedCampaignIDs: profile.ManagedCampaignIDs,
		AdminCampaignIDs:   profile.AdminCampaignIDs,
		TenantContext:      active,
	}

	return &TenantAccess{
		SessionScope: scope,
		ClientPayload: TenantSummary{
			ActiveCampaignID:        active,
			AllowedCampaignIDs:      profile.AllowedCampaignIDs,
			IsGlobalAdmin:           profile.IsGlobalAdmin,
			NeedsCampaignAssignment: needsAssignment,
		},
		Warnings:                warnings,
		NeedsCampaignAssignment: needsAssignment,
	}, nil
}

// Profile returns the best-available access profile for payload building.
func (r *tenantResolver) Profile(ctx context.Context, user *User) *AccessProfile {
	profile, _ := r.loadProfile(ctx, user)
	return profile
}

// loadProfile pulls the access profile, falling back to the degraded
// single-campaign scope derived from the user record.
func (r *tenantResolver) loadProfile(ctx context.Context, user *User) (*AccessProfile, []string) {
	if r.profiles != nil {
		profile, err := r.profiles.GetAccessProfile(ctx, user.ID)
		if err == nil && profile != nil {
			return profile, nil
		}
		if err != nil {
			return r.degradedProfile(user), []string{WarningTenantProfileDegraded}
		}
	}
	return r.degradedProfile(user), nil
}

func (r *tenantResolver) degradedProfile(user *User) *AccessProfile {
	profile := &AccessProfile{
		IsGlobalAdmin:     user.IsAdmin,
		DefaultCampaignID: user.CampaignID,
	}
	if user.CampaignID != "" {
		profile.AllowedCampaignIDs = []string{user.CampaignID}
	}
	return profile
}

// activeCampaign selection order: requested, permitted default, first allowed.
func (r *tenantResolver) activeCampaign(profile *AccessProfile, requested string) string {
	if requested != "" {
		return requested
	}
	if profile.DefaultCampaignID != "" {
		if profile.IsGlobalAdmin || containsString(profile.AllowedCampaignIDs, profile.DefaultCampaignID) {
			return profile.DefaultCampaignID
		}
	}
	if len(profile.AllowedCampaignIDs) > 0 {
		return profile.AllowedCampaignIDs[0]
	}
	return ""
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
