package authcore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/crewdesk/authcore/session"
)

// Engine is the authentication and session-security engine. Construct it
// once through [Builder.Build]; all methods are safe for concurrent use.
type Engine struct {
	config     Config
	sessions   *session.Manager
	challenges *challengeStore
	devices    *deviceStore
	tenants    *tenantResolver
	claims     *claimsBuilder
	totp       *totpManager
	passwords  PasswordVerifier
	directory  UserDirectory
	notifier   Notifier
	locks      *opLock
	audit      *auditDispatcher
	metrics    *Metrics
	now        func() time.Time
}

// Close drains and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Login authenticates email/password and either returns a session or
// suspends into the MFA or device verification flow. Credential failures
// are uniform: unknown accounts and wrong passwords are indistinguishable.
func (e *Engine) Login(ctx context.Context, email, password string, rememberMe bool, meta *ClientMetadata) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	if meta == nil {
		meta = ClientMetadataFromContext(ctx)
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrMissingEmail
	}
	if password == "" {
		return nil, ErrMissingPassword
	}

	user, err := e.directory.FindUserByEmail(ctx, email)
	if err != nil {
		e.loginFailure(ctx, "", meta, err)
		return nil, fmt.Errorf("%w: %v", ErrSystem, err)
	}
	if user == nil {
		e.loginFailure(ctx, "", meta, ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	if user.PasswordHash == "" {
		e.loginFailure(ctx, user.ID, meta, ErrPasswordNotSet)
		return nil, ErrPasswordNotSet
	}

	ok, err := e.passwords.Verify(password, user.PasswordHash)
	if err != nil || !ok {
		// A verifier error is indistinguishable from a mismatch: fail closed.
		e.loginFailure(ctx, user.ID, meta, ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	if err := gateAccount(user); err != nil {
		e.loginFailure(ctx, user.ID, meta, err)
		return nil, err
	}

	tenant, err := e.tenants.Resolve(ctx, user, requestedCampaign(meta))
	if err != nil {
		e.metricInc(MetricTenantAccessDenied)
		e.loginFailure(ctx, user.ID, meta, err)
		return nil, err
	}
	if tenant.NeedsCampaignAssignment {
		e.metricInc(MetricTenantUnassigned)
	}

	if mfaConfigured(user) {
		return e.createMFAChallenge(ctx, user, tenant, rememberMe, meta)
	}

	suspended, err := e.evaluateDevice(ctx, user, rememberMe, meta)
	if err != nil {
		return nil, err
	}
	if suspended != nil {
		return suspended, nil
	}

	return e.createSessionResult(ctx, user, tenant, rememberMe, meta, MetricLoginSuccess, "login_success")
}

// GetSessionUser resolves and touches the session for token and returns the
// decorated owner payload. Sessions whose owner no longer exists are
// removed.
func (e *Engine) GetSessionUser(ctx context.Context, token string) (*UserPayload, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	res, err := e.sessions.Resolve(ctx, token, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSystem, err)
	}
	if e.metrics != nil {
		e.metrics.Observe(MetricResolveLatency, time.Since(start))
	}

	switch res.Status {
	case session.StatusNotFound:
		return nil, ErrSessionNotFound
	case session.StatusExpired:
		e.metricInc(MetricSessionExpired)
		e.emitAudit(ctx, "session_expired", res.Record.UserID, "", "", false, ErrSessionExpired, map[string]string{"reason": res.Reason})
		return nil, ErrSessionExpired
	}

	rec := res.Record
	user, err := e.directory.FindUserByID(ctx, rec.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSystem, err)
	}
	if user == nil {
		_ = e.sessions.Invalidate(ctx, token)
		return nil, ErrSessionNotFound
	}

	var scope CampaignScope
	if rec.CampaignScope != "" {
		_ = json.Unmarshal([]byte(rec.CampaignScope), &scope)
	}

	return e.buildUserPayload(ctx, user, scope, summaryFromScope(scope)), nil
}

// KeepAlive touches the session and reports its status.
func (e *Engine) KeepAlive(ctx context.Context, token string) (*SessionStatus, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	res, err := e.sessions.Resolve(ctx, token, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSystem, err)
	}

	switch res.Status {
	case session.StatusNotFound:
		return nil, ErrSessionNotFound
	case session.StatusExpired:
		e.metricInc(MetricSessionExpired)
		return &SessionStatus{
			Active: false,
			UserID: res.Record.UserID,
			Reason: res.Reason,
		}, nil
	}

	e.metricInc(MetricKeepAlive)
	rec := res.Record
	return &SessionStatus{
		Active:             true,
		UserID:             rec.UserID,
		ExpiresAt:          rec.ExpiresAt,
		LastActivityAt:     rec.LastActivityAt,
		IdleTimeoutMinutes: rec.IdleTimeoutMinutes,
	}, nil
}

// Logout invalidates the session for token. Unknown tokens are a no-op.
func (e *Engine) Logout(ctx context.Context, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	if err := e.sessions.Invalidate(ctx, token); err != nil {
		return fmt.Errorf("%w: %v", ErrSystem, err)
	}

	e.metricInc(MetricSessionInvalidated)
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, "logout", "", "", "", true, nil, nil)
	return nil
}

// ActiveSessionForUser reports the most recently active live session for a
// user without exposing its token.
func (e *Engine) ActiveSessionForUser(ctx context.Context, userID string) (*SessionInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	rec, err := e.sessions.FindActiveForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSystem, err)
	}
	if rec == nil {
		return nil, nil
	}
	return &SessionInfo{
		UserID:         rec.UserID,
		CreatedAt:      rec.CreatedAt,
		LastActivityAt: rec.LastActivityAt,
		ExpiresAt:      rec.ExpiresAt,
		RememberMe:     rec.RememberMe,
	}, nil
}

// gateAccount applies the account-status checks in their fixed order.
func gateAccount(user *User) error {
	if !user.CanLogin {
		return ErrAccountDisabled
	}
	if !user.EmailConfirmed {
		return ErrEmailNotConfirmed
	}
	if user.ResetRequired {
		return ErrPasswordResetRequired
	}
	return nil
}

func requestedCampaign(meta *ClientMetadata) string {
	if meta == nil {
		return ""
	}
	return meta.RequestedCampaignID
}

func sessionMetadata(meta *ClientMetadata) session.Metadata {
	if meta == nil {
		return session.Metadata{}
	}
	return session.Metadata{
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
		ServerIP:  meta.ServerIP,
	}
}

func summaryFromScope(scope CampaignScope) *TenantSummary {
	return &TenantSummary{
		ActiveCampaignID:        scope.ActiveCampaignID,
		AllowedCampaignIDs:      scope.AllowedCampaignIDs,
		IsGlobalAdmin:           scope.IsGlobalAdmin,
		NeedsCampaignAssignment: !scope.IsGlobalAdmin && len(scope.AllowedCampaignIDs) == 0,
	}
}

// createSessionResult finishes an authenticated flow: persists the session,
// decorates the user payload, and reports the outcome.
func (e *Engine) createSessionResult(
	ctx context.Context,
	user *User,
	tenant *TenantAccess,
	rememberMe bool,
	meta *ClientMetadata,
	successMetric MetricID,
	event string,
) (*LoginResult, error) {
	scopeJSON, err := json.Marshal(tenant.SessionScope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	created, err := e.sessions.Create(ctx, user.ID, rememberMe, string(scopeJSON), sessionMetadata(meta))
	if err != nil {
		e.emitAudit(ctx, event, user.ID, tenant.SessionScope.ActiveCampaignID, clientIP(meta), false, ErrSessionCreationFailed, nil)
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	payload := e.buildUserPayload(ctx, user, tenant.SessionScope, &tenant.ClientPayload)

	e.metricInc(MetricSessionCreated)
	e.metricInc(successMetric)
	e.emitAudit(ctx, event, user.ID, tenant.SessionScope.ActiveCampaignID, clientIP(meta), true, nil, nil)

	return &LoginResult{
		Success:                 true,
		Token:                   created.Token,
		ExpiresAt:               created.ExpiresAt,
		TTLSeconds:              created.TTLSeconds,
		IdleTimeoutMinutes:      created.IdleTimeoutMinutes,
		User:                    payload,
		Tenant:                  &tenant.ClientPayload,
		Warnings:                tenant.Warnings,
		NeedsCampaignAssignment: tenant.NeedsCampaignAssignment,
	}, nil
}

// buildUserPayload recomputes the authorization profile for every payload;
// nothing derived here is persisted.
func (e *Engine) buildUserPayload(ctx context.Context, user *User, scope CampaignScope, summary *TenantSummary) *UserPayload {
	profile := e.tenants.Profile(ctx, user)
	return &UserPayload{
		ID:            user.ID,
		Email:         user.Email,
		FirstName:     user.FirstName,
		LastName:      user.LastName,
		IsAdmin:       user.IsAdmin,
		CampaignID:    user.CampaignID,
		Tenant:        summary,
		Authorization: e.claims.Build(user, profile, scope),
	}
}

func (e *Engine) loginFailure(ctx context.Context, userID string, meta *ClientMetadata, cause error) {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, "login_failure", userID, "", clientIP(meta), false, cause, nil)
}

func clientIP(meta *ClientMetadata) string {
	if meta == nil {
		return ""
	}
	return meta.IPAddress
}

func (e *Engine) emitAudit(ctx context.Context, eventType, userID, campaignID, ip string, success bool, cause error, extra map[string]string) {
	if e == nil || e.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp:  e.now(),
		EventType:  eventType,
		UserID:     userID,
		CampaignID: campaignID,
		IP:         ip,
		Success:    success,
		Metadata:   extra,
	}
	if cause != nil {
		event.Error = ErrorCode(cause)
	}
	e.audit.Emit(ctx, event)
}
