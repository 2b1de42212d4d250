package authcore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/crewdesk/authcore/internal"
)

// mfaConfigured reports whether the user's MFA configuration requires a
// challenge at login.
func mfaConfigured(user *User) bool {
	if !user.MFA.Enabled {
		return false
	}
	return user.MFA.TOTPSecret != "" ||
		user.MFA.DeliveryMethod != "" ||
		user.MFA.BackupCodesRemaining > 0
}

// createMFAChallenge suspends the login into the challenge flow. The
// resolved tenant access is cached on the challenge so verification does
// not recompute it.
func (e *Engine) createMFAChallenge(ctx context.Context, user *User, tenant *TenantAccess, rememberMe bool, meta *ClientMetadata) (*LoginResult, error) {
	now := e.now()
	ch := &mfaChallenge{
		ID:                   uuid.NewString(),
		UserID:               user.ID,
		Email:                user.Email,
		RememberMe:           rememberMe,
		Metadata:             meta,
		CreatedAt:            now.Unix(),
		ExpiresAt:            now.Add(e.config.MFA.ChallengeTTL).Unix(),
		MaxAttempts:          e.config.MFA.MaxAttempts,
		MaxDeliveries:        e.config.MFA.MaxDeliveries,
		DeliveryMethod:       e.preferredDeliveryMethod(user),
		TOTPEnabled:          user.MFA.TOTPSecret != "",
		BackupCodesRemaining: user.MFA.BackupCodesRemaining,
		Tenant:               tenant,
	}

	if err := e.challenges.Save(ctx, ch); err != nil {
		return nil, mapChallengeStoreError(err)
	}

	e.metricInc(MetricMFAChallengeCreated)
	e.emitAudit(ctx, "mfa_challenge_created", user.ID, tenant.SessionScope.ActiveCampaignID, clientIP(meta), true, nil,
		map[string]string{"method": string(ch.DeliveryMethod)})

	return &LoginResult{
		MFARequired: true,
		MFA: &MFAChallengeInfo{
			ChallengeID:         ch.ID,
			DeliveryMethod:      ch.DeliveryMethod,
			ExpiresAt:           time.Unix(ch.ExpiresAt, 0),
			DeliveriesRemaining: ch.MaxDeliveries,
		},
		Tenant:   &tenant.ClientPayload,
		Warnings: tenant.Warnings,
	}, nil
}

// preferredDeliveryMethod: a provisioned authenticator wins, then the
// stored preference, then email.
func (e *Engine) preferredDeliveryMethod(user *User) DeliveryMethod {
	if user.MFA.TOTPSecret != "" {
		return DeliveryTOTP
	}
	switch user.MFA.DeliveryMethod {
	case DeliveryEmail, DeliverySMS:
		return user.MFA.DeliveryMethod
	}
	return DeliveryEmail
}

// BeginMFAChallenge selects the delivery method (override first, then the
// stored preference, then availability) and, for out-of-band methods,
// generates and dispatches a fresh code. Only the code's hash, bound to the
// challenge id, is stored.
func (e *Engine) BeginMFAChallenge(ctx context.Context, challengeID string, override DeliveryMethod) (*DeliveryResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if challengeID == "" {
		return nil, ErrMFAChallengeNotFound
	}

	ch, err := e.challenges.Get(ctx, challengeID)
	if err != nil {
		return nil, mapChallengeStoreError(err)
	}

	user, err := e.directory.FindUserByID(ctx, ch.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSystem, err)
	}
	if user == nil {
		_, _ = e.challenges.Delete(ctx, challengeID)
		return nil, ErrMFAChallengeNotFound
	}

	method := e.selectDeliveryMethod(user, ch, override)
	expiresAt := time.Unix(ch.ExpiresAt, 0)

	if method == DeliveryTOTP {
		if ch.DeliveryMethod != DeliveryTOTP {
			ch.DeliveryMethod = DeliveryTOTP
			if err := e.challenges.Update(ctx, ch); err != nil {
				return nil, mapChallengeStoreError(err)
			}
		}
		return &DeliveryResult{
			Method:              DeliveryTOTP,
			ExpiresAt:           expiresAt,
			DeliveriesRemaining: ch.MaxDeliveries - ch.Deliveries,
		}, nil
	}

	if ch.Deliveries >= ch.MaxDeliveries {
		e.metricInc(MetricMFADeliveryFailed)
		return nil, ErrMFADeliveryFailed
	}

	code, err := internal.NewOTP(e.config.MFA.CodeDigits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSystem, err)
	}

	destination, masked := deliveryDestination(user, method)
	if destination == "" {
		e.metricInc(MetricMFADeliveryFailed)
		return nil, ErrMFADeliveryFailed
	}

	if err := e.notifier.SendMFACode(ctx, destination, method, code, expiresAt); err != nil {
		e.metricInc(MetricMFADeliveryFailed)
		e.emitAudit(ctx, "mfa_delivery", ch.UserID, "", "", false, ErrMFADeliveryFailed,
			map[string]string{"method": string(method)})
		return nil, ErrMFADeliveryFailed
	}

	ch.CodeHash = internal.HashCode(code, ch.ID)
	ch.DeliveryMethod = method
	ch.MaskedDestination = masked
	ch.Deliveries++
	if err := e.challenges.Update(ctx, ch); err != nil {
		return nil, mapChallengeStoreError(err)
	}

	e.metricInc(MetricMFADelivery)
	e.emitAudit(ctx, "mfa_delivery", ch.UserID, "", "", true, nil,
		map[string]string{"method": string(method), "destination": masked})

	return &DeliveryResult{
		Method:              method,
		MaskedDestination:   masked,
		ExpiresAt:           expiresAt,
		DeliveriesRemaining: ch.MaxDeliveries - ch.Deliveries,
	}, nil
}

// selectDeliveryMethod honors override, then stored preference, then
// availability. Overrides the user cannot satisfy are ignored.
func (e *Engine) selectDeliveryMethod(user *User, ch *mfaChallenge, override DeliveryMethod) DeliveryMethod {
	usable := func(m DeliveryMethod) bool {
		switch m {
		case DeliveryTOTP:
			return user.MFA.TOTPSecret != ""
		case DeliverySMS:
			return user.Phone != ""
		case DeliveryEmail:
			return user.Email != ""
		}
		return false
	}

	if override != "" && usable(override) {
		return override
	}
	if ch.DeliveryMethod != "" && usable(ch.DeliveryMethod) {
		return ch.DeliveryMethod
	}
	if usable(DeliveryTOTP) {
		return DeliveryTOTP
	}
	return DeliveryEmail
}

func deliveryDestination(user *User, method DeliveryMethod) (destination, masked string) {
	switch method {
	case DeliverySMS:
		return user.Phone, maskPhone(user.Phone)
	default:
		return user.Email, maskEmail(user.Email)
	}
}

// VerifyMFACode checks the submitted code against the challenge in the
// configured priority order and completes the suspended login on success.
// A consumed or replayed challenge reads as not found.
func (e *Engine) VerifyMFACode(ctx context.Context, challengeID, code string, meta *ClientMetadata) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if challengeID == "" {
		return nil, ErrMFAChallengeNotFound
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrMissingCode
	}

	ch, err := e.challenges.Get(ctx, challengeID)
	if err != nil {
		return nil, mapChallengeStoreError(err)
	}

	user, err := e.directory.FindUserByID(ctx, ch.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSystem, err)
	}
	if user == nil {
		_, _ = e.challenges.Delete(ctx, challengeID)
		return nil, ErrMFAChallengeNotFound
	}

	matched, usedBackup := e.matchChallengeCode(ctx, ch, user, code)
	if !matched {
		exceeded, remaining, err := e.challenges.RecordFailure(ctx, challengeID)
		if err != nil {
			return nil, mapChallengeStoreError(err)
		}
		if exceeded {
			e.metricInc(MetricMFAAttemptsExceeded)
			e.emitAudit(ctx, "mfa_verify", ch.UserID, "", clientIP(meta), false, ErrMFATooManyAttempts, nil)
			return nil, ErrMFATooManyAttempts
		}
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, "mfa_verify", ch.UserID, "", clientIP(meta), false, ErrMFACodeInvalid, nil)
		return nil, &CodeInvalidError{Remaining: remaining}
	}

	deleted, err := e.challenges.Delete(ctx, challengeID)
	if err != nil {
		return nil, mapChallengeStoreError(err)
	}
	if !deleted {
		// Another request consumed this challenge between our read and delete.
		e.metricInc(MetricMFAReplayDetected)
		e.emitAudit(ctx, "mfa_verify", ch.UserID, "", clientIP(meta), false, ErrMFAReplay, nil)
		return nil, ErrMFAReplay
	}

	if usedBackup {
		e.metricInc(MetricBackupCodeUsed)
	}

	tenant := ch.Tenant
	if tenant == nil {
		tenant, err = e.tenants.Resolve(ctx, user, "")
		if err != nil {
			return nil, err
		}
	}

	clientMeta := meta
	if clientMeta == nil {
		clientMeta = ch.Metadata
	}

	return e.createSessionResult(ctx, user, tenant, ch.RememberMe, clientMeta, MetricMFASuccess, "mfa_success")
}

// matchChallengeCode walks the configured verification order. All internal
// failures count as a mismatch; nothing here may fail open.
func (e *Engine) matchChallengeCode(ctx context.Context, ch *mfaChallenge, user *User, code string) (matched, usedBackup bool) {
	for _, step := range e.config.MFA.VerifyOrder {
		switch step {
		case "totp":
			if !ch.TOTPEnabled || user.MFA.TOTPSecret == "" {
				continue
			}
			ok, err := e.totp.VerifyCode(user.MFA.TOTPSecret, code, e.now())
			if err == nil && ok {
				return true, false
			}
		case "code":
			if ch.CodeHash == "" {
				continue
			}
			if internal.ConstantTimeEquals(internal.HashCode(code, ch.ID), ch.CodeHash) {
				return true, false
			}
		case "backup":
			if user.MFA.BackupCodesRemaining <= 0 {
				continue
			}
			ok, err := e.directory.ConsumeBackupCode(ctx, user.ID, code)
			if err == nil && ok {
				return true, true
			}
		}
	}
	return false, false
}

func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

func maskPhone(phone string) string {
	digits := strings.TrimSpace(phone)
	if len(digits) < 4 {
		return "***"
	}
	return "***" + digits[len(digits)-4:]
}
