package authcore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/crewdesk/authcore/internal"
)

// evaluateDevice runs the device-trust check after password (and any MFA)
// success. A nil result means the device is trusted or fingerprinting is
// unavailable and the login may proceed; a non-nil result suspends the login
// pending email confirmation of the new device.
func (e *Engine) evaluateDevice(ctx context.Context, user *User, rememberMe bool, meta *ClientMetadata) (*LoginResult, error) {
	if !e.config.DeviceTrust.Enabled || meta == nil {
		return nil, nil
	}

	fingerprint := internal.Fingerprint(
		user.ID,
		meta.UserAgent,
		meta.Platform,
		meta.Language,
		meta.Languages,
		meta.TimezoneOffsetMinutes,
		meta.IPAddress,
	)
	if fingerprint == "" {
		return nil, nil
	}

	now := e.now()
	rec, found, err := e.devices.GetByFingerprint(ctx, user.ID, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceVerification, err)
	}

	if found && rec.Status == deviceTrusted {
		rec.LastSeenAt = now
		rec.UpdatedAt = now
		if saveErr := e.devices.Save(ctx, rec); saveErr != nil {
			e.emitAudit(ctx, "device_seen", user.ID, "", clientIP(meta), false, ErrDeviceVerification, nil)
		}
		e.metricInc(MetricDeviceTrusted)
		return nil, nil
	}

	verificationID := uuid.NewString()
	code, err := internal.NewOTP(e.config.DeviceTrust.CodeDigits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceVerification, err)
	}
	expiresAt := now.Add(e.config.DeviceTrust.VerificationTTL)

	if !found {
		rec = &deviceRecord{
			ID:          uuid.NewString(),
			UserID:      user.ID,
			Fingerprint: fingerprint,
			CreatedAt:   now,
		}
	}
	rec.IPAddress = meta.IPAddress
	rec.ServerIP = meta.ServerIP
	rec.UserAgent = meta.UserAgent
	rec.Platform = meta.Platform
	rec.Languages = strings.Join(meta.Languages, ",")
	rec.TimezoneOffsetMinutes = meta.TimezoneOffsetMinutes
	rec.Status = devicePending
	rec.UpdatedAt = now
	rec.LastSeenAt = now
	rec.PendingVerificationID = verificationID
	rec.PendingVerificationExpiresAt = expiresAt
	rec.PendingVerificationCodeHash = internal.HashCode(code, verificationID)
	rec.PendingRememberMe = rememberMe

	if metaJSON, err := json.Marshal(meta); err == nil {
		rec.PendingMetadataJSON = string(metaJSON)
	}

	if err := e.devices.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceVerification, err)
	}

	if err := e.notifier.SendDeviceVerification(ctx, user, meta, code, expiresAt); err != nil {
		e.emitAudit(ctx, "device_verification_sent", user.ID, "", clientIP(meta), false, ErrDeviceEmailFailed, nil)
		return nil, ErrDeviceEmailFailed
	}

	e.metricInc(MetricDevicePending)
	e.emitAudit(ctx, "device_verification_sent", user.ID, "", clientIP(meta), true, nil,
		map[string]string{"verification_id": verificationID})

	return &LoginResult{
		DeviceVerificationRequired: true,
		Device: &DeviceVerificationInfo{
			VerificationID: verificationID,
			ExpiresAt:      expiresAt,
		},
	}, nil
}

// ConfirmDeviceVerification consumes a pending verification and completes the
// suspended login. The operation lock serializes concurrent confirmations of
// the same verification id.
func (e *Engine) ConfirmDeviceVerification(ctx context.Context, verificationID, code string, meta *ClientMetadata) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if verificationID == "" {
		return nil, ErrInvalidVerification
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrMissingCode
	}

	release, ok, err := e.locks.Acquire(ctx, "dv:"+verificationID)
	if err != nil || !ok {
		return nil, ErrDeviceVerification
	}
	defer release()

	rec, found, err := e.devices.GetByVerificationID(ctx, verificationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceVerification, err)
	}
	if !found {
		return nil, ErrInvalidVerification
	}

	now := e.now()
	if now.After(rec.PendingVerificationExpiresAt) {
		rec.Status = deviceExpired
		rec.UpdatedAt = now
		staleID := rec.PendingVerificationID
		rec.clearPending()
		_ = e.devices.Save(ctx, rec)
		_ = e.devices.DropVerificationIndex(ctx, staleID)
		e.metricInc(MetricDeviceExpired)
		e.emitAudit(ctx, "device_confirm", rec.UserID, "", clientIP(meta), false, ErrVerificationExpired, nil)
		return nil, ErrVerificationExpired
	}

	if !internal.ConstantTimeEquals(internal.HashCode(code, verificationID), rec.PendingVerificationCodeHash) {
		e.emitAudit(ctx, "device_confirm", rec.UserID, "", clientIP(meta), false, ErrInvalidCode, nil)
		return nil, ErrInvalidCode
	}

	user, err := e.directory.FindUserByID(ctx, rec.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSystem, err)
	}
	if user == nil {
		return nil, ErrInvalidVerification
	}

	// The account may have changed since login; re-apply the gates.
	if err := gateAccount(user); err != nil {
		return nil, err
	}

	loginMeta := meta
	if loginMeta == nil && rec.PendingMetadataJSON != "" {
		var stored ClientMetadata
		if json.Unmarshal([]byte(rec.PendingMetadataJSON), &stored) == nil {
			loginMeta = &stored
		}
	}
	rememberMe := rec.PendingRememberMe

	tenant, err := e.tenants.Resolve(ctx, user, requestedCampaign(loginMeta))
	if err != nil {
		e.metricInc(MetricTenantAccessDenied)
		return nil, err
	}

	rec.Status = deviceTrusted
	rec.ConfirmedAt = now
	rec.LastSeenAt = now
	rec.UpdatedAt = now
	rec.clearPending()
	if err := e.devices.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceVerification, err)
	}
	_ = e.devices.DropVerificationIndex(ctx, verificationID)

	e.metricInc(MetricDeviceConfirmed)
	return e.createSessionResult(ctx, user, tenant, rememberMe, loginMeta, MetricLoginSuccess, "device_confirmed")
}

// DenyDeviceVerification marks the pending device denied and alerts the
// account owner. Denial needs no code: possession of the link is enough to
// refuse a login that was not yours.
func (e *Engine) DenyDeviceVerification(ctx context.Context, verificationID string, meta *ClientMetadata) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if verificationID == "" {
		return ErrInvalidVerification
	}

	release, ok, err := e.locks.Acquire(ctx, "dv:"+verificationID)
	if err != nil || !ok {
		return ErrDeviceVerification
	}
	defer release()

	rec, found, err := e.devices.GetByVerificationID(ctx, verificationID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceVerification, err)
	}
	if !found {
		return ErrInvalidVerification
	}

	now := e.now()
	var storedMeta *ClientMetadata
	if rec.PendingMetadataJSON != "" {
		var m ClientMetadata
		if json.Unmarshal([]byte(rec.PendingMetadataJSON), &m) == nil {
			storedMeta = &m
		}
	}

	rec.Status = deviceDenied
	rec.DeniedAt = now
	rec.DenialReason = "user_denied"
	rec.UpdatedAt = now
	rec.clearPending()
	if err := e.devices.Save(ctx, rec); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceVerification, err)
	}
	_ = e.devices.DropVerificationIndex(ctx, verificationID)

	alert := DeviceDenialAlert{
		UserID:         rec.UserID,
		VerificationID: verificationID,
		Fingerprint:    rec.Fingerprint,
		DeniedAt:       now,
		Metadata:       storedMeta,
	}
	if user, err := e.directory.FindUserByID(ctx, rec.UserID); err == nil && user != nil {
		alert.Email = user.Email
	}
	if err := e.notifier.SendDeviceDeniedAlert(ctx, alert); err != nil {
		e.emitAudit(ctx, "device_denied_alert", rec.UserID, "", clientIP(meta), false, ErrDeviceEmailFailed, nil)
	}

	e.metricInc(MetricDeviceDenied)
	e.emitAudit(ctx, "device_denied", rec.UserID, "", clientIP(meta), true, nil,
		map[string]string{"verification_id": verificationID})
	return nil
}
