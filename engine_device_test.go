package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func beginDeviceLogin(t *testing.T, env *testEnv, meta *ClientMetadata) *LoginResult {
	t.Helper()
	result, err := env.engine.Login(context.Background(), "alice@example.com", "correct-password-123", false, meta)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !result.DeviceVerificationRequired || result.Device == nil || result.Device.VerificationID == "" {
		t.Fatalf("expected device verification to be required, got %+v", result)
	}
	if result.Token != "" {
		t.Fatal("expected no session token before device confirmation")
	}
	return result
}

func TestLoginWithoutMetadataSkipsDeviceTrust(t *testing.T) {
	env := newTestEngine(t, nil)

	result, err := env.engine.Login(context.Background(), "alice@example.com", "correct-password-123", false, nil)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.DeviceVerificationRequired {
		t.Fatal("expected no device check without client metadata")
	}
}

func TestLoginNewDeviceSuspends(t *testing.T) {
	env := newTestEngine(t, nil)

	result := beginDeviceLogin(t, env, testMetadata())

	if env.records.Len(deviceTable) != 1 {
		t.Fatalf("expected one pending device row, got %d", env.records.Len(deviceTable))
	}
	if env.records.Len(deviceVerifyIndexTable) != 1 {
		t.Fatalf("expected one verification index row, got %d", env.records.Len(deviceVerifyIndexTable))
	}

	sent := env.notifier.lastDeviceCode(t)
	if sent.UserID != "u1" {
		t.Fatalf("expected device code for u1, got %+v", sent)
	}
	if result.Device.ExpiresAt.Before(env.clock.Now()) {
		t.Fatal("expected verification expiry in the future")
	}
}

func TestDeviceConfirmIssuesSessionAndTrustsDevice(t *testing.T) {
	env := newTestEngine(t, nil)
	meta := testMetadata()

	result := beginDeviceLogin(t, env, meta)
	code := env.notifier.lastDeviceCode(t).Code

	confirmed, err := env.engine.ConfirmDeviceVerification(context.Background(), result.Device.VerificationID, code, meta)
	if err != nil {
		t.Fatalf("ConfirmDeviceVerification failed: %v", err)
	}
	if !confirmed.Success || confirmed.Token == "" {
		t.Fatalf("expected session after confirmation, got %+v", confirmed)
	}
	if env.records.Len(deviceVerifyIndexTable) != 0 {
		t.Fatal("expected verification index to be dropped")
	}

	// The same device logs straight in next time.
	again, err := env.engine.Login(context.Background(), "alice@example.com", "correct-password-123", false, meta)
	if err != nil {
		t.Fatalf("repeat login failed: %v", err)
	}
	if again.DeviceVerificationRequired {
		t.Fatal("expected trusted device to skip verification")
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricDeviceTrusted]; got != 1 {
		t.Fatalf("expected trusted-device metric 1, got %d", got)
	}
}

func TestDeviceConfirmRestoresRememberMe(t *testing.T) {
	env := newTestEngine(t, nil)
	meta := testMetadata()

	result, err := env.engine.Login(context.Background(), "alice@example.com", "correct-password-123", true, meta)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	code := env.notifier.lastDeviceCode(t).Code

	confirmed, err := env.engine.ConfirmDeviceVerification(context.Background(), result.Device.VerificationID, code, nil)
	if err != nil {
		t.Fatalf("ConfirmDeviceVerification failed: %v", err)
	}

	longTTL := int(DefaultConfig().Session.LongTTL / time.Second)
	if confirmed.TTLSeconds != longTTL {
		t.Fatalf("expected remember-me TTL %d, got %d", longTTL, confirmed.TTLSeconds)
	}
}

func TestDeviceConfirmWrongCode(t *testing.T) {
	env := newTestEngine(t, nil)
	result := beginDeviceLogin(t, env, testMetadata())

	if _, err := env.engine.ConfirmDeviceVerification(context.Background(), result.Device.VerificationID, "000000", nil); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}

	// The pending verification survives a wrong code.
	code := env.notifier.lastDeviceCode(t).Code
	if _, err := env.engine.ConfirmDeviceVerification(context.Background(), result.Device.VerificationID, code, nil); err != nil {
		t.Fatalf("confirm with correct code failed after wrong attempt: %v", err)
	}
}

func TestDeviceConfirmExpired(t *testing.T) {
	env := newTestEngine(t, func(cfg *Config) {
		cfg.DeviceTrust.VerificationTTL = 10 * time.Minute
	})
	result := beginDeviceLogin(t, env, testMetadata())
	code := env.notifier.lastDeviceCode(t).Code

	env.clock.Advance(11 * time.Minute)

	if _, err := env.engine.ConfirmDeviceVerification(context.Background(), result.Device.VerificationID, code, nil); !errors.Is(err, ErrVerificationExpired) {
		t.Fatalf("expected ErrVerificationExpired, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricDeviceExpired]; got != 1 {
		t.Fatalf("expected expired metric 1, got %d", got)
	}

	// The consumed verification id is gone.
	if _, err := env.engine.ConfirmDeviceVerification(context.Background(), result.Device.VerificationID, code, nil); !errors.Is(err, ErrInvalidVerification) {
		t.Fatalf("expected ErrInvalidVerification, got %v", err)
	}
}

func TestDeviceConfirmUnknownVerification(t *testing.T) {
	env := newTestEngine(t, nil)

	if _, err := env.engine.ConfirmDeviceVerification(context.Background(), "no-such-id", "123456", nil); !errors.Is(err, ErrInvalidVerification) {
		t.Fatalf("expected ErrInvalidVerification, got %v", err)
	}
	if _, err := env.engine.ConfirmDeviceVerification(context.Background(), "", "123456", nil); !errors.Is(err, ErrInvalidVerification) {
		t.Fatalf("expected ErrInvalidVerification for empty id, got %v", err)
	}
	if _, err := env.engine.ConfirmDeviceVerification(context.Background(), "no-such-id", "", nil); !errors.Is(err, ErrMissingCode) {
		t.Fatalf("expected ErrMissingCode, got %v", err)
	}
}

func TestDeviceConfirmReappliesAccountGates(t *testing.T) {
	env := newTestEngine(t, nil)
	result := beginDeviceLogin(t, env, testMetadata())
	code := env.notifier.lastDeviceCode(t).Code

	env.dir.byID["u1"].CanLogin = false

	if _, err := env.engine.ConfirmDeviceVerification(context.Background(), result.Device.VerificationID, code, nil); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestDeviceDeny(t *testing.T) {
	env := newTestEngine(t, nil)
	result := beginDeviceLogin(t, env, testMetadata())
	code := env.notifier.lastDeviceCode(t).Code

	if err := env.engine.DenyDeviceVerification(context.Background(), result.Device.VerificationID, nil); err != nil {
		t.Fatalf("DenyDeviceVerification failed: %v", err)
	}

	env.notifier.mu.Lock()
	denials := len(env.notifier.denials)
	var alert DeviceDenialAlert
	if denials > 0 {
		alert = env.notifier.denials[0]
	}
	env.notifier.mu.Unlock()
	if denials != 1 {
		t.Fatalf("expected one denial alert, got %d", denials)
	}
	if alert.UserID != "u1" || alert.Email != "alice@example.com" {
		t.Fatalf("expected alert for u1, got %+v", alert)
	}

	// A denied verification cannot be confirmed afterwards.
	if _, err := env.engine.ConfirmDeviceVerification(context.Background(), result.Device.VerificationID, code, nil); !errors.Is(err, ErrInvalidVerification) {
		t.Fatalf("expected ErrInvalidVerification after denial, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricDeviceDenied]; got != 1 {
		t.Fatalf("expected denied metric 1, got %d", got)
	}
}

func TestDeviceEmailDispatchFailure(t *testing.T) {
	env := newTestEngine(t, nil)
	env.notifier.failDevice = true

	if _, err := env.engine.Login(context.Background(), "alice@example.com", "correct-password-123", false, testMetadata()); !errors.Is(err, ErrDeviceEmailFailed) {
		t.Fatalf("expected ErrDeviceEmailFailed, got %v", err)
	}
}

func TestDeviceFingerprintIsStablePerClient(t *testing.T) {
	env := newTestEngine(t, nil)
	meta := testMetadata()

	first := beginDeviceLogin(t, env, meta)
	second := beginDeviceLogin(t, env, meta)

	// Same client signature reuses the single device row with a fresh
	// verification id.
	if env.records.Len(deviceTable) != 1 {
		t.Fatalf("expected one device row for repeat logins, got %d", env.records.Len(deviceTable))
	}
	if first.Device.VerificationID == second.Device.VerificationID {
		t.Fatal("expected a fresh verification id per suspended login")
	}

	// The superseded verification id no longer resolves.
	code := env.notifier.lastDeviceCode(t).Code
	if _, err := env.engine.ConfirmDeviceVerification(context.Background(), first.Device.VerificationID, code, nil); !errors.Is(err, ErrInvalidVerification) {
		t.Fatalf("expected superseded id to be invalid, got %v", err)
	}
	if _, err := env.engine.ConfirmDeviceVerification(context.Background(), second.Device.VerificationID, code, nil); err != nil {
		t.Fatalf("confirm with current id failed: %v", err)
	}
}

func TestDeviceTrustDisabled(t *testing.T) {
	env := newTestEngine(t, func(cfg *Config) {
		cfg.DeviceTrust.Enabled = false
	})

	result, err := env.engine.Login(context.Background(), "alice@example.com", "correct-password-123", false, testMetadata())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.DeviceVerificationRequired {
		t.Fatal("expected no device check when disabled")
	}
}
