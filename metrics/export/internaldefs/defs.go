// Package internaldefs holds the shared metric name and bucket definitions
// used by the exporter backends.
package internaldefs

import (
	authcore "github.com/crewdesk/authcore"
)

// CounterDef binds one core counter to its exported name and help text.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef binds one core histogram to its exported name and help text.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs enumerates every exported counter. Exporters iterate this
// slice so the two backends stay in step.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful login attempts."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed login attempts."},
	{ID: authcore.MetricMFAChallengeCreated, Name: "authcore_mfa_challenge_created_total", Help: "Created MFA challenges."},
	{ID: authcore.MetricMFADelivery, Name: "authcore_mfa_delivery_total", Help: "Dispatched MFA codes."},
	{ID: authcore.MetricMFADeliveryFailed, Name: "authcore_mfa_delivery_failed_total", Help: "Failed MFA code dispatches."},
	{ID: authcore.MetricMFASuccess, Name: "authcore_mfa_success_total", Help: "Successful MFA verifications."},
	{ID: authcore.MetricMFAFailure, Name: "authcore_mfa_failure_total", Help: "Failed MFA verifications."},
	{ID: authcore.MetricMFAAttemptsExceeded, Name: "authcore_mfa_attempts_exceeded_total", Help: "MFA challenges invalidated due to attempt cap."},
	{ID: authcore.MetricMFAReplayDetected, Name: "authcore_mfa_replay_detected_total", Help: "Detected MFA challenge replays."},
	{ID: authcore.MetricBackupCodeUsed, Name: "authcore_backup_code_used_total", Help: "Successful backup-code authentications."},
	{ID: authcore.MetricDeviceTrusted, Name: "authcore_device_trusted_total", Help: "Logins from already-trusted devices."},
	{ID: authcore.MetricDevicePending, Name: "authcore_device_pending_total", Help: "Logins suspended into device verification."},
	{ID: authcore.MetricDeviceConfirmed, Name: "authcore_device_confirmed_total", Help: "Confirmed device verifications."},
	{ID: authcore.MetricDeviceDenied, Name: "authcore_device_denied_total", Help: "Denied device verifications."},
	{ID: authcore.MetricDeviceExpired, Name: "authcore_device_expired_total", Help: "Expired device verifications."},
	{ID: authcore.MetricTenantAccessDenied, Name: "authcore_tenant_access_denied_total", Help: "Logins denied by campaign access checks."},
	{ID: authcore.MetricTenantUnassigned, Name: "authcore_tenant_unassigned_total", Help: "Logins resolved without campaign assignments."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Created sessions."},
	{ID: authcore.MetricSessionExpired, Name: "authcore_session_expired_total", Help: "Sessions expired on touch."},
	{ID: authcore.MetricSessionInvalidated, Name: "authcore_session_invalidated_total", Help: "Invalidated sessions."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Logout operations."},
	{ID: authcore.MetricKeepAlive, Name: "authcore_keep_alive_total", Help: "Keep-alive touches."},
}

// HistogramDefs enumerates every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricResolveLatency, Name: "authcore_resolve_latency_seconds", Help: "Session resolve latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, matching the core
// collector's fixed buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix are metric-name-safe renderings of HistogramBounds.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets widens a raw snapshot slice to the fixed bucket array.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form both
// exposition formats expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
