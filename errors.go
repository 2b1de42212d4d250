package authcore

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineNotReady is returned when an Engine method is called on a nil
	// or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrMissingEmail is returned when login is attempted without an email.
	ErrMissingEmail = errors.New("missing email")
	// ErrMissingPassword is returned when login is attempted without a password.
	ErrMissingPassword = errors.New("missing password")
	// ErrMissingCode is returned when a verification code is required but absent.
	ErrMissingCode = errors.New("missing verification code")
	// ErrInvalidVerification is returned for unknown or malformed verification ids.
	ErrInvalidVerification = errors.New("invalid verification")
	// ErrInvalidCredentials covers both unknown users and wrong passwords so
	// callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountDisabled is returned when login is disabled for the account.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrEmailNotConfirmed is returned when the account email is unconfirmed.
	ErrEmailNotConfirmed = errors.New("email not confirmed")
	// ErrPasswordResetRequired short-circuits login until the password is reset.
	ErrPasswordResetRequired = errors.New("password reset required")
	// ErrPasswordNotSet is returned when the account has no stored password hash.
	ErrPasswordNotSet = errors.New("password not set")
	// ErrNoCampaignAccess is returned when tenant resolution yields no usable scope.
	ErrNoCampaignAccess = errors.New("no campaign access")
	// ErrCampaignAccessDenied is returned when a requested campaign is outside
	// the caller's allowed set.
	ErrCampaignAccessDenied = errors.New("campaign access denied")
	// ErrTenantProfile is returned when tenant resolution fails hard.
	ErrTenantProfile = errors.New("tenant profile error")
	// ErrMFAChallengeRequired signals that login is suspended pending MFA.
	ErrMFAChallengeRequired = errors.New("mfa challenge required")
	// ErrMFAChallengeNotFound is returned for unknown, consumed, or destroyed challenges.
	ErrMFAChallengeNotFound = errors.New("mfa challenge not found")
	// ErrMFACodeExpired is returned when the challenge window has lapsed.
	ErrMFACodeExpired = errors.New("mfa code expired")
	// ErrMFACodeInvalid is returned for a wrong MFA code with attempts remaining.
	ErrMFACodeInvalid = errors.New("invalid mfa code")
	// ErrMFATooManyAttempts is returned once the challenge attempt cap is hit.
	ErrMFATooManyAttempts = errors.New("mfa attempts exceeded")
	// ErrMFADeliveryFailed is returned when an MFA code cannot be dispatched
	// or the delivery cap is reached.
	ErrMFADeliveryFailed = errors.New("mfa code delivery failed")
	// ErrMFAReplay is returned when a challenge is consumed twice concurrently.
	ErrMFAReplay = errors.New("mfa challenge replay detected")
	// ErrDeviceVerification covers internal failures of the device trust workflow.
	ErrDeviceVerification = errors.New("device verification error")
	// ErrVerificationExpired is returned when the device verification window lapsed.
	ErrVerificationExpired = errors.New("device verification expired")
	// ErrInvalidCode is returned when a device verification code does not match.
	ErrInvalidCode = errors.New("invalid code")
	// ErrDeviceEmailFailed is returned when the device verification email
	// cannot be dispatched.
	ErrDeviceEmailFailed = errors.New("device verification email failed")
	// ErrSessionCreationFailed is returned when the session record cannot be persisted.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrSessionNotFound is returned when no session matches the presented token.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when expiration enforcement removed the session.
	ErrSessionExpired = errors.New("session expired")
	// ErrSystem is the catch-all for collaborator failures.
	ErrSystem = errors.New("system error")
)

// Stable machine-readable error codes for transport boundaries.
const (
	CodeMissingEmail          = "MISSING_EMAIL"
	CodeMissingPassword       = "MISSING_PASSWORD"
	CodeMissingCode           = "MISSING_CODE"
	CodeInvalidVerification   = "INVALID_VERIFICATION"
	CodeInvalidCredentials    = "INVALID_CREDENTIALS"
	CodeAccountDisabled       = "ACCOUNT_DISABLED"
	CodeEmailNotConfirmed     = "EMAIL_NOT_CONFIRMED"
	CodePasswordResetRequired = "PASSWORD_RESET_REQUIRED"
	CodePasswordNotSet        = "PASSWORD_NOT_SET"
	CodeNoCampaignAccess      = "NO_CAMPAIGN_ACCESS"
	CodeCampaignAccessDenied  = "CAMPAIGN_ACCESS_DENIED"
	CodeTenantProfileError    = "TENANT_PROFILE_ERROR"
	CodeMFAChallengeRequired  = "MFA_CHALLENGE_REQUIRED"
	CodeMFAChallengeNotFound  = "MFA_CHALLENGE_NOT_FOUND"
	CodeMFACodeExpired        = "MFA_CODE_EXPIRED"
	CodeMFACodeInvalid        = "MFA_CODE_INVALID"
	CodeMFATooManyAttempts    = "MFA_TOO_MANY_ATTEMPTS"
	CodeMFADeliveryFailed     = "MFA_DELIVERY_FAILED"
	CodeDeviceVerification    = "DEVICE_VERIFICATION_ERROR"
	CodeVerificationExpired   = "VERIFICATION_EXPIRED"
	CodeInvalidCode           = "INVALID_CODE"
	CodeDeviceEmailFailed     = "DEVICE_EMAIL_FAILED"
	CodeSessionCreationFailed = "SESSION_CREATION_FAILED"
	CodeSystemError           = "SYSTEM_ERROR"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrMissingEmail, CodeMissingEmail},
	{ErrMissingPassword, CodeMissingPassword},
	{ErrMissingCode, CodeMissingCode},
	{ErrInvalidVerification, CodeInvalidVerification},
	{ErrInvalidCredentials, CodeInvalidCredentials},
	{ErrAccountDisabled, CodeAccountDisabled},
	{ErrEmailNotConfirmed, CodeEmailNotConfirmed},
	{ErrPasswordResetRequired, CodePasswordResetRequired},
	{ErrPasswordNotSet, CodePasswordNotSet},
	{ErrNoCampaignAccess, CodeNoCampaignAccess},
	{ErrCampaignAccessDenied, CodeCampaignAccessDenied},
	{ErrTenantProfile, CodeTenantProfileError},
	{ErrMFAChallengeRequired, CodeMFAChallengeRequired},
	{ErrMFAChallengeNotFound, CodeMFAChallengeNotFound},
	{ErrMFACodeExpired, CodeMFACodeExpired},
	{ErrMFACodeInvalid, CodeMFACodeInvalid},
	{ErrMFATooManyAttempts, CodeMFATooManyAttempts},
	{ErrMFADeliveryFailed, CodeMFADeliveryFailed},
	// A replayed challenge is indistinguishable from a consumed one to callers.
	{ErrMFAReplay, CodeMFAChallengeNotFound},
	{ErrVerificationExpired, CodeVerificationExpired},
	{ErrInvalidCode, CodeInvalidCode},
	{ErrDeviceEmailFailed, CodeDeviceEmailFailed},
	{ErrDeviceVerification, CodeDeviceVerification},
	{ErrSessionCreationFailed, CodeSessionCreationFailed},
}

// ErrorCode maps any engine error to its stable machine-readable code.
// Unrecognized errors map to SYSTEM_ERROR.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return CodeSystemError
}

// FailureResult builds the transport shape for a failed operation.
func FailureResult(err error) *LoginResult {
	return &LoginResult{ErrorCode: ErrorCode(err)}
}

// CodeInvalidError reports a wrong MFA code together with the number of
// attempts remaining on the challenge. It unwraps to [ErrMFACodeInvalid].
type CodeInvalidError struct {
	Remaining int
}

func (e *CodeInvalidError) Error() string {
	return fmt.Sprintf("invalid mfa code, %d attempts remaining", e.Remaining)
}

func (e *CodeInvalidError) Unwrap() error { return ErrMFACodeInvalid }
