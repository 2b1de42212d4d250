package authcore

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{ErrMissingEmail, CodeMissingEmail},
		{ErrMissingPassword, CodeMissingPassword},
		{ErrInvalidCredentials, CodeInvalidCredentials},
		{ErrAccountDisabled, CodeAccountDisabled},
		{ErrEmailNotConfirmed, CodeEmailNotConfirmed},
		{ErrPasswordResetRequired, CodePasswordResetRequired},
		{ErrPasswordNotSet, CodePasswordNotSet},
		{ErrNoCampaignAccess, CodeNoCampaignAccess},
		{ErrCampaignAccessDenied, CodeCampaignAccessDenied},
		{ErrTenantProfile, CodeTenantProfileError},
		{ErrMFAChallengeNotFound, CodeMFAChallengeNotFound},
		{ErrMFACodeExpired, CodeMFACodeExpired},
		{ErrMFACodeInvalid, CodeMFACodeInvalid},
		{ErrMFATooManyAttempts, CodeMFATooManyAttempts},
		{ErrMFADeliveryFailed, CodeMFADeliveryFailed},
		{ErrVerificationExpired, CodeVerificationExpired},
		{ErrInvalidCode, CodeInvalidCode},
		{ErrDeviceEmailFailed, CodeDeviceEmailFailed},
		{ErrDeviceVerification, CodeDeviceVerification},
		{ErrSessionCreationFailed, CodeSessionCreationFailed},
	}

	for _, tc := range cases {
		if got := ErrorCode(tc.err); got != tc.code {
			t.Errorf("ErrorCode(%v) = %s, want %s", tc.err, got, tc.code)
		}
	}
}

func TestErrorCodeWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", ErrAccountDisabled)
	if got := ErrorCode(wrapped); got != CodeAccountDisabled {
		t.Fatalf("expected wrapped error to map, got %s", got)
	}
}

func TestErrorCodeReplayReadsAsNotFound(t *testing.T) {
	if got := ErrorCode(ErrMFAReplay); got != CodeMFAChallengeNotFound {
		t.Fatalf("expected replay to map to %s, got %s", CodeMFAChallengeNotFound, got)
	}
}

func TestErrorCodeUnknownAndNil(t *testing.T) {
	if got := ErrorCode(errors.New("who knows")); got != CodeSystemError {
		t.Fatalf("expected %s for unknown errors, got %s", CodeSystemError, got)
	}
	if got := ErrorCode(nil); got != "" {
		t.Fatalf("expected empty code for nil, got %s", got)
	}
}

func TestCodeInvalidErrorUnwraps(t *testing.T) {
	err := &CodeInvalidError{Remaining: 3}

	if !errors.Is(err, ErrMFACodeInvalid) {
		t.Fatal("expected CodeInvalidError to unwrap to ErrMFACodeInvalid")
	}
	if got := ErrorCode(err); got != CodeMFACodeInvalid {
		t.Fatalf("expected %s, got %s", CodeMFACodeInvalid, got)
	}

	var invalid *CodeInvalidError
	if !errors.As(err, &invalid) || invalid.Remaining != 3 {
		t.Fatalf("expected remaining=3, got %+v", invalid)
	}
}

func TestFailureResultShape(t *testing.T) {
	result := FailureResult(ErrInvalidCredentials)
	if result.Success || result.Token != "" {
		t.Fatalf("failure result must be empty of session state, got %+v", result)
	}
	if result.ErrorCode != CodeInvalidCredentials {
		t.Fatalf("expected %s, got %s", CodeInvalidCredentials, result.ErrorCode)
	}
}
