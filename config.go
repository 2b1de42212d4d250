package authcore

import (
	"errors"
	"fmt"
	"time"
)

// SessionConfig controls session token lifetimes.
//
// EnforceExpiration is deliberately independent from the TTL fields: expiry
// timestamps are always computed and persisted so that enabling enforcement
// later is a pure toggle, but touches only delete expired sessions when the
// flag is on.
type SessionConfig struct {
	ShortTTL          time.Duration
	LongTTL           time.Duration
	IdleTimeout       time.Duration
	EnforceExpiration bool
}

// MFAConfig controls the challenge engine.
type MFAConfig struct {
	ChallengeTTL  time.Duration
	MaxAttempts   int
	MaxDeliveries int
	CodeDigits    int
	// VerifyOrder is the priority list for code verification. Valid entries:
	// "totp", "code", "backup".
	VerifyOrder []string
}

// TOTPConfig controls RFC 6238 verification.
type TOTPConfig struct {
	Digits    int
	Period    int
	Skew      int
	Algorithm string
	Issuer    string
}

// DeviceTrustConfig controls the device verification workflow.
type DeviceTrustConfig struct {
	Enabled         bool
	VerificationTTL time.Duration
	CodeDigits      int
}

// PasswordConfig holds argon2id parameters for the default verifier.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process metrics collection.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// Config is the full engine configuration. Zero values are not usable;
// start from [DefaultConfig].
type Config struct {
	Session     SessionConfig
	MFA         MFAConfig
	TOTP        TOTPConfig
	DeviceTrust DeviceTrustConfig
	Password    PasswordConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			ShortTTL:          12 * time.Hour,
			LongTTL:           24 * time.Hour,
			IdleTimeout:       30 * time.Minute,
			EnforceExpiration: false,
		},
		MFA: MFAConfig{
			ChallengeTTL:  5 * time.Minute,
			MaxAttempts:   5,
			MaxDeliveries: 3,
			CodeDigits:    6,
			VerifyOrder:   []string{"totp", "code", "backup"},
		},
		TOTP: TOTPConfig{
			Digits:    6,
			Period:    30,
			Skew:      1,
			Algorithm: "SHA1",
			Issuer:    "authcore",
		},
		DeviceTrust: DeviceTrustConfig{
			Enabled:         true,
			VerificationTTL: 15 * time.Minute,
			CodeDigits:      6,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.MFA.VerifyOrder != nil {
		out.MFA.VerifyOrder = make([]string, len(cfg.MFA.VerifyOrder))
		copy(out.MFA.VerifyOrder, cfg.MFA.VerifyOrder)
	}
	return out
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.Session.ShortTTL <= 0 || c.Session.LongTTL <= 0 {
		return errors.New("session TTLs must be positive")
	}
	if c.Session.LongTTL < c.Session.ShortTTL {
		return errors.New("session LongTTL must be >= ShortTTL")
	}
	if c.Session.IdleTimeout <= 0 {
		return errors.New("session IdleTimeout must be positive")
	}

	if c.MFA.ChallengeTTL <= 0 {
		return errors.New("mfa ChallengeTTL must be positive")
	}
	if c.MFA.MaxAttempts < 1 {
		return errors.New("mfa MaxAttempts must be >= 1")
	}
	if c.MFA.MaxDeliveries < 1 {
		return errors.New("mfa MaxDeliveries must be >= 1")
	}
	if c.MFA.CodeDigits < 6 || c.MFA.CodeDigits > 10 {
		return errors.New("mfa CodeDigits must be between 6 and 10")
	}
	if len(c.MFA.VerifyOrder) == 0 {
		return errors.New("mfa VerifyOrder must not be empty")
	}
	for _, step := range c.MFA.VerifyOrder {
		switch step {
		case "totp", "code", "backup":
		default:
			return fmt.Errorf("mfa VerifyOrder contains unknown step %q", step)
		}
	}

	if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
		return errors.New("totp Digits must be between 6 and 8")
	}
	if c.TOTP.Period < 15 || c.TOTP.Period > 120 {
		return errors.New("totp Period must be between 15 and 120 seconds")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 2 {
		return errors.New("totp Skew must be between 0 and 2")
	}
	switch c.TOTP.Algorithm {
	case "", "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("totp Algorithm must be SHA1, SHA256, or SHA512")
	}

	if c.DeviceTrust.Enabled {
		if c.DeviceTrust.VerificationTTL <= 0 {
			return errors.New("device VerificationTTL must be positive")
		}
		if c.DeviceTrust.CodeDigits < 6 || c.DeviceTrust.CodeDigits > 10 {
			return errors.New("device CodeDigits must be between 6 and 10")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize < 1 {
		return errors.New("audit BufferSize must be >= 1")
	}

	return nil
}
