package authcore

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crewdesk/authcore/password"
	"github.com/crewdesk/authcore/session"
	"github.com/crewdesk/authcore/store"
)

// Builder assembles an [Engine]. Redis, a record store, a user directory,
// and a notifier are required; everything else has defaults.
type Builder struct {
	cfg       Config
	redis     *redis.Client
	records   store.RecordStore
	directory UserDirectory
	notifier  Notifier
	profiles  AccessProfileProvider
	passwords PasswordVerifier
	rules     []RoleRule
	sink      AuditSink
	clock     func() time.Time
	built     bool
}

// New starts a builder with [DefaultConfig].
func New() *Builder {
	return &Builder{cfg: defaultConfig()}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client used for challenges and operation locks.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithRecordStore sets the durable row store for sessions, devices, and the
// challenge fallback.
func (b *Builder) WithRecordStore(st store.RecordStore) *Builder {
	b.records = st
	return b
}

// WithUserDirectory sets the account source.
func (b *Builder) WithUserDirectory(dir UserDirectory) *Builder {
	b.directory = dir
	return b
}

// WithNotifier sets the out-of-band message dispatcher.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAccessProfiles sets the campaign access-profile provider. Optional;
// absent, the engine degrades to single-campaign scopes.
func (b *Builder) WithAccessProfiles(p AccessProfileProvider) *Builder {
	b.profiles = p
	return b
}

// WithPasswordVerifier overrides the default argon2id verifier.
func (b *Builder) WithPasswordVerifier(v PasswordVerifier) *Builder {
	b.passwords = v
	return b
}

// WithRoleRules replaces the stock role hierarchy.
func (b *Builder) WithRoleRules(rules []RoleRule) *Builder {
	b.rules = rules
	return b
}

// WithAuditSink sets the audit event destination.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithClock overrides the engine clock. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled toggles in-process metrics collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.cfg.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires the stores, and returns a ready
// engine. A builder builds at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("authcore: builder already used")
	}

	if b.redis == nil {
		return nil, errors.New("authcore: redis client is required")
	}
	if b.records == nil {
		return nil, errors.New("authcore: record store is required")
	}
	if b.directory == nil {
		return nil, errors.New("authcore: user directory is required")
	}
	if b.notifier == nil {
		return nil, errors.New("authcore: notifier is required")
	}

	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}

	verifier := b.passwords
	if verifier == nil {
		v, err := password.NewArgon2(password.Config{
			Memory:      b.cfg.Password.Memory,
			Time:        b.cfg.Password.Time,
			Parallelism: b.cfg.Password.Parallelism,
			SaltLength:  b.cfg.Password.SaltLength,
			KeyLength:   b.cfg.Password.KeyLength,
		})
		if err != nil {
			return nil, err
		}
		verifier = v
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	sessions := session.NewManager(b.records, session.Policy{
		ShortTTL:          b.cfg.Session.ShortTTL,
		LongTTL:           b.cfg.Session.LongTTL,
		IdleTimeout:       b.cfg.Session.IdleTimeout,
		EnforceExpiration: b.cfg.Session.EnforceExpiration,
	}, clock)

	b.built = true

	return &Engine{
		config:     b.cfg,
		sessions:   sessions,
		challenges: newChallengeStore(b.redis, b.records, clock),
		devices:    newDeviceStore(b.records),
		tenants:    newTenantResolver(b.profiles),
		claims:     newClaimsBuilder(b.rules),
		totp:       newTOTPManager(b.cfg.TOTP),
		passwords:  verifier,
		directory:  b.directory,
		notifier:   b.notifier,
		locks:      newOpLock(b.redis),
		audit:      newAuditDispatcher(b.cfg.Audit, b.sink),
		metrics:    NewMetrics(b.cfg.Metrics),
		now:        clock,
	}, nil
}
