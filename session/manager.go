package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/crewdesk/authcore/internal"
	"github.com/crewdesk/authcore/store"
)

// Status classifies the outcome of a resolve.
type Status string

const (
	StatusActive   Status = "active"
	StatusExpired  Status = "expired"
	StatusNotFound Status = "not_found"
)

// Expiry reasons reported on StatusExpired resolutions.
const (
	ReasonIdleTimeout    = "IDLE_TIMEOUT"
	ReasonAbsoluteExpiry = "ABSOLUTE_EXPIRY"
)

// Policy holds the session lifetime rules. EnforceExpiration gates deletion
// only; expiry timestamps are computed and stored regardless.
type Policy struct {
	ShortTTL          time.Duration
	LongTTL           time.Duration
	IdleTimeout       time.Duration
	EnforceExpiration bool
}

// Metadata is the client context captured on the session row.
type Metadata struct {
	UserAgent string
	IPAddress string
	ServerIP  string
}

// Created is returned once per session; the plaintext token is never
// re-derivable from storage afterwards.
type Created struct {
	Token              string
	ExpiresAt          time.Time
	TTLSeconds         int
	IdleTimeoutMinutes int
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Status Status
	Reason string
	Record *Record
}

// Manager owns the session lifecycle over a RecordStore.
type Manager struct {
	store  store.RecordStore
	policy Policy
	now    func() time.Time
	logger *log.Logger
}

// NewManager builds a session manager. now may be nil (wall clock).
func NewManager(st store.RecordStore, policy Policy, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:  st,
		policy: policy,
		now:    now,
		logger: log.Default(),
	}
}

// Create issues a new session for userID. Persistence failures are fatal:
// no token is returned unless the record is durably stored.
func (m *Manager) Create(ctx context.Context, userID string, rememberMe bool, scopeJSON string, meta Metadata) (*Created, error) {
	token, err := internal.NewToken()
	if err != nil {
		return nil, err
	}
	salt, err := internal.NewSalt()
	if err != nil {
		return nil, err
	}

	hash := internal.HashSalted(salt, token)
	if hash == "" {
		return nil, fmt.Errorf("session token hash unavailable")
	}

	now := m.now()
	ttl := m.policy.ShortTTL
	if rememberMe {
		ttl = m.policy.LongTTL
	}

	rec := &Record{
		TokenHash:          hash,
		TokenSalt:          salt,
		UserID:             userID,
		CreatedAt:          now,
		LastActivityAt:     now,
		ExpiresAt:          now.Add(ttl),
		IdleTimeoutMinutes: int(m.policy.IdleTimeout / time.Minute),
		RememberMe:         rememberMe,
		CampaignScope:      scopeJSON,
		UserAgent:          meta.UserAgent,
		IPAddress:          meta.IPAddress,
		ServerIP:           meta.ServerIP,
	}

	if err := m.store.Upsert(ctx, Table, internal.LookupKey(token), rec.toRow()); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	return &Created{
		Token:              token,
		ExpiresAt:          rec.ExpiresAt,
		TTLSeconds:         int(ttl / time.Second),
		IdleTimeoutMinutes: rec.IdleTimeoutMinutes,
	}, nil
}

// Resolve locates the session for token. With touch it applies the expiry
// policy, refreshes activity timestamps, and migrates legacy plaintext rows
// to hashed form. Touch persistence failures are logged and tolerated.
func (m *Manager) Resolve(ctx context.Context, token string, touch bool) (*Resolution, error) {
	if token == "" {
		return &Resolution{Status: StatusNotFound}, nil
	}

	key, rec, err := m.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return &Resolution{Status: StatusNotFound}, nil
	}

	if !touch {
		return &Resolution{Status: StatusActive, Record: rec}, nil
	}

	now := m.now()
	if m.policy.EnforceExpiration {
		if reason := m.expiryReason(rec, now); reason != "" {
			if err := m.store.Delete(ctx, Table, key); err != nil {
				m.logger.Printf("session: delete expired session: %v", err)
			}
			return &Resolution{Status: StatusExpired, Reason: reason, Record: rec}, nil
		}
	}

	ttl := m.policy.ShortTTL
	if rec.RememberMe {
		ttl = m.policy.LongTTL
	}
	rec.LastActivityAt = now
	rec.ExpiresAt = now.Add(ttl)
	rec.IdleTimeoutMinutes = int(m.policy.IdleTimeout / time.Minute)

	newKey := internal.LookupKey(token)
	if rec.LegacyToken != "" || key != newKey {
		// Legacy plaintext row: rewrite under the hashed scheme.
		salt, err := internal.NewSalt()
		if err == nil {
			if hash := internal.HashSalted(salt, token); hash != "" {
				rec.TokenSalt = salt
				rec.TokenHash = hash
				rec.LegacyToken = ""
			}
		}
		if err := m.store.Upsert(ctx, Table, newKey, rec.toRow()); err != nil {
			m.logger.Printf("session: migrate legacy session row: %v", err)
			return &Resolution{Status: StatusActive, Record: rec}, nil
		}
		if err := m.store.Delete(ctx, Table, key); err != nil {
			m.logger.Printf("session: remove legacy session row: %v", err)
		}
		return &Resolution{Status: StatusActive, Record: rec}, nil
	}

	if err := m.store.Upsert(ctx, Table, key, rec.toRow()); err != nil {
		// Stale timestamps are acceptable; the session stays usable.
		m.logger.Printf("session: touch session: %v", err)
	}

	return &Resolution{Status: StatusActive, Record: rec}, nil
}

// Invalidate deletes the session for token. Missing tokens are a no-op.
func (m *Manager) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	key, rec, err := m.lookup(ctx, token)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	if err := m.store.Delete(ctx, Table, key); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// Delete removes a session by its store key. Used when the owning user can
// no longer be resolved.
func (m *Manager) Delete(ctx context.Context, key string) error {
	return m.store.Delete(ctx, Table, key)
}

// FindActiveForUser returns the most recently active, non-expired session
// for userID, or nil. The token is not recoverable from the result.
func (m *Manager) FindActiveForUser(ctx context.Context, userID string) (*Record, error) {
	rows, err := m.store.ReadAll(ctx, Table)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	now := m.now()
	var best *Record
	for _, row := range rows {
		rec := recordFromRow(row)
		if rec.UserID != userID {
			continue
		}
		if m.expiryReason(rec, now) != "" {
			continue
		}
		if best == nil || rec.LastActivityAt.After(best.LastActivityAt) {
			best = rec
		}
	}
	return best, nil
}

// lookup finds the row for token: keyed lookup with hash verification
// first, then the legacy plaintext scan. The salted hash comparison is
// constant time and fails closed when the hash cannot be computed.
func (m *Manager) lookup(ctx context.Context, token string) (string, *Record, error) {
	key := internal.LookupKey(token)
	row, ok, err := m.store.Get(ctx, Table, key)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if ok {
		rec := recordFromRow(row)
		if internal.ConstantTimeEquals(internal.HashSalted(rec.TokenSalt, token), rec.TokenHash) {
			return key, rec, nil
		}
		return "", nil, nil
	}

	legacyKey, legacyRow, found, err := m.store.Find(ctx, Table, func(_ string, r store.Row) bool {
		t := r.Get("token")
		return t != "" && t == token
	})
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if !found {
		return "", nil, nil
	}
	return legacyKey, recordFromRow(legacyRow), nil
}

func (m *Manager) expiryReason(rec *Record, now time.Time) string {
	if !rec.ExpiresAt.IsZero() && now.After(rec.ExpiresAt) {
		return ReasonAbsoluteExpiry
	}
	idle := time.Duration(rec.IdleTimeoutMinutes) * time.Minute
	if idle > 0 && !rec.LastActivityAt.IsZero() && now.Sub(rec.LastActivityAt) > idle {
		return ReasonIdleTimeout
	}
	return ""
}
