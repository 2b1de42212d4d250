package authcore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crewdesk/authcore/store"
)

const (
	challengeKeyPrefix = "amc"
	// challengeTable is the durable fallback used when Redis is unreachable.
	challengeTable = "mfa_challenges"
)

var (
	errChallengeNotFound = errors.New("mfa challenge record not found")
	errChallengeExpired  = errors.New("mfa challenge record expired")
	errChallengeExceeded = errors.New("mfa challenge attempts exceeded")
	errChallengeBackend  = errors.New("mfa challenge backend unavailable")
)

// mfaChallenge is the full server-side state of one in-progress second
// factor verification. Codes are stored only as HashCode(code, id).
type mfaChallenge struct {
	ID                   string          `json:"id"`
	UserID               string          `json:"userId"`
	Email                string          `json:"email"`
	RememberMe           bool            `json:"rememberMe"`
	Metadata             *ClientMetadata `json:"metadata,omitempty"`
	CreatedAt            int64           `json:"createdAt"`
	ExpiresAt            int64           `json:"expiresAt"`
	Attempts             int             `json:"attempts"`
	MaxAttempts          int             `json:"maxAttempts"`
	Deliveries           int             `json:"deliveries"`
	MaxDeliveries        int             `json:"maxDeliveries"`
	DeliveryMethod       DeliveryMethod  `json:"deliveryMethod,omitempty"`
	MaskedDestination    string          `json:"maskedDestination,omitempty"`
	TOTPEnabled          bool            `json:"totpEnabled"`
	CodeHash             string          `json:"codeHash,omitempty"`
	BackupCodesRemaining int             `json:"backupCodesRemaining"`
	Tenant               *TenantAccess   `json:"tenant,omitempty"`
}

// challengeStore keeps challenges in Redis with a TTL matching their
// expiry. When Redis is unreachable it degrades to the record store, which
// preserves availability but not the optimistic-lock attempt accounting.
// A challenge that landed in the fallback stays readable and consumable
// after Redis recovers; reads and deletes consult the fallback whenever the
// Redis keyspace has no row.
type challengeStore struct {
	redis    *redis.Client
	fallback store.RecordStore
	now      func() time.Time
}

func newChallengeStore(redisClient *redis.Client, fallback store.RecordStore, now func() time.Time) *challengeStore {
	if now == nil {
		now = time.Now
	}
	return &challengeStore{redis: redisClient, fallback: fallback, now: now}
}

func (s *challengeStore) key(id string) string {
	return challengeKeyPrefix + ":" + id
}

func (s *challengeStore) Save(ctx context.Context, ch *mfaChallenge) error {
	encoded, err := json.Marshal(ch)
	if err != nil {
		return err
	}

	ttl := time.Unix(ch.ExpiresAt, 0).Sub(s.now())
	if ttl <= 0 {
		return errChallengeExpired
	}

	if err := s.redis.Set(ctx, s.key(ch.ID), encoded, ttl).Err(); err != nil {
		return s.fallbackSave(ctx, ch, encoded, err)
	}
	return nil
}

func (s *challengeStore) Get(ctx context.Context, id string) (*mfaChallenge, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return s.fallbackGet(ctx, id, nil)
		}
		return s.fallbackGet(ctx, id, err)
	}

	ch, err := decodeChallenge(data)
	if err != nil {
		return nil, err
	}
	if s.now().Unix() > ch.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(id)).Result()
		return nil, errChallengeExpired
	}
	return ch, nil
}

// Delete consumes the challenge. The returned bool is false when another
// caller consumed it first; that is the replay signal.
func (s *challengeStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(id)).Result()
	if err != nil {
		if s.fallback == nil {
			return false, fmt.Errorf("%w: %v", errChallengeBackend, err)
		}
		_, ok, ferr := s.fallback.Get(ctx, challengeTable, id)
		if ferr != nil || !ok {
			return false, ferr
		}
		return true, s.fallback.Delete(ctx, challengeTable, id)
	}
	if n > 0 {
		if s.fallback != nil {
			_ = s.fallback.Delete(ctx, challengeTable, id)
		}
		return true, nil
	}

	// No Redis row. The challenge may have been saved to the fallback while
	// Redis was down; consume it there before declaring the id spent.
	if s.fallback != nil {
		_, ok, ferr := s.fallback.Get(ctx, challengeTable, id)
		if ferr == nil && ok {
			return true, s.fallback.Delete(ctx, challengeTable, id)
		}
	}
	return false, nil
}

// Update rewrites the challenge preserving its remaining TTL. Used for
// delivery-counter and code-hash updates.
func (s *challengeStore) Update(ctx context.Context, ch *mfaChallenge) error {
	return s.Save(ctx, ch)
}

// RecordFailure increments the attempt counter under an optimistic lock.
// It reports whether the cap was hit (the challenge is destroyed when it
// is) and how many attempts remain otherwise.
func (s *challengeStore) RecordFailure(ctx context.Context, id string) (exceeded bool, remaining int, err error) {
	const maxRetries = 4
	key := s.key(id)

	for i := 0; i < maxRetries; i++ {
		var hitCap bool
		var left int

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			ch, err := decodeChallenge(data)
			if err != nil {
				return err
			}
			if s.now().Unix() > ch.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errChallengeExpired
			}

			ch.Attempts++
			if ch.Attempts >= ch.MaxAttempts {
				hitCap = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			ttl := time.Unix(ch.ExpiresAt, 0).Sub(s.now())
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errChallengeExpired
			}

			updated, err := json.Marshal(ch)
			if err != nil {
				return err
			}
			left = ch.MaxAttempts - ch.Attempts
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Absent from Redis, but possibly saved to the fallback
				// while Redis was down.
				if s.fallback == nil {
					return false, 0, errChallengeNotFound
				}
				return s.fallbackRecordFailure(ctx, id, err)
			}
			if errors.Is(err, errChallengeExpired) {
				return false, 0, err
			}
			return s.fallbackRecordFailure(ctx, id, err)
		}
		return hitCap, left, nil
	}

	return false, 0, fmt.Errorf("%w: optimistic lock retries exhausted", errChallengeBackend)
}

func (s *challengeStore) fallbackSave(ctx context.Context, ch *mfaChallenge, encoded []byte, cause error) error {
	if s.fallback == nil {
		return fmt.Errorf("%w: %v", errChallengeBackend, cause)
	}
	row := store.Row{
		"payload":    string(encoded),
		"expires_at": strconv.FormatInt(ch.ExpiresAt, 10),
	}
	if err := s.fallback.Upsert(ctx, challengeTable, ch.ID, row); err != nil {
		return fmt.Errorf("%w: %v", errChallengeBackend, cause)
	}
	return nil
}

func (s *challengeStore) fallbackGet(ctx context.Context, id string, cause error) (*mfaChallenge, error) {
	if s.fallback == nil {
		if cause == nil {
			return nil, errChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", errChallengeBackend, cause)
	}

	row, ok, err := s.fallback.Get(ctx, challengeTable, id)
	if err != nil || !ok {
		if cause != nil && err != nil {
			return nil, fmt.Errorf("%w: %v", errChallengeBackend, cause)
		}
		return nil, errChallengeNotFound
	}

	ch, err := decodeChallenge([]byte(row.Get("payload")))
	if err != nil {
		return nil, errChallengeNotFound
	}
	if s.now().Unix() > ch.ExpiresAt {
		_ = s.fallback.Delete(ctx, challengeTable, id)
		return nil, errChallengeExpired
	}
	return ch, nil
}

// fallbackRecordFailure is a plain read-modify-write; without Redis there
// is no optimistic lock, so concurrent failures may undercount. The attempt
// cap still holds eventually.
func (s *challengeStore) fallbackRecordFailure(ctx context.Context, id string, cause error) (bool, int, error) {
	if s.fallback == nil {
		return false, 0, fmt.Errorf("%w: %v", errChallengeBackend, cause)
	}

	ch, err := s.fallbackGet(ctx, id, nil)
	if err != nil {
		return false, 0, err
	}

	ch.Attempts++
	if ch.Attempts >= ch.MaxAttempts {
		_ = s.fallback.Delete(ctx, challengeTable, id)
		return true, 0, nil
	}

	encoded, err := json.Marshal(ch)
	if err != nil {
		return false, 0, err
	}
	if err := s.fallbackSave(ctx, ch, encoded, cause); err != nil {
		return false, 0, err
	}
	return false, ch.MaxAttempts - ch.Attempts, nil
}

func decodeChallenge(data []byte) (*mfaChallenge, error) {
	ch := &mfaChallenge{}
	if err := json.Unmarshal(data, ch); err != nil {
		return nil, errors.New("invalid mfa challenge record")
	}
	if ch.ID == "" || ch.UserID == "" {
		return nil, errors.New("invalid mfa challenge record")
	}
	return ch, nil
}

func mapChallengeStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errChallengeNotFound), errors.Is(err, redis.Nil):
		return ErrMFAChallengeNotFound
	case errors.Is(err, errChallengeExpired):
		return ErrMFACodeExpired
	case errors.Is(err, errChallengeExceeded):
		return ErrMFATooManyAttempts
	default:
		return fmt.Errorf("%w: %v", ErrSystem, err)
	}
}
