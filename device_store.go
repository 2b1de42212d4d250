package authcore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/crewdesk/authcore/store"
)

const (
	deviceTable            = "trusted_devices"
	deviceVerifyIndexTable = "device_verifications"
)

type deviceStatus string

const (
	devicePending deviceStatus = "pending"
	deviceTrusted deviceStatus = "trusted"
	deviceDenied  deviceStatus = "denied"
	deviceExpired deviceStatus = "expired"
)

// deviceRecord is one (user, fingerprint) trust row. Rows are keyed
// userID|fingerprint so repeat logins from the same client signature hit
// one record.
type deviceRecord struct {
	ID                    string
	UserID                string
	Fingerprint           string
	IPAddress             string
	ServerIP              string
	UserAgent             string
	Platform              string
	Languages             string
	TimezoneOffsetMinutes int
	Status                deviceStatus
	CreatedAt             time.Time
	UpdatedAt             time.Time
	ConfirmedAt           time.Time
	LastSeenAt            time.Time
	MetadataJSON          string

	PendingVerificationID        string
	PendingVerificationExpiresAt time.Time
	PendingVerificationCodeHash  string
	PendingMetadataJSON          string
	PendingRememberMe            bool

	DeniedAt     time.Time
	DenialReason string
}

func (r *deviceRecord) storeKey() string {
	return r.UserID + "|" + r.Fingerprint
}

func (r *deviceRecord) clearPending() {
	r.PendingVerificationID = ""
	r.PendingVerificationExpiresAt = time.Time{}
	r.PendingVerificationCodeHash = ""
	r.PendingMetadataJSON = ""
	r.PendingRememberMe = false
}

func (r *deviceRecord) toRow() store.Row {
	return store.Row{
		"id":                              r.ID,
		"user_id":                         r.UserID,
		"fingerprint":                     r.Fingerprint,
		"ip_address":                      r.IPAddress,
		"server_ip":                       r.ServerIP,
		"user_agent":                      r.UserAgent,
		"platform":                        r.Platform,
		"languages":                       r.Languages,
		"timezone_offset_minutes":         strconv.Itoa(r.TimezoneOffsetMinutes),
		"status":                          string(r.Status),
		"created_at":                      formatTime(r.CreatedAt),
		"updated_at":                      formatTime(r.UpdatedAt),
		"confirmed_at":                    formatTime(r.ConfirmedAt),
		"last_seen_at":                    formatTime(r.LastSeenAt),
		"metadata_json":                   r.MetadataJSON,
		"pending_verification_id":         r.PendingVerificationID,
		"pending_verification_expires_at": formatTime(r.PendingVerificationExpiresAt),
		"pending_verification_code_hash":  r.PendingVerificationCodeHash,
		"pending_metadata_json":           r.PendingMetadataJSON,
		"pending_remember_me":             strconv.FormatBool(r.PendingRememberMe),
		"denied_at":                       formatTime(r.DeniedAt),
		"denial_reason":                   r.DenialReason,
	}
}

func deviceFromRow(row store.Row) *deviceRecord {
	rec := &deviceRecord{
		ID:                          row.First("id", "ID"),
		UserID:                      row.First("user_id", "userId", "UserId"),
		Fingerprint:                 row.First("fingerprint", "Fingerprint"),
		IPAddress:                   row.First("ip_address", "ipAddress", "IpAddress"),
		ServerIP:                    row.First("server_ip", "serverIp", "ServerIp"),
		UserAgent:                   row.First("user_agent", "userAgent", "UserAgent"),
		Platform:                    row.First("platform", "Platform"),
		Languages:                   row.First("languages", "Languages"),
		Status:                      deviceStatus(row.First("status", "Status")),
		MetadataJSON:                row.First("metadata_json", "MetadataJson"),
		PendingVerificationID:       row.First("pending_verification_id", "PendingVerificationId"),
		PendingVerificationCodeHash: row.First("pending_verification_code_hash", "PendingVerificationCodeHash"),
		PendingMetadataJSON:         row.First("pending_metadata_json", "PendingMetadataJson"),
		DenialReason:                row.First("denial_reason", "DenialReason"),
	}

	rec.CreatedAt = parseRowTime(row.First("created_at", "CreatedAt"))
	rec.UpdatedAt = parseRowTime(row.First("updated_at", "UpdatedAt"))
	rec.ConfirmedAt = parseRowTime(row.First("confirmed_at", "ConfirmedAt"))
	rec.LastSeenAt = parseRowTime(row.First("last_seen_at", "LastSeenAt"))
	rec.PendingVerificationExpiresAt = parseRowTime(row.First("pending_verification_expires_at", "PendingVerificationExpiresAt"))
	rec.DeniedAt = parseRowTime(row.First("denied_at", "DeniedAt"))

	if v := row.First("timezone_offset_minutes", "TimezoneOffsetMinutes"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			rec.TimezoneOffsetMinutes = n
		}
	}
	if v := row.First("pending_remember_me", "PendingRememberMe"); v != "" {
		rec.PendingRememberMe = v == "true" || v == "TRUE" || v == "1"
	}

	return rec
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseRowTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

type deviceStore struct {
	store store.RecordStore
}

func newDeviceStore(st store.RecordStore) *deviceStore {
	return &deviceStore{store: st}
}

func (s *deviceStore) GetByFingerprint(ctx context.Context, userID, fingerprint string) (*deviceRecord, bool, error) {
	row, ok, err := s.store.Get(ctx, deviceTable, userID+"|"+fingerprint)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if !ok {
		return nil, false, nil
	}
	return deviceFromRow(row), true, nil
}

// GetByVerificationID resolves the index row, then the device row. A stale
// index entry pointing at a missing or re-pending device reads as absent.
func (s *deviceStore) GetByVerificationID(ctx context.Context, verificationID string) (*deviceRecord, bool, error) {
	idx, ok, err := s.store.Get(ctx, deviceVerifyIndexTable, verificationID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if !ok {
		return nil, false, nil
	}

	row, ok, err := s.store.Get(ctx, deviceTable, idx.Get("device_key"))
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if !ok {
		return nil, false, nil
	}

	rec := deviceFromRow(row)
	if rec.PendingVerificationID != verificationID {
		return nil, false, nil
	}
	return rec, true, nil
}

// Save persists the record and keeps the verification-id index in step with
// the pending state.
func (s *deviceStore) Save(ctx context.Context, rec *deviceRecord) error {
	if err := s.store.Upsert(ctx, deviceTable, rec.storeKey(), rec.toRow()); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if rec.Status == devicePending && rec.PendingVerificationID != "" {
		idx := store.Row{"device_key": rec.storeKey()}
		if err := s.store.Upsert(ctx, deviceVerifyIndexTable, rec.PendingVerificationID, idx); err != nil {
			return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}
	}
	return nil
}

func (s *deviceStore) DropVerificationIndex(ctx context.Context, verificationID string) error {
	if verificationID == "" {
		return nil
	}
	return s.store.Delete(ctx, deviceVerifyIndexTable, verificationID)
}
