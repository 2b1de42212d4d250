package session

import (
	"strconv"
	"time"

	"github.com/crewdesk/authcore/store"
)

// Table is the record store table holding session rows.
const Table = "user_sessions"

// Record is one persisted session. The plaintext token is never stored;
// rows are keyed by a deterministic lookup key and verified against the
// salted TokenHash. LegacyToken is populated only when decoding a
// pre-hashing row and is cleared by migration on the next touch.
type Record struct {
	TokenHash          string
	TokenSalt          string
	LegacyToken        string
	UserID             string
	CreatedAt          time.Time
	LastActivityAt     time.Time
	ExpiresAt          time.Time
	IdleTimeoutMinutes int
	RememberMe         bool
	CampaignScope      string
	UserAgent          string
	IPAddress          string
	ServerIP           string
}

func (r *Record) toRow() store.Row {
	row := store.Row{
		"token_hash":           r.TokenHash,
		"token_salt":           r.TokenSalt,
		"user_id":              r.UserID,
		"created_at":           r.CreatedAt.UTC().Format(time.RFC3339),
		"last_activity_at":     r.LastActivityAt.UTC().Format(time.RFC3339),
		"expires_at":           r.ExpiresAt.UTC().Format(time.RFC3339),
		"idle_timeout_minutes": strconv.Itoa(r.IdleTimeoutMinutes),
		"remember_me":          strconv.FormatBool(r.RememberMe),
		"campaign_scope":       r.CampaignScope,
		"user_agent":           r.UserAgent,
		"ip_address":           r.IPAddress,
		"server_ip":            r.ServerIP,
	}
	if r.LegacyToken != "" {
		row["token"] = r.LegacyToken
	}
	return row
}

// recordFromRow decodes a session row, tolerating legacy column names and
// missing optional columns. It never fails on schema drift; unparsable
// timestamps read as zero.
func recordFromRow(row store.Row) *Record {
	rec := &Record{
		TokenHash:      row.First("token_hash", "tokenHash"),
		TokenSalt:      row.First("token_salt", "tokenSalt"),
		LegacyToken:    row.Get("token"),
		UserID:         row.First("user_id", "userId"),
		CampaignScope:  row.First("campaign_scope", "campaignScope"),
		UserAgent:      row.First("user_agent", "userAgent"),
		IPAddress:      row.First("ip_address", "ipAddress"),
		ServerIP:       row.First("server_ip", "serverIp"),
		CreatedAt:      parseTime(row.First("created_at", "createdAt")),
		LastActivityAt: parseTime(row.First("last_activity_at", "lastActivityAt")),
		ExpiresAt:      parseTime(row.First("expires_at", "expiresAt")),
	}

	if v := row.First("idle_timeout_minutes", "idleTimeoutMinutes"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			rec.IdleTimeoutMinutes = n
		}
	}
	if v := row.First("remember_me", "rememberMe"); v != "" {
		rec.RememberMe = v == "true" || v == "TRUE" || v == "1"
	}

	return rec
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
