package internal

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
)

// HashSalted returns the hex digest of salt||value. It returns "" when
// either input is empty; callers must treat "" as "cannot verify" and fail
// closed.
func HashSalted(salt, value string) string {
	if salt == "" || value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(salt + value))
	return hex.EncodeToString(sum[:])
}

// HashCode binds a one-time code to its challenge id so identical code
// values hash differently per challenge.
func HashCode(code, challengeID string) string {
	return HashSalted(challengeID, code)
}

// LookupKey returns the deterministic index key for a token. Unlike
// HashSalted it takes no per-record salt, so a row can be located in one
// read before the salted hash is verified.
func LookupKey(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ConstantTimeEquals compares two strings in fixed time. Empty inputs never
// compare equal.
func ConstantTimeEquals(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Fingerprint derives the deterministic device fingerprint for a (user,
// client signature) pair. It returns "" when the user id is empty.
func Fingerprint(userID, userAgent, platform, language string, languages []string, tzOffsetMinutes int, observedIP string) string {
	if userID == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString(userID)
	b.WriteByte('|')
	b.WriteString(userAgent)
	b.WriteByte('|')
	b.WriteString(platform)
	b.WriteByte('|')
	b.WriteString(language)
	b.WriteByte('|')
	b.WriteString(strings.Join(languages, ","))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(tzOffsetMinutes))
	b.WriteByte('|')
	b.WriteString(observedIP)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
