package store

import (
	"context"
	"errors"
)

// ErrUnavailable wraps backend I/O failures so callers can distinguish
// infrastructure errors from missing rows.
var ErrUnavailable = errors.New("record store unavailable")

// Row is one persisted record as column name -> value. Unknown columns are
// ignored by readers; missing columns read as "".
type Row map[string]string

// Get returns the value of col, or "" when absent.
func (r Row) Get(col string) string {
	if r == nil {
		return ""
	}
	return r[col]
}

// First returns the value of the first listed column that is present and
// non-empty. Legacy rows name columns differently; readers list the current
// name first and the legacy alternates after it.
func (r Row) First(cols ...string) string {
	for _, c := range cols {
		if v := r.Get(c); v != "" {
			return v
		}
	}
	return ""
}

// Clone returns an independent copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// RecordStore is the persistence contract the engine depends on. Keys are
// opaque to the store; indexing strategy is the adapter's concern.
// Implementations must be safe for concurrent use.
type RecordStore interface {
	// Get returns the row stored under key, reporting presence explicitly.
	Get(ctx context.Context, table, key string) (Row, bool, error)

	// ReadAll returns every row in the table keyed by record key.
	ReadAll(ctx context.Context, table string) (map[string]Row, error)

	// Upsert writes the row under key, replacing any existing row.
	Upsert(ctx context.Context, table, key string, row Row) error

	// Delete removes the row under key. Deleting a missing row is not an error.
	Delete(ctx context.Context, table, key string) error

	// Find returns the first row matching the predicate. Used only for
	// legacy fallbacks; keyed lookups should use Get.
	Find(ctx context.Context, table string, match func(key string, row Row) bool) (string, Row, bool, error)
}
