// Package store defines the abstract record persistence contract used by
// the engine for sessions, trusted devices, and durable challenge fallback,
// plus an indexed in-memory adapter. Real deployments implement RecordStore
// over their row storage of choice; the engine only depends on the
// contract.
package store
