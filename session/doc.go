// Package session owns the bearer session lifecycle: token issuance,
// salted-hash verification, touch/renewal policy, legacy row migration, and
// invalidation, all over the abstract record store.
package session
