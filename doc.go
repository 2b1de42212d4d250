// Package authcore is an embeddable authentication and session-security
// engine for multi-tenant (campaign based) workforce platforms.
//
// The engine authenticates users by email and password, gates on account
// status, issues opaque bearer session tokens, challenges risky logins with
// multi-factor verification, verifies first-seen devices out of band, and
// resolves each user's campaign access scope and authorization claims.
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the collaborator interfaces ([UserDirectory], [Notifier],
// [AccessProfileProvider], [PasswordVerifier]) and value types
// (LoginResult, UserPayload, MetricsSnapshot). Persistent rows travel
// through the store.RecordStore contract; ephemeral MFA challenges and
// operation locks live in Redis.
//
// An Engine is constructed once through the Builder with injected
// collaborators and is safe to call from multiple goroutines after
// [Builder.Build].
package authcore
