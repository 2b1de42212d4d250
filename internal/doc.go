// Package internal holds the crypto and token primitives shared by the
// engine: random token/salt/code generation, salted hashing, constant-time
// comparison, and device fingerprinting. Nothing here is part of the public
// API.
package internal
