// Package password provides the default argon2id password verifier in PHC
// string format. Any implementation of authcore.PasswordVerifier can be
// injected instead.
package password
