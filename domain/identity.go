// Package domain contains core concepts of the secure chat system.
// No runtime, network, or storage logic should be added here.
package domain

import "time"

// WrappedPrivateKey is a private key sealed under a password-derived key.
// All four parts are required to reverse the operation; the tag is kept
// separate from the ciphertext to match the stored record layout.
type WrappedPrivateKey struct {
	Ciphertext []byte
	Salt       []byte
	IV         []byte
	Tag        []byte
}

// Identity is one registered participant. The wrapped private key is
// produced exactly once, from the original private key generated at
// registration; it is never regenerated afterwards.
type Identity struct {
	Username     string
	PasswordHash string
	PublicKeyPEM string
	PrivateKey   WrappedPrivateKey
	Online       bool
	CreatedAt    time.Time
}

// Credentials is what a successful authentication hands back to the
// caller. Returning the plaintext private key is a deliberate exposure
// boundary of the protocol: this is the only operation through which the
// key leaves the vault, so a future client-side-unwrap redesign stays a
// local change.
type Credentials struct {
	Username      string
	PublicKeyPEM  string
	PrivateKeyPEM string
	Token         string
}
