// Package vault turns a password into a symmetric wrapping key and uses
// it to seal and open private key material. It is a pure transform: no
// storage, no side effects.
package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/guidoasbun/chat-sec-1/domain"
	"github.com/guidoasbun/chat-sec-1/errors"
)

const (
	// Iterations follows the original protocol parameters:
	// PBKDF2-HMAC-SHA-256 with a 100k work factor and 256-bit output.
	Iterations = 100_000
	KeyBytes   = 32
	SaltBytes  = 16
	NonceBytes = 12
	TagBytes   = 16
)

// DeriveKey is deterministic per (password, salt); different salts yield
// unlinkable keys for the same password.
func DeriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, Iterations, KeyBytes, sha256.New)
}

// Wrap seals plaintext under a key derived from password. Every call
// draws a fresh salt, so every call encrypts under a fresh key; the
// fresh nonce can therefore never repeat under the same key.
func Wrap(plaintext []byte, password string) (domain.WrappedPrivateKey, error) {
	salt := make([]byte, SaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return domain.WrappedPrivateKey{}, fmt.Errorf("salt generation: %w", err)
	}
	nonce := make([]byte, NonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return domain.WrappedPrivateKey{}, fmt.Errorf("nonce generation: %w", err)
	}

	key := DeriveKey(password, salt)
	defer Zero(key)

	aead, err := newGCM(key)
	if err != nil {
		return domain.WrappedPrivateKey{}, err
	}

	// Seal appends the 16-byte tag to the ciphertext; it is stored split
	// off, matching the record layout of the wire protocol.
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	cut := len(sealed) - TagBytes
	return domain.WrappedPrivateKey{
		Ciphertext: sealed[:cut],
		Salt:       salt,
		IV:         nonce,
		Tag:        sealed[cut:],
	}, nil
}

// Unwrap re-derives the key and opens the sealed private key. A wrong
// password and a tampered ciphertext are indistinguishable here: both
// surface as ErrAuthenticationFailure, and no partial plaintext is ever
// returned.
func Unwrap(wrapped domain.WrappedPrivateKey, password string) ([]byte, error) {
	key := DeriveKey(password, wrapped.Salt)
	defer Zero(key)

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := append(append([]byte{}, wrapped.Ciphertext...), wrapped.Tag...)
	plaintext, err := aead.Open(nil, wrapped.IV, sealed, nil)
	if err != nil {
		return nil, errors.ErrAuthenticationFailure
	}
	return plaintext, nil
}

// WrapContext runs Wrap off the calling goroutine and gives up when the
// context expires, surfacing ErrDerivationTimeout. The derivation itself
// is not cancellable; an abandoned run finishes in the background and
// its result is dropped.
func WrapContext(ctx context.Context, plaintext []byte, password string) (domain.WrappedPrivateKey, error) {
	type result struct {
		wrapped domain.WrappedPrivateKey
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		w, err := Wrap(plaintext, password)
		ch <- result{w, err}
	}()
	select {
	case r := <-ch:
		return r.wrapped, r.err
	case <-ctx.Done():
		return domain.WrappedPrivateKey{}, errors.ErrDerivationTimeout
	}
}

// UnwrapContext is the deadline-bounded counterpart of Unwrap.
func UnwrapContext(ctx context.Context, wrapped domain.WrappedPrivateKey, password string) ([]byte, error) {
	type result struct {
		plaintext []byte
		err       error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := Unwrap(wrapped, password)
		ch <- result{p, err}
	}()
	select {
	case r := <-ch:
		return r.plaintext, r.err
	case <-ctx.Done():
		return nil, errors.ErrDerivationTimeout
	}
}

// Zero overwrites transient key material in place.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}
	return cipher.NewGCM(block)
}
