// Package keys generates participant keypairs and wraps ephemeral
// session keys for distribution.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

const (
	// RSABits matches the original protocol: 2048-bit identity keys.
	RSABits = 2048
	// SessionKeyBytes is the size of the per-chat symmetric key.
	SessionKeyBytes = 32
)

const (
	privatePEMType = "PRIVATE KEY"
	publicPEMType  = "PUBLIC KEY"
)

// KeyPair holds one identity keypair, PEM-encoded: PKCS#8 for the
// private half, PKIX/SubjectPublicKeyInfo for the public half.
type KeyPair struct {
	PrivatePEM string
	PublicPEM  string
}

// GenerateRSAKeyPair creates a fresh 2048-bit identity keypair.
func GenerateRSAKeyPair() (KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, RSABits)
	if err != nil {
		return KeyPair{}, fmt.Errorf("rsa generation: %w", err)
	}
	return EncodeKeyPair(priv)
}

// EncodeKeyPair serializes both halves of a private key to PEM.
func EncodeKeyPair(priv *rsa.PrivateKey) (KeyPair, error) {
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return KeyPair{}, fmt.Errorf("pkcs8 marshal: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return KeyPair{}, fmt.Errorf("pkix marshal: %w", err)
	}
	return KeyPair{
		PrivatePEM: string(pem.EncodeToMemory(&pem.Block{Type: privatePEMType, Bytes: privDER})),
		PublicPEM:  string(pem.EncodeToMemory(&pem.Block{Type: publicPEMType, Bytes: pubDER})),
	}, nil
}

// ParsePublicKeyPEM decodes a PKIX PEM public key.
func ParsePublicKeyPEM(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("pkix parse: %w", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return pub, nil
}

// ParsePrivateKeyPEM decodes a PKCS#8 PEM private key.
func ParsePrivateKeyPEM(pemStr string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("pkcs8 parse: %w", err)
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA private key")
	}
	return priv, nil
}

// NewSessionKey draws a fresh random 256-bit symmetric key.
func NewSessionKey() ([]byte, error) {
	key := make([]byte, SessionKeyBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("session key generation: %w", err)
	}
	return key, nil
}

// WrapSessionKey encrypts a session key for one recipient with
// RSA-OAEP(SHA-256). Textbook RSA is never used.
func WrapSessionKey(pub *rsa.PublicKey, sessionKey []byte) ([]byte, error) {
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, sessionKey, nil)
	if err != nil {
		return nil, fmt.Errorf("oaep wrap: %w", err)
	}
	return wrapped, nil
}

// UnwrapSessionKey reverses WrapSessionKey with the recipient's private
// key. It exists server-side for tests and the vaultctl tool; real
// recipients unwrap on the client.
func UnwrapSessionKey(priv *rsa.PrivateKey, wrapped []byte) ([]byte, error) {
	sessionKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("oaep unwrap: %w", err)
	}
	return sessionKey, nil
}
