//go:generate go run go.uber.org/mock/mockgen -source=identity_service.go -destination=../mocks/mock_identity_service.go -package=mocks
package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/guidoasbun/chat-sec-1/auth"
	"github.com/guidoasbun/chat-sec-1/domain"
	"github.com/guidoasbun/chat-sec-1/errors"
	"github.com/guidoasbun/chat-sec-1/keys"
	"github.com/guidoasbun/chat-sec-1/repositories"
	"github.com/guidoasbun/chat-sec-1/vault"
)

type IIdentityService interface {
	Register(ctx context.Context, username, password string) (string, error)
	Authenticate(ctx context.Context, username, password string) (domain.Credentials, error)
	LookupPublicKey(username string) (string, error)
	SetOnline(username string, online bool) error
	ListOnline() ([]string, error)
}

type IdentityService struct {
	identityRepository repositories.IIdentityRepository
	tokens             *auth.TokenIssuer
	derivationTimeout  time.Duration
}

func NewIdentityService(repo repositories.IIdentityRepository, tokens *auth.TokenIssuer,
	derivationTimeout time.Duration) IIdentityService {
	return &IdentityService{
		identityRepository: repo,
		tokens:             tokens,
		derivationTimeout:  derivationTimeout,
	}
}

// Register creates a new identity and returns its public key PEM for
// out-of-band distribution.
func (s *IdentityService) Register(ctx context.Context, username, password string) (string, error) {
	username = auth.SanitizeIdentifier(username)

	// 1. Validate business rules before any expensive cryptographic work.
	if err := auth.ValidateRegister(auth.RegisterRequest{Username: username, Password: password}); err != nil {
		return "", err
	}

	// 2. One-way salted verifier; the plaintext password is never stored.
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}

	// 3. Fresh identity keypair. The private half exists in plaintext
	// only between generation and wrap.
	pair, err := keys.GenerateRSAKeyPair()
	if err != nil {
		return "", fmt.Errorf("keypair generation failed: %w", err)
	}

	// 4. Wrap the original private key under the login password. This is
	// the only time the wrapped blob is ever produced.
	wrapCtx, cancel := context.WithTimeout(ctx, s.derivationTimeout)
	defer cancel()
	wrapped, err := vault.WrapContext(wrapCtx, []byte(pair.PrivatePEM), password)
	if err != nil {
		return "", err
	}

	err = s.identityRepository.CreateIdentity(domain.Identity{
		Username:     username,
		PasswordHash: hashedPassword,
		PublicKeyPEM: pair.PublicPEM,
		PrivateKey:   wrapped,
		Online:       false,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return "", err // Propagates ErrDuplicateIdentity when the username is taken
	}

	return pair.PublicPEM, nil
}

// Authenticate verifies the password, unwraps the private key, and marks
// the identity online. Returning the plaintext private key is the one
// deliberate exposure boundary of the protocol; everything else only
// ever sees the wrapped blob.
func (s *IdentityService) Authenticate(ctx context.Context, username, password string) (domain.Credentials, error) {
	username = auth.SanitizeIdentifier(username)

	identity, err := s.identityRepository.GetIdentity(username)
	if err != nil {
		// Generic error to prevent user enumeration.
		return domain.Credentials{}, errors.ErrInvalidCredential
	}

	match, err := auth.ComparePassword(password, identity.PasswordHash)
	if err != nil || !match {
		return domain.Credentials{}, errors.ErrInvalidCredential
	}

	unwrapCtx, cancel := context.WithTimeout(ctx, s.derivationTimeout)
	defer cancel()
	privateKeyPEM, err := vault.UnwrapContext(unwrapCtx, identity.PrivateKey, password)
	if err != nil {
		if stderrors.Is(err, errors.ErrDerivationTimeout) {
			return domain.Credentials{}, err
		}
		// The verifier matched but the blob did not open: tampered record.
		return domain.Credentials{}, errors.ErrAuthenticationFailure
	}

	if err := s.identityRepository.SetOnline(username, true); err != nil {
		return domain.Credentials{}, err
	}

	token, err := s.tokens.Generate(username)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("token generation failed: %w", err)
	}

	return domain.Credentials{
		Username:      username,
		PublicKeyPEM:  identity.PublicKeyPEM,
		PrivateKeyPEM: string(privateKeyPEM),
		Token:         token,
	}, nil
}

// LookupPublicKey requires no authentication: public keys are not secret.
func (s *IdentityService) LookupPublicKey(username string) (string, error) {
	identity, err := s.identityRepository.GetIdentity(auth.SanitizeIdentifier(username))
	if err != nil {
		return "", err
	}
	return identity.PublicKeyPEM, nil
}

func (s *IdentityService) SetOnline(username string, online bool) error {
	return s.identityRepository.SetOnline(username, online)
}

func (s *IdentityService) ListOnline() ([]string, error) {
	return s.identityRepository.ListOnline()
}
