package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/guidoasbun/chat-sec-1/auth"
	"github.com/guidoasbun/chat-sec-1/domain"
	"github.com/guidoasbun/chat-sec-1/errors"
	"github.com/guidoasbun/chat-sec-1/keys"
	"github.com/guidoasbun/chat-sec-1/mocks"
	"github.com/guidoasbun/chat-sec-1/vault"
)

const derivationTimeout = 10 * time.Second

func newTestService(repo *mocks.MockIIdentityRepository) IIdentityService {
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	return NewIdentityService(repo, tokens, derivationTimeout)
}

func TestIdentityService_Register(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockIIdentityRepository(ctrl)
	svc := newTestService(mockRepo)

	t.Run("should register and return a 2048-bit public key", func(t *testing.T) {
		req := require.New(t)
		var persisted domain.Identity

		mockRepo.EXPECT().
			CreateIdentity(gomock.Any()).
			DoAndReturn(func(identity domain.Identity) error {
				persisted = identity
				return nil
			}).
			Times(1)

		publicPEM, err := svc.Register(context.Background(), "alice", "Secr3t!pass")
		req.NoError(err)

		pub, err := keys.ParsePublicKeyPEM(publicPEM)
		req.NoError(err)
		req.Equal(2048, pub.N.BitLen())

		// The record never carries the plaintext password or private key.
		req.NotEqual("Secr3t!pass", persisted.PasswordHash)
		match, err := auth.ComparePassword("Secr3t!pass", persisted.PasswordHash)
		req.NoError(err)
		req.True(match)
		req.NotEmpty(persisted.PrivateKey.Ciphertext)
		req.NotContains(string(persisted.PrivateKey.Ciphertext), "PRIVATE KEY")

		// The wrapped blob opens back to the matching private key.
		privatePEM, err := vault.Unwrap(persisted.PrivateKey, "Secr3t!pass")
		req.NoError(err)
		priv, err := keys.ParsePrivateKeyPEM(string(privatePEM))
		req.NoError(err)
		req.Equal(pub.N, priv.PublicKey.N)
	})

	t.Run("should reject a weak password before any persistence", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().CreateIdentity(gomock.Any()).Times(0)

		_, err := svc.Register(context.Background(), "alice", "short")
		req.ErrorIs(err, errors.ErrWeakCredential)
	})

	t.Run("should propagate duplicate username", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().
			CreateIdentity(gomock.Any()).
			Return(errors.ErrDuplicateIdentity).
			Times(1)

		_, err := svc.Register(context.Background(), "alice", "Secr3t!pass")
		req.ErrorIs(err, errors.ErrDuplicateIdentity)
	})

	t.Run("should sanitize the username before storing", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().
			CreateIdentity(gomock.Any()).
			DoAndReturn(func(identity domain.Identity) error {
				req.Equal("mallory", identity.Username)
				return nil
			}).
			Times(1)

		_, err := svc.Register(context.Background(), "<mallory>;", "Secr3t!pass")
		req.NoError(err)
	})
}

// storedIdentity builds a realistic persisted record for login tests.
func storedIdentity(t *testing.T, username, password string) (domain.Identity, keys.KeyPair) {
	t.Helper()
	req := require.New(t)

	hash, err := auth.HashPassword(password)
	req.NoError(err)
	pair, err := keys.GenerateRSAKeyPair()
	req.NoError(err)
	wrapped, err := vault.Wrap([]byte(pair.PrivatePEM), password)
	req.NoError(err)

	return domain.Identity{
		Username:     username,
		PasswordHash: hash,
		PublicKeyPEM: pair.PublicPEM,
		PrivateKey:   wrapped,
		CreatedAt:    time.Now().UTC(),
	}, pair
}

func TestIdentityService_Authenticate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockIIdentityRepository(ctrl)
	svc := newTestService(mockRepo)

	t.Run("should return the unwrapped private key and mark online", func(t *testing.T) {
		req := require.New(t)
		identity, pair := storedIdentity(t, "alice", "Secr3t!pass")

		mockRepo.EXPECT().GetIdentity("alice").Return(identity, nil).Times(1)
		mockRepo.EXPECT().SetOnline("alice", true).Return(nil).Times(1)

		creds, err := svc.Authenticate(context.Background(), "alice", "Secr3t!pass")
		req.NoError(err)
		req.Equal("alice", creds.Username)
		req.Equal(pair.PublicPEM, creds.PublicKeyPEM)
		req.Equal(pair.PrivatePEM, creds.PrivateKeyPEM)
		req.NotEmpty(creds.Token)
	})

	t.Run("should return invalid credentials on wrong password", func(t *testing.T) {
		req := require.New(t)
		identity, _ := storedIdentity(t, "alice", "Secr3t!pass")

		mockRepo.EXPECT().GetIdentity("alice").Return(identity, nil).Times(1)

		_, err := svc.Authenticate(context.Background(), "alice", "wrong")
		req.ErrorIs(err, errors.ErrInvalidCredential)
	})

	t.Run("should return invalid credentials for unknown user", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().GetIdentity("ghost").Return(domain.Identity{}, errors.ErrNotFound).Times(1)

		_, err := svc.Authenticate(context.Background(), "ghost", "whatever")
		req.ErrorIs(err, errors.ErrInvalidCredential)
	})

	t.Run("should surface a tampered blob as authentication failure", func(t *testing.T) {
		req := require.New(t)
		identity, _ := storedIdentity(t, "alice", "Secr3t!pass")
		identity.PrivateKey.Tag[0] ^= 0xFF

		mockRepo.EXPECT().GetIdentity("alice").Return(identity, nil).Times(1)

		_, err := svc.Authenticate(context.Background(), "alice", "Secr3t!pass")
		req.ErrorIs(err, errors.ErrAuthenticationFailure)
	})
}

func TestIdentityService_LookupPublicKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockIIdentityRepository(ctrl)
	svc := newTestService(mockRepo)

	t.Run("should return the stored public key", func(t *testing.T) {
		req := require.New(t)
		identity, pair := storedIdentity(t, "alice", "Secr3t!pass")

		mockRepo.EXPECT().GetIdentity("alice").Return(identity, nil).Times(1)

		publicPEM, err := svc.LookupPublicKey("alice")
		req.NoError(err)
		req.Equal(pair.PublicPEM, publicPEM)
	})

	t.Run("should return not found for unknown user", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().GetIdentity("ghost").Return(domain.Identity{}, errors.ErrNotFound).Times(1)

		_, err := svc.LookupPublicKey("ghost")
		req.ErrorIs(err, errors.ErrNotFound)
	})
}
