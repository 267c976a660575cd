//go:generate go run go.uber.org/mock/mockgen -source=identity.go -destination=../mocks/mock_identity_repository.go -package=mocks
package repositories

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"

	"github.com/guidoasbun/chat-sec-1/domain"
	"github.com/guidoasbun/chat-sec-1/errors"
)

const identityPrefix = "user:"

type IIdentityRepository interface {
	CreateIdentity(identity domain.Identity) error
	GetIdentity(username string) (domain.Identity, error)
	SetOnline(username string, online bool) error
	ListOnline() ([]string, error)
}

type IdentityRepository struct {
	db *badger.DB
}

func NewIdentityRepository(db *badger.DB) IIdentityRepository {
	return &IdentityRepository{db: db}
}

// identityRecord is the stored shape of an identity, CBOR-encoded inside
// the Badger value.
type identityRecord struct {
	Username     string `cbor:"username"`
	PasswordHash string `cbor:"password_hash"`
	PublicKeyPEM string `cbor:"public_key"`
	Ciphertext   []byte `cbor:"private_key"`
	Salt         []byte `cbor:"private_key_salt"`
	IV           []byte `cbor:"private_key_iv"`
	Tag          []byte `cbor:"private_key_tag"`
	Online       bool   `cbor:"online"`
	CreatedAt    int64  `cbor:"created_at"`
}

// CreateIdentity persists a new identity record. The username is the
// key; an existing record is never overwritten.
func (r *IdentityRepository) CreateIdentity(identity domain.Identity) error {
	data, err := cbor.Marshal(toIdentityRecord(identity))
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	return r.db.Update(func(txn *badger.Txn) error {
		key := []byte(identityPrefix + identity.Username)
		if _, err := txn.Get(key); err == nil {
			return errors.ErrDuplicateIdentity
		}
		return txn.Set(key, data)
	})
}

func (r *IdentityRepository) GetIdentity(username string) (domain.Identity, error) {
	var record identityRecord

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(identityPrefix + username))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, &record)
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Identity{}, errors.ErrNotFound
	}
	if err != nil {
		return domain.Identity{}, err
	}

	return fromIdentityRecord(record), nil
}

// SetOnline flips the persisted online flag. Idempotent: setting the
// current state again is a plain rewrite.
func (r *IdentityRepository) SetOnline(username string, online bool) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		key := []byte(identityPrefix + username)
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		var record identityRecord
		if err := item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, &record)
		}); err != nil {
			return err
		}

		record.Online = online
		data, err := cbor.Marshal(record)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return errors.ErrNotFound
	}
	return err
}

func (r *IdentityRepository) ListOnline() ([]string, error) {
	var online []string

	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(identityPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var record identityRecord
			err := it.Item().Value(func(val []byte) error {
				return cbor.Unmarshal(val, &record)
			})
			if err != nil {
				return err
			}
			if record.Online {
				online = append(online, record.Username)
			}
		}
		return nil
	})
	return online, err
}

func toIdentityRecord(identity domain.Identity) identityRecord {
	return identityRecord{
		Username:     identity.Username,
		PasswordHash: identity.PasswordHash,
		PublicKeyPEM: identity.PublicKeyPEM,
		Ciphertext:   identity.PrivateKey.Ciphertext,
		Salt:         identity.PrivateKey.Salt,
		IV:           identity.PrivateKey.IV,
		Tag:          identity.PrivateKey.Tag,
		Online:       identity.Online,
		CreatedAt:    identity.CreatedAt.Unix(),
	}
}

func fromIdentityRecord(record identityRecord) domain.Identity {
	return domain.Identity{
		Username:     record.Username,
		PasswordHash: record.PasswordHash,
		PublicKeyPEM: record.PublicKeyPEM,
		PrivateKey: domain.WrappedPrivateKey{
			Ciphertext: record.Ciphertext,
			Salt:       record.Salt,
			IV:         record.IV,
			Tag:        record.Tag,
		},
		Online:    record.Online,
		CreatedAt: time.Unix(record.CreatedAt, 0).UTC(),
	}
}
