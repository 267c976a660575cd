//go:generate go run go.uber.org/mock/mockgen -source=envelope.go -destination=../mocks/mock_envelope_repository.go -package=mocks
package repositories

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"

	"github.com/guidoasbun/chat-sec-1/domain"
)

type IEnvelopeRepository interface {
	StoreEnvelope(envelope domain.Envelope) error
	GetEnvelopes(sessionID string) ([]domain.Envelope, error)
}

type EnvelopeRepository struct {
	db *badger.DB
}

func NewEnvelopeRepository(db *badger.DB) IEnvelopeRepository {
	return &EnvelopeRepository{db: db}
}

type envelopeRecord struct {
	ID                 string `cbor:"id"`
	SessionID          string `cbor:"chat_id"`
	Sender             string `cbor:"sender"`
	Ciphertext         string `cbor:"encrypted_message"`
	Signature          string `cbor:"signature"`
	SignatureAlgorithm string `cbor:"signature_type"`
	Timestamp          int64  `cbor:"timestamp"`
}

// StoreEnvelope persists an envelope append-only.
// The key is "msg:{chat_id}:{timestamp_padded}:{id}":
//  1. 19-digit zero padding makes lexicographic order chronological.
//  2. The envelope id disambiguates two envelopes in the same nanosecond.
func (r *EnvelopeRepository) StoreEnvelope(envelope domain.Envelope) error {
	key := fmt.Sprintf("msg:%s:%019d:%s",
		envelope.SessionID,
		envelope.Timestamp.UnixNano(),
		envelope.ID,
	)
	data, err := cbor.Marshal(toEnvelopeRecord(envelope))
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// GetEnvelopes returns all envelopes of a session in ascending
// timestamp/insertion order. The padded key makes a forward prefix scan
// come out already sorted.
func (r *EnvelopeRepository) GetEnvelopes(sessionID string) ([]domain.Envelope, error) {
	var envelopes []domain.Envelope

	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", sessionID))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var record envelopeRecord
			err := it.Item().Value(func(val []byte) error {
				return cbor.Unmarshal(val, &record)
			})
			if err != nil {
				return err
			}
			envelopes = append(envelopes, fromEnvelopeRecord(record))
		}
		return nil
	})
	return envelopes, err
}

func toEnvelopeRecord(envelope domain.Envelope) envelopeRecord {
	return envelopeRecord{
		ID:                 envelope.ID,
		SessionID:          envelope.SessionID,
		Sender:             envelope.Sender,
		Ciphertext:         envelope.Ciphertext,
		Signature:          envelope.Signature,
		SignatureAlgorithm: string(envelope.SignatureAlgorithm),
		Timestamp:          envelope.Timestamp.UnixNano(),
	}
}

func fromEnvelopeRecord(record envelopeRecord) domain.Envelope {
	return domain.Envelope{
		ID:                 record.ID,
		SessionID:          record.SessionID,
		Sender:             record.Sender,
		Ciphertext:         record.Ciphertext,
		Signature:          record.Signature,
		SignatureAlgorithm: domain.SignatureAlgorithm(record.SignatureAlgorithm),
		Timestamp:          time.Unix(0, record.Timestamp).UTC(),
	}
}
