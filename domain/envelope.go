package domain

import "time"

// SignatureAlgorithm names the client-side signature scheme of an
// envelope. The server never verifies signatures; the value is carried
// so recipients know how to.
type SignatureAlgorithm string

const (
	SignatureRSA SignatureAlgorithm = "RSA"
	SignatureDSA SignatureAlgorithm = "DSA"
)

func (a SignatureAlgorithm) Valid() bool {
	return a == SignatureRSA || a == SignatureDSA
}

// Envelope is one relayed chat message: ciphertext and signature are
// opaque client-produced blobs. Envelopes are immutable once persisted,
// append-only per session.
type Envelope struct {
	ID                 string             `json:"id"`
	SessionID          string             `json:"chat_id"`
	Sender             string             `json:"sender"`
	Ciphertext         string             `json:"encrypted_message"`
	Signature          string             `json:"signature"`
	SignatureAlgorithm SignatureAlgorithm `json:"signature_type"`
	Timestamp          time.Time          `json:"timestamp"`
}
