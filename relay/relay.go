// Package relay fans already-encrypted envelopes out to a session's room
// and persists them for later retrieval. It performs no cryptographic
// inspection: ordering and delivery are its only contract, authenticity
// is the clients' problem.
package relay

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/guidoasbun/chat-sec-1/domain"
	"github.com/guidoasbun/chat-sec-1/domain/event"
	"github.com/guidoasbun/chat-sec-1/presence"
	"github.com/guidoasbun/chat-sec-1/repositories"
	"github.com/guidoasbun/chat-sec-1/sessions"
)

type Relay struct {
	log       *slog.Logger
	envelopes repositories.IEnvelopeRepository
	directory presence.IDirectory
	rooms     sessions.IManager
}

func NewRelay(log *slog.Logger, envelopes repositories.IEnvelopeRepository,
	directory presence.IDirectory, rooms sessions.IManager) *Relay {
	return &Relay{log: log, envelopes: envelopes, directory: directory, rooms: rooms}
}

// Publish persists an envelope append-only and broadcasts it to every
// connection currently in the session's room, the sender's included.
// An unknown session or a sender outside the room is rejected before
// anything is stored or delivered.
func (r *Relay) Publish(envelope domain.Envelope) (string, error) {
	if err := r.rooms.Authorize(envelope.SessionID, envelope.Sender); err != nil {
		return "", err
	}

	envelope.ID = uuid.NewString()
	if err := r.envelopes.StoreEnvelope(envelope); err != nil {
		return "", err
	}

	members, err := r.rooms.Members(envelope.SessionID)
	if err != nil {
		// Torn down between authorize and fanout; the envelope is
		// persisted, there is simply no one left to deliver to.
		return envelope.ID, nil
	}
	for _, member := range members {
		conn, err := r.directory.Resolve(member)
		if err != nil {
			continue
		}
		if err := conn.Send(event.NewMessage{Envelope: envelope, AssignedID: envelope.ID}); err != nil {
			r.log.Debug("Envelope delivery dropped",
				"session_id", envelope.SessionID, "username", member, "error", err)
		}
	}
	return envelope.ID, nil
}

// History returns all persisted envelopes of a session in ascending
// insertion order. It reads the append-only store directly, so it stays
// restartable after the live session is gone.
func (r *Relay) History(sessionID string) ([]domain.Envelope, error) {
	return r.envelopes.GetEnvelopes(sessionID)
}
