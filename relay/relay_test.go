package relay

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/guidoasbun/chat-sec-1/domain"
	"github.com/guidoasbun/chat-sec-1/domain/event"
	"github.com/guidoasbun/chat-sec-1/errors"
	"github.com/guidoasbun/chat-sec-1/presence"
)

type fakeConn struct {
	id   uuid.UUID
	mu   sync.Mutex
	sent []event.Outbound
}

func newFakeConn() *fakeConn {
	return &fakeConn{id: uuid.New()}
}

func (c *fakeConn) ID() uuid.UUID { return c.id }

func (c *fakeConn) Send(e event.Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, e)
	return nil
}

func (c *fakeConn) messages() []event.NewMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []event.NewMessage
	for _, e := range c.sent {
		if msg, ok := e.(event.NewMessage); ok {
			out = append(out, msg)
		}
	}
	return out
}

type noopStore struct{}

func (noopStore) SetOnline(string, bool) error { return nil }

// fakeRooms is a static room: one session, fixed members.
type fakeRooms struct {
	sessionID string
	members   []string
}

func (r *fakeRooms) Initiate(string, []string) (string, error) { return r.sessionID, nil }
func (r *fakeRooms) Join(string, string) error                 { return nil }
func (r *fakeRooms) Leave(string, string) error                { return nil }

func (r *fakeRooms) Members(sessionID string) ([]string, error) {
	if sessionID != r.sessionID {
		return nil, errors.ErrNotFound
	}
	return r.members, nil
}

func (r *fakeRooms) Authorize(sessionID, username string) error {
	if sessionID != r.sessionID {
		return errors.ErrNotFound
	}
	for _, member := range r.members {
		if member == username {
			return nil
		}
	}
	return errors.ErrNotMember
}

// fakeEnvelopes keeps envelopes in memory, append-only.
type fakeEnvelopes struct {
	mu     sync.Mutex
	stored []domain.Envelope
}

func (f *fakeEnvelopes) StoreEnvelope(envelope domain.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, envelope)
	return nil
}

func (f *fakeEnvelopes) GetEnvelopes(sessionID string) ([]domain.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Envelope
	for _, envelope := range f.stored {
		if envelope.SessionID == sessionID {
			out = append(out, envelope)
		}
	}
	return out, nil
}

func envelope(sessionID, sender string) domain.Envelope {
	return domain.Envelope{
		SessionID:          sessionID,
		Sender:             sender,
		Ciphertext:         "b64-ciphertext",
		Signature:          "b64-signature",
		SignatureAlgorithm: domain.SignatureRSA,
		Timestamp:          time.Now().UTC(),
	}
}

func Test_Publish_Fans_Out_To_Room_Including_Sender(t *testing.T) {
	req := require.New(t)

	directory := presence.NewDirectory(slog.Default(), noopStore{})
	alice, bob := newFakeConn(), newFakeConn()
	directory.Announce("alice", alice)
	directory.Announce("bob", bob)

	store := &fakeEnvelopes{}
	rooms := &fakeRooms{sessionID: "chat_aaaaaaaaaaaaaaaa", members: []string{"alice", "bob"}}
	r := NewRelay(slog.Default(), store, directory, rooms)

	id, err := r.Publish(envelope(rooms.sessionID, "alice"))
	req.NoError(err)
	req.NotEmpty(id)

	for _, conn := range []*fakeConn{alice, bob} {
		messages := conn.messages()
		req.Len(messages, 1)
		req.Equal(id, messages[0].AssignedID)
		req.Equal("alice", messages[0].Envelope.Sender)
		req.Equal("b64-ciphertext", messages[0].Envelope.Ciphertext)
	}
}

func Test_Publish_Rejects_Non_Member_Before_Storing(t *testing.T) {
	req := require.New(t)

	directory := presence.NewDirectory(slog.Default(), noopStore{})
	alice := newFakeConn()
	directory.Announce("alice", alice)

	store := &fakeEnvelopes{}
	rooms := &fakeRooms{sessionID: "chat_aaaaaaaaaaaaaaaa", members: []string{"alice", "bob"}}
	r := NewRelay(slog.Default(), store, directory, rooms)

	_, err := r.Publish(envelope(rooms.sessionID, "eve"))
	req.ErrorIs(err, errors.ErrNotMember)
	req.Empty(store.stored)
	req.Empty(alice.messages())

	_, err = r.Publish(envelope("chat_ffffffffffffffff", "alice"))
	req.ErrorIs(err, errors.ErrNotFound)
	req.Empty(store.stored)
}

func Test_Publish_Skips_Offline_Members(t *testing.T) {
	req := require.New(t)

	directory := presence.NewDirectory(slog.Default(), noopStore{})
	alice := newFakeConn()
	directory.Announce("alice", alice)
	// bob is a member but has no live connection.

	store := &fakeEnvelopes{}
	rooms := &fakeRooms{sessionID: "chat_aaaaaaaaaaaaaaaa", members: []string{"alice", "bob"}}
	r := NewRelay(slog.Default(), store, directory, rooms)

	_, err := r.Publish(envelope(rooms.sessionID, "alice"))
	req.NoError(err)
	req.Len(store.stored, 1)
	req.Len(alice.messages(), 1)
}

func Test_History_Returns_Session_Envelopes(t *testing.T) {
	req := require.New(t)

	directory := presence.NewDirectory(slog.Default(), noopStore{})
	alice := newFakeConn()
	directory.Announce("alice", alice)

	store := &fakeEnvelopes{}
	rooms := &fakeRooms{sessionID: "chat_aaaaaaaaaaaaaaaa", members: []string{"alice"}}
	r := NewRelay(slog.Default(), store, directory, rooms)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := r.Publish(envelope(rooms.sessionID, "alice"))
		req.NoError(err)
		ids = append(ids, id)
	}

	history, err := r.History(rooms.sessionID)
	req.NoError(err)
	req.Len(history, 3)
	for i, envelope := range history {
		req.Equal(ids[i], envelope.ID)
	}

	history, err = r.History("chat_ffffffffffffffff")
	req.NoError(err)
	req.Empty(history)
}
