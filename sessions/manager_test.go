package sessions

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/guidoasbun/chat-sec-1/domain"
	"github.com/guidoasbun/chat-sec-1/domain/event"
	"github.com/guidoasbun/chat-sec-1/errors"
	"github.com/guidoasbun/chat-sec-1/keys"
	"github.com/guidoasbun/chat-sec-1/presence"
	"github.com/guidoasbun/chat-sec-1/runtime"
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

func (c *fakeConn) events() []event.Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.Outbound(nil), c.sent...)
}

func (c *fakeConn) invitations() []event.ChatInvitation {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []event.ChatInvitation
	for _, e := range c.sent {
		if inv, ok := e.(event.ChatInvitation); ok {
			out = append(out, inv)
		}
	}
	return out
}

func (c *fakeConn) invitation() (event.ChatInvitation, bool) {
	invitations := c.invitations()
	if len(invitations) == 0 {
		return event.ChatInvitation{}, false
	}
	return invitations[0], true
}

type noopStore struct{}

func (noopStore) SetOnline(string, bool) error { return nil }

// keyDirectory is an in-memory PublicKeyLookup over generated keypairs.
type keyDirectory map[string]keys.KeyPair

func (d keyDirectory) LookupPublicKey(username string) (string, error) {
	pair, ok := d[username]
	if !ok {
		return "", errors.ErrNotFound
	}
	return pair.PublicPEM, nil
}

// gatedKeys holds LookupPublicKey calls for the named users until the
// gate channel is closed; other lookups pass straight through.
type gatedKeys struct {
	inner keyDirectory
	held  map[string]bool
	gate  chan struct{}
}

func (g *gatedKeys) LookupPublicKey(username string) (string, error) {
	if g.held[username] {
		<-g.gate
	}
	return g.inner.LookupPublicKey(username)
}

type fixture struct {
	manager   *Manager
	directory *presence.Directory
	keysource keyDirectory
	release   chan struct{}
	conns     map[string]*fakeConn
}

// newFixture wires a manager over a live directory and a running worker
// pool, with a generated keypair and an announced connection per user.
func newFixture(t *testing.T, usernames ...string) *fixture {
	return newGatedFixture(t, nil, usernames...)
}

// newGatedFixture additionally parks the key lookup of the held users
// until f.release is closed, pinning their deliveries mid-distribution.
func newGatedFixture(t *testing.T, held []string, usernames ...string) *fixture {
	t.Helper()
	log := slog.Default()

	directory := presence.NewDirectory(log, noopStore{})
	keysource := keyDirectory{}
	conns := map[string]*fakeConn{}
	for _, username := range usernames {
		pair, err := keys.GenerateRSAKeyPair()
		require.NoError(t, err)
		keysource[username] = pair

		conn := newFakeConn()
		directory.Announce(username, conn)
		conns[username] = conn
	}

	release := make(chan struct{})
	var lookup PublicKeyLookup = keysource
	if len(held) > 0 {
		heldSet := map[string]bool{}
		for _, username := range held {
			heldSet[username] = true
		}
		lookup = &gatedKeys{inner: keysource, held: heldSet, gate: release}
	}

	pool := runtime.NewPool(16)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	for _, worker := range pool.Workers(2, log) {
		worker := worker
		go func() { _ = worker.Run(ctx) }()
	}

	return &fixture{
		manager:   NewManager(log, directory, lookup, pool),
		directory: directory,
		keysource: keysource,
		release:   release,
		conns:     conns,
	}
}

func (f *fixture) waitActive(t *testing.T, sessionID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		f.manager.mu.Lock()
		defer f.manager.mu.Unlock()
		s, ok := f.manager.sessions[sessionID]
		return ok && s.key == nil
	}, 2*time.Second, 5*time.Millisecond)
}

func Test_Initiate_Distributes_Same_Key_To_Each_Participant(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "alice", "bob")

	sessionID, err := f.manager.Initiate("alice", []string{"bob"})
	req.NoError(err)
	req.True(strings.HasPrefix(sessionID, "chat_"))
	req.Len(sessionID, len("chat_")+16)

	f.waitActive(t, sessionID)

	// Each participant received exactly one invitation, wrapped for their
	// own key, and both open to the same session key.
	var unwrapped [][]byte
	for _, username := range []string{"alice", "bob"} {
		invitations := f.conns[username].invitations()
		req.Len(invitations, 1, username)

		inv := invitations[0]
		req.Equal(sessionID, inv.SessionID)
		req.Equal("alice", inv.Initiator)
		req.ElementsMatch([]string{"alice", "bob"}, inv.Participants)

		priv, err := keys.ParsePrivateKeyPEM(f.keysource[username].PrivatePEM)
		req.NoError(err)
		key, err := keys.UnwrapSessionKey(priv, inv.WrappedKey)
		req.NoError(err)
		req.Len(key, keys.SessionKeyBytes)
		unwrapped = append(unwrapped, key)
	}
	req.Equal(unwrapped[0], unwrapped[1])

	// Wrapped blobs differ per recipient even though the key is shared.
	req.NotEqual(
		f.conns["alice"].invitations()[0].WrappedKey,
		f.conns["bob"].invitations()[0].WrappedKey,
	)

	members, err := f.manager.Members(sessionID)
	req.NoError(err)
	req.ElementsMatch([]string{"alice", "bob"}, members)
}

func Test_Initiate_Aborts_When_A_Participant_Is_Offline(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "alice", "bob")

	_, err := f.manager.Initiate("alice", []string{"bob", "carol"})

	var partial *errors.PartialUnavailabilityError
	req.ErrorAs(err, &partial)
	req.Equal([]string{"carol"}, partial.OfflineUsers)

	// Nothing was created and nothing was delivered.
	req.Empty(f.manager.sessions)
	req.Empty(f.conns["alice"].invitations())
	req.Empty(f.conns["bob"].invitations())
}

func Test_Initiate_Skips_Member_With_Unresolvable_Public_Key(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "alice", "bob")

	// carol is online but was never registered, so her key is unknown.
	f.directory.Announce("carol", newFakeConn())

	sessionID, err := f.manager.Initiate("alice", []string{"bob", "carol"})
	req.NoError(err)

	f.waitActive(t, sessionID)

	members, err := f.manager.Members(sessionID)
	req.NoError(err)
	req.ElementsMatch([]string{"alice", "bob"}, members)
	req.Len(f.conns["bob"].invitations(), 1)
}

func Test_Leave_Tears_Down_Session_Below_Two_Members(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "alice", "bob")

	sessionID, err := f.manager.Initiate("alice", []string{"bob"})
	req.NoError(err)
	f.waitActive(t, sessionID)

	req.NoError(f.manager.Leave("bob", sessionID))

	// One member left: the session is gone, its id unknown.
	_, err = f.manager.Members(sessionID)
	req.ErrorIs(err, errors.ErrNotFound)
	req.ErrorIs(f.manager.Leave("alice", sessionID), errors.ErrNotFound)
}

func Test_Authorize(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "alice", "bob", "eve")

	sessionID, err := f.manager.Initiate("alice", []string{"bob"})
	req.NoError(err)
	f.waitActive(t, sessionID)

	req.NoError(f.manager.Authorize(sessionID, "alice"))
	req.ErrorIs(f.manager.Authorize(sessionID, "eve"), errors.ErrNotMember)
	req.ErrorIs(f.manager.Authorize("chat_0000000000000000", "alice"), errors.ErrNotFound)
}

// A member leaving mid-distribution tears the session down; the pending
// delivery must then be dropped entirely, never sent with key bytes the
// teardown already zeroized.
func Test_Teardown_During_Distribution_Never_Delivers_Stale_Key(t *testing.T) {
	req := require.New(t)
	f := newGatedFixture(t, []string{"alice"}, "alice", "bob")

	sessionID, err := f.manager.Initiate("alice", []string{"bob"})
	req.NoError(err)

	// bob's delivery runs to completion while alice's wrap is parked.
	require.Eventually(t, func() bool {
		_, ok := f.conns["bob"].invitation()
		return ok && f.manager.Authorize(sessionID, "bob") == nil
	}, 2*time.Second, 5*time.Millisecond)

	// Last member walks out: session terminated, key zeroized.
	req.NoError(f.manager.Leave("bob", sessionID))
	close(f.release)

	// bob's wrapped key still opens to the real, non-zero session key.
	inv, ok := f.conns["bob"].invitation()
	req.True(ok)
	priv, err := keys.ParsePrivateKeyPEM(f.keysource["bob"].PrivatePEM)
	req.NoError(err)
	key, err := keys.UnwrapSessionKey(priv, inv.WrappedKey)
	req.NoError(err)
	req.NotEqual(make([]byte, keys.SessionKeyBytes), key)

	// The parked delivery lands in a dead session and is dropped.
	require.Never(t, func() bool {
		_, ok := f.conns["alice"].invitation()
		return ok
	}, 300*time.Millisecond, 10*time.Millisecond)
}

// A distribution where no participant's key resolves leaves fewer than
// two members; the session must not linger as an empty active room.
func Test_Distribution_With_No_Deliverable_Members_Is_Discarded(t *testing.T) {
	req := require.New(t)
	f := newGatedFixture(t, []string{"alice", "bob"}, "alice", "bob")
	delete(f.keysource, "alice")
	delete(f.keysource, "bob")

	sessionID, err := f.manager.Initiate("alice", []string{"bob"})
	req.NoError(err)

	f.manager.mu.Lock()
	s := f.manager.sessions[sessionID]
	f.manager.mu.Unlock()
	req.NotNil(s)

	close(f.release)

	require.Eventually(t, func() bool {
		_, err := f.manager.Members(sessionID)
		return err != nil
	}, 2*time.Second, 5*time.Millisecond)

	req.ErrorIs(f.manager.Authorize(sessionID, "alice"), errors.ErrNotFound)

	f.manager.mu.Lock()
	state, key := s.state, s.key
	f.manager.mu.Unlock()
	req.Equal(domain.SessionFailed, state)
	req.Nil(key)
}

func Test_Session_State_Progression(t *testing.T) {
	req := require.New(t)
	f := newGatedFixture(t, []string{"bob"}, "alice", "bob")

	sessionID, err := f.manager.Initiate("alice", []string{"bob"})
	req.NoError(err)

	f.manager.mu.Lock()
	s := f.manager.sessions[sessionID]
	state := s.state
	f.manager.mu.Unlock()
	req.Equal(domain.SessionDistributing, state)

	close(f.release)
	f.waitActive(t, sessionID)

	f.manager.mu.Lock()
	state = s.state
	f.manager.mu.Unlock()
	req.Equal(domain.SessionActive, state)
}

func Test_Join_Announces_To_Room(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "alice", "bob", "carol")

	sessionID, err := f.manager.Initiate("alice", []string{"bob"})
	req.NoError(err)
	f.waitActive(t, sessionID)

	req.NoError(f.manager.Join("carol", sessionID))

	req.NoError(f.manager.Authorize(sessionID, "carol"))

	found := false
	for _, e := range f.conns["bob"].events() {
		if joined, ok := e.(event.UserJoined); ok {
			req.Equal("carol", joined.Username)
			req.Equal(sessionID, joined.SessionID)
			found = true
		}
	}
	req.True(found)
}
