// Package sessions creates chat sessions and distributes their ephemeral
// symmetric key, individually wrapped, to every participant.
package sessions

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samber/lo"

	"github.com/guidoasbun/chat-sec-1/contract"
	"github.com/guidoasbun/chat-sec-1/domain"
	"github.com/guidoasbun/chat-sec-1/domain/event"
	"github.com/guidoasbun/chat-sec-1/errors"
	"github.com/guidoasbun/chat-sec-1/keys"
	"github.com/guidoasbun/chat-sec-1/presence"
	"github.com/guidoasbun/chat-sec-1/runtime"
	"github.com/guidoasbun/chat-sec-1/vault"
)

// PublicKeyLookup resolves a participant's public key PEM.
type PublicKeyLookup interface {
	LookupPublicKey(username string) (string, error)
}

type IManager interface {
	Initiate(initiator string, participants []string) (string, error)
	Join(username, sessionID string) error
	Leave(username, sessionID string) error
	Members(sessionID string) ([]string, error)
	Authorize(sessionID, username string) error
}

type session struct {
	id        string
	initiator string
	members   map[string]struct{}
	state     domain.SessionState
	// key exists only during the distribution window; it is zeroized the
	// moment the last wrap job finishes.
	key []byte
}

// Manager owns all active sessions behind one mutex; join, leave and
// teardown for any session are serialized through it.
type Manager struct {
	mu        sync.Mutex
	log       *slog.Logger
	directory presence.IDirectory
	keysource PublicKeyLookup
	pool      *runtime.Pool
	sessions  map[string]*session
}

func NewManager(log *slog.Logger, directory presence.IDirectory,
	keysource PublicKeyLookup, pool *runtime.Pool) *Manager {
	return &Manager{
		log:       log,
		directory: directory,
		keysource: keysource,
		pool:      pool,
		sessions:  make(map[string]*session),
	}
}

// Initiate creates a session for participants ∪ {initiator} and
// distributes a fresh 256-bit key, wrapped per recipient with
// RSA-OAEP(SHA-256), to each recipient's own connection only.
//
// Reachability of every member is checked before anything is created:
// one offline invitee aborts with PartialUnavailabilityError and leaves
// no session state and no key material behind. After that point a
// member whose public key cannot be resolved is skipped (logged and
// left out of the room) without holding up anyone else's delivery.
func (m *Manager) Initiate(initiator string, participants []string) (string, error) {
	members := lo.Uniq(append(append([]string{}, participants...), initiator))

	conns := make(map[string]contract.Conn, len(members))
	var offline []string
	for _, member := range members {
		conn, err := m.directory.Resolve(member)
		if err != nil {
			offline = append(offline, member)
			continue
		}
		conns[member] = conn
	}
	if len(offline) > 0 {
		return "", &errors.PartialUnavailabilityError{OfflineUsers: offline}
	}

	sessionID, err := newSessionID()
	if err != nil {
		return "", err
	}

	s := &session{
		id:        sessionID,
		initiator: initiator,
		members:   make(map[string]struct{}, len(members)),
		state:     domain.SessionRequested,
	}
	m.mu.Lock()
	m.sessions[sessionID] = s
	m.mu.Unlock()

	sessionKey, err := keys.NewSessionKey()
	if err != nil {
		m.discard(sessionID, domain.SessionFailed)
		return "", err
	}

	m.mu.Lock()
	s.state = domain.SessionDistributing
	s.key = sessionKey
	m.mu.Unlock()

	// N independent deliveries: each wrap runs as its own pool job so a
	// slow resolution for participant i never blocks participant i+1.
	// Per-recipient ordering still holds: the invitation is sent before
	// the member is added to the room. Every job wraps its own copy of
	// the key: teardown zeroizes the session's copy only, never bytes a
	// pending wrap still reads.
	var wg sync.WaitGroup
	for _, member := range members {
		member := member
		conn := conns[member]
		keyCopy := append([]byte(nil), sessionKey...)
		wg.Add(1)
		m.pool.Submit(func() {
			defer wg.Done()
			defer vault.Zero(keyCopy)
			m.distribute(sessionID, initiator, members, member, conn, keyCopy)
		})
	}

	go func() {
		wg.Wait()
		m.finishDistribution(sessionID)
	}()

	return sessionID, nil
}

func (m *Manager) distribute(sessionID, initiator string, members []string,
	member string, conn contract.Conn, sessionKey []byte) {
	publicPEM, err := m.keysource.LookupPublicKey(member)
	if err != nil {
		m.log.Warn("Skipping participant, public key unresolved",
			"session_id", sessionID, "username", member, "error", err)
		return
	}
	publicKey, err := keys.ParsePublicKeyPEM(publicPEM)
	if err != nil {
		m.log.Warn("Skipping participant, public key unparsable",
			"session_id", sessionID, "username", member, "error", err)
		return
	}
	wrappedKey, err := keys.WrapSessionKey(publicKey, sessionKey)
	if err != nil {
		m.log.Warn("Skipping participant, wrap failed",
			"session_id", sessionID, "username", member, "error", err)
		return
	}

	// Teardown can interleave with a pending wrap; a session that no
	// longer exists must not emit invitations.
	m.mu.Lock()
	_, live := m.sessions[sessionID]
	m.mu.Unlock()
	if !live {
		m.log.Debug("Session gone before delivery",
			"session_id", sessionID, "username", member)
		return
	}

	if err := conn.Send(event.ChatInvitation{
		SessionID:    sessionID,
		Initiator:    initiator,
		Participants: members,
		WrappedKey:   wrappedKey,
	}); err != nil {
		m.log.Warn("Invitation delivery failed",
			"session_id", sessionID, "username", member, "error", err)
		return
	}

	m.mu.Lock()
	if s, ok := m.sessions[sessionID]; ok {
		s.members[member] = struct{}{}
	}
	m.mu.Unlock()
}

// finishDistribution discards the in-memory key once every delivery has
// settled: late joiners receive no retroactive key. A distribution that
// left fewer than two members never became a usable room; the session is
// marked failed and removed.
func (m *Manager) finishDistribution(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	vault.Zero(s.key)
	s.key = nil
	if len(s.members) <= 1 {
		s.state = domain.SessionFailed
		delete(m.sessions, sessionID)
		m.log.Warn("Session discarded, not enough deliverable members",
			"session_id", sessionID, "members", len(s.members))
		return
	}
	s.state = domain.SessionActive
	m.log.Info("Session key distribution complete",
		"session_id", sessionID, "members", len(s.members))
}

// discard removes a session that never became usable.
func (m *Manager) discard(sessionID string, state domain.SessionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	s.state = state
	vault.Zero(s.key)
	s.key = nil
	delete(m.sessions, sessionID)
}

// Join adds a member to the room and announces it to the room.
func (m *Manager) Join(username, sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return errors.ErrNotFound
	}
	s.members[username] = struct{}{}
	members := memberList(s)
	m.mu.Unlock()

	m.roomBroadcast(members, event.UserJoined{Username: username, SessionID: sessionID})
	return nil
}

// Leave removes a member; once membership drops to one or zero the
// session is torn down and its id becomes unknown.
func (m *Manager) Leave(username, sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return errors.ErrNotFound
	}
	delete(s.members, username)
	remaining := memberList(s)

	terminated := len(s.members) <= 1
	if terminated {
		s.state = domain.SessionTerminated
		vault.Zero(s.key)
		s.key = nil
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	m.roomBroadcast(remaining, event.UserLeft{Username: username, SessionID: sessionID})
	if terminated {
		m.log.Info("Session terminated", "session_id", sessionID)
	}
	return nil
}

// Members returns the current room membership.
func (m *Manager) Members(sessionID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return memberList(s), nil
}

// Authorize rejects publishing into an unknown session or by a
// non-member.
func (m *Manager) Authorize(sessionID, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return errors.ErrNotFound
	}
	if _, member := s.members[username]; !member {
		return errors.ErrNotMember
	}
	return nil
}

func (m *Manager) roomBroadcast(members []string, e event.Outbound) {
	for _, member := range members {
		conn, err := m.directory.Resolve(member)
		if err != nil {
			continue
		}
		if err := conn.Send(e); err != nil {
			m.log.Debug("Room delivery dropped",
				"event", e.EventName(), "username", member, "error", err)
		}
	}
}

func memberList(s *session) []string {
	return lo.Keys(s.members)
}

// newSessionID allocates an opaque id in the protocol's chat_<hex>
// format.
func newSessionID() (string, error) {
	raw := make([]byte, 8)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("session id generation: %w", err)
	}
	return "chat_" + hex.EncodeToString(raw), nil
}
