// Package presence owns the live mapping from username to connection.
// It is the sole authority on reachability, rebuilt empty at process
// start and never persisted.
package presence

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/guidoasbun/chat-sec-1/contract"
	"github.com/guidoasbun/chat-sec-1/domain/event"
	"github.com/guidoasbun/chat-sec-1/errors"
)

// OnlineStore persists the online flag of an identity. The directory
// itself stores nothing; no transaction spans the two, a crash in
// between self-heals on the next reconnect.
type OnlineStore interface {
	SetOnline(username string, online bool) error
}

type IDirectory interface {
	Register(conn contract.Conn)
	Announce(username string, conn contract.Conn)
	DropConn(conn contract.Conn)
	Resolve(username string) (contract.Conn, error)
	Broadcast(e event.Outbound)
	Online() []string
}

// Directory is the single internally-synchronized structure behind all
// presence mutations; the raw maps are never exposed.
type Directory struct {
	mu    sync.RWMutex
	log   *slog.Logger
	store OnlineStore

	conns map[uuid.UUID]contract.Conn // every live connection, authenticated or not
	users map[string]contract.Conn    // username -> its one connection
	bound map[uuid.UUID]string        // reverse index for disconnect scans
}

func NewDirectory(log *slog.Logger, store OnlineStore) *Directory {
	return &Directory{
		log:   log,
		store: store,
		conns: make(map[uuid.UUID]contract.Conn),
		users: make(map[string]contract.Conn),
		bound: make(map[uuid.UUID]string),
	}
}

// Register tracks a freshly opened, not yet authenticated connection so
// it already receives user_online/user_offline broadcasts.
func (d *Directory) Register(conn contract.Conn) {
	d.mu.Lock()
	d.conns[conn.ID()] = conn
	d.mu.Unlock()
}

// Announce binds a username to its connection. A second login for the
// same username silently replaces the previous mapping: last login wins.
// Everyone currently connected is notified.
func (d *Directory) Announce(username string, conn contract.Conn) {
	d.mu.Lock()
	d.conns[conn.ID()] = conn
	if previous, ok := d.users[username]; ok && previous.ID() != conn.ID() {
		delete(d.bound, previous.ID())
		d.log.Info("Presence mapping replaced", "username", username)
	}
	d.users[username] = conn
	d.bound[conn.ID()] = username
	d.mu.Unlock()

	d.Broadcast(event.UserOnline{Username: username})
}

// DropConn removes a closed connection. If a username was bound to it,
// the persisted online flag is cleared and user_offline is broadcast;
// an unauthenticated connection is a no-op, not an error.
func (d *Directory) DropConn(conn contract.Conn) {
	d.mu.Lock()
	delete(d.conns, conn.ID())
	username, wasBound := d.bound[conn.ID()]
	if wasBound {
		delete(d.bound, conn.ID())
		// Only unbind the user if this conn still owns the mapping; a
		// newer login may have replaced it already.
		if current, ok := d.users[username]; ok && current.ID() == conn.ID() {
			delete(d.users, username)
		} else {
			wasBound = false
		}
	}
	d.mu.Unlock()

	if !wasBound {
		return
	}
	if err := d.store.SetOnline(username, false); err != nil {
		d.log.Warn("Failed to clear online flag", "username", username, "error", err)
	}
	d.Broadcast(event.UserOffline{Username: username})
}

// Resolve returns the live connection of a username.
func (d *Directory) Resolve(username string) (contract.Conn, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	conn, ok := d.users[username]
	if !ok {
		return nil, errors.ErrUserOffline
	}
	return conn, nil
}

// Broadcast sends an event to every live connection. Delivery is
// best-effort; a full connection buffer drops, it never blocks.
func (d *Directory) Broadcast(e event.Outbound) {
	d.mu.RLock()
	targets := make([]contract.Conn, 0, len(d.conns))
	for _, conn := range d.conns {
		targets = append(targets, conn)
	}
	d.mu.RUnlock()

	for _, conn := range targets {
		if err := conn.Send(e); err != nil {
			d.log.Debug("Broadcast delivery dropped", "event", e.EventName(), "error", err)
		}
	}
}

// Online snapshots the currently reachable usernames.
func (d *Directory) Online() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	usernames := make([]string, 0, len(d.users))
	for username := range d.users {
		usernames = append(usernames, username)
	}
	return usernames
}
