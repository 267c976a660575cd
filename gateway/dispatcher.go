// Package gateway is the realtime event boundary: it validates inbound
// events from client connections and routes them to the presence
// directory, session manager, and relay. The transport that carries the
// events is external.
package gateway

import (
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/guidoasbun/chat-sec-1/auth"
	"github.com/guidoasbun/chat-sec-1/contract"
	"github.com/guidoasbun/chat-sec-1/domain"
	"github.com/guidoasbun/chat-sec-1/domain/event"
	"github.com/guidoasbun/chat-sec-1/errors"
	"github.com/guidoasbun/chat-sec-1/presence"
	"github.com/guidoasbun/chat-sec-1/relay"
	"github.com/guidoasbun/chat-sec-1/sessions"
)

type Dispatcher struct {
	log       *slog.Logger
	validate  *validator.Validate
	directory presence.IDirectory
	manager   sessions.IManager
	relay     *relay.Relay
}

func NewDispatcher(log *slog.Logger, directory presence.IDirectory,
	manager sessions.IManager, r *relay.Relay) *Dispatcher {
	return &Dispatcher{
		log:       log,
		validate:  validator.New(),
		directory: directory,
		manager:   manager,
		relay:     r,
	}
}

// Connect registers a freshly opened connection; it receives presence
// broadcasts from this point on even before announcing a login.
func (d *Dispatcher) Connect(conn contract.Conn) {
	d.directory.Register(conn)
}

// Disconnect is called by the transport when a connection closes.
func (d *Dispatcher) Disconnect(conn contract.Conn) {
	d.directory.DropConn(conn)
}

// Dispatch validates one inbound event and routes it. Protocol errors
// are answered with a chat_error on the requesting connection only,
// never broadcast and never carrying internals.
func (d *Dispatcher) Dispatch(conn contract.Conn, e event.Inbound) {
	if err := d.validate.Struct(e); err != nil {
		d.log.Debug("Rejecting malformed event", "event", e.EventName(), "error", err)
		d.sendError(conn, event.ChatError{Reason: "invalid event payload"})
		return
	}

	switch evt := e.(type) {
	case event.Login:
		d.directory.Announce(auth.SanitizeIdentifier(evt.Username), conn)

	case event.InitiateChat:
		d.initiateChat(conn, evt)

	case event.JoinChat:
		if err := d.manager.Join(auth.SanitizeIdentifier(evt.Username), evt.SessionID); err != nil {
			d.sendError(conn, event.ChatError{Reason: "unknown session"})
		}

	case event.LeaveChat:
		if err := d.manager.Leave(auth.SanitizeIdentifier(evt.Username), evt.SessionID); err != nil {
			d.sendError(conn, event.ChatError{Reason: "unknown session"})
		}

	case event.SendMessage:
		d.sendMessage(conn, evt)

	default:
		d.log.Warn("Unhandled inbound event", "event", e.EventName())
	}
}

func (d *Dispatcher) initiateChat(conn contract.Conn, evt event.InitiateChat) {
	initiator := auth.SanitizeIdentifier(evt.Initiator)
	participants := make([]string, 0, len(evt.Participants))
	for _, p := range evt.Participants {
		participants = append(participants, auth.SanitizeIdentifier(p))
	}

	if _, err := d.manager.Initiate(initiator, participants); err != nil {
		if partial, ok := errors.AsPartialUnavailability(err); ok {
			d.sendError(conn, event.ChatError{
				Reason:       "some users are offline",
				OfflineUsers: partial.OfflineUsers,
			})
			return
		}
		d.log.Error("Chat initiation failed", "initiator", initiator, "error", err)
		d.sendError(conn, event.ChatError{Reason: "chat initiation failed"})
	}
}

func (d *Dispatcher) sendMessage(conn contract.Conn, evt event.SendMessage) {
	timestamp := evt.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	_, err := d.relay.Publish(domain.Envelope{
		SessionID:          evt.SessionID,
		Sender:             auth.SanitizeIdentifier(evt.Username),
		Ciphertext:         evt.Ciphertext,
		Signature:          evt.Signature,
		SignatureAlgorithm: domain.SignatureAlgorithm(evt.SignatureAlgorithm),
		Timestamp:          timestamp,
	})
	if err != nil {
		d.sendError(conn, event.ChatError{Reason: "message rejected"})
	}
}

func (d *Dispatcher) sendError(conn contract.Conn, chatErr event.ChatError) {
	if err := conn.Send(chatErr); err != nil {
		d.log.Debug("chat_error delivery dropped", "error", err)
	}
}
