// Package event defines the closed set of realtime protocol events.
//
// Inbound events arrive from a client connection and are validated at the
// boundary before dispatch; outbound events are pushed to connections.
// The transport carrying them is external to this core.
package event

import (
	"time"

	"github.com/guidoasbun/chat-sec-1/domain"
)

// Inbound is the tagged union of client-to-server events.
type Inbound interface {
	EventName() string
}

// Outbound is the tagged union of server-to-client events.
type Outbound interface {
	EventName() string
}

type Login struct {
	Username string `json:"username" validate:"required"`
}

func (Login) EventName() string { return "login" }

type InitiateChat struct {
	Initiator    string   `json:"initiator" validate:"required"`
	Participants []string `json:"participants" validate:"required,min=1,dive,required"`
}

func (InitiateChat) EventName() string { return "initiate_chat" }

type JoinChat struct {
	Username  string `json:"username" validate:"required"`
	SessionID string `json:"chat_id" validate:"required"`
}

func (JoinChat) EventName() string { return "join_chat" }

type LeaveChat struct {
	Username  string `json:"username" validate:"required"`
	SessionID string `json:"chat_id" validate:"required"`
}

func (LeaveChat) EventName() string { return "leave_chat" }

type SendMessage struct {
	Username           string    `json:"username" validate:"required"`
	SessionID          string    `json:"chat_id" validate:"required"`
	Ciphertext         string    `json:"encrypted_message" validate:"required"`
	Signature          string    `json:"signature" validate:"required"`
	SignatureAlgorithm string    `json:"signature_type" validate:"required,oneof=RSA DSA"`
	Timestamp          time.Time `json:"timestamp"`
}

func (SendMessage) EventName() string { return "send_message" }

type UserOnline struct {
	Username string `json:"username"`
}

func (UserOnline) EventName() string { return "user_online" }

type UserOffline struct {
	Username string `json:"username"`
}

func (UserOffline) EventName() string { return "user_offline" }

// ChatInvitation carries the session key wrapped for exactly one
// recipient. It is only ever sent to that recipient's own connection,
// never to the room.
type ChatInvitation struct {
	SessionID    string   `json:"chat_id"`
	Initiator    string   `json:"initiator"`
	Participants []string `json:"participants"`
	WrappedKey   []byte   `json:"encrypted_key"`
}

func (ChatInvitation) EventName() string { return "chat_invitation" }

// ChatError is scoped to the requesting connection, never broadcast.
type ChatError struct {
	Reason       string   `json:"message"`
	OfflineUsers []string `json:"offline_users,omitempty"`
}

func (ChatError) EventName() string { return "chat_error" }

type UserJoined struct {
	Username  string `json:"username"`
	SessionID string `json:"chat_id"`
}

func (UserJoined) EventName() string { return "user_joined" }

type UserLeft struct {
	Username  string `json:"username"`
	SessionID string `json:"chat_id"`
}

func (UserLeft) EventName() string { return "user_left" }

type NewMessage struct {
	Envelope   domain.Envelope `json:"envelope"`
	AssignedID string          `json:"_id"`
}

func (NewMessage) EventName() string { return "new_message" }
