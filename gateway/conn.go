package gateway

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/guidoasbun/chat-sec-1/domain/event"
)

// EventConn is the core-side half of one client connection: a buffered
// outbound channel the transport layer drains. Inbound traffic goes
// through Dispatcher.Dispatch.
type EventConn struct {
	id       uuid.UUID
	outbound chan event.Outbound
}

func NewEventConn(bufferSize int) *EventConn {
	return &EventConn{
		id:       uuid.New(),
		outbound: make(chan event.Outbound, bufferSize),
	}
}

func (c *EventConn) ID() uuid.UUID { return c.id }

// Send queues an event for the transport without ever blocking the
// caller; backpressure on one connection must not stall dispatch for
// anyone else.
func (c *EventConn) Send(e event.Outbound) error {
	select {
	case c.outbound <- e:
		return nil
	default:
		return fmt.Errorf("connection %s buffer full, %s dropped", c.id, e.EventName())
	}
}

// Events is read by the transport layer carrying this connection.
func (c *EventConn) Events() <-chan event.Outbound {
	return c.outbound
}
