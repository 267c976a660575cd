package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/guidoasbun/chat-sec-1/domain/event"
	"github.com/guidoasbun/chat-sec-1/gateway"
)

// StreamHandler is a minimal transport adapter binding the realtime
// event boundary to HTTP: outbound events flow over a server-sent-event
// stream, inbound events arrive as POSTs referencing the stream's
// connection id. Any richer transport can replace it by talking to the
// gateway the same way.
type StreamHandler struct {
	log        *slog.Logger
	dispatcher *gateway.Dispatcher
	bufferSize int

	mu    sync.Mutex
	conns map[string]*gateway.EventConn
}

func NewStreamHandler(log *slog.Logger, dispatcher *gateway.Dispatcher, bufferSize int) *StreamHandler {
	return &StreamHandler{
		log:        log,
		dispatcher: dispatcher,
		bufferSize: bufferSize,
		conns:      make(map[string]*gateway.EventConn),
	}
}

// Mount adds the realtime routes to the router.
func (s *StreamHandler) Mount(r *mux.Router) {
	r.HandleFunc("/api/events/stream", s.Stream).Methods(http.MethodGet)
	r.HandleFunc("/api/events", s.Publish).Methods(http.MethodPost)
}

// Stream opens one long-lived connection. The first frame announces the
// connection id the client must use when posting events; the handler
// blocks until the client goes away, then reports the disconnect.
func (s *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	conn := gateway.NewEventConn(s.bufferSize)
	connID := conn.ID().String()

	s.mu.Lock()
	s.conns[connID] = conn
	s.mu.Unlock()
	s.dispatcher.Connect(conn)

	defer func() {
		s.dispatcher.Disconnect(conn)
		s.mu.Lock()
		delete(s.conns, connID)
		s.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: connected\ndata: {\"conn_id\":%q}\n\n", connID)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-conn.Events():
			data, err := json.Marshal(e)
			if err != nil {
				s.log.Error("Outbound event marshal failed", "event", e.EventName(), "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.EventName(), data)
			flusher.Flush()
		}
	}
}

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Publish accepts one inbound event for a live stream connection.
func (s *StreamHandler) Publish(w http.ResponseWriter, r *http.Request) {
	connID := r.URL.Query().Get("conn")
	s.mu.Lock()
	conn, ok := s.conns[connID]
	s.mu.Unlock()
	if !ok {
		writeDeclined(w, http.StatusNotFound, "unknown connection")
		return
	}

	var frame inboundFrame
	if err := json.NewDecoder(r.Body).Decode(&frame); err != nil {
		writeDeclined(w, http.StatusBadRequest, "invalid request body")
		return
	}

	inbound, err := decodeInbound(frame)
	if err != nil {
		writeDeclined(w, http.StatusBadRequest, "unknown event")
		return
	}

	s.dispatcher.Dispatch(conn, inbound)
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

// decodeInbound closes the inbound union: anything outside it is
// rejected before reaching dispatch.
func decodeInbound(frame inboundFrame) (event.Inbound, error) {
	switch frame.Event {
	case event.Login{}.EventName():
		var e event.Login
		return e, json.Unmarshal(frame.Data, &e)
	case event.InitiateChat{}.EventName():
		var e event.InitiateChat
		return e, json.Unmarshal(frame.Data, &e)
	case event.JoinChat{}.EventName():
		var e event.JoinChat
		return e, json.Unmarshal(frame.Data, &e)
	case event.LeaveChat{}.EventName():
		var e event.LeaveChat
		return e, json.Unmarshal(frame.Data, &e)
	case event.SendMessage{}.EventName():
		var e event.SendMessage
		return e, json.Unmarshal(frame.Data, &e)
	default:
		return nil, fmt.Errorf("unsupported event %q", frame.Event)
	}
}
