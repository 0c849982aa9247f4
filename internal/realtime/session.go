package realtime

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/example/medride/internal/auth"
)

// Event names on the wire, both directions.
const (
	EventBookingCreated = "booking:created"
	EventBookingUpdated = "booking:updated"
	EventBookingDeleted = "booking:deleted"
	EventDriverLocation = "driver:location"
)

// Envelope frames every websocket message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrSendBufferFull = errors.New("session send buffer full")
)

// Conn is the subset of *websocket.Conn the session needs. Tests
// substitute an in-memory implementation.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Session is one live connection. Identity is bound once at handshake and
// never changes. Outbound writes go through a bounded channel drained by a
// single writer goroutine, so one slow consumer cannot stall an emit.
type Session struct {
	ID       string
	Identity auth.Identity

	conn      Conn
	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func NewSession(conn Conn, id auth.Identity, sendBuffer int) *Session {
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	s := &Session{
		ID:       uuid.NewString(),
		Identity: id,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		closed:   make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

func (s *Session) writeLoop() {
	for {
		select {
		case msg := <-s.send:
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.Close()
				return
			}
		case <-s.closed:
			return
		}
	}
}

// Send enqueues a frame for delivery. A full buffer is reported as an
// error so the broadcaster can treat the session as dead.
func (s *Session) Send(msg []byte) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}
	select {
	case s.send <- msg:
		return nil
	case <-s.closed:
		return ErrSessionClosed
	default:
		return ErrSendBufferFull
	}
}

// SendEvent marshals an envelope and enqueues it.
func (s *Session) SendEvent(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		return err
	}
	return s.Send(msg)
}

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
}

func (s *Session) Closed() <-chan struct{} { return s.closed }

// ReadLoop blocks consuming inbound frames until the transport drops,
// graceful or not. Malformed frames are skipped via the handler contract;
// the connection stays alive.
func (s *Session) ReadLoop(handle func(env Envelope)) {
	defer s.Close()
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil || env.Event == "" {
			continue
		}
		handle(env)
	}
}
