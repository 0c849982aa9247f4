package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/medride/internal/models"
	"github.com/example/medride/internal/realtime"
)

// ErrNotConnected is returned when a frame is sent while the transport is
// down; the caller's next cycle retries after reconnect.
var ErrNotConnected = errors.New("not connected")

// Subscriber maintains a live view of the caller's bookings: it dials the
// websocket endpoint with a stored credential, seeds State with a one-shot
// snapshot fetch, and merges delta events until the connection drops. On a
// drop it reconnects and resynchronizes by refetching the snapshot; events
// missed during the gap are never replayed.
type Subscriber struct {
	BaseURL string // e.g. http://localhost:8080
	WSURL   string // e.g. ws://localhost:8080/ws
	Token   string
	State   *State
	Log     *slog.Logger

	HTTP      *http.Client
	Dialer    *websocket.Dialer
	Reconnect time.Duration

	// OnEvent, when set, observes every applied event (UI refresh hook).
	OnEvent func(event string)

	mu   sync.Mutex
	conn *websocket.Conn
}

// Run connects and consumes until ctx is done, reconnecting on transport
// drops. The first connect failure is also retried, so a subscriber can
// start before its server.
func (c *Subscriber) Run(ctx context.Context) error {
	httpc := c.HTTP
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	backoff := c.Reconnect
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	for {
		if err := c.connectOnce(ctx, httpc, dialer); err != nil && ctx.Err() == nil {
			c.Log.Warn("connection lost, reconnecting", "error", err, "backoff", backoff)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (c *Subscriber) connectOnce(ctx context.Context, httpc *http.Client, dialer *websocket.Dialer) error {
	header := http.Header{"Authorization": []string{"Bearer " + c.Token}}
	conn, resp, err := dialer.DialContext(ctx, c.WSURL, header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	c.setConn(conn)
	defer func() {
		c.setConn(nil)
		conn.Close()
	}()

	// Snapshot after connect: anything emitted between fetch and the
	// first delta is covered by idempotent reconciliation.
	if err := c.Resync(ctx, httpc); err != nil {
		return fmt.Errorf("resync: %w", err)
	}
	c.Log.Info("connected and synchronized", "bookings", c.State.Len())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var env realtime.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			c.Log.Warn("malformed frame dropped", "error", err)
			continue
		}
		c.apply(env)
	}
}

func (c *Subscriber) apply(env realtime.Envelope) {
	switch env.Event {
	case realtime.EventBookingCreated, realtime.EventBookingUpdated:
		var b models.Booking
		if err := json.Unmarshal(env.Data, &b); err != nil || b.ID == "" {
			c.Log.Warn("malformed booking event dropped", "event", env.Event)
			return
		}
		if env.Event == realtime.EventBookingCreated {
			c.State.ApplyCreated(&b)
		} else {
			c.State.ApplyUpdated(&b)
		}
	case realtime.EventBookingDeleted:
		var b models.Booking
		if err := json.Unmarshal(env.Data, &b); err != nil || b.ID == "" {
			c.Log.Warn("malformed booking event dropped", "event", env.Event)
			return
		}
		c.State.ApplyDeleted(b.ID)
	case realtime.EventDriverLocation:
		var upd models.LocationUpdate
		if err := json.Unmarshal(env.Data, &upd); err != nil || upd.BookingID == "" {
			c.Log.Warn("malformed location event dropped")
			return
		}
		c.State.ApplyLocation(upd)
	default:
		return
	}
	if c.OnEvent != nil {
		c.OnEvent(env.Event)
	}
}

// Resync replaces local state with the server's role-scoped snapshot.
func (c *Subscriber) Resync(ctx context.Context, httpc *http.Client) error {
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/v1/bookings", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	resp, err := httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("snapshot fetch: status %d", resp.StatusCode)
	}
	var list []*models.Booking
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return err
	}
	c.State.Replace(list)
	return nil
}

// SendSample submits a driver location frame over the live connection.
func (c *Subscriber) SendSample(sample models.LocationSample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	raw, err := json.Marshal(sample)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(realtime.Envelope{Event: realtime.EventDriverLocation, Data: raw})
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

func (c *Subscriber) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}
