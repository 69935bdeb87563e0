package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	pongTimeout    = 10 * time.Second
	writeTimeout   = 10 * time.Second
	// Dashboards only send small control requests.
	readLimit = 512
)

// Close reasons reported to the dashboard.
const (
	reasonClosed  = "widget session closed"
	reasonStale   = "widget did not answer ping"
	reasonBlocked = "widget write timed out"
)

// Request is a control message sent by a dashboard, e.g. {"type":"sync"}.
type Request struct {
	Type string `json:"type"`
}

// RequestSync asks the backend for an out-of-band refresh.
const RequestSync = "sync"

// Client represents a single dashboard connection.
type Client struct {
	hub  *Hub
	conn *ws.Conn
	send chan []byte
}

// NewClient creates a Client tied to the given hub and connection.
func NewClient(hub *Hub, conn *ws.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// Run registers the client, starts the write pump, and runs the read pump.
// It blocks until either pump stops, then unregisters and closes the
// connection with the reason the write pump reported.
func (c *Client) Run(ctx context.Context) {
	c.conn.SetReadLimit(readLimit)
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reason := make(chan string, 1)
	go func() {
		reason <- c.writePump(ctx)
		cancel()
	}()
	c.readPump(ctx)
	cancel()

	status, text := ws.StatusNormalClosure, <-reason
	if text != reasonClosed {
		status = ws.StatusGoingAway
	}
	c.conn.Close(status, text)
}

// readPump decodes control requests and hands them to the hub. Anything
// that is not a JSON request is ignored. It returns when the connection
// is closed.
func (c *Client) readPump(ctx context.Context) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		if req, ok := decodeRequest(typ, data); ok {
			c.hub.dispatch(req)
		}
	}
}

func decodeRequest(typ ws.MessageType, data []byte) (Request, bool) {
	if typ != ws.MessageText {
		return Request{}, false
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil || req.Type == "" {
		return Request{}, false
	}
	return req, true
}

// writePump drains the send channel and pings on an interval. It returns
// the reason the connection should be closed with.
func (c *Client) writePump(ctx context.Context) string {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				// Hub closed the channel, connection is done
				return reasonClosed
			}
			if err := c.write(ctx, msg); err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return reasonBlocked
				}
				return reasonClosed
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, pongTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return reasonStale
				}
				return reasonClosed
			}
		case <-ctx.Done():
			return reasonClosed
		}
	}
}

func (c *Client) write(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, ws.MessageText, msg)
}
