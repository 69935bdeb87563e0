package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/coder/websocket"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub) *Client {
	return &Client{
		hub:  hub,
		conn: nil,
		send: make(chan []byte, sendBufferSize),
	}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return got
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
	return Message{}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub)
	c2 := mockClient(hub)
	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)
	// Should not panic
	hub.Unregister(c2)
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcast(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub)
	c2 := mockClient(hub)
	hub.Register(c1)
	hub.Register(c2)

	hub.Broadcast(NewMessage(EntityNotification, "toggled", "n1", map[string]any{"event_id": "e1"}))

	for _, c := range []*Client{c1, c2} {
		got := receive(t, c)
		if got.Type != "notification_toggled" {
			t.Errorf("type = %q, want %q", got.Type, "notification_toggled")
		}
		if got.ID != "n1" {
			t.Errorf("id = %q, want %q", got.ID, "n1")
		}
		if got.Extra["event_id"] != "e1" {
			t.Errorf("extra = %v", got.Extra)
		}
	}
}

func TestRetainedMessagesReplayOnRegister(t *testing.T) {
	hub := NewHub(slog.Default())

	hub.Broadcast(EventsRefreshed(map[string]any{"events": float64(3)}))
	hub.Broadcast(EventsRefreshed(map[string]any{"events": float64(5)}))
	hub.Broadcast(NewMessage(EntityEvent, "deleted", "e1", nil))

	c := mockClient(hub)
	hub.Register(c)

	got := receive(t, c)
	if got.Type != "events_refreshed" || got.Extra["events"] != float64(5) {
		t.Errorf("replayed = %+v, want latest events_refreshed", got)
	}
	select {
	case data := <-c.send:
		t.Errorf("unexpected extra replay: %s", data)
	default:
	}
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub)
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(NewMessage("test", "fill", "", nil))
	}

	// This should drop the message, not panic or block
	hub.Broadcast(NewMessage("test", "dropped", "", nil))

	count := 0
	for {
		select {
		case <-c.send:
			count++
		default:
			goto done
		}
	}
done:
	if count != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, count)
	}
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage(EntitySettings, "updated", "", nil)
	if msg.Type != "settings_updated" {
		t.Errorf("type = %q, want settings_updated", msg.Type)
	}
	if msg.Entity != EntitySettings || msg.Action != "updated" {
		t.Errorf("msg = %+v", msg)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub)
			hub.Register(c)
			hub.Broadcast(EventsRefreshed(nil))
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}()
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name string
		typ  ws.MessageType
		data string
		want string
		ok   bool
	}{
		{"sync", ws.MessageText, `{"type":"sync"}`, RequestSync, true},
		{"binary", ws.MessageBinary, `{"type":"sync"}`, "", false},
		{"not json", ws.MessageText, `hello`, "", false},
		{"no type", ws.MessageText, `{}`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, ok := decodeRequest(tt.typ, []byte(tt.data))
			if ok != tt.ok || req.Type != tt.want {
				t.Errorf("decodeRequest = (%q, %v), want (%q, %v)", req.Type, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestDispatchWithoutHandler(t *testing.T) {
	hub := NewHub(slog.Default())
	// Should not panic
	hub.dispatch(Request{Type: RequestSync})
}

func TestClientForwardsRequests(t *testing.T) {
	hub := NewHub(slog.Default())
	got := make(chan Request, 1)
	hub.OnRequest(func(req Request) { got <- req })

	ts := httptest.NewServer(HandleWebSocket(hub, slog.Default(), nil))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"sync"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case req := <-got:
		if req.Type != RequestSync {
			t.Errorf("request type = %q, want %q", req.Type, RequestSync)
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for request")
	}
}
