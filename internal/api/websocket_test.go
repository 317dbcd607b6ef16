package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmorello/flowdeck/internal/events"
	"github.com/dmorello/flowdeck/internal/topology"
	"github.com/gorilla/websocket"
)

// waitFor polls a condition until it returns true or timeout expires.
func waitFor(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("timeout waiting for: %s", msg)
}

func dialWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	return conn
}

func TestWebSocketSendsSnapshotFirst(t *testing.T) {
	events.Clear()
	d := testDeps(t, &fakeChat{}, &stubPresence{})
	if err := d.Animator.ApplyTopology(context.Background(), topology.PatternPubSub, false); err != nil {
		t.Fatalf("apply topology: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(wsHandler))
	defer server.Close()

	conn := dialWS(t, server)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read snapshot: %v", err)
	}

	var snap snapshotFrame
	if err := json.Unmarshal(msg, &snap); err != nil {
		t.Fatalf("failed to unmarshal snapshot: %v", err)
	}
	if snap.Type != "snapshot" {
		t.Errorf("expected first frame type 'snapshot', got '%s'", snap.Type)
	}
	if snap.Pattern != "pubsub" {
		t.Errorf("expected pattern 'pubsub', got '%s'", snap.Pattern)
	}
}

func TestWebSocketReceivesLiveEvents(t *testing.T) {
	events.Clear()
	testDeps(t, &fakeChat{}, &stubPresence{})

	server := httptest.NewServer(http.HandlerFunc(wsHandler))
	defer server.Close()

	conn := dialWS(t, server)
	defer conn.Close()

	// Consume the snapshot frame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("failed to read snapshot: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		events.Emit("info", "chat.request", "", map[string]interface{}{"prompt": "yield?"})
	}()

	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read event: %v", err)
	}

	var e events.Event
	if err := json.Unmarshal(msg, &e); err != nil {
		t.Fatalf("failed to unmarshal event: %v", err)
	}
	if e.Name != "chat.request" {
		t.Errorf("expected 'chat.request', got '%s'", e.Name)
	}
}

func TestWebSocketRenderedAck(t *testing.T) {
	events.Clear()
	d := testDeps(t, &fakeChat{}, &stubPresence{})
	if err := d.Animator.ApplyTopology(context.Background(), topology.PatternPubSub, false); err != nil {
		t.Fatalf("apply topology: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(wsHandler))
	defer server.Close()

	conn := dialWS(t, server)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("failed to read snapshot: %v", err)
	}

	// With a viewer attached and no ack yet, the drawn count is zero.
	if got := d.Canvas.RenderedEdgeCount(); got != 0 {
		t.Errorf("expected rendered count 0 before ack, got %d", got)
	}

	ack := renderedAck{Type: "rendered", Edges: 2}
	if err := conn.WriteJSON(ack); err != nil {
		t.Fatalf("failed to send ack: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return d.Canvas.RenderedEdgeCount() == 2
	}, "rendered count to reflect the viewer ack")
}

func TestWebSocketDisconnectDetachesRenderer(t *testing.T) {
	events.Clear()
	d := testDeps(t, &fakeChat{}, &stubPresence{})
	if err := d.Animator.ApplyTopology(context.Background(), topology.PatternPubSub, false); err != nil {
		t.Fatalf("apply topology: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(wsHandler))
	defer server.Close()

	conn := dialWS(t, server)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("failed to read snapshot: %v", err)
	}

	// Viewer attached with no ack: installed edges are not confirmed drawn.
	if got := d.Canvas.RenderedEdgeCount(); got != 0 {
		t.Errorf("expected rendered count 0 with unacked viewer, got %d", got)
	}

	conn.Close()

	// After the viewer detaches the installed count stands in again.
	waitFor(t, 5*time.Second, func() bool {
		return d.Canvas.RenderedEdgeCount() == 2
	}, "rendered count to fall back to installed count after disconnect")
}
