package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/dmorello/flowdeck/internal/events"
	"github.com/gorilla/websocket"
)

const (
	// Number of recent events to send on connection
	recentEventsCount = 50

	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Viewers connect from arbitrary origins (local tooling, flowtui)
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// snapshotFrame is the first frame a viewer receives: the full canvas state,
// so it can draw the diagram before any live events arrive.
type snapshotFrame struct {
	Type      string         `json:"type"`
	Pattern   string         `json:"pattern"`
	Connected bool           `json:"connected"`
	Graph     interface{}    `json:"graph"`
	Active    []string       `json:"active"`
	Recent    []events.Event `json:"recent,omitempty"`
}

// renderedAck is sent by viewers after they finish drawing edges. The
// reported count feeds the render consistency check.
type renderedAck struct {
	Type  string `json:"type"`
	Edges int    `json:"edges"`
}

// wsHandler streams canvas state and live events to a diagram viewer.
// Each connected viewer counts as a renderer: it acks drawn edge counts,
// which the watchdog uses to detect a blank canvas.
func wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	if deps == nil {
		conn.Close()
		return
	}

	deps.Canvas.AttachRenderer()
	sub := events.Subscribe()

	cleanup := func() {
		events.Unsubscribe(sub)
		deps.Canvas.DetachRenderer()
		conn.Close()
	}

	// Snapshot first so the viewer can paint immediately.
	snap := snapshotFrame{
		Type:      "snapshot",
		Pattern:   string(deps.Animator.Pattern()),
		Connected: deps.Presence != nil && deps.Presence.AllOnline(),
		Graph:     deps.Canvas.Snapshot(),
		Active:    deps.Canvas.ActiveIDs(),
		Recent:    events.RecentEvents(recentEventsCount),
	}
	data, err := json.Marshal(snap)
	if err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		err = conn.WriteMessage(websocket.TextMessage, data)
	}
	if err != nil {
		log.Printf("ws write snapshot failed: %v", err)
		cleanup()
		return
	}

	// Reader goroutine - handles pongs, close messages and rendered acks
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ack renderedAck
			if err := json.Unmarshal(msg, &ack); err != nil {
				continue
			}
			if ack.Type == "rendered" {
				deps.Canvas.ReportRendered(ack.Edges)
			}
		}
	}()

	// Writer loop - sends events and pings
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			cleanup()
			return

		case e, ok := <-sub:
			if !ok {
				deps.Canvas.DetachRenderer()
				conn.Close()
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("ws write event failed: %v", err)
				cleanup()
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cleanup()
				return
			}
		}
	}
}
