package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dmorello/flowdeck/internal/animation"
	"github.com/dmorello/flowdeck/internal/canvas"
	"github.com/dmorello/flowdeck/internal/events"
	"github.com/dmorello/flowdeck/internal/topology"
	"github.com/dmorello/flowdeck/internal/transport"
	"github.com/dmorello/flowdeck/internal/version"
)

// ChatTransport is the round-trip capability the chat endpoint needs.
type ChatTransport interface {
	Ask(ctx context.Context, farmID, prompt string) (transport.Reply, error)
	Broadcast(ctx context.Context, prompt string) (map[string]string, error)
}

// Connectivity reports whether the group session is fully joined.
type Connectivity interface {
	AllOnline() bool
}

// Deps wires the API surface to the rest of the service.
type Deps struct {
	Canvas   *canvas.Canvas
	Animator *animation.Animator
	Chat     ChatTransport
	Presence Connectivity

	// ChatTimeout bounds the transport round-trip. Zero means 30s.
	ChatTimeout time.Duration
}

var deps *Deps

// SetDeps sets the API dependencies. Must be called before ListenAndServe.
func SetDeps(d *Deps) {
	deps = d
}

func (d *Deps) chatTimeout() time.Duration {
	if d.ChatTimeout == 0 {
		return 30 * time.Second
	}
	return d.ChatTimeout
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	resp := HealthResponse{
		Status:    "ok",
		Service:   "flowdeck",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func versionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"version": version.Version})
}

// eventsHandler serves the in-memory ring buffer; ?stored=1 reads the
// persisted history from Postgres instead, when configured.
func eventsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Query().Get("stored") == "1" {
		client := events.GetPostgresClient()
		if client == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(APIResponse{OK: false, Error: "persistence not configured"})
			return
		}
		rows, err := client.QueryEvents(200)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(APIResponse{OK: false, Error: "query failed"})
			return
		}
		_ = json.NewEncoder(w).Encode(rows)
		return
	}

	_ = json.NewEncoder(w).Encode(events.Snapshot())
}

// GraphResponse is the /graph payload: the current canvas state plus the
// pattern/connectivity it was derived from.
type GraphResponse struct {
	Pattern   string                `json:"pattern"`
	Connected bool                  `json:"connected"`
	Graph     *topology.GraphConfig `json:"graph"`
}

func graphHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if deps == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	resp := GraphResponse{
		Pattern:   string(deps.Animator.Pattern()),
		Connected: deps.Presence != nil && deps.Presence.AllOnline(),
		Graph:     deps.Canvas.Snapshot(),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

type PatternRequest struct {
	Pattern string `json:"pattern"`
}

type APIResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func patternHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		_ = json.NewEncoder(w).Encode(APIResponse{OK: false, Error: "method not allowed"})
		return
	}

	var req PatternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(APIResponse{OK: false, Error: "invalid JSON"})
		return
	}
	if req.Pattern == "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(APIResponse{OK: false, Error: "pattern required"})
		return
	}

	p := topology.ParsePattern(req.Pattern)
	connected := p == topology.PatternGroup && deps.Presence != nil && deps.Presence.AllOnline()
	if err := deps.Animator.ApplyTopology(r.Context(), p, connected); err != nil {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(APIResponse{OK: false, Error: err.Error()})
		return
	}

	_ = json.NewEncoder(w).Encode(APIResponse{OK: true})
}

type ChatRequest struct {
	Prompt string `json:"prompt"`
	Farm   string `json:"farm,omitempty"` // pubsub only; defaults to the single farm
}

type ChatResponse struct {
	OK      bool              `json:"ok"`
	Reply   string            `json:"reply,omitempty"`
	Replies map[string]string `json:"replies,omitempty"` // group broadcast
	Error   string            `json:"error,omitempty"`
}

func chatHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		_ = json.NewEncoder(w).Encode(ChatResponse{OK: false, Error: "method not allowed"})
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(ChatResponse{OK: false, Error: "invalid JSON"})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(ChatResponse{OK: false, Error: "prompt required"})
		return
	}

	events.Emit("info", "chat.request", "", map[string]interface{}{
		"prompt": req.Prompt,
		"farm":   req.Farm,
	})
	storeMessage("user", "", req.Prompt)

	ctx, cancel := context.WithTimeout(r.Context(), deps.chatTimeout())
	defer cancel()

	switch deps.Animator.Pattern() {
	case topology.PatternGroup:
		resp := groupChat(ctx, req.Prompt)
		if !resp.OK {
			w.WriteHeader(http.StatusBadGateway)
		}
		_ = json.NewEncoder(w).Encode(resp)
	default:
		resp := pubsubChat(ctx, req.Farm, req.Prompt)
		if !resp.OK {
			w.WriteHeader(http.StatusBadGateway)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// pubsubChat performs the point-to-point round trip. The outbound leg is
// animated while the reply is in flight.
func pubsubChat(ctx context.Context, farmID, prompt string) ChatResponse {
	deps.Animator.MarkResponse(false)
	deps.Animator.RequestSend()
	go deps.Animator.Run(context.Background())

	reply, err := deps.Chat.Ask(ctx, farmID, prompt)
	deps.Animator.MarkResponse(true)
	if err != nil {
		return ChatResponse{OK: false, Error: err.Error()}
	}

	storeMessage("farm", reply.Farm, reply.Body)
	events.Emit("info", "chat.response", "", map[string]interface{}{
		"farm": reply.Farm,
	})
	return ChatResponse{OK: true, Reply: reply.Body}
}

// groupChat broadcasts the prompt and animates the full broadcast/response
// path once the replies are in.
func groupChat(ctx context.Context, prompt string) ChatResponse {
	deps.Animator.MarkResponse(false)
	deps.Animator.RequestSend()

	replies, err := deps.Chat.Broadcast(ctx, prompt)
	if err != nil && len(replies) == 0 {
		return ChatResponse{OK: false, Error: err.Error()}
	}

	deps.Animator.MarkResponse(true)
	go deps.Animator.Run(context.Background())

	for farm, body := range replies {
		storeMessage("farm", farm, body)
	}
	events.Emit("info", "chat.response", "", map[string]interface{}{
		"farms": len(replies),
	})
	return ChatResponse{OK: true, Replies: replies}
}

// storeMessage persists a chat message when Postgres is configured.
// Persistence failures are tolerated; chat works without a database.
func storeMessage(role, farm, body string) {
	client := events.GetPostgresClient()
	if client == nil {
		return
	}
	if err := client.AppendMessage(time.Now().UTC(), role, farm, body); err != nil {
		log.Printf("api: failed to store message: %v", err)
	}
}

func messagesHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	client := events.GetPostgresClient()
	if client == nil {
		_ = json.NewEncoder(w).Encode([]interface{}{})
		return
	}

	messages, err := client.RecentMessages(100)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(APIResponse{OK: false, Error: "query failed"})
		return
	}
	if messages == nil {
		_ = json.NewEncoder(w).Encode([]interface{}{})
		return
	}
	_ = json.NewEncoder(w).Encode(messages)
}

// ListenAndServe starts the API server on the given port.
// It blocks until the server exits.
func ListenAndServe(port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", viewerHandler)
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/version", versionHandler)
	mux.HandleFunc("/events", eventsHandler)
	mux.HandleFunc("/graph", graphHandler)
	mux.HandleFunc("/messages", messagesHandler)
	mux.HandleFunc("/pattern", RequireAdmin(patternHandler))
	mux.HandleFunc("/chat", RequireAnyRole(chatHandler))
	mux.HandleFunc("/ws", wsHandler)

	addr := fmt.Sprintf(":%d", port)
	log.Printf("API listening on %s\n", addr)
	return http.ListenAndServe(addr, mux)
}
