package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Publisher is the subset of Client the exchange needs, split out so tests
// can substitute a mock broker.
type Publisher interface {
	Publish(topic string, payload []byte) error
	IsConnected() bool
}

// Request is the JSON envelope published to a farm's request topic.
type Request struct {
	ID     string `json:"id"`
	Farm   string `json:"farm,omitempty"` // empty on broadcast
	Prompt string `json:"prompt"`
}

// Reply is the JSON envelope farms publish on the exchange reply topic.
type Reply struct {
	ID   string `json:"id"`
	Farm string `json:"farm"`
	Body string `json:"body"`
}

// Exchange performs prompt round-trips with farm agents: point-to-point asks
// and group broadcasts with one reply collected per farm.
type Exchange struct {
	client   Publisher
	registry *FarmRegistry

	mu      sync.Mutex
	pending map[string]chan Reply
}

func NewExchange(client Publisher, registry *FarmRegistry) *Exchange {
	return &Exchange{
		client:   client,
		registry: registry,
		pending:  make(map[string]chan Reply),
	}
}

// SubscribeReplies attaches the exchange to the shared reply topic.
func (e *Exchange) SubscribeReplies(client *Client) error {
	return client.Subscribe(ReplyTopic, func(_ paho.Client, msg paho.Message) {
		e.HandleReply(msg.Payload())
	})
}

// HandleReply routes a reply payload to the waiting request, if any.
// Replies for unknown or already-completed requests are dropped.
func (e *Exchange) HandleReply(payload []byte) {
	var reply Reply
	if err := json.Unmarshal(payload, &reply); err != nil {
		return
	}

	e.mu.Lock()
	ch, ok := e.pending[reply.ID]
	e.mu.Unlock()
	if !ok {
		return
	}

	select {
	case ch <- reply:
	default:
		// collector already gave up or channel full
	}
}

// Ask publishes a prompt to a single farm and waits for its reply.
// An empty farmID addresses the first configured farm.
func (e *Exchange) Ask(ctx context.Context, farmID, prompt string) (Reply, error) {
	if farmID == "" {
		ids := e.registry.IDs()
		if len(ids) == 0 {
			return Reply{}, fmt.Errorf("no farms configured")
		}
		farmID = ids[0]
	}
	if !e.registry.Exists(farmID) {
		return Reply{}, fmt.Errorf("unknown farm: %s", farmID)
	}
	if !e.client.IsConnected() {
		return Reply{}, fmt.Errorf("transport not connected")
	}

	req := Request{ID: newRequestID(), Farm: farmID, Prompt: prompt}
	ch := e.register(req.ID, 1)
	defer e.unregister(req.ID)

	payload, err := json.Marshal(req)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to marshal request: %w", err)
	}
	if err := e.client.Publish(RequestTopic(farmID), payload); err != nil {
		return Reply{}, fmt.Errorf("failed to publish request: %w", err)
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

// Broadcast publishes a prompt on the broadcast topic and collects one reply
// per configured farm. On timeout it returns whatever replies arrived along
// with the context error.
func (e *Exchange) Broadcast(ctx context.Context, prompt string) (map[string]string, error) {
	if !e.client.IsConnected() {
		return nil, fmt.Errorf("transport not connected")
	}

	farms := e.registry.Count()
	if farms == 0 {
		return nil, fmt.Errorf("no farms configured")
	}

	req := Request{ID: newRequestID(), Prompt: prompt}
	ch := e.register(req.ID, farms)
	defer e.unregister(req.ID)

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	if err := e.client.Publish(BroadcastTopic, payload); err != nil {
		return nil, fmt.Errorf("failed to publish broadcast: %w", err)
	}

	replies := make(map[string]string, farms)
	for len(replies) < farms {
		select {
		case reply := <-ch:
			if e.registry.Exists(reply.Farm) {
				replies[reply.Farm] = reply.Body
			}
		case <-ctx.Done():
			return replies, ctx.Err()
		}
	}
	return replies, nil
}

func (e *Exchange) register(id string, buffer int) chan Reply {
	ch := make(chan Reply, buffer)
	e.mu.Lock()
	e.pending[id] = ch
	e.mu.Unlock()
	return ch
}

func (e *Exchange) unregister(id string) {
	e.mu.Lock()
	delete(e.pending, id)
	e.mu.Unlock()
}

func newRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "req-fallback"
	}
	return hex.EncodeToString(b)
}
