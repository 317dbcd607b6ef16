package transport

import (
	"encoding/json"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/dmorello/flowdeck/internal/events"
)

// StatusPayload is the retained presence message each farm publishes.
type StatusPayload struct {
	Online       bool `json:"online"`
	HeartbeatSec int  `json:"heartbeat_sec"`
}

// farmState tracks one farm's observed presence.
type farmState struct {
	lastSeen     time.Time
	heartbeatSec int
	online       bool
}

// Presence tracks farm liveness from retained status messages and answers
// the group-connectivity question: are all configured farms reachable?
type Presence struct {
	mu        sync.RWMutex
	registry  *FarmRegistry
	states    map[string]*farmState
	tolerance float64 // multiplier on heartbeat interval before offline

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPresence creates a presence tracker. tolerance is the multiplier on a
// farm's heartbeat interval before it is considered offline.
func NewPresence(registry *FarmRegistry, tolerance float64) *Presence {
	if tolerance <= 1.0 {
		tolerance = 2.0 // default: miss one heartbeat
	}
	return &Presence{
		registry:  registry,
		states:    make(map[string]*farmState),
		tolerance: tolerance,
		stopCh:    make(chan struct{}),
	}
}

// Subscribe attaches the presence tracker to every configured farm's status
// topic.
func (p *Presence) Subscribe(client *Client) error {
	for _, id := range p.registry.IDs() {
		farmID := id
		if err := client.Subscribe(StatusTopic(farmID), p.handler(farmID)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Presence) handler(farmID string) paho.MessageHandler {
	return func(client paho.Client, msg paho.Message) {
		var status StatusPayload
		if err := json.Unmarshal(msg.Payload(), &status); err != nil {
			return
		}
		p.HandleStatus(farmID, status)
	}
}

// HandleStatus records a farm status message.
func (p *Presence) HandleStatus(farmID string, status StatusPayload) {
	if !p.registry.Exists(farmID) {
		return
	}

	p.mu.Lock()
	state, known := p.states[farmID]
	wasOnline := known && state.online
	if !known {
		state = &farmState{}
		p.states[farmID] = state
	}
	state.lastSeen = time.Now()
	state.heartbeatSec = status.HeartbeatSec
	state.online = status.Online
	nowOnline := state.online
	p.mu.Unlock()

	if nowOnline && !wasOnline {
		events.Emit("info", "farm.online", "", map[string]interface{}{
			"farm": farmID,
		})
	} else if !nowOnline && wasOnline {
		events.Emit("warning", "farm.offline", "farm reported offline", map[string]interface{}{
			"farm": farmID,
		})
	}
}

// AllOnline reports whether every configured farm is currently online.
// This is the group pattern's connectivity flag.
func (p *Presence) AllOnline() bool {
	ids := p.registry.IDs()

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, id := range ids {
		state, ok := p.states[id]
		if !ok || !state.online {
			return false
		}
	}
	return len(ids) > 0
}

// Online reports whether a single farm is online.
func (p *Presence) Online(farmID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	state, ok := p.states[farmID]
	return ok && state.online
}

// Start begins the background heartbeat sweep.
func (p *Presence) Start(checkInterval time.Duration) {
	p.wg.Add(1)
	go p.sweepLoop(checkInterval)
}

// Stop stops the background sweep.
func (p *Presence) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Presence) sweepLoop(interval time.Duration) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

// sweep marks farms offline when their heartbeat goes quiet.
func (p *Presence) sweep() {
	var expired []string

	p.mu.Lock()
	now := time.Now()
	for id, state := range p.states {
		if !state.online || state.heartbeatSec <= 0 {
			continue
		}
		timeout := time.Duration(float64(state.heartbeatSec)*p.tolerance) * time.Second
		if now.Sub(state.lastSeen) > timeout {
			state.online = false
			expired = append(expired, id)
		}
	}
	p.mu.Unlock()

	for _, id := range expired {
		events.Emit("warning", "farm.offline", "heartbeat timeout", map[string]interface{}{
			"farm": id,
		})
	}
}
