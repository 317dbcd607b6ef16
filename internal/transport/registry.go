package transport

import (
	"fmt"
	"sync"
)

// Topic layout. Every farm listens on its own request topic plus the shared
// broadcast topic; all replies come back on the exchange reply topic.
const (
	BroadcastTopic = "coffee/farms/broadcast/request"
	ReplyTopic     = "coffee/exchange/reply"
)

func RequestTopic(farmID string) string {
	return fmt.Sprintf("coffee/farms/%s/request", farmID)
}

func StatusTopic(farmID string) string {
	return fmt.Sprintf("coffee/farms/%s/status", farmID)
}

// Farm holds the configured identity of one farm agent.
type Farm struct {
	ID    string
	Label string
}

// FarmRegistry maintains the set of farms the exchange talks to.
type FarmRegistry struct {
	mu    sync.RWMutex
	farms map[string]*Farm
	order []string
}

// NewFarmRegistry creates a registry from the configured farm list.
func NewFarmRegistry(farms []Farm) *FarmRegistry {
	r := &FarmRegistry{
		farms: make(map[string]*Farm, len(farms)),
	}
	for i := range farms {
		f := farms[i]
		if _, ok := r.farms[f.ID]; ok {
			continue
		}
		r.farms[f.ID] = &f
		r.order = append(r.order, f.ID)
	}
	return r
}

// Get returns a farm by id, or nil if not configured.
func (r *FarmRegistry) Get(farmID string) *Farm {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.farms[farmID]; ok {
		cpy := *f
		return &cpy
	}
	return nil
}

// Exists returns true if the farm is configured.
func (r *FarmRegistry) Exists(farmID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.farms[farmID]
	return ok
}

// IDs returns all farm ids in configuration order.
func (r *FarmRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.order...)
}

// All returns a copy of all configured farms in configuration order.
func (r *FarmRegistry) All() []Farm {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Farm, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.farms[id])
	}
	return out
}

// Count returns the number of configured farms.
func (r *FarmRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.farms)
}
