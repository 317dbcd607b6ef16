// Package animation drives the highlight animation over the flow diagram.
//
// One Animator owns the single-flight animation lock: at most one highlight
// run is ever stepping the canvas, and the watchdog's corrective reinstalls
// are suppressed while a run holds the lock. All waits are fixed-duration
// cosmetic delays; there is deliberately no lock timeout, so a run that never
// exits would wedge later triggers. Run bodies are bounded (steps times the
// highlight hold plus settle delays), which makes that a programming error
// rather than a runtime condition to recover from.
package animation

import (
	"context"
	"sync"
	"time"

	"github.com/dmorello/flowdeck/internal/canvas"
	"github.com/dmorello/flowdeck/internal/events"
	"github.com/dmorello/flowdeck/internal/topology"
)

// Timings collects every delay the animator and watchdog use. Tests shrink
// these to keep runs fast; production uses DefaultTimings.
type Timings struct {
	LockPoll           time.Duration // backoff between lock acquisition attempts
	Highlight          time.Duration // per-step highlight hold
	InstallSettle      time.Duration // pause after install before verifying edges
	RenderSettle       time.Duration // pause before the first highlight step
	ReinstallDelay     time.Duration // pause between clear and reinstall
	WatchdogInterval   time.Duration // periodic consistency check
	WatchdogFirstCheck time.Duration // early one-shot check after install
}

func DefaultTimings() Timings {
	return Timings{
		LockPoll:           100 * time.Millisecond,
		Highlight:          500 * time.Millisecond,
		InstallSettle:      100 * time.Millisecond,
		RenderSettle:       800 * time.Millisecond,
		ReinstallDelay:     100 * time.Millisecond,
		WatchdogInterval:   2 * time.Second,
		WatchdogFirstCheck: 1 * time.Second,
	}
}

// Animator translates discrete triggers (message sent, response arrived,
// pattern or connectivity change) into strictly ordered, non-overlapping
// highlight runs over the current topology.
type Animator struct {
	surface       canvas.Surface
	connected     func() bool   // group connectivity probe
	transportName func() string // display label source, may return ""
	timings       Timings

	mu        sync.Mutex
	animating bool // the single-flight lock flag
	send      bool // "send requested", set by the UI layer
	response  bool // "response received", set by the UI layer
	pattern   topology.Pattern
	config    *topology.GraphConfig

	onInstall func() // watchdog arm hook
}

// New creates an Animator over the given surface. connected reports whether
// the group session is fully joined; transportName supplies the edge display
// label once the transport is known. Either may be nil.
func New(surface canvas.Surface, connected func() bool, transportName func() string, timings Timings) *Animator {
	if connected == nil {
		connected = func() bool { return false }
	}
	if transportName == nil {
		transportName = func() string { return "" }
	}
	return &Animator{
		surface:       surface,
		connected:     connected,
		transportName: transportName,
		timings:       timings,
		pattern:       topology.PatternPubSub,
	}
}

// SetInstallHook registers a callback fired after every topology install.
// The watchdog uses it to arm its early consistency check.
func (a *Animator) SetInstallHook(fn func()) {
	a.mu.Lock()
	a.onInstall = fn
	a.mu.Unlock()
}

// RequestSend marks that the user initiated a request.
func (a *Animator) RequestSend() {
	a.mu.Lock()
	a.send = true
	a.mu.Unlock()
}

// MarkResponse records whether a reply has arrived.
func (a *Animator) MarkResponse(received bool) {
	a.mu.Lock()
	a.response = received
	a.mu.Unlock()
}

// Busy reports whether a run currently holds the animation lock.
func (a *Animator) Busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.animating
}

// Pattern returns the pattern of the currently installed topology.
func (a *Animator) Pattern() topology.Pattern {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pattern
}

// Config returns the currently installed topology.
func (a *Animator) Config() *topology.GraphConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config
}

// SendRequested reports the send flag (for tests).
func (a *Animator) SendRequested() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.send
}

// ResponseReceived reports the response flag (for tests).
func (a *Animator) ResponseReceived() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.response
}

// ApplyTopology rebuilds and installs the topology for a pattern and
// connectivity state. It waits for the animation lock first, so an install
// never interleaves with a stepping run.
func (a *Animator) ApplyTopology(ctx context.Context, p topology.Pattern, connected bool) error {
	if err := a.acquire(ctx); err != nil {
		return err
	}
	defer a.release()

	a.install(p, connected)
	return nil
}

// install builds and installs a topology. Caller must hold the animation
// lock. Nodes are replaced before edges before labels, in that order, so a
// renderer never observes edges referencing absent nodes.
func (a *Animator) install(p topology.Pattern, connected bool) *topology.GraphConfig {
	cfg := topology.Build(p, connected)

	a.surface.InstallNodes(cfg.Nodes)
	a.surface.InstallEdges(cfg.Edges)
	if labels := topology.RefreshEdgeLabels(cfg, a.transportName()); labels != nil {
		a.surface.UpdateEdgeLabels(labels)
	}

	a.mu.Lock()
	a.pattern = p
	a.config = cfg
	hook := a.onInstall
	a.mu.Unlock()

	events.Emit("info", "graph.installed", "", map[string]interface{}{
		"pattern":   string(p),
		"connected": connected,
		"nodes":     len(cfg.Nodes),
		"edges":     len(cfg.Edges),
	})

	if hook != nil {
		hook()
	}
	return cfg
}

// RefreshLabels reapplies edge display labels to the installed topology,
// used when transport metadata becomes known after initial construction.
func (a *Animator) RefreshLabels() {
	a.mu.Lock()
	cfg := a.config
	a.mu.Unlock()

	labels := topology.RefreshEdgeLabels(cfg, a.transportName())
	if labels == nil {
		return
	}
	a.surface.UpdateEdgeLabels(labels)
	events.Emit("info", "graph.labels.updated", "", map[string]interface{}{
		"labels": len(labels),
	})
}

// Run executes one highlight run if the pattern's precondition holds,
// otherwise clears the send flag and returns without animating. It blocks
// (polling) until the lock frees; ctx aborts only the wait, never a run in
// progress. The precondition is re-evaluated from scratch after the lock is
// acquired, since state may have changed while waiting.
func (a *Animator) Run(ctx context.Context) error {
	if err := a.acquire(ctx); err != nil {
		return err
	}
	defer a.release()

	a.mu.Lock()
	pattern := a.pattern
	send := a.send
	response := a.response
	a.mu.Unlock()

	var cfg *topology.GraphConfig

	switch pattern {
	case topology.PatternGroup:
		if !response || !a.connected() {
			a.noop(pattern, "group session not ready")
			return nil
		}
		a.mu.Lock()
		a.send = false
		a.response = false
		a.mu.Unlock()

		// The connected topology may not be on the surface yet (the reply
		// can race the join notification), so install it, give the surface
		// a moment to paint, verify at least one edge made it, retry once
		// if none did, then let the paint settle before stepping.
		cfg = a.install(topology.PatternGroup, true)
		time.Sleep(a.timings.InstallSettle)
		if a.surface.RenderedEdgeCount() == 0 {
			events.Emit("warning", "run.retry", "no edges rendered, forcing redraw", nil)
			a.surface.InstallEdges(cfg.Edges)
		}
		// Proceed even if edges still did not render: highlighting is
		// cosmetic and must never block the conversation.
		time.Sleep(a.timings.RenderSettle)

	default:
		if !send || response {
			a.noop(pattern, "no outbound request pending")
			return nil
		}
		a.mu.Lock()
		a.send = false
		cfg = a.config
		a.mu.Unlock()
		if cfg == nil {
			cfg = a.install(pattern, false)
		}
	}

	events.Emit("info", "run.started", "", map[string]interface{}{
		"pattern": string(pattern),
		"steps":   len(cfg.Sequence),
	})

	for i, step := range cfg.Sequence {
		a.surface.SetActive(step.IDs, true)
		events.Emit("info", "run.step", "", map[string]interface{}{
			"index": i,
			"ids":   step.IDs,
		})
		time.Sleep(a.timings.Highlight)
		a.surface.SetActive(step.IDs, false)
	}

	events.Emit("info", "run.completed", "", map[string]interface{}{
		"pattern": string(pattern),
	})
	return nil
}

// noop clears the send flag without animating and records the skip.
func (a *Animator) noop(p topology.Pattern, reason string) {
	a.mu.Lock()
	a.send = false
	a.mu.Unlock()
	events.Emit("info", "run.skipped", reason, map[string]interface{}{
		"pattern": string(p),
	})
}

// acquire takes the animation lock, polling with a fixed backoff while
// another run holds it.
func (a *Animator) acquire(ctx context.Context) error {
	for {
		a.mu.Lock()
		if !a.animating {
			a.animating = true
			a.mu.Unlock()
			return nil
		}
		a.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.timings.LockPoll):
		}
	}
}

// tryAcquire takes the animation lock only if it is free. The watchdog uses
// it so a forced redraw and a highlight run can never overlap.
func (a *Animator) tryAcquire() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.animating {
		return false
	}
	a.animating = true
	return true
}

func (a *Animator) release() {
	a.mu.Lock()
	a.animating = false
	a.mu.Unlock()
}
