package animation

import (
	"sync"
	"time"

	"github.com/dmorello/flowdeck/internal/canvas"
	"github.com/dmorello/flowdeck/internal/events"
)

// Watchdog reconciles the rendering surface with the installed topology.
// The underlying diagram surface is known to drop edges silently on rapid
// topology swaps; when the topology expects edges but the surface reports
// none drawn, the watchdog forces a clear/reinstall cycle. It never acts
// while a run holds the animation lock. This narrows the window of a stale
// diagram to roughly one check interval, it does not eliminate it.
type Watchdog struct {
	animator *Animator
	surface  canvas.Surface

	stopCh chan struct{}
	armCh  chan struct{}
	wg     sync.WaitGroup
}

func NewWatchdog(a *Animator, s canvas.Surface) *Watchdog {
	return &Watchdog{
		animator: a,
		surface:  s,
		stopCh:   make(chan struct{}),
		armCh:    make(chan struct{}, 1),
	}
}

// Arm schedules the early one-shot check. The animator calls this after
// every topology install.
func (w *Watchdog) Arm() {
	select {
	case w.armCh <- struct{}{}:
	default:
		// already armed
	}
}

// Start begins the background check loop.
func (w *Watchdog) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop stops the background loop and waits for it to exit.
func (w *Watchdog) Stop() {
	close(w.stopCh)
	w.wg.Wait()
}

func (w *Watchdog) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.animator.timings.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-w.armCh:
			select {
			case <-w.stopCh:
				return
			case <-time.After(w.animator.timings.WatchdogFirstCheck):
				w.Check()
			}
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check runs one consistency pass. Exported for tests; the loop calls it on
// every tick.
func (w *Watchdog) Check() {
	cfg := w.animator.Config()
	if cfg == nil || len(cfg.Edges) == 0 {
		return
	}
	if w.surface.RenderedEdgeCount() > 0 {
		return
	}

	// Never fight an active run over edge visibility. The lock is held for
	// the whole clear+reinstall cycle: a plain busy check would leave a
	// window during ReinstallDelay for a run to start and have its edges
	// yanked mid-sequence. A held lock skips the pass; the next tick retries.
	if !w.animator.tryAcquire() {
		return
	}
	defer w.animator.release()

	// The run that beat us to the lock may have repainted already.
	if w.surface.RenderedEdgeCount() > 0 {
		return
	}

	w.surface.ClearEdges()
	time.Sleep(w.animator.timings.ReinstallDelay)
	w.surface.InstallEdges(cfg.Edges)

	events.Emit("warning", "watchdog.reinstall", "surface reported no rendered edges", map[string]interface{}{
		"expected_edges": len(cfg.Edges),
	})
}
