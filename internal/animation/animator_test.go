package animation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmorello/flowdeck/internal/topology"
)

// fakeSurface records every surface call in order so tests can assert on the
// exact toggle sequence. dropInstalls simulates the silent edge-drop failure
// of the real rendering surface.
type fakeSurface struct {
	mu           sync.Mutex
	ops          []surfaceOp
	edges        []topology.EdgeSpec
	rendered     int
	dropInstalls int
}

type surfaceOp struct {
	kind   string // "nodes", "edges", "clear", "labels", "active"
	ids    []string
	active bool
}

func (f *fakeSurface) InstallNodes(nodes []topology.NodeSpec) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, surfaceOp{kind: "nodes"})
}

func (f *fakeSurface) InstallEdges(edges []topology.EdgeSpec) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, surfaceOp{kind: "edges"})
	f.edges = edges
	if f.dropInstalls > 0 {
		f.dropInstalls--
		f.rendered = 0
		return
	}
	f.rendered = len(edges)
}

func (f *fakeSurface) ClearEdges() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, surfaceOp{kind: "clear"})
	f.edges = nil
	f.rendered = 0
}

func (f *fakeSurface) UpdateEdgeLabels(labels []topology.EdgeLabel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, surfaceOp{kind: "labels"})
}

func (f *fakeSurface) SetActive(ids []string, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, surfaceOp{kind: "active", ids: append([]string{}, ids...), active: active})
}

func (f *fakeSurface) RenderedEdgeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rendered
}

func (f *fakeSurface) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = nil
}

func (f *fakeSurface) snapshotOps() []surfaceOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]surfaceOp{}, f.ops...)
}

func (f *fakeSurface) toggles() []surfaceOp {
	var out []surfaceOp
	for _, op := range f.snapshotOps() {
		if op.kind == "active" {
			out = append(out, op)
		}
	}
	return out
}

func testTimings() Timings {
	return Timings{
		LockPoll:           time.Millisecond,
		Highlight:          2 * time.Millisecond,
		InstallSettle:      time.Millisecond,
		RenderSettle:       time.Millisecond,
		ReinstallDelay:     time.Millisecond,
		WatchdogInterval:   10 * time.Millisecond,
		WatchdogFirstCheck: 2 * time.Millisecond,
	}
}

func newTestAnimator(f *fakeSurface, connected *atomic.Bool) *Animator {
	probe := func() bool { return connected != nil && connected.Load() }
	return New(f, probe, func() string { return "MQTT" }, testTimings())
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestApplyTopologyInstallOrder(t *testing.T) {
	f := &fakeSurface{}
	a := newTestAnimator(f, nil)

	if err := a.ApplyTopology(context.Background(), topology.PatternPubSub, false); err != nil {
		t.Fatalf("ApplyTopology: %v", err)
	}

	ops := f.snapshotOps()
	if len(ops) != 3 {
		t.Fatalf("expected nodes/edges/labels, got %d ops", len(ops))
	}
	if ops[0].kind != "nodes" || ops[1].kind != "edges" || ops[2].kind != "labels" {
		t.Errorf("install order wrong: %v %v %v", ops[0].kind, ops[1].kind, ops[2].kind)
	}
	if a.Pattern() != topology.PatternPubSub {
		t.Errorf("expected pubsub pattern, got %s", a.Pattern())
	}
}

func TestPubSubRunSequenceFidelity(t *testing.T) {
	f := &fakeSurface{}
	a := newTestAnimator(f, nil)
	a.ApplyTopology(context.Background(), topology.PatternPubSub, false)
	f.reset()

	a.RequestSend()
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	cfg := a.Config()
	toggles := f.toggles()
	if len(toggles) != 2*len(cfg.Sequence) {
		t.Fatalf("expected %d toggles, got %d", 2*len(cfg.Sequence), len(toggles))
	}

	// Every step's ids lit then dimmed, in the exact sequence order, with no
	// step skipped and no overlap.
	for i, step := range cfg.Sequence {
		on := toggles[2*i]
		off := toggles[2*i+1]
		if !on.active || off.active {
			t.Fatalf("step %d: expected on/off pair, got %v/%v", i, on.active, off.active)
		}
		if !equalIDs(on.ids, step.IDs) || !equalIDs(off.ids, step.IDs) {
			t.Errorf("step %d: toggled %v, want %v", i, on.ids, step.IDs)
		}
	}

	if a.SendRequested() {
		t.Error("send flag should be cleared by the run")
	}
	if a.Busy() {
		t.Error("lock should be free after the run")
	}
}

func TestPubSubNoopWhenResponseAlreadyArrived(t *testing.T) {
	f := &fakeSurface{}
	a := newTestAnimator(f, nil)
	a.ApplyTopology(context.Background(), topology.PatternPubSub, false)
	f.reset()

	a.RequestSend()
	a.MarkResponse(true)
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(f.toggles()) != 0 {
		t.Errorf("expected no highlight toggles, got %d", len(f.toggles()))
	}
	if a.SendRequested() {
		t.Error("no-op should still clear the send flag")
	}
	if a.Busy() {
		t.Error("lock should be free after a no-op")
	}
}

func TestGroupDisconnectedNeverAnimates(t *testing.T) {
	var connected atomic.Bool
	f := &fakeSurface{}
	a := newTestAnimator(f, &connected)
	a.ApplyTopology(context.Background(), topology.PatternGroup, false)
	f.reset()

	// Regardless of the send flag, a disconnected group session must not
	// produce a single toggle.
	a.RequestSend()
	a.MarkResponse(true)
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(f.toggles()) != 0 {
		t.Errorf("expected no toggles while disconnected, got %d", len(f.toggles()))
	}
	if a.SendRequested() {
		t.Error("no-op should clear the send flag")
	}
}

func TestGroupConnectedRunUsesConnectedTopology(t *testing.T) {
	var connected atomic.Bool
	connected.Store(true)
	f := &fakeSurface{}
	a := newTestAnimator(f, &connected)
	a.ApplyTopology(context.Background(), topology.PatternGroup, true)
	f.reset()

	a.RequestSend()
	a.MarkResponse(true)
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := topology.Build(topology.PatternGroup, true)
	toggles := f.toggles()
	if len(toggles) != 2*len(want.Sequence) {
		t.Fatalf("expected %d toggles, got %d", 2*len(want.Sequence), len(toggles))
	}
	// The broadcast fan step must light every outbound edge together.
	if !equalIDs(toggles[2].ids, want.Sequence[1].IDs) {
		t.Errorf("fan step toggled %v, want %v", toggles[2].ids, want.Sequence[1].IDs)
	}

	if a.ResponseReceived() {
		t.Error("response flag should be cleared so the run cannot re-fire")
	}
	if a.SendRequested() {
		t.Error("send flag should be cleared")
	}
}

func TestGroupRunRetriesOnceWhenNoEdgesRender(t *testing.T) {
	var connected atomic.Bool
	connected.Store(true)
	f := &fakeSurface{dropInstalls: 3}
	a := newTestAnimator(f, &connected)
	a.ApplyTopology(context.Background(), topology.PatternGroup, true)
	f.reset()

	a.RequestSend()
	a.MarkResponse(true)
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	installs := 0
	for _, op := range f.snapshotOps() {
		if op.kind == "edges" {
			installs++
		}
	}
	// One install from the preamble plus exactly one forced retry, and the
	// run proceeds regardless of the surface never confirming the paint.
	if installs != 2 {
		t.Errorf("expected 2 edge installs (install + single retry), got %d", installs)
	}

	want := topology.Build(topology.PatternGroup, true)
	if len(f.toggles()) != 2*len(want.Sequence) {
		t.Errorf("run should complete despite unrendered edges: got %d toggles", len(f.toggles()))
	}
}

func TestGroupConnectivityFlipsMidWait(t *testing.T) {
	var connected atomic.Bool
	f := &fakeSurface{}
	a := newTestAnimator(f, &connected)
	a.ApplyTopology(context.Background(), topology.PatternGroup, false)
	f.reset()

	// Hold the lock so the run has to wait, then flip connectivity before
	// releasing. The run must re-evaluate and use the connected topology.
	if err := a.acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	a.MarkResponse(true)
	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	time.Sleep(3 * time.Millisecond)
	connected.Store(true)
	a.release()

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := topology.Build(topology.PatternGroup, true)
	if got := len(f.toggles()); got != 2*len(want.Sequence) {
		t.Errorf("expected the fully-connected sequence (%d toggles), got %d", 2*len(want.Sequence), got)
	}
}

func TestRunsNeverInterleave(t *testing.T) {
	f := &fakeSurface{}
	a := newTestAnimator(f, nil)
	a.ApplyTopology(context.Background(), topology.PatternPubSub, false)
	f.reset()

	var wg sync.WaitGroup
	wg.Add(2)
	a.RequestSend()
	go func() {
		defer wg.Done()
		a.Run(context.Background())
	}()
	go func() {
		defer wg.Done()
		// Second trigger arrives while the first run is (likely) active; it
		// must wait for the lock, then re-evaluate its own precondition.
		time.Sleep(time.Millisecond)
		a.RequestSend()
		a.Run(context.Background())
	}()
	wg.Wait()

	// Toggles must strictly alternate on/off with matching ids: any
	// interleaving of two runs would break the pairing.
	toggles := f.toggles()
	if len(toggles)%2 != 0 {
		t.Fatalf("odd number of toggles: %d", len(toggles))
	}
	for i := 0; i < len(toggles); i += 2 {
		on, off := toggles[i], toggles[i+1]
		if !on.active || off.active {
			t.Fatalf("toggle %d: expected on/off pair, got %v/%v", i, on.active, off.active)
		}
		if !equalIDs(on.ids, off.ids) {
			t.Fatalf("toggle %d: off ids %v do not match on ids %v", i, off.ids, on.ids)
		}
	}
}

func TestLockWaitHonorsContext(t *testing.T) {
	f := &fakeSurface{}
	a := newTestAnimator(f, nil)
	a.ApplyTopology(context.Background(), topology.PatternPubSub, false)
	f.reset()

	if err := a.acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer a.release()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	a.RequestSend()
	if err := a.Run(ctx); err == nil {
		t.Error("expected context error while lock is held")
	}
	if len(f.toggles()) != 0 {
		t.Error("a cancelled lock wait must not touch the surface")
	}
}
