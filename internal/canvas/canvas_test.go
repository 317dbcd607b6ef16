package canvas

import (
	"testing"

	"github.com/dmorello/flowdeck/internal/topology"
)

func install(c *Canvas) *topology.GraphConfig {
	cfg := topology.Build(topology.PatternPubSub, false)
	c.InstallNodes(cfg.Nodes)
	c.InstallEdges(cfg.Edges)
	return cfg
}

func TestInstallAndSnapshot(t *testing.T) {
	c := New()
	cfg := install(c)

	snap := c.Snapshot()
	if len(snap.Nodes) != len(cfg.Nodes) {
		t.Errorf("expected %d nodes, got %d", len(cfg.Nodes), len(snap.Nodes))
	}
	if len(snap.Edges) != len(cfg.Edges) {
		t.Errorf("expected %d edges, got %d", len(cfg.Edges), len(snap.Edges))
	}
	if c.ExpectedEdgeCount() != len(cfg.Edges) {
		t.Errorf("expected edge count %d, got %d", len(cfg.Edges), c.ExpectedEdgeCount())
	}
}

func TestSetActiveTogglesKnownIDs(t *testing.T) {
	c := New()
	cfg := install(c)

	ids := []string{topology.ExchangeID, cfg.Edges[0].ID}
	c.SetActive(ids, true)

	active := c.ActiveIDs()
	if len(active) != 2 {
		t.Fatalf("expected 2 active ids, got %v", active)
	}

	c.SetActive(ids, false)
	if len(c.ActiveIDs()) != 0 {
		t.Errorf("expected no active ids after dim, got %v", c.ActiveIDs())
	}
}

func TestSetActiveSkipsUnknownIDs(t *testing.T) {
	c := New()
	install(c)

	// A stale id must not corrupt anything else.
	c.SetActive([]string{"ghost", topology.FarmID}, true)

	active := c.ActiveIDs()
	if len(active) != 1 || active[0] != topology.FarmID {
		t.Errorf("expected only %s active, got %v", topology.FarmID, active)
	}
}

func TestClearEdges(t *testing.T) {
	c := New()
	install(c)

	c.ClearEdges()
	if c.ExpectedEdgeCount() != 0 {
		t.Errorf("expected no edges after clear, got %d", c.ExpectedEdgeCount())
	}
	if len(c.Snapshot().Nodes) == 0 {
		t.Error("clearing edges must not remove nodes")
	}
}

func TestUpdateEdgeLabels(t *testing.T) {
	c := New()
	cfg := install(c)

	updates := topology.RefreshEdgeLabels(cfg, "MQTT")
	c.UpdateEdgeLabels(updates)

	for _, e := range c.Snapshot().Edges {
		if e.Label != "MQTT" {
			t.Errorf("edge %s: expected label MQTT, got %q", e.ID, e.Label)
		}
		if e.Active {
			t.Errorf("label update must not touch highlight state of %s", e.ID)
		}
	}
}

func TestRenderedEdgeCountFollowsViewerAcks(t *testing.T) {
	c := New()
	cfg := install(c)

	// No viewer attached: installed count stands in for drawn count.
	if got := c.RenderedEdgeCount(); got != len(cfg.Edges) {
		t.Errorf("expected %d with no viewers, got %d", len(cfg.Edges), got)
	}

	// A viewer attaches but has not painted yet.
	c.AttachRenderer()
	if got := c.RenderedEdgeCount(); got != 0 {
		t.Errorf("expected 0 before viewer ack, got %d", got)
	}

	c.ReportRendered(len(cfg.Edges))
	if got := c.RenderedEdgeCount(); got != len(cfg.Edges) {
		t.Errorf("expected %d after ack, got %d", len(cfg.Edges), got)
	}

	// Reinstalling edges invalidates the ack.
	c.InstallEdges(cfg.Edges)
	if got := c.RenderedEdgeCount(); got != 0 {
		t.Errorf("expected 0 after reinstall, got %d", got)
	}

	c.DetachRenderer()
	if got := c.RenderedEdgeCount(); got != len(cfg.Edges) {
		t.Errorf("expected installed count after last viewer detached, got %d", got)
	}
}
