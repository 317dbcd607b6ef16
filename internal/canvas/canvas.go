// Package canvas holds the rendering-surface state for the flow diagram.
//
// The canvas is the authoritative copy of what the diagram should show;
// actual painting happens in attached viewers (browser page, flowtui) that
// follow the canvas.* event stream. Viewers acknowledge how many edges they
// actually drew, which is how silent paint failures become observable to the
// animation watchdog.
package canvas

import (
	"sync"

	"github.com/dmorello/flowdeck/internal/events"
	"github.com/dmorello/flowdeck/internal/topology"
)

// Surface is the capability the animator and watchdog need from a rendering
// surface. Kept small so both can be tested without a real renderer.
type Surface interface {
	InstallNodes(nodes []topology.NodeSpec)
	InstallEdges(edges []topology.EdgeSpec)
	ClearEdges()
	UpdateEdgeLabels(labels []topology.EdgeLabel)
	SetActive(ids []string, active bool)
	RenderedEdgeCount() int
}

// Canvas implements Surface and fans state changes out as canvas.* events.
type Canvas struct {
	mu        sync.RWMutex
	nodes     []topology.NodeSpec
	edges     []topology.EdgeSpec
	nodeIndex map[string]int
	edgeIndex map[string]int

	// renderers is the number of attached viewers; rendered is the edge
	// count the most recent viewer ack reported for the current install.
	renderers int
	rendered  int
}

func New() *Canvas {
	return &Canvas{
		nodeIndex: make(map[string]int),
		edgeIndex: make(map[string]int),
	}
}

// InstallNodes replaces the node collection wholesale.
func (c *Canvas) InstallNodes(nodes []topology.NodeSpec) {
	c.mu.Lock()
	c.nodes = append([]topology.NodeSpec{}, nodes...)
	c.nodeIndex = make(map[string]int, len(nodes))
	for i, n := range c.nodes {
		c.nodeIndex[n.ID] = i
	}
	c.mu.Unlock()

	events.Emit("info", "canvas.nodes.installed", "", map[string]interface{}{
		"nodes": nodes,
	})
}

// InstallEdges replaces the edge collection wholesale. Any previous viewer
// ack is stale after this, so the rendered count drops to zero until the
// viewers confirm the new paint.
func (c *Canvas) InstallEdges(edges []topology.EdgeSpec) {
	c.mu.Lock()
	c.edges = append([]topology.EdgeSpec{}, edges...)
	c.edgeIndex = make(map[string]int, len(edges))
	for i, e := range c.edges {
		c.edgeIndex[e.ID] = i
	}
	c.rendered = 0
	c.mu.Unlock()

	events.Emit("info", "canvas.edges.installed", "", map[string]interface{}{
		"edges": edges,
	})
}

// ClearEdges removes all edges. Used by the watchdog's forced re-render
// cycle.
func (c *Canvas) ClearEdges() {
	c.mu.Lock()
	c.edges = nil
	c.edgeIndex = make(map[string]int)
	c.rendered = 0
	c.mu.Unlock()

	events.Emit("info", "canvas.edges.cleared", "", nil)
}

// UpdateEdgeLabels applies partial label updates, leaving shape untouched.
func (c *Canvas) UpdateEdgeLabels(labels []topology.EdgeLabel) {
	if len(labels) == 0 {
		return
	}

	c.mu.Lock()
	for _, l := range labels {
		if i, ok := c.edgeIndex[l.ID]; ok {
			c.edges[i].Label = l.Label
		}
	}
	c.mu.Unlock()

	events.Emit("info", "canvas.labels.updated", "", map[string]interface{}{
		"labels": labels,
	})
}

// SetActive toggles the highlight state of the given node/edge ids.
// Unknown ids are skipped; a stale id must never corrupt the highlight state
// of unrelated elements.
func (c *Canvas) SetActive(ids []string, active bool) {
	c.mu.Lock()
	applied := make([]string, 0, len(ids))
	for _, id := range ids {
		if i, ok := c.nodeIndex[id]; ok {
			c.nodes[i].Active = active
			applied = append(applied, id)
			continue
		}
		if i, ok := c.edgeIndex[id]; ok {
			c.edges[i].Active = active
			applied = append(applied, id)
		}
	}
	c.mu.Unlock()

	if len(applied) == 0 {
		return
	}
	events.Emit("info", "canvas.highlight", "", map[string]interface{}{
		"ids":    applied,
		"active": active,
	})
}

// RenderedEdgeCount reports how many edges the rendering surface actually
// drew. With no viewer attached there is nothing to reconcile, so the
// installed count stands in for the drawn count.
func (c *Canvas) RenderedEdgeCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.renderers == 0 {
		return len(c.edges)
	}
	return c.rendered
}

// ExpectedEdgeCount returns how many edges the canvas was told to draw.
func (c *Canvas) ExpectedEdgeCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.edges)
}

// AttachRenderer registers a viewer. Called by the websocket handler.
func (c *Canvas) AttachRenderer() {
	c.mu.Lock()
	c.renderers++
	c.mu.Unlock()
}

// DetachRenderer unregisters a viewer.
func (c *Canvas) DetachRenderer() {
	c.mu.Lock()
	if c.renderers > 0 {
		c.renderers--
	}
	c.mu.Unlock()
}

// ReportRendered records a viewer's ack of how many edges it drew.
func (c *Canvas) ReportRendered(edges int) {
	c.mu.Lock()
	c.rendered = edges
	c.mu.Unlock()
}

// Snapshot returns a copy of the current diagram state, for /graph and for
// late-joining viewers.
func (c *Canvas) Snapshot() *topology.GraphConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &topology.GraphConfig{
		Nodes: append([]topology.NodeSpec{}, c.nodes...),
		Edges: append([]topology.EdgeSpec{}, c.edges...),
	}
}

// ActiveIDs returns the ids currently highlighted (for tests and debugging).
func (c *Canvas) ActiveIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var ids []string
	for _, n := range c.nodes {
		if n.Active {
			ids = append(ids, n.ID)
		}
	}
	for _, e := range c.edges {
		if e.Active {
			ids = append(ids, e.ID)
		}
	}
	return ids
}
