package topology

import "fmt"

// Well-known node ids.
const (
	ExchangeID = "exchange"
	FarmID     = "farm"
)

// GroupFarms lists the farms participating in the group session, in display
// order.
var GroupFarms = []struct {
	ID    string
	Label string
}{
	{"brazil", "Brazil Farm"},
	{"colombia", "Colombia Farm"},
	{"vietnam", "Vietnam Farm"},
}

// Build derives the topology for a pattern and connectivity state. Pure and
// deterministic: identical arguments always yield structurally equal configs.
// Unknown patterns fall back to the point-to-point topology rather than
// erroring. The connected flag is only meaningful under PatternGroup.
func Build(p Pattern, connected bool) *GraphConfig {
	switch p {
	case PatternGroup:
		return buildGroup(connected)
	default:
		return buildPubSub()
	}
}

func buildPubSub() *GraphConfig {
	cfg := &GraphConfig{
		Nodes: []NodeSpec{
			{ID: ExchangeID, Kind: NodeSupervisor, Label: "Exchange Supervisor", Position: Position{X: 0.5, Y: 0.2}},
			{ID: FarmID, Kind: NodeFarm, Label: "Coffee Farm", Position: Position{X: 0.5, Y: 0.8}},
		},
		Edges: []EdgeSpec{
			{ID: edgeID(ExchangeID, FarmID), Source: ExchangeID, Target: FarmID, Kind: EdgeRequest},
			{ID: edgeID(FarmID, ExchangeID), Source: FarmID, Target: ExchangeID, Kind: EdgeResponse},
		},
	}
	cfg.Sequence = []Step{
		{IDs: []string{ExchangeID}},
		{IDs: []string{edgeID(ExchangeID, FarmID)}},
		{IDs: []string{FarmID}},
		{IDs: []string{edgeID(FarmID, ExchangeID)}},
		{IDs: []string{ExchangeID}},
	}
	return cfg
}

func buildGroup(connected bool) *GraphConfig {
	cfg := &GraphConfig{
		Nodes: []NodeSpec{
			{ID: ExchangeID, Kind: NodeSupervisor, Label: "Exchange Supervisor", Position: Position{X: 0.5, Y: 0.15}},
		},
	}

	n := len(GroupFarms)
	for i, farm := range GroupFarms {
		// Farms spread evenly along the bottom of the canvas.
		x := (float64(i) + 0.5) / float64(n)
		cfg.Nodes = append(cfg.Nodes, NodeSpec{
			ID:       farm.ID,
			Kind:     NodeFarm,
			Label:    farm.Label,
			Position: Position{X: x, Y: 0.8},
		})
	}

	if !connected {
		// Session not yet joined: no cross-group edges, nothing to animate.
		return cfg
	}

	var outbound, farms, inbound []string
	for _, farm := range GroupFarms {
		out := edgeID(ExchangeID, farm.ID)
		in := edgeID(farm.ID, ExchangeID)
		cfg.Edges = append(cfg.Edges,
			EdgeSpec{ID: out, Source: ExchangeID, Target: farm.ID, Kind: EdgeBroadcast},
			EdgeSpec{ID: in, Source: farm.ID, Target: ExchangeID, Kind: EdgeReply},
		)
		outbound = append(outbound, out)
		farms = append(farms, farm.ID)
		inbound = append(inbound, in)
	}

	cfg.Sequence = []Step{
		{IDs: []string{ExchangeID}},
		{IDs: outbound},
		{IDs: farms},
		{IDs: inbound},
		{IDs: []string{ExchangeID}},
	}
	return cfg
}

func edgeID(source, target string) string {
	return source + "->" + target
}

// RefreshEdgeLabels recomputes display labels for every edge in cfg once the
// active transport's name is known. Topology shape and the animation sequence
// are untouched; the returned updates are applied by the rendering surface.
func RefreshEdgeLabels(cfg *GraphConfig, transportName string) []EdgeLabel {
	if cfg == nil || transportName == "" {
		return nil
	}
	updates := make([]EdgeLabel, 0, len(cfg.Edges))
	for _, e := range cfg.Edges {
		updates = append(updates, EdgeLabel{ID: e.ID, Label: transportName})
	}
	return updates
}

// Validate checks that every sequence step references an existing node or
// edge id. A violation is a programming error in the builder, caught here at
// construction/test time.
func Validate(cfg *GraphConfig) error {
	known := make(map[string]bool, len(cfg.Nodes)+len(cfg.Edges))
	for _, n := range cfg.Nodes {
		if known[n.ID] {
			return fmt.Errorf("duplicate node id: %s", n.ID)
		}
		known[n.ID] = true
	}
	for _, e := range cfg.Edges {
		if known[e.ID] {
			return fmt.Errorf("duplicate edge id: %s", e.ID)
		}
		known[e.ID] = true
	}
	for i, step := range cfg.Sequence {
		for _, id := range step.IDs {
			if !known[id] {
				return fmt.Errorf("sequence step %d references unknown id: %s", i, id)
			}
		}
	}
	return nil
}
