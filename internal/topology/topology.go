package topology

// Pattern selects which communication topology applies.
type Pattern string

const (
	// PatternPubSub is the point-to-point pattern: the exchange talks to a
	// single farm over a request/response channel.
	PatternPubSub Pattern = "pubsub"
	// PatternGroup is the broadcast pattern: the exchange fans a prompt out
	// to every farm and completion requires all of them to be reachable.
	PatternGroup Pattern = "group"
)

// ParsePattern maps a config/API string to a Pattern.
// Unknown values fall back to PatternPubSub.
func ParsePattern(s string) Pattern {
	switch Pattern(s) {
	case PatternPubSub, PatternGroup:
		return Pattern(s)
	default:
		return PatternPubSub
	}
}

// NodeKind classifies a node for rendering.
type NodeKind string

const (
	NodeSupervisor NodeKind = "supervisor"
	NodeFarm       NodeKind = "farm"
)

// EdgeKind classifies an edge for rendering.
type EdgeKind string

const (
	EdgeRequest   EdgeKind = "request"
	EdgeResponse  EdgeKind = "response"
	EdgeBroadcast EdgeKind = "broadcast"
	EdgeReply     EdgeKind = "reply"
)

// Position is a normalized [0,1] canvas coordinate. Layout is fixed per
// pattern; renderers scale to their own viewport.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeSpec describes one agent node. Active is the only field mutated after
// construction, and only by the animator.
type NodeSpec struct {
	ID       string   `json:"id"`
	Kind     NodeKind `json:"kind"`
	Label    string   `json:"label"`
	Active   bool     `json:"active"`
	Position Position `json:"position"`
}

// EdgeSpec describes one communication channel between two nodes.
// Same mutation rule as NodeSpec.
type EdgeSpec struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Kind   EdgeKind `json:"kind"`
	Label  string   `json:"label,omitempty"`
	Active bool     `json:"active"`
}

// Step is one atomic highlight group: every referenced node/edge id is lit
// together, held, then dimmed together.
type Step struct {
	IDs []string `json:"ids"`
}

// EdgeLabel is a partial update recomputing an edge's display label without
// touching topology shape.
type EdgeLabel struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// GraphConfig is a complete topology: nodes, edges, and the ordered highlight
// sequence depicting one request/response cycle. Built fresh for every
// (pattern, connected) pair and never mutated in place except for the Active
// flags.
type GraphConfig struct {
	Nodes    []NodeSpec `json:"nodes"`
	Edges    []EdgeSpec `json:"edges"`
	Sequence []Step     `json:"sequence"`
}
