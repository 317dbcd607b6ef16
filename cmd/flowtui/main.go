package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"

	"github.com/dmorello/flowdeck/internal/topology"
)

const eventLogSize = 12

type theme struct {
	header     lipgloss.Style
	supervisor lipgloss.Style
	farm       lipgloss.Style
	active     lipgloss.Style
	edge       lipgloss.Style
	edgeActive lipgloss.Style
	label      lipgloss.Style
	eventLine  lipgloss.Style
	footer     lipgloss.Style
	offline    lipgloss.Style
}

func newTheme() theme {
	return theme{
		header:     lipgloss.NewStyle().Foreground(lipgloss.Color("#7dcfff")).Bold(true),
		supervisor: lipgloss.NewStyle().Foreground(lipgloss.Color("#bb9af7")).Bold(true),
		farm:       lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a")),
		active:     lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68")).Bold(true).Reverse(true),
		edge:       lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89")),
		edgeActive: lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68")).Bold(true),
		label:      lipgloss.NewStyle().Foreground(lipgloss.Color("#737aa2")).Italic(true),
		eventLine:  lipgloss.NewStyle().Foreground(lipgloss.Color("#a9b1d6")),
		footer:     lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89")),
		offline:    lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e")).Bold(true),
	}
}

// serverFrame is the union of everything the websocket delivers: the initial
// snapshot and subsequent event frames.
type serverFrame struct {
	Type      string                `json:"type"`
	Pattern   string                `json:"pattern"`
	Connected bool                  `json:"connected"`
	Graph     *topology.GraphConfig `json:"graph"`

	Event  string                 `json:"event"`
	Level  string                 `json:"level"`
	Fields map[string]interface{} `json:"fields"`
}

type frameMsg serverFrame

type disconnectMsg struct{ err error }

// wsConn pumps server frames into a channel the TUI drains one Cmd at a time.
type wsConn struct {
	conn   *websocket.Conn
	frames chan tea.Msg
}

func dial(url string) (*wsConn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	c := &wsConn{conn: conn, frames: make(chan tea.Msg, 64)}
	go c.readLoop()
	return c, nil
}

func (c *wsConn) readLoop() {
	defer close(c.frames)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.frames <- disconnectMsg{err: err}
			return
		}
		var frame serverFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		c.frames <- frameMsg(frame)
	}
}

func (c *wsConn) nextFrame() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-c.frames
		if !ok {
			return disconnectMsg{}
		}
		return msg
	}
}

// ackRendered reports how many edges this viewer is showing, so the server
// can tell a live diagram from a blank one.
func (c *wsConn) ackRendered(edges int) {
	payload, _ := json.Marshal(map[string]interface{}{
		"type":  "rendered",
		"edges": edges,
	})
	_ = c.conn.WriteMessage(websocket.TextMessage, payload)
}

type model struct {
	conn      *wsConn
	theme     theme
	pattern   string
	connected bool
	graph     *topology.GraphConfig
	events    []string
	err       error
	width     int
}

func newModel(conn *wsConn) model {
	return model{
		conn:  conn,
		theme: newTheme(),
		graph: &topology.GraphConfig{},
	}
}

func (m model) Init() tea.Cmd {
	return m.conn.nextFrame()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil

	case disconnectMsg:
		m.err = msg.err
		return m, tea.Quit

	case frameMsg:
		m.apply(serverFrame(msg))
		return m, m.conn.nextFrame()
	}
	return m, nil
}

func (m *model) apply(frame serverFrame) {
	if frame.Type == "snapshot" {
		m.pattern = frame.Pattern
		m.connected = frame.Connected
		if frame.Graph != nil {
			m.graph = frame.Graph
		}
		m.conn.ackRendered(len(m.graph.Edges))
		return
	}

	if frame.Event != "" {
		m.events = append(m.events, frame.Event)
		if len(m.events) > eventLogSize {
			m.events = m.events[len(m.events)-eventLogSize:]
		}
	}

	f := frame.Fields
	switch frame.Event {
	case "canvas.nodes.installed":
		m.graph.Nodes = decodeSlice[topology.NodeSpec](f["nodes"])
	case "canvas.edges.installed":
		m.graph.Edges = decodeSlice[topology.EdgeSpec](f["edges"])
		m.conn.ackRendered(len(m.graph.Edges))
	case "canvas.edges.cleared":
		m.graph.Edges = nil
		m.conn.ackRendered(0)
	case "canvas.labels.updated":
		for _, l := range decodeSlice[topology.EdgeLabel](f["labels"]) {
			for i := range m.graph.Edges {
				if m.graph.Edges[i].ID == l.ID {
					m.graph.Edges[i].Label = l.Label
				}
			}
		}
	case "canvas.highlight":
		active, _ := f["active"].(bool)
		ids, _ := f["ids"].([]interface{})
		for _, raw := range ids {
			id, _ := raw.(string)
			m.setActive(id, active)
		}
	case "graph.installed":
		// The snapshot-bearing canvas events carry the shape; nothing to do.
	}
}

// decodeSlice round-trips a loosely typed event field into concrete specs.
func decodeSlice[T any](raw interface{}) []T {
	if raw == nil {
		return nil
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var out []T
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil
	}
	return out
}

func (m *model) setActive(id string, active bool) {
	for i := range m.graph.Nodes {
		if m.graph.Nodes[i].ID == id {
			m.graph.Nodes[i].Active = active
		}
	}
	for i := range m.graph.Edges {
		if m.graph.Edges[i].ID == id {
			m.graph.Edges[i].Active = active
		}
	}
}

func (m model) View() string {
	var b strings.Builder

	status := m.pattern
	if m.pattern == string(topology.PatternGroup) && !m.connected {
		status += " " + m.theme.offline.Render("(waiting for farms)")
	}
	b.WriteString(m.theme.header.Render("flowdeck "+status) + "\n\n")

	for _, n := range m.graph.Nodes {
		style := m.theme.farm
		if n.Kind == topology.NodeSupervisor {
			style = m.theme.supervisor
		}
		if n.Active {
			style = m.theme.active
		}
		b.WriteString("  " + style.Render("["+n.Label+"]") + "\n")
	}

	if len(m.graph.Edges) > 0 {
		b.WriteString("\n")
		for _, e := range m.graph.Edges {
			style := m.theme.edge
			arrow := "---"
			if e.Active {
				style = m.theme.edgeActive
				arrow = "==>"
			}
			line := fmt.Sprintf("  %s %s%s %s", e.Source, arrow, arrow, e.Target)
			b.WriteString(style.Render(line))
			if e.Label != "" {
				b.WriteString("  " + m.theme.label.Render("via "+e.Label))
			}
			b.WriteString("\n")
		}
	}

	if len(m.events) > 0 {
		b.WriteString("\n")
		for _, ev := range m.events {
			b.WriteString(m.theme.eventLine.Render("  • "+ev) + "\n")
		}
	}

	b.WriteString("\n" + m.theme.footer.Render("q: quit"))
	return b.String()
}

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "flowdeck websocket URL")
	flag.Parse()

	conn, err := dial(*url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to %s: %v\n", *url, err)
		os.Exit(1)
	}
	defer conn.conn.Close()

	p := tea.NewProgram(newModel(conn), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "flowtui error: %v\n", err)
		os.Exit(1)
	}
}
