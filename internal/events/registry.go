package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// graph
	"graph.installed":      {},
	"graph.labels.updated": {},

	// animation runs
	"run.started":   {},
	"run.step":      {},
	"run.completed": {},
	"run.skipped":   {},
	"run.retry":     {},

	// canvas
	"canvas.nodes.installed": {},
	"canvas.edges.installed": {},
	"canvas.edges.cleared":   {},
	"canvas.labels.updated":  {},
	"canvas.highlight":       {},

	// watchdog
	"watchdog.reinstall": {},

	// chat
	"chat.request":  {},
	"chat.response": {},

	// farm presence
	"farm.online":  {},
	"farm.offline": {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
