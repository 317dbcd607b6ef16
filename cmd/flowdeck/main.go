package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dmorello/flowdeck/internal/animation"
	"github.com/dmorello/flowdeck/internal/api"
	"github.com/dmorello/flowdeck/internal/canvas"
	"github.com/dmorello/flowdeck/internal/config"
	"github.com/dmorello/flowdeck/internal/events"
	"github.com/dmorello/flowdeck/internal/storage/postgres"
	"github.com/dmorello/flowdeck/internal/topology"
	"github.com/dmorello/flowdeck/internal/transport"
	"github.com/dmorello/flowdeck/internal/version"
)

type LogLine struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func logEvent(level, event, msg string, fields map[string]interface{}) {
	line := LogLine{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Event:     event,
		Message:   msg,
		Fields:    fields,
	}
	b, _ := json.Marshal(line)
	fmt.Println(string(b))
}

// timingsFromConfig applies yaml overrides on top of the defaults. A zero
// value keeps the default, so a minimal config animates normally.
func timingsFromConfig(cfg *config.ExchangeConfig) animation.Timings {
	t := animation.DefaultTimings()
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	if cfg.Animation.HighlightMs > 0 {
		t.Highlight = ms(cfg.Animation.HighlightMs)
	}
	if cfg.Animation.InstallSettleMs > 0 {
		t.InstallSettle = ms(cfg.Animation.InstallSettleMs)
	}
	if cfg.Animation.RenderSettleMs > 0 {
		t.RenderSettle = ms(cfg.Animation.RenderSettleMs)
	}
	if cfg.Animation.WatchdogIntervalMs > 0 {
		t.WatchdogInterval = ms(cfg.Animation.WatchdogIntervalMs)
	}
	return t
}

func main() {
	configPath := flag.String("config", "exchange.yaml", "path to exchange config")
	flag.Parse()

	hostname, _ := os.Hostname()
	logEvent("info", "system.startup", "flowdeck starting", map[string]interface{}{
		"service":  "flowdeck",
		"version":  version.Version,
		"hostname": hostname,
		"pid":      os.Getpid(),
	})

	cfg, err := config.LoadExchangeConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load %s: %v", *configPath, err)
	}

	// Postgres is optional: chat history and event persistence are lost
	// without it, but the diagram still runs.
	if pg, err := postgres.New(cfg.Exchange.ID); err != nil {
		log.Printf("postgres unavailable, persistence disabled: %v", err)
	} else {
		events.SetPostgresClient(pg)
		defer pg.Close()
	}

	// Farm roster: config wins, group defaults otherwise.
	var farms []transport.Farm
	for _, f := range cfg.Farms {
		farms = append(farms, transport.Farm{ID: f.ID, Label: f.Label})
	}
	if len(farms) == 0 {
		for _, f := range topology.GroupFarms {
			farms = append(farms, transport.Farm{ID: f.ID, Label: f.Label})
		}
	}
	registry := transport.NewFarmRegistry(farms)

	brokerURL := cfg.Transport.BrokerURL
	if brokerURL == "" {
		brokerURL = transport.BrokerURL()
	}
	client := transport.NewClient("flowdeck-exchange", brokerURL)
	exchange := transport.NewExchange(client, registry)
	presence := transport.NewPresence(registry, 2.0)

	if err := client.Connect(); err != nil {
		log.Printf("mqtt connect failed, transport degraded: %v", err)
	} else {
		if err := exchange.SubscribeReplies(client); err != nil {
			log.Printf("reply subscription failed: %v", err)
		}
		if err := presence.Subscribe(client); err != nil {
			log.Printf("presence subscription failed: %v", err)
		}
	}
	presence.Start(time.Second)
	defer presence.Stop()
	defer client.Disconnect()

	surface := canvas.New()

	// Edge labels name the transport, which only exists as a fact once the
	// broker connection is up. Until then RefreshEdgeLabels is a no-op.
	transportLabel := func() string {
		if !client.IsConnected() {
			return ""
		}
		return cfg.TransportName()
	}

	animator := animation.New(
		surface,
		presence.AllOnline,
		transportLabel,
		timingsFromConfig(cfg),
	)

	watchdog := animation.NewWatchdog(animator, surface)
	animator.SetInstallHook(watchdog.Arm)
	watchdog.Start()
	defer watchdog.Stop()

	pattern := topology.ParsePattern(cfg.Exchange.Pattern)
	connected := pattern == topology.PatternGroup && presence.AllOnline()
	if err := animator.ApplyTopology(context.Background(), pattern, connected); err != nil {
		log.Fatalf("initial topology install failed: %v", err)
	}

	stop := make(chan struct{})
	defer close(stop)

	// Reinstall the group topology whenever connectivity flips.
	go watchConnectivity(animator, presence, stop)

	// Paho reconnects in the background; pick up edge labels once it does.
	go watchTransport(animator, client, stop)

	api.InitAuth()
	if api.IsAuthEnabled() {
		logEvent("info", "system.startup", "authentication enabled", nil)
	}
	api.SetDeps(&api.Deps{
		Canvas:   surface,
		Animator: animator,
		Chat:     exchange,
		Presence: presence,
	})

	if err := api.ListenAndServe(cfg.UIPort()); err != nil {
		log.Fatalf("api server failed: %v", err)
	}
}

// watchTransport refreshes edge labels when the broker connection comes up,
// since the transport name is unknown (and labels absent) until then.
func watchTransport(a *animation.Animator, c *transport.Client, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	last := c.IsConnected()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			now := c.IsConnected()
			if now && !last {
				a.RefreshLabels()
			}
			last = now
		}
	}
}

// watchConnectivity polls the group session state and reapplies the topology
// on transitions, so the diagram gains its edges when the last farm joins and
// drops them when one leaves.
func watchConnectivity(a *animation.Animator, p *transport.Presence, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	last := p.AllOnline()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if a.Pattern() != topology.PatternGroup {
				continue
			}
			now := p.AllOnline()
			if now == last {
				continue
			}
			last = now
			if err := a.ApplyTopology(context.Background(), topology.PatternGroup, now); err != nil {
				log.Printf("topology reinstall failed: %v", err)
			}
		}
	}
}
