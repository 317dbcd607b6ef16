package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/dmorello/flowdeck/internal/transport"
)

const heartbeatSec = 5

// yields are the canned answers a farm gives about its harvest.
var yields = []string{
	"harvest is strong this season, around %d tons",
	"yield is steady at %d tons despite the rains",
	"we expect %d tons once the late pickings are in",
	"production dipped slightly, %d tons projected",
}

func answer(farmID, prompt string) string {
	tons := 80 + rand.Intn(80)
	return fmt.Sprintf("[%s] "+yields[rand.Intn(len(yields))], farmID, tons)
}

func main() {
	farmID := flag.String("id", "", "farm identifier (brazil, colombia, vietnam, ...)")
	flag.Parse()
	if *farmID == "" {
		log.Fatal("farm id required: -id brazil")
	}

	client := transport.NewClient("flowdeck-farm-"+*farmID, transport.BrokerURL())

	handler := func(_ paho.Client, msg paho.Message) {
		var req transport.Request
		if err := json.Unmarshal(msg.Payload(), &req); err != nil {
			return
		}
		// Directed requests addressed to another farm are not ours.
		if req.Farm != "" && req.Farm != *farmID {
			return
		}
		reply := transport.Reply{
			ID:   req.ID,
			Farm: *farmID,
			Body: answer(*farmID, req.Prompt),
		}
		payload, err := json.Marshal(reply)
		if err != nil {
			return
		}
		if err := client.Publish(transport.ReplyTopic, payload); err != nil {
			log.Printf("reply publish failed: %v", err)
		}
	}

	if !client.StartWithRetry(transport.RequestTopic(*farmID), handler) {
		os.Exit(1)
	}
	defer client.Disconnect()
	if err := client.Subscribe(transport.BroadcastTopic, handler); err != nil {
		log.Fatalf("broadcast subscription failed: %v", err)
	}

	// Retained presence heartbeat. The exchange's sweep marks us offline
	// when these go quiet.
	publishStatus := func(online bool) {
		status := transport.StatusPayload{Online: online, HeartbeatSec: heartbeatSec}
		payload, _ := json.Marshal(status)
		if err := client.PublishRetained(transport.StatusTopic(*farmID), payload); err != nil {
			log.Printf("status publish failed: %v", err)
		}
	}
	publishStatus(true)

	ticker := time.NewTicker(heartbeatSec * time.Second)
	defer ticker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("farm %s online, heartbeat every %ds", *farmID, heartbeatSec)
	for {
		select {
		case <-ticker.C:
			publishStatus(true)
		case <-sig:
			publishStatus(false)
			log.Printf("farm %s shutting down", *farmID)
			return
		}
	}
}
