package transport

import (
	"testing"
	"time"
)

func TestAllOnlineRequiresEveryFarm(t *testing.T) {
	r := NewFarmRegistry(testFarms())
	p := NewPresence(r, 2.0)

	if p.AllOnline() {
		t.Error("no statuses seen yet, should not be all online")
	}

	p.HandleStatus("brazil", StatusPayload{Online: true, HeartbeatSec: 5})
	p.HandleStatus("colombia", StatusPayload{Online: true, HeartbeatSec: 5})
	if p.AllOnline() {
		t.Error("vietnam has not reported, should not be all online")
	}

	p.HandleStatus("vietnam", StatusPayload{Online: true, HeartbeatSec: 5})
	if !p.AllOnline() {
		t.Error("every farm reported online, expected all online")
	}

	p.HandleStatus("colombia", StatusPayload{Online: false, HeartbeatSec: 5})
	if p.AllOnline() {
		t.Error("colombia went offline, should not be all online")
	}
}

func TestUnknownFarmStatusIgnored(t *testing.T) {
	r := NewFarmRegistry(testFarms())
	p := NewPresence(r, 2.0)

	p.HandleStatus("kenya", StatusPayload{Online: true, HeartbeatSec: 5})
	if p.Online("kenya") {
		t.Error("unconfigured farm should not be tracked")
	}
}

func TestSweepMarksQuietFarmsOffline(t *testing.T) {
	r := NewFarmRegistry(testFarms())
	p := NewPresence(r, 2.0)

	p.HandleStatus("brazil", StatusPayload{Online: true, HeartbeatSec: 5})
	if !p.Online("brazil") {
		t.Fatal("expected brazil online")
	}

	// Backdate the last-seen timestamp past the tolerance window.
	p.mu.Lock()
	p.states["brazil"].lastSeen = time.Now().Add(-time.Minute)
	p.mu.Unlock()

	p.sweep()

	if p.Online("brazil") {
		t.Error("expected brazil offline after heartbeat timeout")
	}
}

func TestSweepIgnoresZeroHeartbeat(t *testing.T) {
	r := NewFarmRegistry(testFarms())
	p := NewPresence(r, 2.0)

	// A status with no heartbeat interval never expires by sweep.
	p.HandleStatus("brazil", StatusPayload{Online: true, HeartbeatSec: 0})
	p.mu.Lock()
	p.states["brazil"].lastSeen = time.Now().Add(-time.Hour)
	p.mu.Unlock()

	p.sweep()

	if !p.Online("brazil") {
		t.Error("farm without heartbeat interval should not be swept offline")
	}
}

func TestToleranceDefaultsWhenTooSmall(t *testing.T) {
	r := NewFarmRegistry(testFarms())
	p := NewPresence(r, 0.5)
	if p.tolerance != 2.0 {
		t.Errorf("expected default tolerance 2.0, got %v", p.tolerance)
	}
}
