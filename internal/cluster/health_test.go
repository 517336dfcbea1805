/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package cluster

import "testing"

func TestPhiAccrualDetectorStaysQuietWithFewSamples(t *testing.T) {
	d := NewPhiAccrualDetector(8.0, 4, 200)
	d.Heartbeat()
	d.Heartbeat()
	if d.Phi() != 0 {
		t.Errorf("expected phi 0 below minSamples, got %v", d.Phi())
	}
}

func TestPhiAccrualDetectorSuspectsAfterGap(t *testing.T) {
	d := NewPhiAccrualDetector(1.0, 1, 200)
	d.Heartbeat()
	// Seed a tight interval distribution, then simulate a long silence by
	// rewinding lastBeat instead of sleeping in the test.
	d.mu.Lock()
	d.intervals = []float64{10, 10, 10, 10, 10}
	d.mean = 10
	d.variance = 0
	d.lastBeat = d.lastBeat.Add(-5000000000) // 5s in the past, in ns units
	d.mu.Unlock()

	if !d.IsSuspect() {
		t.Error("expected detector to flag peer as suspect after a long silence")
	}
}

func TestPeerHealthTrackerTracksPerPeer(t *testing.T) {
	tracker := NewPeerHealthTracker(8.0)
	tracker.RecordContact("n2")
	tracker.RecordContact("n3")

	snap := tracker.Snapshot()
	if _, ok := snap["n2"]; !ok {
		t.Error("expected n2 in snapshot")
	}
	if _, ok := snap["n3"]; !ok {
		t.Error("expected n3 in snapshot")
	}
	if _, ok := snap["n4"]; ok {
		t.Error("did not expect n4 in snapshot")
	}
}
