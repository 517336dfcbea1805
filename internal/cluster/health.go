/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cluster

import (
	"math"
	"sync"
	"time"
)

// PhiAccrualDetector estimates how suspicious it is that a peer has gone
// silent, given the observed distribution of its past contact intervals,
// rather than declaring it dead after a single fixed timeout. Host uses one
// per peer purely for status reporting -- raft.Node's own election timeout
// is what actually decides a leader is gone; nothing here feeds back into
// protocol decisions.
type PhiAccrualDetector struct {
	mu         sync.RWMutex
	intervals  []float64
	lastBeat   time.Time
	minSamples int
	maxSamples int
	threshold  float64
	mean       float64
	variance   float64
}

// NewPhiAccrualDetector creates a detector that considers a peer suspicious
// once Phi() exceeds threshold, once it has recorded at least minSamples
// intervals between contacts (minSamples+1 contacts).
func NewPhiAccrualDetector(threshold float64, minSamples, maxSamples int) *PhiAccrualDetector {
	return &PhiAccrualDetector{
		intervals:  make([]float64, 0, maxSamples),
		threshold:  threshold,
		minSamples: minSamples,
		maxSamples: maxSamples,
	}
}

// Heartbeat records contact with the peer now.
func (d *PhiAccrualDetector) Heartbeat() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if !d.lastBeat.IsZero() {
		interval := now.Sub(d.lastBeat).Seconds() * 1000
		d.intervals = append(d.intervals, interval)
		if len(d.intervals) > d.maxSamples {
			d.intervals = d.intervals[1:]
		}
		d.updateStats()
	}
	d.lastBeat = now
}

func (d *PhiAccrualDetector) updateStats() {
	if len(d.intervals) == 0 {
		return
	}
	sum := 0.0
	for _, v := range d.intervals {
		sum += v
	}
	d.mean = sum / float64(len(d.intervals))

	sumSq := 0.0
	for _, v := range d.intervals {
		diff := v - d.mean
		sumSq += diff * diff
	}
	d.variance = sumSq / float64(len(d.intervals))
}

// Phi returns the current suspicion level; 0 means either healthy or not
// enough samples yet to judge.
func (d *PhiAccrualDetector) Phi() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(d.intervals) < d.minSamples {
		return 0
	}
	if d.lastBeat.IsZero() {
		return d.threshold + 1
	}
	return d.phi(time.Since(d.lastBeat).Seconds() * 1000)
}

func (d *PhiAccrualDetector) phi(timeSinceLast float64) float64 {
	stdDev := math.Sqrt(d.variance)
	if stdDev < 1 {
		stdDev = 1
	}
	y := (timeSinceLast - d.mean) / stdDev
	e := math.Exp(-y * (1.5976 + 0.070566*y*y))
	if timeSinceLast > d.mean {
		return -math.Log10(e / (1 + e))
	}
	return -math.Log10(1 - 1/(1+e))
}

// IsSuspect reports whether the peer currently looks failed.
func (d *PhiAccrualDetector) IsSuspect() bool {
	return d.Phi() > d.threshold
}

// PeerHealthTracker keeps one PhiAccrualDetector per peer ID, created
// lazily on first contact.
type PeerHealthTracker struct {
	mu         sync.Mutex
	detectors  map[string]*PhiAccrualDetector
	threshold  float64
	minSamples int
	maxSamples int
}

// NewPeerHealthTracker returns a tracker using threshold as the phi value
// above which a peer is reported suspect.
func NewPeerHealthTracker(threshold float64) *PeerHealthTracker {
	return &PeerHealthTracker{
		detectors:  make(map[string]*PhiAccrualDetector),
		threshold:  threshold,
		minSamples: 4,
		maxSamples: 200,
	}
}

// RecordContact records that peerID was just heard from, over any channel
// (an RPC request it sent, or a response to one Host sent it).
func (t *PeerHealthTracker) RecordContact(peerID string) {
	t.mu.Lock()
	d, ok := t.detectors[peerID]
	if !ok {
		d = NewPhiAccrualDetector(t.threshold, t.minSamples, t.maxSamples)
		t.detectors[peerID] = d
	}
	t.mu.Unlock()
	d.Heartbeat()
}

// Snapshot returns the current phi value for every peer Host has ever heard
// from.
func (t *PeerHealthTracker) Snapshot() map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]float64, len(t.detectors))
	for id, d := range t.detectors {
		out[id] = d.Phi()
	}
	return out
}
