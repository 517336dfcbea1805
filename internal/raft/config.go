/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package raft

import "time"

// RaftConfig holds the timing parameters spec.md §3 recognizes. The host
// draws a fresh random election timeout uniformly from
// [ElectionTimeoutMin, ElectionTimeoutMax] after every election-timer reset;
// the core never draws randomness itself.
type RaftConfig struct {
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
	HeartbeatInterval  time.Duration
	// EnablePreVote gates spec.md §4.3. Disabling it makes start_election
	// fire directly on election timeout, matching a plain Raft core.
	EnablePreVote bool
}

// DefaultRaftConfig returns the defaults named in spec.md §3.
func DefaultRaftConfig() RaftConfig {
	return RaftConfig{
		ElectionTimeoutMin: 150 * time.Millisecond,
		ElectionTimeoutMax: 300 * time.Millisecond,
		HeartbeatInterval:  50 * time.Millisecond,
		EnablePreVote:      true,
	}
}

// electionTimeoutTicks is how many HandleTick() calls make up one minimum
// election timeout window, used to judge whether a PreVote requester's
// recipient has "heard from a valid leader within the last election
// timeout" (spec.md §4.3, condition (c)). A tick corresponds to one
// HeartbeatInterval, the cadence the host drives HandleTick() at.
func (c RaftConfig) electionTimeoutTicks() uint64 {
	if c.HeartbeatInterval <= 0 {
		return 1
	}
	n := uint64(c.ElectionTimeoutMin / c.HeartbeatInterval)
	if n == 0 {
		n = 1
	}
	return n
}
