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

// Package raft implements the core of the Raft consensus algorithm: leader
// election, log replication, commit advancement, and the PreVote extension.
//
// The package is deliberately side-effect free. A Node's handlers take the
// current state and an incoming message and return a new state plus zero or
// more outbound messages; they never perform I/O, sleep, spawn goroutines,
// or log. Driving the Node with timers, a network, and durable storage is
// the job of the host layer in internal/cluster.
package raft

// NodeRole is the role a Node currently occupies.
type NodeRole int

const (
	Follower NodeRole = iota
	Candidate
	Leader
)

func (r NodeRole) String() string {
	switch r {
	case Follower:
		return "Follower"
	case Candidate:
		return "Candidate"
	case Leader:
		return "Leader"
	default:
		return "Unknown"
	}
}

// PreVoteRequest is sent by a Follower whose election timer fired, before it
// commits to becoming a Candidate. It never causes a current_term change in
// any recipient (spec.md §4.3).
type PreVoteRequest struct {
	Term         uint64
	CandidateID  string
	LastLogIndex uint64
	LastLogTerm  uint64
}

// PreVoteResponse answers a PreVoteRequest. Term is advisory only: the
// requester must never adopt it (spec.md §4.3).
type PreVoteResponse struct {
	Term        uint64
	VoteGranted bool
	From        string
}

// VoteRequest is a real election's RequestVote RPC.
type VoteRequest struct {
	Term         uint64
	CandidateID  string
	LastLogIndex uint64
	LastLogTerm  uint64
}

// VoteResponse answers a VoteRequest.
type VoteResponse struct {
	Term        uint64
	VoteGranted bool
	From        string
	Reason      string // diagnostic only; never affects protocol behavior
}

// AppendEntries is both the heartbeat and the replication RPC.
type AppendEntries struct {
	Term         uint64
	LeaderID     string
	PrevLogIndex uint64
	PrevLogTerm  uint64
	Entries      []LogEntry
	LeaderCommit uint64
}

// AppendEntriesResponse answers an AppendEntries RPC. MatchIndexHint is the
// index of the last entry the receiver now holds from that message; the
// leader uses it to advance next_index/match_index directly instead of
// inferring it from the request it sent (spec.md §9, "match_index_hint").
type AppendEntriesResponse struct {
	Term           uint64
	Success        bool
	From           string
	MatchIndexHint uint64
	ConflictIndex  uint64 // optional backtrack hint; 0 if unused
	ConflictTerm   uint64
	Reason         string
}

// Outbound pairs a message with the peer it is addressed to. The core never
// sends anything itself; handlers return a slice of Outbound values for the
// host to deliver.
type Outbound struct {
	To      string
	Message any
}

// SideEffect is a request the host must honor before or after delivering
// Outbound messages. The core never performs these itself (spec.md §5/§9).
type SideEffect int

const (
	// ResetElectionTimer asks the host to draw a fresh randomized timeout.
	ResetElectionTimer SideEffect = iota
	// ArmHeartbeatTimer asks the host to (re)start the heartbeat ticker;
	// emitted only on becoming Leader.
	ArmHeartbeatTimer
	// CancelHeartbeatTimer asks the host to stop the heartbeat ticker;
	// emitted only on stepping down from Leader.
	CancelHeartbeatTimer
)

// Result is the uniform output of every core handler: zero or more outbound
// messages, zero or more side-effect requests, and a persistence flag.
// MustPersist flags that the handler wrote term/vote or log entries through
// Storage during this call; those writes have completed before the handler
// returns, so Outbound can be released at once. Not every such write sets
// the flag, and Host does not read it.
type Result struct {
	Outbound     []Outbound
	SideEffects  []SideEffect
	MustPersist  bool
	AppendedFrom uint64 // 0 means "no new entries were appended this call"
}
