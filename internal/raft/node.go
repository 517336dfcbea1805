/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package raft

import (
	"raftcore/internal/errors"
)

// Node is the deterministic core of a single Raft replica: persistent state
// (current_term, voted_for, log), volatile state (role, commit_index,
// last_applied), and the leader/candidate-only volatile state, together with
// every handler spec.md §4 names. It performs no I/O, sleeps, spawns no
// goroutines, and never logs -- every durable write happens synchronously
// through the injected Storage, and every network effect comes back out as
// an Outbound value in a Result for the host to deliver.
type Node struct {
	id    string
	peers []string // all voting members, including id
	cfg   RaftConfig
	store Storage

	// Persistent state (spec.md §3), mirrored into store on every change.
	currentTerm uint64
	votedFor    string
	log         *Log

	// Volatile state on all servers.
	role        NodeRole
	commitIndex uint64
	lastApplied uint64

	// Volatile state on leaders, reinitialized after every election.
	nextIndex  map[string]uint64
	matchIndex map[string]uint64

	// Volatile state on candidates.
	votesReceived map[string]bool

	// PreVote is folded into Follower via this flag rather than a fourth
	// NodeRole (spec.md §8 REDESIGN FLAG, spec.md §4.3/§9: "either is
	// acceptable").
	inPreVote         bool
	preVotesReceived  map[string]bool
	preVoteTerm       uint64 // the term a successful PreVote round would start

	// ticksSinceContact and electionTimeoutTicks implement spec.md §4.3
	// condition (c) -- "has not heard from a valid leader within the last
	// election timeout" -- without the core tracking wall-clock time. The
	// host drives HandleTick() once per HeartbeatInterval; ticksSinceContact
	// resets to 0 on every accepted AppendEntries from a current or newer
	// term leader.
	ticksSinceContact uint64
}

// NewNode constructs a Node and restores its persistent state from store.
// peers must include id. The Node starts as a Follower.
func NewNode(id string, peers []string, cfg RaftConfig, store Storage) (*Node, error) {
	n := &Node{
		id:    id,
		peers: peers,
		cfg:   cfg,
		store: store,
		log:   NewLog(),
		role:  Follower,
	}

	term, votedFor, err := store.LoadTermAndVote()
	if err != nil {
		return nil, errors.StorageReadFailed(err.Error())
	}
	n.currentTerm = term
	n.votedFor = votedFor

	entries, err := store.LoadLog()
	if err != nil {
		return nil, errors.StorageReadFailed(err.Error())
	}
	n.log.replace(entries)

	return n, nil
}

// Role reports the node's current role.
func (n *Node) Role() NodeRole { return n.role }

// CurrentTerm reports the node's current term.
func (n *Node) CurrentTerm() uint64 { return n.currentTerm }

// CommitIndex reports the highest log index known to be committed.
func (n *Node) CommitIndex() uint64 { return n.commitIndex }

// LastLogIndex reports the index of the last entry in the log.
func (n *Node) LastLogIndex() uint64 { return n.log.LastIndex() }

// AllEntries returns every entry currently held in the in-memory log, in
// index order. It exists for host-side status reporting (cluster status
// dumps, debug endpoints) and must never be used to drive protocol
// decisions -- those go through Storage, not this snapshot.
func (n *Node) AllEntries() []LogEntry { return n.log.all() }

// quorum is the minimum number of votes (including the node's own) needed
// to win an election or advance commit_index, over the full peer set.
func (n *Node) quorum() int {
	return len(n.peers)/2 + 1
}

// persistTermAndVote durably saves (current_term, voted_for). Every handler
// that changes either value must call this before returning any Outbound
// conditioned on that change (spec.md §5, §6).
func (n *Node) persistTermAndVote() error {
	if err := n.store.SaveTermAndVote(n.currentTerm, n.votedFor); err != nil {
		return errors.StorageWriteFailed(err.Error())
	}
	return nil
}

// persistEntries durably appends entries before a leader counts them toward
// replication, or before a follower acknowledges them as applied to its log
// (spec.md §5, §6).
func (n *Node) persistEntries(entries []LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := n.store.AppendEntries(entries); err != nil {
		return errors.StorageWriteFailed(err.Error())
	}
	return nil
}

// persistTruncation is the durable half of a follower's log truncation
// during conflict resolution.
func (n *Node) persistTruncation(from uint64) error {
	if err := n.store.TruncateLogFrom(from); err != nil {
		return errors.StorageWriteFailed(err.Error())
	}
	return nil
}

// --- role transitions -------------------------------------------------

// becomeFollower resets all candidate/leader volatile state and adopts term
// as current_term if it is higher, clearing voted_for in that case. Called
// whenever a message reveals a higher term, or when a Candidate/PreCandidate
// observes a legitimate current-term leader.
func (n *Node) becomeFollower(term uint64) {
	n.role = Follower
	if term > n.currentTerm {
		n.currentTerm = term
		n.votedFor = ""
	}
	n.inPreVote = false
	n.preVotesReceived = nil
	n.votesReceived = nil
	n.nextIndex = nil
	n.matchIndex = nil
}

// becomeCandidate enters a real election: increments current_term, votes for
// itself, and resets the vote tally.
func (n *Node) becomeCandidate() {
	n.role = Candidate
	n.inPreVote = false
	n.currentTerm++
	n.votedFor = n.id
	n.votesReceived = map[string]bool{n.id: true}
}

// becomeLeader reinitializes leader volatile state for the new term. It
// appends nothing to the log: a leader's commit index only ever advances
// over entries replicated from its own term, and advanceCommitIndex already
// enforces that (spec.md §8, Figure 8).
func (n *Node) becomeLeader() {
	n.role = Leader
	n.inPreVote = false
	n.votesReceived = nil
	n.preVotesReceived = nil

	n.nextIndex = make(map[string]uint64, len(n.peers))
	n.matchIndex = make(map[string]uint64, len(n.peers))
	for _, p := range n.peers {
		n.nextIndex[p] = n.log.LastIndex() + 1
		n.matchIndex[p] = 0
	}
	n.matchIndex[n.id] = n.log.LastIndex()
}

// --- local events -------------------------------------------------------

// HandleElectionTimeout fires when the host's election timer elapses on a
// Follower or Candidate. If PreVote is enabled, it starts a new PreVote round
// instead of incrementing current_term (spec.md §4.3); a round still open
// when the timer fires again is replaced by a fresh one, so only a PreVote
// quorum leads to a real election. With PreVote disabled it starts a real
// election directly.
func (n *Node) HandleElectionTimeout() (Result, error) {
	if n.role == Leader {
		return Result{}, nil
	}

	if n.cfg.EnablePreVote {
		return n.startPreVote(), nil
	}
	return n.startElection()
}

// startPreVote broadcasts PreVoteRequest at the term the node WOULD adopt if
// it won, without mutating current_term or voted_for (spec.md §4.3).
func (n *Node) startPreVote() Result {
	n.inPreVote = true
	n.preVoteTerm = n.currentTerm + 1
	n.preVotesReceived = map[string]bool{n.id: true}

	out := make([]Outbound, 0, len(n.peers)-1)
	for _, p := range n.peers {
		if p == n.id {
			continue
		}
		out = append(out, Outbound{To: p, Message: PreVoteRequest{
			Term:         n.preVoteTerm,
			CandidateID:  n.id,
			LastLogIndex: n.log.LastIndex(),
			LastLogTerm:  n.log.LastTerm(),
		}})
	}

	return Result{
		Outbound:    out,
		SideEffects: []SideEffect{ResetElectionTimer},
	}
}

// startElection enters the Candidate role and requests votes for the new
// term. current_term/voted_for must be durable before any VoteRequest is
// released, since a crash recovery must never cast a second vote for a term
// it already voted in (spec.md §5, §6).
func (n *Node) startElection() (Result, error) {
	n.becomeCandidate()
	if err := n.persistTermAndVote(); err != nil {
		return Result{}, err
	}

	if len(n.peers) == 1 {
		// Single-node cluster: the node's own vote is already a quorum.
		n.becomeLeader()
		return Result{SideEffects: []SideEffect{ArmHeartbeatTimer}}, nil
	}

	out := make([]Outbound, 0, len(n.peers)-1)
	for _, p := range n.peers {
		if p == n.id {
			continue
		}
		out = append(out, Outbound{To: p, Message: VoteRequest{
			Term:         n.currentTerm,
			CandidateID:  n.id,
			LastLogIndex: n.log.LastIndex(),
			LastLogTerm:  n.log.LastTerm(),
		}})
	}

	return Result{
		Outbound:    out,
		SideEffects: []SideEffect{ResetElectionTimer},
		MustPersist: true,
	}, nil
}

// HandleTick is a periodic local event driven by the host roughly every
// HeartbeatInterval (spec.md §2 already names "heartbeat tick" as a local
// event type). On a Leader it broadcasts AppendEntries to every peer; on any
// role it advances the contact clock used by PreVote condition (c).
func (n *Node) HandleTick() Result {
	n.ticksSinceContact++

	if n.role != Leader {
		return Result{}
	}

	out := make([]Outbound, 0, len(n.peers)-1)
	for _, p := range n.peers {
		if p == n.id {
			continue
		}
		out = append(out, Outbound{To: p, Message: n.buildAppendEntries(p)})
	}
	return Result{Outbound: out}
}

// buildAppendEntries constructs the AppendEntries a Leader sends to peer,
// derived from that peer's next_index.
func (n *Node) buildAppendEntries(peer string) AppendEntries {
	next := n.nextIndex[peer]
	if next == 0 {
		next = 1
	}
	prevIndex := next - 1
	prevTerm := n.log.TermAt(prevIndex)
	return AppendEntries{
		Term:         n.currentTerm,
		LeaderID:     n.id,
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		Entries:      n.log.EntriesFrom(next),
		LeaderCommit: n.commitIndex,
	}
}

// --- client operations ----------------------------------------------------

// Propose appends command as a new entry to the Leader's log and broadcasts
// it to every peer. It fails with a RoleMisuse error on a non-Leader, per
// spec.md §4's "only a Leader accepts client proposals".
func (n *Node) Propose(command []byte) (Result, error) {
	if n.role != Leader {
		return Result{}, errors.NotLeader(n.role.String())
	}

	entry := LogEntry{
		Term:    n.currentTerm,
		Index:   n.log.LastIndex() + 1,
		Command: command,
	}
	if !n.log.Append(entry) {
		return Result{}, errors.AppendOutOfOrder(n.log.LastIndex()+1, entry.Index)
	}
	if err := n.persistEntries([]LogEntry{entry}); err != nil {
		return Result{}, err
	}
	n.matchIndex[n.id] = entry.Index

	out := make([]Outbound, 0, len(n.peers)-1)
	for _, p := range n.peers {
		if p == n.id {
			continue
		}
		out = append(out, Outbound{To: p, Message: n.buildAppendEntries(p)})
	}

	if len(n.peers) == 1 {
		n.advanceCommitIndex()
	}

	return Result{
		Outbound:     out,
		MustPersist:  true,
		AppendedFrom: entry.Index,
	}, nil
}

// DrainApplicable returns every committed-but-not-yet-applied entry, in
// order, skipping no-op entries, and advances last_applied past them.
func (n *Node) DrainApplicable() []LogEntry {
	if n.commitIndex <= n.lastApplied {
		return nil
	}
	var out []LogEntry
	for idx := n.lastApplied + 1; idx <= n.commitIndex; idx++ {
		entry, ok := n.log.Get(idx)
		if !ok {
			break
		}
		n.lastApplied = idx
		if entry.Noop {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// --- PreVote RPC ------------------------------------------------------

// HandlePreVoteRequest answers a PreVoteRequest. Granting never mutates
// current_term, voted_for, or the election timer (spec.md §4.3): a PreVote
// round is purely advisory.
func (n *Node) HandlePreVoteRequest(req PreVoteRequest) PreVoteResponse {
	granted := req.Term >= n.currentTerm &&
		n.logUpToDate(req.LastLogIndex, req.LastLogTerm) &&
		n.ticksSinceContact >= n.cfg.electionTimeoutTicks()

	// A grant echoes the requested term so the requester can match it to its
	// current PreVote round; a refusal reports the responder's own term.
	term := n.currentTerm
	if granted {
		term = req.Term
	}

	return PreVoteResponse{
		Term:        term,
		VoteGranted: granted,
		From:        n.id,
	}
}

// logUpToDate implements spec.md §4.5's up-to-date comparison: higher term
// wins outright; equal term compares index.
func (n *Node) logUpToDate(candidateLastIndex, candidateLastTerm uint64) bool {
	myTerm := n.log.LastTerm()
	if candidateLastTerm != myTerm {
		return candidateLastTerm > myTerm
	}
	return candidateLastIndex >= n.log.LastIndex()
}

// HandlePreVoteResponse tallies a PreVote grant. On reaching quorum it
// proceeds to a real election (startElection), which is the only place
// current_term actually advances.
func (n *Node) HandlePreVoteResponse(resp PreVoteResponse) (Result, error) {
	if !n.inPreVote || resp.Term != n.preVoteTerm || n.role == Leader {
		return Result{}, nil
	}
	if !resp.VoteGranted {
		return Result{}, nil
	}

	n.preVotesReceived[resp.From] = true
	if len(n.preVotesReceived) < n.quorum() {
		return Result{}, nil
	}

	n.inPreVote = false
	return n.startElection()
}

// --- RequestVote RPC ----------------------------------------------------

// HandleVoteRequest answers a real VoteRequest (spec.md §4.5).
func (n *Node) HandleVoteRequest(req VoteRequest) (VoteResponse, Result, error) {
	if req.Term > n.currentTerm {
		n.becomeFollower(req.Term)
		if err := n.persistTermAndVote(); err != nil {
			return VoteResponse{}, Result{}, err
		}
	}

	if req.Term < n.currentTerm {
		return VoteResponse{
			Term:   n.currentTerm,
			From:   n.id,
			Reason: "stale term",
		}, Result{}, nil
	}

	canVote := n.votedFor == "" || n.votedFor == req.CandidateID
	if !canVote || !n.logUpToDate(req.LastLogIndex, req.LastLogTerm) {
		reason := "already voted"
		if canVote {
			reason = "candidate log is not up to date"
		}
		return VoteResponse{
			Term:   n.currentTerm,
			From:   n.id,
			Reason: reason,
		}, Result{}, nil
	}

	n.votedFor = req.CandidateID
	if err := n.persistTermAndVote(); err != nil {
		return VoteResponse{}, Result{}, err
	}

	return VoteResponse{
			Term:        n.currentTerm,
			VoteGranted: true,
			From:        n.id,
		}, Result{
			SideEffects: []SideEffect{ResetElectionTimer},
			MustPersist: true,
		}, nil
}

// HandleVoteResponse tallies a vote grant toward the Candidate's quorum. On
// reaching quorum it transitions to Leader.
func (n *Node) HandleVoteResponse(resp VoteResponse) (Result, error) {
	if resp.Term > n.currentTerm {
		n.becomeFollower(resp.Term)
		if err := n.persistTermAndVote(); err != nil {
			return Result{}, err
		}
		return Result{MustPersist: true}, nil
	}

	if n.role != Candidate || resp.Term != n.currentTerm || !resp.VoteGranted {
		return Result{}, nil
	}

	n.votesReceived[resp.From] = true
	if len(n.votesReceived) < n.quorum() {
		return Result{}, nil
	}

	n.becomeLeader()

	out := make([]Outbound, 0, len(n.peers)-1)
	for _, p := range n.peers {
		if p == n.id {
			continue
		}
		out = append(out, Outbound{To: p, Message: n.buildAppendEntries(p)})
	}

	return Result{
		Outbound:    out,
		SideEffects: []SideEffect{ArmHeartbeatTimer},
	}, nil
}

// --- AppendEntries RPC ---------------------------------------------------

// HandleAppendEntries answers an AppendEntries RPC -- both heartbeats and
// replication carry the same shape (spec.md §4.6).
func (n *Node) HandleAppendEntries(req AppendEntries) (AppendEntriesResponse, Result, error) {
	if req.Term < n.currentTerm {
		return AppendEntriesResponse{
			Term:    n.currentTerm,
			Success: false,
			From:    n.id,
			Reason:  "stale term",
		}, Result{}, nil
	}

	becameFollower := req.Term > n.currentTerm
	if becameFollower || n.role == Candidate || (n.role == Follower && n.inPreVote) {
		n.becomeFollower(req.Term)
	}
	if becameFollower {
		if err := n.persistTermAndVote(); err != nil {
			return AppendEntriesResponse{}, Result{}, err
		}
	}

	// A valid current-or-newer-term leader contact resets the PreVote
	// contact clock regardless of whether the merge below succeeds.
	n.ticksSinceContact = 0

	if !n.log.Merge(req.PrevLogIndex, req.PrevLogTerm, req.Entries) {
		cTerm, cIndex := n.log.conflictHint(req.PrevLogIndex)
		return AppendEntriesResponse{
				Term:          n.currentTerm,
				Success:       false,
				From:          n.id,
				ConflictTerm:  cTerm,
				ConflictIndex: cIndex,
				Reason:        "log mismatch at prevLogIndex",
			}, Result{
				SideEffects: []SideEffect{ResetElectionTimer},
				MustPersist: becameFollower,
			}, nil
	}

	if len(req.Entries) > 0 {
		// The in-memory merge may have truncated a conflicting suffix;
		// mirror that in the durable log before persisting the new tail,
		// so a crash mid-write can never leave a stale entry on disk past
		// what the in-memory log now believes is true (spec.md §6).
		if err := n.persistTruncation(req.Entries[0].Index); err != nil {
			return AppendEntriesResponse{}, Result{}, err
		}
		if err := n.persistEntries(req.Entries); err != nil {
			return AppendEntriesResponse{}, Result{}, err
		}
	}

	if req.LeaderCommit > n.commitIndex {
		newCommit := req.LeaderCommit
		if n.log.LastIndex() < newCommit {
			newCommit = n.log.LastIndex()
		}
		n.commitIndex = newCommit
	}

	return AppendEntriesResponse{
			Term:           n.currentTerm,
			Success:        true,
			From:           n.id,
			MatchIndexHint: req.PrevLogIndex + uint64(len(req.Entries)),
		}, Result{
			SideEffects: []SideEffect{ResetElectionTimer},
			MustPersist: becameFollower || len(req.Entries) > 0,
		}, nil
}

// HandleAppendEntriesResponse processes a follower's reply, advances
// next_index/match_index, and re-evaluates commit_index.
func (n *Node) HandleAppendEntriesResponse(resp AppendEntriesResponse) (Result, error) {
	if resp.Term > n.currentTerm {
		n.becomeFollower(resp.Term)
		if err := n.persistTermAndVote(); err != nil {
			return Result{}, err
		}
		return Result{SideEffects: []SideEffect{CancelHeartbeatTimer}, MustPersist: true}, nil
	}

	if n.role != Leader || resp.Term != n.currentTerm {
		return Result{}, nil
	}

	if !resp.Success {
		next := n.nextIndex[resp.From]
		if resp.ConflictIndex > 0 {
			next = resp.ConflictIndex
		} else if next > 1 {
			next--
		}
		if next < 1 {
			next = 1
		}
		n.nextIndex[resp.From] = next

		return Result{
			Outbound: []Outbound{{To: resp.From, Message: n.buildAppendEntries(resp.From)}},
		}, nil
	}

	if resp.MatchIndexHint > n.matchIndex[resp.From] {
		n.matchIndex[resp.From] = resp.MatchIndexHint
	}
	n.nextIndex[resp.From] = n.matchIndex[resp.From] + 1

	n.advanceCommitIndex()

	var out []Outbound
	if n.log.LastIndex() >= n.nextIndex[resp.From] {
		out = append(out, Outbound{To: resp.From, Message: n.buildAppendEntries(resp.From)})
	}

	return Result{Outbound: out}, nil
}

// advanceCommitIndex implements spec.md §4.7: a Leader advances commit_index
// to the highest index replicated on a quorum of match_index values, but
// only for entries from the Leader's own current term (the Figure-8
// restriction) -- a previous-term entry is committed only as a side effect
// of committing a later entry that covers it.
func (n *Node) advanceCommitIndex() {
	if n.role != Leader {
		return
	}

	for idx := n.log.LastIndex(); idx > n.commitIndex; idx-- {
		entry, ok := n.log.Get(idx)
		if !ok || entry.Term != n.currentTerm {
			continue
		}

		count := 0
		for _, p := range n.peers {
			if p == n.id || n.matchIndex[p] >= idx {
				count++
			}
		}
		if count >= n.quorum() {
			n.commitIndex = idx
			return
		}
	}
}
