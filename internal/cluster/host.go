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

/*
Package cluster hosts a single internal/raft.Node: it owns the election
timer and heartbeat ticker, drives outbound RPCs through internal/transport,
answers inbound RPCs as a transport.Handler, and records decisions through
internal/audit.

internal/raft.Node is intentionally not safe for concurrent use -- every
handler assumes exclusive access to the node's state. Host serializes all
access behind a single goroutine (run) that processes a command channel:
both the transport.Server's per-connection goroutines and Host's own
RPC-response goroutines submit closures to that channel and block for a
result, rather than touching the Node directly. This is the channel-actor
shape a from-scratch consensus host needs, in contrast to the coarser
"lock the whole struct" approach a simpler design might reach for.
*/
package cluster

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"raftcore/internal/audit"
	"raftcore/internal/logging"
	"raftcore/internal/raft"
	"raftcore/internal/transport"
)

// Host drives one raft.Node: timers, RPC fan-out/fan-in, and the audit
// trail. It implements transport.Handler so a transport.Server can deliver
// inbound RPCs directly to it.
type Host struct {
	id  string
	cfg raft.RaftConfig

	node *raft.Node

	peersMu sync.RWMutex
	peers   map[string]string // nodeID -> address, excludes id

	server *transport.Server
	client *transport.Client
	logger *logging.Logger
	audit  *audit.Manager // nil disables the audit trail
	health *PeerHealthTracker

	onCommit func(raft.LogEntry)

	cmdCh  chan func()
	stopCh chan struct{}
	wg     sync.WaitGroup

	electionTimer *time.Timer
	ticker        *time.Ticker
	rng           *rand.Rand
}

// NewHost constructs a Host and the raft.Node it drives, restoring
// persistent state from store. addr is the local RPC listen address; peers
// maps every other member's node ID to its RPC address.
func NewHost(id, addr string, peers map[string]string, cfg raft.RaftConfig, store raft.Storage, auditMgr *audit.Manager) (*Host, error) {
	members := make([]string, 0, len(peers)+1)
	members = append(members, id)
	for peerID := range peers {
		members = append(members, peerID)
	}

	node, err := raft.NewNode(id, members, cfg, store)
	if err != nil {
		return nil, fmt.Errorf("construct raft node: %w", err)
	}

	peerCopy := make(map[string]string, len(peers))
	for k, v := range peers {
		peerCopy[k] = v
	}

	h := &Host{
		id:     id,
		cfg:    cfg,
		node:   node,
		peers:  peerCopy,
		client: transport.NewClient(),
		logger: logging.NewLogger("cluster-host"),
		audit:  auditMgr,
		health: NewPeerHealthTracker(8.0),
		cmdCh:  make(chan func()),
		stopCh: make(chan struct{}),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	h.server = transport.NewServer(addr, h)
	return h, nil
}

// SetApplyCallback registers the function invoked, in log order, for every
// entry that becomes committed and applicable. Must be called before Start.
func (h *Host) SetApplyCallback(fn func(raft.LogEntry)) {
	h.onCommit = fn
}

// Start binds the RPC listener and begins the host's event loop.
func (h *Host) Start() error {
	if err := h.server.Start(); err != nil {
		return err
	}
	h.electionTimer = time.NewTimer(h.randomElectionTimeout())
	h.ticker = time.NewTicker(h.cfg.HeartbeatInterval)

	h.wg.Add(1)
	go h.run()
	return nil
}

// Stop halts the event loop, waits for in-flight RPC goroutines, and closes
// the RPC listener.
func (h *Host) Stop() error {
	close(h.stopCh)
	if h.electionTimer != nil {
		h.electionTimer.Stop()
	}
	if h.ticker != nil {
		h.ticker.Stop()
	}
	h.wg.Wait()
	return h.server.Stop()
}

// Addr returns the host's bound RPC address, valid after Start.
func (h *Host) Addr() string {
	return h.server.Addr()
}

// AddPeer registers (or updates) the RPC address of a cluster peer. It does
// not change raft.Node's voting membership, which is fixed at construction
// -- this only affects where Host dials for a peer the node already knows
// by ID.
func (h *Host) AddPeer(nodeID, addr string) {
	h.peersMu.Lock()
	defer h.peersMu.Unlock()
	h.peers[nodeID] = addr
}

// RemovePeer forgets a peer's RPC address.
func (h *Host) RemovePeer(nodeID string) {
	h.peersMu.Lock()
	defer h.peersMu.Unlock()
	delete(h.peers, nodeID)
}

func (h *Host) peerAddr(nodeID string) (string, bool) {
	h.peersMu.RLock()
	defer h.peersMu.RUnlock()
	addr, ok := h.peers[nodeID]
	return addr, ok
}

// Propose submits command to the node. It blocks until the node has
// accepted (or rejected) it, but not until it is committed -- callers
// observing commit should use SetApplyCallback.
func (h *Host) Propose(command []byte) (uint64, error) {
	type outcome struct {
		index uint64
		err   error
	}
	ch := make(chan outcome, 1)
	h.submit(func() {
		prevRole, prevTerm := h.node.Role(), h.node.CurrentTerm()
		result, err := h.node.Propose(command)
		h.handleResult(result, err)
		h.observeTransition(prevRole, prevTerm)
		idx := uint64(0)
		if err == nil {
			idx = result.AppendedFrom
		}
		ch <- outcome{idx, err}
	})
	select {
	case o := <-ch:
		return o.index, o.err
	case <-h.stopCh:
		return 0, fmt.Errorf("host stopped")
	}
}

// Status returns a point-in-time snapshot of the node's visible state, safe
// to serialize for a CLI or status endpoint.
func (h *Host) Status() map[string]any {
	ch := make(chan map[string]any, 1)
	h.submit(func() {
		h.peersMu.RLock()
		peerCount := len(h.peers)
		h.peersMu.RUnlock()
		ch <- map[string]any{
			"node_id":        h.id,
			"role":           h.node.Role().String(),
			"term":           h.node.CurrentTerm(),
			"commit_index":   h.node.CommitIndex(),
			"last_log_index": h.node.LastLogIndex(),
			"log_entries":    len(h.node.AllEntries()),
			"peer_count":     peerCount,
			"peer_health":    h.health.Snapshot(),
		}
	})
	select {
	case m := <-ch:
		return m
	case <-h.stopCh:
		return nil
	}
}

// --- transport.Handler -----------------------------------------------

// HandlePreVoteRequest implements transport.Handler.
func (h *Host) HandlePreVoteRequest(req *raft.PreVoteRequest) *raft.PreVoteResponse {
	ch := make(chan raft.PreVoteResponse, 1)
	h.submit(func() {
		h.health.RecordContact(req.CandidateID)
		resp := h.node.HandlePreVoteRequest(*req)
		if resp.VoteGranted {
			h.auditEvent(audit.EventTypePreVoteGranted, req.CandidateID)
		} else {
			h.auditEvent(audit.EventTypePreVoteRejected, req.CandidateID)
		}
		ch <- resp
	})
	select {
	case resp := <-ch:
		return &resp
	case <-h.stopCh:
		return &raft.PreVoteResponse{}
	}
}

// HandleVoteRequest implements transport.Handler.
func (h *Host) HandleVoteRequest(req *raft.VoteRequest) *raft.VoteResponse {
	ch := make(chan raft.VoteResponse, 1)
	h.submit(func() {
		h.health.RecordContact(req.CandidateID)
		prevRole, prevTerm := h.node.Role(), h.node.CurrentTerm()
		resp, result, err := h.node.HandleVoteRequest(*req)
		h.handleResult(result, err)
		h.observeTransition(prevRole, prevTerm)
		if resp.VoteGranted {
			h.auditEvent(audit.EventTypeVoteGranted, req.CandidateID)
		} else {
			h.auditEvent(audit.EventTypeVoteDenied, req.CandidateID+": "+resp.Reason)
		}
		ch <- resp
	})
	select {
	case resp := <-ch:
		return &resp
	case <-h.stopCh:
		return &raft.VoteResponse{}
	}
}

// HandleAppendEntries implements transport.Handler.
func (h *Host) HandleAppendEntries(req *raft.AppendEntries) *raft.AppendEntriesResponse {
	ch := make(chan raft.AppendEntriesResponse, 1)
	h.submit(func() {
		h.health.RecordContact(req.LeaderID)
		prevRole, prevTerm := h.node.Role(), h.node.CurrentTerm()
		prevCommit := h.node.CommitIndex()
		resp, result, err := h.node.HandleAppendEntries(*req)
		h.handleResult(result, err)
		h.observeTransition(prevRole, prevTerm)
		if !resp.Success {
			h.auditEvent(audit.EventTypeAppendRejected, fmt.Sprintf("from=%s reason=%s", req.LeaderID, resp.Reason))
		}
		if h.node.CommitIndex() != prevCommit {
			h.auditEvent(audit.EventTypeCommitAdvance, fmt.Sprintf("%d -> %d", prevCommit, h.node.CommitIndex()))
		}
		ch <- resp
	})
	select {
	case resp := <-ch:
		return &resp
	case <-h.stopCh:
		return &raft.AppendEntriesResponse{}
	}
}

// --- event loop ---------------------------------------------------------

func (h *Host) run() {
	defer h.wg.Done()

	for {
		select {
		case <-h.stopCh:
			return

		case cmd := <-h.cmdCh:
			cmd()

		case <-h.electionTimer.C:
			prevRole, prevTerm := h.node.Role(), h.node.CurrentTerm()
			if prevRole != raft.Leader {
				h.auditEvent(audit.EventTypeElectionStart, "")
			}
			result, err := h.node.HandleElectionTimeout()
			h.handleResult(result, err)
			h.observeTransition(prevRole, prevTerm)

		case <-h.ticker.C:
			result := h.node.HandleTick()
			h.handleResult(result, nil)
		}
	}
}

// submit hands fn to the run loop and returns once it has been enqueued; it
// never blocks past Stop() being called.
func (h *Host) submit(fn func()) {
	select {
	case h.cmdCh <- fn:
	case <-h.stopCh:
	}
}

// handleResult honors the side effects and dispatches the outbound
// messages a raft.Result carries. It is only ever called from within the
// run loop, so it may freely read node state.
func (h *Host) handleResult(result raft.Result, err error) {
	if err != nil {
		h.logger.Error("raft handler returned an error", "error", err.Error())
		return
	}

	for _, se := range result.SideEffects {
		switch se {
		case raft.ResetElectionTimer:
			h.resetElectionTimer()
		case raft.ArmHeartbeatTimer:
			h.logger.Debug("heartbeat timer armed", "node_id", h.id, "term", fmt.Sprint(h.node.CurrentTerm()))
		case raft.CancelHeartbeatTimer:
			h.logger.Debug("heartbeat timer canceled", "node_id", h.id)
		}
	}

	for _, out := range result.Outbound {
		h.dispatch(out)
	}

	h.drainApplied()
}

func (h *Host) resetElectionTimer() {
	if !h.electionTimer.Stop() {
		select {
		case <-h.electionTimer.C:
		default:
		}
	}
	h.electionTimer.Reset(h.randomElectionTimeout())
}

func (h *Host) randomElectionTimeout() time.Duration {
	lo, hi := h.cfg.ElectionTimeoutMin, h.cfg.ElectionTimeoutMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(h.rng.Int63n(int64(hi-lo)))
}

// observeTransition compares the node's role/term against the values
// captured before a handler ran and emits the matching audit events. It is
// the host-side replacement for the callback hooks a mutex-based
// implementation would fire directly from inside the lock.
func (h *Host) observeTransition(prevRole raft.NodeRole, prevTerm uint64) {
	newRole := h.node.Role()
	newTerm := h.node.CurrentTerm()

	if newTerm != prevTerm {
		h.auditEvent(audit.EventTypeTermChange, fmt.Sprintf("%d -> %d", prevTerm, newTerm))
	}
	if newRole == prevRole {
		return
	}
	h.auditEvent(audit.EventTypeRoleTransition, fmt.Sprintf("%s -> %s", prevRole, newRole))
	switch {
	case newRole == raft.Leader:
		h.auditEvent(audit.EventTypeElectionWon, "")
	case prevRole == raft.Candidate && newRole == raft.Follower:
		h.auditEvent(audit.EventTypeElectionLost, "")
	}
}

func (h *Host) auditEvent(t audit.EventType, detail string) {
	if h.audit == nil {
		return
	}
	h.audit.LogEvent(audit.Event{
		EventType: t,
		NodeID:    h.id,
		Term:      h.node.CurrentTerm(),
		Role:      h.node.Role().String(),
		Detail:    detail,
		Status:    audit.StatusSuccess,
	})
}

// drainApplied hands every newly committed, non-noop entry to onCommit in
// order.
func (h *Host) drainApplied() {
	if h.onCommit == nil {
		return
	}
	for _, entry := range h.node.DrainApplicable() {
		h.onCommit(entry)
	}
}

// dispatch sends one outbound RPC in its own goroutine and feeds the reply
// back into the run loop as a command, so the response is processed with
// the same exclusivity as everything else touching the node.
func (h *Host) dispatch(out raft.Outbound) {
	addr, ok := h.peerAddr(out.To)
	if !ok {
		h.logger.Warn("no known address for peer", "peer", out.To)
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		switch msg := out.Message.(type) {
		case raft.PreVoteRequest:
			resp, err := h.client.SendPreVoteRequest(addr, &msg)
			if err != nil {
				h.logger.Warn("prevote rpc failed", "peer", out.To, "error", err.Error())
				return
			}
			h.health.RecordContact(out.To)
			h.submit(func() {
				result, err := h.node.HandlePreVoteResponse(*resp)
				h.handleResult(result, err)
			})

		case raft.VoteRequest:
			resp, err := h.client.SendVoteRequest(addr, &msg)
			if err != nil {
				h.logger.Warn("vote rpc failed", "peer", out.To, "error", err.Error())
				return
			}
			h.health.RecordContact(out.To)
			h.submit(func() {
				prevRole, prevTerm := h.node.Role(), h.node.CurrentTerm()
				result, err := h.node.HandleVoteResponse(*resp)
				h.handleResult(result, err)
				h.observeTransition(prevRole, prevTerm)
			})

		case raft.AppendEntries:
			resp, err := h.client.SendAppendEntries(addr, &msg)
			if err != nil {
				h.logger.Warn("append entries rpc failed", "peer", out.To, "error", err.Error())
				return
			}
			h.health.RecordContact(out.To)
			h.submit(func() {
				prevRole, prevTerm := h.node.Role(), h.node.CurrentTerm()
				prevCommit := h.node.CommitIndex()
				result, err := h.node.HandleAppendEntriesResponse(*resp)
				h.handleResult(result, err)
				h.observeTransition(prevRole, prevTerm)
				if h.node.CommitIndex() != prevCommit {
					h.auditEvent(audit.EventTypeCommitAdvance, fmt.Sprintf("%d -> %d", prevCommit, h.node.CommitIndex()))
				}
			})

		default:
			h.logger.Error("unknown outbound message type", "peer", out.To)
		}
	}()
}
