/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package audit

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"raftcore/internal/logging"
)

// ClusterAuditManager aggregates audit logs across a Raft cluster's peers,
// so a single operator request can see e.g. every node's view of a disputed
// election without logging into each one.
type ClusterAuditManager struct {
	localManager *Manager
	logger       *logging.Logger
	mu           sync.RWMutex

	nodeID string
	peers  map[string]string // nodeID -> address
}

// NewClusterAuditManager creates a new cluster audit manager.
func NewClusterAuditManager(localManager *Manager, nodeID string) *ClusterAuditManager {
	return &ClusterAuditManager{
		localManager: localManager,
		logger:       logging.NewLogger("audit-cluster"),
		nodeID:       nodeID,
		peers:        make(map[string]string),
	}
}

// AddPeer adds a cluster peer for audit log aggregation.
func (cam *ClusterAuditManager) AddPeer(nodeID, address string) {
	cam.mu.Lock()
	defer cam.mu.Unlock()
	cam.peers[nodeID] = address
	cam.logger.Info("added audit peer", "node_id", nodeID, "address", address)
}

// RemovePeer removes a cluster peer.
func (cam *ClusterAuditManager) RemovePeer(nodeID string) {
	cam.mu.Lock()
	defer cam.mu.Unlock()
	delete(cam.peers, nodeID)
	cam.logger.Info("removed audit peer", "node_id", nodeID)
}

// LogEvent logs an audit event locally, stamping it with this node's ID.
func (cam *ClusterAuditManager) LogEvent(event Event) {
	if event.NodeID == "" {
		event.NodeID = cam.nodeID
	}
	cam.localManager.LogEvent(event)
}

// QueryLogsAcrossCluster queries audit logs from all cluster nodes.
func (cam *ClusterAuditManager) QueryLogsAcrossCluster(opts QueryOptions) ([]Event, error) {
	localLogs, err := cam.localManager.QueryLogs(opts)
	if err != nil {
		return nil, fmt.Errorf("query local logs: %w", err)
	}

	cam.mu.RLock()
	peers := make(map[string]string, len(cam.peers))
	for nodeID, addr := range cam.peers {
		peers[nodeID] = addr
	}
	cam.mu.RUnlock()

	allLogs := make([]Event, 0, len(localLogs))
	allLogs = append(allLogs, localLogs...)

	var wg sync.WaitGroup
	var mu sync.Mutex
	for nodeID, addr := range peers {
		wg.Add(1)
		go func(nid, address string) {
			defer wg.Done()

			remoteLogs, err := cam.queryRemoteLogs(address, opts)
			if err != nil {
				cam.logger.Warn("failed to query remote audit logs", "node_id", nid, "error", err.Error())
				return
			}

			mu.Lock()
			allLogs = append(allLogs, remoteLogs...)
			mu.Unlock()
		}(nodeID, addr)
	}
	wg.Wait()

	return allLogs, nil
}

// queryRemoteLogs queries audit logs from a remote node's audit endpoint.
func (cam *ClusterAuditManager) queryRemoteLogs(address string, opts QueryOptions) ([]Event, error) {
	conn, err := net.DialTimeout("tcp", address, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect to remote node: %w", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(10 * time.Second))

	request := map[string]interface{}{
		"type":    "audit_query",
		"options": opts,
	}
	if err := json.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	var response struct {
		Success bool    `json:"success"`
		Events  []Event `json:"events"`
		Error   string  `json:"error"`
	}
	if err := json.NewDecoder(conn).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !response.Success {
		return nil, fmt.Errorf("remote query failed: %s", response.Error)
	}

	return response.Events, nil
}

// ExportLogsAcrossCluster exports audit logs from all cluster nodes.
func (cam *ClusterAuditManager) ExportLogsAcrossCluster(filename string, format ExportFormat, opts QueryOptions) error {
	allLogs, err := cam.QueryLogsAcrossCluster(opts)
	if err != nil {
		return err
	}
	return cam.localManager.ExportEvents(filename, format, allLogs)
}

// IsClusterMode returns whether the audit manager has any peers configured.
func (cam *ClusterAuditManager) IsClusterMode() bool {
	cam.mu.RLock()
	defer cam.mu.RUnlock()
	return len(cam.peers) > 0
}

// GetLocalManager returns the local audit manager for standalone operations.
func (cam *ClusterAuditManager) GetLocalManager() *Manager {
	return cam.localManager
}

// Stop stops the cluster audit manager.
func (cam *ClusterAuditManager) Stop() {
	cam.localManager.Stop()
}
