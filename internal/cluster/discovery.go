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
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/mdns"
	"golang.org/x/sync/errgroup"

	"raftcore/internal/logging"
	"raftcore/internal/transport"
)

// DiscoveryConfig controls a node's mDNS presence: whether it advertises
// itself, and what service name peers browse for.
type DiscoveryConfig struct {
	NodeID   string
	RaftAddr string // host:port this node's transport.Server listens on
	Service  string // e.g. "_raftcore._tcp"
	Domain   string // defaults to "local." when empty
	Enabled  bool   // advertise as well as browse; false means browse-only
}

func (c DiscoveryConfig) serviceName() string {
	if c.Service == "" {
		return "_raftcore._tcp"
	}
	return c.Service
}

func (c DiscoveryConfig) domain() string {
	if c.Domain == "" {
		return "local."
	}
	return c.Domain
}

// DiscoveredNode is one peer found by a browse.
type DiscoveredNode struct {
	NodeID   string
	RaftAddr string
	Version  string
}

// DiscoveryService advertises this node's RPC address over mDNS (if
// configured to) and can browse for other nodes advertising the same
// service. It is independent of raft.Node/Host -- a node can discover peers
// before it ever constructs either, to learn the peer list a Host needs.
type DiscoveryService struct {
	config DiscoveryConfig
	logger *logging.Logger
	server *mdns.Server
}

// NewDiscoveryService constructs a DiscoveryService. Call Start to begin
// advertising (a no-op if config.Enabled is false).
func NewDiscoveryService(config DiscoveryConfig) *DiscoveryService {
	return &DiscoveryService{
		config: config,
		logger: logging.NewLogger("discovery"),
	}
}

// Start begins advertising this node over mDNS. It is a no-op when the
// service is not enabled to advertise (browse-only mode).
func (d *DiscoveryService) Start() error {
	if !d.config.Enabled {
		return nil
	}

	_, portStr, err := splitHostPort(d.config.RaftAddr)
	if err != nil {
		return fmt.Errorf("parse raft addr %q: %w", d.config.RaftAddr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("parse port %q: %w", portStr, err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = d.config.NodeID
	}

	info := []string{"raftaddr=" + d.config.RaftAddr}
	svc, err := mdns.NewMDNSService(d.config.NodeID, d.config.serviceName(), d.config.domain(), hostname+".", port, nil, info)
	if err != nil {
		return fmt.Errorf("build mdns service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		return fmt.Errorf("start mdns server: %w", err)
	}
	d.server = server
	d.logger.Info("advertising over mdns", "node_id", d.config.NodeID, "service", d.config.serviceName())
	return nil
}

// Stop withdraws this node's mDNS advertisement, if any.
func (d *DiscoveryService) Stop() error {
	if d.server == nil {
		return nil
	}
	return d.server.Shutdown()
}

// DiscoverNodes browses the local network for every node advertising the
// configured service, for up to timeout.
func (d *DiscoveryService) DiscoverNodes(timeout time.Duration) ([]*DiscoveredNode, error) {
	entriesCh := make(chan *mdns.ServiceEntry, 16)
	done := make(chan struct{})
	var found []*DiscoveredNode

	go func() {
		defer close(done)
		for entry := range entriesCh {
			found = append(found, entryToNode(entry))
		}
	}()

	params := &mdns.QueryParam{
		Service: d.config.serviceName(),
		Domain:  trimTrailingDot(d.config.domain()),
		Timeout: timeout,
		Entries: entriesCh,
	}
	if err := mdns.Query(params); err != nil {
		close(entriesCh)
		<-done
		return nil, fmt.Errorf("mdns query: %w", err)
	}
	close(entriesCh)
	<-done
	return found, nil
}

// ProbeReachable filters nodes down to the ones that accept an RPC
// connection within timeout, probing all of them concurrently. An mDNS
// advertisement can outlive the process that sent it, so discovery alone
// does not guarantee a peer is actually up.
func (d *DiscoveryService) ProbeReachable(nodes []*DiscoveredNode, timeout time.Duration) []*DiscoveredNode {
	client := &transport.Client{DialTimeout: timeout, RPCTimeout: timeout}
	reachable := make([]bool, len(nodes))

	var g errgroup.Group
	for i, node := range nodes {
		i, node := i, node
		g.Go(func() error {
			if err := client.Ping(node.RaftAddr); err != nil {
				d.logger.Debug("discovered node unreachable", "node_id", node.NodeID, "addr", node.RaftAddr, "error", err.Error())
				return nil
			}
			reachable[i] = true
			return nil
		})
	}
	g.Wait()

	out := make([]*DiscoveredNode, 0, len(nodes))
	for i, ok := range reachable {
		if ok {
			out = append(out, nodes[i])
		}
	}
	return out
}

func entryToNode(entry *mdns.ServiceEntry) *DiscoveredNode {
	node := &DiscoveredNode{NodeID: entry.Name}
	for _, field := range entry.InfoFields {
		if len(field) > len("raftaddr=") && field[:len("raftaddr=")] == "raftaddr=" {
			node.RaftAddr = field[len("raftaddr="):]
		}
	}
	if node.RaftAddr == "" && entry.AddrV4 != nil {
		node.RaftAddr = fmt.Sprintf("%s:%d", entry.AddrV4.String(), entry.Port)
	}
	return node
}

func splitHostPort(addr string) (host, port string, err error) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i], addr[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("missing port in address %q", addr)
}

func trimTrailingDot(s string) string {
	if len(s) > 0 && s[len(s)-1] == '.' {
		return s[:len(s)-1]
	}
	return s
}
