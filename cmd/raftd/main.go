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
raftd is a single Raft node: it loads configuration, opens durable storage,
starts the cluster host (timers, RPC transport, audit trail), and drops into
an interactive shell for inspecting and driving the node.

Usage:

	raftd --node-id n1 --listen :7000 --peers n2@host2:7000,n3@host3:7000
*/
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"

	"raftcore/internal/audit"
	"raftcore/internal/cluster"
	"raftcore/internal/compression"
	"raftcore/internal/config"
	"raftcore/internal/logging"
	"raftcore/internal/raft"
	raftstorage "raftcore/internal/raft/storage"
	"raftcore/pkg/cli"
)

const version = "0.1.0"

func main() {
	nodeID := flag.String("node-id", "", "this node's ID (required)")
	listenAddr := flag.String("listen", "", "RPC listen address, e.g. :7000")
	peersFlag := flag.String("peers", "", "comma-separated id@host:port list of other members")
	dataDir := flag.String("data-dir", "", "directory for durable state")
	configFile := flag.String("config", "", "path to a config file")
	logLevel := flag.String("log-level", "", "debug|info|warn|error")
	logJSON := flag.Bool("log-json", false, "emit logs as JSON")
	discovery := flag.Bool("discovery", false, "advertise and browse via mDNS")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("raftd v%s\n", version)
		return
	}

	if *nodeID == "" && *configFile == "" {
		cli.ErrMissingArgument("--node-id", "raftd --node-id n1 --listen :7000").Exit()
	}

	if *configFile != "" {
		if _, statErr := os.Stat(*configFile); statErr != nil {
			cli.ErrConfigNotFound(*configFile).Exit()
		}
	}

	cfg, err := loadConfig(*configFile, *nodeID, *listenAddr, *peersFlag, *dataDir, *logLevel, *logJSON, *discovery)
	if err != nil {
		cli.PrintError("%v", err)
		os.Exit(1)
	}

	logging.SetJSONMode(cfg.LogJSON)
	logging.SetGlobalLevel(logging.ParseLevel(cfg.LogLevel))
	logger := logging.NewLogger("raftd")

	peerMap, err := parsePeers(cfg.Peers)
	if err != nil {
		cli.ErrInvalidValue("--peers", strings.Join(cfg.Peers, ","), err.Error()).Exit()
	}

	store, err := openStorage(cfg)
	if err != nil {
		cli.PrintError("open storage: %v", err)
		os.Exit(1)
	}

	auditMgr, err := openAudit(cfg)
	if err != nil {
		cli.PrintError("open audit store: %v", err)
		os.Exit(1)
	}

	raftCfg := raft.RaftConfig{
		ElectionTimeoutMin: time.Duration(cfg.ElectionTimeoutMinMS) * time.Millisecond,
		ElectionTimeoutMax: time.Duration(cfg.ElectionTimeoutMaxMS) * time.Millisecond,
		HeartbeatInterval:  time.Duration(cfg.HeartbeatIntervalMS) * time.Millisecond,
		EnablePreVote:      cfg.EnablePreVote,
	}

	host, err := cluster.NewHost(cfg.NodeID, cfg.ListenAddr, peerMap, raftCfg, store, auditMgr)
	if err != nil {
		cli.PrintError("construct host: %v", err)
		os.Exit(1)
	}

	host.SetApplyCallback(func(entry raft.LogEntry) {
		logger.Info("entry applied", "index", fmt.Sprint(entry.Index), "term", fmt.Sprint(entry.Term))
	})

	var disco *cluster.DiscoveryService
	if cfg.DiscoveryEnabled {
		log.SetOutput(io.Discard) // mdns logs benign IPv6 errors at the stdlib log package
		disco = cluster.NewDiscoveryService(cluster.DiscoveryConfig{
			NodeID:   cfg.NodeID,
			RaftAddr: cfg.ListenAddr,
			Service:  cfg.DiscoveryService,
			Enabled:  true,
		})
		if err := disco.Start(); err != nil {
			logger.Warn("mdns advertise failed", "error", err.Error())
		}

		if found, err := disco.DiscoverNodes(2 * time.Second); err != nil {
			logger.Warn("mdns discovery failed", "error", err.Error())
		} else if len(found) > 0 {
			reachable := disco.ProbeReachable(found, 500*time.Millisecond)
			for _, n := range reachable {
				if n.NodeID == cfg.NodeID {
					continue
				}
				logger.Info("discovered peer", "node_id", n.NodeID, "addr", n.RaftAddr)
				host.AddPeer(n.NodeID, n.RaftAddr)
			}
		}
	}

	if err := host.Start(); err != nil {
		cli.PrintError("start host: %v", err)
		os.Exit(1)
	}
	cli.PrintSuccess("node %s listening on %s (%d peers)", cfg.NodeID, host.Addr(), len(peerMap))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cli.PrintInfo("shutting down")
		if disco != nil {
			disco.Stop()
		}
		host.Stop()
		auditMgr.Stop()
		os.Exit(0)
	}()

	runShell(host, cfg)
}

func loadConfig(configFile, nodeID, listenAddr, peers, dataDir, logLevel string, logJSON, discoveryEnabled bool) (*config.Config, error) {
	mgr := config.NewManager()
	if configFile != "" {
		if err := mgr.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}
	mgr.LoadFromEnv()

	base := *mgr.Get()
	cfg := &base
	if nodeID != "" {
		cfg.NodeID = nodeID
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if peers != "" {
		cfg.Peers = strings.Split(peers, ",")
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logJSON {
		cfg.LogJSON = true
	}
	if discoveryEnabled {
		cfg.DiscoveryEnabled = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func parsePeers(peers []string) (map[string]string, error) {
	out := make(map[string]string, len(peers))
	for _, p := range peers {
		if p == "" {
			continue
		}
		id, addr, ok := strings.Cut(p, "@")
		if !ok {
			return nil, fmt.Errorf("malformed peer %q, want id@host:port", p)
		}
		out[id] = addr
	}
	return out, nil
}

func openStorage(cfg *config.Config) (raft.Storage, error) {
	algo, err := compression.ParseAlgorithm(cfg.Compression)
	if err != nil {
		return nil, err
	}
	ccfg := compression.DefaultConfig()
	ccfg.Algorithm = algo
	return raftstorage.NewFileStore(filepath.Join(cfg.DataDir, "raft"), ccfg)
}

func openAudit(cfg *config.Config) (*audit.Manager, error) {
	store, err := audit.NewFileStore(filepath.Join(cfg.DataDir, "audit.jsonl"))
	if err != nil {
		return nil, err
	}
	return audit.NewManager(store, audit.DefaultConfig()), nil
}

func runShell(host *cluster.Host, cfg *config.Config) {
	rl, err := readline.New(fmt.Sprintf("%s> ", cfg.NodeID))
	if err != nil {
		cli.PrintError("readline: %v", err)
		return
	}
	defer rl.Close()

	fmt.Println()
	fmt.Printf("  %s v%s -- node %s\n", cli.Highlight("raftd"), version, cfg.NodeID)
	fmt.Println("  commands: status, peers, propose <text>, quit")
	fmt.Println()

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF on Ctrl-D, readline.ErrInterrupt on Ctrl-C
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.SplitN(line, " ", 2)
		switch fields[0] {
		case "status":
			printStatus(host)
		case "peers":
			printPeers(host, cfg)
		case "propose":
			if len(fields) < 2 {
				cli.PrintError("usage: propose <text>")
				continue
			}
			index, err := host.Propose([]byte(fields[1]))
			if err != nil {
				cli.PrintError("propose failed: %v", err)
				continue
			}
			cli.PrintSuccess("proposed at index %d", index)
		case "quit", "exit":
			return
		default:
			cli.PrintWarning("unknown command %q", fields[0])
		}
	}
}

func printStatus(host *cluster.Host) {
	status := host.Status()
	cli.KeyValue("node_id", fmt.Sprint(status["node_id"]), 16)
	cli.KeyValue("role", fmt.Sprint(status["role"]), 16)
	cli.KeyValue("term", fmt.Sprint(status["term"]), 16)
	cli.KeyValue("commit_index", fmt.Sprint(status["commit_index"]), 16)
	cli.KeyValue("last_log_index", fmt.Sprint(status["last_log_index"]), 16)
	cli.KeyValue("log_entries", fmt.Sprint(status["log_entries"]), 16)
	cli.KeyValue("peer_count", fmt.Sprint(status["peer_count"]), 16)
}

func printPeers(host *cluster.Host, cfg *config.Config) {
	table := cli.NewTable("NODE ID", "ADDRESS")
	for _, p := range cfg.Peers {
		id, addr, _ := strings.Cut(p, "@")
		table.AddRow(id, addr)
	}
	table.Print()
	_ = host
}
