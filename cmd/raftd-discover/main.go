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
raftd-discover finds raftd nodes on the local network via mDNS, so a new
node can learn an existing cluster's peer list without it being typed in by
hand.

Usage:

	raftd-discover                 # discover nodes (5 second timeout)
	raftd-discover --timeout 10    # custom timeout in seconds
	raftd-discover --json          # output as JSON
	raftd-discover --quiet         # output a comma-separated id@address list (for scripting)
*/
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"raftcore/internal/cluster"
	"raftcore/pkg/cli"
)

const version = "0.1.0"

func main() {
	timeout := flag.Int("timeout", 5, "discovery timeout in seconds")
	service := flag.String("service", "_raftcore._tcp", "mDNS service name to browse for")
	jsonOutput := flag.Bool("json", false, "output as JSON")
	quiet := flag.Bool("quiet", false, "output a comma-separated id@address list (for scripting)")
	showVersion := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("raftd-discover v%s\n", version)
		return
	}

	// mdns logs benign IPv6 lookup errors through the stdlib log package.
	log.SetOutput(io.Discard)

	if !*quiet && !*jsonOutput {
		fmt.Printf("%s Scanning for raftd nodes (timeout: %ds)...\n\n", cli.InfoIcon(), *timeout)
	}

	discovery := cluster.NewDiscoveryService(cluster.DiscoveryConfig{
		NodeID:  "discover-client",
		Service: *service,
		Enabled: false,
	})

	nodes, err := discovery.DiscoverNodes(time.Duration(*timeout) * time.Second)
	if err != nil {
		if !*quiet {
			cli.PrintError("discovery failed: %v", err)
		}
		os.Exit(1)
	}

	if len(nodes) == 0 {
		if !*quiet && !*jsonOutput {
			cli.PrintWarning("no raftd nodes found on the network")
			fmt.Println("  Check that at least one node is running with --discovery, and that")
			fmt.Println("  mDNS (UDP port 5353) is not blocked by a firewall.")
		}
		return
	}

	switch {
	case *jsonOutput:
		outputJSON(nodes)
	case *quiet:
		outputQuiet(nodes)
	default:
		outputHuman(nodes)
	}
}

func outputJSON(nodes []*cluster.DiscoveredNode) {
	data, _ := json.MarshalIndent(nodes, "", "  ")
	fmt.Println(string(data))
}

func outputQuiet(nodes []*cluster.DiscoveredNode) {
	peers := make([]string, len(nodes))
	for i, n := range nodes {
		peers[i] = fmt.Sprintf("%s@%s", n.NodeID, n.RaftAddr)
	}
	fmt.Println(strings.Join(peers, ","))
}

func outputHuman(nodes []*cluster.DiscoveredNode) {
	cli.PrintSuccess("found %d raftd node(s)", len(nodes))
	fmt.Println()
	table := cli.NewTable("NODE ID", "RAFT ADDRESS")
	for _, n := range nodes {
		table.AddRow(n.NodeID, n.RaftAddr)
	}
	table.Print()
	fmt.Println()
	fmt.Println("  Tip: pass --quiet to get a --peers-ready list for raftd.")
}
