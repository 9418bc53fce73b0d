// Package main provides the entry point for cxlsim, a trace-driven
// simulator of a directory-based cache-coherence protocol over hosts, a
// memory-expansion device, and switches.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/cxlnet/coherence"
	"github.com/sarchlab/cxlnet/config"
	"github.com/sarchlab/cxlnet/node"
	"github.com/sarchlab/cxlnet/policy"
	"github.com/sarchlab/cxlnet/topology"
	"github.com/sarchlab/cxlnet/trace"
)

var (
	verbose      = flag.Bool("v", false, "Verbose output")
	topologyPath = flag.String("topology", "", "Path to a JSON edge list overriding the default fat-tree topology")
	evictionLog  = flag.String("eviction-log", "", "Path to write one line per cascading eviction")
)

func main() {
	flag.Parse()

	if flag.NArg() < 2 {
		fmt.Fprintf(os.Stderr, "Usage: cxlsim [options] <config.json> <trace.file>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	configPath := flag.Arg(0)
	tracePath := flag.Arg(1)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		fmt.Print(cfg.Describe())
	}

	if observed, err := trace.Hosts(tracePath); err != nil {
		fmt.Fprintf(os.Stderr, "Error scanning trace: %v\n", err)
		os.Exit(1)
	} else if len(observed) > cfg.NumHosts {
		fmt.Fprintf(os.Stderr, "Error: trace references %d distinct hosts, config Num hosts is %d\n",
			len(observed), cfg.NumHosts)
		os.Exit(1)
	}

	e, err := buildEngine(cfg, *topologyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building simulator: %v\n", err)
		os.Exit(1)
	}

	if *evictionLog != "" {
		f, err := os.Create(*evictionLog)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening eviction log: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		e.EvictionLog = func(reqID int, addr uint64, location node.NodeID, flowType int) {
			fmt.Fprintf(f, "%d %x %d %d\n", reqID, addr, location, flowType)
		}
	}

	if err := run(e, tracePath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if cfg.OutputJSON != "" {
		if err := e.Accountant().WriteJSON(cfg.OutputJSON); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
			os.Exit(1)
		}
	}

	if *verbose {
		fmt.Printf("Processed %d requests\n", e.ReqID())
	}
}

func buildEngine(cfg *config.Config, topologyPath string) (*coherence.Engine, error) {
	deviceID := node.NodeID(cfg.NumHosts)
	switches := make([]node.NodeID, cfg.NumSwitches)
	for i := range switches {
		switches[i] = node.NodeID(cfg.NumHosts + 1 + i)
	}

	var topo topology.Topology
	if topologyPath != "" {
		g, err := loadTopology(topologyPath, node.NodeID(cfg.IntermediateSwitch), intermediatePath(cfg))
		if err != nil {
			return nil, err
		}
		topo = g
	} else {
		topo = topology.DefaultFatTree(cfg.NumHosts, deviceID, switches)
	}

	hosts := make(map[node.HostID]*node.HostCache, cfg.NumHosts)
	for i := 0; i < cfg.NumHosts; i++ {
		hosts[node.HostID(i)] = node.NewHostCache(node.HostID(i), cfg.HostLineSize, cfg.HostNumLines, cfg.HostAssoc)
	}

	device := node.NewDirectoryStore(deviceID, cfg.DeviceLineSize, cfg.DeviceNumLines, cfg.DeviceAssoc)
	switchStores := make(map[node.NodeID]*node.DirectoryStore, cfg.NumSwitches)
	for _, id := range switches {
		switchStores[id] = node.NewDirectoryStore(id, cfg.SwitchLineSize, cfg.SwitchNumLines, cfg.SwitchAssoc)
	}

	placement, ok := policy.NewPlacement(cfg.PlacementPolicy, deviceID, intermediatePath(cfg))
	if !ok {
		return nil, fmt.Errorf("unknown placement policy %q", cfg.PlacementPolicy)
	}
	migration, ok := policy.NewMigration(cfg.MigrationPolicy, intermediatePath(cfg))
	if !ok {
		return nil, fmt.Errorf("unknown migration policy %q", cfg.MigrationPolicy)
	}

	return coherence.New(hosts, device, switchStores, topo, placement, migration), nil
}

func intermediatePath(cfg *config.Config) []node.NodeID {
	out := make([]node.NodeID, len(cfg.IntermediatePath))
	for i, id := range cfg.IntermediatePath {
		out[i] = node.NodeID(id)
	}
	return out
}

type edgeFile struct {
	Edges [][2]int `json:"edges"`
}

func loadTopology(path string, intermediate node.NodeID, intermediatePath []node.NodeID) (*topology.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading topology file: %w", err)
	}
	var ef edgeFile
	if err := json.Unmarshal(data, &ef); err != nil {
		return nil, fmt.Errorf("parsing topology file: %w", err)
	}
	edges := make([][2]node.NodeID, len(ef.Edges))
	for i, e := range ef.Edges {
		edges[i] = [2]node.NodeID{node.NodeID(e[0]), node.NodeID(e[1])}
	}
	return topology.New(edges, intermediate, intermediatePath), nil
}

func run(e *coherence.Engine, tracePath string) error {
	s, err := trace.Open(tracePath)
	if err != nil {
		return err
	}
	defer s.Close()

	for {
		rec, err := s.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := e.Process(rec.Addr, rec.Op, rec.Host); err != nil {
			return fmt.Errorf("request %d: %w", e.ReqID(), err)
		}
	}
}
