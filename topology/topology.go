// Package topology models the interconnect graph of hosts, the device, and
// switches, and answers the hop-cost queries the coherence engine and its
// policies need: Cost, ClosestNode, FurthestNode, and a fixed intermediate
// switch anchoring the candidate directory-placement sites.
//
// This is deliberately the simplest possible implementation: an unweighted
// adjacency list walked with breadth-first search. None of the pack's
// example repos pull in a graph library (gonum or otherwise) for anything
// resembling this, and a hop count over an unweighted graph needs nothing
// more than BFS — see DESIGN.md.
package topology

import (
	"fmt"

	"github.com/sarchlab/cxlnet/node"
)

// Topology is the read-only graph interface the coherence engine and its
// policies consume. It never sees cache state; it only answers distance
// queries over the fixed interconnect.
type Topology interface {
	// Cost returns the hop count of the shortest path between a and b.
	Cost(a, b node.NodeID) int
	// ShortestPathLength is an alias for Cost, matching the spec's naming.
	ShortestPathLength(a, b node.NodeID) int
	// ClosestNode returns the member of candidates with the smallest Cost
	// from source.
	ClosestNode(source node.NodeID, candidates []node.NodeID) node.NodeID
	// FurthestNode returns the member of candidates with the largest Cost
	// from source.
	FurthestNode(source node.NodeID, candidates []node.NodeID) node.NodeID
	// Intermediate returns the fixed switch all host<->device traffic
	// logically transits.
	Intermediate() node.NodeID
	// IntermediatePath returns the ordered list of switch ids that are
	// candidate directory-placement sites between the intermediate switch
	// and the device.
	IntermediatePath() []node.NodeID
}

// Graph is the default Topology implementation: an explicit edge list over
// integer node ids, queried with breadth-first search.
type Graph struct {
	adj              map[node.NodeID][]node.NodeID
	intermediate     node.NodeID
	intermediatePath []node.NodeID
	distanceCache    map[[2]node.NodeID]int
}

// New builds a Graph from an edge list. Edges are undirected.
func New(edges [][2]node.NodeID, intermediate node.NodeID, intermediatePath []node.NodeID) *Graph {
	g := &Graph{
		adj:              make(map[node.NodeID][]node.NodeID),
		intermediate:     intermediate,
		intermediatePath: intermediatePath,
		distanceCache:    make(map[[2]node.NodeID]int),
	}
	for _, e := range edges {
		g.adj[e[0]] = append(g.adj[e[0]], e[1])
		g.adj[e[1]] = append(g.adj[e[1]], e[0])
	}
	return g
}

// DefaultFatTree builds the fixed two-tier fat-tree topology the original
// cxl-net experiment scripts hardcode: two tiers of three switches each,
// every host and the device hanging off one leaf switch. Host i attaches to
// leaf i mod 3 and the device to the last leaf; there is no limit on
// numHosts. Panics if fewer than six switches are given.
func DefaultFatTree(numHosts int, device node.NodeID, switches []node.NodeID) *Graph {
	if len(switches) < 6 {
		panic("topology: DefaultFatTree requires at least 6 switches (two tiers of three)")
	}
	leaf := switches[0:3]
	spine := switches[3:6]
	edges := [][2]node.NodeID{
		{leaf[0], spine[0]}, {spine[0], leaf[1]},
		{leaf[1], spine[1]}, {spine[1], leaf[2]},
		{leaf[0], spine[2]}, {spine[2], leaf[2]},
	}
	for i := 0; i < numHosts; i++ {
		edges = append(edges, [2]node.NodeID{node.NodeID(i), leaf[i%len(leaf)]})
	}
	edges = append(edges, [2]node.NodeID{device, leaf[len(leaf)-1]})

	return New(edges, leaf[0], append([]node.NodeID{}, switches...))
}

// Cost returns the BFS hop count between a and b. Panics if the nodes are
// disconnected — an unreachable topology is a fatal configuration error,
// matching spec.md §7's "no recoverable errors" stance.
func (g *Graph) Cost(a, b node.NodeID) int {
	if a == b {
		return 0
	}
	key := [2]node.NodeID{a, b}
	if d, ok := g.distanceCache[key]; ok {
		return d
	}
	d := g.bfs(a, b)
	if d < 0 {
		panic(fmt.Sprintf("topology: no path between node %d and node %d", a, b))
	}
	g.distanceCache[key] = d
	g.distanceCache[[2]node.NodeID{b, a}] = d
	return d
}

func (g *Graph) bfs(source, target node.NodeID) int {
	visited := map[node.NodeID]bool{source: true}
	frontier := []node.NodeID{source}
	dist := 0
	for len(frontier) > 0 {
		var next []node.NodeID
		for _, n := range frontier {
			if n == target {
				return dist
			}
			for _, nb := range g.adj[n] {
				if !visited[nb] {
					visited[nb] = true
					next = append(next, nb)
				}
			}
		}
		frontier = next
		dist++
	}
	return -1
}

// ShortestPathLength is an alias for Cost.
func (g *Graph) ShortestPathLength(a, b node.NodeID) int { return g.Cost(a, b) }

// ClosestNode returns the candidate nearest source. Ties resolve to
// whichever candidate is encountered first, matching Python's min() over a
// list with a key function.
func (g *Graph) ClosestNode(source node.NodeID, candidates []node.NodeID) node.NodeID {
	if len(candidates) == 0 {
		panic("topology: ClosestNode called with no candidates")
	}
	best := candidates[0]
	bestCost := g.Cost(source, best)
	for _, c := range candidates[1:] {
		if cost := g.Cost(source, c); cost < bestCost {
			best, bestCost = c, cost
		}
	}
	return best
}

// FurthestNode returns the candidate farthest from source.
func (g *Graph) FurthestNode(source node.NodeID, candidates []node.NodeID) node.NodeID {
	if len(candidates) == 0 {
		panic("topology: FurthestNode called with no candidates")
	}
	best := candidates[0]
	bestCost := g.Cost(source, best)
	for _, c := range candidates[1:] {
		if cost := g.Cost(source, c); cost > bestCost {
			best, bestCost = c, cost
		}
	}
	return best
}

// Intermediate returns the fixed intermediate switch.
func (g *Graph) Intermediate() node.NodeID { return g.intermediate }

// IntermediatePath returns the candidate directory-placement switch ids.
func (g *Graph) IntermediatePath() []node.NodeID { return g.intermediatePath }

// PathCost sums the hop cost of a sequence of nodes [n0, n1, ..., nk]:
// Σ Cost(n_i, n_i+1).
func PathCost(t Topology, nodes []node.NodeID) int {
	cost := 0
	for i := 0; i+1 < len(nodes); i++ {
		cost += t.Cost(nodes[i], nodes[i+1])
	}
	return cost
}
