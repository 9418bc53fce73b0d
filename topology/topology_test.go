package topology_test

import (
	"testing"

	"github.com/sarchlab/cxlnet/node"
	"github.com/sarchlab/cxlnet/topology"
)

func smallGraph() *topology.Graph {
	// H0 - S11 - D10
	//       |
	//      S12 - H1
	// hosts 0,1; device 10; switches 11,12
	return topology.New([][2]node.NodeID{
		{0, 11},
		{11, 10},
		{11, 12},
		{12, 1},
	}, 11, []node.NodeID{11, 12})
}

func TestCost(t *testing.T) {
	g := smallGraph()

	cases := []struct {
		a, b node.NodeID
		want int
	}{
		{0, 11, 1},
		{0, 10, 2},
		{0, 1, 3},
		{10, 10, 0},
	}
	for _, c := range cases {
		if got := g.Cost(c.a, c.b); got != c.want {
			t.Errorf("Cost(%d,%d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestClosestFurthest(t *testing.T) {
	g := smallGraph()

	closest := g.ClosestNode(10, []node.NodeID{0, 1})
	if closest != 0 {
		t.Errorf("ClosestNode = %d, want 0", closest)
	}

	furthest := g.FurthestNode(10, []node.NodeID{0, 1})
	if furthest != 1 {
		t.Errorf("FurthestNode = %d, want 1", furthest)
	}
}

func TestPathCost(t *testing.T) {
	g := smallGraph()
	got := topology.PathCost(g, []node.NodeID{0, 11, 10, 11, 0})
	want := 1 + 1 + 1 + 1
	if got != want {
		t.Errorf("PathCost = %d, want %d", got, want)
	}
}

func TestIntermediate(t *testing.T) {
	g := smallGraph()
	if g.Intermediate() != 11 {
		t.Errorf("Intermediate() = %d, want 11", g.Intermediate())
	}
	if len(g.IntermediatePath()) != 2 {
		t.Errorf("IntermediatePath() len = %d, want 2", len(g.IntermediatePath()))
	}
}
