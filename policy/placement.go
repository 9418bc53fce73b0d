// Package policy implements the pluggable directory-placement and
// directory-migration policies the coherence engine consults. Policies
// only read engine-observable state (directory locations, topology) and
// return advisory decisions; they never mutate a store directly.
package policy

import (
	"github.com/sarchlab/cxlnet/node"
	"github.com/sarchlab/cxlnet/topology"
)

// Op is the access type of a trace record.
type Op int

const (
	// Read is a load.
	Read Op = iota
	// Write is a store.
	Write
)

// Placement chooses the initial directory-store id for a line transitioning
// out of the implicit Invalid state.
type Placement interface {
	Select(addr uint64, op Op, requestor node.HostID, reqID int) node.NodeID
}

// DefaultPlacement always allocates on the device.
type DefaultPlacement struct {
	Device node.NodeID
}

// Select always returns the device node id.
func (p DefaultPlacement) Select(addr uint64, op Op, requestor node.HostID, reqID int) node.NodeID {
	return p.Device
}

// ModuloPlacement distributes new directory entries round-robin across the
// intermediate path plus the device, indexed deterministically by request
// id so two runs over the same trace place entries identically.
type ModuloPlacement struct {
	Device           node.NodeID
	IntermediatePath []node.NodeID
}

// Select returns (intermediatePath + [device])[reqID % N].
func (p ModuloPlacement) Select(addr uint64, op Op, requestor node.HostID, reqID int) node.NodeID {
	candidates := append(append([]node.NodeID{}, p.IntermediatePath...), p.Device)
	return candidates[reqID%len(candidates)]
}

// NewPlacement constructs a Placement from a config name ("default" or
// "modulo").
func NewPlacement(name string, device node.NodeID, intermediatePath []node.NodeID) (Placement, bool) {
	switch name {
	case "default", "":
		return DefaultPlacement{Device: device}, true
	case "modulo":
		return ModuloPlacement{Device: device, IntermediatePath: intermediatePath}, true
	default:
		return nil, false
	}
}

// Topology aliases topology.Topology, the interface the migration policy
// queries for hop costs.
type Topology = topology.Topology
