package policy

import (
	"github.com/sarchlab/cxlnet/node"
)

// SoleHolder returns the single current holder of entry (the owner if
// Exclusive, the lone sharer if Shared with exactly one sharer) and true.
// Returns (0, false) if the entry has more than one holder.
func SoleHolder(entry node.DirectoryEntry) (node.HostID, bool) {
	if entry.State == node.Exclusive {
		return entry.Owner, entry.HasOwner
	}
	if len(entry.Sharers) == 1 {
		for h := range entry.Sharers {
			return h, true
		}
	}
	return 0, false
}

// Migration optionally relocates an already-allocated directory entry
// after a hit transaction completes, moving it from the device onto a
// switch on the round trip between the requestor and the entry's sole
// holder.
type Migration interface {
	// Decide returns the destination store id and true if entry (currently
	// held at deviceID) should migrate there. deviceID is supplied so the
	// policy can check condition (a) without importing a DirectoryIndex.
	Decide(entry node.DirectoryEntry, deviceID node.NodeID, requestor node.HostID, topo Topology) (dest node.NodeID, migrate bool)
}

// NoMigration never migrates anything.
type NoMigration struct{}

// Decide always declines to migrate.
func (NoMigration) Decide(node.DirectoryEntry, node.NodeID, node.HostID, Topology) (node.NodeID, bool) {
	return 0, false
}

// LazyMigration implements spec.md §4.7: migrate a device-resident entry
// onto the switch in the intermediate path that minimizes
// req -> i -> s -> holder -> i -> s -> req, whenever the entry currently
// has exactly one holder and that holder is not the requestor.
type LazyMigration struct {
	IntermediatePath []node.NodeID
}

// Decide implements Migration.
func (m LazyMigration) Decide(entry node.DirectoryEntry, deviceID node.NodeID, requestor node.HostID, topo Topology) (node.NodeID, bool) {
	if entry.DirLocation != deviceID {
		return 0, false
	}
	holder, ok := SoleHolder(entry)
	if !ok || holder == requestor {
		return 0, false
	}
	if len(m.IntermediatePath) == 0 {
		return 0, false
	}

	i := topo.Intermediate()
	best := m.IntermediatePath[0]
	bestCost := migrationCost(topo, requestor, i, best, node.NodeID(holder))
	for _, s := range m.IntermediatePath[1:] {
		if c := migrationCost(topo, requestor, i, s, node.NodeID(holder)); c < bestCost {
			best, bestCost = s, c
		}
	}
	return best, true
}

func migrationCost(topo Topology, requestor node.HostID, intermediate, switchID, holder node.NodeID) int {
	req := node.NodeID(requestor)
	return topo.Cost(req, intermediate) + topo.Cost(intermediate, switchID) +
		topo.Cost(switchID, holder) + topo.Cost(holder, intermediate) +
		topo.Cost(intermediate, switchID) + topo.Cost(switchID, req)
}

// NewMigration constructs a Migration from a config name ("none" or "lazy").
func NewMigration(name string, intermediatePath []node.NodeID) (Migration, bool) {
	switch name {
	case "none", "":
		return NoMigration{}, true
	case "lazy":
		return LazyMigration{IntermediatePath: intermediatePath}, true
	default:
		return nil, false
	}
}
