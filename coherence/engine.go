package coherence

import (
	"fmt"

	"github.com/sarchlab/cxlnet/node"
	"github.com/sarchlab/cxlnet/policy"
	"github.com/sarchlab/cxlnet/topology"
)

// Engine orchestrates one request at a time: lookup, state machine,
// eviction cascade, placement/migration, path accounting, and invariant
// checks. It is the single owner of every store; policies only receive
// read access to engine-observable state.
type Engine struct {
	hosts    map[node.HostID]*node.HostCache
	device   *node.DirectoryStore
	switches map[node.NodeID]*node.DirectoryStore
	index    *node.DirectoryIndex
	topo     topology.Topology

	placement policy.Placement
	migration policy.Migration

	accountant *FlowAccountant
	reqID      int

	// VerifyEvery controls how often post-transaction invariants are
	// checked: every VerifyEvery-th transaction. 1 checks every
	// transaction (the default and the only mode spec.md's testable
	// properties assume); larger values trade rigor for throughput on
	// very long traces, mirroring the original's reqid%1000000 sampling.
	VerifyEvery int

	// EvictionLog, if non-nil, receives one line per cascading eviction:
	// "<reqid> <addr> <evicted-from> <flow-type>". Purely diagnostic;
	// never consulted by the engine.
	EvictionLog func(reqID int, addr uint64, location node.NodeID, flowType int)
}

// New builds an Engine over the given hosts, device directory, and switch
// directories, using topo for hop costs and the given placement/migration
// policies.
func New(
	hosts map[node.HostID]*node.HostCache,
	device *node.DirectoryStore,
	switches map[node.NodeID]*node.DirectoryStore,
	topo topology.Topology,
	placement policy.Placement,
	migration policy.Migration,
) *Engine {
	return &Engine{
		hosts:       hosts,
		device:      device,
		switches:    switches,
		index:       node.NewDirectoryIndex(device, switches),
		topo:        topo,
		placement:   placement,
		migration:   migration,
		accountant:  NewFlowAccountant(),
		VerifyEvery: 1,
	}
}

// Accountant returns the engine's FlowAccountant.
func (e *Engine) Accountant() *FlowAccountant { return e.accountant }

// ReqID returns the next request id that will be assigned (0-based,
// monotonic, matching the externally-observable trace order).
func (e *Engine) ReqID() int { return e.reqID }

// Index exposes the DirectoryIndex, primarily for the invariant checker and
// tests.
func (e *Engine) Index() *node.DirectoryIndex { return e.index }

// Process handles one trace record to completion: lookup, state machine,
// any cascading evictions, migration, path accounting, and (depending on
// VerifyEvery) an invariant check. It returns a non-nil error only for the
// fatal conditions in spec.md §7 — no error is recoverable.
func (e *Engine) Process(addr uint64, op policy.Op, requestor node.HostID) error {
	host, ok := e.hosts[requestor]
	if !ok {
		return fmt.Errorf("%w: host %d", ErrUnknownNode, requestor)
	}

	reqID := e.reqID
	i := e.topo.Intermediate()
	deviceID := e.device.ID

	storeID, entry, hit := e.index.Find(addr)

	switch {
	case hit && entry.State == node.Exclusive && entry.HasOwner && entry.Owner == requestor:
		// Branch A: hit in X state, requestor is already the owner.
		host.Touch(addr)

	case hit:
		dirStore, ok := e.index.Resolve(storeID)
		if !ok {
			return fmt.Errorf("%w: %d", ErrUnknownNode, storeID)
		}
		prior := entry

		switch entry.State {
		case node.Exclusive:
			oldOwner := entry.Owner
			switch op {
			case policy.Read:
				if err := e.allocateHost(requestor, addr); err != nil {
					return err
				}
				sharers := map[node.HostID]struct{}{oldOwner: {}, requestor: {}}
				entry = node.DirectoryEntry{State: node.Shared, Sharers: sharers, DirLocation: storeID}

				path := []node.NodeID{node.NodeID(requestor), i, storeID, node.NodeID(oldOwner), i, storeID, node.NodeID(requestor)}
				base := []node.NodeID{node.NodeID(requestor), deviceID, node.NodeID(oldOwner), deviceID, node.NodeID(requestor)}
				e.accountant.Record(FlowHitExclusiveRead, path, base, e.topo, []node.HostID{requestor, oldOwner})

			case policy.Write:
				if err := e.allocateHost(requestor, addr); err != nil {
					return err
				}
				e.hosts[oldOwner].Evict(addr)
				entry = node.NewExclusiveEntry(requestor, storeID)

				path := []node.NodeID{node.NodeID(requestor), i, storeID, node.NodeID(oldOwner), i, storeID, node.NodeID(requestor)}
				base := []node.NodeID{node.NodeID(requestor), deviceID, node.NodeID(oldOwner), deviceID, node.NodeID(requestor)}
				e.accountant.Record(FlowHitExclusiveWrite, path, base, e.topo, []node.HostID{requestor, oldOwner})
			}

		case node.Shared:
			oldSharers := entry.SharerList()
			_, isSharer := entry.Sharers[requestor]

			switch op {
			case policy.Read:
				if isSharer {
					host.Touch(addr)
				} else {
					if err := e.allocateHost(requestor, addr); err != nil {
						return err
					}
					newSharers := make(map[node.HostID]struct{}, len(entry.Sharers)+1)
					for h := range entry.Sharers {
						newSharers[h] = struct{}{}
					}
					newSharers[requestor] = struct{}{}
					entry = node.DirectoryEntry{State: node.Shared, Sharers: newSharers, DirLocation: storeID}

					closest := e.topo.ClosestNode(node.NodeID(requestor), toNodeIDs(oldSharers))
					path := []node.NodeID{node.NodeID(requestor), i, storeID, closest, i, storeID, node.NodeID(requestor)}
					base := []node.NodeID{node.NodeID(requestor), deviceID, closest, deviceID, node.NodeID(requestor)}
					e.accountant.Record(FlowHitSharedReadAddSharer, path, base, e.topo, []node.HostID{requestor})
				}

			case policy.Write:
				if isSharer && len(entry.Sharers) == 1 {
					// Promotion: requestor already has the only copy, only
					// needs permission, no data transfer.
					path := []node.NodeID{node.NodeID(requestor), i, storeID, i, node.NodeID(requestor)}
					base := []node.NodeID{node.NodeID(requestor), deviceID, node.NodeID(requestor)}
					e.accountant.Record(FlowHitSharedWritePromote, path, base, e.topo, []node.HostID{requestor})
				} else {
					farthest := e.topo.FurthestNode(node.NodeID(requestor), toNodeIDs(oldSharers))
					path := []node.NodeID{node.NodeID(requestor), i, storeID, farthest, i, storeID, node.NodeID(requestor)}
					base := []node.NodeID{node.NodeID(requestor), deviceID, farthest, deviceID, node.NodeID(requestor)}
					e.accountant.Record(FlowHitSharedWriteEvict, path, base, e.topo, []node.HostID{requestor})

					if !isSharer {
						if err := e.allocateHost(requestor, addr); err != nil {
							return err
						}
					}
					for _, h := range oldSharers {
						if h == requestor {
							continue
						}
						e.hosts[h].Evict(addr)
						if h == farthest {
							continue
						}
						// The permission round-trip above only charges the
						// requestor<->dirStore<->farthest-sharer path; every
						// other invalidated sharer still needs a snoop +
						// ack, charged here as its own flow-10 sub-event
						// (see DESIGN.md, Open Question on flow type 9/10).
						subPath := []node.NodeID{storeID, i, node.NodeID(h), i, storeID}
						subBase := []node.NodeID{deviceID, node.NodeID(h), deviceID}
						e.accountant.Record(FlowHitSharedWriteEvict, subPath, subBase, e.topo, []node.HostID{h})
					}
				}
				entry = node.NewExclusiveEntry(requestor, storeID)
			}
		}

		if err := e.applyWriteback(addr, storeID, prior, entry, requestor); err != nil {
			return err
		}

	default:
		// Branch C: miss. No directory entry exists anywhere.
		destID := e.placement.Select(addr, op, requestor, reqID)
		var newEntry node.DirectoryEntry
		if op == policy.Read {
			newEntry = node.NewSharedEntry(requestor, destID)
		} else {
			newEntry = node.NewExclusiveEntry(requestor, destID)
		}

		if err := e.allocateDirectory(destID, addr, newEntry); err != nil {
			return err
		}
		if err := e.allocateHost(requestor, addr); err != nil {
			return err
		}

		path := []node.NodeID{node.NodeID(requestor), i, deviceID, i, node.NodeID(requestor)}
		base := []node.NodeID{node.NodeID(requestor), deviceID, node.NodeID(requestor)}
		e.accountant.Record(FlowMiss, path, base, e.topo, []node.HostID{requestor})
	}

	e.reqID++

	if e.VerifyEvery > 0 && e.reqID%e.VerifyEvery == 0 {
		if err := e.Verify(); err != nil {
			return err
		}
	}
	return nil
}

// applyWriteback runs the migration policy (at most once, on hits, after
// the state transition and before the final write-back — resolving the
// Open Question on migration_policy's call count) and then persists entry
// to whichever store ends up holding it. The policy decides on prior, the
// entry as it stood before the transition, so its single-holder test sees
// the holder the requestor had to reach.
func (e *Engine) applyWriteback(addr uint64, storeID node.NodeID, prior, entry node.DirectoryEntry, requestor node.HostID) error {
	dest, migrate := e.migration.Decide(prior, e.device.ID, requestor, e.topo)
	if !migrate || dest == storeID {
		dirStore, ok := e.index.Resolve(storeID)
		if !ok {
			return fmt.Errorf("%w: %d", ErrUnknownNode, storeID)
		}
		dirStore.Set(addr, entry)
		return nil
	}
	return e.migrateEntry(addr, storeID, dest, entry)
}

// migrateEntry moves a directory entry from `from` to `to`, using the
// two-step allocate protocol (with cascading directory eviction) at the
// destination.
func (e *Engine) migrateEntry(addr uint64, from, to node.NodeID, entry node.DirectoryEntry) error {
	entry.DirLocation = to
	if err := e.allocateDirectory(to, addr, entry); err != nil {
		return err
	}
	fromStore, ok := e.index.Resolve(from)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownNode, from)
	}
	fromStore.Remove(addr)
	return nil
}

func toNodeIDs(hosts []node.HostID) []node.NodeID {
	out := make([]node.NodeID, len(hosts))
	for i, h := range hosts {
		out[i] = node.NodeID(h)
	}
	return out
}
