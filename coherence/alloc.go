package coherence

import (
	"fmt"

	"github.com/sarchlab/cxlnet/node"
)

// allocateHost installs addr into requestor's host cache, running the
// two-step allocate contract: if the target set is full, the LRU line is
// evicted (host-initiated eviction, flow types 1-3) and the allocate is
// retried exactly once. A second capacity failure is a logic bug.
func (e *Engine) allocateHost(requestor node.HostID, addr uint64) error {
	host, ok := e.hosts[requestor]
	if !ok {
		return fmt.Errorf("%w: host %d", ErrUnknownNode, requestor)
	}
	victim, needsEviction := host.Allocate(addr)
	if !needsEviction {
		return nil
	}
	if err := e.hostEvict(requestor, victim); err != nil {
		return err
	}
	if _, needsEviction := host.Allocate(addr); needsEviction {
		return fmt.Errorf("%w: host %d", ErrCapacityRetryFailure, requestor)
	}
	return nil
}

// hostEvict handles a host's LRU capacity eviction of victimAddr, a line
// unrelated to the address currently being serviced. Host-initiated
// eviction only ever removes that one host's copy; it removes the
// directory entry outright only when no other holder remains (flow types
// 1 and 2), and otherwise just drops the evicting host from the sharer set
// (flow type 3).
func (e *Engine) hostEvict(host node.HostID, victimAddr uint64) error {
	storeID, entry, hit := e.index.Find(victimAddr)
	if !hit {
		return fmt.Errorf("%w: host %d evicting untracked line %x", ErrMissingDirectory, host, victimAddr)
	}
	dirStore, ok := e.index.Resolve(storeID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownNode, storeID)
	}

	e.hosts[host].Evict(victimAddr)

	i := e.topo.Intermediate()
	hostNode := node.NodeID(host)
	deviceID := e.device.ID

	switch entry.State {
	case node.Exclusive:
		// owner -> device -> owner, even if the entry's directory store
		// actually lives on a switch (matches handle_host_eviction's flow 1).
		dirStore.Remove(victimAddr)
		path := []node.NodeID{hostNode, i, deviceID, i, hostNode}
		base := []node.NodeID{hostNode, deviceID, hostNode}
		e.logEvict(victimAddr, storeID, FlowHostEvictExclusive)
		e.accountant.Record(FlowHostEvictExclusive, path, base, e.topo, []node.HostID{host})

	case node.Shared:
		if len(entry.Sharers) == 1 {
			// evicting host -> device -> evicting host (flow 2; same
			// device pivot as flow 1 even off-device).
			dirStore.Remove(victimAddr)
			path := []node.NodeID{hostNode, i, deviceID, i, hostNode}
			base := []node.NodeID{hostNode, deviceID, hostNode}
			e.logEvict(victimAddr, storeID, FlowHostEvictLoneSharer)
			e.accountant.Record(FlowHostEvictLoneSharer, path, base, e.topo, []node.HostID{host})
		} else {
			// evicting host -> current dir location -> evicting host
			// (flow 3; pivots on storeID, not the device).
			dirStore.RemoveSharer(victimAddr, host)
			path := []node.NodeID{hostNode, i, storeID, i, hostNode}
			base := []node.NodeID{hostNode, storeID, hostNode}
			e.logEvict(victimAddr, storeID, FlowHostEvictSharer)
			e.accountant.Record(FlowHostEvictSharer, path, base, e.topo, []node.HostID{host})
		}
	}
	return nil
}

// allocateDirectory installs entry for addr at destID, running the same
// two-step contract as allocateHost. A directory capacity eviction
// (flow types 4-5) always invalidates every current holder, never just one.
func (e *Engine) allocateDirectory(destID node.NodeID, addr uint64, entry node.DirectoryEntry) error {
	dirStore, ok := e.index.Resolve(destID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownNode, destID)
	}
	victim, needsEviction := dirStore.Allocate(addr, entry)
	if !needsEviction {
		return nil
	}
	if err := e.directoryEvict(destID, victim); err != nil {
		return err
	}
	if _, needsEviction := dirStore.Allocate(addr, entry); needsEviction {
		return fmt.Errorf("%w: directory %d", ErrCapacityRetryFailure, destID)
	}
	return nil
}

// directoryEvict handles a directory store's LRU capacity eviction of
// victimAddr: every host currently holding that line has its copy
// invalidated, and the directory entry is removed.
func (e *Engine) directoryEvict(storeID node.NodeID, victimAddr uint64) error {
	dirStore, ok := e.index.Resolve(storeID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownNode, storeID)
	}
	entry, ok := dirStore.Lookup(victimAddr)
	if !ok {
		return fmt.Errorf("%w: directory %d evicting untracked line %x", ErrMissingDirectory, storeID, victimAddr)
	}

	var holders []node.HostID
	switch entry.State {
	case node.Exclusive:
		if entry.HasOwner {
			holders = []node.HostID{entry.Owner}
		}
	case node.Shared:
		holders = entry.SharerList()
	}

	i := e.topo.Intermediate()
	deviceID := e.device.ID
	flowType := FlowDirEvictShared
	var pivot node.NodeID
	if entry.State == node.Exclusive {
		flowType = FlowDirEvictExclusive
		pivot = node.NodeID(entry.Owner)
	} else {
		pivot = e.topo.FurthestNode(storeID, toNodeIDs(holders))
	}

	// dir location -> owner-or-furthest-sharer -> device; charged once per
	// eviction regardless of how many sharers it invalidates (matches
	// handle_directory_eviction, which calls static_path_benefit a single
	// time per eviction).
	path := []node.NodeID{storeID, i, pivot, i, deviceID}
	base := []node.NodeID{deviceID, pivot, deviceID}
	e.accountant.Record(flowType, path, base, e.topo, holders)

	for _, h := range holders {
		if hc, ok := e.hosts[h]; ok {
			hc.Evict(victimAddr)
		}
	}
	dirStore.Remove(victimAddr)

	e.logEvict(victimAddr, storeID, flowType)
	return nil
}

func (e *Engine) logEvict(addr uint64, location node.NodeID, flowType int) {
	if e.EvictionLog != nil {
		e.EvictionLog(e.reqID, addr, location, flowType)
	}
}
