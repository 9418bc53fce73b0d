// Package node provides the host caches and directory stores that sit on
// top of store.Store, plus the DirectoryIndex that federates the device
// store and every switch store into one logical directory.
package node

import (
	"sort"

	"github.com/sarchlab/cxlnet/store"
)

// HostID identifies a host in the topology's [0, numHosts) range.
type HostID int

// NodeID identifies any node in the topology (host, device, or switch).
// Hosts occupy [0, numHosts); the device occupies numHosts; switches
// occupy [numHosts+1, numHosts+1+numSwitches).
type NodeID int

// State is the coherence state of a directory entry. Invalid is implicit
// (no entry present) and has no corresponding value here.
type State int

const (
	// Shared: one or more sharers hold a read-only copy, no owner.
	Shared State = iota
	// Exclusive: exactly one owner holds a read-write copy, no sharers.
	Exclusive
)

func (s State) String() string {
	if s == Exclusive {
		return "X"
	}
	return "S"
}

// DirectoryEntry is the metadata tracked per cached line: which hosts hold
// it and in what mode, plus the node currently storing this entry.
type DirectoryEntry struct {
	State       State
	Owner       HostID // valid iff State == Exclusive
	HasOwner    bool
	Sharers     map[HostID]struct{} // non-empty iff State == Shared
	DirLocation NodeID
}

// NewSharedEntry builds a fresh Shared entry with a single initial sharer.
func NewSharedEntry(sharer HostID, loc NodeID) DirectoryEntry {
	return DirectoryEntry{
		State:       Shared,
		Sharers:     map[HostID]struct{}{sharer: {}},
		DirLocation: loc,
	}
}

// NewExclusiveEntry builds a fresh Exclusive entry with the given owner.
func NewExclusiveEntry(owner HostID, loc NodeID) DirectoryEntry {
	return DirectoryEntry{
		State:       Exclusive,
		Owner:       owner,
		HasOwner:    true,
		DirLocation: loc,
	}
}

// SharerList returns the sharers sorted by host id (stable for
// deterministic iteration in flow accounting and invariant checking).
func (d DirectoryEntry) SharerList() []HostID {
	out := make([]HostID, 0, len(d.Sharers))
	for h := range d.Sharers {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HostCache wraps store.Store holding only presence bits: a host either
// caches a line (struct{}{}) or it does not.
type HostCache struct {
	ID    HostID
	store *store.Store[struct{}]
}

// NewHostCache creates a host-side cache of the given geometry.
func NewHostCache(id HostID, lineSize, numLines, assoc int) *HostCache {
	numSets := numLines / assoc
	return &HostCache{ID: id, store: store.New[struct{}](lineSize, numSets, assoc)}
}

// Contains reports whether the host currently caches addr.
func (h *HostCache) Contains(addr uint64) bool { return h.store.Contains(addr) }

// Touch promotes addr to most-recently-used. addr must be resident.
func (h *HostCache) Touch(addr uint64) { h.store.Touch(addr) }

// Evict removes addr from the host cache unconditionally. Used both for
// directory-initiated and host-initiated eviction once the caller has
// already decided the line must go.
func (h *HostCache) Evict(addr uint64) {
	h.store.Remove(addr)
}

// Allocate installs addr in the host cache. If the target set is full, it
// returns the victim address WITHOUT removing it or installing addr; the
// caller must evict the victim (see coherence's cascade handling) and call
// Allocate again, which is then guaranteed to succeed.
func (h *HostCache) Allocate(addr uint64) (victim uint64, needsEviction bool) {
	if victim, full := h.store.Victim(addr); full {
		return victim, true
	}
	h.store.Install(addr, struct{}{})
	return 0, false
}

// Addresses returns every line currently resident in the host cache.
func (h *HostCache) Addresses() []uint64 {
	entries := h.store.Entries()
	out := make([]uint64, len(entries))
	for i, e := range entries {
		out[i] = e.Addr
	}
	return out
}

// DirectoryStore wraps store.Store holding DirectoryEntry records. One
// instance lives on the device; one more lives on each switch.
type DirectoryStore struct {
	ID    NodeID
	store *store.Store[DirectoryEntry]
}

// NewDirectoryStore creates a directory store of the given geometry at node id.
func NewDirectoryStore(id NodeID, lineSize, numLines, assoc int) *DirectoryStore {
	numSets := numLines / assoc
	return &DirectoryStore{ID: id, store: store.New[DirectoryEntry](lineSize, numSets, assoc)}
}

// Lookup returns the directory entry for addr, if resident here.
func (d *DirectoryStore) Lookup(addr uint64) (DirectoryEntry, bool) {
	return d.store.Lookup(addr)
}

// Set overwrites the entry for addr, which must already be resident, and
// promotes it to most-recently-used.
func (d *DirectoryStore) Set(addr uint64, entry DirectoryEntry) {
	d.store.Remove(addr)
	d.store.Install(addr, entry)
}

// Allocate installs a fresh entry for addr. Same two-step contract as
// HostCache.Allocate.
func (d *DirectoryStore) Allocate(addr uint64, entry DirectoryEntry) (victim uint64, needsEviction bool) {
	if victim, full := d.store.Victim(addr); full {
		return victim, true
	}
	d.store.Install(addr, entry)
	return 0, false
}

// Remove deletes the entry for addr and returns it.
func (d *DirectoryStore) Remove(addr uint64) (DirectoryEntry, bool) {
	return d.store.Remove(addr)
}

// RemoveSharer drops host from the sharer set of addr's entry, which must
// be in the Shared state. Builds a fresh Sharers map rather than mutating
// the looked-up one in place, since its underlying map is aliased with the
// copy still held by the store until Set writes the replacement back.
func (d *DirectoryStore) RemoveSharer(addr uint64, host HostID) {
	entry, ok := d.store.Lookup(addr)
	if !ok {
		return
	}
	fresh := make(map[HostID]struct{}, len(entry.Sharers))
	for h := range entry.Sharers {
		if h != host {
			fresh[h] = struct{}{}
		}
	}
	entry.Sharers = fresh
	d.Set(addr, entry)
}

// Entries returns every resident (address, entry) pair.
func (d *DirectoryStore) Entries() []store.Entry[DirectoryEntry] {
	return d.store.Entries()
}

// Occupancy reports the live/capacity counts for addr's set.
func (d *DirectoryStore) Occupancy(addr uint64) (used, capacity int) {
	return d.store.Occupancy(addr)
}
