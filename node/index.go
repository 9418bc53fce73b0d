package node

// DirectoryIndex is the logical union over the device store and every
// switch store. At most one store ever holds a given line's directory
// entry (I1); the index itself holds no state beyond the stores it
// federates.
type DirectoryIndex struct {
	device  *DirectoryStore
	switches map[NodeID]*DirectoryStore
}

// NewDirectoryIndex builds an index over the device store and the given
// switch stores, keyed by their node ids.
func NewDirectoryIndex(device *DirectoryStore, switches map[NodeID]*DirectoryStore) *DirectoryIndex {
	return &DirectoryIndex{device: device, switches: switches}
}

// Find returns the store id and entry for addr, searching the device first
// and then each switch. The second return value is false if no store holds
// the line (the implicit Invalid state).
func (idx *DirectoryIndex) Find(addr uint64) (NodeID, DirectoryEntry, bool) {
	if entry, ok := idx.device.Lookup(addr); ok {
		return idx.device.ID, entry, true
	}
	for id, s := range idx.switches {
		if entry, ok := s.Lookup(addr); ok {
			return id, entry, true
		}
	}
	return 0, DirectoryEntry{}, false
}

// Locate returns the store id holding addr's entry, if any.
func (idx *DirectoryIndex) Locate(addr uint64) (NodeID, bool) {
	id, _, ok := idx.Find(addr)
	return id, ok
}

// Resolve returns the store for the given node id, or false if id is
// neither the device nor a known switch.
func (idx *DirectoryIndex) Resolve(id NodeID) (*DirectoryStore, bool) {
	if id == idx.device.ID {
		return idx.device, true
	}
	if s, ok := idx.switches[id]; ok {
		return s, true
	}
	return nil, false
}

// Device returns the device store.
func (idx *DirectoryIndex) Device() *DirectoryStore { return idx.device }

// Switches returns the switch stores keyed by node id.
func (idx *DirectoryIndex) Switches() map[NodeID]*DirectoryStore { return idx.switches }
