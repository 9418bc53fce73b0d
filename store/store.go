// Package store provides a generic set-associative storage primitive built
// on Akita's cache directory and LRU victim-finder. It backs host caches,
// the device directory, and every switch directory with the same tag/set/LRU
// bookkeeping, differing only in the payload type they carry per line.
package store

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Store is a fixed array of sets, each holding up to Associativity entries,
// addressed by 64-bit address and keyed on (tag, set index). Capacity is
// never exceeded silently: Install requires the caller to have checked
// fullness via Victim first.
type Store[V any] struct {
	lineSize int
	numSets  int
	assoc    int

	directory *akitacache.DirectoryImpl
	payload   []V
}

// New creates a Store with the given line size (bytes), number of sets, and
// associativity (ways per set).
func New[V any](lineSize, numSets, assoc int) *Store[V] {
	total := numSets * assoc
	return &Store[V]{
		lineSize: lineSize,
		numSets:  numSets,
		assoc:    assoc,
		directory: akitacache.NewDirectory(
			numSets, assoc, lineSize,
			akitacache.NewLRUVictimFinder(),
		),
		payload: make([]V, total),
	}
}

// LineSize returns the configured line size in bytes.
func (s *Store[V]) LineSize() int { return s.lineSize }

// NumSets returns the number of sets.
func (s *Store[V]) NumSets() int { return s.numSets }

// Associativity returns the number of ways per set.
func (s *Store[V]) Associativity() int { return s.assoc }

// Split decomposes an address into (tag, set index); the block offset is
// discarded since coherence state is tracked at line granularity.
func (s *Store[V]) Split(addr uint64) (tag, set uint64) {
	blockAddr := addr / uint64(s.lineSize)
	set = blockAddr % uint64(s.numSets)
	tag = blockAddr / uint64(s.numSets)
	return tag, set
}

func (s *Store[V]) blockAddr(addr uint64) uint64 {
	return (addr / uint64(s.lineSize)) * uint64(s.lineSize)
}

func (s *Store[V]) index(block *akitacache.Block) int {
	return block.SetID*s.assoc + block.WayID
}

// Lookup returns the payload stored for addr and true if the line is
// resident; otherwise the zero value and false. A successful lookup does
// NOT update LRU order — call Touch for that.
func (s *Store[V]) Lookup(addr uint64) (V, bool) {
	var zero V
	block := s.directory.Lookup(0, s.blockAddr(addr))
	if block == nil || !block.IsValid {
		return zero, false
	}
	return s.payload[s.index(block)], true
}

// Touch promotes the line containing addr to most-recently-used. addr must
// already be resident.
func (s *Store[V]) Touch(addr uint64) {
	block := s.directory.Lookup(0, s.blockAddr(addr))
	if block != nil && block.IsValid {
		s.directory.Visit(block)
	}
}

// Victim reports whether the set that addr maps to is full. If it is, it
// returns the address of the line that would be evicted (the LRU line in
// that set) and true. If the set has room, it returns (0, false) and the
// caller may Install directly.
func (s *Store[V]) Victim(addr uint64) (victimAddr uint64, full bool) {
	block := s.directory.FindVictim(s.blockAddr(addr))
	if block == nil || !block.IsValid {
		return 0, false
	}
	return block.Tag, true
}

// Install inserts addr with payload v and marks it most-recently-used. The
// caller MUST have established, via Victim, that the target set has room
// (either it was never full, or the previous occupant was already Removed).
// Install never silently evicts.
func (s *Store[V]) Install(addr uint64, v V) {
	blockAddr := s.blockAddr(addr)
	block := s.directory.FindVictim(blockAddr)
	if block == nil {
		panic("store: install target set has no victim slot (misconfigured store)")
	}
	if block.IsValid {
		panic("store: install called on a full set without a prior Remove")
	}
	block.Tag = blockAddr
	block.IsValid = true
	block.IsDirty = false
	s.payload[s.index(block)] = v
	s.directory.Visit(block)
}

// Remove deletes the line at addr, if present, and returns its payload.
func (s *Store[V]) Remove(addr uint64) (V, bool) {
	var zero V
	block := s.directory.Lookup(0, s.blockAddr(addr))
	if block == nil || !block.IsValid {
		return zero, false
	}
	v := s.payload[s.index(block)]
	block.IsValid = false
	block.IsDirty = false
	s.payload[s.index(block)] = zero
	return v, true
}

// Contains reports whether addr is currently resident.
func (s *Store[V]) Contains(addr uint64) bool {
	block := s.directory.Lookup(0, s.blockAddr(addr))
	return block != nil && block.IsValid
}

// Entry pairs a resident address with its payload, used for iteration
// (invariant checking, invalidation sweeps).
type Entry[V any] struct {
	Addr    uint64
	Payload V
}

// Entries returns every resident (address, payload) pair across all sets.
// Order is not significant and must not be relied on for determinism beyond
// what the caller imposes (e.g. sorting addresses before use).
func (s *Store[V]) Entries() []Entry[V] {
	var out []Entry[V]
	for _, set := range s.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid {
				out = append(out, Entry[V]{
					Addr:    block.Tag,
					Payload: s.payload[s.index(block)],
				})
			}
		}
	}
	return out
}

// Occupancy returns the number of valid entries in the set that addr maps
// to, and the set's capacity (associativity).
func (s *Store[V]) Occupancy(addr uint64) (used, capacity int) {
	_, set := s.Split(addr)
	capacity = s.assoc
	for _, cacheSet := range s.directory.GetSets() {
		for _, block := range cacheSet.Blocks {
			if block.SetID == int(set) && block.IsValid {
				used++
			}
		}
	}
	return used, capacity
}
