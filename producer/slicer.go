package producer

import (
	"sync"

	"github.com/gluster/changelog/internal/changerec"
	"github.com/gluster/changelog/internal/gfid"
)

// versionTriple holds one monotonic counter per ChangeType (spec.md §3
// InodeVersion / Slice).
type versionTriple [3]uint64

func idx(t changerec.ChangeType) int { return int(t) }

// slice is the process-wide triple of counters, one per ChangeType,
// mutated only by the rollover thread under mu (spec.md §3 Slice).
type slice struct {
	mu      sync.Mutex
	version versionTriple
}

// newSlice starts the slice counters at 1, one ahead of a fresh inode's
// version triple (which starts at 0 in inodeEntry's zero value). The first
// shouldEmit call for any inode then compares 0 against 1 and emits,
// matching gluster's own slice-starts-at-1/iversion-starts-at-0 scheme
// (spec.md §8 S1/S2, InodeVersion invariant: the first fop on an inode
// always records).
func newSlice() *slice {
	return &slice{version: versionTriple{1, 1, 1}}
}

func (s *slice) snapshot() versionTriple {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// advance bumps all three counters, called once per rollover.
func (s *slice) advance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version[0]++
	s.version[1]++
	s.version[2]++
}

// inodeEntry is one arena node in Engine.inodes, addressed by Gfid
// (spec.md §9 REDESIGN FLAGS: "arena-allocated nodes addressed by 64-bit
// indices", here addressed directly by the already-stable Gfid, see
// SPEC_FULL.md §4.1).
type inodeEntry struct {
	mu      sync.Mutex
	version versionTriple
	refs    int
}

// inodeTable is Engine's arena of per-inode version triples, guarded by a
// single RWMutex for the map itself; each entry's own mutex guards its
// version triple so concurrent fops on different inodes don't serialize.
type inodeTable struct {
	mu      sync.RWMutex
	entries map[gfid.Gfid]*inodeEntry
}

func newInodeTable() *inodeTable {
	return &inodeTable{entries: make(map[gfid.Gfid]*inodeEntry)}
}

func (t *inodeTable) getOrCreate(g gfid.Gfid) *inodeEntry {
	t.mu.RLock()
	e, ok := t.entries[g]
	t.mu.RUnlock()
	if ok {
		return e
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[g]; ok {
		return e
	}
	e = &inodeEntry{}
	t.entries[g] = e
	return e
}

// slicer implements the inode-version comparison in spec.md §4.3. shouldEmit
// reports whether a record of type t for inode g should be written, and if
// so advances the inode's counter to the slice's current value for t.
type slicer struct {
	slice  *slice
	inodes *inodeTable
}

func newSlicer(s *slice, inodes *inodeTable) *slicer {
	return &slicer{slice: s, inodes: inodes}
}

// shouldEmit implements spec.md §4.3 steps 2-4 for DATA/METADATA records.
// ENTRY records bypass this entirely (step 1: always emitted).
func (sl *slicer) shouldEmit(t changerec.ChangeType, g gfid.Gfid) bool {
	cur := sl.slice.snapshot()
	e := sl.inodes.getOrCreate(g)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.version[idx(t)] == cur[idx(t)] {
		return false
	}
	e.version[idx(t)] = cur[idx(t)]
	return true
}
