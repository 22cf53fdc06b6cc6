// Package slab models one slab's reference counts during recovery and a
// registry of every slab in the volume keyed by slab number.
package slab

import (
	"fmt"

	"github.com/NVIDIA/sortedmap"

	"github.com/prasadlvi/vdo/blunder"
	"github.com/prasadlvi/vdo/ilayout"
)

// Status tracks a slab's progress through recovery.
type Status uint8

const (
	StatusRequiresScrubbing Status = iota
	StatusRequiresHighPriorityScrubbing
	StatusRebuilding
	StatusRebuilt
)

func (status Status) String() (statusString string) {
	switch status {
	case StatusRequiresScrubbing:
		statusString = "RequiresScrubbing"
	case StatusRequiresHighPriorityScrubbing:
		statusString = "RequiresHighPriorityScrubbing"
	case StatusRebuilding:
		statusString = "Rebuilding"
	case StatusRebuilt:
		statusString = "Rebuilt"
	default:
		statusString = fmt.Sprintf("Status(%d)", uint8(status))
	}
	return
}

// Slab holds the recovery-relevant view of one slab: where its journal lives
// on the physical layer, its in-memory reference counts, and the journal
// point of the last entry already reflected in those counts.
type Slab struct {
	SlabNumber        uint64
	JournalOrigin     uint64 // physical block number of the journal's first block
	JournalBlockCount uint64
	DataBlockCount    uint32

	refCounts   []uint32
	lastApplied ilayout.JournalPointStruct
	status      Status
}

// NewSlab returns a Slab with zeroed reference counts awaiting scrubbing.
func NewSlab(slabNumber uint64, journalOrigin uint64, journalBlockCount uint64, dataBlockCount uint32) (s *Slab) {
	s = &Slab{
		SlabNumber:        slabNumber,
		JournalOrigin:     journalOrigin,
		JournalBlockCount: journalBlockCount,
		DataBlockCount:    dataBlockCount,
		refCounts:         make([]uint32, dataBlockCount),
		status:            StatusRequiresScrubbing,
	}
	return
}

// Status returns the slab's recovery status.
func (s *Slab) Status() (status Status) {
	status = s.status
	return
}

// SetStatus updates the slab's recovery status.
func (s *Slab) SetStatus(status Status) {
	s.status = status
}

// LastApplied returns the journal point of the last entry reflected in the
// slab's reference counts. An invalid point means no entry has been applied.
func (s *Slab) LastApplied() (point ilayout.JournalPointStruct) {
	point = s.lastApplied
	return
}

// SetLastApplied records a recovery starting point, typically loaded from the
// slab's persisted reference-count metadata.
func (s *Slab) SetLastApplied(point ilayout.JournalPointStruct) {
	s.lastApplied = point
}

// RefCount returns the in-memory reference count of one slab block.
func (s *Slab) RefCount(slabBlockNumber uint32) (refCount uint32, err error) {
	if slabBlockNumber >= s.DataBlockCount {
		err = blunder.NewError(blunder.OutOfRangeError, "slabBlockNumber (%v) exceeds DataBlockCount (%v) of slab %v", slabBlockNumber, s.DataBlockCount, s.SlabNumber)
		return
	}
	refCount = s.refCounts[slabBlockNumber]
	err = nil
	return
}

// ApplyJournalEntry replays one journal entry recorded at point against the
// slab's reference counts and advances lastApplied to that point. The caller
// is responsible for only replaying points strictly after LastApplied().
func (s *Slab) ApplyJournalEntry(entry *ilayout.SlabJournalEntryV1Struct, point *ilayout.JournalPointStruct) (err error) {
	if entry.SlabBlockNumber >= s.DataBlockCount {
		err = blunder.NewError(blunder.CorruptJournalError, "entry at %+v of slab %v references block %v beyond DataBlockCount (%v)", *point, s.SlabNumber, entry.SlabBlockNumber, s.DataBlockCount)
		return
	}

	switch entry.Operation {
	case ilayout.SlabJournalEntryOperationRefIncrement:
		s.refCounts[entry.SlabBlockNumber]++
	case ilayout.SlabJournalEntryOperationRefDecrement:
		if 0 == s.refCounts[entry.SlabBlockNumber] {
			err = blunder.NewError(blunder.CorruptJournalError, "entry at %+v of slab %v decrements block %v below zero", *point, s.SlabNumber, entry.SlabBlockNumber)
			return
		}
		s.refCounts[entry.SlabBlockNumber]--
	default:
		err = blunder.NewError(blunder.CorruptJournalError, "entry at %+v of slab %v has invalid Operation (%v)", *point, s.SlabNumber, entry.Operation)
		return
	}

	s.lastApplied = *point

	err = nil
	return
}

// Registry indexes every Slab of the volume by SlabNumber.
type Registry struct {
	tree sortedmap.LLRBTree
}

// NewRegistry returns an empty Registry.
func NewRegistry() (registry *Registry) {
	registry = &Registry{}
	registry.tree = sortedmap.NewLLRBTree(sortedmap.CompareUint64, registry)
	return
}

// Put inserts s; a duplicate SlabNumber is rejected.
func (registry *Registry) Put(s *Slab) (err error) {
	var (
		ok bool
	)

	ok, err = registry.tree.Put(s.SlabNumber, s)
	if nil != err {
		err = blunder.AddError(err, blunder.InvalidArgError)
		return
	}
	if !ok {
		err = blunder.NewError(blunder.InvalidArgError, "slab %v already registered", s.SlabNumber)
		return
	}

	err = nil
	return
}

// GetBySlabNumber returns the registered Slab with the given SlabNumber.
func (registry *Registry) GetBySlabNumber(slabNumber uint64) (s *Slab, ok bool, err error) {
	var (
		value sortedmap.Value
	)

	value, ok, err = registry.tree.GetByKey(slabNumber)
	if (nil != err) || !ok {
		return
	}

	s = value.(*Slab)
	return
}

// Count returns the number of registered slabs.
func (registry *Registry) Count() (count int, err error) {
	count, err = registry.tree.Len()
	return
}

// VisitInOrder invokes visitor for each registered Slab in ascending
// SlabNumber order until visitor returns false or the registry is exhausted.
func (registry *Registry) VisitInOrder(visitor func(s *Slab) (keepGoing bool)) (err error) {
	var (
		count int
		ok    bool
		value sortedmap.Value
	)

	count, err = registry.tree.Len()
	if nil != err {
		return
	}

	for index := 0; index < count; index++ {
		_, value, ok, err = registry.tree.GetByIndex(index)
		if nil != err {
			return
		}
		if !ok {
			err = blunder.NewError(blunder.InvalidArgError, "registry index %v vanished mid-visit", index)
			return
		}
		if !visitor(value.(*Slab)) {
			break
		}
	}

	err = nil
	return
}

// DumpKey implements sortedmap.DumpCallbacks.
func (registry *Registry) DumpKey(key sortedmap.Key) (keyAsString string, err error) {
	keyAsString = fmt.Sprintf("%v", key.(uint64))
	err = nil
	return
}

// DumpValue implements sortedmap.DumpCallbacks.
func (registry *Registry) DumpValue(value sortedmap.Value) (valueAsString string, err error) {
	s := value.(*Slab)
	valueAsString = fmt.Sprintf("{SlabNumber: %v, Status: %v, LastApplied: %+v}", s.SlabNumber, s.status, s.lastApplied)
	err = nil
	return
}
