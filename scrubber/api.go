// Package scrubber rebuilds slab reference counts after an unclean shutdown
// by replaying each slab's journal. Slabs are scrubbed one at a time, high
// priority queue first; the only suspension point between slabs is the VIO
// pool acquisition, so Suspend() takes effect once the in-flight slab
// completes. A journal read or decode failure escalates into read-only mode
// and halts the scrubber with the first error retained.
package scrubber

import (
	"sync"
	"sync/atomic"

	"github.com/prasadlvi/vdo/blunder"
	"github.com/prasadlvi/vdo/halter"
	"github.com/prasadlvi/vdo/ilayout"
	"github.com/prasadlvi/vdo/logger"
	"github.com/prasadlvi/vdo/physical"
	"github.com/prasadlvi/vdo/slab"
	"github.com/prasadlvi/vdo/stats"
	"github.com/prasadlvi/vdo/viopool"
)

// AdminState is the scrubber's lifecycle state.
type AdminState uint8

const (
	AdminStateQuiescent AdminState = iota
	AdminStateScrubbing
	AdminStateSuspending
	AdminStateSuspended
	AdminStateStopped
)

// ReadOnlyNotifier receives the escalation when the scrubber encounters an
// error it cannot recover from.
type ReadOnlyNotifier interface {
	EnterReadOnlyMode(err error)
}

// Waiter is notified (with nil) each time a slab finishes scrubbing and (with
// the retained first error) when the scrubber halts.
type Waiter func(err error)

// Scrubber drives the recovery of queued slabs.
type Scrubber struct {
	sync.Mutex
	layer           physical.Layer
	pool            *viopool.Pool
	nonce           uint64
	entriesPerBlock uint16
	notifier        ReadOnlyNotifier

	adminState        AdminState
	highPriorityOnly  bool
	highPrioritySlabs []*slab.Slab // FIFO
	slabs             []*slab.Slab // FIFO
	waiters           []Waiter
	slabCount         uint64 // atomic; slabs enqueued but not yet rebuilt
	firstErr          error

	current          *slab.Slab
	currentEntry     *viopool.Entry
	nextJournalBlock uint64 // index within current's journal
}

// NewScrubber returns a Quiescent scrubber replaying journal blocks bearing
// nonce, drawing its VIOs from pool.
func NewScrubber(layer physical.Layer, pool *viopool.Pool, nonce uint64, entriesPerBlock uint16, notifier ReadOnlyNotifier) (scrubber *Scrubber) {
	scrubber = &Scrubber{
		layer:             layer,
		pool:              pool,
		nonce:             nonce,
		entriesPerBlock:   entriesPerBlock,
		notifier:          notifier,
		adminState:        AdminStateQuiescent,
		highPrioritySlabs: make([]*slab.Slab, 0),
		slabs:             make([]*slab.Slab, 0),
		waiters:           make([]Waiter, 0),
	}
	return
}

// Enqueue queues s for scrubbing. Permitted in any admin state; a running
// scrubber picks the slab up the next time it looks for work, a cleanly
// stopped one on the next Start().
func (scrubber *Scrubber) Enqueue(s *slab.Slab, highPriority bool) {
	scrubber.Lock()
	if highPriority {
		s.SetStatus(slab.StatusRequiresHighPriorityScrubbing)
		scrubber.highPrioritySlabs = append(scrubber.highPrioritySlabs, s)
	} else {
		s.SetStatus(slab.StatusRequiresScrubbing)
		scrubber.slabs = append(scrubber.slabs, s)
	}
	atomic.AddUint64(&scrubber.slabCount, 1)
	scrubber.Unlock()
}

// Start begins scrubbing. Valid in the Quiescent state and again after a
// clean stop, picking up slabs enqueued since. A scrubber halted by an error
// stays stopped.
func (scrubber *Scrubber) Start() (err error) {
	var (
		startable bool
	)

	scrubber.Lock()
	startable = (AdminStateQuiescent == scrubber.adminState) ||
		((AdminStateStopped == scrubber.adminState) && (nil == scrubber.firstErr))
	if !startable {
		scrubber.Unlock()
		err = blunder.NewError(blunder.InvalidArgError, "Start() called in admin state %v", scrubber.adminState)
		return
	}
	scrubber.adminState = AdminStateScrubbing
	scrubber.Unlock()

	scrubber.processNextSlab()

	err = nil
	return
}

// Suspend requests that scrubbing pause. If a slab is in flight the
// transition is deferred until that slab completes; Suspend returns without
// waiting. A Quiescent, Suspended, or Stopped scrubber is left unchanged.
func (scrubber *Scrubber) Suspend() {
	scrubber.Lock()
	if AdminStateScrubbing == scrubber.adminState {
		if nil == scrubber.current {
			scrubber.adminState = AdminStateSuspended
		} else {
			scrubber.adminState = AdminStateSuspending
		}
	}
	scrubber.Unlock()
}

// Resume continues scrubbing from the Suspended state.
func (scrubber *Scrubber) Resume() (err error) {
	scrubber.Lock()
	if AdminStateSuspended != scrubber.adminState {
		scrubber.Unlock()
		err = blunder.NewError(blunder.InvalidArgError, "Resume() called in admin state %v", scrubber.adminState)
		return
	}
	scrubber.adminState = AdminStateScrubbing
	scrubber.Unlock()

	scrubber.processNextSlab()

	err = nil
	return
}

// RegisterWaiter registers waiter for completion notifications. If the
// scrubber has already stopped, waiter is invoked immediately with the
// retained first error (nil after a clean stop).
func (scrubber *Scrubber) RegisterWaiter(waiter Waiter) {
	scrubber.Lock()
	if AdminStateStopped == scrubber.adminState {
		firstErr := scrubber.firstErr
		scrubber.Unlock()
		waiter(firstErr)
		return
	}
	scrubber.waiters = append(scrubber.waiters, waiter)
	scrubber.Unlock()
}

// GetRecoveringCount returns the number of slabs enqueued but not yet
// rebuilt. Safe to call from any goroutine.
func (scrubber *Scrubber) GetRecoveringCount() (count uint64) {
	count = atomic.LoadUint64(&scrubber.slabCount)
	return
}

// IsScrubbing returns whether the scrubber is actively working (including a
// pending suspension that has not yet taken effect).
func (scrubber *Scrubber) IsScrubbing() (isScrubbing bool) {
	scrubber.Lock()
	isScrubbing = (AdminStateScrubbing == scrubber.adminState) || (AdminStateSuspending == scrubber.adminState)
	scrubber.Unlock()
	return
}

// AdminState returns the scrubber's current lifecycle state.
func (scrubber *Scrubber) AdminState() (adminState AdminState) {
	scrubber.Lock()
	adminState = scrubber.adminState
	scrubber.Unlock()
	return
}

// SetHighPriorityOnly restricts (or re-permits) the scrubber to the high
// priority queue. With it set, pending normal priority slabs are left
// untouched and the scrubber stops once the high priority queue drains.
func (scrubber *Scrubber) SetHighPriorityOnly(highPriorityOnly bool) {
	scrubber.Lock()
	scrubber.highPriorityOnly = highPriorityOnly
	scrubber.Unlock()
}

// FirstError returns the error retained from the first failure, if any.
func (scrubber *Scrubber) FirstError() (err error) {
	scrubber.Lock()
	err = scrubber.firstErr
	scrubber.Unlock()
	return
}

// processNextSlab selects the next slab to scrub, honoring a pending
// suspension, and acquires a VIO for it. Runs between slabs only; never holds
// the lock across pool or I/O calls.
func (scrubber *Scrubber) processNextSlab() {
	var (
		next *slab.Slab
	)

	scrubber.Lock()

	if AdminStateSuspending == scrubber.adminState {
		scrubber.adminState = AdminStateSuspended
		scrubber.Unlock()
		return
	}
	if AdminStateScrubbing != scrubber.adminState {
		scrubber.Unlock()
		return
	}

	if 0 < len(scrubber.highPrioritySlabs) {
		next = scrubber.highPrioritySlabs[0]
		scrubber.highPrioritySlabs = scrubber.highPrioritySlabs[1:]
	} else if !scrubber.highPriorityOnly && (0 < len(scrubber.slabs)) {
		next = scrubber.slabs[0]
		scrubber.slabs = scrubber.slabs[1:]
	}

	if nil == next {
		scrubber.adminState = AdminStateStopped
		waiters := scrubber.waiters
		scrubber.waiters = nil
		firstErr := scrubber.firstErr
		scrubber.Unlock()
		for _, waiter := range waiters {
			waiter(firstErr)
		}
		return
	}

	scrubber.current = next
	scrubber.nextJournalBlock = 0
	next.SetStatus(slab.StatusRebuilding)

	scrubber.Unlock()

	scrubber.pool.Acquire(func(entry *viopool.Entry) {
		scrubber.Lock()
		scrubber.currentEntry = entry
		scrubber.Unlock()
		entry.VIO().ErrorHandler = scrubber.handleBlockError
		scrubber.readNextJournalBlock()
	})
}

// readNextJournalBlock issues the read of the current slab's next journal
// block, or completes the slab if the journal is exhausted.
func (scrubber *Scrubber) readNextJournalBlock() {
	scrubber.Lock()

	if scrubber.nextJournalBlock == scrubber.current.JournalBlockCount {
		scrubber.Unlock()
		scrubber.finishCurrentSlab()
		return
	}

	physicalBlock := scrubber.current.JournalOrigin + scrubber.nextJournalBlock
	entry := scrubber.currentEntry

	scrubber.Unlock()

	halter.Trigger(halter.ScrubberJournalReadEntry)
	stats.IncrementOperations(&stats.ScrubJournalBlockOps)

	entry.VIO().IssueRead(physicalBlock, 1, scrubber.applyJournalBlock)
}

// applyJournalBlock decodes one journal block and applies every entry whose
// journal point lies strictly after the slab's lastApplied point. Stale
// blocks, those bearing another incarnation's nonce or never written, are
// skipped whole.
func (scrubber *Scrubber) applyJournalBlock(err error) {
	var (
		entries []ilayout.SlabJournalEntryV1Struct
		header  *ilayout.SlabJournalBlockHeaderV1Struct
	)

	if nil != err {
		scrubber.handleBlockError(err)
		return
	}

	halter.Trigger(halter.ScrubberJournalReadExit)

	scrubber.Lock()
	current := scrubber.current
	entry := scrubber.currentEntry
	scrubber.Unlock()

	header, entries, err = ilayout.UnmarshalSlabJournalBlockV1(entry.Buffer())
	if nil != err {
		scrubber.handleBlockError(err)
		return
	}

	if (header.Nonce != scrubber.nonce) || (0 == header.SequenceNumber) {
		// not written by this incarnation's journal
		scrubber.Lock()
		scrubber.nextJournalBlock++
		scrubber.Unlock()
		scrubber.readNextJournalBlock()
		return
	}

	point := ilayout.JournalPointStruct{SequenceNumber: header.SequenceNumber, EntryCount: 0}
	lastApplied := current.LastApplied()

	for entryIndex := range entries {
		point.EntryCount = uint16(entryIndex)
		if lastApplied.Before(&point) {
			halter.Trigger(halter.ScrubberApplyEntryEntry)
			err = current.ApplyJournalEntry(&entries[entryIndex], &point)
			if nil != err {
				scrubber.handleBlockError(err)
				return
			}
			stats.IncrementOperations(&stats.ScrubJournalEntryOps)
		} else {
			stats.IncrementOperations(&stats.ScrubEntrySkipOps)
		}
	}

	scrubber.Lock()
	scrubber.nextJournalBlock++
	scrubber.Unlock()

	scrubber.readNextJournalBlock()
}

// finishCurrentSlab marks the slab rebuilt, returns the VIO, and wakes every
// registered waiter before moving on.
func (scrubber *Scrubber) finishCurrentSlab() {
	scrubber.Lock()

	finished := scrubber.current
	entry := scrubber.currentEntry
	scrubber.current = nil
	scrubber.currentEntry = nil

	waiters := scrubber.waiters
	scrubber.waiters = nil

	scrubber.Unlock()

	finished.SetStatus(slab.StatusRebuilt)

	scrubber.pool.Release(entry)

	atomic.AddUint64(&scrubber.slabCount, ^uint64(0))
	stats.IncrementOperations(&stats.ScrubSlabOps)

	logger.Tracef("scrubber: slab %v rebuilt (%v remaining)", finished.SlabNumber, scrubber.GetRecoveringCount())

	for _, waiter := range waiters {
		waiter(nil)
	}

	scrubber.processNextSlab()
}

// handleBlockError is the scrubber's response to a journal read or decode
// failure: escalate to read-only mode, retain the first error, halt, and wake
// every waiter with that error. Recovery cannot be trusted past this point.
func (scrubber *Scrubber) handleBlockError(err error) {
	stats.IncrementOperations(&stats.ScrubFailureOps)

	scrubber.Lock()

	if nil == scrubber.firstErr {
		scrubber.firstErr = err
	}
	firstErr := scrubber.firstErr

	failed := scrubber.current
	entry := scrubber.currentEntry
	scrubber.current = nil
	scrubber.currentEntry = nil

	scrubber.adminState = AdminStateStopped

	waiters := scrubber.waiters
	scrubber.waiters = nil

	scrubber.Unlock()

	if nil != failed {
		logger.ErrorfWithError(err, "scrubber: halting; slab %v cannot be recovered", failed.SlabNumber)
	} else {
		logger.ErrorfWithError(err, "scrubber: halting")
	}

	scrubber.notifier.EnterReadOnlyMode(firstErr)

	if nil != entry {
		scrubber.pool.Release(entry)
	}

	for _, waiter := range waiters {
		waiter(firstErr)
	}
}
