// Package zone holds the per-thread state of the physical (allocation) zones
// and coordinates the volume-wide escalation into read-only mode. Each zone
// thread owns a ThreadData it may consult without locking; cross-thread
// visibility of the read-only flags goes through sync/atomic.
package zone

import (
	"sync"
	"sync/atomic"

	"github.com/prasadlvi/vdo/blunder"
	"github.com/prasadlvi/vdo/halter"
	"github.com/prasadlvi/vdo/ilayout"
	"github.com/prasadlvi/vdo/logger"
	"github.com/prasadlvi/vdo/physical"
	"github.com/prasadlvi/vdo/stats"
)

// ThreadConfig sizes the zone thread pool and its allocation rotation.
type ThreadConfig struct {
	PhysicalZoneCount           uint32
	BlocksPerAllocationRotation uint64
}

// ThreadData is one zone thread's private state. Only the owning thread
// touches the allocation cursor; the read-only flags are written by the
// escalating goroutine and read by the owner via atomics.
type ThreadData struct {
	threadID               uint32
	nextAllocationZone     uint32
	allocationCount        uint64
	isReadOnly             uint32 // atomic
	isEnteringReadOnlyMode uint32 // atomic
	superBlockAccessCount  uint64 // guarded by the Domain lock
}

// Domain is the set of zone ThreadData's plus the read-only escalation state.
type Domain struct {
	sync.Mutex
	layer      physical.Layer
	config     ThreadConfig
	superBlock *ilayout.SuperBlockV1Struct
	threads    []*ThreadData

	enteringReadOnlyMode bool
	readOnly             bool
	readOnlyError        error
	readOnlyWaiters      []func()
	escalationDeferred   bool // escalation parked behind in-flight super block I/O
	escalationPersist    bool
}

// NewDomain builds one ThreadData per zone thread. superBlock supplies the
// volume's identity and is rewritten in place when read-only mode is
// persisted; its ReadOnly flag seeds the initial state.
func NewDomain(layer physical.Layer, config ThreadConfig, threadCount uint32, superBlock *ilayout.SuperBlockV1Struct) (domain *Domain, err error) {
	if 0 == config.PhysicalZoneCount {
		err = blunder.NewError(blunder.InvalidArgError, "NewDomain() called with PhysicalZoneCount == 0")
		return
	}
	if 0 == threadCount {
		err = blunder.NewError(blunder.InvalidArgError, "NewDomain() called with threadCount == 0")
		return
	}

	domain = &Domain{
		layer:           layer,
		config:          config,
		superBlock:      superBlock,
		threads:         make([]*ThreadData, threadCount),
		readOnly:        (0 != superBlock.ReadOnly),
		readOnlyWaiters: make([]func(), 0),
	}

	if domain.readOnly {
		domain.readOnlyError = blunder.NewError(blunder.ReadOnlyError, "volume was read-only at start-up (errno %v)", superBlock.ReadOnlyErrno)
	}

	for threadID := uint32(0); threadID < threadCount; threadID++ {
		threadData := &ThreadData{
			threadID:           threadID,
			nextAllocationZone: threadID % config.PhysicalZoneCount,
		}
		if domain.readOnly {
			threadData.isReadOnly = 1
		}
		domain.threads[threadID] = threadData
	}

	err = nil
	return
}

// GetNextAllocationZone returns the zone the thread should allocate from,
// rotating to the next zone after BlocksPerAllocationRotation allocations.
// Owner thread only; takes no lock.
func (domain *Domain) GetNextAllocationZone(threadID uint32) (zoneNumber uint32) {
	threadData := domain.threads[threadID]

	if 1 < domain.config.PhysicalZoneCount {
		if threadData.allocationCount < domain.config.BlocksPerAllocationRotation {
			threadData.allocationCount++
		} else {
			threadData.allocationCount = 1
			threadData.nextAllocationZone++
			if threadData.nextAllocationZone == domain.config.PhysicalZoneCount {
				threadData.nextAllocationZone = 0
			}
			stats.IncrementOperations(&stats.AllocZoneRotateOps)
		}
	}

	zoneNumber = threadData.nextAllocationZone
	return
}

// IsReadOnly returns whether the volume is read-only as seen by threadID.
func (domain *Domain) IsReadOnly(threadID uint32) (isReadOnly bool) {
	isReadOnly = (0 != atomic.LoadUint32(&domain.threads[threadID].isReadOnly))
	return
}

// ReadOnlyError returns the error that forced read-only mode, if any.
func (domain *Domain) ReadOnlyError() (err error) {
	domain.Lock()
	err = domain.readOnlyError
	domain.Unlock()
	return
}

// BeginSuperBlockAccess brackets the start of routine super block I/O by
// threadID. While any access is in flight a read-only escalation is deferred.
func (domain *Domain) BeginSuperBlockAccess(threadID uint32, write bool) {
	domain.Lock()
	domain.threads[threadID].superBlockAccessCount++
	domain.Unlock()

	if write {
		stats.IncrementOperations(&stats.SuperBlockWriteOps)
	} else {
		stats.IncrementOperations(&stats.SuperBlockReadOps)
	}
}

// FinishSuperBlockAccess ends a bracket opened by BeginSuperBlockAccess. The
// final finish resumes an escalation deferred behind the in-flight I/O.
func (domain *Domain) FinishSuperBlockAccess(threadID uint32) {
	var (
		resumeEscalation bool
		resumePersist    bool
	)

	domain.Lock()

	threadData := domain.threads[threadID]
	if 0 == threadData.superBlockAccessCount {
		domain.Unlock()
		logger.PanicfWithError(blunder.NewError(blunder.InvalidArgError, "thread %v has no super block access in flight", threadID), "zone.FinishSuperBlockAccess() imbalance")
	}
	threadData.superBlockAccessCount--

	if domain.escalationDeferred && (0 == domain.superBlockAccessesInFlight()) {
		domain.escalationDeferred = false
		resumeEscalation = true
		resumePersist = domain.escalationPersist
	}

	domain.Unlock()

	if resumeEscalation {
		domain.completeReadOnlyTransition(resumePersist)
	}
}

// MakeReadOnly forces the volume into read-only mode: mark every thread as
// entering, drain in-flight super block I/O, optionally persist the flag and
// errno to the super block (best effort), then set the read-only flags and
// wake every registered waiter exactly once. Never blocks: a persisting
// transition finishes from the super block write's completion callback, and
// WaitUntilNotEnteringReadOnlyMode() observes that completion. Idempotent
// once an escalation has begun; the first error is the one retained.
func (domain *Domain) MakeReadOnly(errorCode error, persist bool) {
	domain.Lock()

	if domain.readOnly || domain.enteringReadOnlyMode {
		domain.Unlock()
		return
	}

	domain.readOnlyError = errorCode
	domain.enteringReadOnlyMode = true
	for _, threadData := range domain.threads {
		atomic.StoreUint32(&threadData.isEnteringReadOnlyMode, 1)
	}

	logger.ErrorfWithError(errorCode, "zone: entering read-only mode")

	if 0 != domain.superBlockAccessesInFlight() {
		domain.escalationDeferred = true
		domain.escalationPersist = persist
		domain.Unlock()
		return
	}

	domain.Unlock()

	domain.completeReadOnlyTransition(persist)
}

// EnterReadOnlyMode satisfies the scrubber's notifier: escalate and persist.
func (domain *Domain) EnterReadOnlyMode(err error) {
	domain.MakeReadOnly(err, true)
}

// WaitUntilNotEnteringReadOnlyMode invokes waiter once the domain is not in
// the middle of an escalation: immediately if quiescent (or already fully
// read-only), otherwise from the goroutine completing the transition.
func (domain *Domain) WaitUntilNotEnteringReadOnlyMode(waiter func()) {
	domain.Lock()
	if domain.enteringReadOnlyMode {
		domain.readOnlyWaiters = append(domain.readOnlyWaiters, waiter)
		domain.Unlock()
		return
	}
	domain.Unlock()
	waiter()
}

// superBlockAccessesInFlight totals the open access brackets. Caller holds
// the Domain lock.
func (domain *Domain) superBlockAccessesInFlight() (inFlight uint64) {
	for _, threadData := range domain.threads {
		inFlight += threadData.superBlockAccessCount
	}
	return
}

// completeReadOnlyTransition runs the persist and flag-setting phases of the
// escalation. When persisting, the flags are forced from the super block
// write's completion callback rather than by blocking on it. Never called
// with the Domain lock held.
func (domain *Domain) completeReadOnlyTransition(persist bool) {
	if persist {
		domain.persistReadOnlyFlag(domain.forceReadOnlyFlags)
		return
	}

	domain.forceReadOnlyFlags()
}

// forceReadOnlyFlags sets the volume-wide and per-thread read-only flags and
// wakes the waiters. Never called with the Domain lock held.
func (domain *Domain) forceReadOnlyFlags() {
	domain.Lock()

	domain.readOnly = true
	domain.enteringReadOnlyMode = false
	for _, threadData := range domain.threads {
		atomic.StoreUint32(&threadData.isReadOnly, 1)
		atomic.StoreUint32(&threadData.isEnteringReadOnlyMode, 0)
	}

	waiters := domain.readOnlyWaiters
	domain.readOnlyWaiters = make([]func(), 0)

	domain.Unlock()

	stats.IncrementOperations(&stats.ReadOnlyEnterOps)

	for _, waiter := range waiters {
		waiter()
	}
}

// persistReadOnlyFlag rewrites the super block with ReadOnly set and the
// escalation errno recorded. A write failure is logged and otherwise ignored.
// done runs exactly once, from the write's completion callback (or directly
// if the write could not be issued).
func (domain *Domain) persistReadOnlyFlag(done func()) {
	var (
		err      error
		superBuf []byte
	)

	domain.Lock()
	domain.superBlock.ReadOnly = 1
	domain.superBlock.ReadOnlyErrno = uint32(blunder.Errno(domain.readOnlyError))
	superBuf, err = domain.superBlock.MarshalSuperBlockV1()
	domain.Unlock()

	if nil != err {
		logger.ErrorfWithError(err, "zone: unable to marshal super block; read-only mode not persisted")
		done()
		return
	}

	halter.Trigger(halter.ZoneSuperBlockWriteEntry)

	domain.layer.WriteBlocks(0, 1, superBuf, func(writeErr error) {
		halter.Trigger(halter.ZoneSuperBlockWriteExit)
		if nil != writeErr {
			logger.ErrorfWithError(writeErr, "zone: super block write failed; read-only mode not persisted")
		} else {
			stats.IncrementOperations(&stats.SuperBlockWriteOps)
		}
		done()
	})
}
