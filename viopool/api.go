// Package viopool provides a bounded pool of VIOs (block I/O carriers) with
// asynchronous acquisition. An Acquire() against an exhausted pool never
// blocks; the caller's continuation is queued and resumed, FIFO, by a later
// Release(). Each pool entry owns a fixed slice of one flat backing buffer
// allocated up front, so transfer buffers are never reallocated.
package viopool

import (
	"sync"

	"github.com/prasadlvi/vdo/blunder"
	"github.com/prasadlvi/vdo/logger"
	"github.com/prasadlvi/vdo/physical"
	"github.com/prasadlvi/vdo/stats"
)

// VIO binds a physical.Layer to one transfer buffer. The zero ErrorHandler
// routes read failures to the issuing callback; a non-nil ErrorHandler
// receives them instead. Release() clears ErrorHandler so a stale handler
// can never see a later borrower's failure.
type VIO struct {
	layer  physical.Layer
	buffer []byte

	// ErrorHandler, when non-nil, receives read failures in place of the
	// IssueRead callback.
	ErrorHandler func(err error)
}

// NewVIO binds layer and buffer into a VIO.
func NewVIO(layer physical.Layer, buffer []byte) (vio *VIO) {
	vio = &VIO{
		layer:  layer,
		buffer: buffer,
	}
	return
}

// Buffer returns the VIO's transfer buffer.
func (vio *VIO) Buffer() (buffer []byte) {
	buffer = vio.buffer
	return
}

// IssueRead reads blockCount blocks at startBlock into the VIO's buffer. On
// success, callback receives nil. On failure, the error goes to ErrorHandler
// if one is set, otherwise to callback.
func (vio *VIO) IssueRead(startBlock uint64, blockCount uint64, callback func(err error)) {
	vio.layer.ReadBlocks(startBlock, blockCount, vio.buffer, func(err error) {
		if (nil != err) && (nil != vio.ErrorHandler) {
			vio.ErrorHandler(err)
			return
		}
		callback(err)
	})
}

// Entry is one pooled VIO plus its buffer slice and the pool's opaque
// per-entry Context.
type Entry struct {
	vio     *VIO
	buffer  []byte
	Context interface{}
}

// VIO returns the entry's VIO.
func (entry *Entry) VIO() (vio *VIO) {
	vio = entry.vio
	return
}

// Buffer returns the entry's slice of the pool's backing buffer.
func (entry *Entry) Buffer() (buffer []byte) {
	buffer = entry.buffer
	return
}

// Constructor builds the VIO for one pool entry out of the entry's slice of
// the backing buffer.
type Constructor func(layer physical.Layer, context interface{}, buffer []byte) (vio *VIO, err error)

// Waiter is an acquisition continuation. It is invoked exactly once with the
// granted entry: synchronously from Acquire() when an entry is available,
// otherwise later from the releasing goroutine.
type Waiter func(entry *Entry)

// Pool is a bounded set of Entry's. busyCount plus the length of the
// available list always equals the pool's capacity.
type Pool struct {
	sync.Mutex
	layer       physical.Layer
	blockSize   uint64
	capacity    uint64
	backing     []byte
	available   []*Entry // FIFO; available[0] is the oldest-inserted
	busyCount   uint64
	waiters     []Waiter // FIFO; waiters[0] is the oldest
	outageCount uint64
}

// NewPool constructs a pool of capacity entries, each owning blockSize bytes
// of a single flat backing buffer, with VIOs built by constructor.
func NewPool(layer physical.Layer, capacity uint64, blockSize uint64, constructor Constructor, context interface{}) (pool *Pool, err error) {
	var (
		entry    *Entry
		entryBuf []byte
		vio      *VIO
	)

	if 0 == capacity {
		err = blunder.NewError(blunder.PoolConstructionError, "NewPool() called with capacity == 0")
		return
	}

	pool = &Pool{
		layer:     layer,
		blockSize: blockSize,
		capacity:  capacity,
		backing:   make([]byte, capacity*blockSize),
		available: make([]*Entry, 0, capacity),
		waiters:   make([]Waiter, 0),
	}

	for i := uint64(0); i < capacity; i++ {
		entryBuf = pool.backing[i*blockSize : (i+1)*blockSize]

		vio, err = constructor(layer, context, entryBuf)
		if nil != err {
			pool = nil
			err = blunder.AddError(err, blunder.PoolConstructionError)
			return
		}

		entry = &Entry{
			vio:     vio,
			buffer:  entryBuf,
			Context: context,
		}

		pool.available = append(pool.available, entry)
	}

	err = nil
	return
}

// Acquire grants the oldest-inserted available entry to waiter. If one is
// available, waiter runs synchronously on the caller's goroutine before
// Acquire returns; otherwise waiter joins the FIFO queue and will run on a
// releasing goroutine. Acquire never blocks.
func (pool *Pool) Acquire(waiter Waiter) {
	var (
		entry *Entry
	)

	pool.Lock()

	if 0 == len(pool.available) {
		pool.waiters = append(pool.waiters, waiter)
		pool.outageCount++
		pool.Unlock()
		stats.IncrementOperations(&stats.VioPoolOutageOps)
		return
	}

	entry = pool.available[0]
	pool.available = pool.available[1:]
	pool.busyCount++

	pool.Unlock()

	stats.IncrementOperations(&stats.VioPoolAcquireOps)

	waiter(entry)
}

// Release returns entry to the pool. If waiters are queued, the entry is
// handed directly to the oldest one (it never transits the available list and
// busyCount is unchanged); otherwise it rejoins the available list. The
// entry's ErrorHandler is cleared either way.
func (pool *Pool) Release(entry *Entry) {
	var (
		waiter Waiter
	)

	entry.vio.ErrorHandler = nil

	pool.Lock()

	if 0 < len(pool.waiters) {
		waiter = pool.waiters[0]
		pool.waiters = pool.waiters[1:]
		pool.Unlock()
		stats.IncrementOperations(&stats.VioPoolHandoffOps)
		waiter(entry)
		return
	}

	pool.available = append(pool.available, entry)
	pool.busyCount--

	pool.Unlock()

	stats.IncrementOperations(&stats.VioPoolReleaseOps)
}

// IsBusy returns whether any entry is currently checked out.
func (pool *Pool) IsBusy() (isBusy bool) {
	pool.Lock()
	isBusy = (0 != pool.busyCount)
	pool.Unlock()
	return
}

// OutageCount returns the number of Acquire() calls that found the pool
// exhausted and had to queue.
func (pool *Pool) OutageCount() (outageCount uint64) {
	pool.Lock()
	outageCount = pool.outageCount
	pool.Unlock()
	return
}

// Destroy tears down the pool. Calling it with entries still checked out or
// waiters still queued is a caller contract violation and panics.
func (pool *Pool) Destroy() {
	pool.Lock()

	if 0 != pool.busyCount {
		pool.Unlock()
		logger.PanicfWithError(blunder.NewError(blunder.DevBusyError, "busyCount == %v", pool.busyCount), "viopool.Destroy() called with entries still checked out")
	}
	if 0 != len(pool.waiters) {
		pool.Unlock()
		logger.PanicfWithError(blunder.NewError(blunder.DevBusyError, "len(waiters) == %v", len(pool.waiters)), "viopool.Destroy() called with waiters still queued")
	}

	pool.available = nil
	pool.backing = nil

	pool.Unlock()
}
