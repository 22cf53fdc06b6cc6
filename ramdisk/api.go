// Package ramdisk provides an in-memory physical.Layer for tests, with
// per-block armed read and write failures to exercise error paths without a
// real device.
package ramdisk

import (
	"sync"

	"github.com/prasadlvi/vdo/blunder"
)

// RAMDisk implements physical.Layer over a memory buffer.
type RAMDisk struct {
	sync.Mutex
	blockSize         uint64
	blockCount        uint64
	data              []byte
	armedReadFailures map[uint64]error // key: block number
	armedWriteFailure map[uint64]error // key: block number
}

// New returns a zero-filled RAMDisk of blockCount blocks of blockSize bytes.
func New(blockSize uint64, blockCount uint64) (ramDisk *RAMDisk) {
	ramDisk = &RAMDisk{
		blockSize:         blockSize,
		blockCount:        blockCount,
		data:              make([]byte, blockSize*blockCount),
		armedReadFailures: make(map[uint64]error),
		armedWriteFailure: make(map[uint64]error),
	}
	return
}

// ArmReadFailure makes every subsequent read touching block fail with err
// until DisarmReadFailure is called.
func (ramDisk *RAMDisk) ArmReadFailure(block uint64, err error) {
	ramDisk.Lock()
	ramDisk.armedReadFailures[block] = err
	ramDisk.Unlock()
}

// DisarmReadFailure removes a previously armed read failure.
func (ramDisk *RAMDisk) DisarmReadFailure(block uint64) {
	ramDisk.Lock()
	delete(ramDisk.armedReadFailures, block)
	ramDisk.Unlock()
}

// ArmWriteFailure makes every subsequent write touching block fail with err
// until DisarmWriteFailure is called.
func (ramDisk *RAMDisk) ArmWriteFailure(block uint64, err error) {
	ramDisk.Lock()
	ramDisk.armedWriteFailure[block] = err
	ramDisk.Unlock()
}

// DisarmWriteFailure removes a previously armed write failure.
func (ramDisk *RAMDisk) DisarmWriteFailure(block uint64) {
	ramDisk.Lock()
	delete(ramDisk.armedWriteFailure, block)
	ramDisk.Unlock()
}

// BlockSize returns the size of each block in bytes.
func (ramDisk *RAMDisk) BlockSize() (blockSize uint64) {
	blockSize = ramDisk.blockSize
	return
}

// BlockCount returns the number of blocks presented.
func (ramDisk *RAMDisk) BlockCount() (blockCount uint64) {
	blockCount = ramDisk.blockCount
	return
}

// ReadBlocks reads blockCount blocks starting at startBlock into buf,
// delivering the result via callback on a fresh goroutine.
func (ramDisk *RAMDisk) ReadBlocks(startBlock uint64, blockCount uint64, buf []byte, callback func(err error)) {
	go func() {
		var (
			err error
		)

		ramDisk.Lock()

		err = ramDisk.checkExtent(startBlock, blockCount, buf)
		if nil == err {
			for block := startBlock; block < (startBlock + blockCount); block++ {
				armedErr, armed := ramDisk.armedReadFailures[block]
				if armed {
					err = armedErr
					break
				}
			}
		}
		if nil == err {
			copy(buf, ramDisk.data[startBlock*ramDisk.blockSize:(startBlock+blockCount)*ramDisk.blockSize])
		}

		ramDisk.Unlock()

		callback(err)
	}()
}

// WriteBlocks writes blockCount blocks starting at startBlock from buf,
// delivering the result via callback on a fresh goroutine.
func (ramDisk *RAMDisk) WriteBlocks(startBlock uint64, blockCount uint64, buf []byte, callback func(err error)) {
	go func() {
		var (
			err error
		)

		ramDisk.Lock()

		err = ramDisk.checkExtent(startBlock, blockCount, buf)
		if nil == err {
			for block := startBlock; block < (startBlock + blockCount); block++ {
				armedErr, armed := ramDisk.armedWriteFailure[block]
				if armed {
					err = armedErr
					break
				}
			}
		}
		if nil == err {
			copy(ramDisk.data[startBlock*ramDisk.blockSize:(startBlock+blockCount)*ramDisk.blockSize], buf)
		}

		ramDisk.Unlock()

		callback(err)
	}()
}

// PutBlock synchronously installs the contents of one block. Intended for
// test setup (formatting journals and super blocks without callback plumbing).
func (ramDisk *RAMDisk) PutBlock(block uint64, blockBuf []byte) (err error) {
	ramDisk.Lock()
	defer ramDisk.Unlock()

	err = ramDisk.checkExtent(block, 1, blockBuf)
	if nil != err {
		return
	}

	copy(ramDisk.data[block*ramDisk.blockSize:(block+1)*ramDisk.blockSize], blockBuf)

	err = nil
	return
}

// GetBlock synchronously returns a copy of the contents of one block.
func (ramDisk *RAMDisk) GetBlock(block uint64) (blockBuf []byte, err error) {
	ramDisk.Lock()
	defer ramDisk.Unlock()

	if block >= ramDisk.blockCount {
		err = blunder.NewError(blunder.OutOfRangeError, "block %v exceeds blockCount (%v)", block, ramDisk.blockCount)
		return
	}

	blockBuf = make([]byte, ramDisk.blockSize)
	copy(blockBuf, ramDisk.data[block*ramDisk.blockSize:(block+1)*ramDisk.blockSize])

	err = nil
	return
}

func (ramDisk *RAMDisk) checkExtent(startBlock uint64, blockCount uint64, buf []byte) (err error) {
	if (startBlock + blockCount) > ramDisk.blockCount {
		err = blunder.NewError(blunder.OutOfRangeError, "extent [%v,%v) exceeds blockCount (%v)", startBlock, startBlock+blockCount, ramDisk.blockCount)
		return
	}
	if uint64(len(buf)) < (blockCount * ramDisk.blockSize) {
		err = blunder.NewError(blunder.InvalidArgError, "buf holds only %v bytes for a %v block transfer", len(buf), blockCount)
		return
	}
	err = nil
	return
}
