// Package physical presents block storage as fixed-size blocks with
// asynchronous reads and writes. Completion callbacks are invoked exactly
// once, possibly on a different goroutine than the issuer's.
package physical

import (
	"os"

	"github.com/prasadlvi/vdo/blunder"
)

// Layer is the abstraction of the underlying block device. Offsets and
// lengths are expressed in blocks of BlockSize() bytes.
type Layer interface {
	BlockSize() (blockSize uint64)
	BlockCount() (blockCount uint64)
	ReadBlocks(startBlock uint64, blockCount uint64, buf []byte, callback func(err error))
	WriteBlocks(startBlock uint64, blockCount uint64, buf []byte, callback func(err error))
}

// FileLayer implements Layer atop a regular file or block device special file.
type FileLayer struct {
	file       *os.File
	blockSize  uint64
	blockCount uint64
}

// NewFileLayer opens path and presents it as blockCount blocks of blockSize
// bytes. The file's current size must be an exact multiple of blockSize.
func NewFileLayer(path string, blockSize uint64) (fileLayer *FileLayer, err error) {
	var (
		file     *os.File
		fileInfo os.FileInfo
	)

	if 0 == blockSize {
		err = blunder.NewError(blunder.InvalidArgError, "NewFileLayer(path=\"%v\",) called with blockSize == 0", path)
		return
	}

	file, err = os.OpenFile(path, os.O_RDWR, 0)
	if nil != err {
		err = blunder.AddError(err, blunder.IOError)
		return
	}

	fileInfo, err = file.Stat()
	if nil != err {
		_ = file.Close()
		err = blunder.AddError(err, blunder.IOError)
		return
	}

	if 0 != (uint64(fileInfo.Size()) % blockSize) {
		_ = file.Close()
		err = blunder.NewError(blunder.InvalidArgError, "size of \"%v\" (%v) is not a multiple of blockSize (%v)", path, fileInfo.Size(), blockSize)
		return
	}

	fileLayer = &FileLayer{
		file:       file,
		blockSize:  blockSize,
		blockCount: uint64(fileInfo.Size()) / blockSize,
	}

	err = nil
	return
}

// Close releases the underlying file. No I/O may be in flight.
func (fileLayer *FileLayer) Close() (err error) {
	err = fileLayer.file.Close()
	if nil != err {
		err = blunder.AddError(err, blunder.IOError)
	}
	return
}

// BlockSize returns the size of each block in bytes.
func (fileLayer *FileLayer) BlockSize() (blockSize uint64) {
	blockSize = fileLayer.blockSize
	return
}

// BlockCount returns the number of blocks presented.
func (fileLayer *FileLayer) BlockCount() (blockCount uint64) {
	blockCount = fileLayer.blockCount
	return
}

// ReadBlocks reads blockCount blocks starting at startBlock into buf,
// delivering the result via callback.
func (fileLayer *FileLayer) ReadBlocks(startBlock uint64, blockCount uint64, buf []byte, callback func(err error)) {
	var (
		err error
	)

	err = fileLayer.checkExtent(startBlock, blockCount, buf)
	if nil != err {
		go callback(err)
		return
	}

	go func() {
		_, readErr := fileLayer.file.ReadAt(buf[:blockCount*fileLayer.blockSize], int64(startBlock*fileLayer.blockSize))
		if nil != readErr {
			readErr = blunder.AddError(readErr, blunder.IOError)
		}
		callback(readErr)
	}()
}

// WriteBlocks writes blockCount blocks starting at startBlock from buf,
// delivering the result via callback.
func (fileLayer *FileLayer) WriteBlocks(startBlock uint64, blockCount uint64, buf []byte, callback func(err error)) {
	var (
		err error
	)

	err = fileLayer.checkExtent(startBlock, blockCount, buf)
	if nil != err {
		go callback(err)
		return
	}

	go func() {
		_, writeErr := fileLayer.file.WriteAt(buf[:blockCount*fileLayer.blockSize], int64(startBlock*fileLayer.blockSize))
		if nil != writeErr {
			writeErr = blunder.AddError(writeErr, blunder.IOError)
		}
		callback(writeErr)
	}()
}

func (fileLayer *FileLayer) checkExtent(startBlock uint64, blockCount uint64, buf []byte) (err error) {
	if (startBlock + blockCount) > fileLayer.blockCount {
		err = blunder.NewError(blunder.OutOfRangeError, "extent [%v,%v) exceeds blockCount (%v)", startBlock, startBlock+blockCount, fileLayer.blockCount)
		return
	}
	if uint64(len(buf)) < (blockCount * fileLayer.blockSize) {
		err = blunder.NewError(blunder.InvalidArgError, "buf holds only %v bytes for a %v block transfer", len(buf), blockCount)
		return
	}
	err = nil
	return
}
