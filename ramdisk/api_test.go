package ramdisk

import (
	"bytes"
	"testing"

	"github.com/prasadlvi/vdo/blunder"
)

func TestAPI(t *testing.T) {
	var (
		err      error
		errChan  chan error
		readBuf  []byte
		ramDisk  *RAMDisk
		writeBuf []byte
	)

	errChan = make(chan error, 1)

	ramDisk = New(512, 8)

	if 512 != ramDisk.BlockSize() {
		t.Fatalf("BlockSize() returned %v", ramDisk.BlockSize())
	}
	if 8 != ramDisk.BlockCount() {
		t.Fatalf("BlockCount() returned %v", ramDisk.BlockCount())
	}

	writeBuf = bytes.Repeat([]byte{0xA5}, 2*512)

	ramDisk.WriteBlocks(3, 2, writeBuf, func(err error) { errChan <- err })
	err = <-errChan
	if nil != err {
		t.Fatalf("WriteBlocks() failed: %v", err)
	}

	readBuf = make([]byte, 2*512)
	ramDisk.ReadBlocks(3, 2, readBuf, func(err error) { errChan <- err })
	err = <-errChan
	if nil != err {
		t.Fatalf("ReadBlocks() failed: %v", err)
	}
	if !bytes.Equal(writeBuf, readBuf) {
		t.Fatalf("ReadBlocks() returned mismatched data")
	}

	// out-of-range extents are rejected

	ramDisk.ReadBlocks(7, 2, readBuf, func(err error) { errChan <- err })
	err = <-errChan
	if blunder.IsNot(err, blunder.OutOfRangeError) {
		t.Fatalf("ReadBlocks() past the end returned %v", err)
	}

	// armed read failures fire on any extent touching the block

	armedErr := blunder.NewError(blunder.IOError, "armed read failure")
	ramDisk.ArmReadFailure(4, armedErr)

	ramDisk.ReadBlocks(3, 2, readBuf, func(err error) { errChan <- err })
	err = <-errChan
	if blunder.IsNot(err, blunder.IOError) {
		t.Fatalf("ReadBlocks() touching an armed block returned %v", err)
	}

	ramDisk.ReadBlocks(3, 1, readBuf, func(err error) { errChan <- err })
	err = <-errChan
	if nil != err {
		t.Fatalf("ReadBlocks() avoiding the armed block failed: %v", err)
	}

	ramDisk.DisarmReadFailure(4)
	ramDisk.ReadBlocks(3, 2, readBuf, func(err error) { errChan <- err })
	err = <-errChan
	if nil != err {
		t.Fatalf("ReadBlocks() after DisarmReadFailure() failed: %v", err)
	}

	// armed write failures leave the data untouched

	ramDisk.ArmWriteFailure(0, armedErr)
	ramDisk.WriteBlocks(0, 1, writeBuf, func(err error) { errChan <- err })
	err = <-errChan
	if blunder.IsNot(err, blunder.IOError) {
		t.Fatalf("WriteBlocks() to an armed block returned %v", err)
	}

	blockBuf, err := ramDisk.GetBlock(0)
	if nil != err {
		t.Fatalf("GetBlock() failed: %v", err)
	}
	if !bytes.Equal(make([]byte, 512), blockBuf) {
		t.Fatalf("failed WriteBlocks() unexpectedly modified block 0")
	}

	// PutBlock()/GetBlock() round-trip

	err = ramDisk.PutBlock(7, writeBuf[:512])
	if nil != err {
		t.Fatalf("PutBlock() failed: %v", err)
	}
	blockBuf, err = ramDisk.GetBlock(7)
	if nil != err {
		t.Fatalf("GetBlock() failed: %v", err)
	}
	if !bytes.Equal(writeBuf[:512], blockBuf) {
		t.Fatalf("PutBlock()/GetBlock() round-trip failed")
	}
}
