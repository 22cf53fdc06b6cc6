package ilayout

import (
	"github.com/NVIDIA/cstruct"
	"github.com/creachadair/cityhash"

	"github.com/prasadlvi/vdo/blunder"
)

// LittleEndian - all on-disk cstruct's are serialized in LittleEndian form
var LittleEndian = cstruct.LittleEndian

type globalsStruct struct {
	uint64Size                   uint64
	slabJournalBlockHeaderV1Size uint64
	slabJournalEntryV1Size       uint64
	superBlockV1Size             uint64
}

var globals globalsStruct

func init() {
	var (
		err error
	)

	globals.uint64Size, _, err = cstruct.Examine(uint64(0))
	if nil != err {
		panic(err)
	}

	globals.slabJournalBlockHeaderV1Size, _, err = cstruct.Examine(SlabJournalBlockHeaderV1Struct{})
	if nil != err {
		panic(err)
	}

	globals.slabJournalEntryV1Size, _, err = cstruct.Examine(SlabJournalEntryV1Struct{})
	if nil != err {
		panic(err)
	}

	globals.superBlockV1Size, _, err = cstruct.Examine(SuperBlockV1Struct{})
	if nil != err {
		panic(err)
	}
}

func unmarshalSlabJournalBlockVersion(slabJournalBlockBuf []byte) (slabJournalBlockVersion uint64, err error) {
	_, err = cstruct.Unpack(slabJournalBlockBuf, &slabJournalBlockVersion, LittleEndian)
	if nil != err {
		err = blunder.NewError(blunder.UnpackError, "unable to unmarshal slabJournalBlockVersion: %v", err)
		return
	}

	err = nil
	return
}

func (slabJournalBlockHeaderV1 *SlabJournalBlockHeaderV1Struct) marshalSlabJournalBlockV1(slabJournalEntriesV1 []SlabJournalEntryV1Struct) (slabJournalBlockBuf []byte, err error) {
	var (
		curPos    int
		entryBuf  []byte
		headerBuf []byte
	)

	if SlabJournalBlockVersionV1 != slabJournalBlockHeaderV1.Version {
		err = blunder.NewError(blunder.PackError, "header.Version (%v) is not SlabJournalBlockVersionV1 (%v)", slabJournalBlockHeaderV1.Version, SlabJournalBlockVersionV1)
		return
	}
	if int(slabJournalBlockHeaderV1.EntryCount) != len(slabJournalEntriesV1) {
		err = blunder.NewError(blunder.PackError, "header.EntryCount (%v) does not match len(entries) (%v)", slabJournalBlockHeaderV1.EntryCount, len(slabJournalEntriesV1))
		return
	}
	if slabJournalBlockHeaderV1.EntryCount > SlabJournalEntriesPerBlockV1() {
		err = blunder.NewError(blunder.PackError, "header.EntryCount (%v) exceeds entries per block (%v)", slabJournalBlockHeaderV1.EntryCount, SlabJournalEntriesPerBlockV1())
		return
	}

	slabJournalBlockBuf = make([]byte, VDOBlockSize)

	headerBuf, err = cstruct.Pack(slabJournalBlockHeaderV1, LittleEndian)
	if nil != err {
		err = blunder.NewError(blunder.PackError, "unable to marshal slab journal block header: %v", err)
		return
	}
	curPos = copy(slabJournalBlockBuf, headerBuf)

	for entryIndex := range slabJournalEntriesV1 {
		entryBuf, err = cstruct.Pack(&slabJournalEntriesV1[entryIndex], LittleEndian)
		if nil != err {
			err = blunder.NewError(blunder.PackError, "unable to marshal slab journal entry %v: %v", entryIndex, err)
			return
		}
		curPos += copy(slabJournalBlockBuf[curPos:], entryBuf)
	}

	err = nil
	return
}

func unmarshalSlabJournalBlockV1(slabJournalBlockBuf []byte) (slabJournalBlockHeaderV1 *SlabJournalBlockHeaderV1Struct, slabJournalEntriesV1 []SlabJournalEntryV1Struct, err error) {
	var (
		bytesConsumed uint64
		curPos        uint64
	)

	if uint64(len(slabJournalBlockBuf)) < VDOBlockSize {
		err = blunder.NewError(blunder.UnpackError, "slabJournalBlockBuf is only %v bytes", len(slabJournalBlockBuf))
		return
	}

	slabJournalBlockHeaderV1 = &SlabJournalBlockHeaderV1Struct{}

	bytesConsumed, err = cstruct.Unpack(slabJournalBlockBuf, slabJournalBlockHeaderV1, LittleEndian)
	if nil != err {
		err = blunder.NewError(blunder.UnpackError, "unable to unmarshal slab journal block header: %v", err)
		return
	}
	curPos = bytesConsumed

	if SlabJournalBlockVersionV1 != slabJournalBlockHeaderV1.Version {
		err = blunder.NewError(blunder.UnpackError, "header.Version (%v) is not SlabJournalBlockVersionV1 (%v)", slabJournalBlockHeaderV1.Version, SlabJournalBlockVersionV1)
		return
	}
	if slabJournalBlockHeaderV1.SequenceNumber > MaxJournalSequenceNumber {
		err = blunder.NewError(blunder.CorruptJournalError, "header.SequenceNumber (%v) exceeds MaxJournalSequenceNumber", slabJournalBlockHeaderV1.SequenceNumber)
		return
	}
	if slabJournalBlockHeaderV1.EntryCount > SlabJournalEntriesPerBlockV1() {
		err = blunder.NewError(blunder.CorruptJournalError, "header.EntryCount (%v) exceeds entries per block (%v)", slabJournalBlockHeaderV1.EntryCount, SlabJournalEntriesPerBlockV1())
		return
	}

	slabJournalEntriesV1 = make([]SlabJournalEntryV1Struct, slabJournalBlockHeaderV1.EntryCount)

	for entryIndex := range slabJournalEntriesV1 {
		bytesConsumed, err = cstruct.Unpack(slabJournalBlockBuf[curPos:], &slabJournalEntriesV1[entryIndex], LittleEndian)
		if nil != err {
			err = blunder.NewError(blunder.UnpackError, "unable to unmarshal slab journal entry %v: %v", entryIndex, err)
			return
		}
		curPos += bytesConsumed

		switch slabJournalEntriesV1[entryIndex].Operation {
		case SlabJournalEntryOperationRefIncrement:
		case SlabJournalEntryOperationRefDecrement:
		default:
			err = blunder.NewError(blunder.CorruptJournalError, "entry %v has invalid Operation (%v)", entryIndex, slabJournalEntriesV1[entryIndex].Operation)
			return
		}
	}

	err = nil
	return
}

func unmarshalSuperBlockVersion(superBlockBuf []byte) (superBlockVersion uint64, err error) {
	_, err = cstruct.Unpack(superBlockBuf, &superBlockVersion, LittleEndian)
	if nil != err {
		err = blunder.NewError(blunder.UnpackError, "unable to unmarshal superBlockVersion: %v", err)
		return
	}

	err = nil
	return
}

func (superBlockV1 *SuperBlockV1Struct) marshalSuperBlockV1() (superBlockBuf []byte, err error) {
	var (
		curPos    int
		hashBuf   []byte
		structBuf []byte
	)

	if SuperBlockVersionV1 != superBlockV1.Version {
		err = blunder.NewError(blunder.PackError, "superBlockV1.Version (%v) is not SuperBlockVersionV1 (%v)", superBlockV1.Version, SuperBlockVersionV1)
		return
	}

	superBlockBuf = make([]byte, VDOBlockSize)

	structBuf, err = cstruct.Pack(superBlockV1, LittleEndian)
	if nil != err {
		err = blunder.NewError(blunder.PackError, "unable to marshal super block: %v", err)
		return
	}
	curPos = copy(superBlockBuf, structBuf)

	hashBuf, err = cstruct.Pack(cityhash.Hash64(structBuf), LittleEndian)
	if nil != err {
		err = blunder.NewError(blunder.PackError, "unable to marshal super block hash: %v", err)
		return
	}
	_ = curPos + copy(superBlockBuf[curPos:], hashBuf)

	err = nil
	return
}

func unmarshalSuperBlockV1(superBlockBuf []byte) (superBlockV1 *SuperBlockV1Struct, err error) {
	var (
		bytesConsumed uint64
		computedHash  uint64
		recordedHash  uint64
	)

	if uint64(len(superBlockBuf)) < (globals.superBlockV1Size + globals.uint64Size) {
		err = blunder.NewError(blunder.UnpackError, "superBlockBuf is only %v bytes", len(superBlockBuf))
		return
	}

	superBlockV1 = &SuperBlockV1Struct{}

	bytesConsumed, err = cstruct.Unpack(superBlockBuf, superBlockV1, LittleEndian)
	if nil != err {
		err = blunder.NewError(blunder.UnpackError, "unable to unmarshal super block: %v", err)
		return
	}

	if SuperBlockVersionV1 != superBlockV1.Version {
		err = blunder.NewError(blunder.BadSuperBlockError, "superBlockV1.Version (%v) is not SuperBlockVersionV1 (%v)", superBlockV1.Version, SuperBlockVersionV1)
		return
	}

	_, err = cstruct.Unpack(superBlockBuf[bytesConsumed:], &recordedHash, LittleEndian)
	if nil != err {
		err = blunder.NewError(blunder.UnpackError, "unable to unmarshal super block hash: %v", err)
		return
	}

	computedHash = cityhash.Hash64(superBlockBuf[:bytesConsumed])
	if computedHash != recordedHash {
		err = blunder.NewError(blunder.BadSuperBlockError, "super block hash mismatch (computed 0x%016X, recorded 0x%016X)", computedHash, recordedHash)
		return
	}

	err = nil
	return
}
