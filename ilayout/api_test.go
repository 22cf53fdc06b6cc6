package ilayout

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/prasadlvi/vdo/blunder"
)

func TestJournalPoint(t *testing.T) {
	var (
		advancing       JournalPointStruct
		entriesPerBlock uint16
		nilPoint        *JournalPointStruct
		packedPoint     uint64
		pointA          JournalPointStruct
		pointB          JournalPointStruct
		unpackedPoint   JournalPointStruct
	)

	if nilPoint.IsValid() {
		t.Fatalf("nil.IsValid() should have returned false")
	}

	pointA = JournalPointStruct{SequenceNumber: 0, EntryCount: 0}
	if pointA.IsValid() {
		t.Fatalf("{0,0}.IsValid() should have returned false")
	}

	pointA = JournalPointStruct{SequenceNumber: 1, EntryCount: 0}
	if !pointA.IsValid() {
		t.Fatalf("{1,0}.IsValid() should have returned true")
	}

	// trichotomy on (SequenceNumber, EntryCount)

	pointA = JournalPointStruct{SequenceNumber: 5, EntryCount: 3}
	pointB = JournalPointStruct{SequenceNumber: 5, EntryCount: 4}
	if !pointA.Before(&pointB) {
		t.Fatalf("{5,3}.Before({5,4}) should have returned true")
	}
	if pointB.Before(&pointA) {
		t.Fatalf("{5,4}.Before({5,3}) should have returned false")
	}

	pointB = JournalPointStruct{SequenceNumber: 6, EntryCount: 0}
	if !pointA.Before(&pointB) {
		t.Fatalf("{5,3}.Before({6,0}) should have returned true")
	}

	pointB = pointA
	if pointA.Before(&pointB) || pointB.Before(&pointA) {
		t.Fatalf("equal points should not be Before() one another")
	}
	if !pointA.Equals(&pointB) {
		t.Fatalf("equal points should be Equals()")
	}

	// Pack()/UnpackJournalPoint() are inverses within the 48-bit range

	pointA = JournalPointStruct{SequenceNumber: 0x123456789ABC, EntryCount: 0xDEF0}
	packedPoint = pointA.Pack()
	unpackedPoint = UnpackJournalPoint(packedPoint)
	if !pointA.Equals(&unpackedPoint) {
		t.Fatalf("Pack()/UnpackJournalPoint() round-trip failed: got %+v, expected %+v", unpackedPoint, pointA)
	}

	pointA = JournalPointStruct{SequenceNumber: MaxJournalSequenceNumber, EntryCount: 0xFFFF}
	packedPoint = pointA.Pack()
	unpackedPoint = UnpackJournalPoint(packedPoint)
	if !pointA.Equals(&unpackedPoint) {
		t.Fatalf("Pack()/UnpackJournalPoint() round-trip failed at the 48-bit limit: got %+v", unpackedPoint)
	}

	// packed ordering matches Before() ordering

	pointA = JournalPointStruct{SequenceNumber: 7, EntryCount: 0xFFFF}
	pointB = JournalPointStruct{SequenceNumber: 8, EntryCount: 0}
	if pointA.Pack() >= pointB.Pack() {
		t.Fatalf("{7,0xFFFF}.Pack() should be < {8,0}.Pack()")
	}

	// Advance() carries into SequenceNumber every entriesPerBlock entries

	entriesPerBlock = 4
	advancing = JournalPointStruct{SequenceNumber: 1, EntryCount: 0}
	for i := uint16(1); i < entriesPerBlock; i++ {
		advancing.Advance(entriesPerBlock)
		if (1 != advancing.SequenceNumber) || (i != advancing.EntryCount) {
			t.Fatalf("Advance() #%v got %+v", i, advancing)
		}
	}
	advancing.Advance(entriesPerBlock)
	if (2 != advancing.SequenceNumber) || (0 != advancing.EntryCount) {
		t.Fatalf("Advance() should have carried into SequenceNumber; got %+v", advancing)
	}
}

func TestSlabJournalBlockV1(t *testing.T) {
	var (
		err                error
		marshaledBlockBuf  []byte
		testEntries        []SlabJournalEntryV1Struct
		testHeader         *SlabJournalBlockHeaderV1Struct
		unmarshaledEntries []SlabJournalEntryV1Struct
		unmarshaledHeader  *SlabJournalBlockHeaderV1Struct
		version            uint64
	)

	testEntries = []SlabJournalEntryV1Struct{
		{SlabBlockNumber: 0, Operation: SlabJournalEntryOperationRefIncrement},
		{SlabBlockNumber: 17, Operation: SlabJournalEntryOperationRefIncrement},
		{SlabBlockNumber: 17, Operation: SlabJournalEntryOperationRefDecrement},
	}

	testHeader = &SlabJournalBlockHeaderV1Struct{
		Version:        SlabJournalBlockVersionV1,
		Nonce:          0x0123456789ABCDEF,
		SequenceNumber: 42,
		EntryCount:     uint16(len(testEntries)),
	}

	marshaledBlockBuf, err = testHeader.MarshalSlabJournalBlockV1(testEntries)
	if nil != err {
		t.Fatalf("MarshalSlabJournalBlockV1() failed: %v", err)
	}
	if VDOBlockSize != uint64(len(marshaledBlockBuf)) {
		t.Fatalf("MarshalSlabJournalBlockV1() returned a %v-byte buf", len(marshaledBlockBuf))
	}

	version, err = UnmarshalSlabJournalBlockVersion(marshaledBlockBuf)
	if nil != err {
		t.Fatalf("UnmarshalSlabJournalBlockVersion() failed: %v", err)
	}
	if SlabJournalBlockVersionV1 != version {
		t.Fatalf("UnmarshalSlabJournalBlockVersion() returned %v", version)
	}

	unmarshaledHeader, unmarshaledEntries, err = UnmarshalSlabJournalBlockV1(marshaledBlockBuf)
	if nil != err {
		t.Fatalf("UnmarshalSlabJournalBlockV1() failed: %v", err)
	}
	if !cmp.Equal(testHeader, unmarshaledHeader) {
		t.Fatalf("header mismatch: %v", cmp.Diff(testHeader, unmarshaledHeader))
	}
	if !cmp.Equal(testEntries, unmarshaledEntries) {
		t.Fatalf("entries mismatch: %v", cmp.Diff(testEntries, unmarshaledEntries))
	}

	// a mismatched EntryCount should be rejected up front

	testHeader.EntryCount = 2
	_, err = testHeader.MarshalSlabJournalBlockV1(testEntries)
	if blunder.IsNot(err, blunder.PackError) {
		t.Fatalf("MarshalSlabJournalBlockV1() with a bad EntryCount returned %v", err)
	}
	testHeader.EntryCount = uint16(len(testEntries))

	// a block claiming more entries than fit is corrupt

	marshaledBlockBuf, err = testHeader.MarshalSlabJournalBlockV1(testEntries)
	if nil != err {
		t.Fatalf("MarshalSlabJournalBlockV1() failed: %v", err)
	}
	badBlockBuf := make([]byte, len(marshaledBlockBuf))
	copy(badBlockBuf, marshaledBlockBuf)
	badEntryCount := SlabJournalEntriesPerBlockV1() + 1
	badBlockBuf[24] = byte(badEntryCount & 0xFF)
	badBlockBuf[25] = byte(badEntryCount >> 8)
	_, _, err = UnmarshalSlabJournalBlockV1(badBlockBuf)
	if blunder.IsNot(err, blunder.CorruptJournalError) {
		t.Fatalf("UnmarshalSlabJournalBlockV1() of an oversized EntryCount returned %v", err)
	}

	// an unknown entry Operation is corrupt

	copy(badBlockBuf, marshaledBlockBuf)
	badBlockBuf[26+4] = 0xFF // Operation byte of entry 0
	_, _, err = UnmarshalSlabJournalBlockV1(badBlockBuf)
	if blunder.IsNot(err, blunder.CorruptJournalError) {
		t.Fatalf("UnmarshalSlabJournalBlockV1() of a bad Operation returned %v", err)
	}

	// an unknown Version is rejected

	copy(badBlockBuf, marshaledBlockBuf)
	badBlockBuf[0] = 0xFF
	_, _, err = UnmarshalSlabJournalBlockV1(badBlockBuf)
	if blunder.IsNot(err, blunder.UnpackError) {
		t.Fatalf("UnmarshalSlabJournalBlockV1() of a bad Version returned %v", err)
	}
}

func TestSuperBlockV1(t *testing.T) {
	var (
		err                   error
		marshaledSuperBuf     []byte
		testSuperBlock        *SuperBlockV1Struct
		unmarshaledSuperBlock *SuperBlockV1Struct
		version               uint64
	)

	testSuperBlock = &SuperBlockV1Struct{
		Version:           SuperBlockVersionV1,
		Nonce:             0xFEDCBA9876543210,
		ReadOnly:          0,
		ReadOnlyErrno:     0,
		PhysicalZoneCount: 4,
		SlabCount:         100,
	}

	marshaledSuperBuf, err = testSuperBlock.MarshalSuperBlockV1()
	if nil != err {
		t.Fatalf("MarshalSuperBlockV1() failed: %v", err)
	}
	if VDOBlockSize != uint64(len(marshaledSuperBuf)) {
		t.Fatalf("MarshalSuperBlockV1() returned a %v-byte buf", len(marshaledSuperBuf))
	}

	version, err = UnmarshalSuperBlockVersion(marshaledSuperBuf)
	if nil != err {
		t.Fatalf("UnmarshalSuperBlockVersion() failed: %v", err)
	}
	if SuperBlockVersionV1 != version {
		t.Fatalf("UnmarshalSuperBlockVersion() returned %v", version)
	}

	unmarshaledSuperBlock, err = UnmarshalSuperBlockV1(marshaledSuperBuf)
	if nil != err {
		t.Fatalf("UnmarshalSuperBlockV1() failed: %v", err)
	}
	if !cmp.Equal(testSuperBlock, unmarshaledSuperBlock) {
		t.Fatalf("super block mismatch: %v", cmp.Diff(testSuperBlock, unmarshaledSuperBlock))
	}

	// any flipped bit must fail the trailing hash check

	marshaledSuperBuf[9] ^= 0x01 // a Nonce byte
	_, err = UnmarshalSuperBlockV1(marshaledSuperBuf)
	if blunder.IsNot(err, blunder.BadSuperBlockError) {
		t.Fatalf("UnmarshalSuperBlockV1() of a corrupted buf returned %v", err)
	}
	marshaledSuperBuf[9] ^= 0x01

	_, err = UnmarshalSuperBlockV1(marshaledSuperBuf)
	if nil != err {
		t.Fatalf("UnmarshalSuperBlockV1() failed after undoing corruption: %v", err)
	}
}
