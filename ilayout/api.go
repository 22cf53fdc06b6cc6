// Package ilayout defines the on-disk layout of the volume elements consumed
// by the recovery core: the journal position stamp, slab journal blocks, and
// the super block.
//
// All multi-byte fields are serialized in LittleEndian form (via the cstruct
// package). Versioned structs follow the convention that the Version field
// must always be fetched first to determine how to interpret the remaining
// bytes.
package ilayout

// VDOBlockSize is the fixed size of every physical block, including each slab
// journal block and the super block.
const VDOBlockSize uint64 = 4096

// JournalPointSequenceNumberBits is the number of bits of a packed journal
// point holding the sequence number; the remaining low-order bits hold the
// entry count.
const JournalPointSequenceNumberBits = 48

// MaxJournalSequenceNumber is the largest sequence number whose packed form
// round-trips exactly.
const MaxJournalSequenceNumber = (uint64(1) << JournalPointSequenceNumberBits) - 1

// JournalPointStruct is the absolute position of an entry in a slab journal:
// the sequence number of the journal block plus the count of entries before it
// within that block.
//
// A SequenceNumber of zero denotes "no valid point".
//
// Points are totally ordered, lexicographically on (SequenceNumber, EntryCount).
type JournalPointStruct struct {
	SequenceNumber uint64 // 48-bit range
	EntryCount     uint16 // bounded by the journal's entries per block
}

// IsValid returns whether the journal point denotes a real journal position.
func (point *JournalPointStruct) IsValid() (isValid bool) {
	isValid = (nil != point) && (0 != point.SequenceNumber)
	return
}

// Advance moves the journal point forward by one entry, carrying into
// SequenceNumber when EntryCount reaches entriesPerBlock.
func (point *JournalPointStruct) Advance(entriesPerBlock uint16) {
	point.EntryCount++
	if point.EntryCount == entriesPerBlock {
		point.SequenceNumber++
		point.EntryCount = 0
	}
}

// Before returns whether point strictly precedes other.
func (point *JournalPointStruct) Before(other *JournalPointStruct) (isBefore bool) {
	isBefore = (point.SequenceNumber < other.SequenceNumber) ||
		((point.SequenceNumber == other.SequenceNumber) && (point.EntryCount < other.EntryCount))
	return
}

// Equals returns whether both points reference the same logical position.
func (point *JournalPointStruct) Equals(other *JournalPointStruct) (isEqual bool) {
	isEqual = (point.SequenceNumber == other.SequenceNumber) && (point.EntryCount == other.EntryCount)
	return
}

// Pack encodes the journal point into its packed 64-bit form:
// bits 63-16 hold the sequence number, bits 15-0 the entry count.
func (point *JournalPointStruct) Pack() (packedPoint uint64) {
	packedPoint = (point.SequenceNumber << 16) | uint64(point.EntryCount)
	return
}

// UnpackJournalPoint decodes the packed 64-bit form produced by Pack. The two
// are exact inverses for every point whose SequenceNumber fits in 48 bits.
func UnpackJournalPoint(packedPoint uint64) (point JournalPointStruct) {
	point.SequenceNumber = packedPoint >> 16
	point.EntryCount = uint16(packedPoint & 0xFFFF)
	return
}

// SlabJournalBlockVersionV* specifies the format of a slab journal block. The
// Version must always be fetched via UnmarshalSlabJournalBlockVersion; this
// value is then used to interpret the remaining bytes of the block.
const (
	SlabJournalBlockVersionV1 uint64 = 1
)

// UnmarshalSlabJournalBlockVersion extracts slabJournalBlockVersion from slabJournalBlockBuf.
func UnmarshalSlabJournalBlockVersion(slabJournalBlockBuf []byte) (slabJournalBlockVersion uint64, err error) {
	slabJournalBlockVersion, err = unmarshalSlabJournalBlockVersion(slabJournalBlockBuf)
	return
}

// SlabJournalBlockHeaderV1Struct specifies the header of a slab journal block
// as of V1. It is followed by EntryCount serialized SlabJournalEntryV1Struct's;
// the remainder of the VDOBlockSize block is zero padding.
//
// The journal point of entry i of the block is (SequenceNumber, i).
//
// The Nonce ties the block to the volume incarnation that wrote it; a block
// bearing any other nonce was never written by this journal and is skipped
// during replay.
type SlabJournalBlockHeaderV1Struct struct {
	Version        uint64 // == SlabJournalBlockVersionV1
	Nonce          uint64 // volume nonce at the time the block was committed
	SequenceNumber uint64 // 48-bit range; never zero in a committed block
	EntryCount     uint16 // number of entries serialized after the header
}

// SlabJournalEntryOperation* enumerate the reference-count operations a slab
// journal entry can describe.
const (
	SlabJournalEntryOperationRefIncrement uint8 = 1
	SlabJournalEntryOperationRefDecrement uint8 = 2
)

// SlabJournalEntryV1Struct specifies one reference-count-affecting operation
// as of V1.
type SlabJournalEntryV1Struct struct {
	SlabBlockNumber uint32 // block within the slab whose reference count is adjusted
	Operation       uint8  // one of SlabJournalEntryOperation*
}

// SlabJournalEntriesPerBlockV1 returns the number of entries that fit in one
// V1 slab journal block.
func SlabJournalEntriesPerBlockV1() (entriesPerBlock uint16) {
	entriesPerBlock = uint16((VDOBlockSize - globals.slabJournalBlockHeaderV1Size) / globals.slabJournalEntryV1Size)
	return
}

// MarshalSlabJournalBlockV1 serializes the header and entries into a single
// VDOBlockSize journal block.
func (slabJournalBlockHeaderV1 *SlabJournalBlockHeaderV1Struct) MarshalSlabJournalBlockV1(slabJournalEntriesV1 []SlabJournalEntryV1Struct) (slabJournalBlockBuf []byte, err error) {
	slabJournalBlockBuf, err = slabJournalBlockHeaderV1.marshalSlabJournalBlockV1(slabJournalEntriesV1)
	return
}

// UnmarshalSlabJournalBlockV1 deserializes one VDOBlockSize journal block into
// its header and entries, validating Version and entry bounds.
func UnmarshalSlabJournalBlockV1(slabJournalBlockBuf []byte) (slabJournalBlockHeaderV1 *SlabJournalBlockHeaderV1Struct, slabJournalEntriesV1 []SlabJournalEntryV1Struct, err error) {
	slabJournalBlockHeaderV1, slabJournalEntriesV1, err = unmarshalSlabJournalBlockV1(slabJournalBlockBuf)
	return
}

// SuperBlockVersionV* specifies the format of the super block found in
// physical block zero.
const (
	SuperBlockVersionV1 uint64 = 1
)

// UnmarshalSuperBlockVersion extracts superBlockVersion from superBlockBuf.
func UnmarshalSuperBlockVersion(superBlockBuf []byte) (superBlockVersion uint64, err error) {
	superBlockVersion, err = unmarshalSuperBlockVersion(superBlockBuf)
	return
}

// SuperBlockV1Struct specifies the format of the super block as of V1.
//
// The struct is serialized at the start of physical block zero, immediately
// followed by the CityHash64 of those serialized bytes; the remainder of the
// block is zero padding. Unmarshal rejects a block whose hash does not match.
type SuperBlockV1Struct struct {
	Version           uint64 // == SuperBlockVersionV1
	Nonce             uint64 // stamped into every journal block written by this incarnation
	ReadOnly          uint8  // 0 == read-write; 1 == the volume has entered read-only mode
	ReadOnlyErrno     uint32 // errno recorded when ReadOnly was set (0 otherwise)
	PhysicalZoneCount uint32 // number of physical (allocation) zones
	SlabCount         uint64 // number of slabs in the volume
}

// MarshalSuperBlockV1 serializes the super block into a single VDOBlockSize
// buffer suitable for writing to physical block zero.
func (superBlockV1 *SuperBlockV1Struct) MarshalSuperBlockV1() (superBlockBuf []byte, err error) {
	superBlockBuf, err = superBlockV1.marshalSuperBlockV1()
	return
}

// UnmarshalSuperBlockV1 deserializes the super block, validating Version and
// the trailing CityHash64.
func UnmarshalSuperBlockV1(superBlockBuf []byte) (superBlockV1 *SuperBlockV1Struct, err error) {
	superBlockV1, err = unmarshalSuperBlockV1(superBlockBuf)
	return
}
