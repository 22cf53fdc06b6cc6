package recoveryd

import (
	"strconv"

	"github.com/prasadlvi/vdo/blunder"
	"github.com/prasadlvi/vdo/conf"
	"github.com/prasadlvi/vdo/ilayout"
	"github.com/prasadlvi/vdo/logger"
	"github.com/prasadlvi/vdo/physical"
	"github.com/prasadlvi/vdo/scrubber"
	"github.com/prasadlvi/vdo/slab"
	"github.com/prasadlvi/vdo/stats"
	"github.com/prasadlvi/vdo/viopool"
	"github.com/prasadlvi/vdo/zone"
)

const (
	defaultVioPoolCapacity             = uint64(2)
	defaultJournalOrigin               = uint64(1)
	defaultBlocksPerAllocationRotation = uint64(128)
)

type runtimeStruct struct {
	fileLayer         *physical.FileLayer
	superBlock        *ilayout.SuperBlockV1Struct
	registry          *slab.Registry
	domain            *zone.Domain
	pool              *viopool.Pool
	scrubber          *scrubber.Scrubber
	highPrioritySlabs map[uint64]struct{}
}

// assembleRuntime opens the device named by [RecoveryDomain]DevicePath,
// validates its super block, and wires up the registry, read-only domain, VIO
// pool, and scrubber.
func assembleRuntime(confMap conf.ConfMap) (runtime *runtimeStruct, err error) {
	var (
		blocksPerAllocationRotation uint64
		devicePath                  string
		journalOrigin               uint64
		slabDataBlocks              uint32
		slabJournalBlocks           uint64
		superBlockVersion           uint64
		vioPoolCapacity             uint64
		zoneThreadCount             uint32
	)

	devicePath, err = confMap.FetchOptionValueString("RecoveryDomain", "DevicePath")
	if nil != err {
		return
	}
	slabJournalBlocks, err = confMap.FetchOptionValueUint64("RecoveryDomain", "SlabJournalBlocks")
	if nil != err {
		return
	}
	slabDataBlocks, err = confMap.FetchOptionValueUint32("RecoveryDomain", "SlabDataBlocks")
	if nil != err {
		return
	}
	journalOrigin, err = confMap.FetchOptionValueUint64("RecoveryDomain", "JournalOrigin")
	if nil != err {
		journalOrigin = defaultJournalOrigin
	}
	vioPoolCapacity, err = confMap.FetchOptionValueUint64("RecoveryDomain", "VioPoolCapacity")
	if nil != err {
		vioPoolCapacity = defaultVioPoolCapacity
	}
	blocksPerAllocationRotation, err = confMap.FetchOptionValueUint64("RecoveryDomain", "BlocksPerAllocationRotation")
	if nil != err {
		blocksPerAllocationRotation = defaultBlocksPerAllocationRotation
	}

	runtime = &runtimeStruct{}

	runtime.highPrioritySlabs, err = fetchHighPrioritySlabs(confMap)
	if nil != err {
		runtime = nil
		return
	}

	runtime.fileLayer, err = physical.NewFileLayer(devicePath, ilayout.VDOBlockSize)
	if nil != err {
		runtime = nil
		return
	}
	defer func() {
		if nil != err {
			_ = runtime.fileLayer.Close()
			runtime = nil
		}
	}()

	// The super block (physical block zero) names the volume incarnation
	// and its geometry

	superBlockBuf := make([]byte, ilayout.VDOBlockSize)
	readErrChan := make(chan error, 1)
	runtime.fileLayer.ReadBlocks(0, 1, superBlockBuf, func(readErr error) { readErrChan <- readErr })
	err = <-readErrChan
	if nil != err {
		return
	}
	stats.IncrementOperations(&stats.SuperBlockReadOps)

	superBlockVersion, err = ilayout.UnmarshalSuperBlockVersion(superBlockBuf)
	if nil != err {
		return
	}
	if ilayout.SuperBlockVersionV1 != superBlockVersion {
		err = blunder.NewError(blunder.BadSuperBlockError, "unsupported super block version (%v)", superBlockVersion)
		return
	}
	runtime.superBlock, err = ilayout.UnmarshalSuperBlockV1(superBlockBuf)
	if nil != err {
		return
	}

	if 0 != runtime.superBlock.ReadOnly {
		err = blunder.NewError(blunder.ReadOnlyError, "volume is marked read-only (errno %v); recovery refused", runtime.superBlock.ReadOnlyErrno)
		return
	}

	journalSpan := runtime.superBlock.SlabCount * slabJournalBlocks
	if (journalOrigin + journalSpan) > runtime.fileLayer.BlockCount() {
		err = blunder.NewError(blunder.InvalidArgError, "slab journals [%v,%v) do not fit on a %v block device", journalOrigin, journalOrigin+journalSpan, runtime.fileLayer.BlockCount())
		return
	}

	runtime.registry = slab.NewRegistry()
	for slabNumber := uint64(0); slabNumber < runtime.superBlock.SlabCount; slabNumber++ {
		err = runtime.registry.Put(slab.NewSlab(slabNumber, journalOrigin+(slabNumber*slabJournalBlocks), slabJournalBlocks, slabDataBlocks))
		if nil != err {
			return
		}
	}

	zoneThreadCount, err = confMap.FetchOptionValueUint32("RecoveryDomain", "ZoneThreadCount")
	if nil != err {
		zoneThreadCount = runtime.superBlock.PhysicalZoneCount
	}

	runtime.domain, err = zone.NewDomain(runtime.fileLayer,
		zone.ThreadConfig{
			PhysicalZoneCount:           runtime.superBlock.PhysicalZoneCount,
			BlocksPerAllocationRotation: blocksPerAllocationRotation,
		},
		zoneThreadCount,
		runtime.superBlock)
	if nil != err {
		return
	}

	runtime.pool, err = viopool.NewPool(runtime.fileLayer, vioPoolCapacity, ilayout.VDOBlockSize,
		func(layer physical.Layer, context interface{}, buffer []byte) (vio *viopool.VIO, err error) {
			vio = viopool.NewVIO(layer, buffer)
			err = nil
			return
		},
		nil)
	if nil != err {
		return
	}

	runtime.scrubber = scrubber.NewScrubber(runtime.fileLayer, runtime.pool, runtime.superBlock.Nonce, ilayout.SlabJournalEntriesPerBlockV1(), runtime.domain)

	logger.Infof("recoveryd: device \"%v\": %v slabs, %v journal blocks each, nonce 0x%016X",
		devicePath, runtime.superBlock.SlabCount, slabJournalBlocks, runtime.superBlock.Nonce)

	err = nil
	return
}

// fetchHighPrioritySlabs parses [RecoveryDomain]HighPrioritySlabs, an
// optional list of slab numbers to scrub ahead of the rest.
func fetchHighPrioritySlabs(confMap conf.ConfMap) (highPrioritySlabs map[uint64]struct{}, err error) {
	var (
		slabNumber        uint64
		slabNumberStrings []string
	)

	highPrioritySlabs = make(map[uint64]struct{})

	slabNumberStrings, err = confMap.FetchOptionValueStringSlice("RecoveryDomain", "HighPrioritySlabs")
	if nil != err {
		// optional
		err = nil
		return
	}

	for _, slabNumberString := range slabNumberStrings {
		slabNumber, err = strconv.ParseUint(slabNumberString, 10, 64)
		if nil != err {
			err = blunder.AddError(err, blunder.InvalidArgError)
			return
		}
		highPrioritySlabs[slabNumber] = struct{}{}
	}

	err = nil
	return
}

// enqueueSlabs queues every registered slab for scrubbing, high priority
// slabs flagged per the conf.
func enqueueSlabs(runtime *runtimeStruct) {
	_ = runtime.registry.VisitInOrder(func(s *slab.Slab) (keepGoing bool) {
		_, highPriority := runtime.highPrioritySlabs[s.SlabNumber]
		runtime.scrubber.Enqueue(s, highPriority)
		keepGoing = true
		return
	})
}
