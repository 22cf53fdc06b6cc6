// Package stats provides a simple statsd client API.
//
// Counters are accumulated in memory (visible via Dump(), used by tests and
// the recovery daemon's exit summary) and, if a statsd UDP port is configured,
// periodically pushed to the local statsd daemon.
package stats

// Stat names used by the packages of this module. Callers pass the address of
// one of these so that accumulation is keyed by identity rather than by
// repeated string formatting.
var (
	VioPoolAcquireOps = "viopool.acquire.ops"
	VioPoolReleaseOps = "viopool.release.ops"
	VioPoolHandoffOps = "viopool.handoff.ops"
	VioPoolOutageOps  = "viopool.outage.ops"

	ScrubSlabOps         = "scrubber.slab.ops"
	ScrubJournalBlockOps = "scrubber.journal-block.ops"
	ScrubJournalEntryOps = "scrubber.journal-entry.applied.ops"
	ScrubEntrySkipOps    = "scrubber.journal-entry.skipped.ops"
	ScrubFailureOps      = "scrubber.failure.ops"

	ReadOnlyEnterOps   = "zone.read-only.enter.ops"
	SuperBlockReadOps  = "zone.super-block.read.ops"
	SuperBlockWriteOps = "zone.super-block.write.ops"
	AllocZoneRotateOps = "zone.allocation.rotate.ops"
)

// Dump returns a map of all accumulated stats since stats.Up().
//
//	Key   is a string containing the name of the stat
//	Value is the accumulation of all increments for the stat
func Dump() (statMap map[string]uint64) {
	statMap = dump()
	return
}

// IncrementOperations sends an increment of the named stat.
func IncrementOperations(statName *string) {
	incrementSomething(statName, 1)
}

// IncrementOperationsBy sends an increment by incBy of the named stat.
func IncrementOperationsBy(statName *string, incBy uint64) {
	incrementSomething(statName, incBy)
}
