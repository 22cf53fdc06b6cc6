package stats

import (
	"testing"
	"time"

	"github.com/prasadlvi/vdo/conf"
)

func waitForStat(t *testing.T, statName string, expected uint64) {
	var (
		statMap map[string]uint64
	)

	// increments flow through the sender goroutine, so poll briefly
	for i := 0; i < 100; i++ {
		statMap = Dump()
		if statMap[statName] == expected {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("stat %v is %v, expected %v", statName, statMap[statName], expected)
}

func TestStats(t *testing.T) {
	confMap, err := conf.MakeConfMapFromStrings([]string{
		"Stats.MaxLatency=50ms",
		"Stats.BufferLength=100",
	})
	if nil != err {
		t.Fatalf("conf.MakeConfMapFromStrings() failed: %v", err)
	}

	err = Up(confMap)
	if nil != err {
		t.Fatalf("stats.Up() failed: %v", err)
	}

	IncrementOperations(&ScrubSlabOps)
	IncrementOperations(&ScrubSlabOps)
	IncrementOperationsBy(&VioPoolOutageOps, 3)
	IncrementOperationsBy(&VioPoolOutageOps, 0) // no-op by contract

	waitForStat(t, ScrubSlabOps, 2)
	waitForStat(t, VioPoolOutageOps, 3)

	err = Down()
	if nil != err {
		t.Fatalf("stats.Down() failed: %v", err)
	}

	// increments after Down() are silently dropped
	IncrementOperations(&ScrubSlabOps)
}
