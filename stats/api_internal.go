package stats

import (
	"fmt"
	"net"
	"sync"
)

var statStructPool sync.Pool = sync.Pool{
	New: func() interface{} {
		return &statStruct{}
	},
}

func dump() (statMap map[string]uint64) {
	globals.Lock()
	numStats := len(globals.statFullMap)
	statMap = make(map[string]uint64, numStats)
	for statKey, statValue := range globals.statFullMap {
		statMap[statKey] = statValue
	}
	globals.Unlock()
	return
}

func incrementSomething(statName *string, incBy uint64) {
	if 0 == incBy {
		// No point in incrementing by zero
		return
	}

	// if stats are not enabled yet, just ignore (reduce a window while
	// stats are shutting down by saving the channel to a local variable)
	statChan := globals.statChan
	if nil == statChan {
		return
	}

	stat := statStructPool.Get().(*statStruct)
	stat.name = statName
	stat.increment = incBy
	statChan <- stat
}

// sender runs as a goroutine accumulating increments and, if statsd emission
// is configured, pushing the accumulated deltas on each tick.
func sender() {
	var (
		stat *statStruct
	)

	for {
		select {
		case stat = <-globals.statChan:
			statName := *stat.name
			stat.name = nil
			statIncrement := stat.increment
			statStructPool.Put(stat)

			globals.statDeltaMap[statName] += statIncrement

			globals.Lock()
			globals.statFullMap[statName] += statIncrement
			globals.Unlock()
		case <-globals.tickChan:
			flushStatDeltas()
		case <-globals.stopChan:
			flushStatDeltas()
			globals.doneChan <- true
			return
		}
	}
}

// flushStatDeltas sends all accumulated deltas to statsd (if configured)
func flushStatDeltas() {
	if nil == globals.udpRAddr {
		// no statsd configured; deltas only feed statFullMap
		globals.statDeltaMap = make(map[string]uint64)
		return
	}

	for statName, statDelta := range globals.statDeltaMap {
		statBuffer := []byte(fmt.Sprintf("%s:%d|c", statName, statDelta))

		conn, err := net.DialUDP("udp", globals.udpLAddr, globals.udpRAddr)
		if nil != err {
			// statsd emission is best-effort; drop the delta
			continue
		}
		_, _ = conn.Write(statBuffer)
		_ = conn.Close()
	}

	globals.statDeltaMap = make(map[string]uint64)
}
