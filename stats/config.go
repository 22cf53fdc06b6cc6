package stats

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/prasadlvi/vdo/conf"
)

const (
	expectedNumberOfDistinctStatNames = 100

	defaultBufferLength = uint16(1000)
	defaultMaxLatency   = time.Second
)

type statStruct struct {
	name      *string
	increment uint64
}

type globalsStruct struct {
	sync.Mutex   //                     Used only for snapshotting statFullMap
	ipAddr       string
	udpPort      uint16
	udpLAddr     *net.UDPAddr
	udpRAddr     *net.UDPAddr //        nil if statsd emission is disabled
	bufferLength uint16
	maxLatency   time.Duration
	statChan     chan *statStruct
	tickChan     <-chan time.Time
	stopChan     chan bool
	doneChan     chan bool
	statDeltaMap map[string]uint64 //   Key is stat name, Value is un-sent accumulated increments
	statFullMap  map[string]uint64 //   Key is stat name, Value is all accumulated increments
}

var globals globalsStruct

// Up initializes the package and must successfully return before any API functions are invoked
func Up(confMap conf.ConfMap) (err error) {
	var (
		errFetchingUDPPort error
	)

	globals.ipAddr = "localhost" // Hard-coded since we only want to talk to the local statsd

	globals.udpPort, errFetchingUDPPort = confMap.FetchOptionValueUint16("Stats", "UDPPort")
	if nil == errFetchingUDPPort {
		globals.udpLAddr, err = net.ResolveUDPAddr("udp", globals.ipAddr+":0")
		if nil != err {
			return
		}
		globals.udpRAddr, err = net.ResolveUDPAddr("udp", globals.ipAddr+":"+strconv.FormatUint(uint64(globals.udpPort), 10))
		if nil != err {
			return
		}
	} else {
		// No [Stats]UDPPort: accumulate in memory only
		globals.udpLAddr = nil
		globals.udpRAddr = nil
	}

	globals.bufferLength, err = confMap.FetchOptionValueUint16("Stats", "BufferLength")
	if nil != err {
		globals.bufferLength = defaultBufferLength
	}

	globals.maxLatency, err = confMap.FetchOptionValueDuration("Stats", "MaxLatency")
	if nil != err {
		globals.maxLatency = defaultMaxLatency
	}

	globals.statChan = make(chan *statStruct, globals.bufferLength)
	globals.stopChan = make(chan bool, 1)
	globals.doneChan = make(chan bool, 1)

	globals.statDeltaMap = make(map[string]uint64, expectedNumberOfDistinctStatNames)
	globals.statFullMap = make(map[string]uint64, expectedNumberOfDistinctStatNames)

	globals.tickChan = time.Tick(globals.maxLatency)

	go sender()

	err = nil
	return
}

// Down terminates the stats package
func Down() (err error) {
	globals.statChan = nil

	globals.stopChan <- true

	_ = <-globals.doneChan

	err = nil
	return
}
