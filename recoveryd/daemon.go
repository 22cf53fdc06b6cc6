// Package recoveryd drives crash recovery of a volume: it reads the super
// block, registers every slab, and scrubs each slab's journal to rebuild
// reference counts, escalating into read-only mode if the journals cannot be
// trusted.
package recoveryd

import (
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/prasadlvi/vdo/conf"
	"github.com/prasadlvi/vdo/halter"
	"github.com/prasadlvi/vdo/logger"
	"github.com/prasadlvi/vdo/scrubber"
	"github.com/prasadlvi/vdo/stats"
	"github.com/prasadlvi/vdo/zone"
)

// Daemon is launched as a GoRoutine that runs one recovery pass. During
// startup, the parent should read errChan to await Daemon getting to the
// point where scrubbing has begun and the specified signal set is armed. The
// final result (nil on a completed scrub) is sent to errChan when Daemon
// finishes, after which wg is signaled.
func Daemon(confFile string, confStrings []string, errChan chan error, wg *sync.WaitGroup, signals ...os.Signal) {
	var (
		confMap        conf.ConfMap
		doneChan       chan error
		err            error
		scrubErr       error
		signalChan     chan os.Signal
		signalReceived os.Signal
	)

	// Compute confMap

	confMap, err = conf.MakeConfMapFromFile(confFile)
	if nil != err {
		errChan <- err
		return
	}

	err = confMap.UpdateFromStrings(confStrings)
	if nil != err {
		errChan <- err
		return
	}

	// Arm signal handler used to catch signals
	//
	// Note: signalChan must be buffered to avoid race with window between
	// arming handler and blocking on the chan read when signals might
	// otherwise be lost.
	signalChan = make(chan os.Signal, 16)
	signal.Notify(signalChan, signals...)

	// Start up daemon packages

	err = logger.Up(confMap)
	if nil != err {
		errChan <- err
		return
	}

	err = stats.Up(confMap)
	if nil != err {
		_ = logger.Down()
		errChan <- err
		return
	}

	err = halter.Up(confMap)
	if nil != err {
		_ = stats.Down()
		_ = logger.Down()
		errChan <- err
		return
	}

	wg.Add(1)
	logger.Infof("recoveryd is starting up (PID %d)", os.Getpid())
	defer func() {
		logger.Infof("recoveryd is shutting down (PID %d)", os.Getpid())
		logDaemonStats()
		_ = halter.Down()
		_ = stats.Down()
		downErr := logger.Down()
		if nil == err {
			err = downErr
		}
		errChan <- err
		wg.Done()
	}()

	runtime, err := assembleRuntime(confMap)
	if nil != err {
		return
	}
	defer func() {
		awaitReadOnlyTransition(runtime.domain)
		closeErr := runtime.fileLayer.Close()
		if (nil == err) && (nil != closeErr) {
			err = closeErr
		}
	}()

	// Queue every slab and start scrubbing; doneChan fires once the
	// scrubber runs out of work or halts

	enqueueSlabs(runtime)

	doneChan = make(chan error, 1)
	registerCompletionWaiter(runtime.scrubber, doneChan)

	err = runtime.scrubber.Start()
	if nil != err {
		return
	}

	// indicate scrubbing is underway and signal handlers have been armed

	errChan <- nil

	for {
		select {
		case scrubErr = <-doneChan:
			if nil != scrubErr {
				logger.ErrorfWithError(scrubErr, "recoveryd: recovery failed; volume is read-only")
				err = scrubErr
				return
			}
			logger.Infof("recoveryd: recovery complete")
			err = nil
			return
		case signalReceived = <-signalChan:
			logger.Infof("recoveryd: received signal '%v'; suspending scrub", signalReceived)
			runtime.scrubber.Suspend()
			err = awaitSuspension(runtime.scrubber, doneChan)
			return
		}
	}
}

// awaitReadOnlyTransition waits out any read-only escalation still in flight;
// the super block write it carries must land before the volume file closes.
func awaitReadOnlyTransition(domain *zone.Domain) {
	transitionChan := make(chan struct{}, 1)
	domain.WaitUntilNotEnteringReadOnlyMode(func() { transitionChan <- struct{}{} })
	<-transitionChan
}

// awaitSuspension waits for a requested suspension to take effect, draining a
// racing completion if the scrubber ran out of work first.
func awaitSuspension(slabScrubber *scrubber.Scrubber, doneChan chan error) (err error) {
	for {
		select {
		case err = <-doneChan:
			return
		default:
		}

		switch slabScrubber.AdminState() {
		case scrubber.AdminStateSuspended:
			logger.Infof("recoveryd: scrub suspended with %v slabs remaining; exiting", slabScrubber.GetRecoveringCount())
			err = nil
			return
		case scrubber.AdminStateStopped:
			select {
			case err = <-doneChan:
			default:
				err = slabScrubber.FirstError()
			}
			return
		}

		time.Sleep(10 * time.Millisecond)
	}
}

// registerCompletionWaiter re-registers itself on every per-slab wakeup until
// the scrubber either drains its queues or halts with an error.
func registerCompletionWaiter(slabScrubber *scrubber.Scrubber, doneChan chan error) {
	slabScrubber.RegisterWaiter(func(waitErr error) {
		if nil != waitErr {
			doneChan <- waitErr
			return
		}
		if scrubber.AdminStateStopped == slabScrubber.AdminState() {
			doneChan <- slabScrubber.FirstError()
			return
		}
		if 0 == slabScrubber.GetRecoveringCount() {
			doneChan <- nil
			return
		}
		registerCompletionWaiter(slabScrubber, doneChan)
	})
}

func logDaemonStats() {
	statMap := stats.Dump()
	for _, statName := range []*string{
		&stats.ScrubSlabOps,
		&stats.ScrubJournalBlockOps,
		&stats.ScrubJournalEntryOps,
		&stats.ScrubEntrySkipOps,
		&stats.ScrubFailureOps,
		&stats.VioPoolOutageOps,
		&stats.ReadOnlyEnterOps,
	} {
		logger.Infof("recoveryd:   %v == %v", *statName, statMap[*statName])
	}
}
