package logger

import (
	"fmt"
	"strings"
	"testing"

	"github.com/prasadlvi/vdo/conf"
)

func TestAPI(t *testing.T) {
	confStrings := []string{
		"Logging.LogToConsole=false",
		"Logging.TraceLevelLogging=logger",
	}

	confMap, err := conf.MakeConfMapFromStrings(confStrings)
	if nil != err {
		t.Fatalf("%v", err)
	}

	err = Up(confMap)
	if nil != err {
		t.Fatalf("logger.Up(confMap) failed: %v", err)
	}

	var target LogTarget
	target.Init(10)
	AddLogTarget(target)

	Infof("log message %d", 1)
	if 1 != target.LogBuf.TotalEntries {
		t.Errorf("Infof() did not reach the log target")
	}
	if !strings.Contains(target.LogBuf.LogEntries[0], "log message 1") {
		t.Errorf("captured entry %v does not contain the logged message", target.LogBuf.LogEntries[0])
	}
	if !strings.Contains(target.LogBuf.LogEntries[0], "package=logger") {
		t.Errorf("captured entry %v does not name this package", target.LogBuf.LogEntries[0])
	}

	err = fmt.Errorf("this is the error")
	ErrorfWithError(err, "we had an error!")
	if 2 != target.LogBuf.TotalEntries {
		t.Errorf("ErrorfWithError() did not reach the log target")
	}
	if !strings.Contains(target.LogBuf.LogEntries[0], "this is the error") {
		t.Errorf("captured entry %v does not carry the error", target.LogBuf.LogEntries[0])
	}

	// tracing is enabled for package logger by the confStrings above
	Tracef("tracing %v!", "this package")
	if 3 != target.LogBuf.TotalEntries {
		t.Errorf("Tracef() should be emitted while tracing is enabled for logger")
	}

	packageTraceSettings["logger"] = false
	Tracef("tracing was disabled")
	if 3 != target.LogBuf.TotalEntries {
		t.Errorf("Tracef() should not be emitted after tracing is disabled for logger")
	}

	err = Down()
	if nil != err {
		t.Fatalf("logger.Down() failed: %v", err)
	}
}
