package logger

import (
	"io"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/prasadlvi/vdo/conf"
)

var logFile *os.File = nil

// multiWriter fans each log entry out to all registered targets
type multiWriter struct {
	sync.Mutex
	writers []io.Writer
}

func (mw *multiWriter) addWriter(writer io.Writer) {
	mw.Lock()
	mw.writers = append(mw.writers, writer)
	mw.Unlock()
}

func (mw *multiWriter) Write(p []byte) (n int, err error) {
	mw.Lock()
	for _, writer := range mw.writers {
		n, err = writer.Write(p)
		// regardless of errors, write to the remaining targets
	}
	mw.Unlock()
	return
}

var logTargets multiWriter

func addLogTarget(writer io.Writer) {
	logTargets.addWriter(writer)
}

// Up initializes the package and must successfully return before any API functions are invoked
func Up(confMap conf.ConfMap) (err error) {
	log.SetFormatter(&log.TextFormatter{DisableColors: true})

	// Fetch log file info, if provided
	logFilePath, _ := confMap.FetchOptionValueString("Logging", "LogFilePath")
	if "" != logFilePath {
		logFile, err = os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if nil != err {
			log.Errorf("couldn't open log file: %v", err)
			return
		}
	}

	// Determine whether we should log to console. Default is false.
	logToConsole, err := confMap.FetchOptionValueBool("Logging", "LogToConsole")
	if nil != err {
		logToConsole = false
		err = nil
	}

	logTargets = multiWriter{writers: make([]io.Writer, 0)}
	if "" != logFilePath {
		logTargets.addWriter(logFile)
		if logToConsole {
			logTargets.addWriter(os.Stderr)
		}
	} else {
		logTargets.addWriter(os.Stderr)
	}
	log.SetOutput(&logTargets)

	// We always enable max logging in logrus and decide in this package
	// whether a given entry should be emitted.
	log.SetLevel(log.DebugLevel)

	// Fetch trace log settings, if provided
	traceConfSlice, _ := confMap.FetchOptionValueStringSlice("Logging", "TraceLevelLogging")
	setTraceLoggingLevel(traceConfSlice)

	return nil
}

// Down terminates the logger package
func Down() (err error) {
	// We open and close our own logfile
	if nil != logFile {
		logFile.Close()
		logFile = nil
	}
	err = nil
	return
}
