// Package logger provides logging wrappers
//
// These wrappers allow us to standardize logging while still using a third-party
// logging package. The package is implemented on top of the sirupsen/logrus
// package: https://github.com/sirupsen/logrus
//
// The APIs here add the package and calling function to all logs.
//
// Logging of trace logs is enabled/disabled on a per package basis via the
// [Logging]TraceLevelLogging configuration option.
package logger

import (
	"io"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/prasadlvi/vdo/stats"
)

type Level int

// Our logging levels - These are the different logging levels supported by this package.
const (
	// PanicLevel corresponds to logrus.PanicLevel; logrus will log and then call panic with the log message
	PanicLevel Level = iota
	// FatalLevel corresponds to logrus.FatalLevel; logrus will log and then call os.Exit(1)
	FatalLevel
	// ErrorLevel corresponds to logrus.ErrorLevel
	ErrorLevel
	// WarnLevel corresponds to logrus.WarnLevel
	WarnLevel
	// InfoLevel corresponds to logrus.InfoLevel; general operational entries about what's going on
	InfoLevel
	// TraceLevel is used for operational logs that trace the success path through the application.
	// Whether these are logged is controlled on a per-package basis; when enabled, these are
	// logged at logrus.InfoLevel.
	TraceLevel
)

// Stats-related constants
var (
	panicStat = "logging.level.panic"
	fatalStat = "logging.level.fatal"
	errorStat = "logging.level.error"
	warnStat  = "logging.level.warn"
	infoStat  = "logging.level.info"
	traceStat = "logging.level.trace"
	noStat    = ""
)

func (level Level) statString() *string {
	switch level {
	case PanicLevel:
		return &panicStat
	case FatalLevel:
		return &fatalStat
	case ErrorLevel:
		return &errorStat
	case WarnLevel:
		return &warnStat
	case InfoLevel:
		return &infoStat
	case TraceLevel:
		return &traceStat
	}
	return &noStat
}

// packageTraceSettings controls whether tracing is enabled for particular packages.
// If a package is in this map and is set to "true", trace logs for that package
// will be emitted. If the package is in this list and is set to "false", OR if
// the package is not in this list, trace logs for that package will NOT be emitted.
//
// Note: In order to enable tracing for a package using the "Logging.TraceLevelLogging"
// config variable, the package must be in this map with a value of false (or true).
//
var packageTraceSettings = map[string]bool{
	"ilayout":   false,
	"logger":    false,
	"physical":  false,
	"ramdisk":   false,
	"recoveryd": false,
	"scrubber":  false,
	"slab":      false,
	"viopool":   false,
	"zone":      false,
}

func setTraceLoggingLevel(confStrSlice []string) {
	for _, pkg := range confStrSlice {
		_, ok := packageTraceSettings[pkg]
		if ok {
			packageTraceSettings[pkg] = true
		}
	}
}

// traceEnabled returns whether tracing is enabled for the specified package
func traceEnabled(pkg string) bool {
	enabled, ok := packageTraceSettings[pkg]
	if ok {
		return enabled
	}
	return false
}

const (
	packageKey  = "package"
	functionKey = "function"
)

// getFuncPackage extracts the calling function and its package from the call
// stack, level frames above the caller of getFuncPackage itself.
func getFuncPackage(level int) (fn string, pkg string) {
	pc, _, _, ok := runtime.Caller(level + 1)
	if !ok {
		return "unknown", "unknown"
	}

	fullName := runtime.FuncForPC(pc).Name()

	// fullName looks like "github.com/prasadlvi/vdo/scrubber.(*Scrubber).scrubNextSlab"
	lastSlash := strings.LastIndex(fullName, "/")
	shortName := fullName[lastSlash+1:]

	firstDot := strings.Index(shortName, ".")
	if -1 == firstDot {
		return shortName, "unknown"
	}

	pkg = shortName[:firstDot]
	fn = shortName[firstDot+1:]
	return
}

// newLogEntry creates a logrus Entry annotated with the package and function
// found level+1 frames above newLogEntry on the call stack.
func newLogEntry(level int) *log.Entry {
	fn, pkg := getFuncPackage(level + 1)

	fields := make(log.Fields)
	fields[functionKey] = fn
	fields[packageKey] = pkg

	return log.WithFields(fields)
}

func logEnabledFor(level Level, pkg string) bool {
	if TraceLevel == level {
		return traceEnabled(pkg)
	}
	return true
}

func logAt(level Level, err error, format *string, args ...interface{}) {
	entry := newLogEntry(2)
	if nil != err {
		entry = entry.WithField("error", err)
	}

	pkg, _ := entry.Data[packageKey].(string)
	if !logEnabledFor(level, pkg) {
		return
	}

	stats.IncrementOperations(level.statString())

	switch level {
	case PanicLevel:
		if nil == format {
			entry.Panic(args...)
		} else {
			entry.Panicf(*format, args...)
		}
	case FatalLevel:
		if nil == format {
			entry.Fatal(args...)
		} else {
			entry.Fatalf(*format, args...)
		}
	case ErrorLevel:
		if nil == format {
			entry.Error(args...)
		} else {
			entry.Errorf(*format, args...)
		}
	case WarnLevel:
		if nil == format {
			entry.Warn(args...)
		} else {
			entry.Warnf(*format, args...)
		}
	case InfoLevel, TraceLevel:
		if nil == format {
			entry.Info(args...)
		} else {
			entry.Infof(*format, args...)
		}
	}
}

// EXTERNAL logging APIs
// These APIs are in the style of those provided by the logrus package.

func Error(args ...interface{}) {
	logAt(ErrorLevel, nil, nil, args...)
}

func Info(args ...interface{}) {
	logAt(InfoLevel, nil, nil, args...)
}

func Errorf(format string, args ...interface{}) {
	logAt(ErrorLevel, nil, &format, args...)
}

func Fatalf(format string, args ...interface{}) {
	logAt(FatalLevel, nil, &format, args...)
}

func Infof(format string, args ...interface{}) {
	logAt(InfoLevel, nil, &format, args...)
}

func Tracef(format string, args ...interface{}) {
	logAt(TraceLevel, nil, &format, args...)
}

func Warnf(format string, args ...interface{}) {
	logAt(WarnLevel, nil, &format, args...)
}

func ErrorfWithError(err error, format string, args ...interface{}) {
	logAt(ErrorLevel, err, &format, args...)
}

func FatalfWithError(err error, format string, args ...interface{}) {
	logAt(FatalLevel, err, &format, args...)
}

func InfofWithError(err error, format string, args ...interface{}) {
	logAt(InfoLevel, err, &format, args...)
}

func PanicfWithError(err error, format string, args ...interface{}) {
	logAt(PanicLevel, err, &format, args...)
}

func WarnfWithError(err error, format string, args ...interface{}) {
	logAt(WarnLevel, err, &format, args...)
}

// AddLogTarget adds another target for log messages to be written to. writer is
// an object with an io.Writer interface that's called once for each log message.
//
// logger.Up() must be called before this function is used.
func AddLogTarget(writer io.Writer) {
	addLogTarget(writer)
}

// LogBuffer captures the most recent nEntry lines of log into an array, most
// recent first. Useful for writing test cases.
type LogBuffer struct {
	LogEntries   []string // most recent log entry is [0]
	TotalEntries int      // count of all entries seen
}

type LogTarget struct {
	LogBuf *LogBuffer
}

// Init sets up a LogTarget to hold up to nEntry log entries.
func (target *LogTarget) Init(nEntry int) {
	target.LogBuf = &LogBuffer{TotalEntries: 0}
	target.LogBuf.LogEntries = make([]string, nEntry)
}

// Write is called by logger for each log entry
func (target LogTarget) Write(p []byte) (n int, err error) {
	if 0 == len(target.LogBuf.LogEntries) {
		return 0, nil
	}

	// shift down and prepend (the buffer is small; this is test-only plumbing)
	copy(target.LogBuf.LogEntries[1:], target.LogBuf.LogEntries)
	target.LogBuf.LogEntries[0] = strings.TrimRight(string(p), "\n")
	target.LogBuf.TotalEntries++

	return len(p), nil
}
