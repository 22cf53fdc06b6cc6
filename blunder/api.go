// Package blunder provides error-handling wrappers
//
// These wrappers allow callers to provide additional information in Go errors
// while still conforming to the Go error interface.
//
// This package provides APIs to add errno information to regular Go errors.
// The errno carried by an error is what the zone package persists into the
// super block when a volume is forced into read-only mode.
//
// This package is implemented on top of the ansel1/merry package:
//
//	https://github.com/ansel1/merry
//
// merry comes with built-in support for adding information to errors:
// stacktraces, overriding the error message, and arbitrary key/values.
package blunder

import (
	"fmt"

	"github.com/ansel1/merry"
	"golang.org/x/sys/unix"

	"github.com/prasadlvi/vdo/logger"
)

// Error constants to be used in the vdo namespace.
//
// There are two groups of constants:
//   - constants that correspond to linux/POSIX errnos as defined in errno.h
//   - vdo-specific constants for errors not covered in the errno space
//
// The linux/POSIX-related constants should be used in cases where there is a
// clear mapping to these errors; the errno is also what survives a round trip
// through the persisted super block's read-only errno field.
type VdoError int

const (
	// Errors that map to linux/POSIX errnos as defined in errno.h

	NotPermError     VdoError = VdoError(int(unix.EPERM))  // Operation not permitted
	IOError          VdoError = VdoError(int(unix.EIO))    // I/O error
	TryAgainError    VdoError = VdoError(int(unix.EAGAIN)) // Try again
	OutOfMemoryError VdoError = VdoError(int(unix.ENOMEM)) // Out of memory
	DevBusyError     VdoError = VdoError(int(unix.EBUSY))  // Device or resource busy
	InvalidArgError  VdoError = VdoError(int(unix.EINVAL)) // Invalid argument
	NoSpaceError     VdoError = VdoError(int(unix.ENOSPC)) // No space left on device
	OutOfRangeError  VdoError = VdoError(int(unix.ERANGE)) // Result not representable
	ReadOnlyError    VdoError = VdoError(int(unix.EROFS))  // Read-only file system
	NoDataError      VdoError = VdoError(int(unix.ENODATA)) // No data available
)

// Errors that map to constants already defined above
const (
	JournalReadError      VdoError = IOError
	SuperBlockWriteError  VdoError = IOError
	RefCountInvalidError  VdoError = InvalidArgError
	PoolConstructionError VdoError = OutOfMemoryError
)

// SuccessError is the success "error" (errno 0)
const SuccessError VdoError = 0

const ( // reset iota to 0
	// Errors that are internal/specific to vdo
	UnpackError VdoError = 1000 + iota
	PackError
	CorruptJournalError
	BadSuperBlockError
)

// Default errno values for success and failure
const successErrno = 0
const failureErrno = -1

// Value returns the int value for the specified VdoError constant
func (err VdoError) Value() int {
	return int(err)
}

// NewError creates a new merry/blunder.VdoError-annotated error using the given
// format string and arguments.
func NewError(errValue VdoError, format string, a ...interface{}) error {
	return merry.WrapSkipping(fmt.Errorf(format, a...), 1).WithValue("errno", int(errValue))
}

// AddError is used to add error detail to a Go error.
//
// NOTE: Checks whether the errno value has already been set and warns if this
// call replaces it, since that is usually unintentional.
func AddError(e error, errValue VdoError) error {
	if nil == e {
		// The caller obviously intends to make this a non-nil error;
		// create one for them even though they forgot the context.
		return merry.New("regular error").WithValue("errno", int(errValue))
	}

	prevValue := Errno(e)
	if (successErrno != prevValue) && (failureErrno != prevValue) {
		logger.Warnf("replacing error value %v with value %v for error %v", prevValue, int(errValue), e)
	}

	return merry.WrapSkipping(e, 1).WithValue("errno", int(errValue))
}

// Errno extracts errno from the error, if it was previously wrapped.
// Otherwise a default value is returned.
func Errno(e error) int {
	if nil == e {
		// nil error = success
		return successErrno
	}

	// If the "errno" key/value was not present, merry.Value returns nil.
	var errno = failureErrno
	tmp := merry.Value(e, "errno")
	if nil != tmp {
		errno = tmp.(int)
	}

	return errno
}

// ErrorString returns the error string annotated with the errno value, if set
func ErrorString(e error) string {
	if nil == e {
		return ""
	}

	errPlusVal := e.Error()

	tmp := merry.Value(e, "errno")
	if nil != tmp {
		errPlusVal = fmt.Sprintf("%s. Error Value: %v", errPlusVal, tmp.(int))
	}

	return errPlusVal
}

// Is checks whether an error matches a particular VdoError
//
// NOTE: Because the value of the underlying errno is used to do this check,
// one cannot use this API to distinguish between VdoErrors that use the same
// errno value (e.g. JournalReadError vs plain IOError).
func Is(e error, theError VdoError) bool {
	return Errno(e) == theError.Value()
}

// IsNot checks whether an error is NOT a particular VdoError
func IsNot(e error, theError VdoError) bool {
	return Errno(e) != theError.Value()
}

// IsSuccess checks whether an error is the success VdoError
func IsSuccess(e error) bool {
	return Errno(e) == successErrno
}

// IsNotSuccess checks whether an error is NOT the success VdoError
func IsNotSuccess(e error) bool {
	return Errno(e) != successErrno
}

// Details wraps merry.Details, which returns all error details including stacktrace in a string.
func Details(e error) string {
	return merry.Details(e)
}

// Stacktrace wraps merry.Stacktrace, which returns the error stacktrace (if set) in a string.
func Stacktrace(e error) string {
	return merry.Stacktrace(e)
}
