package blunder

import (
	"fmt"
	"testing"

	"golang.org/x/sys/unix"
)

func TestNewError(t *testing.T) {
	err := NewError(CorruptJournalError, "slab %d journal block %d failed decode", 7, 3)

	if !Is(err, CorruptJournalError) {
		t.Errorf("Is(err, CorruptJournalError) came back false")
	}
	if Is(err, IOError) {
		t.Errorf("Is(err, IOError) came back true")
	}
	if Errno(err) != CorruptJournalError.Value() {
		t.Errorf("Errno() returned %v, expected %v", Errno(err), CorruptJournalError.Value())
	}
	if IsSuccess(err) {
		t.Errorf("IsSuccess(err) came back true")
	}
}

func TestAddError(t *testing.T) {
	plainErr := fmt.Errorf("read of journal block failed")

	// a plain error carries the default failure errno
	if Errno(plainErr) != failureErrno {
		t.Errorf("Errno() on a plain error returned %v", Errno(plainErr))
	}

	wrappedErr := AddError(plainErr, IOError)
	if !Is(wrappedErr, IOError) {
		t.Errorf("Is(wrappedErr, IOError) came back false")
	}
	if Errno(wrappedErr) != int(unix.EIO) {
		t.Errorf("Errno() returned %v, expected EIO (%v)", Errno(wrappedErr), int(unix.EIO))
	}

	// wrapping nil still yields a usable annotated error
	fromNil := AddError(nil, ReadOnlyError)
	if !Is(fromNil, ReadOnlyError) {
		t.Errorf("Is(fromNil, ReadOnlyError) came back false")
	}
}

func TestNilErrorIsSuccess(t *testing.T) {
	if !IsSuccess(nil) {
		t.Errorf("IsSuccess(nil) came back false")
	}
	if Errno(nil) != successErrno {
		t.Errorf("Errno(nil) returned %v", Errno(nil))
	}
	if "" != ErrorString(nil) {
		t.Errorf("ErrorString(nil) returned %v", ErrorString(nil))
	}
}

func TestErrnoRoundTrip(t *testing.T) {
	// the errno is what zone persists in the super block; make sure the
	// value survives re-annotation from the persisted int
	err := NewError(CorruptJournalError, "decode inconsistency")
	persisted := Errno(err)

	recovered := AddError(fmt.Errorf("volume is read-only"), VdoError(persisted))
	if Errno(recovered) != persisted {
		t.Errorf("errno did not survive the round trip: %v != %v", Errno(recovered), persisted)
	}
}
