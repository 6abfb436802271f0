package blunder

import (
	"fmt"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/seqfs/seqfs/conf"
	"github.com/seqfs/seqfs/logger"
)

var testConfMap conf.ConfMap

func testSetup(t *testing.T) {
	var (
		err             error
		testConfStrings []string
	)

	testConfStrings = []string{
		"Logging.LogFilePath=/dev/null",
	}

	testConfMap, err = conf.MakeConfMapFromStrings(testConfStrings)
	if nil != err {
		t.Fatalf("conf.MakeConfMapFromStrings() failed: %v", err)
	}

	err = logger.Up(testConfMap)
	if nil != err {
		t.Fatalf("logger.Up() failed: %v", err)
	}
}

func testTeardown(t *testing.T) {
	var (
		err error
	)

	err = logger.Down()
	if nil != err {
		t.Fatalf("logger.Down() failed: %v", err)
	}
}

func TestValues(t *testing.T) {
	testSetup(t)

	if NotFoundError.Value() != int(unix.ENOENT) {
		t.Fatalf("Error, NotFoundError != ENOENT")
	}
	if IOError.Value() != int(unix.EIO) {
		t.Fatalf("Error, IOError != EIO")
	}
	if DevBusyError.Value() != int(unix.EBUSY) {
		t.Fatalf("Error, DevBusyError != EBUSY")
	}
	if InvalidArgError.Value() != int(unix.EINVAL) {
		t.Fatalf("Error, InvalidArgError != EINVAL")
	}
	if ReadOnlyError.Value() != int(unix.EROFS) {
		t.Fatalf("Error, ReadOnlyError != EROFS")
	}

	testTeardown(t)
}

func TestErrnoAnnotation(t *testing.T) {
	testSetup(t)

	// A plain error carries the failure errno
	plainErr := fmt.Errorf("some plain error")
	if Errno(plainErr) != -1 {
		t.Fatalf("Errno() of a plain error returned %d (expected -1)", Errno(plainErr))
	}

	// nil carries success
	if !IsSuccess(nil) {
		t.Fatalf("IsSuccess(nil) returned false")
	}

	// NewError() attaches the requested errno
	err := NewError(NotFoundError, "checkpoint %d not found", 17)
	if Errno(err) != int(unix.ENOENT) {
		t.Fatalf("Errno() returned %d (expected %d)", Errno(err), int(unix.ENOENT))
	}
	if !Is(err, NotFoundError) {
		t.Fatalf("Is(err, NotFoundError) returned false")
	}
	if IsNot(err, NotFoundError) {
		t.Fatalf("IsNot(err, NotFoundError) returned true")
	}

	// AddError() annotates a pre-existing error
	err = AddError(plainErr, DevBusyError)
	if !Is(err, DevBusyError) {
		t.Fatalf("Is(err, DevBusyError) returned false")
	}

	// Aliased constants compare equal through Is()
	if !Is(err, SnapshotBusyError) {
		t.Fatalf("Is(err, SnapshotBusyError) returned false")
	}

	// ErrorString() includes the errno value
	if ErrorString(err) == "" {
		t.Fatalf("ErrorString() returned an empty string")
	}

	testTeardown(t)
}
