package trackedlock

import (
	"sync"
	"testing"
	"time"

	"github.com/seqfs/seqfs/conf"
	"github.com/seqfs/seqfs/logger"
)

var testConfMap conf.ConfMap

// logTarget captures the log entries so the tests can inspect the warnings
// the package generates.
var testLogTarget logger.LogTarget

func testSetup(t *testing.T, confStrings []string) {
	var (
		err error
	)

	testConfMap, err = conf.MakeConfMapFromStrings(confStrings)
	if nil != err {
		t.Fatalf("conf.MakeConfMapFromStrings() failed: %v", err)
	}

	err = logger.Up(testConfMap)
	if nil != err {
		t.Fatalf("logger.Up() failed: %v", err)
	}

	testLogTarget.Init(16)
	logger.AddLogTarget(testLogTarget)

	err = Up(testConfMap)
	if nil != err {
		t.Fatalf("trackedlock.Up() failed: %v", err)
	}
}

func testTeardown(t *testing.T) {
	var (
		err error
	)

	err = Down()
	if nil != err {
		t.Fatalf("trackedlock.Down() failed: %v", err)
	}

	err = logger.Down()
	if nil != err {
		t.Fatalf("logger.Down() failed: %v", err)
	}
}

// Basic lock functionality with tracking disabled.
func TestUntrackedLocks(t *testing.T) {
	testSetup(t, []string{
		"Logging.LogFilePath=/dev/null",
		"TrackedLock.LockHoldTimeLimit=0s",
		"TrackedLock.LockCheckPeriod=0s",
	})

	var (
		mutex   Mutex
		rwMutex RWMutex
	)

	mutex.Lock()
	mutex.Unlock()

	rwMutex.Lock()
	rwMutex.Unlock()

	rwMutex.RLock()
	rwMutex.RUnlock()

	// multiple concurrent readers
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rwMutex.RLock()
			time.Sleep(time.Millisecond)
			rwMutex.RUnlock()
		}()
	}
	wg.Wait()

	testTeardown(t)
}

// A lock held longer than LockHoldTimeLimit generates a warning at Unlock().
func TestLockHoldTooLong(t *testing.T) {
	testSetup(t, []string{
		"Logging.LogFilePath=/dev/null",
		"TrackedLock.LockHoldTimeLimit=1s",
		"TrackedLock.LockCheckPeriod=0s",
	})

	var (
		mutex Mutex
	)

	entriesBefore := testLogTarget.LogBuf.TotalEntries

	mutex.Lock()
	time.Sleep(1100 * time.Millisecond)
	mutex.Unlock()

	if testLogTarget.LogBuf.TotalEntries == entriesBefore {
		t.Errorf("holding a Mutex longer than LockHoldTimeLimit did not log a warning")
	}

	testTeardown(t)
}

// An RWMutex read-held longer than LockHoldTimeLimit generates a warning at
// RUnlock().
func TestRLockHoldTooLong(t *testing.T) {
	testSetup(t, []string{
		"Logging.LogFilePath=/dev/null",
		"TrackedLock.LockHoldTimeLimit=1s",
		"TrackedLock.LockCheckPeriod=0s",
	})

	var (
		rwMutex RWMutex
	)

	entriesBefore := testLogTarget.LogBuf.TotalEntries

	rwMutex.RLock()
	time.Sleep(1100 * time.Millisecond)
	rwMutex.RUnlock()

	if testLogTarget.LogBuf.TotalEntries == entriesBefore {
		t.Errorf("read-holding an RWMutex longer than LockHoldTimeLimit did not log a warning")
	}

	testTeardown(t)
}

// The lock watcher logs a lock that is held across check periods.
func TestLockWatcher(t *testing.T) {
	testSetup(t, []string{
		"Logging.LogFilePath=/dev/null",
		"TrackedLock.LockHoldTimeLimit=1s",
		"TrackedLock.LockCheckPeriod=1s",
	})

	var (
		mutex Mutex
	)

	entriesBefore := testLogTarget.LogBuf.TotalEntries

	mutex.Lock()
	time.Sleep(2500 * time.Millisecond)

	if testLogTarget.LogBuf.TotalEntries == entriesBefore {
		t.Errorf("the lock watcher did not log a lock held across check periods")
	}

	mutex.Unlock()

	testTeardown(t)
}
