package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestUpdateFromString(t *testing.T) {
	confMap := MakeConfMap()

	err := confMap.UpdateFromString("Volume:TestVolume.BlockSize=4096")
	if nil != err {
		t.Fatalf("UpdateFromString() returned error: %v", err)
	}

	blockSize, err := confMap.FetchOptionValueUint64("Volume:TestVolume", "BlockSize")
	if nil != err {
		t.Fatalf("FetchOptionValueUint64() returned error: %v", err)
	}
	if 4096 != blockSize {
		t.Fatalf("FetchOptionValueUint64() returned %v (expected 4096)", blockSize)
	}

	err = confMap.UpdateFromString("malformed string with no assignment")
	if nil == err {
		t.Fatalf("UpdateFromString() of a malformed string should have failed")
	}
}

func TestMakeConfMapFromStrings(t *testing.T) {
	confMap, err := MakeConfMapFromStrings([]string{
		"Logging.LogFilePath=/dev/null",
		"Logging.TraceLevelLogging=cpfile mdt",
		"TrackedLock.LockHoldTimeLimit=10s",
		"CpfileTest.ReadOnly=false",
		"CpfileTest.EmptyOption=",
	})
	if nil != err {
		t.Fatalf("MakeConfMapFromStrings() returned error: %v", err)
	}

	traceSlice, err := confMap.FetchOptionValueStringSlice("Logging", "TraceLevelLogging")
	if nil != err {
		t.Fatalf("FetchOptionValueStringSlice() returned error: %v", err)
	}
	if (2 != len(traceSlice)) || ("cpfile" != traceSlice[0]) || ("mdt" != traceSlice[1]) {
		t.Fatalf("FetchOptionValueStringSlice() returned %v", traceSlice)
	}

	lockHoldTimeLimit, err := confMap.FetchOptionValueDuration("TrackedLock", "LockHoldTimeLimit")
	if nil != err {
		t.Fatalf("FetchOptionValueDuration() returned error: %v", err)
	}
	if 10*time.Second != lockHoldTimeLimit {
		t.Fatalf("FetchOptionValueDuration() returned %v", lockHoldTimeLimit)
	}

	readOnly, err := confMap.FetchOptionValueBool("CpfileTest", "ReadOnly")
	if nil != err {
		t.Fatalf("FetchOptionValueBool() returned error: %v", err)
	}
	if readOnly {
		t.Fatalf("FetchOptionValueBool() returned true (expected false)")
	}

	err = confMap.VerifyOptionValueIsEmpty("CpfileTest", "EmptyOption")
	if nil != err {
		t.Fatalf("VerifyOptionValueIsEmpty() returned error: %v", err)
	}

	_, err = confMap.FetchOptionValueString("CpfileTest", "MissingOption")
	if nil == err {
		t.Fatalf("FetchOptionValueString() of a missing option should have failed")
	}

	_, err = confMap.FetchOptionValueString("Logging", "TraceLevelLogging")
	if nil == err {
		t.Fatalf("FetchOptionValueString() of a multi-valued option should have failed")
	}
}

func TestUpdateFromFile(t *testing.T) {
	var (
		confFileContents string
	)

	confFileContents = "" +
		"# seqfs test conf file\n" +
		"[Logging]\n" +
		"LogFilePath = /dev/null ; no log file\n" +
		"\n" +
		"[Volume:CommunityVolume]\n" +
		"BlockSize     : 1024\n" +
		"CheckpointEntrySize = 256\n"

	confFilePath := filepath.Join(t.TempDir(), "test.conf")
	err := os.WriteFile(confFilePath, []byte(confFileContents), 0644)
	if nil != err {
		t.Fatalf("os.WriteFile() returned error: %v", err)
	}

	confMap, err := MakeConfMapFromFile(confFilePath)
	if nil != err {
		t.Fatalf("MakeConfMapFromFile() returned error: %v", err)
	}

	logFilePath, err := confMap.FetchOptionValueString("Logging", "LogFilePath")
	if nil != err {
		t.Fatalf("FetchOptionValueString() returned error: %v", err)
	}
	if "/dev/null" != logFilePath {
		t.Fatalf("FetchOptionValueString() returned \"%v\"", logFilePath)
	}

	entrySize, err := confMap.FetchOptionValueUint32("Volume:CommunityVolume", "CheckpointEntrySize")
	if nil != err {
		t.Fatalf("FetchOptionValueUint32() returned error: %v", err)
	}
	if 256 != entrySize {
		t.Fatalf("FetchOptionValueUint32() returned %v", entrySize)
	}
}
