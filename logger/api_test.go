package logger

import (
	"fmt"
	"strings"
	"testing"

	"github.com/seqfs/seqfs/conf"
	"github.com/seqfs/seqfs/utils"
)

func testNestedFunc() {
	myint := 3
	ctx := TraceEnter("the prefix", 1, myint)
	defer ctx.TraceExit("the prefix")
}

func TestAPI(t *testing.T) {
	confStrings := []string{
		"Logging.LogFilePath=/dev/null",
		"Logging.TraceLevelLogging=logger",
	}

	confMap, err := conf.MakeConfMapFromStrings(confStrings)
	if err != nil {
		t.Fatalf("%v", err)
	}

	err = Up(confMap)
	if nil != err {
		t.Fatalf("logger.Up(confMap) failed: %v", err)
	}

	Tracef("hello there!")
	Tracef("hello again, %s!", "you")
	Tracef("%v: %v", utils.GetFnName(), err)
	Warnf("%v: %v", "IAmTheCaller", "this is the error")
	err = fmt.Errorf("this is the error")
	ErrorfWithError(err, "we had an error!")

	testNestedFunc()

	err = Down()
	if nil != err {
		t.Fatalf("logger.Down() failed: %v", err)
	}
}

func TestLogTarget(t *testing.T) {
	var (
		target LogTarget
	)

	confMap, err := conf.MakeConfMapFromStrings([]string{"Logging.LogFilePath=/dev/null"})
	if nil != err {
		t.Fatalf("%v", err)
	}

	err = Up(confMap)
	if nil != err {
		t.Fatalf("logger.Up(confMap) failed: %v", err)
	}

	target.Init(8)
	AddLogTarget(target)

	Warnf("this warning should be captured %v", 16)

	if 1 != target.LogBuf.TotalEntries {
		t.Errorf("log target captured %d entries (expected 1)", target.LogBuf.TotalEntries)
	}
	if !strings.Contains(target.LogBuf.LogEntries[0], "this warning should be captured 16") {
		t.Errorf("log target entry 0 does not contain the logged message: %v",
			target.LogBuf.LogEntries[0])
	}

	err = Down()
	if nil != err {
		t.Fatalf("logger.Down() failed: %v", err)
	}
}
