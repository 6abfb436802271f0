package utils

import (
	"strings"
	"testing"
	"time"
)

func TestGetFuncPackage(t *testing.T) {
	fn, pkg, goId := GetFuncPackage(0)
	if "TestGetFuncPackage" != fn {
		t.Fatalf("GetFuncPackage() returned fn == \"%v\" (expected \"TestGetFuncPackage\")", fn)
	}
	if "utils" != pkg {
		t.Fatalf("GetFuncPackage() returned pkg == \"%v\" (expected \"utils\")", pkg)
	}
	if 0 == goId {
		t.Fatalf("GetFuncPackage() returned goId == 0")
	}
}

func TestGetFnName(t *testing.T) {
	if !strings.HasSuffix(GetFnName(), "TestGetFnName") {
		t.Fatalf("GetFnName() returned \"%v\"", GetFnName())
	}
}

func TestStackTraceToGoId(t *testing.T) {
	goId := StackTraceToGoId([]byte("goroutine 42 [running]:\n"))
	if 42 != goId {
		t.Fatalf("StackTraceToGoId() returned %v (expected 42)", goId)
	}

	goId = StackTraceToGoId([]byte("garbage"))
	if 0 != goId {
		t.Fatalf("StackTraceToGoId(\"garbage\") returned %v (expected 0)", goId)
	}
}

func TestHexStr(t *testing.T) {
	str := Uint64ToHexStr(uint64(0x123456789ABCDEF0))
	if "123456789ABCDEF0" != str {
		t.Fatalf("Uint64ToHexStr() returned \"%v\"", str)
	}

	u64, err := HexStrToUint64(str)
	if nil != err {
		t.Fatalf("HexStrToUint64() returned error: %v", err)
	}
	if uint64(0x123456789ABCDEF0) != u64 {
		t.Fatalf("HexStrToUint64() returned 0x%016X", u64)
	}
}

func TestStopwatch(t *testing.T) {
	sw := NewStopwatch()
	time.Sleep(time.Millisecond)
	elapsed := sw.Stop()
	if elapsed <= 0 {
		t.Fatalf("Stopwatch.Stop() returned non-positive elapsed time %v", elapsed)
	}
	if sw.IsRunning {
		t.Fatalf("Stopwatch still running after Stop()")
	}
	if sw.Elapsed() != elapsed {
		t.Fatalf("Stopwatch.Elapsed() changed after Stop()")
	}

	sw.Restart()
	if !sw.IsRunning {
		t.Fatalf("Stopwatch not running after Restart()")
	}
}
