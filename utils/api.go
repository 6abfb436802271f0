// Package utils provides miscellaneous runtime helpers for seqfs.
package utils

import (
	"bytes"
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"time"
)

// StackTraceToGoId extracts the goroutine ID from the header line of a stack
// trace produced by runtime.Stack().
func StackTraceToGoId(buf []byte) uint64 {
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	spaceAt := bytes.IndexByte(buf, ' ')
	if 0 > spaceAt {
		return 0
	}
	goId, _ := strconv.ParseUint(string(buf[:spaceAt]), 10, 64)
	return goId
}

// GetGoId returns the ID of the calling goroutine.
//
// Logging the goroutine context is useful when trying to debug things like
// locking, though fetching it requires a (partial) stack trace.
func GetGoId() uint64 {
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	return StackTraceToGoId(b)
}

var extractFnNameRE = regexp.MustCompile(`[^\/]*$`)
var extractPkgNameRE = regexp.MustCompile(`^[^.]*`)
var extractBareFnNameRE = regexp.MustCompile(`[^.]*$`)

// GetAFnName returns a string containing the package and name of the function
// found the requested number of levels up the call stack.
func GetAFnName(level int) string {
	// Add one level to skip this function itself
	pc, _, _, _ := runtime.Caller(level + 1)
	functionObject := runtime.FuncForPC(pc)
	if nil == functionObject {
		return "unknown.unknown"
	}
	// Strip the module path, leaving just package.function
	return extractFnNameRE.FindString(functionObject.Name())
}

// GetFuncPackage returns separate strings containing the calling function and
// its package, plus the caller's goroutine ID.
func GetFuncPackage(level int) (fn string, pkg string, goId uint64) {
	funcPkg := GetAFnName(level + 1)

	pkg = extractPkgNameRE.FindString(funcPkg)
	fn = extractBareFnNameRE.FindString(funcPkg)
	goId = GetGoId()

	return
}

// GetFnName returns the name of the running function and its package.
func GetFnName() string {
	return GetAFnName(1)
}

// GetCallerFnName returns the name of the calling function.
func GetCallerFnName() string {
	return GetAFnName(2)
}

func Uint64ToHexStr(value uint64) string {
	return fmt.Sprintf("%016X", value)
}

func HexStrToUint64(value string) (uint64, error) {
	return strconv.ParseUint(value, 16, 64)
}

type Stopwatch struct {
	StartTime   time.Time
	StopTime    time.Time
	ElapsedTime time.Duration
	IsRunning   bool
}

func NewStopwatch() *Stopwatch {
	return &Stopwatch{StartTime: time.Now(), IsRunning: true}
}

func (sw *Stopwatch) Stop() time.Duration {
	sw.StopTime = time.Now()

	// Stopwatch should have been running when stopped, but
	// to avoid making callers do error checking we just
	// don't do calculations if it wasn't.
	if sw.IsRunning {
		sw.ElapsedTime = sw.StopTime.Sub(sw.StartTime)
		sw.IsRunning = false
	}
	return sw.ElapsedTime
}

func (sw *Stopwatch) Restart() {
	if !sw.IsRunning {
		sw.ElapsedTime = 0
		sw.StartTime = time.Now()
		sw.StopTime = time.Time{}
		sw.IsRunning = true
	}
}

func (sw *Stopwatch) Elapsed() time.Duration {
	if !sw.IsRunning {
		return sw.ElapsedTime
	}
	return time.Since(sw.StartTime)
}

func (sw *Stopwatch) ElapsedMs() int64 {
	return int64(sw.Elapsed() / time.Millisecond)
}

func (sw *Stopwatch) ElapsedUs() int64 {
	return int64(sw.Elapsed() / time.Microsecond)
}

func (sw *Stopwatch) ElapsedString() string {
	return sw.Elapsed().String()
}
