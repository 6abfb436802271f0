package logger

import (
	"io"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/seqfs/seqfs/conf"
)

var logFile *os.File = nil

// multiWriter fans each log entry out to all registered writers.  Writers can
// be added after Up() via AddLogTarget().
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
		if nil != err {
			break
		}
	}
	mw.Unlock()

	// Hide the length written by any particular writer
	n = len(p)
	return
}

var logTargets multiWriter

func addLogTarget(writer io.Writer) {
	logTargets.addWriter(writer)
}

// Up initializes logging per confMap.
func Up(confMap conf.ConfMap) (err error) {
	log.SetFormatter(&log.TextFormatter{DisableColors: true})

	// Fetch log file info, if provided
	logFilePath, _ := confMap.FetchOptionValueString("Logging", "LogFilePath")
	if logFilePath != "" {
		logFile, err = os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Errorf("couldn't open log file: %v", err)
			return err
		}
	}

	// Determine whether we should log to console. Default is false.
	logToConsole, err := confMap.FetchOptionValueBool("Logging", "LogToConsole")
	if err != nil {
		logToConsole = false
	}

	logTargets.Lock()
	logTargets.writers = make([]io.Writer, 0, 2)
	logTargets.Unlock()
	if logFilePath == "" {
		logTargets.addWriter(os.Stderr)
	} else {
		logTargets.addWriter(logFile)
		if logToConsole {
			logTargets.addWriter(os.Stderr)
		}
	}
	log.SetOutput(&logTargets)

	// NOTE: We always enable max logging in logrus and decide in this
	//       package whether to emit each entry.
	log.SetLevel(log.DebugLevel)

	// Fetch trace and debug log settings, if provided
	traceConfSlice, _ := confMap.FetchOptionValueStringSlice("Logging", "TraceLevelLogging")
	setTraceLoggingLevel(traceConfSlice)

	debugConfSlice, _ := confMap.FetchOptionValueStringSlice("Logging", "DebugLevelLogging")
	setDebugLoggingLevel(debugConfSlice)

	return nil
}

// Down tears down logging.
func Down() (err error) {
	// We open and close our own logfile
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	return
}
