package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"

	"github.com/nloopd/nloop/chainntnfs"
	"github.com/nloopd/nloop/contractcourt"
	"github.com/nloopd/nloop/swap"
	"github.com/nloopd/nloop/swapclient"
	"github.com/nloopd/nloop/swapdb"
)

// logWriter implements io.Writer and intercepts all writes made by the
// logging backend, pipes it to the rotator, exactly as the teacher's own
// root-level log.go does it.
type logWriter struct {
	rotatorPipe *io.PipeWriter
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	if w.rotatorPipe != nil {
		return w.rotatorPipe.Write(p)
	}
	return len(p), nil
}

var (
	writer     = &logWriter{}
	backendLog = btclog.NewBackend(writer)
	logRotator *rotator.Rotator

	swapLog = backendLog.Logger("SWAP")
	swdbLog = backendLog.Logger("SWDB")
	swclLog = backendLog.Logger("SWCL")
	chnfLog = backendLog.Logger("CHNF")
	ctctLog = backendLog.Logger("CTCT")

	// log is main's own logger, under the NLPD subsystem tag.
	log = backendLog.Logger("NLPD")
)

// subsystemLoggers maps each subsystem tag to its owning package's
// UseLogger hook, the same table-of-setters idiom the teacher uses to fan
// a single CLI --debuglevel flag out to every package.
var subsystemLoggers = map[string]func(btclog.Logger){
	"SWAP": swap.UseLogger,
	"SWDB": swapdb.UseLogger,
	"SWCL": func(btclog.Logger) {}, // swapclient has no package logger yet
	"CHNF": chainntnfs.UseLogger,
	"CTCT": contractcourt.UseLogger,
	"NLPD": func(l btclog.Logger) { log = l },
}

// initLogRotator initializes the logging rotator to write logs to logFile
// and create roll files in the same directory, mirroring the teacher's
// initLogRotator.
func initLogRotator(logFile string, maxLogFileSize, maxLogFiles int) error {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	r, err := rotator.New(logFile, int64(maxLogFileSize*1024), false, maxLogFiles)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}

	pr, pw := io.Pipe()
	go r.Run(pr)

	writer.rotatorPipe = pw
	logRotator = r
	return nil
}

// setLogLevel sets the logging level for the named subsystem. An unknown
// subsystem is ignored, and logLevel is parsed by btclog.LevelFromString
// without checking whether it named a valid level.
func setLogLevel(subsystemID string, logLevel string) {
	setFn, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}

	level, _ := btclog.LevelFromString(logLevel)
	logger := backendLog.Logger(subsystemID)
	logger.SetLevel(level)
	setFn(logger)
}

// setLogLevels sets the log level for every known subsystem; main passes
// the whole --debuglevel value to it, so that value is a single level.
func setLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		setLogLevel(subsystemID, logLevel)
	}
}
