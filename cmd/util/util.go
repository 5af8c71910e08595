package util

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	"github.com/mtpsync/mtpsync/pkg/config"
	"github.com/mtpsync/mtpsync/pkg/errors"
	"github.com/mtpsync/mtpsync/pkg/version"
)

// HandleFatalError prints the user-facing message for err and exits with a
// non-zero status.
func HandleFatalError(err error) {
	log.WithError(err).Debug("Fatal error")
	fmt.Fprintf(os.Stderr, "Error: %s\n", errors.GetPrintableMessage(err))
	os.Exit(1)
}

// HandlePanic recovers from panics, and prints where to report the crash
// before exiting.
func HandlePanic() {
	r := recover()
	if r == nil {
		return
	}

	fmt.Fprintf(os.Stderr,
		"mtpsync crashed (version %s). Please report this at "+
			"https://github.com/mtpsync/mtpsync/issues with the trace below.\n\n%v\n%s\n",
		version.Version, r, debug.Stack())
	os.Exit(1)
}

// SetupLogging configures logrus: events go to stderr at the given level,
// and everything down to Debug is also appended to the sync log file so
// failed runs can be diagnosed afterwards.
func SetupLogging(level string) error {
	parsedLevel, err := log.ParseLevel(level)
	if err != nil {
		return errors.NewFriendlyError("Unknown log level %q", level)
	}
	log.SetLevel(parsedLevel)

	logDir, err := config.LogDir()
	if err != nil {
		return errors.WithContext(err, "resolve log directory")
	}

	logPath := filepath.Join(logDir, "sync.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return errors.WithContext(err, "open log file")
	}

	log.AddHook(&fileHook{file: logFile})
	return nil
}

// fileHook duplicates every log entry into the sync log file, regardless of
// the console level.
type fileHook struct {
	file *os.File
}

func (hook *fileHook) Levels() []log.Level {
	return log.AllLevels
}

func (hook *fileHook) Fire(entry *log.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}
	_, err = hook.file.WriteString(line)
	return err
}
