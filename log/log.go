package log

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// output is a structure for std logs.
type output struct {
	std     io.Writer
	message string
}

var (
	mu           sync.RWMutex
	globalLogger *logger
)

// Init inits global logger. Messages logged before Init are dropped.
func Init(level string, json bool) {
	InitWithOutput(level, json, os.Stdout, os.Stderr)
}

// InitWithOutput inits global logger with the given writers for
// informational and error messages.
func InitWithOutput(level string, json bool, stdout, stderr io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	globalLogger = newLogger(level, json, stdout, stderr)
}

// logLevel is the level of Logger.
type logLevel int

const (
	levelDebug logLevel = iota
	levelInfo
	levelWarning
	levelError
)

// String returns the string representation of logLevel.
func (l logLevel) String() string {
	switch l {
	case levelInfo:
		return ""
	case levelError:
		return "ERROR "
	case levelWarning:
		return "WARNING "
	case levelDebug:
		return "DEBUG "
	default:
		return "UNKNOWN "
	}
}

// levelFromString returns logLevel for given string. It
// return `levelInfo` as a default.
func levelFromString(s string) logLevel {
	switch s {
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warning":
		return levelWarning
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// logger is a structure for logging messages.
type logger struct {
	// outputCh is used to synchronize writes to standard output. Multi-line
	// logging is not possible if the worker and the UI loop print at the same
	// time.
	outputCh chan output
	donech   chan struct{}
	json     bool
	level    logLevel
	stdout   io.Writer
	stderr   io.Writer
}

// New creates new logger.
func newLogger(level string, json bool, stdout, stderr io.Writer) *logger {
	logger := &logger{
		outputCh: make(chan output, 10000),
		donech:   make(chan struct{}),
		json:     json,
		level:    levelFromString(level),
		stdout:   stdout,
		stderr:   stderr,
	}
	go logger.out()
	return logger
}

// printf prints message according to the given level, message and std mode.
func (l *logger) printf(level logLevel, message Message, std io.Writer) {
	if l == nil || level < l.level {
		return
	}
	l.emit(level, message, std)
}

func (l *logger) emit(level logLevel, message Message, std io.Writer) {
	if l.json {
		l.outputCh <- output{
			message: message.JSON(),
			std:     std,
		}
	} else {
		l.outputCh <- output{
			message: fmt.Sprintf("%v%v", level, message.String()),
			std:     std,
		}
	}
}

func current() *logger {
	mu.RLock()
	defer mu.RUnlock()
	return globalLogger
}

// Debug prints message in debug mode.
func Debug(msg Message) {
	l := current()
	if l == nil {
		return
	}
	l.printf(levelDebug, msg, l.stdout)
}

// Info prints message in info mode.
func Info(msg Message) {
	l := current()
	if l == nil {
		return
	}
	l.printf(levelInfo, msg, l.stdout)
}

// Stat prints stat message regardless of the log level.
func Stat(msg Message) {
	l := current()
	if l == nil {
		return
	}
	l.emit(levelInfo, msg, l.stdout)
}

// Warning prints message in warning mode.
func Warning(msg Message) {
	l := current()
	if l == nil {
		return
	}
	l.printf(levelWarning, msg, l.stderr)
}

// Error prints message in error mode.
func Error(msg Message) {
	l := current()
	if l == nil {
		return
	}
	l.printf(levelError, msg, l.stderr)
}

// out listens for outputCh and logs messages.
func (l *logger) out() {
	defer close(l.donech)

	for output := range l.outputCh {
		_, _ = fmt.Fprintln(output.std, output.message)
	}
}

// Close closes logger and its channel. Messages queued before Close are
// flushed.
func Close() {
	mu.Lock()
	l := globalLogger
	globalLogger = nil
	mu.Unlock()

	if l == nil {
		return
	}
	close(l.outputCh)
	<-l.donech
}
