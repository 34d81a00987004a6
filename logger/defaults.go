package logger

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where the default logger writes. A zero value logs to
// stdout only.
type Options struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Debug      bool
	SafeLogs   bool
}

type DefaultLogger struct {
	Logger
}

var Default = &DefaultLogger{}

var (
	mu       sync.RWMutex
	logger   = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	debug    = os.Getenv("DEBUG") == "true"
	safeLogs = os.Getenv("SAFE_LOGS") == "true"
	rotator  *lumberjack.Logger
)

var urlRegex = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*:\/\/[a-zA-Z0-9+%/.\-:_?&=#@+]+`)

// Setup replaces the output of the default logger. When opts.File is set,
// lines are written both to stdout and to a size-rotated file.
func Setup(opts Options) {
	mu.Lock()
	defer mu.Unlock()

	if rotator != nil {
		_ = rotator.Close()
		rotator = nil
	}

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stdout}
	if opts.File != "" {
		rotator = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		out = zerolog.MultiLevelWriter(out, zerolog.ConsoleWriter{Out: rotator, NoColor: true})
	}

	logger = zerolog.New(out).With().Timestamp().Logger()
	debug = opts.Debug
	safeLogs = opts.SafeLogs
}

// Close flushes and closes the rotated log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if rotator == nil {
		return nil
	}
	err := rotator.Close()
	rotator = nil
	return err
}

func cleanString(text string) string {
	return urlRegex.ReplaceAllString(text, "[redacted url]")
}

func current() (zerolog.Logger, bool, bool) {
	mu.RLock()
	defer mu.RUnlock()
	return logger, debug, safeLogs
}

func emit(level zerolog.Level, format string, v ...any) {
	l, debugOn, safe := current()
	if level == zerolog.DebugLevel && !debugOn {
		return
	}

	msg := format
	if len(v) > 0 {
		msg = fmt.Sprintf(format, v...)
	}
	if safe {
		msg = cleanString(msg)
	}

	l.WithLevel(level).Msg(msg)
	if level == zerolog.FatalLevel {
		os.Exit(1)
	}
}

func (*DefaultLogger) Log(format string) {
	emit(zerolog.InfoLevel, "%s", format)
}

func (*DefaultLogger) Logf(format string, v ...any) {
	emit(zerolog.InfoLevel, format, v...)
}

func (*DefaultLogger) Debug(format string) {
	emit(zerolog.DebugLevel, "%s", format)
}

func (*DefaultLogger) Debugf(format string, v ...any) {
	emit(zerolog.DebugLevel, format, v...)
}

func (*DefaultLogger) Error(format string) {
	emit(zerolog.ErrorLevel, "%s", format)
}

func (*DefaultLogger) Errorf(format string, v ...any) {
	emit(zerolog.ErrorLevel, format, v...)
}

func (*DefaultLogger) Warn(format string) {
	emit(zerolog.WarnLevel, "%s", format)
}

func (*DefaultLogger) Warnf(format string, v ...any) {
	emit(zerolog.WarnLevel, format, v...)
}

func (*DefaultLogger) Fatal(format string) {
	emit(zerolog.FatalLevel, "%s", format)
}

func (*DefaultLogger) Fatalf(format string, v ...any) {
	emit(zerolog.FatalLevel, format, v...)
}
