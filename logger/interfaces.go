package logger

// Logger is the logging surface handed to every component. Implementations
// must be safe for concurrent use since each request logs from its own
// goroutine.
type Logger interface {
	Log(format string)
	Logf(format string, v ...any)

	Warn(format string)
	Warnf(format string, v ...any)

	Debug(format string)
	Debugf(format string, v ...any)

	Error(format string)
	Errorf(format string, v ...any)

	Fatal(format string)
	Fatalf(format string, v ...any)
}

// Discard drops everything. Fatal and Fatalf still exit.
var Discard Logger = discardLogger{}

type discardLogger struct{}

func (discardLogger) Log(string)            {}
func (discardLogger) Logf(string, ...any)   {}
func (discardLogger) Warn(string)           {}
func (discardLogger) Warnf(string, ...any)  {}
func (discardLogger) Debug(string)          {}
func (discardLogger) Debugf(string, ...any) {}
func (discardLogger) Error(string)          {}
func (discardLogger) Errorf(string, ...any) {}

func (discardLogger) Fatal(format string) {
	Default.Fatal(format)
}

func (discardLogger) Fatalf(format string, v ...any) {
	Default.Fatalf(format, v...)
}
