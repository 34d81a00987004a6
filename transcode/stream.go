package transcode

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"m3u-transcoder/logger"
)

var (
	// ErrStart wraps every failure to launch the engine.
	ErrStart = errors.New("transcoder failed to start")
	// ErrNotReaped is returned by Close when the engine survived SIGKILL
	// for longer than KillTimeout.
	ErrNotReaped = errors.New("transcoder process was not reaped")
)

// drainGrace is how long Close lets the stderr drain finish on its own once
// the engine has exited, so the final diagnostics are captured.
const drainGrace = 250 * time.Millisecond

type Option func(*Stream)

func WithLogger(l logger.Logger) Option {
	return func(s *Stream) {
		s.logger = l
	}
}

// Stream is one running engine process exposed as an io.ReadCloser over its
// stdout. A Stream is owned by exactly one request.
type Stream struct {
	cfg    Config
	logger logger.Logger
	source string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *os.File
	stderr *os.File

	startedAt time.Time
	exited    chan struct{}
	waitErr   error
	drained   chan struct{}
	tail      *tailBuffer

	// kill forcibly terminates the engine and its helpers.
	kill func() error

	closeOnce sync.Once
	closeErr  error
}

// Open starts the engine against source. The returned Stream must be
// closed; Close is what guarantees the process is gone.
func Open(cfg Config, source *url.URL, opts ...Option) (*Stream, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: no source", ErrStart)
	}

	s := &Stream{
		cfg:     cfg.withDefaults(),
		logger:  logger.Default,
		source:  source.String(),
		exited:  make(chan struct{}),
		drained: make(chan struct{}),
	}
	s.kill = s.killGroup
	for _, opt := range opts {
		opt(s)
	}

	if err := s.start(source); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStart, err)
	}

	s.logger.Debugf("Started transcoder pid %d for %s", s.Pid(), s.source)
	return s, nil
}

func (s *Stream) start(source *url.URL) error {
	cmd := exec.Command(s.cfg.Binary, s.cfg.Args(source)...)
	setProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return err
	}

	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		closeFiles(stdoutR, stdoutW)
		return err
	}

	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		closeFiles(stdoutR, stdoutW, stderrR, stderrW)
		return err
	}

	// The child holds its own copies of the write ends.
	closeFiles(stdoutW, stderrW)

	s.cmd = cmd
	s.stdin = stdin
	s.stdout = stdoutR
	s.stderr = stderrR
	s.startedAt = time.Now()
	s.tail = newTailBuffer(s.cfg.StderrTail)

	go s.drain()
	go s.wait()

	return nil
}

func (s *Stream) wait() {
	s.waitErr = s.cmd.Wait()
	close(s.exited)
}

// drain discards stderr as fast as the engine writes it, keeping only a
// bounded tail. An undrained stderr pipe eventually blocks the engine's
// stdout writes.
func (s *Stream) drain() {
	defer close(s.drained)

	buf := make([]byte, 4096)
	for {
		n, err := s.stderr.Read(buf)
		if n > 0 {
			_, _ = s.tail.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// Read blocks until the engine has produced output. Any end of output,
// whether a clean exit, a crash, or a concurrent Close, is reported as
// io.EOF.
func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
		s.logger.Debugf("Transcoder pid %d read error treated as end of stream: %v", s.Pid(), err)
	}
	return n, io.EOF
}

// Close stops the engine and releases every handle. It is safe to call
// more than once and from several goroutines; all callers return only
// after the first shutdown has finished.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.shutdown()
	})
	return s.closeErr
}

func (s *Stream) shutdown() error {
	var err error
	if s.Running() {
		err = s.stop()
	}
	if err == nil {
		s.reapHelpers()
	}

	_ = s.stdin.Close()
	_ = s.stdout.Close()

	if s.exitedWithin(0) {
		select {
		case <-s.drained:
		case <-time.After(drainGrace):
		}
	}
	_ = s.stderr.Close()
	<-s.drained

	s.logExit(s.tail.Release())
	return err
}

// stop asks the engine to quit, then kills it if it does not comply within
// GracefulTimeout.
func (s *Stream) stop() error {
	pid := s.Pid()

	if _, err := io.WriteString(s.stdin, quitCommand); err != nil {
		s.logger.Debugf("Transcoder pid %d: could not send quit command: %v", pid, err)
	}
	_ = s.stdin.Close()

	if s.exitedWithin(s.cfg.GracefulTimeout) {
		s.logger.Debugf("Transcoder pid %d stopped gracefully", pid)
		return nil
	}

	s.logger.Warnf("Transcoder pid %d ignored quit command after %s, killing", pid, s.cfg.GracefulTimeout)
	if err := s.kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Errorf("Transcoder pid %d: kill failed: %v", pid, err)
	}

	if s.exitedWithin(s.cfg.KillTimeout) {
		return nil
	}

	s.logger.Errorf("Transcoder pid %d was not reaped within %s", pid, s.cfg.KillTimeout)
	return fmt.Errorf("%w: pid %d", ErrNotReaped, pid)
}

// reapHelpers kills whatever the engine left running in its process group.
// Left alone they would outlive the stream and hold its pipes open.
func (s *Stream) reapHelpers() {
	if err := s.kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Debugf("Transcoder pid %d: could not kill leftover helpers: %v", s.Pid(), err)
	}
}

func (s *Stream) exitedWithin(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-s.exited:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-s.exited:
		return true
	case <-timer.C:
		return false
	}
}

func (s *Stream) logExit(stderrTail string) {
	if !s.exitedWithin(0) {
		return
	}

	uptime := time.Since(s.startedAt).Round(time.Millisecond)
	if s.waitErr == nil {
		s.logger.Debugf("Transcoder pid %d exited cleanly after %s", s.Pid(), uptime)
		return
	}

	s.logger.Debugf("Transcoder pid %d exited after %s: %v", s.Pid(), uptime, s.waitErr)
	if tail := strings.TrimSpace(stderrTail); tail != "" {
		s.logger.Debugf("Transcoder pid %d stderr: %s", s.Pid(), lastLine(tail))
	}
}

// Running reports whether the engine process has not yet been reaped.
func (s *Stream) Running() bool {
	return !s.exitedWithin(0)
}

// Exited is closed once the engine process has been reaped.
func (s *Stream) Exited() <-chan struct{} {
	return s.exited
}

// Err returns the engine's exit error once it has exited. It is nil while
// the engine runs and after a clean exit.
func (s *Stream) Err() error {
	if !s.exitedWithin(0) {
		return nil
	}
	return s.waitErr
}

func (s *Stream) Pid() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

func (s *Stream) StartedAt() time.Time {
	return s.startedAt
}

// Stderr returns the retained tail of the engine's stderr. It is empty
// after Close.
func (s *Stream) Stderr() string {
	return s.tail.String()
}

func lastLine(text string) string {
	lines := strings.FieldsFunc(text, func(r rune) bool {
		return r == '\n' || r == '\r'
	})
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

func closeFiles(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
