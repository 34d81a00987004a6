//go:build !windows

package transcode

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	// Writes a little output, then blocks until the quit command arrives.
	cooperativeEngine = `printf 'mpegts'; read cmd; [ "$cmd" = q ] && exit 0; exit 9`
	// Never reads stdin and ignores polite signals.
	stubbornEngine = `trap '' INT TERM; while :; do printf x; sleep 0.05; done`
	finiteEngine   = `printf 'abc'; exit 0`
	crashingEngine = `printf 'abc'; echo 'boom: input/output error' >&2; exit 3`
	// Writes well past a pipe buffer of stderr before any stdout.
	noisyEngine = `i=0; while [ $i -lt 3000 ]; do echo "frame=$i fps=25 q=-1.0 size=N/A time=00:00:01.00 bitrate=N/A" >&2; i=$((i+1)); done; printf 'done'`
	// Leaves a background helper in its process group, then quits on request.
	helperEngine = `sleep 30 & echo "helper=$!" >&2; read cmd; exit 0`
	// Echoes its argv so the invocation can be checked.
	argvEngine = `printf '%s|' "$@"`
)

var testSource = mustParse("http://example.test/news.m3u8")

func mustParse(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

func fakeEngine(script string) Config {
	return Config{
		Binary:          "/bin/sh",
		InputArgs:       []string{"-c", script, "fake-ffmpeg"},
		OutputArgs:      []string{"-c", "copy", "-f", "mpegts"},
		GracefulTimeout: 2 * time.Second,
		KillTimeout:     2 * time.Second,
	}
}

func openFake(t *testing.T, script string) *Stream {
	t.Helper()
	s, err := Open(fakeEngine(script), testSource)
	require.NoError(t, err)
	return s
}

func pidExists(t *testing.T, pid int) bool {
	t.Helper()
	exists, err := process.PidExists(int32(pid))
	require.NoError(t, err)
	return exists
}

// processAlive treats zombies as gone: an orphaned helper is reaped by
// whatever adopts it, not by this process.
func processAlive(pid int) bool {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	status, err := p.Status()
	if err != nil {
		return false
	}
	for _, st := range status {
		if st == process.Zombie {
			return false
		}
	}
	return true
}

func TestArgs(t *testing.T) {
	cfg := NewConfig("ffmpeg", "-re -hide_banner", "-c:v libx264 -f mpegts", 0, 0)

	assert.Equal(t,
		[]string{"-re", "-hide_banner", "-i", "http://example.test/news.m3u8", "-c:v", "libx264", "-f", "mpegts", "pipe:1"},
		cfg.Args(testSource))
	assert.Equal(t, defaultGracefulWait, cfg.GracefulTimeout)

	defaults := NewConfig("", "", "", time.Second, 2*time.Second)
	assert.Equal(t, "ffmpeg", defaults.Binary)
	assert.Equal(t, []string{"-i", "http://example.test/news.m3u8", "-c", "copy", "-f", "mpegts", "pipe:1"}, defaults.Args(testSource))
	assert.Equal(t, time.Second, defaults.GracefulTimeout)
	assert.Equal(t, 2*time.Second, defaults.KillTimeout)
}

func TestOpenPassesSourceToEngine(t *testing.T) {
	s := openFake(t, argvEngine)
	defer s.Close()

	out, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "-i|http://example.test/news.m3u8|-c|copy|-f|mpegts|pipe:1|", string(out))
}

func TestOpenStartError(t *testing.T) {
	cfg := fakeEngine(finiteEngine)
	cfg.Binary = "/nonexistent/ffmpeg"

	s, err := Open(cfg, testSource)
	require.ErrorIs(t, err, ErrStart)
	assert.Nil(t, s)

	_, err = Open(fakeEngine(finiteEngine), nil)
	require.ErrorIs(t, err, ErrStart)
}

func TestReadUntilCleanExit(t *testing.T) {
	s := openFake(t, finiteEngine)
	defer s.Close()

	out, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(out))

	n, err := s.Read(make([]byte, 16))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestCrashIsSilentEOF(t *testing.T) {
	s := openFake(t, crashingEngine)

	out, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(out))

	<-s.Exited()
	assert.Error(t, s.Err())
	assert.Eventually(t, func() bool {
		return strings.Contains(s.Stderr(), "boom")
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Close())
	assert.Empty(t, s.Stderr())
}

func TestNoisyStderrDoesNotStallOutput(t *testing.T) {
	s := openFake(t, noisyEngine)
	defer s.Close()

	done := make(chan []byte, 1)
	go func() {
		out, _ := io.ReadAll(s)
		done <- out
	}()

	select {
	case out := <-done:
		assert.Equal(t, "done", string(out))
	case <-time.After(10 * time.Second):
		t.Fatal("engine stalled behind an undrained stderr")
	}

	assert.LessOrEqual(t, len(s.Stderr()), defaultStderrTail)
}

func TestCloseGraceful(t *testing.T) {
	s := openFake(t, cooperativeEngine)
	pid := s.Pid()

	buf := make([]byte, 6)
	_, err := io.ReadFull(s, buf)
	require.NoError(t, err)
	assert.Equal(t, "mpegts", string(buf))
	assert.True(t, s.Running())

	start := time.Now()
	require.NoError(t, s.Close())

	assert.Less(t, time.Since(start), s.cfg.GracefulTimeout)
	assert.False(t, s.Running())
	assert.NoError(t, s.Err())
	assert.False(t, pidExists(t, pid))
}

func TestCloseEscalatesToKill(t *testing.T) {
	cfg := fakeEngine(stubbornEngine)
	cfg.GracefulTimeout = 200 * time.Millisecond
	cfg.KillTimeout = 2 * time.Second

	s, err := Open(cfg, testSource)
	require.NoError(t, err)
	pid := s.Pid()

	_, err = s.Read(make([]byte, 1))
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, s.Close())
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, cfg.GracefulTimeout)
	assert.Less(t, elapsed, cfg.GracefulTimeout+cfg.KillTimeout)
	assert.False(t, s.Running())
	assert.Error(t, s.Err())
	assert.False(t, pidExists(t, pid))
}

func TestCloseKillsLeftoverHelpers(t *testing.T) {
	s := openFake(t, helperEngine)

	var helper int
	require.Eventually(t, func() bool {
		_, err := fmt.Sscanf(strings.TrimSpace(s.Stderr()), "helper=%d", &helper)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	require.True(t, processAlive(helper))

	start := time.Now()
	require.NoError(t, s.Close())

	assert.Less(t, time.Since(start), drainGrace)
	assert.NoError(t, s.Err())
	assert.Eventually(t, func() bool {
		return !processAlive(helper)
	}, time.Second, 10*time.Millisecond)
}

func TestCloseReportsUnreapedEngine(t *testing.T) {
	cfg := fakeEngine(stubbornEngine)
	cfg.GracefulTimeout = 100 * time.Millisecond
	cfg.KillTimeout = 100 * time.Millisecond

	s, err := Open(cfg, testSource)
	require.NoError(t, err)
	// A kill the kernel never completes.
	s.kill = func() error { return nil }

	start := time.Now()
	err = s.Close()
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrNotReaped)
	assert.GreaterOrEqual(t, elapsed, cfg.GracefulTimeout+cfg.KillTimeout)
	assert.Less(t, elapsed, cfg.GracefulTimeout+cfg.KillTimeout+time.Second)
	assert.ErrorIs(t, s.Close(), ErrNotReaped)

	n, err := s.Read(make([]byte, 8))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)

	if err := s.killGroup(); err != nil {
		require.ErrorIs(t, err, os.ErrProcessDone)
	}
	select {
	case <-s.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("engine survived a real kill")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := openFake(t, cooperativeEngine)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	n, err := s.Read(make([]byte, 8))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestConcurrentCloseWaitsForShutdown(t *testing.T) {
	cfg := fakeEngine(stubbornEngine)
	cfg.GracefulTimeout = 100 * time.Millisecond

	s, err := Open(cfg, testSource)
	require.NoError(t, err)
	pid := s.Pid()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Close()
			assert.False(t, s.Running())
		}()
	}
	wg.Wait()

	assert.False(t, pidExists(t, pid))
}

func TestCloseUnblocksPendingRead(t *testing.T) {
	s := openFake(t, `read cmd; exit 0`)

	readErr := make(chan error, 1)
	go func() {
		_, err := s.Read(make([]byte, 32))
		readErr <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.Close())

	select {
	case err := <-readErr:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(5 * time.Second):
		t.Fatal("read was not released by Close")
	}
}

func TestStats(t *testing.T) {
	s := openFake(t, cooperativeEngine)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, s.Pid(), stats.PID)
	assert.True(t, stats.Running)

	require.NoError(t, s.Close())

	stats, err = s.Stats()
	require.NoError(t, err)
	assert.False(t, stats.Running)
}

func TestTailBuffer(t *testing.T) {
	tail := newTailBuffer(8)

	_, _ = tail.Write([]byte("abc"))
	_, _ = tail.Write([]byte("defgh"))
	assert.Equal(t, "abcdefgh", tail.String())

	_, _ = tail.Write([]byte("ij"))
	assert.Equal(t, "cdefghij", tail.String())

	_, _ = tail.Write([]byte("0123456789"))
	assert.Equal(t, "23456789", tail.String())

	assert.Equal(t, "23456789", tail.Release())
	n, err := tail.Write([]byte("late"))
	assert.Equal(t, 4, n)
	assert.NoError(t, err)
	assert.Empty(t, tail.String())
}
