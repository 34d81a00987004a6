package transcode

import (
	"net/url"
	"strings"
	"time"
)

const (
	defaultBinary       = "ffmpeg"
	defaultStderrTail   = 8 * 1024
	quitCommand         = "q\n"
	stdoutTarget        = "pipe:1"
	defaultGracefulWait = 5 * time.Second
	defaultKillWait     = 5 * time.Second
)

// Config describes how the engine is invoked and how long Close waits at
// each stage of shutdown.
type Config struct {
	Binary     string
	InputArgs  []string
	OutputArgs []string

	// GracefulTimeout bounds the wait after the quit command is sent.
	GracefulTimeout time.Duration
	// KillTimeout bounds the wait for the process to be reaped after SIGKILL.
	KillTimeout time.Duration

	// StderrTail is how many trailing bytes of engine stderr are kept for
	// diagnostics.
	StderrTail int
}

func NewDefaultConfig() Config {
	return Config{
		Binary:          defaultBinary,
		OutputArgs:      []string{"-c", "copy", "-f", "mpegts"},
		GracefulTimeout: defaultGracefulWait,
		KillTimeout:     defaultKillWait,
		StderrTail:      defaultStderrTail,
	}
}

// NewConfig builds a Config from the whitespace separated argument strings
// used in the environment.
func NewConfig(binary, inArgs, outArgs string, graceful, kill time.Duration) Config {
	cfg := NewDefaultConfig()
	if binary != "" {
		cfg.Binary = binary
	}
	cfg.InputArgs = strings.Fields(inArgs)
	if fields := strings.Fields(outArgs); len(fields) > 0 {
		cfg.OutputArgs = fields
	}
	if graceful > 0 {
		cfg.GracefulTimeout = graceful
	}
	if kill > 0 {
		cfg.KillTimeout = kill
	}
	return cfg
}

// Args returns the engine argv (without the binary) for source. Output
// always goes to stdout.
func (c Config) Args(source *url.URL) []string {
	args := make([]string, 0, len(c.InputArgs)+len(c.OutputArgs)+3)
	args = append(args, c.InputArgs...)
	args = append(args, "-i", source.String())
	args = append(args, c.OutputArgs...)
	return append(args, stdoutTarget)
}

func (c Config) withDefaults() Config {
	if c.Binary == "" {
		c.Binary = defaultBinary
	}
	if c.GracefulTimeout <= 0 {
		c.GracefulTimeout = defaultGracefulWait
	}
	if c.KillTimeout <= 0 {
		c.KillTimeout = defaultKillWait
	}
	if c.StderrTail <= 0 {
		c.StderrTail = defaultStderrTail
	}
	return c
}
