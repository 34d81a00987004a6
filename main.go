package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"m3u-transcoder/config"
	"m3u-transcoder/handlers"
	"m3u-transcoder/logger"
	"m3u-transcoder/playlist"
	"m3u-transcoder/store"
	"m3u-transcoder/transcode"

	"golang.org/x/sync/errgroup"
)

func main() {
	os.Exit(start())
}

// start runs the proxy until a signal arrives and returns the process exit
// code. Errors are logged before it returns.
func start() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Default.Errorf("Error loading configuration: %v", err)
		return 1
	}
	config.SetConfig(cfg)

	logger.Setup(logger.Options{
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Debug:      cfg.Debug,
		SafeLogs:   cfg.SafeLogs,
	})
	defer logger.Close()

	channels, err := playlist.Load(cfg.Playlist)
	if err != nil {
		logger.Default.Errorf("Error loading playlist: %v", err)
		return 1
	}
	logger.Default.Logf("Loaded %d channels from %s", channels.Len(), cfg.Playlist)

	if err := run(ctx, cfg, channels); err != nil {
		logger.Default.Errorf("Server error: %v", err)
		return 1
	}
	logger.Default.Log("Server stopped.")
	return 0
}

func run(ctx context.Context, cfg *config.Config, channels *playlist.Playlist) error {
	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return err
	}
	return serve(ctx, cfg, channels, ln)
}

// serve owns ln and closes it on return.
func serve(ctx context.Context, cfg *config.Config, channels *playlist.Playlist, ln net.Listener) error {
	sessions := store.NewSessionRegistry(logger.Default)

	engine := transcode.NewConfig(cfg.FFmpegPath, cfg.FFmpegInArgs, cfg.FFmpegOutArgs,
		cfg.GracefulTimeout, cfg.KillTimeout)

	router := handlers.NewRouter(
		handlers.NewPlaylistHTTPHandler(channels, cfg.ManifestCacheTTL, logger.Default),
		handlers.NewStreamHTTPHandler(channels, handlers.NewTranscoderOpener(engine, logger.Default),
			sessions, cfg.ChunkSize, logger.Default),
	)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var reporter *store.Reporter
	if cfg.StatsCron != "" {
		var err error
		reporter, err = store.NewReporter(sessions, cfg.StatsCron, logger.Default)
		if err != nil {
			_ = ln.Close()
			return err
		}
		reporter.Start()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Default.Logf("Server is running on %s...", ln.Addr())
		logger.Default.Log("Playlist Endpoint is running (`/`)")
		logger.Default.Log("Stream Endpoint is running (`/{channel}`)")
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Default.Log("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		shutdownErr := make(chan error, 1)
		go func() {
			shutdownErr <- server.Shutdown(shutdownCtx)
		}()

		// Streaming responses never finish on their own; stopping the
		// engines is what ends their copy loops.
		sessions.CloseAll()
		err := <-shutdownErr
		sessions.CloseAll()

		if reporter != nil {
			<-reporter.Stop().Done()
		}
		return err
	})

	return g.Wait()
}
