package handlers

import (
	"io"
	"net/url"

	"m3u-transcoder/logger"
	"m3u-transcoder/playlist"
	"m3u-transcoder/transcode"
)

// ChannelResolver finds a channel by name, case-insensitively.
type ChannelResolver interface {
	Lookup(name string) (playlist.Channel, error)
}

// TranscodedStream is what the copy loop reads from. Close must stop the
// engine and be safe to call more than once.
type TranscodedStream interface {
	io.ReadCloser
	Pid() int
	Stats() (transcode.Stats, error)
}

// StreamOpener starts one transcoded stream per call; streams are never
// shared between requests.
type StreamOpener interface {
	Open(source *url.URL) (TranscodedStream, error)
}

// TranscoderOpener opens streams backed by the engine process.
type TranscoderOpener struct {
	config transcode.Config
	logger logger.Logger
}

func NewTranscoderOpener(config transcode.Config, logger logger.Logger) *TranscoderOpener {
	return &TranscoderOpener{
		config: config,
		logger: logger,
	}
}

func (o *TranscoderOpener) Open(source *url.URL) (TranscodedStream, error) {
	stream, err := transcode.Open(o.config, source, transcode.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	return stream, nil
}
