package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"m3u-transcoder/logger"
	"m3u-transcoder/playlist"
	"m3u-transcoder/store"
	"m3u-transcoder/utils"

	"github.com/gorilla/mux"
)

const streamContentType = "video/mp2t"

// StreamHTTPHandler resolves a channel, starts an engine for it and copies
// the engine's output to the client until either side goes away.
type StreamHTTPHandler struct {
	channels ChannelResolver
	opener   StreamOpener
	sessions *store.SessionRegistry
	buffers  *utils.BufferPool
	logger   logger.Logger
}

func NewStreamHTTPHandler(channels ChannelResolver, opener StreamOpener, sessions *store.SessionRegistry,
	chunkSize int, logger logger.Logger) *StreamHTTPHandler {
	return &StreamHTTPHandler{
		channels: channels,
		opener:   opener,
		sessions: sessions,
		buffers:  utils.NewBufferPool(chunkSize),
		logger:   logger,
	}
}

func (h *StreamHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	client := utils.ClientAddr(r)
	name := channelName(r)

	h.logger.Logf("Received request from %s for channel: %s", client, name)

	channel, err := h.channels.Lookup(name)
	if err != nil {
		if errors.Is(err, playlist.ErrChannelNotFound) {
			h.logger.Logf("Channel %q requested by %s does not exist", name, client)
			writeNotFound(w, name)
			return
		}
		h.logger.Errorf("Error resolving channel %q: %v", name, err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	stream, err := h.opener.Open(channel.Source())
	if err != nil {
		h.logger.Errorf("Error starting transcoder for channel %s: %v", channel.Name(), err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	session := h.sessions.Register(channel.Name(), client, stream)

	// Fires as soon as the client goes away, even while the copy loop is
	// blocked in Read; closing the stream is what releases that Read.
	stopHook := context.AfterFunc(ctx, func() {
		h.logger.Debugf("Client %s disconnected from %s, closing transcoder pid %d", client, channel.Name(), stream.Pid())
		_ = stream.Close()
	})

	defer func() {
		stopHook()
		if err := stream.Close(); err != nil {
			h.logger.Errorf("Error closing transcoder for channel %s: %v", channel.Name(), err)
		}
		h.sessions.Remove(session.ID)
	}()

	h.writeHeaders(w)

	written, status := h.copyStream(ctx, w, stream)
	h.logger.Logf("Finished streaming %s to %s: %s after %d bytes", channel.Name(), client, statusText(status), written)
}

func (h *StreamHTTPHandler) writeHeaders(w http.ResponseWriter) {
	header := w.Header()
	header.Del("Content-Length")
	header.Set("Content-Type", streamContentType)
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := http.NewResponseController(w).Flush(); err != nil {
		h.logger.Debugf("Unable to flush stream headers: %v", err)
	}
}

// copyStream moves engine output to the client in small chunks, checking
// for cancellation before every read.
func (h *StreamHTTPHandler) copyStream(ctx context.Context, w http.ResponseWriter, stream TranscodedStream) (int64, int) {
	rc := http.NewResponseController(w)
	bufp := h.buffers.Get()
	defer h.buffers.Put(bufp)
	buf := *bufp

	var written int64
	for {
		select {
		case <-ctx.Done():
			return written, StatusClientClosed
		default:
		}

		n, err := stream.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				h.logger.Debugf("Error writing to client: %v", werr)
				return written, StatusWriteError
			}
			written += int64(n)
			_ = rc.Flush()
		}

		if n == 0 || err != nil {
			if ctx.Err() != nil {
				return written, StatusClientClosed
			}
			return written, StatusEOF
		}
	}
}

func writeNotFound(w http.ResponseWriter, name string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusNotFound)
	_, _ = fmt.Fprintf(w, "Channel \"%s\" not found.", name)
}

// channelName reads the channel from the route. Paths are routed encoded
// so a name containing an escaped slash stays one segment.
func channelName(r *http.Request) string {
	raw, ok := mux.Vars(r)["channel"]
	if !ok {
		raw = strings.TrimPrefix(r.URL.EscapedPath(), "/")
	}
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}
