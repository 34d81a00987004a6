package handlers

import (
	"net/http"
	"time"

	"m3u-transcoder/logger"
	"m3u-transcoder/playlist"
	"m3u-transcoder/utils"

	"github.com/patrickmn/go-cache"
)

const manifestContentType = "application/x-mpegurl"

// maxCachedManifests bounds the cache, whose keys come from the request's
// Host header.
const maxCachedManifests = 16

// PlaylistHTTPHandler serves the channel list as a manifest pointing back
// at this server.
type PlaylistHTTPHandler struct {
	playlist *playlist.Playlist
	cache    *cache.Cache
	logger   logger.Logger
}

// NewPlaylistHTTPHandler caches the rendered manifest per base URL for
// ttl, for at most maxCachedManifests base URLs at a time. A ttl of zero
// or less disables the cache.
func NewPlaylistHTTPHandler(p *playlist.Playlist, ttl time.Duration, logger logger.Logger) *PlaylistHTTPHandler {
	h := &PlaylistHTTPHandler{
		playlist: p,
		logger:   logger,
	}
	if ttl > 0 {
		h.cache = cache.New(ttl, 2*ttl)
	}
	return h
}

func (h *PlaylistHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	baseURL := utils.BaseURL(r)
	content := h.manifest(baseURL)

	w.Header().Set("Content-Type", manifestContentType)
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte(content)); err != nil {
		h.logger.Debugf("Error writing manifest to %s: %v", utils.ClientAddr(r), err)
	}
}

func (h *PlaylistHTTPHandler) manifest(baseURL string) string {
	if h.cache != nil {
		if cached, ok := h.cache.Get(baseURL); ok {
			return cached.(string)
		}
	}

	content := h.playlist.Render(func(name string) string {
		return utils.ChannelURL(baseURL, name)
	})
	h.logger.Debugf("Rendered manifest with %d channels for %s", h.playlist.Len(), baseURL)

	if h.cache != nil && h.cache.ItemCount() < maxCachedManifests {
		h.cache.Set(baseURL, content, cache.DefaultExpiration)
	}
	return content
}
