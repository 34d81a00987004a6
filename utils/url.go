package utils

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// BaseURL returns scheme://host as seen by the client, honouring TLS and
// a reverse proxy's X-Forwarded-Proto. Forwarded schemes other than http
// and https are ignored.
func BaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		switch forwarded := strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0])); forwarded {
		case "http", "https":
			scheme = forwarded
		}
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}

// ChannelURL is the playable URL of a channel under baseURL.
func ChannelURL(baseURL, name string) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + url.PathEscape(name)
}
