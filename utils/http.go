package utils

import (
	"net"
	"net/http"
	"strings"
)

// ClientAddr is the address used to identify a client in logs. The first
// X-Forwarded-For hop wins over the socket address.
func ClientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
