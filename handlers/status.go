package handlers

// Outcomes of the copy loop. All of them end in the same teardown.
const (
	StatusClientClosed = iota // request context was cancelled
	StatusWriteError          // writing to the client failed
	StatusEOF                 // engine output ended
)

func statusText(status int) string {
	switch status {
	case StatusClientClosed:
		return "client closed"
	case StatusWriteError:
		return "client write failed"
	case StatusEOF:
		return "end of stream"
	default:
		return "unknown"
	}
}
