package playlist

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedPlaylist = errors.New("malformed playlist")
	ErrChannelNotFound   = errors.New("channel not found")
)

// ChannelNotFoundError names the channel a lookup failed for.
type ChannelNotFoundError struct {
	Name string
}

func (e *ChannelNotFoundError) Error() string {
	return fmt.Sprintf("channel %q not found", e.Name)
}

func (e *ChannelNotFoundError) Is(target error) bool {
	return target == ErrChannelNotFound
}

func malformed(line int, format string, v ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrMalformedPlaylist, line, fmt.Sprintf(format, v...))
}
