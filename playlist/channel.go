package playlist

import (
	"net/url"

	"golang.org/x/text/cases"
)

// Channel is a named live source. Two channels are the same channel when
// their names match case-insensitively; the source URI plays no part.
type Channel struct {
	name   string
	key    string
	source *url.URL
}

func NewChannel(name string, source *url.URL) Channel {
	return Channel{
		name:   name,
		key:    foldName(name),
		source: source,
	}
}

func (c Channel) Name() string {
	return c.name
}

// Source returns a copy of the source URI so callers cannot mutate the
// channel through it.
func (c Channel) Source() *url.URL {
	if c.source == nil {
		return nil
	}
	u := *c.source
	return &u
}

// Key is the case-folded identity of the channel.
func (c Channel) Key() string {
	return c.key
}

func (c Channel) Equal(other Channel) bool {
	return c.key == other.key
}

func (c Channel) Matches(name string) bool {
	return c.key == foldName(name)
}

// foldName builds a fresh Caser per call; a Caser keeps state and cannot be
// shared across goroutines.
func foldName(name string) string {
	return cases.Fold().String(name)
}
