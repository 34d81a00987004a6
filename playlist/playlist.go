package playlist

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

const (
	headerLine = "#EXTM3U"
	infoMarker = "#EXTINF"
)

// Playlist is the ordered, read-only channel list loaded at startup. It is
// never mutated after Parse returns, so it is safe for concurrent readers.
type Playlist struct {
	channels []Channel
}

// Load reads and parses the playlist file at path.
func Load(path string) (*Playlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read playlist %s: %w", path, err)
	}
	return Parse(string(data))
}

// Parse reads an extended M3U document. Every #EXTINF line must carry a
// name after its first comma and be immediately followed by an absolute URI.
func Parse(document string) (*Playlist, error) {
	lines := strings.Split(strings.ReplaceAll(document, "\r\n", "\n"), "\n")
	channels := make([]Channel, 0, len(lines)/2)

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, infoMarker) {
			continue
		}

		_, name, found := strings.Cut(line, ",")
		name = strings.TrimSpace(name)
		if !found || name == "" {
			return nil, malformed(i+1, "missing channel name")
		}

		if i+1 >= len(lines) {
			return nil, malformed(i+1, "channel %q has no source", name)
		}
		i++

		source, err := parseSource(lines[i])
		if err != nil {
			return nil, malformed(i+1, "channel %q: %v", name, err)
		}

		channels = append(channels, NewChannel(name, source))
	}

	return &Playlist{channels: channels}, nil
}

func parseSource(line string) (*url.URL, error) {
	raw := strings.TrimSpace(line)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return nil, fmt.Errorf("expected source URI, got %q", raw)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("source %q is not an absolute URI", raw)
	}
	return u, nil
}

// Lookup returns the first channel whose name matches case-insensitively.
func (p *Playlist) Lookup(name string) (Channel, error) {
	key := foldName(name)
	for _, channel := range p.channels {
		if channel.Key() == key {
			return channel, nil
		}
	}
	return Channel{}, &ChannelNotFoundError{Name: name}
}

// Channels returns a copy of the channels in document order.
func (p *Playlist) Channels() []Channel {
	out := make([]Channel, len(p.channels))
	copy(out, p.channels)
	return out
}

func (p *Playlist) Len() int {
	return len(p.channels)
}

// Render writes the manifest: the header, then one entry per channel in
// document order whose URL comes from urlFor.
func (p *Playlist) Render(urlFor func(name string) string) string {
	var b strings.Builder

	b.WriteString(headerLine)
	b.WriteString("\n")

	for _, channel := range p.channels {
		b.WriteString(formatEntry(channel.Name(), urlFor(channel.Name())))
	}

	return b.String()
}

func formatEntry(name string, link string) string {
	return fmt.Sprintf("%s:0,%s\n%s\n", infoMarker, name, link)
}
