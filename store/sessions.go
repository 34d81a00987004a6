package store

import (
	"sort"
	"sync"
	"time"

	"m3u-transcoder/logger"
	"m3u-transcoder/transcode"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// Stream is the part of a transcoded stream the registry needs.
type Stream interface {
	Close() error
	Pid() int
	Stats() (transcode.Stats, error)
}

// Session is one request currently streaming a channel. Every request owns
// its own session and its own engine process.
type Session struct {
	ID         string
	Channel    string
	RemoteAddr string
	CreatedAt  time.Time

	stream Stream
}

func (s *Session) Pid() int {
	return s.stream.Pid()
}

func (s *Session) Stats() (transcode.Stats, error) {
	return s.stream.Stats()
}

// SessionRegistry tracks live sessions so they can be reported on and torn
// down when the server stops.
type SessionRegistry struct {
	sessions *xsync.MapOf[string, *Session]
	logger   logger.Logger
}

func NewSessionRegistry(l logger.Logger) *SessionRegistry {
	return &SessionRegistry{
		sessions: xsync.NewMapOf[string, *Session](),
		logger:   l,
	}
}

func (r *SessionRegistry) Register(channel, remoteAddr string, stream Stream) *Session {
	session := &Session{
		ID:         uuid.New().String(),
		Channel:    channel,
		RemoteAddr: remoteAddr,
		CreatedAt:  time.Now(),
		stream:     stream,
	}
	r.sessions.Store(session.ID, session)

	r.logger.Debugf("Registered session %s for channel %s (pid %d, active: %d)",
		session.ID, channel, stream.Pid(), r.sessions.Size())
	return session
}

func (r *SessionRegistry) Remove(id string) {
	if _, ok := r.sessions.LoadAndDelete(id); ok {
		r.logger.Debugf("Removed session %s (active: %d)", id, r.sessions.Size())
	}
}

func (r *SessionRegistry) Get(id string) (*Session, bool) {
	return r.sessions.Load(id)
}

func (r *SessionRegistry) Len() int {
	return r.sessions.Size()
}

// Snapshot returns the live sessions, oldest first.
func (r *SessionRegistry) Snapshot() []*Session {
	out := make([]*Session, 0, r.sessions.Size())
	r.sessions.Range(func(_ string, session *Session) bool {
		out = append(out, session)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CloseAll closes every registered stream in parallel and empties the
// registry.
func (r *SessionRegistry) CloseAll() {
	var wg sync.WaitGroup
	r.sessions.Range(func(id string, session *Session) bool {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := session.stream.Close(); err != nil {
				r.logger.Errorf("Error closing session %s (channel %s): %v", id, session.Channel, err)
			}
			r.sessions.Delete(id)
		}()
		return true
	})
	wg.Wait()
}
