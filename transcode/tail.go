package transcode

import (
	"sync"

	"github.com/valyala/bytebufferpool"
)

// tailBuffer keeps the last limit bytes written to it. It never blocks the
// writer, which is what keeps the stderr drain from stalling the engine.
type tailBuffer struct {
	mu    sync.Mutex
	buf   *bytebufferpool.ByteBuffer
	limit int
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{
		buf:   bytebufferpool.Get(),
		limit: limit,
	}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.buf == nil {
		return len(p), nil
	}

	if len(p) >= t.limit {
		t.buf.B = append(t.buf.B[:0], p[len(p)-t.limit:]...)
		return len(p), nil
	}

	t.buf.B = append(t.buf.B, p...)
	if excess := len(t.buf.B) - t.limit; excess > 0 {
		copy(t.buf.B, t.buf.B[excess:])
		t.buf.B = t.buf.B[:t.limit]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.buf == nil {
		return ""
	}
	return t.buf.String()
}

// Release hands the buffer back to the pool. Writes after Release are
// discarded.
func (t *tailBuffer) Release() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.buf == nil {
		return ""
	}
	out := t.buf.String()
	bytebufferpool.Put(t.buf)
	t.buf = nil
	return out
}
