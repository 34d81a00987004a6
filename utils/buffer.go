package utils

import "sync"

// BufferPool hands out fixed-size byte slices for copy loops.
type BufferPool struct {
	size int
	pool sync.Pool
}

func NewBufferPool(size int) *BufferPool {
	if size <= 0 {
		size = 1024
	}
	bp := &BufferPool{size: size}
	bp.pool.New = func() any {
		buf := make([]byte, size)
		return &buf
	}
	return bp
}

func (bp *BufferPool) Size() int {
	return bp.size
}

// Get returns a slice of exactly Size bytes.
func (bp *BufferPool) Get() *[]byte {
	buf := bp.pool.Get().(*[]byte)
	*buf = (*buf)[:bp.size]
	return buf
}

func (bp *BufferPool) Put(buf *[]byte) {
	if buf == nil || cap(*buf) < bp.size {
		return
	}
	bp.pool.Put(buf)
}
