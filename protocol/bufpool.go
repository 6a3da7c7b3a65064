package protocol

import (
	"bytes"
	"sync"
)

// maxPooledBuffer is the largest buffer capacity kept for reuse. A frame with
// a large value grows its buffer; keeping it around would pin that memory.
const maxPooledBuffer = 64 << 10

// BufPool recycles encode buffers between frames.
type BufPool struct {
	buffers sync.Pool
}

func NewBufPool() *BufPool {
	var p BufPool
	p.buffers.New = func() any {
		return bytes.NewBuffer(make([]byte, 0, HeaderSize+256))
	}
	return &p
}

// Get returns an empty buffer.
func (p *BufPool) Get() *bytes.Buffer {
	return p.buffers.Get().(*bytes.Buffer)
}

// Put resets b and keeps it unless it grew past maxPooledBuffer.
func (p *BufPool) Put(b *bytes.Buffer) {
	if b.Cap() > maxPooledBuffer {
		return
	}
	b.Reset()
	p.buffers.Put(b)
}
