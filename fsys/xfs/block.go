package xfs

import (
	"fmt"
	"sync"
)

// buffer is a run of filesystem blocks read from the image. The reader
// that fetched it owns it exclusively and must call Release exactly once.
type buffer struct {
	data    []byte
	release func([]byte)
}

// Release returns the buffer's memory. Further calls are no-ops.
func (b *buffer) Release() {
	if b == nil || b.data == nil {
		return
	}
	data := b.data
	b.data = nil
	if b.release != nil {
		b.release(data)
	}
}

// blockSource fetches runs of filesystem blocks.
type blockSource interface {
	readBlocks(fsb uint64, count uint32) (*buffer, error)
}

// imageBlocks reads blocks straight from the image through the pool.
type imageBlocks struct {
	f *FS
}

func (s imageBlocks) readBlocks(fsb uint64, count uint32) (*buffer, error) {
	f := s.f
	n := int(count) << f.sb.blockLog
	data := f.pool.get(n)

	off := f.fsbToOffset(fsb)
	if off < 0 || off+int64(n) > f.size {
		f.pool.put(data)
		return nil, fmt.Errorf("blocks %d+%d lie outside the image: %w", fsb, count, ErrCorrupt)
	}
	if _, err := f.r.ReadAt(data, off); err != nil {
		f.pool.put(data)
		return nil, fmt.Errorf("%w: reading %d blocks at fs block %d: %w", ErrIO, count, fsb, err)
	}

	return &buffer{data: data, release: f.pool.put}, nil
}

// bufferPool recycles directory-block sized buffers. Requests of any
// other size are allocated directly and never pooled.
type bufferPool struct {
	size int
	pool sync.Pool
}

func newBufferPool(size int) *bufferPool {
	p := &bufferPool{size: size}
	p.pool.New = func() any {
		buf := make([]byte, size)
		return &buf
	}
	return p
}

func (p *bufferPool) get(n int) []byte {
	if n != p.size {
		return make([]byte, n)
	}
	return (*p.pool.Get().(*[]byte))[:n]
}

func (p *bufferPool) put(buf []byte) {
	if cap(buf) != p.size {
		return
	}
	full := buf[:cap(buf)]
	p.pool.Put(&full)
}
