// Package pools recycles scratch byte slices for the journal encoder.
package pools

import "sync"

// MaxPooled is the largest capacity kept for reuse
const MaxPooled = 64 << 10

// size classes, smallest first
var classes = [...]int{256, 1 << 10, 4 << 10, 16 << 10, MaxPooled}

// BytePool hands out byte slices by size class
type BytePool struct {
	pools [len(classes)]sync.Pool
}

// NewBytePool creates an empty pool
func NewBytePool() *BytePool {
	p := &BytePool{}
	for i, size := range classes {
		size := size
		p.pools[i].New = func() any {
			b := make([]byte, 0, size)
			return &b
		}
	}
	return p
}

func classFor(size int) int {
	for i, c := range classes {
		if size <= c {
			return i
		}
	}
	return -1
}

// Get returns a zero-length slice with at least size capacity. Requests
// above MaxPooled are allocated directly.
func (p *BytePool) Get(size int) []byte {
	i := classFor(size)
	if i < 0 {
		return make([]byte, 0, size)
	}
	bp := p.pools[i].Get().(*[]byte)
	return (*bp)[:0]
}

// Put returns b for reuse. Slices whose capacity does not match a class
// exactly are dropped so Get never hands out an undersized buffer.
func (p *BytePool) Put(b []byte) {
	i := classFor(cap(b))
	if i < 0 || cap(b) != classes[i] {
		return
	}
	b = b[:0]
	p.pools[i].Put(&b)
}

var defaultPool = NewBytePool()

// GetBytes takes a slice from the shared pool
func GetBytes(size int) []byte { return defaultPool.Get(size) }

// PutBytes returns a slice to the shared pool
func PutBytes(b []byte) { defaultPool.Put(b) }
