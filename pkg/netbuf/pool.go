package netbuf

import (
	"errors"
	"fmt"
	"sync"

	"github.com/smp-protocol/smp-go/pkg/wire"
)

// Pool defaults.
const (
	DefaultCount        = 4
	DefaultSize         = 384
	DefaultUserDataSize = 24
)

var (
	// ErrNoBuffers indicates the pool is exhausted.
	ErrNoBuffers = errors.New("buffer pool exhausted")

	// ErrNoTailroom indicates an append would run past the buffer end.
	ErrNoTailroom = errors.New("not enough tailroom")
)

// Pool is a fixed set of equally sized buffers.
// It is safe for concurrent use.
type Pool struct {
	mu           sync.Mutex
	free         []*Buf
	count        int
	size         int
	userDataSize int
	outstanding  int
	allocs       uint64
	failures     uint64
}

// Stats is a snapshot of pool usage.
type Stats struct {
	Count       int
	Outstanding int
	Allocs      uint64
	Failures    uint64
}

// NewPool creates a pool of count buffers of size bytes, each with a
// userDataSize byte user-data region.
func NewPool(count, size, userDataSize int) (*Pool, error) {
	if count <= 0 {
		return nil, fmt.Errorf("invalid buffer count %d", count)
	}
	if size <= 0 || size > wire.MaxUnitSize {
		return nil, fmt.Errorf("invalid buffer size %d, want 1..%d", size, wire.MaxUnitSize)
	}
	if userDataSize < 0 {
		return nil, fmt.Errorf("invalid user data size %d", userDataSize)
	}

	p := &Pool{
		free:         make([]*Buf, 0, count),
		count:        count,
		size:         size,
		userDataSize: userDataSize,
	}
	for i := 0; i < count; i++ {
		p.free = append(p.free, &Buf{
			pool:     p,
			data:     make([]byte, size),
			userData: make([]byte, userDataSize),
			freed:    true,
		})
	}
	return p, nil
}

// BufSize returns the capacity of each buffer.
func (p *Pool) BufSize() int {
	return p.size
}

// UserDataSize returns the size of each buffer's user-data region.
func (p *Pool) UserDataSize() int {
	return p.userDataSize
}

// Count returns the number of buffers in the pool.
func (p *Pool) Count() int {
	return p.count
}

// Alloc takes an empty buffer from the pool.
// Returns ErrNoBuffers if none is available.
func (p *Pool) Alloc() (*Buf, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.free)
	if n == 0 {
		p.failures++
		return nil, ErrNoBuffers
	}
	b := p.free[n-1]
	p.free[n-1] = nil
	p.free = p.free[:n-1]

	b.head = 0
	b.tail = 0
	clear(b.userData)
	b.freed = false

	p.outstanding++
	p.allocs++
	return b, nil
}

// Outstanding returns the number of buffers currently allocated.
func (p *Pool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}

// Stats returns a snapshot of pool usage.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Count:       p.count,
		Outstanding: p.outstanding,
		Allocs:      p.allocs,
		Failures:    p.failures,
	}
}

func (p *Pool) release(b *Buf) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if b.freed {
		panic("netbuf: double free")
	}
	b.freed = true
	p.outstanding--
	p.free = append(p.free, b)
}
