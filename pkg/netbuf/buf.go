package netbuf

import "fmt"

// Buf is a packet buffer taken from a Pool.
//
// Data lives in data[head:tail]. Pull advances head, Append advances tail.
type Buf struct {
	pool     *Pool
	data     []byte
	head     int
	tail     int
	userData []byte
	freed    bool
}

// Bytes returns the unconsumed data. The slice aliases the buffer.
func (b *Buf) Bytes() []byte {
	return b.data[b.head:b.tail]
}

// Len returns the number of unconsumed bytes.
func (b *Buf) Len() int {
	return b.tail - b.head
}

// Size returns the buffer capacity.
func (b *Buf) Size() int {
	return len(b.data)
}

// Tailroom returns how many bytes can still be appended.
func (b *Buf) Tailroom() int {
	return len(b.data) - b.tail
}

// Append copies p to the end of the data.
func (b *Buf) Append(p []byte) error {
	if len(p) > b.Tailroom() {
		return fmt.Errorf("%w: need %d, have %d", ErrNoTailroom, len(p), b.Tailroom())
	}
	b.tail += copy(b.data[b.tail:], p)
	return nil
}

// Extend grows the data by n bytes and returns the new region.
func (b *Buf) Extend(n int) ([]byte, error) {
	if n > b.Tailroom() {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrNoTailroom, n, b.Tailroom())
	}
	region := b.data[b.tail : b.tail+n]
	b.tail += n
	return region, nil
}

// Pull drops n bytes from the front of the data and returns them.
// It panics if n exceeds Len.
func (b *Buf) Pull(n int) []byte {
	if n > b.Len() {
		panic(fmt.Sprintf("netbuf: pull %d from %d bytes", n, b.Len()))
	}
	out := b.data[b.head : b.head+n]
	b.head += n
	return out
}

// Reset empties the data. The user-data region is kept.
func (b *Buf) Reset() {
	b.head = 0
	b.tail = 0
}

// UserData returns the buffer's user-data region.
func (b *Buf) UserData() []byte {
	return b.userData
}

// Free returns the buffer to its pool. Free on a nil Buf is a no-op.
func (b *Buf) Free() {
	if b == nil {
		return
	}
	b.pool.release(b)
}
