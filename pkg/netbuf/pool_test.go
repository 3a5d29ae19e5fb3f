package netbuf

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smp-protocol/smp-go/pkg/wire"
)

func TestNewPoolValidation(t *testing.T) {
	tests := []struct {
		name                string
		count, size, udSize int
	}{
		{"zero count", 0, 64, 8},
		{"zero size", 1, 0, 8},
		{"size past 16-bit length", 1, wire.MaxUnitSize + 1, 8},
		{"negative user data", 1, 64, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPool(tt.count, tt.size, tt.udSize)
			assert.Error(t, err)
		})
	}
}

func TestNewPoolLargestUnit(t *testing.T) {
	p, err := NewPool(1, wire.MaxUnitSize, 0)
	require.NoError(t, err)
	assert.Equal(t, wire.MaxUnitSize, p.BufSize())
}

func TestPoolExhaustion(t *testing.T) {
	p, err := NewPool(2, 32, 4)
	require.NoError(t, err)

	a, err := p.Alloc()
	require.NoError(t, err)
	b, err := p.Alloc()
	require.NoError(t, err)
	assert.Equal(t, 2, p.Outstanding())

	_, err = p.Alloc()
	assert.True(t, errors.Is(err, ErrNoBuffers))

	a.Free()
	assert.Equal(t, 1, p.Outstanding())

	c, err := p.Alloc()
	require.NoError(t, err)
	c.Free()
	b.Free()

	assert.Equal(t, 0, p.Outstanding())
	st := p.Stats()
	assert.Equal(t, uint64(3), st.Allocs)
	assert.Equal(t, uint64(1), st.Failures)
}

func TestDoubleFreePanics(t *testing.T) {
	p, err := NewPool(1, 16, 0)
	require.NoError(t, err)

	b, err := p.Alloc()
	require.NoError(t, err)
	b.Free()

	assert.Panics(t, func() { b.Free() })
	assert.Equal(t, 0, p.Outstanding())
}

func TestFreeNil(t *testing.T) {
	var b *Buf
	assert.NotPanics(t, func() { b.Free() })
}

func TestBufAppendPull(t *testing.T) {
	p, err := NewPool(1, 8, 4)
	require.NoError(t, err)
	b, err := p.Alloc()
	require.NoError(t, err)
	defer b.Free()

	require.NoError(t, b.Append([]byte{1, 2, 3}))
	require.NoError(t, b.Append([]byte{4, 5}))
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, b.Bytes())
	assert.Equal(t, 3, b.Tailroom())

	err = b.Append([]byte{6, 7, 8, 9})
	assert.True(t, errors.Is(err, ErrNoTailroom))
	assert.Equal(t, 5, b.Len(), "failed append must not change the data")

	assert.Equal(t, []byte{1, 2}, b.Pull(2))
	assert.Equal(t, []byte{3, 4, 5}, b.Bytes())

	region, err := b.Extend(2)
	require.NoError(t, err)
	copy(region, []byte{9, 9})
	assert.Equal(t, []byte{3, 4, 5, 9, 9}, b.Bytes())

	_, err = b.Extend(2)
	assert.True(t, errors.Is(err, ErrNoTailroom))

	assert.Panics(t, func() { b.Pull(6) })
}

func TestUserDataClearedOnAlloc(t *testing.T) {
	p, err := NewPool(1, 8, 4)
	require.NoError(t, err)

	b, err := p.Alloc()
	require.NoError(t, err)
	copy(b.UserData(), []byte{0xaa, 0xbb, 0xcc, 0xdd})
	b.Reset()
	assert.Equal(t, []byte{0xaa, 0xbb, 0xcc, 0xdd}, b.UserData(), "Reset keeps user data")
	b.Free()

	b, err = p.Alloc()
	require.NoError(t, err)
	defer b.Free()
	assert.Equal(t, []byte{0, 0, 0, 0}, b.UserData())
	assert.Equal(t, 0, b.Len())
}

func TestPoolConcurrentUse(t *testing.T) {
	p, err := NewPool(4, 16, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				b, err := p.Alloc()
				if err != nil {
					continue
				}
				_ = b.Append([]byte{byte(j)})
				b.Free()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, p.Outstanding())
}
