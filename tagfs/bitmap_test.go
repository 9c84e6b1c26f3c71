package tagfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitmapBytes(t *testing.T) {
	r := require.New(t)
	r.Equal(uint64(1), bitmapBytes(1))
	r.Equal(uint64(1), bitmapBytes(8))
	r.Equal(uint64(2), bitmapBytes(9))
}

func TestBitSetAndTest(t *testing.T) {
	r := require.New(t)
	bm := make([]byte, 2)

	r.False(bitTest(bm, 0))
	r.False(bitTest(bm, 15))

	bitSet(bm, 0)
	r.True(bitTest(bm, 0))
	r.False(bitTest(bm, 1))

	bitSet(bm, 15)
	r.True(bitTest(bm, 15))
	r.False(bitTest(bm, 14))
}

func TestBitTestAndSetReportsCollision(t *testing.T) {
	r := require.New(t)
	bm := make([]byte, 1)

	r.False(bitTestAndSet(bm, 3))
	r.True(bitTest(bm, 3))
	r.True(bitTestAndSet(bm, 3))
}
