package units

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShortPicksSmallestReadableUnit(t *testing.T) {
	r := require.New(t)
	r.Equal("512B", Bytes(512).Short())
	r.Equal("2.0KB", Bytes(2048).Short())
	r.Equal("1.0MB", Bytes(1<<20).Short())
	r.Equal("1.0GB", Bytes(1<<30).Short())
}

func TestAmplificationRatio(t *testing.T) {
	r := require.New(t)
	r.Equal(0.0, Amplification(0, 0))
	r.Equal(2.0, Amplification(Bytes(4<<20), Bytes(2<<20)))
}
