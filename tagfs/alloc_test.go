package tagfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testDevUnits = 16

func testDevSize() uint64 { return testDevUnits * AllocUnit }

func metaUnits() uint64 {
	return (LogOffset + LogLen + AllocUnit - 1) / AllocUnit
}

func TestBuildBitmapReservesMetadataRegion(t *testing.T) {
	r := require.New(t)
	log := newTestLog(t)

	bm, err := BuildBitmap(log, testDevSize(), nil)
	r.NoError(err)
	r.Zero(bm.Stats.AllocUnits)
	r.Zero(bm.Stats.Collisions)

	for u := uint64(0); u < metaUnits(); u++ {
		r.True(bitTest(bm.bits, u))
	}
	r.False(bitTest(bm.bits, metaUnits()))
}

func TestAllocateContiguousSkipsReservedUnits(t *testing.T) {
	r := require.New(t)
	log := newTestLog(t)

	bm, err := BuildBitmap(log, testDevSize(), nil)
	r.NoError(err)

	ext, err := bm.AllocateForSize(AllocUnit)
	r.NoError(err)
	r.Equal(metaUnits()*AllocUnit, ext.Offset)
	r.Equal(uint64(AllocUnit), ext.Length)
}

func TestAllocateContiguousFailsWhenDeviceFull(t *testing.T) {
	r := require.New(t)
	log := newTestLog(t)

	bm, err := BuildBitmap(log, testDevSize(), nil)
	r.NoError(err)

	free := testDevUnits - metaUnits()
	_, err = bm.AllocateContiguous(free)
	r.NoError(err)

	_, err = bm.AllocateContiguous(1)
	r.ErrorIs(err, ErrAllocationFailed)
}

func TestBuildBitmapDetectsCollision(t *testing.T) {
	r := require.New(t)
	log := newTestLog(t)

	ext := Extent{Offset: metaUnits() * AllocUnit, Length: AllocUnit}
	e1, err := NewFileEntry("a", 0644, 0, 0, AllocUnit, []Extent{ext})
	r.NoError(err)
	r.NoError(log.Append(&e1))

	e2, err := NewFileEntry("b", 0644, 0, 0, AllocUnit, []Extent{ext})
	r.NoError(err)
	r.NoError(log.Append(&e2))

	bm, err := BuildBitmap(log, testDevSize(), nil)
	r.NoError(err)
	r.Equal(1, bm.Stats.Collisions)
	r.Equal(uint64(1), bm.Stats.AllocUnits)
	r.Equal(uint64(2*AllocUnit), bm.Stats.SizeTotal)
}
