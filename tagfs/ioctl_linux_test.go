//go:build linux

package tagfs

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestIoctlMapCreateSize(t *testing.T) {
	r := require.New(t)
	want := uintptr(4 + 4 + 8 + 4 + 4 + MaxExtents*16)
	r.Equal(want, unsafe.Sizeof(ioctlMapCreate{}))
}

func TestIowNrEncodesDirectionTypeNr(t *testing.T) {
	r := require.New(t)

	nop := nopIoctlNr()
	mapCreate := mapCreateIoctlNr()
	r.NotEqual(nop, mapCreate)

	const typeShift = 8
	const dirShift = 30
	r.Equal(uintptr(ioctlMagic), (nop>>typeShift)&0xff)
	r.Equal(uintptr(ioctlMagic), (mapCreate>>typeShift)&0xff)
	r.Equal(uintptr(1), nop>>dirShift)
	r.Equal(uintptr(1), mapCreate>>dirShift)
	r.Equal(uintptr(ioctlNopNr), nop&0xff)
	r.Equal(uintptr(ioctlMapNr), mapCreate&0xff)
}
