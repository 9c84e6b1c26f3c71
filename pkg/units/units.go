// Package units gives named byte-size types for printing device, extent,
// and allocation sizes without hand-rolled division sprinkled through the
// allocator and fsck code.
package units

import "fmt"

type (
	Bytes     int64
	KiloBytes int64
	MegaBytes int64
	GigaBytes int64
)

func (b Bytes) Bytes() Bytes         { return b }
func (b Bytes) KiloBytes() KiloBytes { return KiloBytes(b / 1024) }
func (b Bytes) MegaBytes() MegaBytes { return MegaBytes(b / 1024 / 1024) }
func (b Bytes) GigaBytes() GigaBytes { return GigaBytes(b / 1024 / 1024 / 1024) }

func (k KiloBytes) Bytes() Bytes { return Bytes(k * 1024) }
func (m MegaBytes) Bytes() Bytes { return Bytes(m * 1024 * 1024) }
func (g GigaBytes) Bytes() Bytes { return Bytes(g * 1024 * 1024 * 1024) }

// Short renders b using the smallest unit that keeps the number readable.
func (b Bytes) Short() string {
	switch {
	case b < 1024:
		return fmt.Sprintf("%dB", b)
	case b < 1024*1024:
		return fmt.Sprintf("%.1fKB", float64(b)/1024)
	case b < 1024*1024*1024:
		return fmt.Sprintf("%.1fMB", float64(b)/1024/1024)
	default:
		return fmt.Sprintf("%.1fGB", float64(b)/1024/1024/1024)
	}
}

// Amplification reports alloc/size, the space-amplification ratio fsck
// prints. Returns 0 when size is 0 (nothing allocated yet).
func Amplification(alloc, size Bytes) float64 {
	if size == 0 {
		return 0
	}
	return float64(alloc) / float64(size)
}
