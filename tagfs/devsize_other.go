//go:build !linux

package tagfs

// DeviceSize is only meaningful against a real DAX device, which only Linux
// exposes.
func DeviceSize(devicePath string) (uint64, error) {
	return 0, ErrNotSupported
}
