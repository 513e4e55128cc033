// Package device abstracts the byte-addressable backing store beneath
// the engine: a disk image file in production, an in-memory buffer in
// tests. Block-transport drivers (AHCI, NVMe) live below this boundary.
package device

import "errors"

// Common errors returned by Device implementations.
var (
	// ErrDeviceClosed is returned when operations are attempted on a
	// closed device.
	ErrDeviceClosed = errors.New("device is closed")

	// ErrOutOfRange is returned when a read extends past the end of the
	// device.
	ErrOutOfRange = errors.New("read past end of device")
)

// Device is the engine's view of raw storage.
//
// All I/O is blocking and synchronous; a call either completes or fails.
// The engine serializes access itself, so implementations only need to
// be safe for the single-owner discipline described in the engine docs,
// though both provided implementations happen to be fully thread-safe.
type Device interface {
	// ReadAt fills p from the device starting at off. Short reads are
	// errors: either len(p) bytes arrive or an error is returned.
	ReadAt(p []byte, off int64) error

	// WriteAt writes p at off, growing the device if the implementation
	// supports growth.
	WriteAt(p []byte, off int64) error

	// Size returns the current device size in bytes.
	Size() (int64, error)

	// Sync flushes buffered writes to stable storage.
	Sync() error

	// Close releases the device. Further operations return ErrDeviceClosed.
	Close() error
}
