package device

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// File is a Device backed by a regular file (a disk image).
type File struct {
	mu     sync.Mutex
	f      *os.File
	closed bool
}

// OpenFile opens an existing image file for read/write access.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open device %q: %w", path, err)
	}
	return &File{f: f}, nil
}

// CreateFile creates (or truncates) an image file.
func CreateFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create device %q: %w", path, err)
	}
	return &File{f: f}, nil
}

// ReadAt implements Device.
func (d *File) ReadAt(p []byte, off int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDeviceClosed
	}
	_, err := d.f.ReadAt(p, off)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrOutOfRange
	}
	return err
}

// WriteAt implements Device.
func (d *File) WriteAt(p []byte, off int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDeviceClosed
	}
	_, err := d.f.WriteAt(p, off)
	return err
}

// Size implements Device.
func (d *File) Size() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrDeviceClosed
	}
	info, err := d.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Sync implements Device.
func (d *File) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDeviceClosed
	}
	return d.f.Sync()
}

// Close implements Device.
func (d *File) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.f.Close()
}
