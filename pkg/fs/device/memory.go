package device

import "sync"

// Memory is an in-memory Device for tests and ephemeral filesystems.
// It grows on write and returns defensive results only through the
// caller's buffer, never aliasing internal storage.
type Memory struct {
	mu     sync.RWMutex
	data   []byte
	closed bool
}

// NewMemory creates an empty in-memory device.
func NewMemory() *Memory {
	return &Memory{}
}

// NewMemoryFrom creates an in-memory device seeded with a copy of data.
func NewMemoryFrom(data []byte) *Memory {
	copied := make([]byte, len(data))
	copy(copied, data)
	return &Memory{data: copied}
}

// ReadAt implements Device.
func (m *Memory) ReadAt(p []byte, off int64) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrDeviceClosed
	}
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return ErrOutOfRange
	}
	copy(p, m.data[off:])
	return nil
}

// WriteAt implements Device, growing the buffer as needed.
func (m *Memory) WriteAt(p []byte, off int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrDeviceClosed
	}
	if off < 0 {
		return ErrOutOfRange
	}

	end := off + int64(len(p))
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	copy(m.data[off:], p)
	return nil
}

// Size implements Device.
func (m *Memory) Size() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrDeviceClosed
	}
	return int64(len(m.data)), nil
}

// Sync implements Device; memory needs no flushing.
func (m *Memory) Sync() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrDeviceClosed
	}
	return nil
}

// Close implements Device.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// Bytes returns a copy of the device contents. Test helper.
func (m *Memory) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	copied := make([]byte, len(m.data))
	copy(copied, m.data)
	return copied
}
