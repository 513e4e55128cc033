package crypt

import "time"

// Key is one generation of encryption key material.
//
// Keys are never deleted by rotation: the superseded key keeps its
// material so older ciphertext stays readable, and only gains an
// expiry. CleanupExpiredKeys is the terminal, irreversible removal.
type Key struct {
	// ID is unique within a manager, issued monotonically.
	ID uint64

	Algorithm Algorithm

	// Material is the raw master key. Per-path subkeys are derived from
	// it, so Material itself never keys a cipher directly.
	Material []byte

	CreatedAt time.Time

	// ExpiresAt is zero while the key is current. Rotation stamps it.
	ExpiresAt time.Time

	// Rotations counts how many times this key lineage has rotated.
	Rotations uint32

	// ops counts encrypt/decrypt operations under this key, for the
	// rotation threshold.
	ops uint64
}

// Expired reports whether the key's expiry has passed.
func (k *Key) Expired(now time.Time) bool {
	return !k.ExpiresAt.IsZero() && now.After(k.ExpiresAt)
}

// Operations returns the number of operations performed under the key.
func (k *Key) Operations() uint64 {
	return k.ops
}
