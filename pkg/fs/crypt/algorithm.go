// Package crypt is the transparent per-path encryption layer: policy
// selection by path prefix, AEAD encrypt/decrypt dispatch, and key
// lifecycle (generation, rotation, expiry cleanup).
//
// It is not a general crypto library. Both real algorithms are true
// AEAD constructions, so tampering with ciphertext or tag fails loudly
// at decrypt time instead of yielding garbage plaintext.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/eclipse-os/eclipsefs/pkg/fs"
	"github.com/eclipse-os/eclipsefs/pkg/fs/layout"
)

// Algorithm identifies one of the supported encryption algorithms.
type Algorithm uint8

const (
	// AlgoNone disables encryption: encrypt and decrypt pass data through.
	AlgoNone Algorithm = iota

	// AlgoAES256GCM is AES-256 in Galois/Counter Mode. Hardware
	// accelerated on amd64 and arm64.
	AlgoAES256GCM

	// AlgoXChaCha20Poly1305 is XChaCha20-Poly1305 with its extended
	// 24-byte nonce. Fast everywhere, no hardware dependence.
	AlgoXChaCha20Poly1305
)

func (a Algorithm) String() string {
	switch a {
	case AlgoNone:
		return "none"
	case AlgoAES256GCM:
		return "aes-256-gcm"
	case AlgoXChaCha20Poly1305:
		return "xchacha20-poly1305"
	default:
		return "unknown"
	}
}

// ParseAlgorithm maps a configuration string to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "", "none":
		return AlgoNone, nil
	case "aes-256-gcm":
		return AlgoAES256GCM, nil
	case "xchacha20-poly1305":
		return AlgoXChaCha20Poly1305, nil
	default:
		return 0, fmt.Errorf("unknown encryption algorithm %q", s)
	}
}

// BlockTag returns the layout encryption tag recorded in block headers
// for payloads encrypted under this algorithm.
func (a Algorithm) BlockTag() uint8 {
	switch a {
	case AlgoAES256GCM:
		return layout.EncryptionAESGCM
	case AlgoXChaCha20Poly1305:
		return layout.EncryptionXChaCha
	default:
		return layout.EncryptionNone
	}
}

// Config describes an algorithm's parameters. Selected per path by the
// manager's longest-prefix policy match.
type Config struct {
	Algorithm Algorithm

	// KeySize, IVSize, TagSize are the algorithm's key, nonce, and
	// authentication tag sizes in bytes.
	KeySize int
	IVSize  int
	TagSize int

	// HardwareAccelerated hints that common server hardware runs this
	// algorithm with dedicated instructions.
	HardwareAccelerated bool
}

// ConfigFor returns the fixed parameters of an algorithm.
func ConfigFor(a Algorithm) Config {
	switch a {
	case AlgoAES256GCM:
		return Config{
			Algorithm:           a,
			KeySize:             32,
			IVSize:              12,
			TagSize:             16,
			HardwareAccelerated: true,
		}
	case AlgoXChaCha20Poly1305:
		return Config{
			Algorithm: a,
			KeySize:   chacha20poly1305.KeySize,
			IVSize:    chacha20poly1305.NonceSizeX,
			TagSize:   chacha20poly1305.Overhead,
		}
	default:
		return Config{Algorithm: AlgoNone}
	}
}

// aead constructs the AEAD primitive for an algorithm over key material.
func (a Algorithm) aead(key []byte) (cipher.AEAD, error) {
	cfg := ConfigFor(a)
	if len(key) != cfg.KeySize {
		return nil, fs.NewInvalidArgumentError(
			fmt.Sprintf("%s requires a %d-byte key, got %d", a, cfg.KeySize, len(key)))
	}

	switch a {
	case AlgoAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case AlgoXChaCha20Poly1305:
		return chacha20poly1305.NewX(key)
	default:
		return nil, fs.NewInvalidOperationError(
			fmt.Sprintf("algorithm %s has no AEAD construction", a), "")
	}
}

// hkdfInfoPath is the HKDF domain-separation prefix for per-path
// subkeys. Changing it invalidates all existing ciphertext.
const hkdfInfoPath = "eclipsefs.path.v2"

// deriveSubkey derives the per-path subkey from master key material so
// that no two paths ever share a cipher key stream.
func deriveSubkey(master []byte, path string, size int) ([]byte, error) {
	r := hkdf.New(sha256.New, master, nil, []byte(hkdfInfoPath+"|"+path))
	subkey := make([]byte, size)
	if _, err := io.ReadFull(r, subkey); err != nil {
		return nil, fmt.Errorf("subkey derivation failed: %w", err)
	}
	return subkey, nil
}
