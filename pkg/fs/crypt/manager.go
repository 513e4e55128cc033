package crypt

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/eclipse-os/eclipsefs/internal/logger"
	"github.com/eclipse-os/eclipsefs/pkg/fs"
)

// DefaultRotationThreshold is the operation count after which a key
// wants rotation unless configured otherwise.
const DefaultRotationThreshold = 1_000_000

// policy binds a path prefix to an algorithm. Policies match on path
// component boundaries: "/home" covers "/home" and "/home/user" but not
// "/homework".
type policy struct {
	prefix    string
	algorithm Algorithm
}

// Manager owns the per-path encryption policies and the key table.
//
// Key id issuance is an atomic counter, safe for concurrent id
// generation; the key and policy maps follow the engine's single-owner
// discipline like every other engine structure.
type Manager struct {
	nextKeyID atomic.Uint64

	keys     map[uint64]*Key
	policies []policy

	defaultAlgorithm  Algorithm
	rotationThreshold uint64
}

// NewManager creates a manager with the given process-wide default
// algorithm. threshold 0 selects DefaultRotationThreshold.
func NewManager(defaultAlgorithm Algorithm, threshold uint64) *Manager {
	if threshold == 0 {
		threshold = DefaultRotationThreshold
	}
	m := &Manager{
		keys:              make(map[uint64]*Key),
		defaultAlgorithm:  defaultAlgorithm,
		rotationThreshold: threshold,
	}
	m.nextKeyID.Store(1)
	return m
}

// RegisterPolicy binds a path prefix to an algorithm. Registering the
// same prefix twice is rejected; order of registration breaks ties
// between equal-length matches, so the table stays deterministic.
func (m *Manager) RegisterPolicy(prefix string, algorithm Algorithm) error {
	if prefix == "" || !strings.HasPrefix(prefix, "/") {
		return fs.NewInvalidArgumentError(
			fmt.Sprintf("policy prefix %q must be an absolute path", prefix))
	}
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = "/"
	}

	for _, p := range m.policies {
		if p.prefix == prefix {
			return fs.NewInvalidArgumentError(
				fmt.Sprintf("policy for %q already registered", prefix))
		}
	}

	m.policies = append(m.policies, policy{prefix: prefix, algorithm: algorithm})
	logger.Info("encryption policy registered",
		logger.KeyPath, prefix, logger.KeyAlgorithm, algorithm.String())
	return nil
}

// Policy is the exported view of one registered path policy.
type Policy struct {
	Prefix    string
	Algorithm Algorithm
}

// Policies returns the registered policies in registration order.
func (m *Manager) Policies() []Policy {
	out := make([]Policy, 0, len(m.policies))
	for _, p := range m.policies {
		out = append(out, Policy{Prefix: p.prefix, Algorithm: p.algorithm})
	}
	return out
}

// DefaultAlgorithm returns the process-wide fallback algorithm.
func (m *Manager) DefaultAlgorithm() Algorithm {
	return m.defaultAlgorithm
}

// ConfigForPath resolves the algorithm configuration for a path by
// longest matching registered prefix, ties broken by registration
// order, falling back to the process-wide default.
func (m *Manager) ConfigForPath(path string) Config {
	best := -1
	bestLen := -1
	for i, p := range m.policies {
		if prefixMatches(p.prefix, path) && len(p.prefix) > bestLen {
			best = i
			bestLen = len(p.prefix)
		}
	}
	if best < 0 {
		return ConfigFor(m.defaultAlgorithm)
	}
	return ConfigFor(m.policies[best].algorithm)
}

// prefixMatches reports whether prefix covers path on a component
// boundary.
func prefixMatches(prefix, path string) bool {
	if prefix == "/" {
		return strings.HasPrefix(path, "/")
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// GenerateKey creates and stores a key for the algorithm, returning its
// id. Key ids are monotonic and never reused.
func (m *Manager) GenerateKey(algorithm Algorithm) (uint64, error) {
	cfg := ConfigFor(algorithm)
	if algorithm == AlgoNone {
		return 0, fs.NewInvalidArgumentError("cannot generate a key for algorithm none")
	}

	material := make([]byte, cfg.KeySize)
	if _, err := rand.Read(material); err != nil {
		return 0, fmt.Errorf("key material generation failed: %w", err)
	}

	id := m.nextKeyID.Add(1) - 1
	m.keys[id] = &Key{
		ID:        id,
		Algorithm: algorithm,
		Material:  material,
		CreatedAt: time.Now(),
	}

	logger.Info("encryption key generated",
		logger.KeyKeyID, id, logger.KeyAlgorithm, algorithm.String())
	return id, nil
}

// Key returns the stored key for id.
func (m *Manager) Key(id uint64) (*Key, error) {
	k, ok := m.keys[id]
	if !ok {
		return nil, fs.NewNotFoundError(fmt.Sprintf("encryption key %d not found", id), "")
	}
	return k, nil
}

// Encrypt seals data for path under the key id. Output layout is
// IV || ciphertext || tag with sizes fixed by the path's algorithm
// config. When the path resolves to algorithm none, data passes
// through untouched.
func (m *Manager) Encrypt(data []byte, keyID uint64, path string) ([]byte, error) {
	cfg := m.ConfigForPath(path)
	if cfg.Algorithm == AlgoNone {
		return data, nil
	}

	key, err := m.Key(keyID)
	if err != nil {
		return nil, err
	}
	if key.Algorithm != cfg.Algorithm {
		return nil, fs.NewInvalidOperationError(
			fmt.Sprintf("key %d is %s but path resolves to %s",
				keyID, key.Algorithm, cfg.Algorithm), path)
	}

	subkey, err := deriveSubkey(key.Material, path, cfg.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := cfg.Algorithm.aead(subkey)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, cfg.IVSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce generation failed: %w", err)
	}

	key.ops++
	// Seal appends ciphertext+tag to the nonce, producing IV || ct || tag.
	return aead.Seal(nonce, nonce, data, nil), nil
}

// Decrypt opens ciphertext produced by Encrypt for the same key and
// path. Tampered ciphertext or tag fails with an authentication error;
// corrupted plaintext is never returned.
func (m *Manager) Decrypt(ciphertext []byte, keyID uint64, path string) ([]byte, error) {
	cfg := m.ConfigForPath(path)
	if cfg.Algorithm == AlgoNone {
		return ciphertext, nil
	}

	key, err := m.Key(keyID)
	if err != nil {
		return nil, err
	}
	if key.Algorithm != cfg.Algorithm {
		return nil, fs.NewInvalidOperationError(
			fmt.Sprintf("key %d is %s but path resolves to %s",
				keyID, key.Algorithm, cfg.Algorithm), path)
	}

	if len(ciphertext) < cfg.IVSize+cfg.TagSize {
		return nil, fs.NewAuthenticationError("ciphertext shorter than IV plus tag")
	}

	subkey, err := deriveSubkey(key.Material, path, cfg.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := cfg.Algorithm.aead(subkey)
	if err != nil {
		return nil, err
	}

	nonce, sealed := ciphertext[:cfg.IVSize], ciphertext[cfg.IVSize:]
	plaintext, err := aead.Open(make([]byte, 0, len(sealed)), nonce, sealed, nil)
	if err != nil {
		return nil, fs.NewAuthenticationError("ciphertext authentication failed")
	}

	key.ops++
	return plaintext, nil
}

// RotateKey generates a replacement key under the same algorithm,
// stamps the old key's expiry, and returns the new id. The old key
// stays in the table for decrypting pre-rotation data until
// CleanupExpiredKeys removes it.
func (m *Manager) RotateKey(id uint64) (uint64, error) {
	old, err := m.Key(id)
	if err != nil {
		return 0, err
	}

	newID, err := m.GenerateKey(old.Algorithm)
	if err != nil {
		return 0, err
	}
	m.keys[newID].Rotations = old.Rotations + 1

	old.ExpiresAt = time.Now()

	logger.Info("encryption key rotated",
		logger.KeyKeyID, id, "new_key_id", newID)
	return newID, nil
}

// NeedsRotation reports whether a key's operation count crossed the
// threshold or its expiry has passed. Unknown keys never need rotation.
func (m *Manager) NeedsRotation(id uint64) bool {
	key, ok := m.keys[id]
	if !ok {
		return false
	}
	return key.ops >= m.rotationThreshold || key.Expired(time.Now())
}

// CleanupExpiredKeys removes every key whose expiry has passed and
// returns how many were removed. Removal is terminal: ciphertext under
// a cleaned-up key is no longer decryptable.
func (m *Manager) CleanupExpiredKeys() int {
	now := time.Now()
	removed := 0
	for id, key := range m.keys {
		if key.Expired(now) {
			delete(m.keys, id)
			removed++
		}
	}
	if removed > 0 {
		logger.Info("expired encryption keys removed", "count", removed)
	}
	return removed
}

// KeyCount returns the number of live keys.
func (m *Manager) KeyCount() int {
	return len(m.keys)
}
