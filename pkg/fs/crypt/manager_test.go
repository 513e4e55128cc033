package crypt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-os/eclipsefs/pkg/fs"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(AlgoNone, 0)
	require.NoError(t, m.RegisterPolicy("/home", AlgoAES256GCM))
	require.NoError(t, m.RegisterPolicy("/home/user/private", AlgoXChaCha20Poly1305))
	require.NoError(t, m.RegisterPolicy("/tmp", AlgoAES256GCM))
	return m
}

func TestLongestPrefixSelection(t *testing.T) {
	m := newTestManager(t)

	tests := []struct {
		path string
		want Algorithm
	}{
		{"/home/user/private/doc", AlgoXChaCha20Poly1305},
		{"/home/user/private", AlgoXChaCha20Poly1305},
		{"/home/user/public", AlgoAES256GCM},
		{"/home", AlgoAES256GCM},
		{"/tmp/anything", AlgoAES256GCM},
		{"/opt/x", AlgoNone}, // unregistered path falls back to default
		{"/homework", AlgoNone}, // no partial-component matches
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, m.ConfigForPath(tt.path).Algorithm)
		})
	}
}

func TestDuplicatePolicyRejected(t *testing.T) {
	m := newTestManager(t)
	err := m.RegisterPolicy("/home", AlgoXChaCha20Poly1305)
	require.Error(t, err)
	assert.True(t, fs.IsCode(err, fs.ErrInvalidArgument))
}

func TestRelativePolicyPrefixRejected(t *testing.T) {
	m := NewManager(AlgoNone, 0)
	assert.Error(t, m.RegisterPolicy("home", AlgoAES256GCM))
	assert.Error(t, m.RegisterPolicy("", AlgoAES256GCM))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	for _, algo := range []Algorithm{AlgoAES256GCM, AlgoXChaCha20Poly1305} {
		t.Run(algo.String(), func(t *testing.T) {
			m := NewManager(AlgoNone, 0)
			require.NoError(t, m.RegisterPolicy("/data", algo))

			keyID, err := m.GenerateKey(algo)
			require.NoError(t, err)

			for _, plaintext := range [][]byte{
				[]byte("secret file contents"),
				{},
				[]byte{0x00},
				make([]byte, 4096),
			} {
				ct, err := m.Encrypt(plaintext, keyID, "/data/file.txt")
				require.NoError(t, err)

				cfg := ConfigFor(algo)
				assert.Len(t, ct, cfg.IVSize+len(plaintext)+cfg.TagSize)

				got, err := m.Decrypt(ct, keyID, "/data/file.txt")
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, plaintext, got)
			}
		})
	}
}

func TestNoneAlgorithmPassesThrough(t *testing.T) {
	m := NewManager(AlgoNone, 0)

	data := []byte("not encrypted")
	ct, err := m.Encrypt(data, 0, "/anything")
	require.NoError(t, err)
	assert.Equal(t, data, ct)

	pt, err := m.Decrypt(ct, 0, "/anything")
	require.NoError(t, err)
	assert.Equal(t, data, pt)
}

func TestTamperedCiphertextDetected(t *testing.T) {
	for _, algo := range []Algorithm{AlgoAES256GCM, AlgoXChaCha20Poly1305} {
		t.Run(algo.String(), func(t *testing.T) {
			m := NewManager(AlgoNone, 0)
			require.NoError(t, m.RegisterPolicy("/data", algo))

			keyID, err := m.GenerateKey(algo)
			require.NoError(t, err)

			ct, err := m.Encrypt([]byte("authenticated payload"), keyID, "/data/f")
			require.NoError(t, err)

			// Flip one byte at every position: IV, ciphertext, and tag
			// corruption must all fail authentication.
			for i := range ct {
				mutated := append([]byte(nil), ct...)
				mutated[i] ^= 0x01

				_, err := m.Decrypt(mutated, keyID, "/data/f")
				require.Error(t, err, "tamper at byte %d went undetected", i)
				assert.True(t, fs.IsCode(err, fs.ErrAuthentication))
			}
		})
	}
}

func TestTruncatedCiphertextRejected(t *testing.T) {
	m := NewManager(AlgoNone, 0)
	require.NoError(t, m.RegisterPolicy("/data", AlgoAES256GCM))

	keyID, err := m.GenerateKey(AlgoAES256GCM)
	require.NoError(t, err)

	_, err = m.Decrypt([]byte("short"), keyID, "/data/f")
	require.Error(t, err)
	assert.True(t, fs.IsCode(err, fs.ErrAuthentication))
}

func TestPathsGetDistinctSubkeys(t *testing.T) {
	m := NewManager(AlgoNone, 0)
	require.NoError(t, m.RegisterPolicy("/data", AlgoXChaCha20Poly1305))

	keyID, err := m.GenerateKey(AlgoXChaCha20Poly1305)
	require.NoError(t, err)

	ct, err := m.Encrypt([]byte("payload"), keyID, "/data/a")
	require.NoError(t, err)

	// The same key id under a different path derives a different
	// subkey, so decryption must fail authentication.
	_, err = m.Decrypt(ct, keyID, "/data/b")
	require.Error(t, err)
	assert.True(t, fs.IsCode(err, fs.ErrAuthentication))
}

func TestAlgorithmMismatchRejected(t *testing.T) {
	m := newTestManager(t)

	// /home resolves to AES-GCM; an XChaCha key cannot serve it.
	keyID, err := m.GenerateKey(AlgoXChaCha20Poly1305)
	require.NoError(t, err)

	_, err = m.Encrypt([]byte("data"), keyID, "/home/file")
	require.Error(t, err)
	assert.True(t, fs.IsCode(err, fs.ErrInvalidOperation))
}

func TestMissingKeyRejected(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Encrypt([]byte("data"), 999, "/home/file")
	require.Error(t, err)
	assert.True(t, fs.IsCode(err, fs.ErrNotFound))
}

func TestGenerateKeyIDsMonotonic(t *testing.T) {
	m := NewManager(AlgoNone, 0)

	id1, err := m.GenerateKey(AlgoAES256GCM)
	require.NoError(t, err)
	id2, err := m.GenerateKey(AlgoAES256GCM)
	require.NoError(t, err)

	assert.Greater(t, id2, id1)
}

func TestGenerateKeyForNoneRejected(t *testing.T) {
	m := NewManager(AlgoNone, 0)
	_, err := m.GenerateKey(AlgoNone)
	assert.Error(t, err)
}

func TestKeyRotation(t *testing.T) {
	m := NewManager(AlgoNone, 0)
	require.NoError(t, m.RegisterPolicy("/data", AlgoAES256GCM))

	oldID, err := m.GenerateKey(AlgoAES256GCM)
	require.NoError(t, err)

	ct, err := m.Encrypt([]byte("pre-rotation data"), oldID, "/data/f")
	require.NoError(t, err)

	newID, err := m.RotateKey(oldID)
	require.NoError(t, err)
	assert.NotEqual(t, oldID, newID)

	// The old key still decrypts pre-rotation ciphertext.
	pt, err := m.Decrypt(ct, oldID, "/data/f")
	require.NoError(t, err)
	assert.Equal(t, []byte("pre-rotation data"), pt)

	// The old key is now marked for rotation; the new one is not.
	assert.True(t, m.NeedsRotation(oldID))
	assert.False(t, m.NeedsRotation(newID))

	newKey, err := m.Key(newID)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), newKey.Rotations)

	// Cleanup removes the expired key for good.
	removed := m.CleanupExpiredKeys()
	assert.Equal(t, 1, removed)

	_, err = m.Decrypt(ct, oldID, "/data/f")
	require.Error(t, err)
	assert.True(t, fs.IsCode(err, fs.ErrNotFound))
}

func TestNeedsRotationByOperationCount(t *testing.T) {
	m := NewManager(AlgoNone, 3) // rotate after 3 operations
	require.NoError(t, m.RegisterPolicy("/data", AlgoAES256GCM))

	keyID, err := m.GenerateKey(AlgoAES256GCM)
	require.NoError(t, err)
	assert.False(t, m.NeedsRotation(keyID))

	for i := 0; i < 3; i++ {
		_, err := m.Encrypt([]byte("x"), keyID, "/data/f")
		require.NoError(t, err)
	}
	assert.True(t, m.NeedsRotation(keyID))
}

func TestNeedsRotationUnknownKey(t *testing.T) {
	m := NewManager(AlgoNone, 0)
	assert.False(t, m.NeedsRotation(404))
}
