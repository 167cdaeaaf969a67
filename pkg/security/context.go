package security

import (
	"errors"
)

// Security errors.
var (
	ErrContextClosed = errors.New("security context closed")
	ErrBadCiphertext = errors.New("ciphertext authentication failed")
	ErrKeyMaterial   = errors.New("invalid key material")
)

// Context is an opaque security context produced by a completed handshake.
// It protects one service's payload. Contexts are owned by the Manager
// that created them; holders other than the Manager must not Close them.
type Context interface {
	// Encrypt seals a plaintext payload for the wire.
	Encrypt(plaintext []byte) ([]byte, error)

	// Decrypt opens a payload received from the wire.
	Decrypt(ciphertext []byte) ([]byte, error)

	// Close releases the context's key material. Called only by the
	// owning Manager.
	Close() error
}
