package security

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// PayloadProtector is a Context sealing one service's payload with
// ChaCha20-Poly1305. The AEAD key is derived from the handshake's shared
// secret with HKDF-SHA256, bound to the (session, service) pair so two
// services on the same session never share a key.
type PayloadProtector struct {
	mu     sync.Mutex
	aead   cipher.AEAD
	closed bool
}

// NewPayloadProtector derives a per-service protector from the handshake's
// shared secret.
func NewPayloadProtector(sharedSecret []byte, session uint8, serviceType uint8) (*PayloadProtector, error) {
	if len(sharedSecret) == 0 {
		return nil, ErrKeyMaterial
	}

	info := fmt.Sprintf("carlink payload v1 session=%d service=%d", session, serviceType)
	kdf := hkdf.New(sha256.New, sharedSecret, nil, []byte(info))

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD: %w", err)
	}

	return &PayloadProtector{aead: aead}, nil
}

// Encrypt seals a plaintext payload. The random nonce is prepended to the
// ciphertext.
func (p *PayloadProtector) Encrypt(plaintext []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrContextClosed
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce generation failed: %w", err)
	}
	return p.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a payload produced by Encrypt.
func (p *PayloadProtector) Decrypt(ciphertext []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrContextClosed
	}
	if len(ciphertext) < chacha20poly1305.NonceSize {
		return nil, ErrBadCiphertext
	}

	nonce := ciphertext[:chacha20poly1305.NonceSize]
	plaintext, err := p.aead.Open(nil, nonce, ciphertext[chacha20poly1305.NonceSize:], nil)
	if err != nil {
		return nil, ErrBadCiphertext
	}
	return plaintext, nil
}

// Close releases the protector. Further Encrypt/Decrypt calls fail with
// ErrContextClosed.
func (p *PayloadProtector) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.aead = nil
	return nil
}

// Compile-time interface satisfaction check.
var _ Context = (*PayloadProtector)(nil)
