package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrDecrypt is returned for any ciphertext that cannot be decrypted:
// malformed serialization, truncated parts, or a failed auth tag check.
// A corrupted credential must fail loudly, never resolve to garbage.
var ErrDecrypt = errors.New("decryption failed")

// Cipher encrypts IMAP passwords at rest with AES-256-GCM. Ciphertexts are
// serialized as hex(iv):hex(authTag):hex(encrypted), colon-delimited.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a cipher from a 64-hex-char key (32 bytes, AES-256)
func NewCipher(hexKey string) (*Cipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt encrypts a plaintext password
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	// Seal appends the auth tag to the ciphertext; the wire format carries
	// them as separate parts
	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	n := len(sealed) - c.aead.Overhead()
	encrypted, tag := sealed[:n], sealed[n:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(encrypted), nil
}

// Decrypt decrypts a serialized ciphertext back into the plaintext password
func (c *Cipher) Decrypt(encrypted string) (string, error) {
	parts := strings.Split(encrypted, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected 3 parts, got %d", ErrDecrypt, len(parts))
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: bad iv: %v", ErrDecrypt, err)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: bad auth tag: %v", ErrDecrypt, err)
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext: %v", ErrDecrypt, err)
	}

	if len(iv) != c.aead.NonceSize() || len(tag) != c.aead.Overhead() {
		return "", fmt.Errorf("%w: bad iv or tag length", ErrDecrypt)
	}

	plaintext, err := c.aead.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	return string(plaintext), nil
}
