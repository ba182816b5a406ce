package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/fathima-sithara/realtime-service/pkg/apperrors"
)

// Codec encrypts and decrypts message bodies with AES-256-GCM. A fresh
// random nonce is drawn per call, so encrypting the same plaintext twice
// never yields the same ciphertext. Values travel as hex strings.
type Codec struct {
	aead cipher.AEAD
}

// New fails unless key is exactly 32 bytes; callers must treat that as a
// fatal configuration problem at boot.
func New(key []byte) (*Codec, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Codec{aead: aead}, nil
}

// Encrypt returns hex-encoded ciphertext and nonce.
func (c *Codec) Encrypt(plaintext string) (ciphertext, iv string, err error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", "", err
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), hex.EncodeToString(nonce), nil
}

// Decrypt reverses Encrypt. Tampered ciphertext or a key mismatch yields a
// DECRYPTION_FAILED error; callers substitute a placeholder and keep going.
func (c *Codec) Decrypt(ciphertext, iv string) (string, error) {
	sealed, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", apperrors.DecryptionFailed(err)
	}
	nonce, err := hex.DecodeString(iv)
	if err != nil {
		return "", apperrors.DecryptionFailed(err)
	}
	if len(nonce) != c.aead.NonceSize() {
		return "", apperrors.DecryptionFailed(fmt.Errorf("nonce length %d", len(nonce)))
	}
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", apperrors.DecryptionFailed(err)
	}
	return string(plain), nil
}
