// Package security is the Encryption Service (spec §4.10) plus Domain
// Certificate parsing consumed by the Edge Proxy's SNI cert selection.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/cuemby/temps/internal/paaserr"
)

const keySize = 32

// EncryptionService performs authenticated symmetric encryption of
// secret-bearing values with a 32-byte AES-256-GCM key.
type EncryptionService struct {
	key []byte
}

// NewEncryptionService accepts a key as raw 32 bytes or a 64-character hex
// string; any other length is rejected (spec §4.10).
func NewEncryptionService(key []byte) (*EncryptionService, error) {
	if len(key) == keySize {
		return &EncryptionService{key: key}, nil
	}
	if len(key) == keySize*2 {
		decoded, err := hex.DecodeString(string(key))
		if err != nil {
			return nil, paaserr.New(paaserr.KindValidation, "encryption key is not valid hex")
		}
		return &EncryptionService{key: decoded}, nil
	}
	return nil, paaserr.New(paaserr.KindValidation, fmt.Sprintf("encryption key must be 32 raw bytes or 64 hex characters, got %d bytes", len(key)))
}

// NewEncryptionServiceFromPassword derives a 32-byte key from password via
// SHA-256, a convenience path for bootstrapping (spec §4.10).
func NewEncryptionServiceFromPassword(password string) (*EncryptionService, error) {
	if password == "" {
		return nil, paaserr.New(paaserr.KindValidation, "password cannot be empty")
	}
	hash := sha256.Sum256([]byte(password))
	return NewEncryptionService(hash[:])
}

// Encrypt produces base64(nonce || ciphertext) using a fresh 12-byte nonce
// per call, so two encryptions of the same plaintext differ.
func (s *EncryptionService) Encrypt(plaintext []byte) (string, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. A wrong key or corrupted ciphertext fails
// cleanly — GCM's authentication tag means it never returns garbage bytes
// as if they were valid plaintext.
func (s *EncryptionService) Decrypt(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, paaserr.New(paaserr.KindValidation, "ciphertext is not valid base64")
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return nil, paaserr.New(paaserr.KindValidation, "ciphertext too short")
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, paaserr.New(paaserr.KindValidation, "decryption failed: wrong key or corrupted ciphertext")
	}

	return plaintext, nil
}

// LoadMasterKey reads and validates the data directory's master encryption
// key file: exactly 64 hex characters, per spec §6's persisted-state-layout
// contract. Absence is a hard error requiring setup.
func LoadMasterKey(hexKey string) (*EncryptionService, error) {
	if len(hexKey) != keySize*2 {
		return nil, paaserr.New(paaserr.KindValidation, fmt.Sprintf("encryption_key file must contain %d hex characters, got %d", keySize*2, len(hexKey)))
	}
	return NewEncryptionService([]byte(hexKey))
}
