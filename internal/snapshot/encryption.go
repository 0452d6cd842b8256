package snapshot

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize         = 16
	keySize          = 32
	pbkdf2Iterations = 100000
)

// ErrDecrypt is returned when a snapshot cannot be decrypted with the given passphrase
var ErrDecrypt = errors.New("failed to decrypt snapshot (wrong key or corrupted data)")

// Encryptor seals snapshot documents with AES-256-GCM. Each document gets a
// fresh salt, so the layout is salt | nonce | ciphertext.
type Encryptor struct {
	passphrase []byte
}

// NewEncryptor creates an encryptor for passphrase
func NewEncryptor(passphrase []byte) (*Encryptor, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("encryption passphrase is empty")
	}
	return &Encryptor{passphrase: passphrase}, nil
}

// LoadKeyFile reads a passphrase from path, trimming surrounding whitespace
func LoadKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read encryption key file: %w", err)
	}
	key := bytes.TrimSpace(data)
	if len(key) == 0 {
		return nil, fmt.Errorf("encryption key file %s is empty", path)
	}
	return key, nil
}

func (e *Encryptor) gcm(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(e.passphrase, salt, pbkdf2Iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Encrypt seals data
func (e *Encryptor) Encrypt(data []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	gcm, err := e.gcm(salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(data)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}

// Decrypt opens data sealed by Encrypt
func (e *Encryptor) Decrypt(data []byte) ([]byte, error) {
	if len(data) < saltSize {
		return nil, ErrDecrypt
	}
	gcm, err := e.gcm(data[:saltSize])
	if err != nil {
		return nil, err
	}
	rest := data[saltSize:]
	if len(rest) < gcm.NonceSize() {
		return nil, ErrDecrypt
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}
