// Package fieldcrypt seals individual record fields with AES-256-GCM before
// they reach the store.
//
// A token has the form base64(nonce) ":" base64(tag) ":" base64(ciphertext).
package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the per-token nonce length in bytes.
	NonceSize = 16

	tagSize   = 16
	separator = ":"
	indexInfo = "pennywise duplicate index v1"
)

var (
	// ErrMalformedToken is returned when a token is not three non-empty base64 segments.
	ErrMalformedToken = errors.New("malformed encrypted token")
	// ErrAuthentication is returned when the GCM tag does not verify.
	ErrAuthentication = errors.New("encrypted token failed authentication")
	// ErrEmptyPlaintext is returned by Encrypt for "". Absent fields are never encrypted.
	ErrEmptyPlaintext = errors.New("refusing to encrypt empty plaintext")
)

// ConfigurationError reports a missing or malformed encryption key.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "encryption key: " + e.Reason
}

// Key is a 256-bit field encryption key. It never formats its bytes.
type Key struct {
	b [KeySize]byte
}

// String implements fmt.Stringer.
func (Key) String() string { return "[redacted]" }

// GoString implements fmt.GoStringer.
func (Key) GoString() string { return "fieldcrypt.Key{[redacted]}" }

// ParseKey decodes a 64-character hexadecimal key.
func ParseKey(s string) (Key, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Key{}, &ConfigurationError{Reason: "not set"}
	}
	if len(s) != hex.EncodedLen(KeySize) {
		return Key{}, &ConfigurationError{Reason: fmt.Sprintf("expected %d hex characters, got %d", hex.EncodedLen(KeySize), len(s))}
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Key{}, &ConfigurationError{Reason: "not valid hexadecimal"}
	}
	var k Key
	copy(k.b[:], raw)
	return k, nil
}

// GenerateKey returns a new random key in its hex form.
func GenerateKey() (string, error) {
	raw := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("reading random key: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// Cipher encrypts and decrypts field tokens. It is safe for concurrent use.
type Cipher struct {
	aead     cipher.AEAD
	indexKey []byte
}

// New builds a Cipher from key.
func New(key Key) (*Cipher, error) {
	if key.b == [KeySize]byte{} {
		return nil, &ConfigurationError{Reason: "all-zero key"}
	}
	block, err := aes.NewCipher(key.b[:])
	if err != nil {
		return nil, &ConfigurationError{Reason: err.Error()}
	}
	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, &ConfigurationError{Reason: err.Error()}
	}

	indexKey := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key.b[:], nil, []byte(indexInfo)), indexKey); err != nil {
		return nil, fmt.Errorf("deriving index key: %w", err)
	}

	return &Cipher{aead: aead, indexKey: indexKey}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("reading nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	enc := base64.StdEncoding
	return enc.EncodeToString(nonce) + separator + enc.EncodeToString(tag) + separator + enc.EncodeToString(ct), nil
}

// Decrypt opens a token produced by Encrypt under the same key.
func (c *Cipher) Decrypt(token string) (string, error) {
	parts := strings.Split(token, separator)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", ErrMalformedToken
	}

	enc := base64.StdEncoding
	nonce, err := enc.DecodeString(parts[0])
	if err != nil || len(nonce) != NonceSize {
		return "", ErrMalformedToken
	}
	tag, err := enc.DecodeString(parts[1])
	if err != nil {
		return "", ErrMalformedToken
	}
	ct, err := enc.DecodeString(parts[2])
	if err != nil {
		return "", ErrMalformedToken
	}

	plain, err := c.aead.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return "", ErrAuthentication
	}
	return string(plain), nil
}

// EncryptOptional returns nil for an empty field and a sealed token otherwise.
func (c *Cipher) EncryptOptional(plaintext string) (*string, error) {
	if plaintext == "" {
		return nil, nil
	}
	tok, err := c.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// DecryptOptional returns "" for an absent token.
func (c *Cipher) DecryptOptional(token *string) (string, error) {
	if token == nil {
		return "", nil
	}
	return c.Decrypt(*token)
}

// BlindIndex returns a deterministic keyed digest of parts. Equal inputs give
// equal digests under the same key, so it can be queried with exact-match filters.
func (c *Cipher) BlindIndex(parts ...string) string {
	mac := hmac.New(sha256.New, c.indexKey)
	for _, p := range parts {
		// Length prefix keeps ("ab","c") and ("a","bc") apart.
		fmt.Fprintf(mac, "%d:%s;", len(p), p)
	}
	return hex.EncodeToString(mac.Sum(nil))
}
