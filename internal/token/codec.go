// Package token turns verified mail-server credentials into opaque bearer
// tokens and back. Tokens are self-contained: the server keeps no record of
// what it issued, so a token is valid exactly as long as it still decrypts
// and the credentials inside still authenticate.
package token

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidToken is returned (wrapped) whenever a token is structurally
// malformed, fails authentication-tag verification, or does not decode into
// a complete credential bundle. Callers must treat every such failure as a
// client authentication failure, distinct from connectivity errors.
var ErrInvalidToken = errors.New("invalid session token")

// Credentials is the bundle a token carries: everything needed to open an
// authenticated session to the user's mail server. It exists only
// transiently in process memory; call Zero when done with it.
type Credentials struct {
	Address     string `json:"email"`
	Secret      string `json:"password"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	ImplicitTLS bool   `json:"secure"`
}

// Complete reports whether the bundle has every field required to open a
// mail session.
func (c Credentials) Complete() bool {
	return c.Address != "" && c.Secret != "" && c.Host != "" && c.Port > 0
}

// Zero overwrites the plaintext fields. Go strings are immutable so this is
// best-effort: it drops the references so the backing data can be collected,
// rather than guaranteeing an in-place wipe.
func (c *Credentials) Zero() {
	c.Address = ""
	c.Secret = ""
	c.Host = ""
	c.Port = 0
	c.ImplicitTLS = false
}

// Codec encrypts and decrypts credential bundles under a process-wide key.
// The key is fixed at construction and the codec is safe for concurrent use.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec derives a 256-bit key from the deployment secret and returns a
// codec using AES-GCM.
func NewCodec(secret string) (*Codec, error) {
	key := sha256.Sum256([]byte(secret))
	return NewCodecFromKey(key[:])
}

// NewCodecFromKey builds a codec from a raw 32-byte key.
func NewCodecFromKey(key []byte) (*Codec, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("token codec: key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// Encode serializes the bundle and seals it into a printable token string.
// Each call draws a fresh nonce, so two encodings of the same bundle never
// collide.
func (c *Codec) Encode(creds Credentials) (string, error) {
	if !creds.Complete() {
		return "", fmt.Errorf("encoding token: incomplete credential bundle")
	}

	plaintext, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("encoding token: %w", err)
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("encoding token: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode reverses Encode. All failure modes collapse into ErrInvalidToken:
// a tampered, truncated, or foreign-key token is indistinguishable from
// garbage by design.
func (c *Codec) Decode(tok string) (Credentials, error) {
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: malformed encoding", ErrInvalidToken)
	}
	if len(raw) < c.aead.NonceSize() {
		return Credentials{}, fmt.Errorf("%w: token too short", ErrInvalidToken)
	}

	nonce, ciphertext := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: authentication failed", ErrInvalidToken)
	}

	var creds Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return Credentials{}, fmt.Errorf("%w: undecodable bundle", ErrInvalidToken)
	}
	if !creds.Complete() {
		return Credentials{}, fmt.Errorf("%w: incomplete bundle", ErrInvalidToken)
	}

	return creds, nil
}

// IsInvalidToken reports whether err (or any error in its chain) is
// ErrInvalidToken.
func IsInvalidToken(err error) bool {
	return errors.Is(err, ErrInvalidToken)
}
