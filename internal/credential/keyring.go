// Package credential sources the deployment secret the session token key
// is derived from. The secret lives in the OS keyring; a secret that does
// not exist yet is generated once and stored, so a fresh deployment comes
// up with a random key without manual provisioning. Rotating the secret
// invalidates every outstanding session token.
package credential

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const tokenSecretKey = "token-secret"

// openKeyring returns a configured keyring instance for the given service.
func openKeyring(service string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/" + service + "/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt(service + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// TokenSecret returns the deployment secret for the given keyring service,
// generating and storing a fresh random one on first use.
func TokenSecret(service string) (string, error) {
	ring, err := openKeyring(service)
	if err != nil {
		return "", err
	}

	item, err := ring.Get(tokenSecretKey)
	if err == nil {
		return string(item.Data), nil
	}
	if !errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("getting token secret: %w", err)
	}

	secret, err := generateSecret()
	if err != nil {
		return "", err
	}
	if err := ring.Set(keyring.Item{Key: tokenSecretKey, Data: []byte(secret)}); err != nil {
		return "", fmt.Errorf("storing token secret: %w", err)
	}
	return secret, nil
}

// RotateTokenSecret replaces the stored deployment secret with a fresh
// random one, invalidating all session tokens minted under the old key.
func RotateTokenSecret(service string) (string, error) {
	ring, err := openKeyring(service)
	if err != nil {
		return "", err
	}

	secret, err := generateSecret()
	if err != nil {
		return "", err
	}
	if err := ring.Set(keyring.Item{Key: tokenSecretKey, Data: []byte(secret)}); err != nil {
		return "", fmt.Errorf("storing token secret: %w", err)
	}
	return secret, nil
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
