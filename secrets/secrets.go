// Package secrets protects the credentials the engine carries in its
// configuration: the payment provider API key and the webhook signing
// secret. Values are stored as self-describing envelopes and decrypted at
// construction time by whichever component consumes them.
package secrets

import (
	"context"
	"fmt"
	"strings"
)

// EnvelopePrefix marks an encrypted configuration value. Anything without
// the prefix is treated as plaintext and passed through untouched.
const EnvelopePrefix = "membership.secret.v1:"

type Cipher interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

func IsEnvelope(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), EnvelopePrefix)
}

// ResolveString returns the plaintext for a configuration value, decrypting
// it when it is an envelope. Plaintext values and a nil cipher pass through.
func ResolveString(ctx context.Context, cipher Cipher, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || cipher == nil || !IsEnvelope(trimmed) {
		return trimmed, nil
	}
	plaintext, err := cipher.Decrypt(ctx, []byte(trimmed))
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// EncryptString produces an envelope suitable for a configuration file.
func EncryptString(ctx context.Context, cipher Cipher, value string) (string, error) {
	if cipher == nil {
		return "", fmt.Errorf("secrets: cipher is required")
	}
	ciphertext, err := cipher.Encrypt(ctx, []byte(value))
	if err != nil {
		return "", err
	}
	return string(ciphertext), nil
}
