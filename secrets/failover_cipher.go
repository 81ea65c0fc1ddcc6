package secrets

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
)

type FailurePolicy string

const (
	FailurePolicyStrict   FailurePolicy = "strict_fail"
	FailurePolicyFallback FailurePolicy = "fallback_allowed"
)

// Diagnostic describes one failover decision, for operator visibility when
// the primary key store degrades.
type Diagnostic struct {
	OccurredAt time.Time
	Operation  string
	Policy     FailurePolicy
	Outcome    string
	Primary    string
	Fallback   string
	Error      string
}

type DiagnosticHook func(event Diagnostic)

type FailoverOption func(*FailoverCipher)

type cipherMetadataPair struct {
	KeyID   string
	Version int
}

// FailoverCipher pairs a primary cipher with an optional fallback, usually
// during a key rotation when old envelopes still reference the retiring key.
type FailoverCipher struct {
	primary        Cipher
	fallback       Cipher
	policy         FailurePolicy
	diagnosticHook DiagnosticHook
	now            func() time.Time

	mu             sync.RWMutex
	lastEncryption cipherMetadataPair
}

func NewFailoverCipher(primary Cipher, opts ...FailoverOption) (*FailoverCipher, error) {
	if primary == nil {
		return nil, fmt.Errorf("secrets: primary cipher is required")
	}
	failover := &FailoverCipher{
		primary: primary,
		policy:  FailurePolicyStrict,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(failover)
	}
	failover.policy = normalizeFailurePolicy(failover.policy)
	if failover.policy == FailurePolicyFallback && failover.fallback == nil {
		return nil, fmt.Errorf("secrets: fallback policy requires a configured fallback cipher")
	}
	if failover.now == nil {
		failover.now = func() time.Time { return time.Now().UTC() }
	}
	failover.recordMetadata(failover.primary)
	return failover, nil
}

func WithFallbackCipher(cipher Cipher) FailoverOption {
	return func(f *FailoverCipher) {
		if f == nil {
			return
		}
		f.fallback = cipher
	}
}

func WithFailurePolicy(policy FailurePolicy) FailoverOption {
	return func(f *FailoverCipher) {
		if f == nil {
			return
		}
		f.policy = normalizeFailurePolicy(policy)
	}
}

func WithDiagnostics(hook DiagnosticHook) FailoverOption {
	return func(f *FailoverCipher) {
		if f == nil {
			return
		}
		f.diagnosticHook = hook
	}
}

func WithFailoverClock(now func() time.Time) FailoverOption {
	return func(f *FailoverCipher) {
		if f == nil {
			return
		}
		f.now = now
	}
}

func (f *FailoverCipher) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("secrets: cipher is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("secrets: plaintext is required")
	}
	ciphertext, err := f.primary.Encrypt(ctx, plaintext)
	if err == nil {
		f.recordMetadata(f.primary)
		return ciphertext, nil
	}
	f.emit("encrypt", "primary_failed", err)
	if f.policy == FailurePolicyStrict || f.fallback == nil {
		return nil, fmt.Errorf("secrets: primary encrypt failed with %s policy: %w", f.policy, err)
	}
	fallbackCiphertext, fallbackErr := f.fallback.Encrypt(ctx, plaintext)
	if fallbackErr != nil {
		f.emit("encrypt", "fallback_failed", fallbackErr)
		return nil, fmt.Errorf("secrets: primary encrypt failed: %v; fallback encrypt failed: %w", err, fallbackErr)
	}
	f.recordMetadata(f.fallback)
	f.emit("encrypt", "fallback_succeeded", err)
	return fallbackCiphertext, nil
}

func (f *FailoverCipher) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("secrets: cipher is nil")
	}
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("secrets: ciphertext is required")
	}
	plaintext, err := f.primary.Decrypt(ctx, ciphertext)
	if err == nil {
		return plaintext, nil
	}
	f.emit("decrypt", "primary_failed", err)
	if f.policy == FailurePolicyStrict || f.fallback == nil {
		return nil, fmt.Errorf("secrets: primary decrypt failed with %s policy: %w", f.policy, err)
	}
	fallbackPlaintext, fallbackErr := f.fallback.Decrypt(ctx, ciphertext)
	if fallbackErr != nil {
		f.emit("decrypt", "fallback_failed", fallbackErr)
		return nil, fmt.Errorf("secrets: primary decrypt failed: %v; fallback decrypt failed: %w", err, fallbackErr)
	}
	f.emit("decrypt", "fallback_succeeded", err)
	return fallbackPlaintext, nil
}

func (f *FailoverCipher) Metadata() (string, int) {
	if f == nil {
		return "", 0
	}
	f.mu.RLock()
	last := f.lastEncryption
	f.mu.RUnlock()
	if strings.TrimSpace(last.KeyID) != "" && last.Version > 0 {
		return last.KeyID, last.Version
	}
	if keyID, version, ok := readCipherMetadata(f.primary); ok {
		return keyID, version
	}
	if keyID, version, ok := readCipherMetadata(f.fallback); ok {
		return keyID, version
	}
	return "", 0
}

func (f *FailoverCipher) emit(operation string, outcome string, err error) {
	if f == nil || f.diagnosticHook == nil {
		return
	}
	now := f.now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	f.diagnosticHook(Diagnostic{
		OccurredAt: now().UTC(),
		Operation:  operation,
		Policy:     f.policy,
		Outcome:    outcome,
		Primary:    describeCipher(f.primary),
		Fallback:   describeCipher(f.fallback),
		Error:      msg,
	})
}

func (f *FailoverCipher) recordMetadata(cipher Cipher) {
	if f == nil {
		return
	}
	keyID, version, ok := readCipherMetadata(cipher)
	if !ok {
		return
	}
	f.mu.Lock()
	f.lastEncryption = cipherMetadataPair{KeyID: keyID, Version: version}
	f.mu.Unlock()
}

func normalizeFailurePolicy(policy FailurePolicy) FailurePolicy {
	normalized := FailurePolicy(strings.ToLower(strings.TrimSpace(string(policy))))
	switch normalized {
	case FailurePolicyFallback:
		return FailurePolicyFallback
	default:
		return FailurePolicyStrict
	}
}

func readCipherMetadata(cipher Cipher) (string, int, bool) {
	if cipher == nil {
		return "", 0, false
	}
	metadataProvider, ok := cipher.(interface{ Metadata() (string, int) })
	if !ok {
		return "", 0, false
	}
	keyID, version := metadataProvider.Metadata()
	keyID = strings.TrimSpace(keyID)
	if keyID == "" || version <= 0 {
		return "", 0, false
	}
	return keyID, version, true
}

func describeCipher(cipher Cipher) string {
	if cipher == nil {
		return ""
	}
	label := reflect.TypeOf(cipher).String()
	if keyID, version, ok := readCipherMetadata(cipher); ok {
		return fmt.Sprintf("%s(%s:%d)", label, keyID, version)
	}
	return label
}

var _ Cipher = (*FailoverCipher)(nil)
