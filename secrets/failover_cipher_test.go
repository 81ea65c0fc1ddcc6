package secrets

import (
	"context"
	"fmt"
	"testing"
)

type stubCipher struct {
	encryptFn func(ctx context.Context, plaintext []byte) ([]byte, error)
	decryptFn func(ctx context.Context, ciphertext []byte) ([]byte, error)
}

func (s *stubCipher) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if s.encryptFn == nil {
		return nil, fmt.Errorf("encrypt not configured")
	}
	return s.encryptFn(ctx, plaintext)
}

func (s *stubCipher) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if s.decryptFn == nil {
		return nil, fmt.Errorf("decrypt not configured")
	}
	return s.decryptFn(ctx, ciphertext)
}

func TestNewFailoverCipher_Validation(t *testing.T) {
	if _, err := NewFailoverCipher(nil); err == nil {
		t.Fatalf("expected primary cipher requirement")
	}

	primary := &stubCipher{}
	if _, err := NewFailoverCipher(primary, WithFailurePolicy(FailurePolicyFallback)); err == nil {
		t.Fatalf("expected fallback requirement under fallback policy")
	}
}

func TestFailoverCipher_StrictPolicyPropagatesPrimaryFailure(t *testing.T) {
	primary := &stubCipher{
		decryptFn: func(context.Context, []byte) ([]byte, error) {
			return nil, fmt.Errorf("kms offline")
		},
	}
	fallback := &stubCipher{
		decryptFn: func(context.Context, []byte) ([]byte, error) {
			return []byte("secret"), nil
		},
	}

	cipher, err := NewFailoverCipher(primary, WithFallbackCipher(fallback))
	if err != nil {
		t.Fatalf("new failover cipher: %v", err)
	}
	if _, err := cipher.Decrypt(context.Background(), []byte("payload")); err == nil {
		t.Fatalf("expected strict policy to propagate primary failure")
	}
}

func TestFailoverCipher_FallbackDecryptsAndEmitsDiagnostics(t *testing.T) {
	primary := &stubCipher{
		decryptFn: func(context.Context, []byte) ([]byte, error) {
			return nil, fmt.Errorf("key retired")
		},
	}
	fallback, err := NewAppKeyCipherFromString("previous-key")
	if err != nil {
		t.Fatalf("new fallback cipher: %v", err)
	}
	enveloped, err := fallback.Encrypt(context.Background(), []byte("sk_live_old"))
	if err != nil {
		t.Fatalf("encrypt with fallback key: %v", err)
	}

	var events []Diagnostic
	cipher, err := NewFailoverCipher(primary,
		WithFallbackCipher(fallback),
		WithFailurePolicy(FailurePolicyFallback),
		WithDiagnostics(func(event Diagnostic) { events = append(events, event) }),
	)
	if err != nil {
		t.Fatalf("new failover cipher: %v", err)
	}

	plaintext, err := cipher.Decrypt(context.Background(), enveloped)
	if err != nil {
		t.Fatalf("fallback decrypt: %v", err)
	}
	if string(plaintext) != "sk_live_old" {
		t.Fatalf("expected fallback plaintext, got %q", plaintext)
	}

	if len(events) != 2 {
		t.Fatalf("expected primary_failed and fallback_succeeded diagnostics, got %d", len(events))
	}
	if events[0].Outcome != "primary_failed" || events[1].Outcome != "fallback_succeeded" {
		t.Fatalf("unexpected diagnostic outcomes: %q, %q", events[0].Outcome, events[1].Outcome)
	}
}

func TestFailoverCipher_EncryptPrefersPrimary(t *testing.T) {
	primary, err := NewAppKeyCipherFromString("current-key", WithKeyID("current"), WithVersion(2))
	if err != nil {
		t.Fatalf("new primary cipher: %v", err)
	}
	cipher, err := NewFailoverCipher(primary)
	if err != nil {
		t.Fatalf("new failover cipher: %v", err)
	}

	ciphertext, err := cipher.Encrypt(context.Background(), []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := primary.Decrypt(context.Background(), ciphertext); err != nil {
		t.Fatalf("expected primary-key envelope, decrypt failed: %v", err)
	}

	keyID, version := cipher.Metadata()
	if keyID != "current" || version != 2 {
		t.Fatalf("expected primary metadata, got %s:%d", keyID, version)
	}
}
