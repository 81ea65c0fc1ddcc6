package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-membership/secrets"
)

const (
	defaultSignatureHeader    = "X-Signature"
	defaultTimestampHeader    = "X-Timestamp"
	defaultSignatureTolerance = 5 * time.Minute
)

var (
	ErrMissingSignature = errors.New("webhooks: signature header is missing")
	ErrInvalidSignature = errors.New("webhooks: signature does not match payload")
	ErrStaleTimestamp   = errors.New("webhooks: timestamp is outside the tolerance window")
)

// SignatureConfig describes how the provider signs its deliveries. Secret
// may be a plaintext value or a secrets envelope; enveloped values need a
// cipher via WithSecretCipher.
type SignatureConfig struct {
	Secret          string
	SignatureHeader string
	TimestampHeader string
	// Tolerance bounds clock skew and replay age. Deliveries older than it
	// are rejected even when the signature itself is valid.
	Tolerance time.Duration
}

// SignatureVerifier authenticates raw deliveries before they are decoded
// into events and handed to the gate.
type SignatureVerifier struct {
	secret          []byte
	signatureHeader string
	timestampHeader string
	tolerance       time.Duration
	now             func() time.Time
	cipher          secrets.Cipher
}

type SignatureOption func(*SignatureVerifier)

func WithSecretCipher(cipher secrets.Cipher) SignatureOption {
	return func(v *SignatureVerifier) {
		if cipher != nil {
			v.cipher = cipher
		}
	}
}

func WithSignatureClock(now func() time.Time) SignatureOption {
	return func(v *SignatureVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

func NewSignatureVerifier(cfg SignatureConfig, options ...SignatureOption) (*SignatureVerifier, error) {
	verifier := &SignatureVerifier{
		signatureHeader: strings.TrimSpace(cfg.SignatureHeader),
		timestampHeader: strings.TrimSpace(cfg.TimestampHeader),
		tolerance:       cfg.Tolerance,
		now:             func() time.Time { return time.Now().UTC() },
	}
	if verifier.signatureHeader == "" {
		verifier.signatureHeader = defaultSignatureHeader
	}
	if verifier.timestampHeader == "" {
		verifier.timestampHeader = defaultTimestampHeader
	}
	if verifier.tolerance <= 0 {
		verifier.tolerance = defaultSignatureTolerance
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(verifier)
	}

	secret, err := secrets.ResolveString(context.Background(), verifier.cipher, cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("webhooks: resolve signing secret: %w", err)
	}
	if secret == "" {
		return nil, fmt.Errorf("webhooks: signing secret is required")
	}
	verifier.secret = []byte(secret)
	return verifier, nil
}

// Sign computes the signature a provider would attach to body at the given
// time. Exposed for tests and for outbound deliveries in development setups.
func Sign(secret string, at time.Time, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(at.UTC().Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the delivery's signature and timestamp. The timestamp is
// part of the signed payload, so replaying an old body with a fresh
// timestamp fails the comparison.
func (v *SignatureVerifier) Verify(headers http.Header, body []byte) error {
	if v == nil || len(v.secret) == 0 {
		return fmt.Errorf("webhooks: signature verifier is not configured")
	}

	signature := strings.TrimSpace(headers.Get(v.signatureHeader))
	signature = strings.TrimPrefix(signature, "sha256=")
	if signature == "" {
		return ErrMissingSignature
	}

	rawTimestamp := strings.TrimSpace(headers.Get(v.timestampHeader))
	if rawTimestamp == "" {
		return fmt.Errorf("%w: missing %s header", ErrStaleTimestamp, v.timestampHeader)
	}
	unix, err := strconv.ParseInt(rawTimestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid %s header", ErrStaleTimestamp, v.timestampHeader)
	}
	signedAt := time.Unix(unix, 0).UTC()

	now := v.now().UTC()
	if delta := now.Sub(signedAt); delta > v.tolerance || delta < -v.tolerance {
		return fmt.Errorf("%w: signed at %s", ErrStaleTimestamp, signedAt.Format(time.RFC3339))
	}

	expected := Sign(string(v.secret), signedAt, body)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

type deliveryEnvelope struct {
	ID   string         `json:"id"`
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// VerifyAndDecode authenticates a raw delivery and decodes it into the
// event the gate processes.
func (v *SignatureVerifier) VerifyAndDecode(headers http.Header, body []byte) (Event, error) {
	if err := v.Verify(headers, body); err != nil {
		return Event{}, err
	}

	var payload deliveryEnvelope
	if err := json.Unmarshal(body, &payload); err != nil {
		return Event{}, fmt.Errorf("webhooks: decode delivery: %w", err)
	}
	payload.ID = strings.TrimSpace(payload.ID)
	payload.Type = strings.TrimSpace(payload.Type)
	if payload.ID == "" {
		return Event{}, fmt.Errorf("webhooks: delivery id is required")
	}
	if payload.Type == "" {
		return Event{}, fmt.Errorf("webhooks: delivery type is required")
	}
	return Event{
		ExternalEventID: payload.ID,
		EventType:       payload.Type,
		Payload:         payload.Data,
	}, nil
}
