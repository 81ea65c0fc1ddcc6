package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidStatusTransition = errors.New("core: invalid member status transition")
	ErrRaceCondition           = errors.New("core: member status changed concurrently")
	ErrMemberNotFound          = errors.New("core: member not found")
	ErrMemberAlreadyEnrolled   = errors.New("core: member already enrolled")
	ErrSubscriptionNotFound    = errors.New("core: external subscription not found")
	ErrStoreUnavailable        = errors.New("core: member store unavailable")
	ErrWebhookEventNotFound    = errors.New("core: webhook event not found")
)

type MemberStatus string

const (
	MemberStatusTrial      MemberStatus = "trial"
	MemberStatusActive     MemberStatus = "active"
	MemberStatusDelinquent MemberStatus = "delinquent"
	MemberStatusRemoved    MemberStatus = "removed"
)

func (s MemberStatus) Valid() bool {
	switch s {
	case MemberStatusTrial, MemberStatusActive, MemberStatusDelinquent, MemberStatusRemoved:
		return true
	}
	return false
}

// memberTransitions is the single source of truth for ordinary lifecycle
// movement. Removed is terminal here; the removed -> active recovery path is
// the explicitly named Reactivate operation, not a table entry.
var memberTransitions = map[MemberStatus]map[MemberStatus]struct{}{
	MemberStatusTrial: {
		MemberStatusActive:  {},
		MemberStatusRemoved: {},
	},
	MemberStatusActive: {
		MemberStatusDelinquent: {},
		MemberStatusRemoved:    {},
	},
	MemberStatusDelinquent: {
		MemberStatusActive:  {},
		MemberStatusRemoved: {},
	},
	MemberStatusRemoved: {},
}

// CanTransition reports whether the transition table allows current -> next.
// Same-status is never a valid transition.
func CanTransition(current, next MemberStatus) bool {
	_, ok := memberTransitions[current][next]
	return ok
}

type Member struct {
	ID                     string
	TenantID               *string
	ExternalChatID         string
	Email                  string
	Status                 MemberStatus
	TrialStartedAt         *time.Time
	TrialEndsAt            *time.Time
	SubscriptionStartedAt  *time.Time
	SubscriptionEndsAt     *time.Time
	ExternalSubscriptionID string
	ExternalCustomerID     string
	PaymentMethod          string
	LastPaymentAt          *time.Time
	DelinquentAt           *time.Time
	KickedAt               *time.Time
	Notes                  string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// TransitionTo validates the requested transition against the table and
// applies it in place. It never writes anything; persistence happens through
// MemberStore.UpdateStatus with the prior status as the CAS guard.
func (m *Member) TransitionTo(next MemberStatus, now time.Time) error {
	if m == nil {
		return nil
	}
	if !next.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidStatusTransition, next)
	}
	if !CanTransition(m.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, m.Status, next)
	}
	m.Status = next
	m.UpdatedAt = now
	return nil
}

// Reactivate is the documented exception to the transition table: a removed
// member who pays again becomes active directly. The precondition is strict
// so the table stays authoritative for everything else.
func (m *Member) Reactivate(now time.Time) error {
	if m == nil {
		return nil
	}
	if m.Status != MemberStatusRemoved {
		return fmt.Errorf("%w: reactivate requires removed, got %s", ErrInvalidStatusTransition, m.Status)
	}
	m.Status = MemberStatusActive
	m.KickedAt = nil
	m.UpdatedAt = now
	return nil
}

func (m Member) HasExternalSubscription() bool {
	return strings.TrimSpace(m.ExternalSubscriptionID) != ""
}

type JobExecutionStatus string

const (
	JobExecutionStatusRunning JobExecutionStatus = "running"
	JobExecutionStatusSuccess JobExecutionStatus = "success"
	JobExecutionStatusFailed  JobExecutionStatus = "failed"
)

// JobExecutionRecord is created when a job starts and finalized exactly once
// when it ends. It exists for observability and alert triggering only; jobs
// must keep running when ledger writes fail.
type JobExecutionRecord struct {
	ID           string
	JobName      string
	Status       JobExecutionStatus
	StartedAt    time.Time
	FinishedAt   *time.Time
	DurationMs   int64
	Result       map[string]any
	ErrorMessage string
}

// WebhookEventRecord tracks one external event id through at-least-once
// redelivery. ProcessedAt is stamped exactly once, on the first successful
// side effect; later deliveries of the same id are no-ops.
type WebhookEventRecord struct {
	ExternalEventID string
	EventType       string
	ProcessedAt     *time.Time
	Attempts        int
	LastError       string
	Outcome         map[string]any
	ReceivedAt      time.Time
	UpdatedAt       time.Time
}

func (r WebhookEventRecord) Processed() bool {
	return r.ProcessedAt != nil
}

// ExternalSubscription is the slice of provider state the engine depends on.
type ExternalSubscription struct {
	ID     string
	Status string
}

// Provider error codes the engine distinguishes. NotFound is a business
// signal (the subscription vanished); everything else is transient.
const (
	ProviderErrorCodeNotFound     = "not_found"
	ProviderErrorCodeUnauthorized = "unauthorized"
	ProviderErrorCodeTimeout      = "timeout"
	ProviderErrorCodeUnavailable  = "unavailable"
	ProviderErrorCodeInternal     = "internal"
)

type ProviderError struct {
	Code    string
	Message string
	cause   error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("core: provider error %s", e.Code)
	}
	return fmt.Sprintf("core: provider error %s: %s", e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func NewProviderError(code string, message string, cause error) *ProviderError {
	return &ProviderError{
		Code:    strings.TrimSpace(strings.ToLower(code)),
		Message: strings.TrimSpace(message),
		cause:   cause,
	}
}

// ProviderErrorCode extracts the provider code from an error chain, or
// "internal" when the error carries no code.
func ProviderErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) && strings.TrimSpace(providerErr.Code) != "" {
		return providerErr.Code
	}
	return ProviderErrorCodeInternal
}

// IsSubscriptionNotFound reports whether err represents the provider's
// distinguished "subscription does not exist" outcome.
func IsSubscriptionNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSubscriptionNotFound) {
		return true
	}
	return ProviderErrorCode(err) == ProviderErrorCodeNotFound
}
