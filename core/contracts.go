package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// TenantFilter scopes a store lookup. A nil Tenant means global (no
// filtering); the service layer resolves the configured default tenant and
// the explicit "disable filtering" pointer before the store ever sees it.
type TenantFilter struct {
	Tenant *string
}

func (f TenantFilter) Scoped() bool {
	return f.Tenant != nil && *f.Tenant != ""
}

// MemberPatch carries the fields a CAS status update may set alongside the
// new status. Pointer fields are applied only when non-nil.
type MemberPatch struct {
	Status                 MemberStatus
	TrialEndsAt            *time.Time
	SubscriptionStartedAt  *time.Time
	SubscriptionEndsAt     *time.Time
	ExternalSubscriptionID *string
	ExternalCustomerID     *string
	PaymentMethod          *string
	LastPaymentAt          *time.Time
	DelinquentAt           *time.Time
	ClearDelinquentAt      bool
	KickedAt               *time.Time
	ClearKickedAt          bool
	Notes                  *string
}

// MemberStore is the persistence contract. UpdateStatus is a compare-and-swap
// on the status column: the write applies only when the persisted status
// still equals expected, otherwise ErrRaceCondition (member exists) or
// ErrMemberNotFound surfaces and the caller re-reads and retries or aborts.
type MemberStore interface {
	Create(ctx context.Context, member Member) (Member, error)
	ByID(ctx context.Context, id string, filter TenantFilter) (Member, error)
	ByExternalChatID(ctx context.Context, externalChatID string, filter TenantFilter) (Member, error)
	ByEmail(ctx context.Context, email string, filter TenantFilter) (Member, error)
	UpdateStatus(ctx context.Context, memberID string, expected MemberStatus, patch MemberPatch) (Member, error)
	ListByStatus(ctx context.Context, status MemberStatus, filter TenantFilter) ([]Member, error)
	ListExpiredTrials(ctx context.Context, asOf time.Time, filter TenantFilter) ([]Member, error)
	ListDelinquentSince(ctx context.Context, cutoff time.Time, filter TenantFilter) ([]Member, error)
	ListActiveExpiringBy(ctx context.Context, deadline time.Time, filter TenantFilter) ([]Member, error)
}

// JobExecutionStore persists job run history. Records are finalized exactly
// once and read-only afterward.
type JobExecutionStore interface {
	Start(ctx context.Context, jobName string) (JobExecutionRecord, error)
	Finish(ctx context.Context, id string, status JobExecutionStatus, result map[string]any, errorMessage string) (JobExecutionRecord, error)
	ListRecent(ctx context.Context, jobName string, limit int) ([]JobExecutionRecord, error)
}

// WebhookEventStore is the durable side of webhook idempotency. FindOrCreate
// relies on the unique constraint on external_event_id: the second sighting
// of an id returns the existing record with created=false.
type WebhookEventStore interface {
	FindOrCreate(ctx context.Context, externalEventID string, eventType string) (WebhookEventRecord, bool, error)
	Get(ctx context.Context, externalEventID string) (WebhookEventRecord, error)
	MarkProcessed(ctx context.Context, externalEventID string, outcome map[string]any) (WebhookEventRecord, error)
	MarkFailed(ctx context.Context, externalEventID string, cause error) (WebhookEventRecord, error)
}

// StoreProvider bundles the persistence surface a fully wired deployment
// needs. The SQL factory implements it; tests swap in memory fakes per store.
type StoreProvider interface {
	MemberStore() MemberStore
	JobExecutionStore() JobExecutionStore
	WebhookEventStore() WebhookEventStore
}

// SubscriptionProviderClient is the external payment provider collaborator.
// Implementations return *ProviderError with code "not_found" for vanished
// subscriptions and retry transient failures internally with bounded backoff.
type SubscriptionProviderClient interface {
	GetSubscription(ctx context.Context, subscriptionID string) (ExternalSubscription, error)
}

// OperatorNotifier is a fire-and-forget alert sink. Callers log delivery
// failures and move on; an unreachable sink never fails a job.
type OperatorNotifier interface {
	NotifyOperator(ctx context.Context, message string) error
}

// AlertDebouncer rate-limits duplicate operator notifications per key.
// CanSend records the send time as a side effect of returning true.
type AlertDebouncer interface {
	CanSend(ctx context.Context, key string, window time.Duration) (bool, error)
}

// JobLocker is the per-process single-flight guard. Acquire returning false
// is a normal "skipped" outcome, not an error; Release must run on every
// exit path of the guarded section.
type JobLocker interface {
	Acquire(jobName string) bool
	Release(jobName string)
}

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// Job queue contracts mirrored onto go-job by adapters/gojob. Scheduled
// entry points are enqueued as execution messages keyed by job id; the
// idempotency key lets the queue dedupe redundant schedules.
type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}
