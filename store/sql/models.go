package sqlstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-membership/core"
)

type memberRecord struct {
	bun.BaseModel `bun:"table:members,alias:m"`

	ID                     string     `bun:"id,pk"`
	TenantID               *string    `bun:"tenant_id"`
	ExternalChatID         string     `bun:"external_chat_id,notnull"`
	Email                  string     `bun:"email"`
	Status                 string     `bun:"status,notnull"`
	TrialStartedAt         *time.Time `bun:"trial_started_at,nullzero"`
	TrialEndsAt            *time.Time `bun:"trial_ends_at,nullzero"`
	SubscriptionStartedAt  *time.Time `bun:"subscription_started_at,nullzero"`
	SubscriptionEndsAt     *time.Time `bun:"subscription_ends_at,nullzero"`
	ExternalSubscriptionID string     `bun:"external_subscription_id"`
	ExternalCustomerID     string     `bun:"external_customer_id"`
	PaymentMethod          string     `bun:"payment_method"`
	LastPaymentAt          *time.Time `bun:"last_payment_at,nullzero"`
	DelinquentAt           *time.Time `bun:"delinquent_at,nullzero"`
	KickedAt               *time.Time `bun:"kicked_at,nullzero"`
	Notes                  string     `bun:"notes"`
	CreatedAt              time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt              time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newMemberRecord(member core.Member) *memberRecord {
	return &memberRecord{
		ID:                     member.ID,
		TenantID:               cloneStringPointer(member.TenantID),
		ExternalChatID:         member.ExternalChatID,
		Email:                  member.Email,
		Status:                 string(member.Status),
		TrialStartedAt:         cloneTimePointer(member.TrialStartedAt),
		TrialEndsAt:            cloneTimePointer(member.TrialEndsAt),
		SubscriptionStartedAt:  cloneTimePointer(member.SubscriptionStartedAt),
		SubscriptionEndsAt:     cloneTimePointer(member.SubscriptionEndsAt),
		ExternalSubscriptionID: member.ExternalSubscriptionID,
		ExternalCustomerID:     member.ExternalCustomerID,
		PaymentMethod:          member.PaymentMethod,
		LastPaymentAt:          cloneTimePointer(member.LastPaymentAt),
		DelinquentAt:           cloneTimePointer(member.DelinquentAt),
		KickedAt:               cloneTimePointer(member.KickedAt),
		Notes:                  member.Notes,
		CreatedAt:              member.CreatedAt,
		UpdatedAt:              member.UpdatedAt,
	}
}

func (r *memberRecord) toDomain() core.Member {
	if r == nil {
		return core.Member{}
	}
	return core.Member{
		ID:                     r.ID,
		TenantID:               cloneStringPointer(r.TenantID),
		ExternalChatID:         r.ExternalChatID,
		Email:                  r.Email,
		Status:                 core.MemberStatus(r.Status),
		TrialStartedAt:         cloneTimePointer(r.TrialStartedAt),
		TrialEndsAt:            cloneTimePointer(r.TrialEndsAt),
		SubscriptionStartedAt:  cloneTimePointer(r.SubscriptionStartedAt),
		SubscriptionEndsAt:     cloneTimePointer(r.SubscriptionEndsAt),
		ExternalSubscriptionID: r.ExternalSubscriptionID,
		ExternalCustomerID:     r.ExternalCustomerID,
		PaymentMethod:          r.PaymentMethod,
		LastPaymentAt:          cloneTimePointer(r.LastPaymentAt),
		DelinquentAt:           cloneTimePointer(r.DelinquentAt),
		KickedAt:               cloneTimePointer(r.KickedAt),
		Notes:                  r.Notes,
		CreatedAt:              r.CreatedAt,
		UpdatedAt:              r.UpdatedAt,
	}
}

type jobExecutionRecord struct {
	bun.BaseModel `bun:"table:job_executions,alias:je"`

	ID           string         `bun:"id,pk"`
	JobName      string         `bun:"job_name,notnull"`
	Status       string         `bun:"status,notnull"`
	StartedAt    time.Time      `bun:"started_at,nullzero,notnull,default:current_timestamp"`
	FinishedAt   *time.Time     `bun:"finished_at,nullzero"`
	DurationMs   int64          `bun:"duration_ms"`
	Result       map[string]any `bun:"result,type:jsonb"`
	ErrorMessage string         `bun:"error_message"`
}

func (r *jobExecutionRecord) toDomain() core.JobExecutionRecord {
	if r == nil {
		return core.JobExecutionRecord{}
	}
	return core.JobExecutionRecord{
		ID:           r.ID,
		JobName:      r.JobName,
		Status:       core.JobExecutionStatus(r.Status),
		StartedAt:    r.StartedAt,
		FinishedAt:   cloneTimePointer(r.FinishedAt),
		DurationMs:   r.DurationMs,
		Result:       copyAnyMap(r.Result),
		ErrorMessage: r.ErrorMessage,
	}
}

type webhookEventRecord struct {
	bun.BaseModel `bun:"table:webhook_events,alias:we"`

	ID              string         `bun:"id,pk"`
	ExternalEventID string         `bun:"external_event_id,notnull"`
	EventType       string         `bun:"event_type,notnull"`
	ProcessedAt     *time.Time     `bun:"processed_at,nullzero"`
	Attempts        int            `bun:"attempts,notnull"`
	LastError       string         `bun:"last_error"`
	Outcome         map[string]any `bun:"outcome,type:jsonb"`
	ReceivedAt      time.Time      `bun:"received_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *webhookEventRecord) toDomain() core.WebhookEventRecord {
	if r == nil {
		return core.WebhookEventRecord{}
	}
	return core.WebhookEventRecord{
		ExternalEventID: r.ExternalEventID,
		EventType:       r.EventType,
		ProcessedAt:     cloneTimePointer(r.ProcessedAt),
		Attempts:        r.Attempts,
		LastError:       r.LastError,
		Outcome:         copyAnyMap(r.Outcome),
		ReceivedAt:      r.ReceivedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func cloneStringPointer(input *string) *string {
	if input == nil {
		return nil
	}
	value := *input
	return &value
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

func copyAnyMap(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}
