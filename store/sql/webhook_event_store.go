package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-membership/core"
)

// WebhookEventStore is the durable half of webhook idempotency. The unique
// index on external_event_id makes FindOrCreate race-safe across processes:
// whichever insert loses the race reads back the winner's row.
type WebhookEventStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookEventRecord]
}

func NewWebhookEventStore(db *bun.DB) (*WebhookEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookEventRecord](db, webhookEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook event repository wiring: %w", err)
		}
	}
	return &WebhookEventStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *WebhookEventStore) FindOrCreate(
	ctx context.Context,
	externalEventID string,
	eventType string,
) (core.WebhookEventRecord, bool, error) {
	if s == nil || s.db == nil {
		return core.WebhookEventRecord{}, false, fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	externalEventID = strings.TrimSpace(externalEventID)
	eventType = strings.TrimSpace(eventType)
	if externalEventID == "" || eventType == "" {
		return core.WebhookEventRecord{}, false, fmt.Errorf("sqlstore: external event id and event type are required")
	}

	now := time.Now().UTC()
	record := &webhookEventRecord{
		ID:              uuid.NewString(),
		ExternalEventID: externalEventID,
		EventType:       eventType,
		ReceivedAt:      now,
		UpdatedAt:       now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.Get(ctx, externalEventID)
			if getErr != nil {
				return core.WebhookEventRecord{}, false, getErr
			}
			return existing, false, nil
		}
		return core.WebhookEventRecord{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *WebhookEventStore) Get(ctx context.Context, externalEventID string) (core.WebhookEventRecord, error) {
	if s == nil || s.db == nil {
		return core.WebhookEventRecord{}, fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	record := &webhookEventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.external_event_id = ?", strings.TrimSpace(externalEventID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.WebhookEventRecord{}, fmt.Errorf("%w: %s", core.ErrWebhookEventNotFound, externalEventID)
		}
		return core.WebhookEventRecord{}, err
	}
	return record.toDomain(), nil
}

// MarkProcessed stamps processed_at on the first successful handling only.
// The processed_at IS NULL guard keeps replays from rewriting the outcome.
func (s *WebhookEventStore) MarkProcessed(
	ctx context.Context,
	externalEventID string,
	outcome map[string]any,
) (core.WebhookEventRecord, error) {
	if s == nil || s.db == nil {
		return core.WebhookEventRecord{}, fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	now := time.Now().UTC()
	record := &webhookEventRecord{
		ProcessedAt: &now,
		Outcome:     copyAnyMap(outcome),
		LastError:   "",
		UpdatedAt:   now,
	}
	_, err := s.db.NewUpdate().
		Model(record).
		Column("processed_at", "outcome", "last_error", "updated_at").
		Where("external_event_id = ?", strings.TrimSpace(externalEventID)).
		Where("processed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return core.WebhookEventRecord{}, err
	}
	return s.Get(ctx, externalEventID)
}

func (s *WebhookEventStore) MarkFailed(
	ctx context.Context,
	externalEventID string,
	cause error,
) (core.WebhookEventRecord, error) {
	if s == nil || s.db == nil {
		return core.WebhookEventRecord{}, fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	now := time.Now().UTC()
	_, err := s.db.NewUpdate().
		Model((*webhookEventRecord)(nil)).
		Set("attempts = attempts + 1").
		Set("last_error = ?", message).
		Set("updated_at = ?", now).
		Where("external_event_id = ?", strings.TrimSpace(externalEventID)).
		Where("processed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return core.WebhookEventRecord{}, err
	}
	return s.Get(ctx, externalEventID)
}
