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

// JobExecutionStore is the persistent job run ledger. Rows start as running
// and are finalized exactly once; Finish computes the duration from the
// persisted start so clock drift in the caller never shows up in the ledger.
type JobExecutionStore struct {
	db   *bun.DB
	repo repository.Repository[*jobExecutionRecord]
}

func NewJobExecutionStore(db *bun.DB) (*JobExecutionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*jobExecutionRecord](db, jobExecutionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid job execution repository wiring: %w", err)
		}
	}
	return &JobExecutionStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *JobExecutionStore) Start(ctx context.Context, jobName string) (core.JobExecutionRecord, error) {
	if s == nil || s.db == nil {
		return core.JobExecutionRecord{}, fmt.Errorf("sqlstore: job execution store is not configured")
	}
	jobName = strings.TrimSpace(jobName)
	if jobName == "" {
		return core.JobExecutionRecord{}, fmt.Errorf("sqlstore: job name is required")
	}
	record := &jobExecutionRecord{
		ID:        uuid.NewString(),
		JobName:   jobName,
		Status:    string(core.JobExecutionStatusRunning),
		StartedAt: time.Now().UTC(),
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.JobExecutionRecord{}, err
	}
	return record.toDomain(), nil
}

func (s *JobExecutionStore) Finish(
	ctx context.Context,
	id string,
	status core.JobExecutionStatus,
	result map[string]any,
	errorMessage string,
) (core.JobExecutionRecord, error) {
	if s == nil || s.db == nil {
		return core.JobExecutionRecord{}, fmt.Errorf("sqlstore: job execution store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.JobExecutionRecord{}, fmt.Errorf("sqlstore: execution id is required")
	}
	switch status {
	case core.JobExecutionStatusSuccess, core.JobExecutionStatusFailed:
	default:
		return core.JobExecutionRecord{}, fmt.Errorf("sqlstore: invalid terminal status %q", status)
	}

	existing, err := s.get(ctx, id)
	if err != nil {
		return core.JobExecutionRecord{}, err
	}
	now := time.Now().UTC()
	duration := now.Sub(existing.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	// The running guard keeps the record immutable once finalized; a second
	// Finish for the same id is a no-op returning the persisted row. The
	// model carries the result map so the jsonb column marshals per dialect.
	record := &jobExecutionRecord{
		ID:           id,
		Status:       string(status),
		FinishedAt:   &now,
		DurationMs:   duration,
		Result:       copyAnyMap(result),
		ErrorMessage: strings.TrimSpace(errorMessage),
	}
	_, err = s.db.NewUpdate().
		Model(record).
		Column("status", "finished_at", "duration_ms", "result", "error_message").
		Where("id = ?", id).
		Where("status = ?", string(core.JobExecutionStatusRunning)).
		Exec(ctx)
	if err != nil {
		return core.JobExecutionRecord{}, err
	}
	record, err = s.get(ctx, id)
	if err != nil {
		return core.JobExecutionRecord{}, err
	}
	return record.toDomain(), nil
}

func (s *JobExecutionStore) ListRecent(ctx context.Context, jobName string, limit int) ([]core.JobExecutionRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: job execution store is not configured")
	}
	if limit <= 0 {
		limit = 20
	}
	records := []*jobExecutionRecord{}
	query := s.db.NewSelect().
		Model(&records).
		Order("started_at DESC").
		Order("id DESC").
		Limit(limit)
	if jobName = strings.TrimSpace(jobName); jobName != "" {
		query = query.Where("?TableAlias.job_name = ?", jobName)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.JobExecutionRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *JobExecutionStore) get(ctx context.Context, id string) (*jobExecutionRecord, error) {
	record := &jobExecutionRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("sqlstore: job execution %q not found", id)
		}
		return nil, err
	}
	return record, nil
}
