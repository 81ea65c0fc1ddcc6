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

// MemberStore persists members with an optimistic status guard. UpdateStatus
// compiles to a single conditional UPDATE; a zero row count means another
// writer moved the member first.
type MemberStore struct {
	db   *bun.DB
	repo repository.Repository[*memberRecord]
}

func NewMemberStore(db *bun.DB) (*MemberStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*memberRecord](db, memberHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid member repository wiring: %w", err)
		}
	}
	return &MemberStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *MemberStore) Create(ctx context.Context, member core.Member) (core.Member, error) {
	if s == nil || s.db == nil {
		return core.Member{}, fmt.Errorf("sqlstore: member store is not configured")
	}
	member.ExternalChatID = strings.TrimSpace(member.ExternalChatID)
	if member.ExternalChatID == "" {
		return core.Member{}, fmt.Errorf("sqlstore: external chat id is required")
	}
	if strings.TrimSpace(member.ID) == "" {
		member.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if member.CreatedAt.IsZero() {
		member.CreatedAt = now
	}
	member.UpdatedAt = now

	record := newMemberRecord(member)
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return core.Member{}, fmt.Errorf(
				"%w: external chat id %q", core.ErrMemberAlreadyEnrolled, member.ExternalChatID)
		}
		return core.Member{}, err
	}
	return record.toDomain(), nil
}

func (s *MemberStore) ByID(ctx context.Context, id string, filter core.TenantFilter) (core.Member, error) {
	return s.getOne(ctx, filter, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.id = ?", strings.TrimSpace(id))
	}, fmt.Sprintf("id %q", id))
}

func (s *MemberStore) ByExternalChatID(ctx context.Context, externalChatID string, filter core.TenantFilter) (core.Member, error) {
	return s.getOne(ctx, filter, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.external_chat_id = ?", strings.TrimSpace(externalChatID))
	}, fmt.Sprintf("external chat id %q", externalChatID))
}

func (s *MemberStore) ByEmail(ctx context.Context, email string, filter core.TenantFilter) (core.Member, error) {
	return s.getOne(ctx, filter, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("lower(?TableAlias.email) = lower(?)", strings.TrimSpace(email))
	}, fmt.Sprintf("email %q", email))
}

// UpdateStatus is the compare-and-swap write behind every lifecycle
// transition. The expected status travels into the WHERE clause, so the swap
// and the guard are one statement and no row lock outlives the call.
func (s *MemberStore) UpdateStatus(
	ctx context.Context,
	memberID string,
	expected core.MemberStatus,
	patch core.MemberPatch,
) (core.Member, error) {
	if s == nil || s.db == nil {
		return core.Member{}, fmt.Errorf("sqlstore: member store is not configured")
	}
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return core.Member{}, fmt.Errorf("sqlstore: member id is required")
	}
	if !patch.Status.Valid() {
		return core.Member{}, fmt.Errorf("sqlstore: invalid target status %q", patch.Status)
	}

	now := time.Now().UTC()
	update := s.db.NewUpdate().
		Model((*memberRecord)(nil)).
		Set("status = ?", string(patch.Status)).
		Set("updated_at = ?", now).
		Where("id = ?", memberID).
		Where("status = ?", string(expected))
	applyPatchSets(update, patch)

	result, err := update.Exec(ctx)
	if err != nil {
		return core.Member{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return core.Member{}, err
	}
	if affected == 0 {
		// Either the member vanished or a concurrent writer changed the
		// status between our read and this write. Re-read to tell them apart.
		current, getErr := s.ByID(ctx, memberID, core.TenantFilter{})
		if getErr != nil {
			return core.Member{}, fmt.Errorf("%w: id %q", core.ErrMemberNotFound, memberID)
		}
		return core.Member{}, fmt.Errorf(
			"%w: id %q expected %s, found %s",
			core.ErrRaceCondition, memberID, expected, current.Status)
	}
	return s.ByID(ctx, memberID, core.TenantFilter{})
}

func (s *MemberStore) ListByStatus(ctx context.Context, status core.MemberStatus, filter core.TenantFilter) ([]core.Member, error) {
	return s.list(ctx, filter, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.status = ?", string(status))
	})
}

func (s *MemberStore) ListExpiredTrials(ctx context.Context, asOf time.Time, filter core.TenantFilter) ([]core.Member, error) {
	return s.list(ctx, filter, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("?TableAlias.status = ?", string(core.MemberStatusTrial)).
			Where("?TableAlias.trial_ends_at IS NOT NULL").
			Where("?TableAlias.trial_ends_at < ?", asOf.UTC())
	})
}

func (s *MemberStore) ListDelinquentSince(ctx context.Context, cutoff time.Time, filter core.TenantFilter) ([]core.Member, error) {
	return s.list(ctx, filter, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("?TableAlias.status = ?", string(core.MemberStatusDelinquent)).
			Where("?TableAlias.delinquent_at IS NOT NULL").
			Where("?TableAlias.delinquent_at < ?", cutoff.UTC())
	})
}

func (s *MemberStore) ListActiveExpiringBy(ctx context.Context, deadline time.Time, filter core.TenantFilter) ([]core.Member, error) {
	return s.list(ctx, filter, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("?TableAlias.status = ?", string(core.MemberStatusActive)).
			Where("?TableAlias.subscription_ends_at IS NOT NULL").
			Where("?TableAlias.subscription_ends_at <= ?", deadline.UTC())
	})
}

func (s *MemberStore) getOne(
	ctx context.Context,
	filter core.TenantFilter,
	apply func(*bun.SelectQuery) *bun.SelectQuery,
	descriptor string,
) (core.Member, error) {
	if s == nil || s.db == nil {
		return core.Member{}, fmt.Errorf("sqlstore: member store is not configured")
	}
	record := &memberRecord{}
	query := apply(s.db.NewSelect().Model(record))
	query = applyTenantFilter(query, filter)
	if err := query.Limit(1).Scan(ctx); err != nil {
		if err == sql.ErrNoRows {
			return core.Member{}, fmt.Errorf("%w: %s", core.ErrMemberNotFound, descriptor)
		}
		return core.Member{}, err
	}
	return record.toDomain(), nil
}

func (s *MemberStore) list(
	ctx context.Context,
	filter core.TenantFilter,
	apply func(*bun.SelectQuery) *bun.SelectQuery,
) ([]core.Member, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: member store is not configured")
	}
	records := []*memberRecord{}
	query := apply(s.db.NewSelect().Model(&records))
	query = applyTenantFilter(query, filter)
	if err := query.Order("id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	members := make([]core.Member, 0, len(records))
	for _, record := range records {
		members = append(members, record.toDomain())
	}
	return members, nil
}

func applyTenantFilter(query *bun.SelectQuery, filter core.TenantFilter) *bun.SelectQuery {
	if !filter.Scoped() {
		return query
	}
	return query.Where("?TableAlias.tenant_id = ?", *filter.Tenant)
}

func applyPatchSets(update *bun.UpdateQuery, patch core.MemberPatch) {
	if patch.TrialEndsAt != nil {
		update.Set("trial_ends_at = ?", patch.TrialEndsAt.UTC())
	}
	if patch.SubscriptionStartedAt != nil {
		update.Set("subscription_started_at = ?", patch.SubscriptionStartedAt.UTC())
	}
	if patch.SubscriptionEndsAt != nil {
		update.Set("subscription_ends_at = ?", patch.SubscriptionEndsAt.UTC())
	}
	if patch.ExternalSubscriptionID != nil {
		update.Set("external_subscription_id = ?", *patch.ExternalSubscriptionID)
	}
	if patch.ExternalCustomerID != nil {
		update.Set("external_customer_id = ?", *patch.ExternalCustomerID)
	}
	if patch.PaymentMethod != nil {
		update.Set("payment_method = ?", *patch.PaymentMethod)
	}
	if patch.LastPaymentAt != nil {
		update.Set("last_payment_at = ?", patch.LastPaymentAt.UTC())
	}
	if patch.DelinquentAt != nil {
		update.Set("delinquent_at = ?", patch.DelinquentAt.UTC())
	}
	if patch.ClearDelinquentAt {
		update.Set("delinquent_at = NULL")
	}
	if patch.KickedAt != nil {
		update.Set("kicked_at = ?", patch.KickedAt.UTC())
	}
	if patch.ClearKickedAt {
		update.Set("kicked_at = NULL")
	}
	if patch.Notes != nil {
		update.Set("notes = ?", *patch.Notes)
	}
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
