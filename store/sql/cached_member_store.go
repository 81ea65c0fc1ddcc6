package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-membership/core"
)

const memberCacheKeyPrefix = "go-membership::member::v1"

// CachedMemberStore fronts hot member reads with a read-through cache.
// Every write path invalidates before returning, so a reconciliation run
// that follows a webhook mutation always sees the webhook's write.
type CachedMemberStore struct {
	base  core.MemberStore
	cache repositorycache.CacheService
}

func NewCachedMemberStore(
	base core.MemberStore,
	cacheService repositorycache.CacheService,
) (*CachedMemberStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base member store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: member cache service is required")
	}
	return &CachedMemberStore{base: base, cache: cacheService}, nil
}

// MemberCacheKey returns the deterministic cache key contract for member
// reads: go-membership::member::v1::<member_id>::<tenant> with each segment
// URL-path escaped. Unscoped lookups use an empty tenant segment.
func MemberCacheKey(memberID string, filter core.TenantFilter) string {
	tenant := ""
	if filter.Scoped() {
		tenant = *filter.Tenant
	}
	return strings.Join([]string{
		memberCacheKeyPrefix,
		url.PathEscape(strings.TrimSpace(memberID)),
		url.PathEscape(tenant),
	}, "::")
}

func (s *CachedMemberStore) Create(ctx context.Context, member core.Member) (core.Member, error) {
	if s == nil || s.base == nil {
		return core.Member{}, fmt.Errorf("sqlstore: cached member store is not configured")
	}
	return s.base.Create(ctx, member)
}

func (s *CachedMemberStore) ByID(ctx context.Context, id string, filter core.TenantFilter) (core.Member, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Member{}, fmt.Errorf("sqlstore: cached member store is not configured")
	}
	member, err := repositorycache.GetOrFetch(ctx, s.cache, MemberCacheKey(id, filter), func(ctx context.Context) (core.Member, error) {
		return s.base.ByID(ctx, id, filter)
	})
	if err != nil {
		return core.Member{}, err
	}
	return member, nil
}

func (s *CachedMemberStore) ByExternalChatID(ctx context.Context, externalChatID string, filter core.TenantFilter) (core.Member, error) {
	if s == nil || s.base == nil {
		return core.Member{}, fmt.Errorf("sqlstore: cached member store is not configured")
	}
	return s.base.ByExternalChatID(ctx, externalChatID, filter)
}

func (s *CachedMemberStore) ByEmail(ctx context.Context, email string, filter core.TenantFilter) (core.Member, error) {
	if s == nil || s.base == nil {
		return core.Member{}, fmt.Errorf("sqlstore: cached member store is not configured")
	}
	return s.base.ByEmail(ctx, email, filter)
}

func (s *CachedMemberStore) UpdateStatus(
	ctx context.Context,
	memberID string,
	expected core.MemberStatus,
	patch core.MemberPatch,
) (core.Member, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Member{}, fmt.Errorf("sqlstore: cached member store is not configured")
	}
	member, err := s.base.UpdateStatus(ctx, memberID, expected, patch)
	tenantID := member.TenantID
	if err != nil {
		// A losing CAS returns the zero member, so the tenant scope has to
		// come from an uncached read or the scoped entry would keep serving
		// the loser's status to the retry.
		if current, lookupErr := s.base.ByID(ctx, memberID, core.TenantFilter{}); lookupErr == nil {
			tenantID = current.TenantID
		}
	}
	if invalidateErr := s.invalidate(ctx, memberID, tenantID); invalidateErr != nil {
		return core.Member{}, invalidateErr
	}
	return member, err
}

func (s *CachedMemberStore) ListByStatus(ctx context.Context, status core.MemberStatus, filter core.TenantFilter) ([]core.Member, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached member store is not configured")
	}
	return s.base.ListByStatus(ctx, status, filter)
}

func (s *CachedMemberStore) ListExpiredTrials(ctx context.Context, asOf time.Time, filter core.TenantFilter) ([]core.Member, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached member store is not configured")
	}
	return s.base.ListExpiredTrials(ctx, asOf, filter)
}

func (s *CachedMemberStore) ListDelinquentSince(ctx context.Context, cutoff time.Time, filter core.TenantFilter) ([]core.Member, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached member store is not configured")
	}
	return s.base.ListDelinquentSince(ctx, cutoff, filter)
}

func (s *CachedMemberStore) ListActiveExpiringBy(ctx context.Context, deadline time.Time, filter core.TenantFilter) ([]core.Member, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached member store is not configured")
	}
	return s.base.ListActiveExpiringBy(ctx, deadline, filter)
}

// invalidate drops both the tenant-scoped and the unscoped key. Failed CAS
// writes invalidate too, so the retry after ErrRaceCondition re-reads the
// winning status instead of the cached loser.
func (s *CachedMemberStore) invalidate(ctx context.Context, memberID string, tenantID *string) error {
	keys := []string{MemberCacheKey(memberID, core.TenantFilter{})}
	if tenantID != nil && *tenantID != "" {
		keys = append(keys, MemberCacheKey(memberID, core.TenantFilter{Tenant: tenantID}))
	}
	for _, key := range keys {
		if err := s.cache.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
