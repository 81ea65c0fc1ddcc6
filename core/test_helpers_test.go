package core

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type memoryMemberStore struct {
	mu      sync.Mutex
	seq     int
	members map[string]Member

	updateCalls int
	// interceptUpdate runs before the CAS check, letting tests simulate a
	// concurrent writer winning the race.
	interceptUpdate func(store *memoryMemberStore, memberID string)
}

func newMemoryMemberStore() *memoryMemberStore {
	return &memoryMemberStore{members: map[string]Member{}}
}

func (s *memoryMemberStore) put(member Member) Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	if member.ID == "" {
		s.seq++
		member.ID = "member-" + strconv.Itoa(s.seq)
	}
	s.members[member.ID] = member
	return member
}

func (s *memoryMemberStore) Create(_ context.Context, member Member) (Member, error) {
	return s.put(member), nil
}

func (s *memoryMemberStore) ByID(_ context.Context, id string, filter TenantFilter) (Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	member, ok := s.members[id]
	if !ok || !tenantMatches(member, filter) {
		return Member{}, fmt.Errorf("%w: id %q", ErrMemberNotFound, id)
	}
	return member, nil
}

func (s *memoryMemberStore) ByExternalChatID(_ context.Context, chatID string, filter TenantFilter) (Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, member := range s.members {
		if member.ExternalChatID == chatID && tenantMatches(member, filter) {
			return member, nil
		}
	}
	return Member{}, fmt.Errorf("%w: external chat id %q", ErrMemberNotFound, chatID)
}

func (s *memoryMemberStore) ByEmail(_ context.Context, email string, filter TenantFilter) (Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, member := range s.members {
		if strings.EqualFold(member.Email, email) && tenantMatches(member, filter) {
			return member, nil
		}
	}
	return Member{}, fmt.Errorf("%w: email %q", ErrMemberNotFound, email)
}

func (s *memoryMemberStore) UpdateStatus(_ context.Context, memberID string, expected MemberStatus, patch MemberPatch) (Member, error) {
	if s.interceptUpdate != nil {
		intercept := s.interceptUpdate
		s.interceptUpdate = nil
		intercept(s, memberID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++

	member, ok := s.members[memberID]
	if !ok {
		return Member{}, fmt.Errorf("%w: id %q", ErrMemberNotFound, memberID)
	}
	if member.Status != expected {
		return Member{}, fmt.Errorf("%w: id %q expected %s", ErrRaceCondition, memberID, expected)
	}

	member = applyPatch(member, patch)
	member.UpdatedAt = time.Now().UTC()
	s.members[memberID] = member
	return member, nil
}

func (s *memoryMemberStore) ListByStatus(_ context.Context, status MemberStatus, filter TenantFilter) ([]Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Member{}
	for _, member := range s.members {
		if member.Status == status && tenantMatches(member, filter) {
			out = append(out, member)
		}
	}
	sortMembers(out)
	return out, nil
}

func (s *memoryMemberStore) ListExpiredTrials(_ context.Context, asOf time.Time, filter TenantFilter) ([]Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Member{}
	for _, member := range s.members {
		if member.Status != MemberStatusTrial || !tenantMatches(member, filter) {
			continue
		}
		if member.TrialEndsAt != nil && member.TrialEndsAt.Before(asOf) {
			out = append(out, member)
		}
	}
	sortMembers(out)
	return out, nil
}

func (s *memoryMemberStore) ListDelinquentSince(_ context.Context, cutoff time.Time, filter TenantFilter) ([]Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Member{}
	for _, member := range s.members {
		if member.Status != MemberStatusDelinquent || !tenantMatches(member, filter) {
			continue
		}
		if member.DelinquentAt != nil && member.DelinquentAt.Before(cutoff) {
			out = append(out, member)
		}
	}
	sortMembers(out)
	return out, nil
}

func (s *memoryMemberStore) ListActiveExpiringBy(_ context.Context, deadline time.Time, filter TenantFilter) ([]Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Member{}
	for _, member := range s.members {
		if member.Status != MemberStatusActive || !tenantMatches(member, filter) {
			continue
		}
		if member.SubscriptionEndsAt != nil && !member.SubscriptionEndsAt.After(deadline) {
			out = append(out, member)
		}
	}
	sortMembers(out)
	return out, nil
}

func tenantMatches(member Member, filter TenantFilter) bool {
	if !filter.Scoped() {
		return true
	}
	return member.TenantID != nil && *member.TenantID == *filter.Tenant
}

func applyPatch(member Member, patch MemberPatch) Member {
	member.Status = patch.Status
	if patch.TrialEndsAt != nil {
		member.TrialEndsAt = patch.TrialEndsAt
	}
	if patch.SubscriptionStartedAt != nil {
		member.SubscriptionStartedAt = patch.SubscriptionStartedAt
	}
	if patch.SubscriptionEndsAt != nil {
		member.SubscriptionEndsAt = patch.SubscriptionEndsAt
	}
	if patch.ExternalSubscriptionID != nil {
		member.ExternalSubscriptionID = *patch.ExternalSubscriptionID
	}
	if patch.ExternalCustomerID != nil {
		member.ExternalCustomerID = *patch.ExternalCustomerID
	}
	if patch.PaymentMethod != nil {
		member.PaymentMethod = *patch.PaymentMethod
	}
	if patch.LastPaymentAt != nil {
		member.LastPaymentAt = patch.LastPaymentAt
	}
	if patch.DelinquentAt != nil {
		member.DelinquentAt = patch.DelinquentAt
	}
	if patch.ClearDelinquentAt {
		member.DelinquentAt = nil
	}
	if patch.KickedAt != nil {
		member.KickedAt = patch.KickedAt
	}
	if patch.ClearKickedAt {
		member.KickedAt = nil
	}
	if patch.Notes != nil {
		member.Notes = *patch.Notes
	}
	return member
}

func sortMembers(members []Member) {
	sort.Slice(members, func(i, j int) bool {
		return members[i].ID < members[j].ID
	})
}

type captureNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *captureNotifier) NotifyOperator(_ context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, message)
	return nil
}

func (n *captureNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.messages))
	copy(out, n.messages)
	return out
}

func stringPtr(value string) *string {
	return &value
}

func timePtr(value time.Time) *time.Time {
	return &value
}

var (
	_ MemberStore      = (*memoryMemberStore)(nil)
	_ OperatorNotifier = (*captureNotifier)(nil)
)
