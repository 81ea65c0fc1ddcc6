package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type EnrollTrialRequest struct {
	ExternalChatID string
	Email          string
	Tenant         *string
	Notes          string
}

type GetMemberRequest struct {
	MemberID       string
	ExternalChatID string
	Email          string
	Tenant         *string
}

type ActivateMemberRequest struct {
	MemberID               string
	Tenant                 *string
	ExternalSubscriptionID string
	ExternalCustomerID     string
	PaymentMethod          string
	PaidAt                 time.Time
	PeriodEnd              time.Time
}

type RenewMemberRequest struct {
	MemberID  string
	Tenant    *string
	PaidAt    time.Time
	PeriodEnd time.Time
}

type MarkDelinquentRequest struct {
	MemberID string
	Tenant   *string
	At       time.Time
	Reason   string
}

type RemoveMemberRequest struct {
	MemberID string
	Tenant   *string
	At       time.Time
	Reason   string
}

type ReactivateMemberRequest struct {
	MemberID               string
	Tenant                 *string
	ExternalSubscriptionID string
	PaidAt                 time.Time
	PeriodEnd              time.Time
}

// EnrollTrial creates a member in trial. Members are never created in any
// other status; everything after enrollment moves through guarded
// transitions.
func (s *Service) EnrollTrial(ctx context.Context, req EnrollTrialRequest) (member Member, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"external_chat_id": req.ExternalChatID}
	defer func() {
		if member.ID != "" {
			fields["member_id"] = member.ID
		}
		s.observeOperation(ctx, startedAt, "enroll_trial", err, fields)
	}()

	if s == nil || s.memberStore == nil {
		err = s.mapError(fmt.Errorf("core: member store is required"))
		return Member{}, err
	}
	externalChatID := strings.TrimSpace(req.ExternalChatID)
	if externalChatID == "" {
		err = s.mapError(fmt.Errorf("core: external chat id is required"))
		return Member{}, err
	}

	filter := s.resolveTenant(req.Tenant)
	existing, lookupErr := s.memberStore.ByExternalChatID(ctx, externalChatID, filter)
	if lookupErr == nil && existing.ID != "" {
		err = s.mapError(fmt.Errorf("%w: external chat id %q", ErrMemberAlreadyEnrolled, externalChatID))
		return Member{}, err
	}
	if lookupErr != nil && !errors.Is(lookupErr, ErrMemberNotFound) {
		err = s.mapError(lookupErr)
		return Member{}, err
	}

	now := time.Now().UTC()
	trialEnds := now.Add(s.config.Lifecycle.TrialPeriod)
	candidate := Member{
		TenantID:       filter.Tenant,
		ExternalChatID: externalChatID,
		Email:          strings.TrimSpace(req.Email),
		Status:         MemberStatusTrial,
		TrialStartedAt: &now,
		TrialEndsAt:    &trialEnds,
		Notes:          strings.TrimSpace(req.Notes),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	member, createErr := s.memberStore.Create(ctx, candidate)
	if createErr != nil {
		err = s.mapError(createErr)
		return Member{}, err
	}
	return member, nil
}

// GetMember resolves a member by id, external chat id, or email, in that
// precedence order.
func (s *Service) GetMember(ctx context.Context, req GetMemberRequest) (Member, error) {
	if s == nil || s.memberStore == nil {
		return Member{}, s.mapError(fmt.Errorf("core: member store is required"))
	}
	filter := s.resolveTenant(req.Tenant)
	switch {
	case strings.TrimSpace(req.MemberID) != "":
		member, err := s.memberStore.ByID(ctx, strings.TrimSpace(req.MemberID), filter)
		return member, s.mapError(err)
	case strings.TrimSpace(req.ExternalChatID) != "":
		member, err := s.memberStore.ByExternalChatID(ctx, strings.TrimSpace(req.ExternalChatID), filter)
		return member, s.mapError(err)
	case strings.TrimSpace(req.Email) != "":
		member, err := s.memberStore.ByEmail(ctx, strings.TrimSpace(req.Email), filter)
		return member, s.mapError(err)
	}
	return Member{}, s.mapError(fmt.Errorf("core: member id, external chat id, or email is required"))
}

// ActivateMember moves a trial or delinquent member to active after a
// successful payment, binding the external subscription and advancing the
// paid period. The CAS guard is the status observed at read time.
func (s *Service) ActivateMember(ctx context.Context, req ActivateMemberRequest) (member Member, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"member_id": req.MemberID}
	defer func() {
		s.observeOperation(ctx, startedAt, "activate_member", err, fields)
	}()

	member, err = s.transitionMember(ctx, req.MemberID, req.Tenant, MemberStatusActive, func(current Member, patch *MemberPatch) {
		paidAt := req.PaidAt.UTC()
		periodEnd := req.PeriodEnd.UTC()
		patch.LastPaymentAt = &paidAt
		patch.SubscriptionEndsAt = &periodEnd
		patch.ClearDelinquentAt = true
		if current.SubscriptionStartedAt == nil {
			patch.SubscriptionStartedAt = &paidAt
		}
		if sub := strings.TrimSpace(req.ExternalSubscriptionID); sub != "" {
			patch.ExternalSubscriptionID = &sub
		}
		if cust := strings.TrimSpace(req.ExternalCustomerID); cust != "" {
			patch.ExternalCustomerID = &cust
		}
		if method := strings.TrimSpace(req.PaymentMethod); method != "" {
			patch.PaymentMethod = &method
		}
	})
	return member, err
}

// RenewMember advances the paid period of an already-active member. This is
// not a status transition; the CAS guard on active still protects it from a
// racing kick or delinquency mark.
func (s *Service) RenewMember(ctx context.Context, req RenewMemberRequest) (member Member, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"member_id": req.MemberID}
	defer func() {
		s.observeOperation(ctx, startedAt, "renew_member", err, fields)
	}()

	if s == nil || s.memberStore == nil {
		err = s.mapError(fmt.Errorf("core: member store is required"))
		return Member{}, err
	}
	memberID := strings.TrimSpace(req.MemberID)
	if memberID == "" {
		err = s.mapError(fmt.Errorf("core: member id is required"))
		return Member{}, err
	}

	filter := s.resolveTenant(req.Tenant)
	current, readErr := s.memberStore.ByID(ctx, memberID, filter)
	if readErr != nil {
		err = s.mapError(readErr)
		return Member{}, err
	}
	if current.Status != MemberStatusActive {
		err = s.mapError(fmt.Errorf("%w: renew requires active, got %s", ErrInvalidStatusTransition, current.Status))
		return Member{}, err
	}

	paidAt := req.PaidAt.UTC()
	periodEnd := req.PeriodEnd.UTC()
	member, updateErr := s.memberStore.UpdateStatus(ctx, memberID, MemberStatusActive, MemberPatch{
		Status:             MemberStatusActive,
		LastPaymentAt:      &paidAt,
		SubscriptionEndsAt: &periodEnd,
	})
	if updateErr != nil {
		err = s.mapError(updateErr)
		return Member{}, err
	}
	return member, nil
}

// MarkDelinquent records a failed payment: active -> delinquent with the
// delinquency timestamp that later drives the grace-period kick.
func (s *Service) MarkDelinquent(ctx context.Context, req MarkDelinquentRequest) (member Member, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"member_id": req.MemberID}
	defer func() {
		s.observeOperation(ctx, startedAt, "mark_delinquent", err, fields)
	}()

	at := req.At
	if at.IsZero() {
		at = time.Now()
	}
	utc := at.UTC()
	member, err = s.transitionMember(ctx, req.MemberID, req.Tenant, MemberStatusDelinquent, func(current Member, patch *MemberPatch) {
		patch.DelinquentAt = &utc
		patch.Notes = appendNote(current.Notes, req.Reason)
	})
	return member, err
}

// RemoveMember is the guarded terminal transition. Members are never
// physically deleted; removed is a soft-terminal state reachable back only
// through ReactivateMember.
func (s *Service) RemoveMember(ctx context.Context, req RemoveMemberRequest) (member Member, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"member_id": req.MemberID}
	defer func() {
		s.observeOperation(ctx, startedAt, "remove_member", err, fields)
	}()

	at := req.At
	if at.IsZero() {
		at = time.Now()
	}
	utc := at.UTC()
	member, err = s.transitionMember(ctx, req.MemberID, req.Tenant, MemberStatusRemoved, func(current Member, patch *MemberPatch) {
		patch.KickedAt = &utc
		patch.Notes = appendNote(current.Notes, req.Reason)
	})
	return member, err
}

// ReactivateMember is the named recovery operation for "member pays again
// after being removed". It bypasses the transition table deliberately and
// checks its own precondition instead.
func (s *Service) ReactivateMember(ctx context.Context, req ReactivateMemberRequest) (member Member, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"member_id": req.MemberID}
	defer func() {
		s.observeOperation(ctx, startedAt, "reactivate_member", err, fields)
	}()

	if s == nil || s.memberStore == nil {
		err = s.mapError(fmt.Errorf("core: member store is required"))
		return Member{}, err
	}
	memberID := strings.TrimSpace(req.MemberID)
	if memberID == "" {
		err = s.mapError(fmt.Errorf("core: member id is required"))
		return Member{}, err
	}

	filter := s.resolveTenant(req.Tenant)
	current, readErr := s.memberStore.ByID(ctx, memberID, filter)
	if readErr != nil {
		err = s.mapError(readErr)
		return Member{}, err
	}

	now := time.Now().UTC()
	candidate := current
	if reactivateErr := candidate.Reactivate(now); reactivateErr != nil {
		err = s.mapError(reactivateErr)
		return Member{}, err
	}

	paidAt := req.PaidAt.UTC()
	periodEnd := req.PeriodEnd.UTC()
	patch := MemberPatch{
		Status:             MemberStatusActive,
		LastPaymentAt:      &paidAt,
		SubscriptionEndsAt: &periodEnd,
		ClearDelinquentAt:  true,
		ClearKickedAt:      true,
	}
	if sub := strings.TrimSpace(req.ExternalSubscriptionID); sub != "" {
		patch.ExternalSubscriptionID = &sub
	}

	member, updateErr := s.memberStore.UpdateStatus(ctx, memberID, MemberStatusRemoved, patch)
	if updateErr != nil {
		err = s.mapError(updateErr)
		return Member{}, err
	}
	return member, nil
}

// transitionMember reads the member, validates the transition against the
// table, and issues the CAS write with the observed status as the guard. A
// concurrent winner surfaces as ErrRaceCondition; callers re-read and retry
// or abort, they never overwrite.
func (s *Service) transitionMember(
	ctx context.Context,
	memberID string,
	tenant *string,
	next MemberStatus,
	apply func(current Member, patch *MemberPatch),
) (Member, error) {
	if s == nil || s.memberStore == nil {
		return Member{}, s.mapError(fmt.Errorf("core: member store is required"))
	}
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return Member{}, s.mapError(fmt.Errorf("core: member id is required"))
	}

	filter := s.resolveTenant(tenant)
	current, err := s.memberStore.ByID(ctx, memberID, filter)
	if err != nil {
		return Member{}, s.mapError(err)
	}

	if !CanTransition(current.Status, next) {
		return Member{}, s.mapError(fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current.Status, next))
	}

	patch := MemberPatch{Status: next}
	if apply != nil {
		apply(current, &patch)
	}
	updated, err := s.memberStore.UpdateStatus(ctx, memberID, current.Status, patch)
	if err != nil {
		return Member{}, s.mapError(err)
	}
	return updated, nil
}

// appendNote keeps prior operator notes intact and adds the event reason on
// its own line. A blank reason leaves the notes column untouched.
func appendNote(existing string, note string) *string {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil
	}
	combined := note
	if existing = strings.TrimSpace(existing); existing != "" {
		combined = existing + "\n" + note
	}
	return &combined
}
