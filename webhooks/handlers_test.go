package webhooks

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-membership/core"
)

type stubService struct {
	members map[string]core.Member

	activated   []core.ActivateMemberRequest
	renewed     []core.RenewMemberRequest
	delinquent  []core.MarkDelinquentRequest
	removed     []core.RemoveMemberRequest
	reactivated []core.ReactivateMemberRequest

	mutateErr error
}

func newStubService(members ...core.Member) *stubService {
	s := &stubService{members: map[string]core.Member{}}
	for _, member := range members {
		s.members[member.ID] = member
	}
	return s
}

func (s *stubService) GetMember(_ context.Context, req core.GetMemberRequest) (core.Member, error) {
	if req.MemberID != "" {
		if member, ok := s.members[req.MemberID]; ok {
			return member, nil
		}
		return core.Member{}, fmt.Errorf("%w: id %q", core.ErrMemberNotFound, req.MemberID)
	}
	for _, member := range s.members {
		if req.ExternalChatID != "" && member.ExternalChatID == req.ExternalChatID {
			return member, nil
		}
		if req.Email != "" && member.Email == req.Email {
			return member, nil
		}
	}
	return core.Member{}, fmt.Errorf("%w: no match", core.ErrMemberNotFound)
}

func (s *stubService) ActivateMember(_ context.Context, req core.ActivateMemberRequest) (core.Member, error) {
	if s.mutateErr != nil {
		return core.Member{}, s.mutateErr
	}
	s.activated = append(s.activated, req)
	return core.Member{ID: req.MemberID, Status: core.MemberStatusActive}, nil
}

func (s *stubService) RenewMember(_ context.Context, req core.RenewMemberRequest) (core.Member, error) {
	if s.mutateErr != nil {
		return core.Member{}, s.mutateErr
	}
	s.renewed = append(s.renewed, req)
	return core.Member{ID: req.MemberID, Status: core.MemberStatusActive}, nil
}

func (s *stubService) MarkDelinquent(_ context.Context, req core.MarkDelinquentRequest) (core.Member, error) {
	if s.mutateErr != nil {
		return core.Member{}, s.mutateErr
	}
	s.delinquent = append(s.delinquent, req)
	return core.Member{ID: req.MemberID, Status: core.MemberStatusDelinquent}, nil
}

func (s *stubService) RemoveMember(_ context.Context, req core.RemoveMemberRequest) (core.Member, error) {
	if s.mutateErr != nil {
		return core.Member{}, s.mutateErr
	}
	s.removed = append(s.removed, req)
	return core.Member{ID: req.MemberID, Status: core.MemberStatusRemoved}, nil
}

func (s *stubService) ReactivateMember(_ context.Context, req core.ReactivateMemberRequest) (core.Member, error) {
	if s.mutateErr != nil {
		return core.Member{}, s.mutateErr
	}
	s.reactivated = append(s.reactivated, req)
	return core.Member{ID: req.MemberID, Status: core.MemberStatusActive}, nil
}

var _ MemberMutator = (*stubService)(nil)

func paymentEvent(eventType string, memberID string) Event {
	return Event{
		ExternalEventID: "evt_" + memberID,
		EventType:       eventType,
		Payload: map[string]any{
			"member_id":       memberID,
			"subscription_id": "sub_1",
			"paid_at":         "2025-03-01T12:00:00Z",
			"period_end":      "2025-04-01T12:00:00Z",
		},
	}
}

func TestPaymentSucceededRoutesByStatus(t *testing.T) {
	tests := []struct {
		name       string
		status     core.MemberStatus
		wantAction string
	}{
		{"trial activates", core.MemberStatusTrial, "activated"},
		{"delinquent activates", core.MemberStatusDelinquent, "activated"},
		{"active renews", core.MemberStatusActive, "renewed"},
		{"removed reactivates", core.MemberStatusRemoved, "reactivated"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			service := newStubService(core.Member{ID: "m1", Status: tc.status})
			handler := PaymentSucceededHandler(service)

			outcome, err := handler.Handle(context.Background(), paymentEvent(EventPaymentSucceeded, "m1"))
			if err != nil {
				t.Fatalf("Handle returned error: %v", err)
			}
			if outcome["action"] != tc.wantAction {
				t.Fatalf("action = %v, want %s", outcome["action"], tc.wantAction)
			}
		})
	}
}

func TestPaymentSucceededParsesTimes(t *testing.T) {
	service := newStubService(core.Member{ID: "m1", Status: core.MemberStatusTrial})
	handler := PaymentSucceededHandler(service)

	if _, err := handler.Handle(context.Background(), paymentEvent(EventPaymentSucceeded, "m1")); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if len(service.activated) != 1 {
		t.Fatalf("expected 1 activation, got %d", len(service.activated))
	}
	req := service.activated[0]
	if !req.PaidAt.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("paid at = %v", req.PaidAt)
	}
	if !req.PeriodEnd.Equal(time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("period end = %v", req.PeriodEnd)
	}
	if req.ExternalSubscriptionID != "sub_1" {
		t.Fatalf("subscription id = %q", req.ExternalSubscriptionID)
	}
}

func TestPaymentSucceededRequiresPeriodEnd(t *testing.T) {
	service := newStubService(core.Member{ID: "m1", Status: core.MemberStatusTrial})
	handler := PaymentSucceededHandler(service)

	event := paymentEvent(EventPaymentSucceeded, "m1")
	delete(event.Payload, "period_end")
	if _, err := handler.Handle(context.Background(), event); err == nil {
		t.Fatal("expected error for missing period_end")
	}
}

func TestPaymentFailedMarksDelinquent(t *testing.T) {
	service := newStubService(core.Member{ID: "m1", Status: core.MemberStatusActive})
	handler := PaymentFailedHandler(service)

	outcome, err := handler.Handle(context.Background(), Event{
		ExternalEventID: "evt_f1",
		EventType:       EventPaymentFailed,
		Payload: map[string]any{
			"member_id": "m1",
			"reason":    "card declined",
			"failed_at": "2025-03-01T12:00:00Z",
		},
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if outcome["action"] != "marked_delinquent" {
		t.Fatalf("action = %v", outcome["action"])
	}
	if len(service.delinquent) != 1 || service.delinquent[0].Reason != "card declined" {
		t.Fatalf("delinquent calls = %+v", service.delinquent)
	}
}

func TestPaymentFailedStaleRedeliveryIsNoOp(t *testing.T) {
	service := newStubService(core.Member{ID: "m1", Status: core.MemberStatusDelinquent})
	service.mutateErr = fmt.Errorf("%w: active -> delinquent", core.ErrInvalidStatusTransition)
	handler := PaymentFailedHandler(service)

	outcome, err := handler.Handle(context.Background(), Event{
		ExternalEventID: "evt_f2",
		EventType:       EventPaymentFailed,
		Payload:         map[string]any{"member_id": "m1"},
	})
	if err != nil {
		t.Fatalf("stale redelivery must not error: %v", err)
	}
	if outcome["action"] != "noop" {
		t.Fatalf("action = %v, want noop", outcome["action"])
	}
}

func TestSubscriptionCanceledRemovesMember(t *testing.T) {
	service := newStubService(core.Member{ID: "m1", Status: core.MemberStatusActive})
	handler := SubscriptionCanceledHandler(service)

	outcome, err := handler.Handle(context.Background(), Event{
		ExternalEventID: "evt_c1",
		EventType:       EventSubscriptionCanceled,
		Payload:         map[string]any{"member_id": "m1"},
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if outcome["action"] != "removed" {
		t.Fatalf("action = %v", outcome["action"])
	}
	if len(service.removed) != 1 || service.removed[0].Reason != "subscription canceled" {
		t.Fatalf("removed calls = %+v", service.removed)
	}
}

func TestSubscriptionCanceledAlreadyRemovedIsNoOp(t *testing.T) {
	service := newStubService(core.Member{ID: "m1", Status: core.MemberStatusRemoved})
	service.mutateErr = fmt.Errorf("%w: removed -> removed", core.ErrInvalidStatusTransition)
	handler := SubscriptionCanceledHandler(service)

	outcome, err := handler.Handle(context.Background(), Event{
		ExternalEventID: "evt_c2",
		EventType:       EventSubscriptionCanceled,
		Payload:         map[string]any{"member_id": "m1"},
	})
	if err != nil {
		t.Fatalf("already-removed redelivery must not error: %v", err)
	}
	if outcome["action"] != "noop" {
		t.Fatalf("action = %v, want noop", outcome["action"])
	}
}

func TestHandlersRequireMemberReference(t *testing.T) {
	service := newStubService()
	handler := PaymentFailedHandler(service)
	if _, err := handler.Handle(context.Background(), Event{ExternalEventID: "evt_x", EventType: EventPaymentFailed}); err == nil {
		t.Fatal("expected error for event without member reference")
	}
}

func TestHandlerErrorKeepsEventUnprocessed(t *testing.T) {
	service := newStubService(core.Member{ID: "m1", Status: core.MemberStatusActive})
	service.mutateErr = errors.New("store offline")

	store := newMemoryEventStore()
	gate := NewGate(store)
	RegisterMembershipHandlers(gate, service)

	event := Event{
		ExternalEventID: "evt_e2e",
		EventType:       EventSubscriptionCanceled,
		Payload:         map[string]any{"member_id": "m1"},
	}
	if _, err := gate.Process(context.Background(), event); err == nil {
		t.Fatal("expected handler error to propagate")
	}

	record, err := store.Get(context.Background(), "evt_e2e")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if record.Processed() {
		t.Fatal("failed event must stay unprocessed for redelivery")
	}
	if record.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", record.Attempts)
	}
}
