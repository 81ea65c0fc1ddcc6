package webhooks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-membership/core"
)

// Event types the membership handlers understand.
const (
	EventPaymentSucceeded     = "payment_succeeded"
	EventPaymentFailed        = "payment_failed"
	EventSubscriptionCanceled = "subscription_canceled"
)

// MemberMutator is the slice of the membership service the handlers use.
// Implemented by *core.Service; every mutation goes through the guarded
// transitions, so a webhook can never overwrite a concurrent job's write.
type MemberMutator interface {
	GetMember(ctx context.Context, req core.GetMemberRequest) (core.Member, error)
	ActivateMember(ctx context.Context, req core.ActivateMemberRequest) (core.Member, error)
	RenewMember(ctx context.Context, req core.RenewMemberRequest) (core.Member, error)
	MarkDelinquent(ctx context.Context, req core.MarkDelinquentRequest) (core.Member, error)
	RemoveMember(ctx context.Context, req core.RemoveMemberRequest) (core.Member, error)
	ReactivateMember(ctx context.Context, req core.ReactivateMemberRequest) (core.Member, error)
}

// RegisterMembershipHandlers binds the payment event handlers to the gate.
func RegisterMembershipHandlers(gate *Gate, service MemberMutator) {
	if gate == nil || service == nil {
		return
	}
	gate.Register(EventPaymentSucceeded, PaymentSucceededHandler(service))
	gate.Register(EventPaymentFailed, PaymentFailedHandler(service))
	gate.Register(EventSubscriptionCanceled, SubscriptionCanceledHandler(service))
}

// PaymentSucceededHandler routes a successful payment by the member's current
// status: trial or delinquent members activate, active members renew, removed
// members reactivate.
func PaymentSucceededHandler(service MemberMutator) HandlerFunc {
	return func(ctx context.Context, event Event) (map[string]any, error) {
		member, err := resolveMember(ctx, service, event)
		if err != nil {
			return nil, err
		}

		paidAt := timeField(event.Payload, "paid_at")
		periodEnd := timeField(event.Payload, "period_end")
		if periodEnd.IsZero() {
			return nil, fmt.Errorf("webhooks: payment event requires period_end")
		}
		if paidAt.IsZero() {
			paidAt = time.Now().UTC()
		}
		subscriptionID := stringField(event.Payload, "subscription_id")

		var updated core.Member
		var action string
		switch member.Status {
		case core.MemberStatusActive:
			action = "renewed"
			updated, err = service.RenewMember(ctx, core.RenewMemberRequest{
				MemberID:  member.ID,
				Tenant:    member.TenantID,
				PaidAt:    paidAt,
				PeriodEnd: periodEnd,
			})
		case core.MemberStatusRemoved:
			action = "reactivated"
			updated, err = service.ReactivateMember(ctx, core.ReactivateMemberRequest{
				MemberID:               member.ID,
				Tenant:                 member.TenantID,
				ExternalSubscriptionID: subscriptionID,
				PaidAt:                 paidAt,
				PeriodEnd:              periodEnd,
			})
		default:
			action = "activated"
			updated, err = service.ActivateMember(ctx, core.ActivateMemberRequest{
				MemberID:               member.ID,
				Tenant:                 member.TenantID,
				ExternalSubscriptionID: subscriptionID,
				ExternalCustomerID:     stringField(event.Payload, "customer_id"),
				PaymentMethod:          stringField(event.Payload, "payment_method"),
				PaidAt:                 paidAt,
				PeriodEnd:              periodEnd,
			})
		}
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"member_id": updated.ID,
			"action":    action,
			"status":    string(updated.Status),
		}, nil
	}
}

// PaymentFailedHandler marks the member delinquent, starting the grace-period
// clock the kick job later enforces.
func PaymentFailedHandler(service MemberMutator) HandlerFunc {
	return func(ctx context.Context, event Event) (map[string]any, error) {
		member, err := resolveMember(ctx, service, event)
		if err != nil {
			return nil, err
		}

		reason := stringField(event.Payload, "reason")
		if reason == "" {
			reason = "payment failed"
		}
		at := timeField(event.Payload, "failed_at")

		updated, err := service.MarkDelinquent(ctx, core.MarkDelinquentRequest{
			MemberID: member.ID,
			Tenant:   member.TenantID,
			At:       at,
			Reason:   reason,
		})
		if err != nil {
			// An already delinquent or removed member is a stale redelivery
			// against newer local state; there is nothing left to do.
			if core.IsInvalidTransition(err) {
				return map[string]any{
					"member_id": member.ID,
					"action":    "noop",
					"status":    string(member.Status),
				}, nil
			}
			return nil, err
		}
		return map[string]any{
			"member_id": updated.ID,
			"action":    "marked_delinquent",
			"status":    string(updated.Status),
		}, nil
	}
}

// SubscriptionCanceledHandler removes the member outright.
func SubscriptionCanceledHandler(service MemberMutator) HandlerFunc {
	return func(ctx context.Context, event Event) (map[string]any, error) {
		member, err := resolveMember(ctx, service, event)
		if err != nil {
			return nil, err
		}

		updated, err := service.RemoveMember(ctx, core.RemoveMemberRequest{
			MemberID: member.ID,
			Tenant:   member.TenantID,
			At:       timeField(event.Payload, "canceled_at"),
			Reason:   "subscription canceled",
		})
		if err != nil {
			if core.IsInvalidTransition(err) && member.Status == core.MemberStatusRemoved {
				return map[string]any{
					"member_id": member.ID,
					"action":    "noop",
					"status":    string(member.Status),
				}, nil
			}
			return nil, err
		}
		return map[string]any{
			"member_id": updated.ID,
			"action":    "removed",
			"status":    string(updated.Status),
		}, nil
	}
}

// resolveMember locates the member the event refers to, trying member id,
// external chat id, then email.
func resolveMember(ctx context.Context, service MemberMutator, event Event) (core.Member, error) {
	req := core.GetMemberRequest{
		MemberID:       stringField(event.Payload, "member_id"),
		ExternalChatID: stringField(event.Payload, "external_chat_id"),
		Email:          stringField(event.Payload, "email"),
	}
	if tenant := stringField(event.Payload, "tenant"); tenant != "" {
		req.Tenant = &tenant
	}
	if req.MemberID == "" && req.ExternalChatID == "" && req.Email == "" {
		return core.Member{}, fmt.Errorf("webhooks: event %s carries no member reference", event.ExternalEventID)
	}
	return service.GetMember(ctx, req)
}

func stringField(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	if value, ok := payload[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func timeField(payload map[string]any, key string) time.Time {
	raw := stringField(payload, key)
	if raw == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}
