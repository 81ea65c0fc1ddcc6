package command

import (
	"strings"

	"github.com/goliatone/go-membership/core"
	"github.com/goliatone/go-membership/webhooks"
)

const (
	TypeEnrollTrial      = "membership.command.member.enroll_trial"
	TypeActivateMember   = "membership.command.member.activate"
	TypeRenewMember      = "membership.command.member.renew"
	TypeMarkDelinquent   = "membership.command.member.mark_delinquent"
	TypeRemoveMember     = "membership.command.member.remove"
	TypeReactivateMember = "membership.command.member.reactivate"
	TypeProcessWebhook   = "membership.command.webhook.process"
	TypeEnqueueJob       = "membership.command.job.enqueue"
)

type EnrollTrialMessage struct {
	Request core.EnrollTrialRequest
}

func (EnrollTrialMessage) Type() string { return TypeEnrollTrial }

func (m EnrollTrialMessage) Validate() error {
	if strings.TrimSpace(m.Request.ExternalChatID) == "" {
		return commandValidationError("external_chat_id", "external chat id is required")
	}
	return nil
}

type ActivateMemberMessage struct {
	Request core.ActivateMemberRequest
}

func (ActivateMemberMessage) Type() string { return TypeActivateMember }

func (m ActivateMemberMessage) Validate() error {
	if strings.TrimSpace(m.Request.MemberID) == "" {
		return commandValidationError("member_id", "member id is required")
	}
	if strings.TrimSpace(m.Request.ExternalSubscriptionID) == "" {
		return commandValidationError("external_subscription_id", "external subscription id is required")
	}
	if m.Request.PeriodEnd.IsZero() {
		return commandValidationError("period_end", "period end is required")
	}
	return nil
}

type RenewMemberMessage struct {
	Request core.RenewMemberRequest
}

func (RenewMemberMessage) Type() string { return TypeRenewMember }

func (m RenewMemberMessage) Validate() error {
	if strings.TrimSpace(m.Request.MemberID) == "" {
		return commandValidationError("member_id", "member id is required")
	}
	if m.Request.PeriodEnd.IsZero() {
		return commandValidationError("period_end", "period end is required")
	}
	return nil
}

type MarkDelinquentMessage struct {
	Request core.MarkDelinquentRequest
}

func (MarkDelinquentMessage) Type() string { return TypeMarkDelinquent }

func (m MarkDelinquentMessage) Validate() error {
	if strings.TrimSpace(m.Request.MemberID) == "" {
		return commandValidationError("member_id", "member id is required")
	}
	return nil
}

type RemoveMemberMessage struct {
	Request core.RemoveMemberRequest
}

func (RemoveMemberMessage) Type() string { return TypeRemoveMember }

func (m RemoveMemberMessage) Validate() error {
	if strings.TrimSpace(m.Request.MemberID) == "" {
		return commandValidationError("member_id", "member id is required")
	}
	return nil
}

type ReactivateMemberMessage struct {
	Request core.ReactivateMemberRequest
}

func (ReactivateMemberMessage) Type() string { return TypeReactivateMember }

func (m ReactivateMemberMessage) Validate() error {
	if strings.TrimSpace(m.Request.MemberID) == "" {
		return commandValidationError("member_id", "member id is required")
	}
	if strings.TrimSpace(m.Request.ExternalSubscriptionID) == "" {
		return commandValidationError("external_subscription_id", "external subscription id is required")
	}
	if m.Request.PeriodEnd.IsZero() {
		return commandValidationError("period_end", "period end is required")
	}
	return nil
}

type ProcessWebhookMessage struct {
	Event webhooks.Event
}

func (ProcessWebhookMessage) Type() string { return TypeProcessWebhook }

func (m ProcessWebhookMessage) Validate() error {
	if strings.TrimSpace(m.Event.ExternalEventID) == "" {
		return commandValidationError("external_event_id", "external event id is required")
	}
	if strings.TrimSpace(m.Event.EventType) == "" {
		return commandValidationError("event_type", "event type is required")
	}
	return nil
}

type EnqueueJobMessage struct {
	Message core.JobExecutionMessage
}

func (EnqueueJobMessage) Type() string { return TypeEnqueueJob }

func (m EnqueueJobMessage) Validate() error {
	if strings.TrimSpace(m.Message.JobID) == "" {
		return commandValidationError("job_id", "job id is required")
	}
	return nil
}
