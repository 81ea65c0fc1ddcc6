package query

import (
	"strings"

	"github.com/goliatone/go-membership/core"
)

const (
	TypeGetMember           = "membership.query.member.get"
	TypeListMembersByStatus = "membership.query.member.list_by_status"
	TypeListJobExecutions   = "membership.query.job_execution.list_recent"
	TypeGetWebhookEvent     = "membership.query.webhook_event.get"
)

type GetMemberMessage struct {
	Request core.GetMemberRequest
}

func (GetMemberMessage) Type() string { return TypeGetMember }

func (m GetMemberMessage) Validate() error {
	if strings.TrimSpace(m.Request.MemberID) == "" &&
		strings.TrimSpace(m.Request.ExternalChatID) == "" &&
		strings.TrimSpace(m.Request.Email) == "" {
		return queryValidationError("member_id", "member id, external chat id, or email is required")
	}
	return nil
}

type ListMembersByStatusMessage struct {
	Status core.MemberStatus
	Tenant *string
}

func (ListMembersByStatusMessage) Type() string { return TypeListMembersByStatus }

func (m ListMembersByStatusMessage) Validate() error {
	if !m.Status.Valid() {
		return queryValidationError("status", "member status is required")
	}
	return nil
}

type ListJobExecutionsMessage struct {
	JobName string
	Limit   int
}

func (ListJobExecutionsMessage) Type() string { return TypeListJobExecutions }

func (m ListJobExecutionsMessage) Validate() error {
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}

type GetWebhookEventMessage struct {
	ExternalEventID string
}

func (GetWebhookEventMessage) Type() string { return TypeGetWebhookEvent }

func (m GetWebhookEventMessage) Validate() error {
	if strings.TrimSpace(m.ExternalEventID) == "" {
		return queryValidationError("external_event_id", "external event id is required")
	}
	return nil
}
