// Package query exposes the membership read side as go-command query pairs
// mirroring the command package layout.
package query

import (
	"context"

	"github.com/goliatone/go-membership/core"
)

// MemberReader is implemented by *core.Service.
type MemberReader interface {
	GetMember(ctx context.Context, req core.GetMemberRequest) (core.Member, error)
}

// MemberLister is the status scan surface, implemented by core.MemberStore.
type MemberLister interface {
	ListByStatus(ctx context.Context, status core.MemberStatus, filter core.TenantFilter) ([]core.Member, error)
}

// JobExecutionReader is implemented by core.JobExecutionStore.
type JobExecutionReader interface {
	ListRecent(ctx context.Context, jobName string, limit int) ([]core.JobExecutionRecord, error)
}

// WebhookEventReader is implemented by core.WebhookEventStore.
type WebhookEventReader interface {
	Get(ctx context.Context, externalEventID string) (core.WebhookEventRecord, error)
}

type GetMemberQuery struct {
	reader MemberReader
}

func NewGetMemberQuery(reader MemberReader) *GetMemberQuery {
	return &GetMemberQuery{reader: reader}
}

func (q *GetMemberQuery) Query(ctx context.Context, msg GetMemberMessage) (core.Member, error) {
	if q == nil || q.reader == nil {
		return core.Member{}, queryDependencyError("query: member reader is required")
	}
	return q.reader.GetMember(ctx, msg.Request)
}

type ListMembersByStatusQuery struct {
	lister MemberLister
}

func NewListMembersByStatusQuery(lister MemberLister) *ListMembersByStatusQuery {
	return &ListMembersByStatusQuery{lister: lister}
}

func (q *ListMembersByStatusQuery) Query(
	ctx context.Context,
	msg ListMembersByStatusMessage,
) ([]core.Member, error) {
	if q == nil || q.lister == nil {
		return nil, queryDependencyError("query: member lister is required")
	}
	return q.lister.ListByStatus(ctx, msg.Status, core.TenantFilter{Tenant: msg.Tenant})
}

type ListJobExecutionsQuery struct {
	reader JobExecutionReader
}

func NewListJobExecutionsQuery(reader JobExecutionReader) *ListJobExecutionsQuery {
	return &ListJobExecutionsQuery{reader: reader}
}

func (q *ListJobExecutionsQuery) Query(
	ctx context.Context,
	msg ListJobExecutionsMessage,
) ([]core.JobExecutionRecord, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: job execution reader is required")
	}
	return q.reader.ListRecent(ctx, msg.JobName, msg.Limit)
}

type GetWebhookEventQuery struct {
	reader WebhookEventReader
}

func NewGetWebhookEventQuery(reader WebhookEventReader) *GetWebhookEventQuery {
	return &GetWebhookEventQuery{reader: reader}
}

func (q *GetWebhookEventQuery) Query(
	ctx context.Context,
	msg GetWebhookEventMessage,
) (core.WebhookEventRecord, error) {
	if q == nil || q.reader == nil {
		return core.WebhookEventRecord{}, queryDependencyError("query: webhook event reader is required")
	}
	return q.reader.Get(ctx, msg.ExternalEventID)
}
