package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-membership/core"
)

var (
	_ gocmd.Querier[GetMemberMessage, core.Member]                       = (*GetMemberQuery)(nil)
	_ gocmd.Querier[ListMembersByStatusMessage, []core.Member]           = (*ListMembersByStatusQuery)(nil)
	_ gocmd.Querier[ListJobExecutionsMessage, []core.JobExecutionRecord] = (*ListJobExecutionsQuery)(nil)
	_ gocmd.Querier[GetWebhookEventMessage, core.WebhookEventRecord]     = (*GetWebhookEventQuery)(nil)
)
