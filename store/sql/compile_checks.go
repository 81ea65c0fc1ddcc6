package sqlstore

import "github.com/goliatone/go-membership/core"

var (
	_ core.MemberStore       = (*MemberStore)(nil)
	_ core.MemberStore       = (*CachedMemberStore)(nil)
	_ core.JobExecutionStore = (*JobExecutionStore)(nil)
	_ core.WebhookEventStore = (*WebhookEventStore)(nil)
	_ core.StoreProvider     = (*RepositoryFactory)(nil)
)
