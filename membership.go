// Package membership re-exports the core lifecycle engine so downstream
// callers can depend on the module root without importing core directly.
package membership

import "github.com/goliatone/go-membership/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type Member = core.Member
type MemberStatus = core.MemberStatus
type MemberPatch = core.MemberPatch
type TenantFilter = core.TenantFilter
type JobExecutionRecord = core.JobExecutionRecord
type WebhookEventRecord = core.WebhookEventRecord

type MemberStore = core.MemberStore
type JobExecutionStore = core.JobExecutionStore
type WebhookEventStore = core.WebhookEventStore
type StoreProvider = core.StoreProvider
type SubscriptionProviderClient = core.SubscriptionProviderClient
type OperatorNotifier = core.OperatorNotifier
type AlertDebouncer = core.AlertDebouncer
type JobLocker = core.JobLocker
type JobEnqueuer = core.JobEnqueuer

type EnrollTrialRequest = core.EnrollTrialRequest
type GetMemberRequest = core.GetMemberRequest
type ActivateMemberRequest = core.ActivateMemberRequest
type RenewMemberRequest = core.RenewMemberRequest
type MarkDelinquentRequest = core.MarkDelinquentRequest
type RemoveMemberRequest = core.RemoveMemberRequest
type ReactivateMemberRequest = core.ReactivateMemberRequest

const (
	MemberStatusTrial      = core.MemberStatusTrial
	MemberStatusActive     = core.MemberStatusActive
	MemberStatusDelinquent = core.MemberStatusDelinquent
	MemberStatusRemoved    = core.MemberStatusRemoved
)

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithMemberStore       = core.WithMemberStore
	WithJobExecutionStore = core.WithJobExecutionStore
	WithWebhookEventStore = core.WithWebhookEventStore
	WithProviderClient    = core.WithProviderClient
	WithOperatorNotifier  = core.WithOperatorNotifier
	WithAlertDebouncer    = core.WithAlertDebouncer
	WithJobLocker         = core.WithJobLocker
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

// NewServiceWithStores applies every store a provider exposes before the
// remaining options, so explicit store options still win.
func NewServiceWithStores(cfg Config, stores StoreProvider, opts ...Option) (*Service, error) {
	combined := make([]Option, 0, len(opts)+3)
	if stores != nil {
		combined = append(combined,
			core.WithMemberStore(stores.MemberStore()),
			core.WithJobExecutionStore(stores.JobExecutionStore()),
			core.WithWebhookEventStore(stores.WebhookEventStore()),
		)
	}
	combined = append(combined, opts...)
	return core.NewService(cfg, combined...)
}
