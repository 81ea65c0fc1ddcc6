package membership

import (
	"fmt"

	membershipcommand "github.com/goliatone/go-membership/command"
	"github.com/goliatone/go-membership/core"
	membershipquery "github.com/goliatone/go-membership/query"
)

// CommandQueryService is the surface the facade wraps. *core.Service
// satisfies it.
type CommandQueryService interface {
	membershipcommand.MutatingService
	membershipquery.MemberReader
}

type Commands struct {
	EnrollTrial      *membershipcommand.EnrollTrialCommand
	ActivateMember   *membershipcommand.ActivateMemberCommand
	RenewMember      *membershipcommand.RenewMemberCommand
	MarkDelinquent   *membershipcommand.MarkDelinquentCommand
	RemoveMember     *membershipcommand.RemoveMemberCommand
	ReactivateMember *membershipcommand.ReactivateMemberCommand
	ProcessWebhook   *membershipcommand.ProcessWebhookCommand
	EnqueueJob       *membershipcommand.EnqueueJobCommand
}

type Queries struct {
	GetMember           *membershipquery.GetMemberQuery
	ListMembersByStatus *membershipquery.ListMembersByStatusQuery
	ListJobExecutions   *membershipquery.ListJobExecutionsQuery
	GetWebhookEvent     *membershipquery.GetWebhookEventQuery
}

// Facade bundles the command and query sides over one service so callers
// wire the dispatcher once.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	stores             core.StoreProvider
	webhookProcessor   membershipcommand.WebhookProcessor
	jobEnqueuer        core.JobEnqueuer
	memberLister       membershipquery.MemberLister
	jobExecutionReader membershipquery.JobExecutionReader
	webhookEventReader membershipquery.WebhookEventReader
}

// WithStores resolves the read-side queries from a store provider, usually
// the sqlstore repository factory.
func WithStores(stores core.StoreProvider) FacadeOption {
	return func(options *facadeOptions) {
		options.stores = stores
	}
}

func WithWebhookProcessor(processor membershipcommand.WebhookProcessor) FacadeOption {
	return func(options *facadeOptions) {
		options.webhookProcessor = processor
	}
}

func WithJobEnqueuer(enqueuer core.JobEnqueuer) FacadeOption {
	return func(options *facadeOptions) {
		options.jobEnqueuer = enqueuer
	}
}

func WithMemberLister(lister membershipquery.MemberLister) FacadeOption {
	return func(options *facadeOptions) {
		options.memberLister = lister
	}
}

func WithJobExecutionReader(reader membershipquery.JobExecutionReader) FacadeOption {
	return func(options *facadeOptions) {
		options.jobExecutionReader = reader
	}
}

func WithWebhookEventReader(reader membershipquery.WebhookEventReader) FacadeOption {
	return func(options *facadeOptions) {
		options.webhookEventReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("membership: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	cfg.resolveReaders(service)

	facade := &Facade{service: service}
	facade.commands = Commands{
		EnrollTrial:      membershipcommand.NewEnrollTrialCommand(service),
		ActivateMember:   membershipcommand.NewActivateMemberCommand(service),
		RenewMember:      membershipcommand.NewRenewMemberCommand(service),
		MarkDelinquent:   membershipcommand.NewMarkDelinquentCommand(service),
		RemoveMember:     membershipcommand.NewRemoveMemberCommand(service),
		ReactivateMember: membershipcommand.NewReactivateMemberCommand(service),
		ProcessWebhook:   membershipcommand.NewProcessWebhookCommand(cfg.webhookProcessor),
		EnqueueJob:       membershipcommand.NewEnqueueJobCommand(cfg.jobEnqueuer),
	}
	facade.queries = Queries{
		GetMember:           membershipquery.NewGetMemberQuery(service),
		ListMembersByStatus: membershipquery.NewListMembersByStatusQuery(cfg.memberLister),
		ListJobExecutions:   membershipquery.NewListJobExecutionsQuery(cfg.jobExecutionReader),
		GetWebhookEvent:     membershipquery.NewGetWebhookEventQuery(cfg.webhookEventReader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveReaders fills missing read dependencies, preferring explicit
// options, then the store provider, then the service's own wiring.
func (o *facadeOptions) resolveReaders(service CommandQueryService) {
	if o.stores != nil {
		if o.memberLister == nil {
			if store := o.stores.MemberStore(); store != nil {
				o.memberLister = store
			}
		}
		if o.jobExecutionReader == nil {
			if store := o.stores.JobExecutionStore(); store != nil {
				o.jobExecutionReader = store
			}
		}
		if o.webhookEventReader == nil {
			if store := o.stores.WebhookEventStore(); store != nil {
				o.webhookEventReader = store
			}
		}
	}
	if o.memberLister != nil && o.jobExecutionReader != nil && o.webhookEventReader != nil {
		return
	}

	provider, ok := service.(interface {
		Dependencies() core.ServiceDependencies
	})
	if !ok {
		return
	}
	deps := provider.Dependencies()
	if o.memberLister == nil && deps.MemberStore != nil {
		o.memberLister = deps.MemberStore
	}
	if o.jobExecutionReader == nil && deps.JobExecutions != nil {
		o.jobExecutionReader = deps.JobExecutions
	}
	if o.webhookEventReader == nil && deps.WebhookEvents != nil {
		o.webhookEventReader = deps.WebhookEvents
	}
}
