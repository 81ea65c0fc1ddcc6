package core

import (
	"context"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service exposes the StateMachine-guarded member operations. Jobs, webhook
// handlers, and operator commands all mutate members exclusively through it;
// nothing writes status directly.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	memberStore     MemberStore
	jobExecutions   JobExecutionStore
	webhookEvents   WebhookEventStore
	providerClient  SubscriptionProviderClient
	notifier        OperatorNotifier
	debouncer       AlertDebouncer
	jobLock         JobLocker
}

type ServiceDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorFactory    ErrorFactory
	ErrorMapper     ErrorMapper
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	MemberStore     MemberStore
	JobExecutions   JobExecutionStore
	WebhookEvents   WebhookEventStore
	ProviderClient  SubscriptionProviderClient
	Notifier        OperatorNotifier
	Debouncer       AlertDebouncer
	JobLock         JobLocker
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("membership", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("membership"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.debouncer == nil {
		builder.debouncer = NewMemoryAlertDebouncer(0)
	}
	if builder.jobLock == nil {
		builder.jobLock = NewMemoryJobLock()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, fmt.Errorf("core: load config: %w", err)
	}
	resolved, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, fmt.Errorf("core: resolve config: %w", err)
	}

	return &Service{
		config:          resolved,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorFactory:    builder.errorFactory,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		memberStore:     builder.memberStore,
		jobExecutions:   builder.jobExecutions,
		webhookEvents:   builder.webhookEvents,
		providerClient:  builder.providerClient,
		notifier:        builder.notifier,
		debouncer:       builder.debouncer,
		jobLock:         builder.jobLock,
	}, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		MetricsRecorder: s.metricsRecorder,
		ErrorFactory:    s.errorFactory,
		ErrorMapper:     s.errorMapper,
		ConfigProvider:  s.configProvider,
		OptionsResolver: s.optionsResolver,
		MemberStore:     s.memberStore,
		JobExecutions:   s.jobExecutions,
		WebhookEvents:   s.webhookEvents,
		ProviderClient:  s.providerClient,
		Notifier:        s.notifier,
		Debouncer:       s.debouncer,
		JobLock:         s.jobLock,
	}
}

// resolveTenant implements the lookup scoping contract: nil means "use the
// configured default tenant" (global when none is configured), while a
// pointer to the empty string explicitly disables filtering.
func (s *Service) resolveTenant(tenant *string) TenantFilter {
	if tenant != nil {
		if strings.TrimSpace(*tenant) == "" {
			return TenantFilter{}
		}
		trimmed := strings.TrimSpace(*tenant)
		return TenantFilter{Tenant: &trimmed}
	}
	if s == nil {
		return TenantFilter{}
	}
	if configured := strings.TrimSpace(s.config.DefaultTenant); configured != "" {
		return TenantFilter{Tenant: &configured}
	}
	return TenantFilter{}
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
