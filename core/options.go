package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type serviceBuilder struct {
	runtimeConfig   Config
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

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithMemberStore(store MemberStore) Option {
	return func(b *serviceBuilder) {
		b.memberStore = store
	}
}

func WithJobExecutionStore(store JobExecutionStore) Option {
	return func(b *serviceBuilder) {
		b.jobExecutions = store
	}
}

func WithWebhookEventStore(store WebhookEventStore) Option {
	return func(b *serviceBuilder) {
		b.webhookEvents = store
	}
}

func WithProviderClient(client SubscriptionProviderClient) Option {
	return func(b *serviceBuilder) {
		b.providerClient = client
	}
}

func WithOperatorNotifier(notifier OperatorNotifier) Option {
	return func(b *serviceBuilder) {
		b.notifier = notifier
	}
}

func WithAlertDebouncer(debouncer AlertDebouncer) Option {
	return func(b *serviceBuilder) {
		b.debouncer = debouncer
	}
}

func WithJobLocker(lock JobLocker) Option {
	return func(b *serviceBuilder) {
		b.jobLock = lock
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("membership", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return membershipErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || strings.TrimSpace(cfg.DefaultTenant) != "" {
		layer["default_tenant"] = cfg.DefaultTenant
	}

	lifecycle := map[string]any{}
	if includeZero || cfg.Lifecycle.TrialPeriod != 0 {
		lifecycle["trial_period"] = cfg.Lifecycle.TrialPeriod
	}
	if includeZero || cfg.Lifecycle.GracePeriod != 0 {
		lifecycle["grace_period"] = cfg.Lifecycle.GracePeriod
	}
	if includeZero || cfg.Lifecycle.ReminderWindow != 0 {
		lifecycle["reminder_window"] = cfg.Lifecycle.ReminderWindow
	}
	if len(lifecycle) > 0 {
		layer["lifecycle"] = lifecycle
	}

	alerts := map[string]any{}
	if includeZero || cfg.Alerts.JobFailureWindow != 0 {
		alerts["job_failure_window"] = cfg.Alerts.JobFailureWindow
	}
	if includeZero || cfg.Alerts.WebhookFailureWindow != 0 {
		alerts["webhook_failure_window"] = cfg.Alerts.WebhookFailureWindow
	}
	if len(alerts) > 0 {
		layer["alerts"] = alerts
	}

	webhooks := map[string]any{}
	if includeZero || cfg.Webhooks.MaxAttempts != 0 {
		webhooks["max_attempts"] = cfg.Webhooks.MaxAttempts
	}
	if len(webhooks) > 0 {
		layer["webhooks"] = webhooks
	}

	return layer
}
