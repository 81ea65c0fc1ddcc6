package core

import (
	"fmt"
	"strings"
	"time"
)

type AlertConfig struct {
	// JobFailureWindow debounces recurring job-failure alerts; jobs recur on
	// a fixed schedule so one alert per window is enough.
	JobFailureWindow time.Duration `koanf:"job_failure_window" mapstructure:"job_failure_window"`
	// WebhookFailureWindow debounces webhook-failure alerts; redeliveries can
	// arrive rapidly and would otherwise flood the operator.
	WebhookFailureWindow time.Duration `koanf:"webhook_failure_window" mapstructure:"webhook_failure_window"`
}

type LifecycleConfig struct {
	TrialPeriod time.Duration `koanf:"trial_period" mapstructure:"trial_period"`
	// GracePeriod defers removal after a member becomes delinquent to allow
	// payment recovery.
	GracePeriod    time.Duration `koanf:"grace_period" mapstructure:"grace_period"`
	ReminderWindow time.Duration `koanf:"reminder_window" mapstructure:"reminder_window"`
}

type WebhookConfig struct {
	// MaxAttempts approximates the provider's redelivery window; events that
	// keep failing past it need human intervention.
	MaxAttempts int `koanf:"max_attempts" mapstructure:"max_attempts"`
	// SigningSecret authenticates inbound deliveries. It may be stored as a
	// secrets envelope and resolved with a cipher at wiring time.
	SigningSecret string `koanf:"signing_secret" mapstructure:"signing_secret"`
}

type Config struct {
	ServiceName string `koanf:"service_name" mapstructure:"service_name"`
	// DefaultTenant, when set, scopes every read/write that does not
	// explicitly disable tenant filtering.
	DefaultTenant string          `koanf:"default_tenant" mapstructure:"default_tenant"`
	Lifecycle     LifecycleConfig `koanf:"lifecycle" mapstructure:"lifecycle"`
	Alerts        AlertConfig     `koanf:"alerts" mapstructure:"alerts"`
	Webhooks      WebhookConfig   `koanf:"webhooks" mapstructure:"webhooks"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "membership",
		Lifecycle: LifecycleConfig{
			TrialPeriod:    7 * 24 * time.Hour,
			GracePeriod:    3 * 24 * time.Hour,
			ReminderWindow: 3 * 24 * time.Hour,
		},
		Alerts: AlertConfig{
			JobFailureWindow:     60 * time.Minute,
			WebhookFailureWindow: 5 * time.Minute,
		},
		Webhooks: WebhookConfig{
			MaxAttempts: 8,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Lifecycle.TrialPeriod < 0 {
		return fmt.Errorf("core: lifecycle.trial_period must not be negative")
	}
	if c.Lifecycle.GracePeriod < 0 {
		return fmt.Errorf("core: lifecycle.grace_period must not be negative")
	}
	if c.Webhooks.MaxAttempts < 1 {
		return fmt.Errorf("core: webhooks.max_attempts must be at least 1")
	}
	return nil
}
