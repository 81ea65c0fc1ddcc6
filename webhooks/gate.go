// Package webhooks processes provider payment events under at-least-once
// redelivery. The gate keys every event by its external id: the first
// successful handling stamps the record processed, and every later delivery
// of the same id is a no-op.
package webhooks

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-membership/core"
)

const (
	defaultWebhookAlertWindow = 5 * time.Minute
	defaultMaxAttempts        = 8
)

// Event is one inbound provider notification after transport decoding.
type Event struct {
	ExternalEventID string
	EventType       string
	Payload         map[string]any
}

// Result reports what the gate did with a delivery. Deduped deliveries were
// already processed by an earlier one and triggered no side effects.
type Result struct {
	Deduped bool
	Ignored bool
	Outcome map[string]any
}

// Handler executes the side effect for one event type. The returned outcome
// map is persisted on the event record for replay answers.
type Handler interface {
	Handle(ctx context.Context, event Event) (map[string]any, error)
}

type HandlerFunc func(ctx context.Context, event Event) (map[string]any, error)

func (f HandlerFunc) Handle(ctx context.Context, event Event) (map[string]any, error) {
	return f(ctx, event)
}

// Gate is the idempotency boundary for webhook processing.
type Gate struct {
	Events      core.WebhookEventStore
	Notifier    core.OperatorNotifier
	Debouncer   core.AlertDebouncer
	AlertWindow time.Duration
	// MaxAttempts approximates the provider's redelivery window; an event
	// still failing past it will never heal on its own.
	MaxAttempts int
	Logger      glog.Logger

	handlers map[string]Handler
}

func NewGate(events core.WebhookEventStore, options ...GateOption) *Gate {
	gate := &Gate{
		Events:      events,
		AlertWindow: defaultWebhookAlertWindow,
		MaxAttempts: defaultMaxAttempts,
		Logger:      glog.Ensure(nil),
		handlers:    map[string]Handler{},
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(gate)
	}
	return gate
}

type GateOption func(*Gate)

func WithNotifier(notifier core.OperatorNotifier) GateOption {
	return func(g *Gate) {
		g.Notifier = notifier
	}
}

func WithDebouncer(debouncer core.AlertDebouncer, window time.Duration) GateOption {
	return func(g *Gate) {
		g.Debouncer = debouncer
		if window > 0 {
			g.AlertWindow = window
		}
	}
}

func WithMaxAttempts(attempts int) GateOption {
	return func(g *Gate) {
		if attempts > 0 {
			g.MaxAttempts = attempts
		}
	}
}

func WithLogger(logger glog.Logger) GateOption {
	return func(g *Gate) {
		g.Logger = glog.Ensure(logger)
	}
}

func WithHandler(eventType string, handler Handler) GateOption {
	return func(g *Gate) {
		g.Register(eventType, handler)
	}
}

func (g *Gate) Register(eventType string, handler Handler) {
	if g == nil || handler == nil {
		return
	}
	eventType = strings.TrimSpace(strings.ToLower(eventType))
	if eventType == "" {
		return
	}
	if g.handlers == nil {
		g.handlers = map[string]Handler{}
	}
	g.handlers[eventType] = handler
}

// Process runs one delivery through the gate. Redeliveries of an already
// processed event return Deduped without invoking the handler; handler
// failures bump the attempt counter and re-propagate so the provider retries.
func (g *Gate) Process(ctx context.Context, event Event) (Result, error) {
	if g == nil || g.Events == nil {
		return Result{}, fmt.Errorf("webhooks: gate requires an event store")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	event.ExternalEventID = strings.TrimSpace(event.ExternalEventID)
	event.EventType = strings.TrimSpace(strings.ToLower(event.EventType))
	if event.ExternalEventID == "" {
		return Result{}, fmt.Errorf("webhooks: external event id is required for dedupe")
	}
	if event.EventType == "" {
		return Result{}, fmt.Errorf("webhooks: event type is required")
	}

	record, _, err := g.Events.FindOrCreate(ctx, event.ExternalEventID, event.EventType)
	if err != nil {
		return Result{}, fmt.Errorf("webhooks: claim event: %w", err)
	}
	if record.Processed() {
		g.logger().Info("webhook delivery deduped",
			"external_event_id", event.ExternalEventID,
			"event_type", event.EventType,
		)
		return Result{Deduped: true, Outcome: record.Outcome}, nil
	}

	handler, ok := g.handlers[event.EventType]
	if !ok {
		// Unknown event types are acknowledged and stamped processed so the
		// provider stops redelivering them.
		outcome := map[string]any{"ignored": true, "event_type": event.EventType}
		if _, markErr := g.Events.MarkProcessed(ctx, event.ExternalEventID, outcome); markErr != nil {
			return Result{}, fmt.Errorf("webhooks: mark ignored event: %w", markErr)
		}
		return Result{Ignored: true, Outcome: outcome}, nil
	}

	outcome, handleErr := handler.Handle(ctx, event)
	if handleErr != nil {
		failed, markErr := g.Events.MarkFailed(ctx, event.ExternalEventID, handleErr)
		if markErr != nil {
			g.logger().Warn("webhook failure bookkeeping failed",
				"external_event_id", event.ExternalEventID,
				"error", markErr.Error(),
			)
		} else if failed.Attempts > g.maxAttempts() {
			g.alertPersistentFailure(ctx, event, failed, handleErr)
		}
		return Result{}, handleErr
	}

	if _, markErr := g.Events.MarkProcessed(ctx, event.ExternalEventID, outcome); markErr != nil {
		// The side effect already happened; the next redelivery will dedupe
		// against the handler's own idempotency, but the record is stale.
		g.logger().Warn("webhook processed stamp failed",
			"external_event_id", event.ExternalEventID,
			"error", markErr.Error(),
		)
		return Result{}, fmt.Errorf("webhooks: mark processed: %w", markErr)
	}
	return Result{Outcome: outcome}, nil
}

// alertPersistentFailure fires once per event per window when redelivery has
// outlived the provider's retry horizon.
func (g *Gate) alertPersistentFailure(ctx context.Context, event Event, record core.WebhookEventRecord, cause error) {
	if g.Notifier == nil {
		return
	}
	if g.Debouncer != nil {
		ok, err := g.Debouncer.CanSend(ctx, "webhook_failure:"+event.ExternalEventID, g.AlertWindow)
		if err != nil {
			g.logger().Warn("webhook alert debounce check failed",
				"external_event_id", event.ExternalEventID,
				"error", err.Error(),
			)
			return
		}
		if !ok {
			return
		}
	}
	message := fmt.Sprintf("Webhook event %s (%s) keeps failing after %d attempts: %v",
		event.ExternalEventID, event.EventType, record.Attempts, cause)
	if err := g.Notifier.NotifyOperator(ctx, message); err != nil {
		g.logger().Warn("webhook failure alert delivery failed",
			"external_event_id", event.ExternalEventID,
			"error", err.Error(),
		)
	}
}

func (g *Gate) maxAttempts() int {
	if g != nil && g.MaxAttempts > 0 {
		return g.MaxAttempts
	}
	return defaultMaxAttempts
}

func (g *Gate) logger() glog.Logger {
	if g != nil && g.Logger != nil {
		return g.Logger
	}
	return glog.Ensure(nil)
}
