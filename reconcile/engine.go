// Package reconcile detects drift between locally recorded member status and
// the payment provider's authoritative subscription state.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-membership/core"
)

const JobName = "reconcile"

// One window for both reconcile alert classes; a run repeating the same
// finding inside it stays quiet.
const defaultReconcileAlertWindow = time.Hour

const (
	alertKeyDesync          = "reconcile_desync"
	alertKeyCriticalFailure = "reconcile_critical_failure"
)

// Outcome classifies one member lookup.
type Outcome string

const (
	OutcomeSynced   Outcome = "synced"
	OutcomeDesynced Outcome = "desynced"
	OutcomeFailed   Outcome = "failed"
)

const (
	ActionRemoveMember  = "remove member"
	ActionVerifyPayment = "verify payment"
)

// Finding is the per-member result of one reconciliation pass.
type Finding struct {
	MemberID               string
	ExternalChatID         string
	ExternalSubscriptionID string
	ExternalStatus         string
	Outcome                Outcome
	SuggestedAction        string
	ErrorCode              string
}

// Report aggregates one run. Skipped is the normal single-flight outcome
// when another run already holds the lock.
type Report struct {
	Skipped    bool
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Synced     int
	Desynced   int
	Failed     int
	Findings   []Finding
}

func (r Report) Counts() map[string]any {
	return map[string]any{
		"total":    r.Total,
		"synced":   r.Synced,
		"desynced": r.Desynced,
		"failed":   r.Failed,
		"skipped":  r.Skipped,
	}
}

// MemberLister is the slice of the member store the engine needs.
type MemberLister interface {
	ListByStatus(ctx context.Context, status core.MemberStatus, filter core.TenantFilter) ([]core.Member, error)
}

// Engine compares each active, subscription-bound member against the
// provider. Members are processed sequentially: correctness over speed, and
// one stuck run cannot stampede the provider API.
type Engine struct {
	Members     MemberLister
	Provider    core.SubscriptionProviderClient
	Notifier    core.OperatorNotifier
	Debouncer   core.AlertDebouncer
	AlertWindow time.Duration
	Lock        core.JobLocker
	Logger      glog.Logger
	Now         func() time.Time
}

func NewEngine(
	members MemberLister,
	provider core.SubscriptionProviderClient,
	notifier core.OperatorNotifier,
	debouncer core.AlertDebouncer,
	lock core.JobLocker,
	logger glog.Logger,
) *Engine {
	return &Engine{
		Members:     members,
		Provider:    provider,
		Notifier:    notifier,
		Debouncer:   debouncer,
		AlertWindow: defaultReconcileAlertWindow,
		Lock:        lock,
		Logger:      glog.Ensure(logger),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Run executes one reconciliation pass for the given tenant scope. A held
// lock returns Report{Skipped: true} and no error.
func (e *Engine) Run(ctx context.Context, filter core.TenantFilter) (Report, error) {
	if e == nil || e.Members == nil || e.Provider == nil {
		return Report{}, fmt.Errorf("reconcile: engine requires member store and provider client")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if e.Lock != nil {
		if !e.Lock.Acquire(JobName) {
			e.logger().Info("reconciliation skipped, run already in progress")
			return Report{Skipped: true}, nil
		}
		defer e.Lock.Release(JobName)
	}

	report := Report{StartedAt: e.now()}

	members, err := e.Members.ListByStatus(ctx, core.MemberStatusActive, filter)
	if err != nil {
		return Report{}, fmt.Errorf("reconcile: list active members: %w", err)
	}

	errorCounts := map[string]int{}
	errorOrder := []string{}

	for _, member := range members {
		if !member.HasExternalSubscription() {
			continue
		}
		if ctx.Err() != nil {
			report.FinishedAt = e.now()
			return report, fmt.Errorf("reconcile: run aborted: %w", ctx.Err())
		}

		report.Total++
		finding := e.checkMember(ctx, member)
		report.Findings = append(report.Findings, finding)

		switch finding.Outcome {
		case OutcomeSynced:
			report.Synced++
		case OutcomeDesynced:
			report.Desynced++
		case OutcomeFailed:
			report.Failed++
			if _, seen := errorCounts[finding.ErrorCode]; !seen {
				errorOrder = append(errorOrder, finding.ErrorCode)
			}
			errorCounts[finding.ErrorCode]++
		}
	}

	report.FinishedAt = e.now()

	e.logger().Info("reconciliation run finished",
		"total", report.Total,
		"synced", report.Synced,
		"desynced", report.Desynced,
		"failed", report.Failed,
	)

	e.alertDesyncs(ctx, report)
	e.alertCriticalFailureRate(ctx, report, errorCounts, errorOrder)

	return report, nil
}

func (e *Engine) checkMember(ctx context.Context, member core.Member) Finding {
	finding := Finding{
		MemberID:               member.ID,
		ExternalChatID:         member.ExternalChatID,
		ExternalSubscriptionID: member.ExternalSubscriptionID,
	}

	subscription, err := e.Provider.GetSubscription(ctx, member.ExternalSubscriptionID)
	if err != nil {
		if core.IsSubscriptionNotFound(err) {
			// The subscription vanished on the provider side: that is drift,
			// not an API failure.
			finding.Outcome = OutcomeDesynced
			finding.ExternalStatus = "not_found"
			finding.SuggestedAction = ActionRemoveMember
			return finding
		}
		finding.Outcome = OutcomeFailed
		finding.ErrorCode = core.ProviderErrorCode(err)
		e.logger().Warn("reconciliation lookup failed",
			"member_id", member.ID,
			"subscription_id", member.ExternalSubscriptionID,
			"error_code", finding.ErrorCode,
			"error", err.Error(),
		)
		return finding
	}

	status := strings.TrimSpace(strings.ToLower(subscription.Status))
	finding.ExternalStatus = status

	switch status {
	case "active":
		finding.Outcome = OutcomeSynced
	case "canceled", "cancelled":
		finding.Outcome = OutcomeDesynced
		finding.SuggestedAction = ActionRemoveMember
	default:
		// expired, defaulted, suspended, and anything else the provider may
		// grow: the member is paying-status locally but not active remotely.
		finding.Outcome = OutcomeDesynced
		finding.SuggestedAction = ActionVerifyPayment
	}
	return finding
}

// alertDesyncs sends one batched alert per run naming every desynced member.
func (e *Engine) alertDesyncs(ctx context.Context, report Report) {
	if e.Notifier == nil || report.Desynced == 0 {
		return
	}
	if !e.canAlert(ctx, alertKeyDesync) {
		return
	}
	message := buildDesyncAlert(report)
	if err := e.Notifier.NotifyOperator(ctx, message); err != nil {
		e.logger().Warn("desync alert delivery failed", "error", err.Error())
	}
}

// alertCriticalFailureRate fires when strictly more than half of the lookups
// failed, signaling a provider outage rather than per-member drift.
func (e *Engine) alertCriticalFailureRate(ctx context.Context, report Report, counts map[string]int, order []string) {
	if e.Notifier == nil || report.Total == 0 {
		return
	}
	if report.Failed*2 <= report.Total {
		return
	}
	if !e.canAlert(ctx, alertKeyCriticalFailure) {
		return
	}

	message := buildCriticalFailureAlert(report, topErrorCodes(counts, order, 3))
	if err := e.Notifier.NotifyOperator(ctx, message); err != nil {
		e.logger().Warn("critical failure alert delivery failed", "error", err.Error())
	}
}

// canAlert consults the debouncer per alert class. A broken debouncer
// suppresses the alert rather than flooding the operator.
func (e *Engine) canAlert(ctx context.Context, key string) bool {
	if e.Debouncer == nil {
		return true
	}
	ok, err := e.Debouncer.CanSend(ctx, key, e.alertWindow())
	if err != nil {
		e.logger().Warn("reconcile alert debounce check failed",
			"alert_key", key,
			"error", err.Error(),
		)
		return false
	}
	return ok
}

func (e *Engine) alertWindow() time.Duration {
	if e != nil && e.AlertWindow > 0 {
		return e.AlertWindow
	}
	return defaultReconcileAlertWindow
}

func (e *Engine) now() time.Time {
	if e != nil && e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Engine) logger() glog.Logger {
	if e != nil && e.Logger != nil {
		return e.Logger
	}
	return glog.Ensure(nil)
}
