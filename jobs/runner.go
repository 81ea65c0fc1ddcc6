package jobs

import (
	"context"
	"fmt"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-membership/core"
	"github.com/goliatone/go-membership/reconcile"
)

// Reconciler is implemented by reconcile.Engine.
type Reconciler interface {
	Run(ctx context.Context, filter core.TenantFilter) (reconcile.Report, error)
}

// Runner dispatches queue deliveries to the scheduled job bodies. Every body
// runs under the execution ledger wrapper so failures are recorded and
// alerted uniformly.
type Runner struct {
	Executions *ExecutionLogger
	Kick       *KickExpiredJob
	Reminders  *RenewalRemindersJob
	Reconciler Reconciler
	Logger     glog.Logger
}

func NewRunner(
	executions *ExecutionLogger,
	kick *KickExpiredJob,
	reminders *RenewalRemindersJob,
	reconciler Reconciler,
	logger glog.Logger,
) *Runner {
	return &Runner{
		Executions: executions,
		Kick:       kick,
		Reminders:  reminders,
		Reconciler: reconciler,
		Logger:     glog.Ensure(logger),
	}
}

// Dispatch runs the job named by the message. The error return is the job
// body's error, re-propagated after ledger recording so the queue can retry
// or dead-letter.
func (r *Runner) Dispatch(ctx context.Context, msg *core.JobExecutionMessage) error {
	if r == nil {
		return fmt.Errorf("jobs: runner is not configured")
	}
	if msg == nil || strings.TrimSpace(msg.JobID) == "" {
		return fmt.Errorf("jobs: job id is required")
	}

	filter := tenantFilterFromParameters(msg.Parameters)

	var body func(ctx context.Context) (map[string]any, error)
	switch msg.JobID {
	case JobKickExpired:
		if r.Kick == nil {
			return fmt.Errorf("jobs: kick expired job is not configured")
		}
		body = func(ctx context.Context) (map[string]any, error) {
			result, err := r.Kick.Run(ctx, filter)
			return result.Map(), err
		}
	case JobRenewalReminders:
		if r.Reminders == nil {
			return fmt.Errorf("jobs: renewal reminders job is not configured")
		}
		body = func(ctx context.Context) (map[string]any, error) {
			result, err := r.Reminders.Run(ctx, filter)
			return result.Map(), err
		}
	case JobReconcile:
		if r.Reconciler == nil {
			return fmt.Errorf("jobs: reconciler is not configured")
		}
		body = func(ctx context.Context) (map[string]any, error) {
			report, err := r.Reconciler.Run(ctx, filter)
			return report.Counts(), err
		}
	default:
		return fmt.Errorf("jobs: unknown job id %q", msg.JobID)
	}

	if r.Executions == nil {
		_, err := body(ctx)
		return err
	}
	_, err := r.Executions.Wrap(ctx, msg.JobID, body)
	return err
}

func tenantFilterFromParameters(parameters map[string]any) core.TenantFilter {
	raw, ok := parameters["tenant"]
	if !ok {
		return core.TenantFilter{}
	}
	tenant, ok := raw.(string)
	if !ok {
		return core.TenantFilter{}
	}
	tenant = strings.TrimSpace(tenant)
	if tenant == "" {
		return core.TenantFilter{}
	}
	return core.TenantFilter{Tenant: &tenant}
}
