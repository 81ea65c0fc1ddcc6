// Package jobs holds the scheduled entry points (kick expired, renewal
// reminders, reconciliation) and the execution-ledger wrapper they all run
// under.
package jobs

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-membership/core"
)

// Job ids used by the queue adapters and the execution ledger.
const (
	JobKickExpired      = "membership.kick_expired"
	JobRenewalReminders = "membership.renewal_reminders"
	JobReconcile        = "membership.reconcile"
)

const defaultJobFailureWindow = 60 * time.Minute

// ExecutionLogger wraps job bodies with ledger records and failure alerting.
// Ledger writes are best effort: a failing write degrades to a warning and
// the job keeps running.
type ExecutionLogger struct {
	Ledger      core.JobExecutionStore
	Notifier    core.OperatorNotifier
	Debouncer   core.AlertDebouncer
	AlertWindow time.Duration
	Logger      glog.Logger
}

func NewExecutionLogger(
	ledger core.JobExecutionStore,
	notifier core.OperatorNotifier,
	debouncer core.AlertDebouncer,
	alertWindow time.Duration,
	logger glog.Logger,
) *ExecutionLogger {
	if alertWindow <= 0 {
		alertWindow = defaultJobFailureWindow
	}
	return &ExecutionLogger{
		Ledger:      ledger,
		Notifier:    notifier,
		Debouncer:   debouncer,
		AlertWindow: alertWindow,
		Logger:      glog.Ensure(logger),
	}
}

// Wrap records one job run in the ledger. On success it finalizes the record
// with the job's result map; on failure it records the error message, sends a
// debounced job-failure alert, and re-propagates the error so the scheduler
// observes it.
func (l *ExecutionLogger) Wrap(
	ctx context.Context,
	jobName string,
	fn func(ctx context.Context) (map[string]any, error),
) (map[string]any, error) {
	if fn == nil {
		return nil, fmt.Errorf("jobs: job body is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	executionID := l.start(ctx, jobName)

	result, err := fn(ctx)
	if err != nil {
		l.finish(ctx, jobName, executionID, core.JobExecutionStatusFailed, nil, err.Error())
		l.alertFailure(ctx, jobName, err)
		return result, err
	}

	l.finish(ctx, jobName, executionID, core.JobExecutionStatusSuccess, result, "")
	return result, nil
}

// start returns an empty id when the ledger is unavailable; the job still
// runs.
func (l *ExecutionLogger) start(ctx context.Context, jobName string) string {
	if l == nil || l.Ledger == nil {
		return ""
	}
	record, err := l.Ledger.Start(ctx, jobName)
	if err != nil {
		l.logger().Warn("job execution ledger start failed",
			"job_name", jobName,
			"error", err.Error(),
		)
		return ""
	}
	return record.ID
}

func (l *ExecutionLogger) finish(
	ctx context.Context,
	jobName string,
	executionID string,
	status core.JobExecutionStatus,
	result map[string]any,
	errorMessage string,
) {
	if l == nil || l.Ledger == nil || executionID == "" {
		return
	}
	if _, err := l.Ledger.Finish(ctx, executionID, status, result, errorMessage); err != nil {
		l.logger().Warn("job execution ledger finish failed",
			"job_name", jobName,
			"execution_id", executionID,
			"error", err.Error(),
		)
	}
}

// alertFailure notifies the operator at most once per job per window. Jobs
// recur on a fixed schedule, so a persistent failure would otherwise alert on
// every tick.
func (l *ExecutionLogger) alertFailure(ctx context.Context, jobName string, jobErr error) {
	if l == nil || l.Notifier == nil {
		return
	}
	if l.Debouncer != nil {
		ok, err := l.Debouncer.CanSend(ctx, "job_failure:"+jobName, l.AlertWindow)
		if err != nil {
			l.logger().Warn("job failure debounce check failed", "job_name", jobName, "error", err.Error())
			return
		}
		if !ok {
			return
		}
	}
	message := fmt.Sprintf("Job %s failed: %v", jobName, jobErr)
	if err := l.Notifier.NotifyOperator(ctx, message); err != nil {
		l.logger().Warn("job failure alert delivery failed", "job_name", jobName, "error", err.Error())
	}
}

func (l *ExecutionLogger) logger() glog.Logger {
	if l != nil && l.Logger != nil {
		return l.Logger
	}
	return glog.Ensure(nil)
}
