package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-membership/core"
	"github.com/goliatone/go-membership/reconcile"
)

type stubReconciler struct {
	report  reconcile.Report
	err     error
	filters []core.TenantFilter
}

func (s *stubReconciler) Run(_ context.Context, filter core.TenantFilter) (reconcile.Report, error) {
	s.filters = append(s.filters, filter)
	return s.report, s.err
}

func newTestRunner(ledger *memoryLedger, reconciler Reconciler) *Runner {
	executions := NewExecutionLogger(ledger, &stubNotifier{}, core.NewMemoryAlertDebouncer(0), time.Hour, nil)
	kick := NewKickExpiredJob(stubExpiringLister{}, &stubRemover{}, core.NewMemoryJobLock(), 72*time.Hour, nil)
	reminders := NewRenewalRemindersJob(stubRenewingLister{}, &stubNotifier{}, core.NewMemoryAlertDebouncer(0), core.NewMemoryJobLock(), 72*time.Hour, nil)
	return NewRunner(executions, kick, reminders, reconciler, nil)
}

func TestDispatchReconcile(t *testing.T) {
	ledger := newMemoryLedger()
	reconciler := &stubReconciler{report: reconcile.Report{Total: 4, Synced: 4}}
	runner := newTestRunner(ledger, reconciler)

	err := runner.Dispatch(context.Background(), &core.JobExecutionMessage{
		JobID:      JobReconcile,
		Parameters: map[string]any{"tenant": "acme"},
	})
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}

	if len(reconciler.filters) != 1 {
		t.Fatalf("expected 1 reconciler run, got %d", len(reconciler.filters))
	}
	filter := reconciler.filters[0]
	if filter.Tenant == nil || *filter.Tenant != "acme" {
		t.Fatalf("tenant filter = %+v, want acme", filter)
	}

	records := ledger.byName(JobReconcile)
	if len(records) != 1 {
		t.Fatalf("expected 1 ledger record, got %d", len(records))
	}
	if records[0].Status != core.JobExecutionStatusSuccess {
		t.Fatalf("status = %s", records[0].Status)
	}
	if records[0].Result["synced"] != 4 {
		t.Fatalf("recorded counts = %v", records[0].Result)
	}
}

func TestDispatchKickExpiredAndReminders(t *testing.T) {
	ledger := newMemoryLedger()
	runner := newTestRunner(ledger, &stubReconciler{})

	if err := runner.Dispatch(context.Background(), &core.JobExecutionMessage{JobID: JobKickExpired}); err != nil {
		t.Fatalf("kick dispatch returned error: %v", err)
	}
	if err := runner.Dispatch(context.Background(), &core.JobExecutionMessage{JobID: JobRenewalReminders}); err != nil {
		t.Fatalf("reminders dispatch returned error: %v", err)
	}

	if len(ledger.byName(JobKickExpired)) != 1 {
		t.Fatal("expected kick run in the ledger")
	}
	if len(ledger.byName(JobRenewalReminders)) != 1 {
		t.Fatal("expected reminders run in the ledger")
	}
}

func TestDispatchPropagatesJobError(t *testing.T) {
	ledger := newMemoryLedger()
	jobErr := errors.New("reconcile blew up")
	runner := newTestRunner(ledger, &stubReconciler{err: jobErr})

	err := runner.Dispatch(context.Background(), &core.JobExecutionMessage{JobID: JobReconcile})
	if !errors.Is(err, jobErr) {
		t.Fatalf("expected job error to propagate, got %v", err)
	}
	records := ledger.byName(JobReconcile)
	if len(records) != 1 || records[0].Status != core.JobExecutionStatusFailed {
		t.Fatalf("expected failed ledger record, got %+v", records)
	}
}

func TestDispatchUnknownJob(t *testing.T) {
	runner := newTestRunner(newMemoryLedger(), &stubReconciler{})
	if err := runner.Dispatch(context.Background(), &core.JobExecutionMessage{JobID: "membership.bogus"}); err == nil {
		t.Fatal("expected error for unknown job id")
	}
	if err := runner.Dispatch(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil message")
	}
}
