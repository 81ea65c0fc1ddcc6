package adapters_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-membership/adapters/gocommand"
	"github.com/goliatone/go-membership/adapters/gojob"
	"github.com/goliatone/go-membership/adapters/gologger"
	membershipcommand "github.com/goliatone/go-membership/command"
	"github.com/goliatone/go-membership/core"
)

func TestRuntimeCompatibility_GoJobGoCommandGoLogger(t *testing.T) {
	ctx := context.Background()

	logger := &compatLogger{}
	provider := &compatProvider{logger: logger}

	_, _, jobProvider, jobLogger := gologger.ResolveForJob("membership", provider, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	enqueueProbe := &compatEnqueuer{}
	enqueueAdapter := gojob.NewEnqueuerAdapter(enqueueProbe)
	if err := enqueueAdapter.Enqueue(ctx, &core.JobExecutionMessage{
		JobID:          gojob.JobIDReconcile,
		Parameters:     map[string]any{"tenant": "acme"},
		IdempotencyKey: "idem_1",
		DedupPolicy:    "drop",
	}); err != nil {
		t.Fatalf("enqueue via gojob adapter: %v", err)
	}
	if enqueueProbe.last == nil || enqueueProbe.last.JobID != gojob.JobIDReconcile {
		t.Fatalf("expected go-job message mapping through enqueuer adapter")
	}

	queueRegistry := jobqueuecommand.NewRegistry()
	commandAdapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := commandAdapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := commandAdapter.RegisterCommand(command.CommandFunc[compatMessage](func(context.Context, compatMessage) error {
		return nil
	})); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := commandAdapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}
	if _, ok := queueRegistry.Get("membership.compat.command"); !ok {
		t.Fatalf("expected command resolver hook to mirror command into go-job queue registry")
	}
}

func TestRuntimeCompatibility_MembershipCommandDispatchThroughWrappers(t *testing.T) {
	svc := &compatMutatingService{}
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())

	delinquentSub, err := gocommand.RegisterAndSubscribe(adapter, membershipcommand.NewMarkDelinquentCommand(svc))
	if err != nil {
		t.Fatalf("register mark delinquent wrapper: %v", err)
	}
	defer delinquentSub.Unsubscribe()

	removeSub, err := gocommand.RegisterAndSubscribe(adapter, membershipcommand.NewRemoveMemberCommand(svc))
	if err != nil {
		t.Fatalf("register remove wrapper: %v", err)
	}
	defer removeSub.Unsubscribe()

	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize adapter: %v", err)
	}

	if err := gocommand.Dispatch(context.Background(), membershipcommand.MarkDelinquentMessage{
		Request: core.MarkDelinquentRequest{MemberID: "member_1", Reason: "payment_failed"},
	}); err != nil {
		t.Fatalf("dispatch mark delinquent: %v", err)
	}
	if svc.markDelinquentCalls != 1 || svc.lastDelinquentMemberID != "member_1" {
		t.Fatalf("expected mark delinquent wrapper invocation through dispatch")
	}

	if err := gocommand.Dispatch(context.Background(), membershipcommand.RemoveMemberMessage{
		Request: core.RemoveMemberRequest{MemberID: "member_1", Reason: "subscription_canceled"},
	}); err != nil {
		t.Fatalf("dispatch remove member: %v", err)
	}
	if svc.removeCalls != 1 || svc.lastRemoveReason != "subscription_canceled" {
		t.Fatalf("expected remove wrapper invocation through dispatch")
	}
}

type compatMessage struct{}

func (compatMessage) Type() string { return "membership.compat.command" }

type compatEnqueuer struct {
	last *job.ExecutionMessage
}

func (e *compatEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	e.last = msg
	return queue.EnqueueReceipt{DispatchID: "dispatch_compat", EnqueuedAt: time.Now().UTC()}, nil
}

type compatProvider struct {
	logger glog.Logger
}

func (p *compatProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type compatLogger struct{}

func (compatLogger) Trace(string, ...any)                    {}
func (compatLogger) Debug(string, ...any)                    {}
func (compatLogger) Info(string, ...any)                     {}
func (compatLogger) Warn(string, ...any)                     {}
func (compatLogger) Error(string, ...any)                    {}
func (compatLogger) Fatal(string, ...any)                    {}
func (compatLogger) WithContext(context.Context) glog.Logger { return compatLogger{} }

type compatMutatingService struct {
	markDelinquentCalls    int
	lastDelinquentMemberID string
	removeCalls            int
	lastRemoveReason       string
}

func (s *compatMutatingService) EnrollTrial(context.Context, core.EnrollTrialRequest) (core.Member, error) {
	return core.Member{}, nil
}

func (s *compatMutatingService) ActivateMember(context.Context, core.ActivateMemberRequest) (core.Member, error) {
	return core.Member{}, nil
}

func (s *compatMutatingService) RenewMember(context.Context, core.RenewMemberRequest) (core.Member, error) {
	return core.Member{}, nil
}

func (s *compatMutatingService) MarkDelinquent(_ context.Context, req core.MarkDelinquentRequest) (core.Member, error) {
	s.markDelinquentCalls++
	s.lastDelinquentMemberID = req.MemberID
	return core.Member{ID: req.MemberID, Status: core.MemberStatusDelinquent}, nil
}

func (s *compatMutatingService) RemoveMember(_ context.Context, req core.RemoveMemberRequest) (core.Member, error) {
	s.removeCalls++
	s.lastRemoveReason = req.Reason
	return core.Member{ID: req.MemberID, Status: core.MemberStatusRemoved}, nil
}

func (s *compatMutatingService) ReactivateMember(context.Context, core.ReactivateMemberRequest) (core.Member, error) {
	return core.Member{}, nil
}
