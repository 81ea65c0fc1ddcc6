package membership

import (
	"context"
	"testing"

	membershipcommand "github.com/goliatone/go-membership/command"
	"github.com/goliatone/go-membership/core"
	membershipquery "github.com/goliatone/go-membership/query"
)

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	svc := &stubFacadeService{}

	facade, err := NewFacade(svc,
		WithJobExecutionReader(stubFacadeJobExecutionReader{}),
		WithWebhookEventReader(stubFacadeWebhookEventReader{}),
	)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.EnrollTrial == nil || commands.ActivateMember == nil || commands.RemoveMember == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.GetMember == nil || queries.ListJobExecutions == nil || queries.GetWebhookEvent == nil {
		t.Fatalf("expected query handlers to be wired")
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	svc := &stubFacadeService{}

	facade, err := NewFacade(svc,
		WithJobExecutionReader(stubFacadeJobExecutionReader{}),
		WithWebhookEventReader(stubFacadeWebhookEventReader{}),
	)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	if err := facade.Commands().MarkDelinquent.Execute(context.Background(), membershipcommand.MarkDelinquentMessage{
		Request: core.MarkDelinquentRequest{MemberID: "member_1", Reason: "payment_failed"},
	}); err != nil {
		t.Fatalf("execute mark delinquent command: %v", err)
	}
	if svc.lastDelinquentMemberID != "member_1" || svc.lastDelinquentReason != "payment_failed" {
		t.Fatalf("unexpected mark delinquent delegation payload")
	}

	member, err := facade.Queries().GetMember.Query(context.Background(), membershipquery.GetMemberMessage{
		Request: core.GetMemberRequest{MemberID: "member_1"},
	})
	if err != nil {
		t.Fatalf("query get member: %v", err)
	}
	if member.ID != "member_1" || member.Status != core.MemberStatusActive {
		t.Fatalf("unexpected get member result: %#v", member)
	}

	records, err := facade.Queries().ListJobExecutions.Query(context.Background(), membershipquery.ListJobExecutionsMessage{
		JobName: "membership.reconcile",
		Limit:   1,
	})
	if err != nil {
		t.Fatalf("query list job executions: %v", err)
	}
	if len(records) != 1 || records[0].ID != "exec_1" {
		t.Fatalf("unexpected job execution result: %#v", records)
	}
}

func TestNewFacade_ResolvesReadersFromStoreProvider(t *testing.T) {
	svc := &stubFacadeService{}

	facade, err := NewFacade(svc, WithStores(stubFacadeStoreProvider{}))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	record, err := facade.Queries().GetWebhookEvent.Query(context.Background(), membershipquery.GetWebhookEventMessage{
		ExternalEventID: "evt_1",
	})
	if err != nil {
		t.Fatalf("query get webhook event: %v", err)
	}
	if record.ExternalEventID != "evt_1" {
		t.Fatalf("unexpected webhook event result: %#v", record)
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	facade, err := NewFacade(nil)
	if err == nil {
		t.Fatalf("expected nil service error")
	}
	if facade != nil {
		t.Fatalf("expected nil facade on error")
	}
}

type stubFacadeService struct {
	lastDelinquentMemberID string
	lastDelinquentReason   string
}

func (s *stubFacadeService) EnrollTrial(context.Context, core.EnrollTrialRequest) (core.Member, error) {
	return core.Member{ID: "member_1", Status: core.MemberStatusTrial}, nil
}

func (s *stubFacadeService) ActivateMember(context.Context, core.ActivateMemberRequest) (core.Member, error) {
	return core.Member{ID: "member_1", Status: core.MemberStatusActive}, nil
}

func (s *stubFacadeService) RenewMember(context.Context, core.RenewMemberRequest) (core.Member, error) {
	return core.Member{ID: "member_1", Status: core.MemberStatusActive}, nil
}

func (s *stubFacadeService) MarkDelinquent(_ context.Context, req core.MarkDelinquentRequest) (core.Member, error) {
	s.lastDelinquentMemberID = req.MemberID
	s.lastDelinquentReason = req.Reason
	return core.Member{ID: req.MemberID, Status: core.MemberStatusDelinquent}, nil
}

func (s *stubFacadeService) RemoveMember(context.Context, core.RemoveMemberRequest) (core.Member, error) {
	return core.Member{ID: "member_1", Status: core.MemberStatusRemoved}, nil
}

func (s *stubFacadeService) ReactivateMember(context.Context, core.ReactivateMemberRequest) (core.Member, error) {
	return core.Member{ID: "member_1", Status: core.MemberStatusActive}, nil
}

func (s *stubFacadeService) GetMember(context.Context, core.GetMemberRequest) (core.Member, error) {
	return core.Member{ID: "member_1", Status: core.MemberStatusActive}, nil
}

type stubFacadeJobExecutionReader struct{}

func (stubFacadeJobExecutionReader) ListRecent(context.Context, string, int) ([]core.JobExecutionRecord, error) {
	return []core.JobExecutionRecord{{ID: "exec_1", JobName: "membership.reconcile"}}, nil
}

type stubFacadeWebhookEventReader struct{}

func (stubFacadeWebhookEventReader) Get(_ context.Context, externalEventID string) (core.WebhookEventRecord, error) {
	return core.WebhookEventRecord{ExternalEventID: externalEventID, EventType: "payment_succeeded"}, nil
}

type stubFacadeStoreProvider struct{}

func (s stubFacadeStoreProvider) MemberStore() core.MemberStore { return nil }

func (s stubFacadeStoreProvider) JobExecutionStore() core.JobExecutionStore { return nil }

func (s stubFacadeStoreProvider) WebhookEventStore() core.WebhookEventStore {
	return stubFacadeWebhookEventStore{}
}

type stubFacadeWebhookEventStore struct{}

func (stubFacadeWebhookEventStore) FindOrCreate(
	_ context.Context,
	externalEventID string,
	eventType string,
) (core.WebhookEventRecord, bool, error) {
	return core.WebhookEventRecord{ExternalEventID: externalEventID, EventType: eventType}, true, nil
}

func (stubFacadeWebhookEventStore) Get(_ context.Context, externalEventID string) (core.WebhookEventRecord, error) {
	return core.WebhookEventRecord{ExternalEventID: externalEventID, EventType: "payment_succeeded"}, nil
}

func (stubFacadeWebhookEventStore) MarkProcessed(
	_ context.Context,
	externalEventID string,
	outcome map[string]any,
) (core.WebhookEventRecord, error) {
	return core.WebhookEventRecord{ExternalEventID: externalEventID, Outcome: outcome}, nil
}

func (stubFacadeWebhookEventStore) MarkFailed(
	_ context.Context,
	externalEventID string,
	cause error,
) (core.WebhookEventRecord, error) {
	record := core.WebhookEventRecord{ExternalEventID: externalEventID, Attempts: 1}
	if cause != nil {
		record.LastError = cause.Error()
	}
	return record, nil
}

var _ CommandQueryService = (*stubFacadeService)(nil)
