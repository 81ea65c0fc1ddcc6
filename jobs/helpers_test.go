package jobs

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/goliatone/go-membership/core"
)

type memoryLedger struct {
	mu      sync.Mutex
	seq     int
	records map[string]core.JobExecutionRecord
	order   []string

	startErr  error
	finishErr error
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{records: map[string]core.JobExecutionRecord{}}
}

func (l *memoryLedger) Start(_ context.Context, jobName string) (core.JobExecutionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.startErr != nil {
		return core.JobExecutionRecord{}, l.startErr
	}
	l.seq++
	record := core.JobExecutionRecord{
		ID:        "exec-" + strconv.Itoa(l.seq),
		JobName:   jobName,
		Status:    core.JobExecutionStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	l.records[record.ID] = record
	l.order = append(l.order, record.ID)
	return record, nil
}

func (l *memoryLedger) Finish(_ context.Context, id string, status core.JobExecutionStatus, result map[string]any, errorMessage string) (core.JobExecutionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.finishErr != nil {
		return core.JobExecutionRecord{}, l.finishErr
	}
	record, ok := l.records[id]
	if !ok {
		return core.JobExecutionRecord{}, fmt.Errorf("jobs: execution %q not found", id)
	}
	finished := time.Now().UTC()
	record.Status = status
	record.FinishedAt = &finished
	record.DurationMs = finished.Sub(record.StartedAt).Milliseconds()
	record.Result = result
	record.ErrorMessage = errorMessage
	l.records[id] = record
	return record, nil
}

func (l *memoryLedger) ListRecent(_ context.Context, jobName string, limit int) ([]core.JobExecutionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []core.JobExecutionRecord{}
	for i := len(l.order) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		record := l.records[l.order[i]]
		if jobName == "" || record.JobName == jobName {
			out = append(out, record)
		}
	}
	return out, nil
}

func (l *memoryLedger) byName(jobName string) []core.JobExecutionRecord {
	records, _ := l.ListRecent(context.Background(), jobName, 0)
	return records
}

type stubNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *stubNotifier) NotifyOperator(_ context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, message)
	return nil
}

func (n *stubNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.messages))
	copy(out, n.messages)
	return out
}

type stubRemover struct {
	mu    sync.Mutex
	calls []core.RemoveMemberRequest
	errs  map[string]error
}

func (r *stubRemover) RemoveMember(_ context.Context, req core.RemoveMemberRequest) (core.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, req)
	if err, ok := r.errs[req.MemberID]; ok {
		return core.Member{}, err
	}
	return core.Member{ID: req.MemberID, Status: core.MemberStatusRemoved}, nil
}

type stubExpiringLister struct {
	trials      []core.Member
	delinquents []core.Member
	err         error
}

func (s stubExpiringLister) ListExpiredTrials(context.Context, time.Time, core.TenantFilter) ([]core.Member, error) {
	return s.trials, s.err
}

func (s stubExpiringLister) ListDelinquentSince(context.Context, time.Time, core.TenantFilter) ([]core.Member, error) {
	return s.delinquents, s.err
}

type stubRenewingLister struct {
	members []core.Member
	err     error
}

func (s stubRenewingLister) ListActiveExpiringBy(context.Context, time.Time, core.TenantFilter) ([]core.Member, error) {
	return s.members, s.err
}

var (
	_ core.JobExecutionStore = (*memoryLedger)(nil)
	_ core.OperatorNotifier  = (*stubNotifier)(nil)
	_ MemberRemover          = (*stubRemover)(nil)
	_ ExpiringMemberLister   = stubExpiringLister{}
	_ RenewingMemberLister   = stubRenewingLister{}
)
