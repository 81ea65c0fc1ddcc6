package jobs

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-membership/core"
)

// ExpiringMemberLister is the slice of the member store the kick job reads.
type ExpiringMemberLister interface {
	ListExpiredTrials(ctx context.Context, asOf time.Time, filter core.TenantFilter) ([]core.Member, error)
	ListDelinquentSince(ctx context.Context, cutoff time.Time, filter core.TenantFilter) ([]core.Member, error)
}

// MemberRemover is the single mutating operation the kick job performs.
// Everything goes through the guarded transition; the job never writes
// status directly.
type MemberRemover interface {
	RemoveMember(ctx context.Context, req core.RemoveMemberRequest) (core.Member, error)
}

// KickExpiredResult summarizes one run. Conflicts are members whose status
// changed between the list and the CAS write (usually a webhook-triggered
// payment); they are skipped, not failed.
type KickExpiredResult struct {
	Skipped   bool
	Examined  int
	Removed   int
	Conflicts int
	Failures  int
}

func (r KickExpiredResult) Map() map[string]any {
	return map[string]any{
		"skipped":   r.Skipped,
		"examined":  r.Examined,
		"removed":   r.Removed,
		"conflicts": r.Conflicts,
		"failures":  r.Failures,
	}
}

// KickExpiredJob removes members whose trial lapsed and delinquent members
// whose grace period ran out.
type KickExpiredJob struct {
	Members     ExpiringMemberLister
	Service     MemberRemover
	Lock        core.JobLocker
	GracePeriod time.Duration
	Logger      glog.Logger
	Now         func() time.Time
}

func NewKickExpiredJob(
	members ExpiringMemberLister,
	service MemberRemover,
	lock core.JobLocker,
	gracePeriod time.Duration,
	logger glog.Logger,
) *KickExpiredJob {
	return &KickExpiredJob{
		Members:     members,
		Service:     service,
		Lock:        lock,
		GracePeriod: gracePeriod,
		Logger:      glog.Ensure(logger),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (j *KickExpiredJob) Run(ctx context.Context, filter core.TenantFilter) (KickExpiredResult, error) {
	if j == nil || j.Members == nil || j.Service == nil {
		return KickExpiredResult{}, fmt.Errorf("jobs: kick expired requires member lister and service")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if j.Lock != nil {
		if !j.Lock.Acquire(JobKickExpired) {
			j.logger().Info("kick expired skipped, run already in progress")
			return KickExpiredResult{Skipped: true}, nil
		}
		defer j.Lock.Release(JobKickExpired)
	}

	now := j.now()
	result := KickExpiredResult{}

	expiredTrials, err := j.Members.ListExpiredTrials(ctx, now, filter)
	if err != nil {
		return result, fmt.Errorf("jobs: list expired trials: %w", err)
	}
	graceCutoff := now.Add(-j.GracePeriod)
	lapsedDelinquents, err := j.Members.ListDelinquentSince(ctx, graceCutoff, filter)
	if err != nil {
		return result, fmt.Errorf("jobs: list lapsed delinquents: %w", err)
	}

	kick := func(member core.Member, reason string) {
		result.Examined++
		_, err := j.Service.RemoveMember(ctx, core.RemoveMemberRequest{
			MemberID: member.ID,
			Tenant:   member.TenantID,
			At:       now,
			Reason:   reason,
		})
		switch {
		case err == nil:
			result.Removed++
		case core.IsRaceCondition(err) || core.IsInvalidTransition(err):
			// Somebody else moved the member first, most likely a payment
			// webhook. Their write wins.
			result.Conflicts++
			j.logger().Info("kick skipped, member changed concurrently",
				"member_id", member.ID,
				"reason", reason,
			)
		default:
			result.Failures++
			j.logger().Warn("kick failed",
				"member_id", member.ID,
				"reason", reason,
				"error", err.Error(),
			)
		}
	}

	for _, member := range expiredTrials {
		kick(member, "trial expired")
	}
	for _, member := range lapsedDelinquents {
		kick(member, "grace period expired")
	}

	j.logger().Info("kick expired run finished",
		"examined", result.Examined,
		"removed", result.Removed,
		"conflicts", result.Conflicts,
		"failures", result.Failures,
	)
	return result, nil
}

func (j *KickExpiredJob) now() time.Time {
	if j != nil && j.Now != nil {
		return j.Now().UTC()
	}
	return time.Now().UTC()
}

func (j *KickExpiredJob) logger() glog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger
	}
	return glog.Ensure(nil)
}
