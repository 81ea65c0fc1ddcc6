package jobs

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-membership/core"
)

// RenewingMemberLister is the slice of the member store the reminder job
// reads.
type RenewingMemberLister interface {
	ListActiveExpiringBy(ctx context.Context, deadline time.Time, filter core.TenantFilter) ([]core.Member, error)
}

type RenewalRemindersResult struct {
	Skipped   bool
	Examined  int
	Reminded  int
	Debounced int
	Failures  int
}

func (r RenewalRemindersResult) Map() map[string]any {
	return map[string]any{
		"skipped":   r.Skipped,
		"examined":  r.Examined,
		"reminded":  r.Reminded,
		"debounced": r.Debounced,
		"failures":  r.Failures,
	}
}

// RenewalRemindersJob notifies the operator about active members whose paid
// period ends within the reminder window. Reminders are debounced per member
// so the daily schedule does not repeat them until the window passes.
type RenewalRemindersJob struct {
	Members        RenewingMemberLister
	Notifier       core.OperatorNotifier
	Debouncer      core.AlertDebouncer
	Lock           core.JobLocker
	ReminderWindow time.Duration
	Logger         glog.Logger
	Now            func() time.Time
}

func NewRenewalRemindersJob(
	members RenewingMemberLister,
	notifier core.OperatorNotifier,
	debouncer core.AlertDebouncer,
	lock core.JobLocker,
	reminderWindow time.Duration,
	logger glog.Logger,
) *RenewalRemindersJob {
	return &RenewalRemindersJob{
		Members:        members,
		Notifier:       notifier,
		Debouncer:      debouncer,
		Lock:           lock,
		ReminderWindow: reminderWindow,
		Logger:         glog.Ensure(logger),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (j *RenewalRemindersJob) Run(ctx context.Context, filter core.TenantFilter) (RenewalRemindersResult, error) {
	if j == nil || j.Members == nil || j.Notifier == nil {
		return RenewalRemindersResult{}, fmt.Errorf("jobs: renewal reminders require member lister and notifier")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if j.Lock != nil {
		if !j.Lock.Acquire(JobRenewalReminders) {
			j.logger().Info("renewal reminders skipped, run already in progress")
			return RenewalRemindersResult{Skipped: true}, nil
		}
		defer j.Lock.Release(JobRenewalReminders)
	}

	now := j.now()
	deadline := now.Add(j.ReminderWindow)
	result := RenewalRemindersResult{}

	members, err := j.Members.ListActiveExpiringBy(ctx, deadline, filter)
	if err != nil {
		return result, fmt.Errorf("jobs: list expiring members: %w", err)
	}

	for _, member := range members {
		result.Examined++

		if j.Debouncer != nil {
			ok, debounceErr := j.Debouncer.CanSend(ctx, "renewal_reminder:"+member.ID, j.ReminderWindow)
			if debounceErr != nil {
				result.Failures++
				j.logger().Warn("reminder debounce check failed", "member_id", member.ID, "error", debounceErr.Error())
				continue
			}
			if !ok {
				result.Debounced++
				continue
			}
		}

		message := buildRenewalReminder(member, now)
		if notifyErr := j.Notifier.NotifyOperator(ctx, message); notifyErr != nil {
			result.Failures++
			j.logger().Warn("reminder delivery failed", "member_id", member.ID, "error", notifyErr.Error())
			continue
		}
		result.Reminded++
	}

	j.logger().Info("renewal reminders run finished",
		"examined", result.Examined,
		"reminded", result.Reminded,
		"debounced", result.Debounced,
		"failures", result.Failures,
	)
	return result, nil
}

func buildRenewalReminder(member core.Member, now time.Time) string {
	remaining := "soon"
	if member.SubscriptionEndsAt != nil {
		days := int(member.SubscriptionEndsAt.Sub(now).Hours() / 24)
		if days < 0 {
			days = 0
		}
		remaining = fmt.Sprintf("in %d day(s)", days)
	}
	return fmt.Sprintf("Renewal due %s for member %s (chat %s, subscription %s)",
		remaining, member.ID, member.ExternalChatID, member.ExternalSubscriptionID)
}

func (j *RenewalRemindersJob) now() time.Time {
	if j != nil && j.Now != nil {
		return j.Now().UTC()
	}
	return time.Now().UTC()
}

func (j *RenewalRemindersJob) logger() glog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger
	}
	return glog.Ensure(nil)
}
