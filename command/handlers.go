// Package command exposes the guarded membership mutations as go-command
// message and commander pairs so dispatcher wiring never bypasses the
// state machine.
package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-membership/core"
	"github.com/goliatone/go-membership/webhooks"
)

// MutatingService is the write surface of the membership service. It is
// implemented by *core.Service.
type MutatingService interface {
	EnrollTrial(ctx context.Context, req core.EnrollTrialRequest) (core.Member, error)
	ActivateMember(ctx context.Context, req core.ActivateMemberRequest) (core.Member, error)
	RenewMember(ctx context.Context, req core.RenewMemberRequest) (core.Member, error)
	MarkDelinquent(ctx context.Context, req core.MarkDelinquentRequest) (core.Member, error)
	RemoveMember(ctx context.Context, req core.RemoveMemberRequest) (core.Member, error)
	ReactivateMember(ctx context.Context, req core.ReactivateMemberRequest) (core.Member, error)
}

// WebhookProcessor is the idempotency gate surface. It is implemented by
// *webhooks.Gate.
type WebhookProcessor interface {
	Process(ctx context.Context, event webhooks.Event) (webhooks.Result, error)
}

type EnrollTrialCommand struct {
	service MutatingService
}

func NewEnrollTrialCommand(service MutatingService) *EnrollTrialCommand {
	return &EnrollTrialCommand{service: service}
}

func (c *EnrollTrialCommand) Execute(ctx context.Context, msg EnrollTrialMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: enroll trial service is required")
	}
	out, err := c.service.EnrollTrial(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ActivateMemberCommand struct {
	service MutatingService
}

func NewActivateMemberCommand(service MutatingService) *ActivateMemberCommand {
	return &ActivateMemberCommand{service: service}
}

func (c *ActivateMemberCommand) Execute(ctx context.Context, msg ActivateMemberMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: activate member service is required")
	}
	out, err := c.service.ActivateMember(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RenewMemberCommand struct {
	service MutatingService
}

func NewRenewMemberCommand(service MutatingService) *RenewMemberCommand {
	return &RenewMemberCommand{service: service}
}

func (c *RenewMemberCommand) Execute(ctx context.Context, msg RenewMemberMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: renew member service is required")
	}
	out, err := c.service.RenewMember(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type MarkDelinquentCommand struct {
	service MutatingService
}

func NewMarkDelinquentCommand(service MutatingService) *MarkDelinquentCommand {
	return &MarkDelinquentCommand{service: service}
}

func (c *MarkDelinquentCommand) Execute(ctx context.Context, msg MarkDelinquentMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: mark delinquent service is required")
	}
	out, err := c.service.MarkDelinquent(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RemoveMemberCommand struct {
	service MutatingService
}

func NewRemoveMemberCommand(service MutatingService) *RemoveMemberCommand {
	return &RemoveMemberCommand{service: service}
}

func (c *RemoveMemberCommand) Execute(ctx context.Context, msg RemoveMemberMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: remove member service is required")
	}
	out, err := c.service.RemoveMember(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReactivateMemberCommand struct {
	service MutatingService
}

func NewReactivateMemberCommand(service MutatingService) *ReactivateMemberCommand {
	return &ReactivateMemberCommand{service: service}
}

func (c *ReactivateMemberCommand) Execute(ctx context.Context, msg ReactivateMemberMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: reactivate member service is required")
	}
	out, err := c.service.ReactivateMember(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ProcessWebhookCommand struct {
	processor WebhookProcessor
}

func NewProcessWebhookCommand(processor WebhookProcessor) *ProcessWebhookCommand {
	return &ProcessWebhookCommand{processor: processor}
}

func (c *ProcessWebhookCommand) Execute(ctx context.Context, msg ProcessWebhookMessage) error {
	if c == nil || c.processor == nil {
		return commandDependencyError("command: webhook processor is required")
	}
	out, err := c.processor.Process(ctx, msg.Event)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type EnqueueJobCommand struct {
	enqueuer core.JobEnqueuer
}

func NewEnqueueJobCommand(enqueuer core.JobEnqueuer) *EnqueueJobCommand {
	return &EnqueueJobCommand{enqueuer: enqueuer}
}

func (c *EnqueueJobCommand) Execute(ctx context.Context, msg EnqueueJobMessage) error {
	if c == nil || c.enqueuer == nil {
		return commandDependencyError("command: job enqueuer is required")
	}
	return c.enqueuer.Enqueue(ctx, &msg.Message)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
