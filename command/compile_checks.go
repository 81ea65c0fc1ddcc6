package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[EnrollTrialMessage]      = (*EnrollTrialCommand)(nil)
	_ gocmd.Commander[ActivateMemberMessage]   = (*ActivateMemberCommand)(nil)
	_ gocmd.Commander[RenewMemberMessage]      = (*RenewMemberCommand)(nil)
	_ gocmd.Commander[MarkDelinquentMessage]   = (*MarkDelinquentCommand)(nil)
	_ gocmd.Commander[RemoveMemberMessage]     = (*RemoveMemberCommand)(nil)
	_ gocmd.Commander[ReactivateMemberMessage] = (*ReactivateMemberCommand)(nil)
	_ gocmd.Commander[ProcessWebhookMessage]   = (*ProcessWebhookCommand)(nil)
	_ gocmd.Commander[EnqueueJobMessage]       = (*EnqueueJobCommand)(nil)
)
