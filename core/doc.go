// Package core contains the membership lifecycle domain: the member status
// state machine, the persistence and provider contracts, the guarded
// mutation service, and the process-local coordination primitives (job
// lock, alert debouncer) the job and webhook packages build on.
//
// Three independent triggers mutate member state: scheduled jobs, inbound
// provider webhooks, and manual operator commands. None of them coordinate
// with each other, so every status write goes through a compare-and-swap
// on the status column and callers must treat a RACE_CONDITION outcome as
// "re-read and retry or abort", never as something to overwrite.
package core
