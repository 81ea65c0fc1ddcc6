package core

import (
	"strings"
	"sync"
)

// MemoryJobLock is the per-process single-flight guard keyed by job name. It
// is deliberately not distributed: multi-instance deployments rely on the
// member store's CAS and the provider's own idempotency as the real safety
// net; this lock only prevents redundant work and duplicate alerts within
// one process.
type MemoryJobLock struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func NewMemoryJobLock() *MemoryJobLock {
	return &MemoryJobLock{
		running: map[string]struct{}{},
	}
}

// Acquire returns false when the named job is already running in-process.
// Callers receiving false short-circuit with a "skipped" result, not an
// error.
func (l *MemoryJobLock) Acquire(jobName string) bool {
	if l == nil {
		return false
	}
	jobName = normalizeJobName(jobName)
	if jobName == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, held := l.running[jobName]; held {
		return false
	}
	l.running[jobName] = struct{}{}
	return true
}

// Release must run on every exit path of the guarded section, including
// panics; callers defer it immediately after a successful Acquire.
func (l *MemoryJobLock) Release(jobName string) {
	if l == nil {
		return
	}
	jobName = normalizeJobName(jobName)
	if jobName == "" {
		return
	}

	l.mu.Lock()
	delete(l.running, jobName)
	l.mu.Unlock()
}

func normalizeJobName(jobName string) string {
	return strings.TrimSpace(strings.ToLower(jobName))
}

var _ JobLocker = (*MemoryJobLock)(nil)
