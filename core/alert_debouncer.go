package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultDebounceWindow = 60 * time.Minute
const defaultDebouncerMaxEntries = 4096

// MemoryAlertDebouncer rate-limits duplicate operator notifications per key.
// The cache is process-local and not persisted: a restart risks one extra
// duplicate alert, never silence.
type MemoryAlertDebouncer struct {
	mu            sync.Mutex
	defaultWindow time.Duration
	maxEntries    int
	lastSent      map[string]time.Time
	Now           func() time.Time
}

func NewMemoryAlertDebouncer(defaultWindow time.Duration) *MemoryAlertDebouncer {
	return NewMemoryAlertDebouncerWithLimits(defaultWindow, defaultDebouncerMaxEntries)
}

func NewMemoryAlertDebouncerWithLimits(defaultWindow time.Duration, maxEntries int) *MemoryAlertDebouncer {
	if defaultWindow <= 0 {
		defaultWindow = defaultDebounceWindow
	}
	if maxEntries <= 0 {
		maxEntries = defaultDebouncerMaxEntries
	}
	return &MemoryAlertDebouncer{
		defaultWindow: defaultWindow,
		maxEntries:    maxEntries,
		lastSent:      map[string]time.Time{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// CanSend returns false when the same key was sent within the window, true
// otherwise, recording the send time as a side effect of returning true.
func (d *MemoryAlertDebouncer) CanSend(_ context.Context, key string, window time.Duration) (bool, error) {
	if d == nil {
		return false, fmt.Errorf("core: alert debouncer is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("core: alert key is required")
	}
	if window <= 0 {
		window = d.defaultWindow
	}
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if sentAt, ok := d.lastSent[key]; ok {
		if now.Before(sentAt.Add(window)) {
			return false, nil
		}
	}
	d.enforceCapacityLocked(1)
	d.lastSent[key] = now
	return true, nil
}

func (d *MemoryAlertDebouncer) now() time.Time {
	if d != nil && d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d *MemoryAlertDebouncer) enforceCapacityLocked(incoming int) {
	if d.maxEntries <= 0 {
		return
	}
	target := d.maxEntries - incoming
	if target < 0 {
		target = 0
	}
	for len(d.lastSent) > target {
		d.evictOldestLocked()
	}
}

func (d *MemoryAlertDebouncer) evictOldestLocked() {
	var oldestKey string
	var oldestSent time.Time
	for key, sentAt := range d.lastSent {
		if oldestKey == "" || sentAt.Before(oldestSent) {
			oldestKey = key
			oldestSent = sentAt
		}
	}
	if oldestKey != "" {
		delete(d.lastSent, oldestKey)
		return
	}
	for key := range d.lastSent {
		delete(d.lastSent, key)
		break
	}
}

var _ AlertDebouncer = (*MemoryAlertDebouncer)(nil)
