// Package store remembers recently seen webhook deliveries.
//
// DESIGN: Providers redeliver webhooks they think were lost, and most of them
// stamp every delivery with an ID header (X-GitHub-Delivery,
// X-Gitlab-Event-UUID, ...). The dispatcher claims "<hook>:<delivery id>"
// before running a hook; a failed claim means the delivery was already
// admitted within the TTL and is acknowledged without running again. A
// delivery that was not admitted (400, 500) is released so the provider's
// retry runs the hook.
//
// Entries live only in memory and expire after the TTL. Nothing survives a
// restart.
package store

import (
	"sync"
	"time"
)

// DefaultCleanupInterval is how often expired entries are swept.
const DefaultCleanupInterval = time.Minute

// Ledger claims delivery keys.
type Ledger interface {
	// Claim records key and returns true, or returns false if key was
	// already claimed and has not expired.
	Claim(key string) bool

	// Release forgets key so the next Claim succeeds.
	Release(key string)

	// Len returns the number of live entries.
	Len() int

	// Close stops background cleanup and drops all entries.
	Close() error
}

// MemoryLedger is an in-memory Ledger with a fixed TTL.
type MemoryLedger struct {
	entries  map[string]time.Time // key -> expiry
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	stopChan chan struct{}
	stopped  bool
}

// NewMemoryLedger creates a ledger whose claims last ttl.
func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	return newMemoryLedger(ttl, DefaultCleanupInterval, time.Now)
}

func newMemoryLedger(ttl, cleanupInterval time.Duration, now func() time.Time) *MemoryLedger {
	l := &MemoryLedger{
		entries:  make(map[string]time.Time),
		ttl:      ttl,
		now:      now,
		stopChan: make(chan struct{}),
	}

	go l.cleanup(cleanupInterval)

	return l
}

// Claim implements Ledger.
func (l *MemoryLedger) Claim(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return true
	}

	now := l.now()
	if expiresAt, exists := l.entries[key]; exists && now.Before(expiresAt) {
		return false
	}
	l.entries[key] = now.Add(l.ttl)
	return true
}

// Release implements Ledger.
func (l *MemoryLedger) Release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return
	}
	delete(l.entries, key)
}

// Len implements Ledger.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	n := 0
	for _, expiresAt := range l.entries {
		if now.Before(expiresAt) {
			n++
		}
	}
	return n
}

// Close stops the cleanup goroutine and clears data.
func (l *MemoryLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.stopped {
		l.stopped = true
		close(l.stopChan)
		l.entries = nil
	}
	return nil
}

// sweep removes expired entries.
func (l *MemoryLedger) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return
	}
	now := l.now()
	for key, expiresAt := range l.entries {
		if !now.Before(expiresAt) {
			delete(l.entries, key)
		}
	}
}

// cleanup periodically removes expired entries.
func (l *MemoryLedger) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

// Ensure MemoryLedger implements Ledger
var _ Ledger = (*MemoryLedger)(nil)
