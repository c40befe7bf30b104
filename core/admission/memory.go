package admission

import (
	"context"
	"sync"
	"time"
)

type window struct {
	mu       sync.Mutex
	start    time.Time
	count    int
	lastSeen time.Time
	evicted  bool
}

// MemoryLimiter keeps admission windows in process memory.
type MemoryLimiter struct {
	settings Settings

	mu      sync.Mutex
	windows map[string]*window
}

var _ Limiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter(settings Settings) *MemoryLimiter {
	return &MemoryLimiter{
		settings: settings.withDefaults(),
		windows:  make(map[string]*window),
	}
}

func (l *MemoryLimiter) Settings() Settings { return l.settings }

func (l *MemoryLimiter) window(client string, now time.Time) *window {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[client]
	if !ok {
		w = &window{start: now, lastSeen: now}
		l.windows[client] = w
	}
	return w
}

// Admit never fails.
func (l *MemoryLimiter) Admit(_ context.Context, client string, now time.Time) (Decision, error) {
	for {
		w := l.window(client, now)
		w.mu.Lock()
		if w.evicted { // lost a race with Sweep
			w.mu.Unlock()
			continue
		}
		if now.Sub(w.start) >= l.settings.Window {
			w.start = now
			w.count = 0
		}
		w.count++
		w.lastSeen = now
		d := Decision{
			Admitted: w.count <= l.settings.Limit,
			Count:    w.count,
			Limit:    l.settings.Limit,
			ResetAt:  w.start.Add(l.settings.Window),
		}
		w.mu.Unlock()
		return d, nil
	}
}

// Sweep evicts windows idle since IdleTTL and returns how many were evicted.
func (l *MemoryLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int
	for client, w := range l.windows {
		w.mu.Lock()
		if now.Sub(w.lastSeen) >= l.settings.IdleTTL {
			w.evicted = true
			delete(l.windows, client)
			n++
		}
		w.mu.Unlock()
	}
	return n
}

// Len returns the number of tracked clients.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Run sweeps every interval until ctx is done.
func (l *MemoryLimiter) Run(ctx context.Context, interval time.Duration, nowFunc func() time.Time) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep(nowFunc())
		}
	}
}
