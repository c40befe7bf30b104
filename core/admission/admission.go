package admission

import (
	"context"
	"time"
)

const (
	DefaultLimit  = 10
	DefaultWindow = time.Minute
)

// Decision is the verdict of a Limiter for one request.
type Decision struct {
	Admitted bool
	Count    int // requests seen in the active window, this one included
	Limit    int
	ResetAt  time.Time
}

// RetryAfter is how long a throttled client should wait before retrying.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Admitted || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Limiter applies a fixed-window quota per client identity.
type Limiter interface {
	// Admit counts one request of client at now. Throttled requests are counted too.
	Admit(ctx context.Context, client string, now time.Time) (Decision, error)
}

type Settings struct {
	Limit   int
	Window  time.Duration
	IdleTTL time.Duration // windows idle for longer are evicted by Sweep
}

func (s Settings) withDefaults() Settings {
	if s.Limit <= 0 {
		s.Limit = DefaultLimit
	}
	if s.Window <= 0 {
		s.Window = DefaultWindow
	}
	if s.IdleTTL < s.Window {
		s.IdleTTL = 10 * s.Window
	}
	return s
}
