package breakersvc

import (
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/trezcool/educore/core"
)

// Names of the guarded dependencies.
const (
	Redis    = "Redis-Admission"
	RabbitMQ = "RabbitMQ-Publisher"
)

// New returns a circuit breaker for the dependency called name.
// It opens after 3 consecutive failures and probes again after a timeout that depends on the dependency.
func New(name string, logger core.Logger) *gobreaker.CircuitBreaker {
	var timeout time.Duration
	switch name {
	case Redis:
		timeout = 5 * time.Second // admission falls back to memory meanwhile
	default:
		timeout = 30 * time.Second
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			msg := fmt.Sprintf("circuit breaker %s: %s -> %s", name, from, to)
			if to == gobreaker.StateOpen {
				logger.Error(msg)
			} else {
				logger.Warn(msg)
			}
		},
	})
}

// IsOpen reports whether err was returned by a breaker refusing calls.
func IsOpen(err error) bool {
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}
