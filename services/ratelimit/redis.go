package ratelimitsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/trezcool/educore/core"
	"github.com/trezcool/educore/core/admission"
	"github.com/trezcool/educore/services/breaker"
)

const keyPrefix = "admission:"

// admitScript counts a hit in the fixed window of KEYS[1] and returns {count, ms until reset}.
// The window starts with the first hit and lasts ARGV[1] milliseconds.
var admitScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if count == 1 or ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisLimiter shares admission windows between API instances through Redis.
// While Redis is failing it falls back to windows kept in memory.
type RedisLimiter struct {
	client   redis.Scripter
	cb       *gobreaker.CircuitBreaker
	fallback *admission.MemoryLimiter
	settings admission.Settings
	logger   core.Logger
}

var _ admission.Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client redis.Scripter, fallback *admission.MemoryLimiter, logger core.Logger) *RedisLimiter {
	return &RedisLimiter{
		client:   client,
		cb:       breakersvc.New(breakersvc.Redis, logger),
		fallback: fallback,
		settings: fallback.Settings(),
		logger:   logger,
	}
}

func (l *RedisLimiter) Admit(ctx context.Context, client string, now time.Time) (admission.Decision, error) {
	res, err := l.cb.Execute(func() (interface{}, error) {
		return admitScript.Run(ctx, l.client, []string{keyPrefix + client}, l.settings.Window.Milliseconds()).Int64Slice()
	})
	if err != nil {
		if !breakersvc.IsOpen(err) {
			l.logger.Warn(fmt.Sprintf("redis admission failed, using memory: %v", err), errors.Wrap(err, "running admit script"))
		}
		return l.fallback.Admit(ctx, client, now)
	}

	vals, ok := res.([]int64)
	if !ok || len(vals) != 2 {
		return l.fallback.Admit(ctx, client, now)
	}
	count := int(vals[0])
	return admission.Decision{
		Admitted: count <= l.settings.Limit,
		Count:    count,
		Limit:    l.settings.Limit,
		ResetAt:  now.Add(time.Duration(vals[1]) * time.Millisecond),
	}, nil
}
