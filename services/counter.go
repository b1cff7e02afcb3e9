package services

import (
	"context"
	"fmt"
	"strconv"

	appContext "github.com/alphabatem/common/context"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/snaplink-labs/snaplink_api/shared"
)

// CounterService keeps per-account resource usage in a Redis hash, one field
// per resource kind. Ceiling checks and decrements run as Lua scripts so
// concurrent callers for the same account see a single linearized counter:
// two creates racing at ceiling-1 admit exactly one.
type CounterService struct {
	appContext.DefaultService

	redisSvc   *RedisService
	monitorSvc *MonitoringService
}

const COUNTER_SVC = "counter_svc"

func (svc CounterService) Id() string {
	return COUNTER_SVC
}

func (svc *CounterService) Configure(ctx *appContext.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *CounterService) Start() error {
	svc.redisSvc = svc.Service(REDIS_SVC).(*RedisService)
	svc.monitorSvc = svc.Service(MONITORING_SVC).(*MonitoringService)
	return nil
}

// checkAndIncrScript admits the caller only while usage is below the
// ceiling; a negative ceiling means unlimited. Returns {admitted, count}.
var checkAndIncrScript = redis.NewScript(`
local current = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
local ceiling = tonumber(ARGV[2])
if ceiling >= 0 and current >= ceiling then
  return {0, current}
end
return {1, redis.call('HINCRBY', KEYS[1], ARGV[1], 1)}
`)

// decrFloorScript never drives a counter below zero.
var decrFloorScript = redis.NewScript(`
local current = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
if current <= 0 then
  redis.call('HSET', KEYS[1], ARGV[1], 0)
  return 0
end
return redis.call('HINCRBY', KEYS[1], ARGV[1], -1)
`)

func usageKey(accountID string) string {
	return "usage:" + accountID
}

// CheckLimit reads current usage against the tier ceiling without mutating.
func (svc *CounterService) CheckLimit(ctx context.Context, accountID, kind, tier string) (allowed bool, current, ceiling int64, err error) {
	ceiling = shared.TierCeiling(tier, kind)

	val, err := svc.redisSvc.GetClient().HGet(ctx, usageKey(accountID), kind).Result()
	if err == redis.Nil {
		val = "0"
	} else if err != nil {
		return false, 0, ceiling, err
	}

	current, err = strconv.ParseInt(val, 10, 64)
	if err != nil {
		return false, 0, ceiling, fmt.Errorf("corrupt usage counter for %s/%s: %w", accountID, kind, err)
	}

	if shared.IsUnlimited(ceiling) {
		return true, current, ceiling, nil
	}
	return current < ceiling, current, ceiling, nil
}

// CheckAndIncrement atomically admits and counts one creation of the given
// kind. Returns a limit error carrying current/ceiling when the tier ceiling
// is reached. Store failures propagate; a create must never be silently lost.
func (svc *CounterService) CheckAndIncrement(ctx context.Context, accountID, kind, tier string) (int64, error) {
	ceiling := shared.TierCeiling(tier, kind)

	res, err := checkAndIncrScript.Run(ctx, svc.redisSvc.GetClient(),
		[]string{usageKey(accountID)}, kind, ceiling).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("counter increment failed: %w", err)
	}
	if len(res) != 2 {
		return 0, fmt.Errorf("unexpected counter script reply: %v", res)
	}

	if res[0] == 0 {
		if svc.monitorSvc != nil {
			svc.monitorSvc.RecordLimitRejection(kind)
		}
		return res[1], shared.NewLimitExceededError(kind, res[1], ceiling)
	}
	return res[1], nil
}

// Increment restores one unit of the given kind without a ceiling check.
// Used to put a released slot back when a later step of the same operation
// fails; the slot was legitimately held before the swap.
func (svc *CounterService) Increment(ctx context.Context, accountID, kind string) error {
	if err := svc.redisSvc.GetClient().HIncrBy(ctx, usageKey(accountID), kind, 1).Err(); err != nil {
		return fmt.Errorf("counter increment failed: %w", err)
	}
	return nil
}

// Decrement releases one unit of the given kind, flooring at zero.
func (svc *CounterService) Decrement(ctx context.Context, accountID, kind string) error {
	_, err := decrFloorScript.Run(ctx, svc.redisSvc.GetClient(),
		[]string{usageKey(accountID)}, kind).Int64()
	if err != nil {
		return fmt.Errorf("counter decrement failed: %w", err)
	}
	return nil
}

// Usage returns all counters for an account.
func (svc *CounterService) Usage(ctx context.Context, accountID string) (map[string]int64, error) {
	fields, err := svc.redisSvc.GetClient().HGetAll(ctx, usageKey(accountID)).Result()
	if err != nil {
		return nil, err
	}

	usage := make(map[string]int64, len(fields))
	for kind, val := range fields {
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			log.WithFields(log.Fields{"account": accountID, "kind": kind}).
				Warn("Skipping corrupt usage counter")
			continue
		}
		usage[kind] = n
	}
	return usage, nil
}
