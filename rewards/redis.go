package rewards

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"civicpulse/models"
)

// creditScript applies one credit atomically.
// KEYS[1] = account hash, KEYS[2] = applied key set, KEYS[3] = medal set
// ARGV[1] = idempotency key
// ARGV[2] = amount
// ARGV[3] = total_reports increment
// ARGV[4] = resolved_reports increment
// ARGV[5] = medal step
// ARGV[6] = updated_at (RFC3339)
// ARGV[7..] = medal ladder
var creditScript = redis.NewScript(`
if redis.call("SADD", KEYS[2], ARGV[1]) == 0 then
    return 0
end

local credits = redis.call("HINCRBY", KEYS[1], "credits", ARGV[2])
redis.call("HINCRBY", KEYS[1], "total_reports", ARGV[3])
redis.call("HINCRBY", KEYS[1], "resolved_reports", ARGV[4])
redis.call("HSET", KEYS[1], "updated_at", ARGV[6])

local step = tonumber(ARGV[5])
local ladder = {}
for i = 7, #ARGV do
    ladder[#ladder + 1] = ARGV[i]
end

-- Medals are only ever added.
local earned = math.floor(credits / step)
for k = 1, earned do
    local medal
    if k <= #ladder then
        medal = ladder[k]
    else
        medal = ladder[#ladder] .. "_" .. string.format("%d", k * step)
    end
    redis.call("SADD", KEYS[3], medal)
end

return 1
`)

// RedisLedger keeps accounts in Redis hashes. Keys share a hash tag per owner
// so the script stays on one slot in cluster mode.
type RedisLedger struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisLedger(client redis.UniversalClient) *RedisLedger {
	return &RedisLedger{client: client, prefix: "rewards", now: time.Now}
}

func (r *RedisLedger) keys(ownerID string) []string {
	tag := "{" + ownerID + "}"
	return []string{
		r.prefix + ":account:" + tag,
		r.prefix + ":applied:" + tag,
		r.prefix + ":medals:" + tag,
	}
}

func (r *RedisLedger) Credit(ctx context.Context, e Entry) (models.RewardAccount, bool, error) {
	if err := e.Validate(); err != nil {
		return models.RewardAccount{}, false, err
	}
	total, resolved := e.counters()
	args := []any{e.Key, e.Amount, total, resolved, MedalStep, r.now().UTC().Format(time.RFC3339Nano)}
	for _, m := range Ladder {
		args = append(args, m)
	}

	res, err := creditScript.Run(ctx, r.client, r.keys(e.OwnerID), args...).Int64()
	if err != nil {
		return models.RewardAccount{}, false, fmt.Errorf("redis credit: %w", err)
	}
	acct, err := r.Account(ctx, e.OwnerID)
	if err != nil {
		return models.RewardAccount{}, false, err
	}
	return acct, res == 1, nil
}

func (r *RedisLedger) Account(ctx context.Context, ownerID string) (models.RewardAccount, error) {
	keys := r.keys(ownerID)
	pipe := r.client.Pipeline()
	fields := pipe.HGetAll(ctx, keys[0])
	medals := pipe.SMembers(ctx, keys[2])
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return models.RewardAccount{}, fmt.Errorf("redis account: %w", err)
	}

	acct := models.RewardAccount{OwnerID: ownerID, Medals: medals.Val()}
	if acct.Medals == nil {
		acct.Medals = []string{}
	}
	SortMedals(acct.Medals)

	h := fields.Val()
	acct.Credits = parseInt(h["credits"])
	acct.TotalReports = parseInt(h["total_reports"])
	acct.ResolvedReports = parseInt(h["resolved_reports"])
	if ts, err := time.Parse(time.RFC3339Nano, h["updated_at"]); err == nil {
		acct.UpdatedAt = ts
	}
	return acct, nil
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
