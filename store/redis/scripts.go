package redis

import "github.com/redis/go-redis/v9"

// claimscript atomically claims up to ARGV[3] eligible tasks.
//
// It first moves expired leases from the claimed set back onto the
// schedule, then pops the due head of the schedule and stamps each task
// hash with the new owner and lease. Running as a single script keeps
// the eligibility check and the claim write atomic, so two claimers can
// never win the same task.
//
//	KEYS[1] schedule zset    KEYS[2] claimed zset
//	ARGV[1] now unix ms      ARGV[2] lease expiry unix ms
//	ARGV[3] batch limit      ARGV[4] worker id
//	ARGV[5] now RFC3339      ARGV[6] lease expiry RFC3339
//	ARGV[7] task key prefix
var claimScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', '(' .. ARGV[1])
for _, id in ipairs(expired) do
	redis.call('HSET', ARGV[7] .. id,
		'status', 'READY',
		'lock_owner', '',
		'locked_until', '',
		'updated_at', ARGV[5])
	local due = redis.call('HGET', ARGV[7] .. id, 'due_ms')
	if due then
		redis.call('ZADD', KEYS[1], tonumber(due), id)
	end
	redis.call('ZREM', KEYS[2], id)
end

local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
for _, id in ipairs(ids) do
	redis.call('HSET', ARGV[7] .. id,
		'status', 'CLAIMED',
		'lock_owner', ARGV[4],
		'locked_until', ARGV[6],
		'updated_at', ARGV[5])
	redis.call('HINCRBY', ARGV[7] .. id, 'attempt_count', 1)
	redis.call('ZREM', KEYS[1], id)
	redis.call('ZADD', KEYS[2], tonumber(ARGV[2]), id)
end
return ids
`)

// reapScript resets every expired lease back to READY and returns how
// many tasks it touched.
//
//	KEYS[1] schedule zset    KEYS[2] claimed zset
//	ARGV[1] now unix ms      ARGV[2] now RFC3339
//	ARGV[3] task key prefix
var reapScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', '(' .. ARGV[1])
for _, id in ipairs(expired) do
	redis.call('HSET', ARGV[3] .. id,
		'status', 'READY',
		'lock_owner', '',
		'locked_until', '',
		'updated_at', ARGV[2])
	local due = redis.call('HGET', ARGV[3] .. id, 'due_ms')
	if due then
		redis.call('ZADD', KEYS[1], tonumber(due), id)
	end
	redis.call('ZREM', KEYS[2], id)
end
return #expired
`)
