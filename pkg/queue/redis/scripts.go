package redis

import goredis "github.com/redis/go-redis/v9"

// KEYS: job, ready, state set, [dedup]
// ARGV: id, next_run_at, updated_at, job prefix, field/value pairs...
var enqueueScript = goredis.NewScript(`
if #KEYS == 4 then
	local existing = redis.call('GET', KEYS[4])
	if existing then
		local state = redis.call('HGET', ARGV[4] .. existing, 'state')
		if state == 'waiting' or state == 'active' or state == 'delayed_retry' then
			return existing
		end
	end
	redis.call('SET', KEYS[4], ARGV[1])
end
redis.call('HSET', KEYS[1], unpack(ARGV, 5))
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
return ARGV[1]
`)

// KEYS: ready, active, state:active
// ARGV: now, limit, worker, lease expiry, job prefix, state prefix, kinds...
var leaseScript = goredis.NewScript(`
local limit = tonumber(ARGV[2])
local filter = #ARGV > 6
local kinds = {}
for i = 7, #ARGV do
	kinds[ARGV[i]] = true
end

local leased = {}
local offset = 0
while #leased < limit do
	local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', offset, 100)
	if #ids == 0 then
		break
	end
	for _, id in ipairs(ids) do
		local key = ARGV[5] .. id
		local fields = redis.call('HMGET', key, 'kind', 'state')
		if not fields[1] then
			redis.call('ZREM', KEYS[1], id)
		elseif filter and not kinds[fields[1]] then
			offset = offset + 1
		else
			redis.call('HSET', key, 'state', 'active', 'lease_owner', ARGV[3],
				'lease_expires_at', ARGV[4], 'updated_at', ARGV[1])
			redis.call('ZREM', KEYS[1], id)
			redis.call('ZADD', KEYS[2], ARGV[4], id)
			redis.call('ZREM', ARGV[6] .. fields[2], id)
			redis.call('ZADD', KEYS[3], ARGV[1], id)
			leased[#leased + 1] = id
			if #leased >= limit then
				break
			end
		end
	end
end
return leased
`)

// KEYS: active, ready, state:active, state:waiting
// ARGV: now, job prefix
var reclaimScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local n = 0
for _, id in ipairs(ids) do
	local key = ARGV[2] .. id
	local next = redis.call('HGET', key, 'next_run_at')
	redis.call('ZREM', KEYS[1], id)
	if next then
		redis.call('HSET', key, 'state', 'waiting', 'lease_owner', '',
			'lease_expires_at', '', 'updated_at', ARGV[1])
		redis.call('ZADD', KEYS[2], next, id)
		redis.call('ZREM', KEYS[3], id)
		redis.call('ZADD', KEYS[4], ARGV[1], id)
		n = n + 1
	end
end
return n
`)

// KEYS: state set
// ARGV: keep, job prefix
var pruneScript = goredis.NewScript(`
local ids = redis.call('ZREVRANGE', KEYS[1], ARGV[1], -1)
for _, id in ipairs(ids) do
	redis.call('DEL', ARGV[2] .. id)
	redis.call('ZREM', KEYS[1], id)
end
return #ids
`)
