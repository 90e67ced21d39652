package queue

import "github.com/redis/go-redis/v9"

// enqueueScript 记录已存在时不做任何事（按 JobID 去重）
//
// KEYS: job, wait, delayed
// ARGV: record, runAtMs（0 表示立即）, id
var enqueueScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1])
local runAt = tonumber(ARGV[2])
if runAt > 0 then
	redis.call('ZADD', KEYS[3], runAt, ARGV[3])
else
	redis.call('LPUSH', KEYS[2], ARGV[3])
end
return 1
`)

// promoteScript 把到期的延迟任务移入 wait
//
// KEYS: delayed, wait
// ARGV: nowMs, limit
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, id in ipairs(due) do
	redis.call('ZREM', KEYS[1], id)
	redis.call('LPUSH', KEYS[2], id)
end
return #due
`)

// recoverScript 两轮确认：第一次发现无租约只记为嫌疑，第二次仍无租约才放回 wait 队首
//
// KEYS: active, wait, suspects
// ARGV: leasePrefix
var recoverScript = redis.NewScript(`
local ids = redis.call('LRANGE', KEYS[1], 0, -1)
local recovered = 0
for _, id in ipairs(ids) do
	if redis.call('EXISTS', ARGV[1] .. id) == 1 then
		redis.call('SREM', KEYS[3], id)
	elseif redis.call('SISMEMBER', KEYS[3], id) == 1 then
		redis.call('LREM', KEYS[1], 1, id)
		redis.call('RPUSH', KEYS[2], id)
		redis.call('SREM', KEYS[3], id)
		recovered = recovered + 1
	else
		redis.call('SADD', KEYS[3], id)
	end
end
return recovered
`)

// finishScript 结束一次执行
//
// KEYS: active, lease, job, delayed, completed, failed, suspects
// ARGV: id, outcome(succeeded|retry|failed), record, runAtMs, keepCompleted, keepFailed, jobPrefix
var finishScript = redis.NewScript(`
redis.call('LREM', KEYS[1], 1, ARGV[1])
redis.call('DEL', KEYS[2])
redis.call('SREM', KEYS[7], ARGV[1])

local function retain(list, keep)
	if keep <= 0 then
		redis.call('DEL', KEYS[3])
		return
	end
	redis.call('SET', KEYS[3], ARGV[3])
	redis.call('LPUSH', list, ARGV[1])
	while redis.call('LLEN', list) > keep do
		local old = redis.call('RPOP', list)
		redis.call('DEL', ARGV[7] .. old)
	end
end

if ARGV[2] == 'retry' then
	redis.call('SET', KEYS[3], ARGV[3])
	redis.call('ZADD', KEYS[4], tonumber(ARGV[4]), ARGV[1])
elseif ARGV[2] == 'succeeded' then
	retain(KEYS[5], tonumber(ARGV[5]))
else
	retain(KEYS[6], tonumber(ARGV[6]))
end
return 1
`)

// retryFailedScript 把 failed 中的任务重新放回 wait
//
// KEYS: failed, job, wait
// ARGV: id, record
var retryFailedScript = redis.NewScript(`
if redis.call('LREM', KEYS[1], 1, ARGV[1]) == 0 then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2])
redis.call('LPUSH', KEYS[3], ARGV[1])
return 1
`)
