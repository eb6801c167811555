package queue

import goredis "github.com/redis/go-redis/v9"

/*
These scripts run single-instance (keys are computed from job/queue names
inside Lua rather than declared via KEYS[]): the adapter targets one Redis
primary, the same deployment shape the teacher's sse_bus.go assumes. Each
script is the atomic unit the corresponding adapter method is built around
(§4.1).
*/

// submitFlowScript writes every job envelope in ARGV[1] (a JSON array,
// parent first by convention though order does not matter), wires
// dependsOn/dependents edges, and pushes any job with zero unmet
// dependencies onto its queue's ready list. Entirely atomic: either the
// whole plan lands or none of it does.
var submitFlowScript = goredis.NewScript(`
local jobs = cjson.decode(ARGV[1])
local now = ARGV[2]

for i, j in ipairs(jobs) do
  local key = "job:" .. j.id
  redis.call("HSET", key,
    "id", j.id,
    "parentId", j.parentId or "",
    "name", j.name,
    "queueName", j.queueName,
    "taskId", j.taskId,
    "workspaceId", j.workspaceId,
    "data", cjson.encode(j.data or {}),
    "attempt", 0,
    "maxAttempts", j.maxAttempts,
    "backoffType", j.backoffType,
    "delayMs", j.delayMs,
    "dependsOn", cjson.encode(j.dependsOn or {}),
    "status", "pending",
    "enqueuedAt", now
  )
  if j.parentId and j.parentId ~= "" then
    redis.call("SADD", "job:" .. j.parentId .. ":children", j.id)
  end
end

for i, j in ipairs(jobs) do
  local deps = j.dependsOn or {}
  if #deps > 0 then
    for _, dep in ipairs(deps) do
      redis.call("SADD", "job:" .. j.id .. ":deps", dep)
      redis.call("SADD", "job:" .. dep .. ":dependents", j.id)
    end
  else
    redis.call("RPUSH", "queue:" .. j.queueName .. ":ready", j.id)
  end
end

return jobs[1].id
`)

// ackScript marks jobID completed (idempotent against a second ack of the
// same attempt, satisfying at-least-once delivery), stores its result JSON,
// and promotes any dependent whose last unmet dependency was jobID.
var ackScript = goredis.NewScript(`
local jobID = KEYS[1]
local resultJSON = ARGV[1]
local now = ARGV[2]
local key = "job:" .. jobID

local status = redis.call("HGET", key, "status")
if status == false then
  return redis.error_reply("job not found: " .. jobID)
end
if status == "completed" then
  return 0
end

redis.call("HSET", key, "status", "completed", "completedAt", now)
if resultJSON and resultJSON ~= "" then
  redis.call("HSET", key, "result", resultJSON)
end

local dependents = redis.call("SMEMBERS", "job:" .. jobID .. ":dependents")
for _, depID in ipairs(dependents) do
  redis.call("SREM", "job:" .. depID .. ":deps", jobID)
  local remaining = redis.call("SCARD", "job:" .. depID .. ":deps")
  if remaining == 0 then
    local depKey = "job:" .. depID
    local depStatus = redis.call("HGET", depKey, "status")
    if depStatus == "pending" then
      local depQueue = redis.call("HGET", depKey, "queueName")
      redis.call("RPUSH", "queue:" .. depQueue .. ":ready", depID)
    end
  end
end

return 1
`)

// nackScript records one failed attempt. Within budget and unless the
// caller flags the failure terminal (handler-permanent, §7), it schedules
// a delayed retry (ZADD onto the queue's delayed set, scored by ready-at
// ms — delayMs * 2^(attempt-1)); once attempts are exhausted (or
// immediately, for a terminal failure) it marks the job failed and walks
// its full dependents closure.
//
// That closure mixes two kinds of edge: real step dependents (other
// children gated on this one) and, for every child, the synthetic parent
// node (§4.1: parent depends on every child). Step dependents cascade-fail
// outright — they can never produce a usable result once an upstream
// dependency is gone. The parent must not: it is only ever promoted to its
// ready queue once *all* of its children are terminal, exactly like
// ackScript's promotion guard, so a failing child decrements the parent's
// remaining-deps count and wakes it the same way a completing child does,
// rather than being stamped failed directly. Skipping this distinction
// previously left the parent stuck "running" forever on any child failure,
// since nothing ever re-evaluated its readiness after the first failure
// landed on it via this same cascade.
var nackScript = goredis.NewScript(`
local jobID = KEYS[1]
local errMsg = ARGV[1]
local now = tonumber(ARGV[2])
local terminal = ARGV[3] == "1"
local key = "job:" .. jobID

local attempt = tonumber(redis.call("HGET", key, "attempt")) or 0
local maxAttempts = tonumber(redis.call("HGET", key, "maxAttempts")) or 1
attempt = attempt + 1
redis.call("HSET", key, "attempt", attempt, "errorMsg", errMsg)

if not terminal and attempt < maxAttempts then
  local delayMs = tonumber(redis.call("HGET", key, "delayMs")) or 0
  local backoff = delayMs
  for i = 2, attempt do
    backoff = backoff * 2
  end
  local readyAt = now + backoff
  local queueName = redis.call("HGET", key, "queueName")
  redis.call("HSET", key, "status", "pending")
  redis.call("ZADD", "queue:" .. queueName .. ":delayed", readyAt, jobID)
  return {0, attempt}
end

redis.call("HSET", key, "status", "failed", "completedAt", now)

local stack = {}
for _, d in ipairs(redis.call("SMEMBERS", "job:" .. jobID .. ":dependents")) do
  table.insert(stack, {d, jobID})
end
while #stack > 0 do
  local entry = table.remove(stack)
  local depID, srcID = entry[1], entry[2]
  local depKey = "job:" .. depID
  local depName = redis.call("HGET", depKey, "name")
  if depName == "parent" then
    redis.call("SREM", depKey .. ":deps", srcID)
    local remaining = redis.call("SCARD", depKey .. ":deps")
    local depStatus = redis.call("HGET", depKey, "status")
    if remaining == 0 and depStatus == "pending" then
      local depQueue = redis.call("HGET", depKey, "queueName")
      redis.call("RPUSH", "queue:" .. depQueue .. ":ready", depID)
    end
  else
    local depStatus = redis.call("HGET", depKey, "status")
    if depStatus ~= "failed" and depStatus ~= "completed" then
      redis.call("HSET", depKey, "status", "failed", "completedAt", now,
        "errorMsg", "cascade: dependency " .. jobID .. " failed")
      local more = redis.call("SMEMBERS", depKey .. ":dependents")
      for _, m in ipairs(more) do
        table.insert(stack, {m, depID})
      end
    end
  end
end

return {1, attempt}
`)

// reapScript promotes every delayed job in queueName's ZSET whose ready-at
// score has passed onto the queue's ready list. Run periodically by the
// reaper goroutine.
var reapScript = goredis.NewScript(`
local delayedKey = KEYS[1]
local readyKeyName = KEYS[2]
local now = ARGV[1]

local due = redis.call("ZRANGEBYSCORE", delayedKey, "-inf", now)
for _, jobID in ipairs(due) do
  redis.call("ZREM", delayedKey, jobID)
  redis.call("RPUSH", readyKeyName, jobID)
end
return #due
`)
