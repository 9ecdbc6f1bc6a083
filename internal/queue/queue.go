// Package queue implements named FIFO job queues on Redis with
// at-least-once delivery.
//
// Layout per queue (prefix p, queue q):
//
//	p:q:job:<id>   hash   job fields
//	p:q:wait       list   ids waiting, LPUSH in / RPOP out
//	p:q:active     list   ids reserved by a consumer
//	p:q:completed  set
//	p:q:failed     set
//	p:q:delayed    zset   ids scored by due time (unix ms)
//
// Failed jobs are never retried automatically; RetryFailed is the manual path.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrJobNotFound is returned when a job hash does not exist.
var ErrJobNotFound = errors.New("job not found")

// Client enqueues, reserves and inspects jobs.
type Client struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

// New creates a queue client. prefix namespaces all keys.
func New(rdb redis.UniversalClient, prefix string) *Client {
	if prefix == "" {
		prefix = "reval"
	}
	return &Client{rdb: rdb, prefix: prefix, now: time.Now}
}

// Redis returns the underlying client.
func (c *Client) Redis() redis.UniversalClient {
	return c.rdb
}

type keys struct {
	prefix, wait, active, completed, failed, delayed string
}

func (c *Client) keys(queue string) keys {
	p := c.prefix + ":" + queue + ":"
	return keys{
		prefix:    p + "job:",
		wait:      p + "wait",
		active:    p + "active",
		completed: p + "completed",
		failed:    p + "failed",
		delayed:   p + "delayed",
	}
}

func (k keys) job(id string) string { return k.prefix + id }

// EnqueueOption customizes Enqueue.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	jobID string
	delay time.Duration
}

// WithJobID sets a deterministic id. While a job with that id is waiting,
// active or delayed, Enqueue returns it instead of adding a duplicate.
// A finished job with the id is replaced.
func WithJobID(id string) EnqueueOption {
	return func(o *enqueueOptions) { o.jobID = id }
}

// WithDelay makes the job eligible only after d.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) { o.delay = d }
}

var enqueueScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if state and state ~= 'completed' and state ~= 'failed' then
  return {0, state}
end
if state then
  redis.call('SREM', KEYS[4], ARGV[1])
  redis.call('SREM', KEYS[5], ARGV[1])
  redis.call('DEL', KEYS[1])
end
local s = 'waiting'
if tonumber(ARGV[5]) > 0 then s = 'delayed' end
redis.call('HSET', KEYS[1], 'name', ARGV[2], 'data', ARGV[3], 'state', s, 'attempts', '0', 'enqueued_at', ARGV[4])
if s == 'delayed' then
  redis.call('ZADD', KEYS[3], ARGV[5], ARGV[1])
else
  redis.call('LPUSH', KEYS[2], ARGV[1])
end
return {1, s}
`)

// Enqueue validates payload and adds a job to queue. The returned bool is
// false when an existing unfinished job with the same id was kept.
func (c *Client) Enqueue(ctx context.Context, queue, name string, payload Payload, opts ...EnqueueOption) (*Job, bool, error) {
	if payload == nil {
		return nil, false, fmt.Errorf("enqueue %s: nil payload", queue)
	}
	if err := payload.Validate(); err != nil {
		return nil, false, fmt.Errorf("enqueue %s: %w", queue, err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, false, fmt.Errorf("enqueue %s: marshal payload: %w", queue, err)
	}

	o := enqueueOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	id := o.jobID
	if id == "" {
		id = uuid.NewString()
	}

	now := c.now()
	var dueAt int64
	if o.delay > 0 {
		dueAt = now.Add(o.delay).UnixMilli()
	}

	k := c.keys(queue)
	res, err := enqueueScript.Run(ctx, c.rdb,
		[]string{k.job(id), k.wait, k.delayed, k.completed, k.failed},
		id, name, string(data), now.UnixMilli(), dueAt,
	).Slice()
	if err != nil {
		return nil, false, fmt.Errorf("enqueue %s: %w", queue, err)
	}

	created := len(res) > 0 && toInt64(res[0]) == 1
	if !created {
		existing, err := c.Get(ctx, queue, id)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	state := StateWaiting
	if len(res) > 1 {
		if s, ok := res[1].(string); ok {
			state = State(s)
		}
	}
	return &Job{
		ID:         id,
		Queue:      queue,
		Name:       name,
		Data:       data,
		State:      state,
		EnqueuedAt: time.UnixMilli(now.UnixMilli()),
	}, true, nil
}

// Reserve moves the next waiting job to active and returns it. A timeout
// of zero polls without blocking. Returns nil, nil when nothing is waiting.
func (c *Client) Reserve(ctx context.Context, queue string, timeout time.Duration) (*Job, error) {
	k := c.keys(queue)
	for {
		var id string
		var err error
		if timeout > 0 {
			id, err = c.rdb.BRPopLPush(ctx, k.wait, k.active, timeout).Result()
		} else {
			id, err = c.rdb.RPopLPush(ctx, k.wait, k.active).Result()
		}
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reserve %s: %w", queue, err)
		}

		exists, err := c.rdb.Exists(ctx, k.job(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("reserve %s: %w", queue, err)
		}
		if exists == 0 {
			// Cleaned while waiting; drop the orphan id and try again.
			c.rdb.LRem(ctx, k.active, 1, id)
			continue
		}

		_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k.job(id), "state", string(StateActive), "processed_at", c.now().UnixMilli())
			pipe.HIncrBy(ctx, k.job(id), "attempts", 1)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("reserve %s: mark active: %w", queue, err)
		}
		return c.Get(ctx, queue, id)
	}
}

// Complete moves an active job to completed.
func (c *Client) Complete(ctx context.Context, job *Job, result string) error {
	return c.finish(ctx, job, StateCompleted, "error", "result", result)
}

// Fail moves an active job to failed and records cause.
func (c *Client) Fail(ctx context.Context, job *Job, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return c.finish(ctx, job, StateFailed, "result", "error", msg)
}

func (c *Client) finish(ctx context.Context, job *Job, state State, clearField, field, value string) error {
	k := c.keys(job.Queue)
	target := k.completed
	if state == StateFailed {
		target = k.failed
	}
	now := c.now()
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, k.active, 0, job.ID)
		pipe.SAdd(ctx, target, job.ID)
		pipe.HSet(ctx, k.job(job.ID), "state", string(state), field, value, "finished_at", now.UnixMilli())
		pipe.HDel(ctx, k.job(job.ID), clearField)
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark %s job %s %s: %w", job.Queue, job.ID, state, err)
	}
	job.State = state
	job.FinishedAt = time.UnixMilli(now.UnixMilli())
	if state == StateFailed {
		job.Error = value
	} else {
		job.Result = value
	}
	return nil
}

// Get loads a job by id.
func (c *Client) Get(ctx context.Context, queue, id string) (*Job, error) {
	h, err := c.rdb.HGetAll(ctx, c.keys(queue).job(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get %s job %s: %w", queue, id, err)
	}
	if len(h) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrJobNotFound, queue, id)
	}
	return jobFromHash(queue, id, h), nil
}

// Counts returns the number of jobs in each state.
func (c *Client) Counts(ctx context.Context, queue string) (Counts, error) {
	k := c.keys(queue)
	var wait, active, completed, failed, delayed *redis.IntCmd
	_, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		wait = pipe.LLen(ctx, k.wait)
		active = pipe.LLen(ctx, k.active)
		completed = pipe.SCard(ctx, k.completed)
		failed = pipe.SCard(ctx, k.failed)
		delayed = pipe.ZCard(ctx, k.delayed)
		return nil
	})
	if err != nil {
		return Counts{}, fmt.Errorf("counts %s: %w", queue, err)
	}
	return Counts{
		Waiting:   wait.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
		Delayed:   delayed.Val(),
	}, nil
}

// IDs returns the job ids in a state. Lists are returned oldest first.
func (c *Client) IDs(ctx context.Context, queue string, state State) ([]string, error) {
	k := c.keys(queue)
	var ids []string
	var err error
	switch state {
	case StateWaiting:
		ids, err = c.rdb.LRange(ctx, k.wait, 0, -1).Result()
		reverse(ids)
	case StateActive:
		ids, err = c.rdb.LRange(ctx, k.active, 0, -1).Result()
		reverse(ids)
	case StateCompleted:
		ids, err = c.rdb.SMembers(ctx, k.completed).Result()
	case StateFailed:
		ids, err = c.rdb.SMembers(ctx, k.failed).Result()
	case StateDelayed:
		ids, err = c.rdb.ZRange(ctx, k.delayed, 0, -1).Result()
	default:
		return nil, fmt.Errorf("unknown job state %q", state)
	}
	if err != nil {
		return nil, fmt.Errorf("list %s %s: %w", queue, state, err)
	}
	return ids, nil
}

// List loads up to limit jobs in a state (limit <= 0 means all).
func (c *Client) List(ctx context.Context, queue string, state State, limit int) ([]*Job, error) {
	ids, err := c.IDs(ctx, queue, state)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		j, err := c.Get(ctx, queue, id)
		if errors.Is(err, ErrJobNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// Clean removes every job in the given states, or in all states when none
// are given. Returns the number of jobs removed.
func (c *Client) Clean(ctx context.Context, queue string, states ...State) (int, error) {
	if len(states) == 0 {
		states = AllStates
	}
	k := c.keys(queue)
	removed := 0
	for _, st := range states {
		ids, err := c.IDs(ctx, queue, st)
		if err != nil {
			return removed, err
		}
		container := map[State]string{
			StateWaiting:   k.wait,
			StateActive:    k.active,
			StateCompleted: k.completed,
			StateFailed:    k.failed,
			StateDelayed:   k.delayed,
		}[st]
		_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, id := range ids {
				pipe.Del(ctx, k.job(id))
			}
			pipe.Del(ctx, container)
			return nil
		})
		if err != nil {
			return removed, fmt.Errorf("clean %s %s: %w", queue, st, err)
		}
		removed += len(ids)
	}
	return removed, nil
}

// RetryFailed moves every failed job back to waiting. Attempts are kept.
func (c *Client) RetryFailed(ctx context.Context, queue string) (int, error) {
	k := c.keys(queue)
	ids, err := c.rdb.SMembers(ctx, k.failed).Result()
	if err != nil {
		return 0, fmt.Errorf("retry %s: %w", queue, err)
	}
	for _, id := range ids {
		_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SRem(ctx, k.failed, id)
			pipe.HSet(ctx, k.job(id), "state", string(StateWaiting))
			pipe.HDel(ctx, k.job(id), "error", "finished_at")
			pipe.LPush(ctx, k.wait, id)
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("retry %s job %s: %w", queue, id, err)
		}
	}
	return len(ids), nil
}

var promoteScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('HSET', ARGV[2] .. id, 'state', 'waiting')
  redis.call('LPUSH', KEYS[2], id)
end
return #ids
`)

// PromoteDelayed moves delayed jobs that are due to waiting.
func (c *Client) PromoteDelayed(ctx context.Context, queue string) (int, error) {
	k := c.keys(queue)
	n, err := promoteScript.Run(ctx, c.rdb, []string{k.delayed, k.wait},
		c.now().UnixMilli(), k.prefix).Int()
	if err != nil {
		return 0, fmt.Errorf("promote %s: %w", queue, err)
	}
	return n, nil
}

// Recover moves every active job back to waiting. Use only when no
// consumer is running, e.g. after a crash left jobs reserved.
func (c *Client) Recover(ctx context.Context, queue string) (int, error) {
	k := c.keys(queue)
	moved := 0
	for {
		id, err := c.rdb.RPopLPush(ctx, k.active, k.wait).Result()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("requeue %s: %w", queue, err)
		}
		c.rdb.HSet(ctx, k.job(id), "state", string(StateWaiting))
		moved++
	}
}

func reverse(ids []string) {
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}
