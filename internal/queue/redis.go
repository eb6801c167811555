package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowforge/mediaflow/internal/domain"
	"github.com/flowforge/mediaflow/internal/platform/logger"
)

var tracer = otel.Tracer("github.com/flowforge/mediaflow/internal/queue")

// jobEnvelope is the JSON shape handed to submitFlowScript, distinct from
// the domain.StepNode/ParentNode it is built from.
type jobEnvelope struct {
	ID          string         `json:"id"`
	ParentID    string         `json:"parentId,omitempty"`
	Name        string         `json:"name"`
	QueueName   string         `json:"queueName"`
	TaskID      string         `json:"taskId"`
	WorkspaceID string         `json:"workspaceId"`
	Data        map[string]any `json:"data,omitempty"`
	MaxAttempts int            `json:"maxAttempts"`
	BackoffType string         `json:"backoffType"`
	DelayMs     int64          `json:"delayMs"`
	DependsOn   []string       `json:"dependsOn,omitempty"`
}

// RedisBackend implements Backend on github.com/redis/go-redis/v9 (§4.1),
// generalized from the teacher's sse_bus.go single-channel pub/sub client
// into the full durable-queue adapter.
type RedisBackend struct {
	log *logger.Logger
	rdb *goredis.Client
}

// NewRedisBackend dials addr and verifies connectivity before returning,
// matching the teacher's sseBus constructor's fail-fast Ping.
func NewRedisBackend(ctx context.Context, addr string, log *logger.Logger) (*RedisBackend, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: redis ping: %v", domain.ErrBackendUnavailable, err)
	}
	return &RedisBackend{log: log.With("service", "RedisBackend"), rdb: rdb}, nil
}

// NewRedisBackendFromClient wraps an already-constructed client (used by
// tests against miniredis, which fabricates its own *redis.Client).
func NewRedisBackendFromClient(rdb *goredis.Client, log *logger.Logger) *RedisBackend {
	return &RedisBackend{log: log.With("service", "RedisBackend"), rdb: rdb}
}

func (b *RedisBackend) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

func classifyRedisErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, goredis.Nil) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
}

func (b *RedisBackend) SubmitFlow(ctx context.Context, plan domain.FlowPlan) (string, error) {
	ctx, span := tracer.Start(ctx, "queue.SubmitFlow")
	defer span.End()

	parentID := newJobID()
	envelopes := make([]jobEnvelope, 0, len(plan.Children)+1)

	childIDs := make(map[string]string, len(plan.Children)) // stepKind -> jobID
	for _, c := range plan.Children {
		childIDs[c.Name] = newJobID()
	}

	parentDeps := make([]string, 0, len(plan.Children))
	for _, c := range plan.Children {
		deps := make([]string, 0, len(c.DependsOn))
		for _, d := range c.DependsOn {
			deps = append(deps, childIDs[d])
		}
		envelopes = append(envelopes, jobEnvelope{
			ID:          childIDs[c.Name],
			ParentID:    parentID,
			Name:        c.Name,
			QueueName:   c.QueueName,
			TaskID:      c.Data.TaskID,
			WorkspaceID: c.Data.WorkspaceID,
			Data:        stepInputToMap(c.Data),
			MaxAttempts: c.Opts.Attempts,
			BackoffType: c.Opts.Backoff.Type,
			DelayMs:     c.Opts.Backoff.DelayMs,
			DependsOn:   deps,
		})
		parentDeps = append(parentDeps, childIDs[c.Name])
	}

	envelopes = append([]jobEnvelope{{
		ID:          parentID,
		Name:        "parent",
		QueueName:   plan.Parent.QueueName,
		TaskID:      plan.Parent.TaskID,
		WorkspaceID: plan.Parent.WorkspaceID,
		MaxAttempts: 1,
		BackoffType: "none",
		DependsOn:   parentDeps,
	}}, envelopes...)

	raw, err := json.Marshal(envelopes)
	if err != nil {
		return "", fmt.Errorf("marshal job envelopes: %w", err)
	}

	if err := submitFlowScript.Run(ctx, b.rdb, nil, string(raw), nowMs()).Err(); err != nil {
		return "", classifyRedisErr(err)
	}
	return parentID, nil
}

func (b *RedisBackend) Claim(ctx context.Context, queueName string) (*Job, error) {
	ctx, span := tracer.Start(ctx, "queue.Claim", trace.WithAttributes())
	defer span.End()

	res, err := b.rdb.BLPop(ctx, 0, readyKey(queueName)).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, classifyRedisErr(err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("%w: malformed BLPOP reply", domain.ErrBackendUnavailable)
	}
	jobID := res[1]

	vals, err := b.rdb.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return nil, classifyRedisErr(err)
	}
	job, err := jobFromHash(jobID, vals)
	if err != nil {
		return nil, err
	}
	if err := b.rdb.HSet(ctx, jobKey(jobID), "status", "running").Err(); err != nil {
		return nil, classifyRedisErr(err)
	}
	return job, nil
}

func (b *RedisBackend) Ack(ctx context.Context, jobID string, result *domain.StepResult) error {
	var raw string
	if result != nil {
		buf, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal step result: %w", err)
		}
		raw = string(buf)
	}
	err := ackScript.Run(ctx, b.rdb, []string{jobID}, raw, nowMs()).Err()
	if err != nil {
		return classifyRedisErr(err)
	}
	return nil
}

func (b *RedisBackend) Nack(ctx context.Context, jobID string, handlerErr error, terminal bool) error {
	msg := ""
	if handlerErr != nil {
		msg = handlerErr.Error()
	}
	terminalFlag := "0"
	if terminal {
		terminalFlag = "1"
	}
	res, err := nackScript.Run(ctx, b.rdb, []string{jobID}, msg, nowMs(), terminalFlag).Result()
	if err != nil {
		return classifyRedisErr(err)
	}
	_ = res // [exhausted(0|1), attempt] — callers needing attempt count re-read the job hash.
	return nil
}

func (b *RedisBackend) GetChildrenValues(ctx context.Context, parentJobID string) (map[string]domain.StepResult, error) {
	ids, err := b.rdb.SMembers(ctx, childrenKey(parentJobID)).Result()
	if err != nil {
		return nil, classifyRedisErr(err)
	}
	out := make(map[string]domain.StepResult, len(ids))
	for _, id := range ids {
		vals, err := b.rdb.HGetAll(ctx, jobKey(id)).Result()
		if err != nil {
			return nil, classifyRedisErr(err)
		}
		if vals["status"] != "completed" {
			continue
		}
		sr := domain.StepResult{StepKind: vals["name"], Status: domain.StepCompleted}
		if raw := vals["result"]; raw != "" {
			if err := json.Unmarshal([]byte(raw), &sr); err != nil {
				return nil, fmt.Errorf("unmarshal step result for %s: %w", id, err)
			}
		}
		out[vals["name"]] = sr
	}
	return out, nil
}

// ChildStatus is the all-statuses view orchestrators need beyond
// GetChildrenValues's completed-only contract, to build errorLog over
// failed/cascade-failed children (§4.4 step 3).
type ChildStatus struct {
	StepKind string
	Status   domain.StepStatus
	Error    string
}

func (b *RedisBackend) GetChildrenStatus(ctx context.Context, parentJobID string) (map[string]ChildStatus, error) {
	ids, err := b.rdb.SMembers(ctx, childrenKey(parentJobID)).Result()
	if err != nil {
		return nil, classifyRedisErr(err)
	}
	out := make(map[string]ChildStatus, len(ids))
	for _, id := range ids {
		vals, err := b.rdb.HGetAll(ctx, jobKey(id)).Result()
		if err != nil {
			return nil, classifyRedisErr(err)
		}
		out[vals["name"]] = ChildStatus{
			StepKind: vals["name"],
			Status:   domain.StepStatus(vals["status"]),
			Error:    vals["errorMsg"],
		}
	}
	return out, nil
}

func (b *RedisBackend) UpdateProgress(ctx context.Context, jobID string, pct float64) error {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	pipe := b.rdb.TxPipeline()
	pipe.Set(ctx, progressKey(jobID), pct, 24*time.Hour)
	pipe.Publish(ctx, progressChannel(jobID), pct)
	if _, err := pipe.Exec(ctx); err != nil {
		return classifyRedisErr(err)
	}
	return nil
}

func (b *RedisBackend) Counts(ctx context.Context, queueName string) (Counts, error) {
	pipe := b.rdb.Pipeline()
	waiting := pipe.LLen(ctx, readyKey(queueName))
	delayed := pipe.ZCard(ctx, delayedKey(queueName))
	completed := pipe.HGet(ctx, countersKey(queueName), "completed")
	failed := pipe.HGet(ctx, countersKey(queueName), "failed")
	active := pipe.HGet(ctx, countersKey(queueName), "active")
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return Counts{}, classifyRedisErr(err)
	}
	return Counts{
		Waiting:   waiting.Val(),
		Delayed:   delayed.Val(),
		Completed: parseCountReply(completed),
		Failed:    parseCountReply(failed),
		Active:    parseCountReply(active),
	}, nil
}

func parseCountReply(cmd *goredis.StringCmd) int64 {
	v, err := cmd.Int64()
	if err != nil {
		return 0
	}
	return v
}

func jobFromHash(id string, vals map[string]string) (*Job, error) {
	if len(vals) == 0 {
		return nil, fmt.Errorf("%w: job %s not found", domain.ErrBackendUnavailable, id)
	}
	var data map[string]any
	if raw := vals["data"]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &data)
	}
	var deps []string
	if raw := vals["dependsOn"]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &deps)
	}
	return &Job{
		ID:          id,
		ParentID:    vals["parentId"],
		Kind:        vals["name"],
		QueueName:   vals["queueName"],
		TaskID:      vals["taskId"],
		WorkspaceID: vals["workspaceId"],
		Data:        data,
		Attempt:     atoiDefault(vals["attempt"], 0),
		MaxAttempts: atoiDefault(vals["maxAttempts"], 1),
		BackoffType: vals["backoffType"],
		DelayMs:     int64(atoiDefault(vals["delayMs"], 0)),
		DependsOn:   deps,
	}, nil
}

func stepInputToMap(in domain.StepInput) map[string]any {
	buf, err := json.Marshal(in)
	if err != nil {
		return nil
	}
	var out map[string]any
	_ = json.Unmarshal(buf, &out)
	return out
}
