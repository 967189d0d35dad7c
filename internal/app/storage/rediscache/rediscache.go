package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/workflow"
	"github.com/LeadWire-CRM/automation_layer/internal/app/storage"
	"github.com/LeadWire-CRM/automation_layer/pkg/logger"
)

// DefaultTTL bounds how stale a cached workflow definition may get when an
// invalidation is lost.
const DefaultTTL = 5 * time.Minute

// WorkflowStore is a read-through cache in front of another WorkflowStore.
// Trigger evaluation lists every workflow of an account on each lead event,
// so those reads dominate; definitions change rarely. Cache misses and redis
// outages fall back to the inner store.
type WorkflowStore struct {
	inner storage.WorkflowStore
	rdb   *redis.Client
	ttl   time.Duration
	log   *logger.Logger
}

var _ storage.WorkflowStore = (*WorkflowStore)(nil)

// New wraps inner with a redis-backed cache.
func New(inner storage.WorkflowStore, rdb *redis.Client, ttl time.Duration, log *logger.Logger) *WorkflowStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = logger.NewDefault("rediscache")
	}
	return &WorkflowStore{inner: inner, rdb: rdb, ttl: ttl, log: log}
}

func workflowKey(id string) string {
	return "workflow:" + id
}

func accountKey(accountID string) string {
	return "workflows:account:" + accountID
}

func (c *WorkflowStore) CreateWorkflow(ctx context.Context, wf workflow.Workflow) (workflow.Workflow, error) {
	created, err := c.inner.CreateWorkflow(ctx, wf)
	if err != nil {
		return workflow.Workflow{}, err
	}
	c.invalidate(ctx, workflowKey(created.ID), accountKey(created.AccountID))
	return created, nil
}

func (c *WorkflowStore) UpdateWorkflow(ctx context.Context, wf workflow.Workflow) (workflow.Workflow, error) {
	updated, err := c.inner.UpdateWorkflow(ctx, wf)
	if err != nil {
		return workflow.Workflow{}, err
	}
	c.invalidate(ctx, workflowKey(updated.ID), accountKey(updated.AccountID))
	return updated, nil
}

func (c *WorkflowStore) GetWorkflow(ctx context.Context, id string) (workflow.Workflow, error) {
	key := workflowKey(id)
	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var wf workflow.Workflow
		if err := json.Unmarshal(raw, &wf); err == nil {
			return wf, nil
		}
		c.invalidate(ctx, key)
	} else if err != redis.Nil {
		c.log.WithError(err).Debug("redis get failed; reading through")
	}

	wf, err := c.inner.GetWorkflow(ctx, id)
	if err != nil {
		return workflow.Workflow{}, err
	}
	c.store(ctx, key, wf)
	return wf, nil
}

func (c *WorkflowStore) ListWorkflows(ctx context.Context, accountID string) ([]workflow.Workflow, error) {
	// Unscoped listings are admin traffic; serve them straight from the
	// inner store.
	if accountID == "" {
		return c.inner.ListWorkflows(ctx, accountID)
	}

	key := accountKey(accountID)
	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var wfs []workflow.Workflow
		if err := json.Unmarshal(raw, &wfs); err == nil {
			return wfs, nil
		}
		c.invalidate(ctx, key)
	} else if err != redis.Nil {
		c.log.WithError(err).Debug("redis get failed; reading through")
	}

	wfs, err := c.inner.ListWorkflows(ctx, accountID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, wfs)
	return wfs, nil
}

func (c *WorkflowStore) DeleteWorkflow(ctx context.Context, id string) error {
	keys := []string{workflowKey(id)}
	if wf, err := c.inner.GetWorkflow(ctx, id); err == nil {
		keys = append(keys, accountKey(wf.AccountID))
	}

	if err := c.inner.DeleteWorkflow(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, keys...)
	return nil
}

func (c *WorkflowStore) RecordWorkflowRun(ctx context.Context, id string, at time.Time) (workflow.Workflow, error) {
	wf, err := c.inner.RecordWorkflowRun(ctx, id, at)
	if err != nil {
		return workflow.Workflow{}, err
	}
	c.invalidate(ctx, workflowKey(id), accountKey(wf.AccountID))
	return wf, nil
}

func (c *WorkflowStore) store(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.WithError(err).Debug("redis set failed")
	}
}

func (c *WorkflowStore) invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.WithError(err).Debug("redis del failed")
	}
}
