package rediscache

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/workflow"
	"github.com/LeadWire-CRM/automation_layer/internal/app/storage/memory"
)

func TestFallsBackWhenRedisUnavailable(t *testing.T) {
	inner := memory.New()
	// Nothing listens here; every redis call fails and reads go through.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	store := New(inner, rdb, time.Minute, nil)

	ctx := context.Background()
	created, err := store.CreateWorkflow(ctx, workflow.Workflow{
		AccountID: "acct-1",
		Name:      "welcome",
		Trigger:   json.RawMessage(`{"type":"lead_created"}`),
		Active:    true,
	})
	if err != nil {
		t.Fatalf("create workflow: %v", err)
	}

	fetched, err := store.GetWorkflow(ctx, created.ID)
	if err != nil {
		t.Fatalf("get workflow: %v", err)
	}
	if fetched.Name != "welcome" {
		t.Fatalf("unexpected workflow %+v", fetched)
	}

	listed, err := store.ListWorkflows(ctx, "acct-1")
	if err != nil {
		t.Fatalf("list workflows: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 workflow, got %d", len(listed))
	}
}

func TestCacheInvalidationIntegration(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set; skipping redis integration test")
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	inner := memory.New()
	store := New(inner, rdb, time.Minute, nil)

	ctx := context.Background()
	created, err := store.CreateWorkflow(ctx, workflow.Workflow{
		AccountID: "acct-cache",
		Name:      "original",
		Trigger:   json.RawMessage(`{"type":"lead_created"}`),
		Active:    true,
	})
	if err != nil {
		t.Fatalf("create workflow: %v", err)
	}

	// Prime the account listing, then edit and make sure the cache does not
	// serve the stale definition.
	if _, err := store.ListWorkflows(ctx, "acct-cache"); err != nil {
		t.Fatalf("list workflows: %v", err)
	}

	created.Name = "renamed"
	if _, err := store.UpdateWorkflow(ctx, created); err != nil {
		t.Fatalf("update workflow: %v", err)
	}

	listed, err := store.ListWorkflows(ctx, "acct-cache")
	if err != nil {
		t.Fatalf("list workflows: %v", err)
	}
	if len(listed) != 1 || listed[0].Name != "renamed" {
		t.Fatalf("stale listing after update: %+v", listed)
	}

	ran, err := store.RecordWorkflowRun(ctx, created.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("record run: %v", err)
	}
	fetched, err := store.GetWorkflow(ctx, created.ID)
	if err != nil {
		t.Fatalf("get workflow: %v", err)
	}
	if fetched.ExecutionCount != ran.ExecutionCount {
		t.Fatalf("cached counter is stale: %d != %d", fetched.ExecutionCount, ran.ExecutionCount)
	}
}
