package workflows

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/workflow"
	"github.com/LeadWire-CRM/automation_layer/internal/app/system"
	"github.com/LeadWire-CRM/automation_layer/pkg/logger"
)

var _ system.Service = (*Scheduler)(nil)

// Scheduler drives time_elapsed workflows: every interval it asks the engine
// to fire whatever is due. There is no durable schedule state beyond the
// workflow's last_executed; a missed tick is picked up on the next one.
type Scheduler struct {
	engine   *Engine
	log      *logger.Logger
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewScheduler creates a lifecycle-managed trigger scheduler.
func NewScheduler(engine *Engine, interval time.Duration, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("workflow-scheduler")
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		engine:   engine,
		interval: interval,
		log:      log,
	}
}

func (s *Scheduler) Name() string { return "workflow-scheduler" }

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.tick(runCtx)
			}
		}
	}()

	s.log.WithField("interval", s.interval.String()).Info("workflow scheduler started")
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Info("workflow scheduler stopped")
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	if s.engine == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	if err := s.engine.RunDue(ctx, time.Now().UTC()); err != nil {
		s.log.WithError(err).Warn("scheduler tick failed")
	}
}

// RunDue fires every active time_elapsed workflow that is due at now. Other
// trigger types are ignored here; they fire on lead events.
func (e *Engine) RunDue(ctx context.Context, now time.Time) error {
	wfs, err := e.stores.Workflows.ListWorkflows(ctx, "")
	if err != nil {
		return err
	}

	for _, wf := range wfs {
		if !wf.Active {
			continue
		}
		spec, err := workflow.ParseTrigger(wf.Trigger)
		if err == nil {
			err = validateTriggerSpec(spec)
		}
		if err != nil {
			e.skip(wf, "", err)
			continue
		}
		if spec.Type != workflow.TriggerTimeElapsed {
			continue
		}
		e.runElapsed(ctx, wf, spec, now)
	}
	return nil
}

// runElapsed fires one time_elapsed workflow. Schedule mode runs every lead
// in the account each time the cron expression comes due, gated by
// last_executed; after mode runs each lead once per stint in the target
// status. Either way, conditions still filter per lead inside run.
func (e *Engine) runElapsed(ctx context.Context, wf workflow.Workflow, spec workflow.TriggerSpec, now time.Time) {
	lds, err := e.stores.Leads.ListLeads(ctx, wf.AccountID)
	if err != nil {
		e.log.WithError(err).
			WithField("workflow_id", wf.ID).
			Error("lead listing failed")
		return
	}

	if schedule := strings.TrimSpace(spec.Config["schedule"]); schedule != "" {
		sched, err := cron.ParseStandard(schedule)
		if err != nil {
			e.skip(wf, "", err)
			return
		}
		base := wf.LastExecuted
		if base.IsZero() {
			base = wf.CreatedAt
		}
		if sched.Next(base).After(now) {
			return
		}
		for _, ld := range lds {
			e.run(ctx, wf, ld, workflow.TriggerTimeElapsed+":"+ld.ID)
		}
		return
	}

	after, err := time.ParseDuration(strings.TrimSpace(spec.Config["after"]))
	if err != nil {
		e.skip(wf, "", err)
		return
	}
	wantStatus := spec.Config["status"]

	execs, err := e.stores.Executions.ListExecutions(ctx, wf.ID)
	if err != nil {
		e.log.WithError(err).
			WithField("workflow_id", wf.ID).
			Error("execution listing failed")
		return
	}

	for _, ld := range lds {
		if wantStatus != "" && ld.Status != wantStatus {
			continue
		}
		since := ld.StatusChangedAt
		if since.IsZero() {
			since = ld.CreatedAt
		}
		if now.Sub(since) < after {
			continue
		}
		// One firing per lead per stint; a later status change resets the
		// clock and allows another.
		if hasExecutionSince(execs, ld.ID, since) {
			continue
		}
		e.run(ctx, wf, ld, workflow.TriggerTimeElapsed+":"+ld.ID)
	}
}

func hasExecutionSince(execs []workflow.Execution, leadID string, since time.Time) bool {
	suffix := ":" + leadID
	for _, exec := range execs {
		if strings.HasSuffix(exec.TriggeredBy, suffix) && !exec.StartedAt.Before(since) {
			return true
		}
	}
	return false
}
