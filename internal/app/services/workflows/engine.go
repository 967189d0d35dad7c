package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/lead"
	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/messaging"
	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/task"
	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/workflow"
	"github.com/LeadWire-CRM/automation_layer/internal/app/metrics"
	"github.com/LeadWire-CRM/automation_layer/internal/app/services/leads"
	"github.com/LeadWire-CRM/automation_layer/internal/app/storage"
	"github.com/LeadWire-CRM/automation_layer/pkg/logger"
)

// Sender delivers messages for send_* actions. The in-process messaging
// service satisfies it directly; a loopback HTTP client does when the
// messaging endpoints live behind MESSAGING_BASE_URL.
type Sender interface {
	Send(ctx context.Context, msg messaging.Message) (messaging.Receipt, error)
}

// EngineStores bundles the storage the engine touches.
type EngineStores struct {
	Workflows  storage.WorkflowStore
	Executions storage.ExecutionStore
	ActionLogs storage.ActionLogStore
	Leads      storage.LeadStore
	Tasks      storage.TaskStore
}

var _ leads.AutomationHook = (*Engine)(nil)

// Engine evaluates triggers against lead events and runs matched workflows.
// Everything happens synchronously in the caller's goroutine: no queue, no
// retries. Failures are logged, recorded on the execution and never surfaced
// to the caller.
type Engine struct {
	stores        EngineStores
	sender        Sender
	events        *EventLog
	actionTimeout time.Duration
	log           *logger.Logger
}

// NewEngine constructs the evaluation engine.
func NewEngine(stores EngineStores, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewDefault("workflow-engine")
	}
	return &Engine{
		stores:        stores,
		events:        NewEventLog(512),
		actionTimeout: 10 * time.Second,
		log:           log,
	}
}

// WithSender assigns the message sender used by send_* actions. Without one,
// send actions fail and are recorded like any other action failure.
func (e *Engine) WithSender(sender Sender) {
	e.sender = sender
}

// WithActionTimeout bounds each individual action.
func (e *Engine) WithActionTimeout(d time.Duration) {
	if d > 0 {
		e.actionTimeout = d
	}
}

// Events exposes the engine event buffer for streaming and inspection.
func (e *Engine) Events() *EventLog {
	return e.events
}

// LeadCreated evaluates lead_created workflows for a new lead.
func (e *Engine) LeadCreated(ctx context.Context, ld lead.Lead) {
	e.evaluate(ctx, workflow.TriggerLeadCreated, ld, lead.StatusChange{})
}

// LeadStatusChanged evaluates lead_status_changed workflows for a pipeline
// transition.
func (e *Engine) LeadStatusChanged(ctx context.Context, change lead.StatusChange, ld lead.Lead) {
	e.evaluate(ctx, workflow.TriggerLeadStatusChanged, ld, change)
}

// evaluate walks every workflow of the lead's account and runs the ones
// whose trigger matches the event. A workflow with an unparsable or invalid
// trigger is skipped on its own; the rest of the batch still runs.
func (e *Engine) evaluate(ctx context.Context, kind string, ld lead.Lead, change lead.StatusChange) {
	wfs, err := e.stores.Workflows.ListWorkflows(ctx, ld.AccountID)
	if err != nil {
		e.log.WithError(err).
			WithField("account_id", ld.AccountID).
			Error("workflow listing failed")
		return
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
			e.skip(wf, ld.ID, err)
			continue
		}
		if spec.Type != kind || !triggerMatches(spec, ld, change) {
			continue
		}

		metrics.RecordTriggerMatch(spec.Type)
		e.events.Log(Event{
			Type:       EventWorkflowMatched,
			AccountID:  wf.AccountID,
			WorkflowID: wf.ID,
			LeadID:     ld.ID,
			Message:    spec.Type,
		})
		e.run(ctx, wf, ld, spec.Type+":"+ld.ID)
	}
}

func triggerMatches(spec workflow.TriggerSpec, ld lead.Lead, change lead.StatusChange) bool {
	switch spec.Type {
	case workflow.TriggerLeadStatusChanged:
		return spec.Config["status"] == change.NewStatus
	case workflow.TriggerLeadCreated:
		source := spec.Config["source"]
		return source == "" || source == ld.Source
	}
	return false
}

// run executes one matched workflow against a lead: conditions, execution
// bookkeeping, actions, finalize.
func (e *Engine) run(ctx context.Context, wf workflow.Workflow, ld lead.Lead, triggeredBy string) {
	conds, err := workflow.ParseConditions(wf.Conditions)
	if err != nil {
		e.skip(wf, ld.ID, err)
		return
	}
	if len(conds) > 0 {
		doc, err := json.Marshal(leadDocument(ld))
		if err != nil {
			e.skip(wf, ld.ID, err)
			return
		}
		ok, err := conditionsMatch(conds, doc)
		if err != nil {
			e.skip(wf, ld.ID, err)
			return
		}
		if !ok {
			e.events.Log(Event{
				Type:       EventWorkflowSkipped,
				AccountID:  wf.AccountID,
				WorkflowID: wf.ID,
				LeadID:     ld.ID,
				Message:    "conditions not met",
			})
			return
		}
	}

	started := time.Now().UTC()
	exec, err := e.stores.Executions.CreateExecution(ctx, workflow.Execution{
		WorkflowID:  wf.ID,
		AccountID:   wf.AccountID,
		Status:      workflow.ExecutionRunning,
		StartedAt:   started,
		TriggeredBy: triggeredBy,
	})
	if err != nil {
		e.log.WithError(err).
			WithField("workflow_id", wf.ID).
			Error("execution create failed")
		return
	}
	if _, err := e.stores.Workflows.RecordWorkflowRun(ctx, wf.ID, started); err != nil {
		e.log.WithError(err).
			WithField("workflow_id", wf.ID).
			Warn("run bookkeeping failed")
	}

	status, firstErr := e.runActions(ctx, wf, ld, exec)

	exec.Status = status
	exec.CompletedAt = time.Now().UTC()
	if firstErr != nil {
		exec.Error = firstErr.Error()
	}
	if _, err := e.stores.Executions.UpdateExecution(ctx, exec); err != nil {
		e.log.WithError(err).
			WithField("execution_id", exec.ID).
			Error("execution finalize failed")
	}
	metrics.RecordWorkflowExecution(status, time.Since(started))

	eventType, severity := EventWorkflowCompleted, SeverityInfo
	if status == workflow.ExecutionFailed {
		eventType, severity = EventWorkflowFailed, SeverityError
	}
	event := Event{
		Type:        eventType,
		Severity:    severity,
		AccountID:   wf.AccountID,
		WorkflowID:  wf.ID,
		ExecutionID: exec.ID,
		LeadID:      ld.ID,
	}
	if firstErr != nil {
		event.Error = firstErr.Error()
	}
	e.events.Log(event)

	e.log.WithField("workflow_id", wf.ID).
		WithField("execution_id", exec.ID).
		WithField("lead_id", ld.ID).
		WithField("status", status).
		Info("workflow executed")
}

// runActions walks the actions blob sequentially. Individual failures are
// recorded and do not stop later actions; a malformed blob fails the run
// before any action.
func (e *Engine) runActions(ctx context.Context, wf workflow.Workflow, ld lead.Lead, exec workflow.Execution) (string, error) {
	specs, err := workflow.ParseActions(wf.Actions)
	if err != nil {
		return workflow.ExecutionFailed, err
	}

	var firstErr error
	for _, action := range specs {
		start := time.Now()
		result, err := e.runAction(ctx, action, wf, ld)
		metrics.RecordActionExecution(action.Type, time.Since(start), err == nil)

		entry := workflow.ActionLog{
			AccountID:   wf.AccountID,
			WorkflowID:  wf.ID,
			ExecutionID: exec.ID,
			LeadID:      ld.ID,
			ActionType:  action.Type,
			Result:      result,
		}
		event := Event{
			Type:        EventActionSucceeded,
			AccountID:   wf.AccountID,
			WorkflowID:  wf.ID,
			ExecutionID: exec.ID,
			LeadID:      ld.ID,
			ActionType:  action.Type,
			Message:     result,
		}
		if err != nil {
			entry.Error = err.Error()
			event.Type = EventActionFailed
			event.Severity = SeverityWarning
			event.Error = err.Error()
			if firstErr == nil {
				firstErr = err
			}
			e.log.WithError(err).
				WithField("workflow_id", wf.ID).
				WithField("action_type", action.Type).
				Warn("action failed")
		}
		if _, logErr := e.stores.ActionLogs.AppendActionLog(ctx, entry); logErr != nil {
			e.log.WithError(logErr).
				WithField("execution_id", exec.ID).
				Warn("action log append failed")
		}
		e.events.Log(event)
	}

	if firstErr != nil {
		return workflow.ExecutionFailed, firstErr
	}
	return workflow.ExecutionCompleted, nil
}

func (e *Engine) runAction(ctx context.Context, action workflow.ActionSpec, wf workflow.Workflow, ld lead.Lead) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.actionTimeout)
	defer cancel()

	switch action.Type {
	case workflow.ActionSendWhatsApp:
		return e.sendMessage(ctx, messaging.Message{
			Channel:   messaging.ChannelWhatsApp,
			AccountID: wf.AccountID,
			LeadID:    ld.ID,
			To:        stringConfig(action.Config, "to", ld.Phone),
			Template:  stringConfig(action.Config, "template", ""),
			Body:      stringConfig(action.Config, "message", ""),
		})
	case workflow.ActionSendEmail:
		return e.sendMessage(ctx, messaging.Message{
			Channel:   messaging.ChannelEmail,
			AccountID: wf.AccountID,
			LeadID:    ld.ID,
			To:        stringConfig(action.Config, "to", ld.Email),
			Subject:   stringConfig(action.Config, "subject", ""),
			Body:      stringConfig(action.Config, "body", ""),
		})
	case workflow.ActionSendSMS:
		return e.sendMessage(ctx, messaging.Message{
			Channel:   messaging.ChannelSMS,
			AccountID: wf.AccountID,
			LeadID:    ld.ID,
			To:        stringConfig(action.Config, "to", ld.Phone),
			Body:      stringConfig(action.Config, "message", ""),
		})
	case workflow.ActionUpdateLead:
		return e.updateLead(ctx, action.Config, ld)
	case workflow.ActionCreateTask:
		return e.createTask(ctx, action.Config, wf, ld)
	case workflow.ActionWait:
		raw := stringConfig(action.Config, "duration", "")
		d, err := time.ParseDuration(raw)
		if err != nil {
			return "", fmt.Errorf("wait: invalid duration %q", raw)
		}
		// Recorded, not awaited: the engine runs inside the request.
		return "wait " + d.String() + " recorded", nil
	}
	return "", fmt.Errorf("unknown action type %q", action.Type)
}

func (e *Engine) sendMessage(ctx context.Context, msg messaging.Message) (string, error) {
	if e.sender == nil {
		return "", fmt.Errorf("messaging sender not configured")
	}
	receipt, err := e.sender.Send(ctx, msg)
	if err != nil {
		return "", err
	}
	if receipt.MessageID == "" {
		return "sent", nil
	}
	return "sent " + receipt.MessageID, nil
}

// updateLead writes a lead field directly. A status written this way does
// not re-enter trigger evaluation.
func (e *Engine) updateLead(ctx context.Context, cfg map[string]any, ld lead.Lead) (string, error) {
	field := stringConfig(cfg, "field", "")
	value := stringConfig(cfg, "value", "")
	if status := stringConfig(cfg, "status", ""); status != "" {
		field, value = "status", status
	}
	if field == "" {
		return "", fmt.Errorf("update_lead: field or status is required")
	}

	// Re-read so earlier actions in the same run are not overwritten.
	current, err := e.stores.Leads.GetLead(ctx, ld.ID)
	if err != nil {
		return "", err
	}

	switch field {
	case "status":
		value = strings.TrimSpace(strings.ToLower(value))
		if !lead.ValidStatus(value) {
			return "", fmt.Errorf("update_lead: unknown status %q", value)
		}
		if current.Status != value {
			current.Status = value
			current.StatusChangedAt = time.Now().UTC()
		}
	case "name":
		if strings.TrimSpace(value) == "" {
			return "", fmt.Errorf("update_lead: name cannot be empty")
		}
		current.Name = value
	case "email":
		current.Email = value
	case "phone":
		current.Phone = value
	case "source":
		current.Source = value
	case "assignee":
		current.Assignee = value
	default:
		if current.Fields == nil {
			current.Fields = make(map[string]string, 1)
		}
		current.Fields[field] = value
	}

	if _, err := e.stores.Leads.UpdateLead(ctx, current); err != nil {
		return "", err
	}
	return field + " updated", nil
}

func (e *Engine) createTask(ctx context.Context, cfg map[string]any, wf workflow.Workflow, ld lead.Lead) (string, error) {
	title := stringConfig(cfg, "title", "")
	if title == "" {
		return "", fmt.Errorf("create_task: title is required")
	}

	tk := task.Task{
		AccountID:   wf.AccountID,
		LeadID:      ld.ID,
		Title:       title,
		Description: stringConfig(cfg, "description", ""),
		Assignee:    stringConfig(cfg, "assignee", ""),
		Status:      task.StatusOpen,
	}
	if dueIn := stringConfig(cfg, "due_in", ""); dueIn != "" {
		d, err := time.ParseDuration(dueIn)
		if err != nil {
			return "", fmt.Errorf("create_task: invalid due_in %q", dueIn)
		}
		tk.DueAt = time.Now().UTC().Add(d)
	}

	created, err := e.stores.Tasks.CreateTask(ctx, tk)
	if err != nil {
		return "", err
	}
	return "task " + created.ID + " created", nil
}

// skip records a workflow-level parse failure. One broken definition must
// not affect the rest of the batch.
func (e *Engine) skip(wf workflow.Workflow, leadID string, err error) {
	e.log.WithError(err).
		WithField("workflow_id", wf.ID).
		WithField("account_id", wf.AccountID).
		Warn("workflow skipped")
	e.events.Log(Event{
		Type:       EventWorkflowSkipped,
		Severity:   SeverityWarning,
		AccountID:  wf.AccountID,
		WorkflowID: wf.ID,
		LeadID:     leadID,
		Error:      err.Error(),
	})
}

// leadDocument shapes a lead for condition evaluation. Condition paths use
// the wire field names, so fields.budget reaches custom attributes.
func leadDocument(ld lead.Lead) map[string]any {
	doc := map[string]any{
		"id":         ld.ID,
		"account_id": ld.AccountID,
		"name":       ld.Name,
		"email":      ld.Email,
		"phone":      ld.Phone,
		"source":     ld.Source,
		"status":     ld.Status,
		"assignee":   ld.Assignee,
	}
	if len(ld.Fields) > 0 {
		doc["fields"] = ld.Fields
	}
	if !ld.StatusChangedAt.IsZero() {
		doc["status_changed_at"] = ld.StatusChangedAt
	}
	if !ld.CreatedAt.IsZero() {
		doc["created_at"] = ld.CreatedAt
	}
	return doc
}

// conditionsMatch evaluates every condition against the lead document; all
// must hold. Unknown operators and unusable values are reported as errors so
// the caller skips the workflow.
func conditionsMatch(conds []workflow.Condition, doc []byte) (bool, error) {
	for i, cond := range conds {
		res := gjson.GetBytes(doc, cond.Field)
		switch cond.Operator {
		case workflow.OpExists:
			if !res.Exists() {
				return false, nil
			}
		case workflow.OpNotExists:
			if res.Exists() {
				return false, nil
			}
		case workflow.OpEquals:
			if !res.Exists() || res.String() != conditionValue(cond.Value) {
				return false, nil
			}
		case workflow.OpNotEquals:
			if res.Exists() && res.String() == conditionValue(cond.Value) {
				return false, nil
			}
		case workflow.OpContains:
			if !strings.Contains(res.String(), conditionValue(cond.Value)) {
				return false, nil
			}
		case workflow.OpGreater, workflow.OpLess:
			want, err := conditionNumber(cond.Value)
			if err != nil {
				return false, fmt.Errorf("condition %d: %w", i, err)
			}
			if !res.Exists() {
				return false, nil
			}
			got := res.Float()
			if cond.Operator == workflow.OpGreater && got <= want {
				return false, nil
			}
			if cond.Operator == workflow.OpLess && got >= want {
				return false, nil
			}
		default:
			return false, fmt.Errorf("condition %d: unknown operator %q", i, cond.Operator)
		}
	}
	return true, nil
}

func conditionValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	}
	return fmt.Sprintf("%v", v)
}

func conditionNumber(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not numeric", val)
		}
		return f, nil
	}
	return 0, fmt.Errorf("value %v is not numeric", v)
}

// stringConfig reads a string-ish action config value with a fallback.
func stringConfig(cfg map[string]any, key, fallback string) string {
	v, ok := cfg[key]
	if !ok {
		return fallback
	}
	switch val := v.(type) {
	case string:
		if strings.TrimSpace(val) == "" {
			return fallback
		}
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	}
	return fallback
}
