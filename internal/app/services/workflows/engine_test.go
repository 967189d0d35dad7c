package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/account"
	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/lead"
	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/messaging"
	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/workflow"
	"github.com/LeadWire-CRM/automation_layer/internal/app/storage/memory"
)

type recordingSender struct {
	sent        []messaging.Message
	failChannel string
}

func (s *recordingSender) Send(_ context.Context, msg messaging.Message) (messaging.Receipt, error) {
	s.sent = append(s.sent, msg)
	if s.failChannel != "" && msg.Channel == s.failChannel {
		return messaging.Receipt{}, fmt.Errorf("provider down")
	}
	return messaging.Receipt{MessageID: "m-" + strconv.Itoa(len(s.sent)), Provider: "fake"}, nil
}

func newTestEngine(t *testing.T) (*Engine, *memory.Store, account.Account) {
	t.Helper()
	store := memory.New()
	acct, err := store.CreateAccount(context.Background(), account.Account{Name: "Acme"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	engine := NewEngine(EngineStores{
		Workflows:  store,
		Executions: store,
		ActionLogs: store,
		Leads:      store,
		Tasks:      store,
	}, nil)
	return engine, store, acct
}

func mustCreateWorkflow(t *testing.T, store *memory.Store, wf workflow.Workflow) workflow.Workflow {
	t.Helper()
	created, err := store.CreateWorkflow(context.Background(), wf)
	if err != nil {
		t.Fatalf("create workflow: %v", err)
	}
	return created
}

func mustCreateLead(t *testing.T, store *memory.Store, ld lead.Lead) lead.Lead {
	t.Helper()
	created, err := store.CreateLead(context.Background(), ld)
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}
	return created
}

func statusChange(ld lead.Lead, oldStatus, newStatus string) (lead.StatusChange, lead.Lead) {
	ld.Status = newStatus
	return lead.StatusChange{
		AccountID: ld.AccountID,
		LeadID:    ld.ID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
	}, ld
}

func TestInactiveWorkflowNeverMatches(t *testing.T) {
	engine, store, acct := newTestEngine(t)

	wf := mustCreateWorkflow(t, store, workflow.Workflow{
		AccountID: acct.ID,
		Name:      "welcome",
		Trigger:   json.RawMessage(`{"type":"lead_status_changed","config":{"status":"contacted"}}`),
		Actions:   json.RawMessage(`[{"type":"wait","config":{"duration":"1m"}}]`),
		Active:    false,
	})
	ld := mustCreateLead(t, store, lead.Lead{AccountID: acct.ID, Name: "Ada", Status: lead.StatusNew})

	change, updated := statusChange(ld, lead.StatusNew, lead.StatusContacted)
	engine.LeadStatusChanged(context.Background(), change, updated)

	execs, err := store.ListExecutions(context.Background(), wf.ID)
	if err != nil {
		t.Fatalf("list executions: %v", err)
	}
	if len(execs) != 0 {
		t.Fatalf("inactive workflow must never run, got %d executions", len(execs))
	}
}

func TestTriggerStatusMustMatch(t *testing.T) {
	engine, store, acct := newTestEngine(t)

	wf := mustCreateWorkflow(t, store, workflow.Workflow{
		AccountID: acct.ID,
		Name:      "qualified-alert",
		Trigger:   json.RawMessage(`{"type":"lead_status_changed","config":{"status":"qualified"}}`),
		Actions:   json.RawMessage(`[{"type":"wait","config":{"duration":"1m"}}]`),
		Active:    true,
	})
	ld := mustCreateLead(t, store, lead.Lead{AccountID: acct.ID, Name: "Ada", Status: lead.StatusNew})

	change, updated := statusChange(ld, lead.StatusNew, lead.StatusContacted)
	engine.LeadStatusChanged(context.Background(), change, updated)

	execs, _ := store.ListExecutions(context.Background(), wf.ID)
	if len(execs) != 0 {
		t.Fatalf("non-matching status must not run, got %d executions", len(execs))
	}

	change, updated = statusChange(updated, lead.StatusContacted, lead.StatusQualified)
	engine.LeadStatusChanged(context.Background(), change, updated)

	execs, _ = store.ListExecutions(context.Background(), wf.ID)
	if len(execs) != 1 {
		t.Fatalf("expected one execution after matching change, got %d", len(execs))
	}
	if execs[0].Status != workflow.ExecutionCompleted {
		t.Fatalf("expected completed execution, got %+v", execs[0])
	}
	if execs[0].TriggeredBy != "lead_status_changed:"+ld.ID {
		t.Fatalf("unexpected triggered_by %q", execs[0].TriggeredBy)
	}
}

func TestMalformedWorkflowSkipsOnlyItself(t *testing.T) {
	engine, store, acct := newTestEngine(t)

	broken := mustCreateWorkflow(t, store, workflow.Workflow{
		AccountID: acct.ID,
		Name:      "broken-json",
		Trigger:   json.RawMessage(`{"type":`),
		Active:    true,
	})
	missing := mustCreateWorkflow(t, store, workflow.Workflow{
		AccountID: acct.ID,
		Name:      "missing-config",
		Trigger:   json.RawMessage(`{"type":"lead_status_changed","config":{}}`),
		Active:    true,
	})
	good := mustCreateWorkflow(t, store, workflow.Workflow{
		AccountID: acct.ID,
		Name:      "good",
		Trigger:   json.RawMessage(`{"type":"lead_status_changed","config":{"status":"contacted"}}`),
		Actions:   json.RawMessage(`[{"type":"create_task","config":{"title":"Call"}}]`),
		Active:    true,
	})
	ld := mustCreateLead(t, store, lead.Lead{AccountID: acct.ID, Name: "Ada", Status: lead.StatusNew})

	change, updated := statusChange(ld, lead.StatusNew, lead.StatusContacted)
	engine.LeadStatusChanged(context.Background(), change, updated)

	for _, wf := range []workflow.Workflow{broken, missing} {
		execs, _ := store.ListExecutions(context.Background(), wf.ID)
		if len(execs) != 0 {
			t.Fatalf("workflow %s must be skipped, got %d executions", wf.Name, len(execs))
		}
	}
	execs, _ := store.ListExecutions(context.Background(), good.ID)
	if len(execs) != 1 {
		t.Fatalf("healthy workflow must still run, got %d executions", len(execs))
	}
	tasks, _ := store.ListTasks(context.Background(), acct.ID)
	if len(tasks) != 1 || tasks[0].Title != "Call" {
		t.Fatalf("expected the healthy workflow's task, got %+v", tasks)
	}

	var skipped int
	for _, ev := range engine.Events().Recent(20) {
		if ev.Type == EventWorkflowSkipped {
			skipped++
		}
	}
	if skipped != 2 {
		t.Fatalf("expected 2 skip events, got %d", skipped)
	}
}

func TestActionFailureDoesNotStopSubsequentActions(t *testing.T) {
	engine, store, acct := newTestEngine(t)
	sender := &recordingSender{failChannel: messaging.ChannelSMS}
	engine.WithSender(sender)

	wf := mustCreateWorkflow(t, store, workflow.Workflow{
		AccountID: acct.ID,
		Name:      "mixed",
		Trigger:   json.RawMessage(`{"type":"lead_status_changed","config":{"status":"contacted"}}`),
		Actions: json.RawMessage(`[
			{"type":"send_sms","config":{"message":"hi"}},
			{"type":"create_task","config":{"title":"Follow up"}},
			{"type":"wait","config":{"duration":"10m"}}
		]`),
		Active: true,
	})
	ld := mustCreateLead(t, store, lead.Lead{AccountID: acct.ID, Name: "Ada", Phone: "+15550100", Status: lead.StatusNew})

	change, updated := statusChange(ld, lead.StatusNew, lead.StatusContacted)
	engine.LeadStatusChanged(context.Background(), change, updated)

	execs, _ := store.ListExecutions(context.Background(), wf.ID)
	if len(execs) != 1 {
		t.Fatalf("expected one execution, got %d", len(execs))
	}
	exec := execs[0]
	if exec.Status != workflow.ExecutionFailed || !strings.Contains(exec.Error, "provider down") {
		t.Fatalf("expected failed execution carrying the first error, got %+v", exec)
	}
	if exec.CompletedAt.IsZero() {
		t.Fatalf("execution must be finalized")
	}

	entries, _ := store.ListActionLogs(context.Background(), "", wf.ID, "")
	if len(entries) != 3 {
		t.Fatalf("every action attempt must be logged, got %d entries", len(entries))
	}
	if entries[0].Error == "" {
		t.Fatalf("first entry should record the sms failure: %+v", entries[0])
	}
	if entries[1].Error != "" || entries[2].Error != "" {
		t.Fatalf("later actions must still run cleanly: %+v", entries[1:])
	}
	if !strings.Contains(entries[2].Result, "wait 10m0s") {
		t.Fatalf("wait must be recorded, got %q", entries[2].Result)
	}

	tasks, _ := store.ListTasks(context.Background(), acct.ID)
	if len(tasks) != 1 {
		t.Fatalf("create_task after a failure must still run, got %d tasks", len(tasks))
	}
}

func TestMalformedActionsBlobFailsExecutionBeforeActions(t *testing.T) {
	engine, store, acct := newTestEngine(t)

	wf := mustCreateWorkflow(t, store, workflow.Workflow{
		AccountID: acct.ID,
		Name:      "bad-actions",
		Trigger:   json.RawMessage(`{"type":"lead_status_changed","config":{"status":"contacted"}}`),
		Actions:   json.RawMessage(`{"surprise":true}`),
		Active:    true,
	})
	ld := mustCreateLead(t, store, lead.Lead{AccountID: acct.ID, Name: "Ada", Status: lead.StatusNew})

	change, updated := statusChange(ld, lead.StatusNew, lead.StatusContacted)
	engine.LeadStatusChanged(context.Background(), change, updated)

	execs, _ := store.ListExecutions(context.Background(), wf.ID)
	if len(execs) != 1 || execs[0].Status != workflow.ExecutionFailed {
		t.Fatalf("expected one failed execution, got %+v", execs)
	}
	entries, _ := store.ListActionLogs(context.Background(), "", wf.ID, "")
	if len(entries) != 0 {
		t.Fatalf("no action may run when the blob is malformed, got %d entries", len(entries))
	}
}

func TestConditionsGateExecution(t *testing.T) {
	engine, store, acct := newTestEngine(t)

	wf := mustCreateWorkflow(t, store, workflow.Workflow{
		AccountID:  acct.ID,
		Name:       "big-budget",
		Trigger:    json.RawMessage(`{"type":"lead_status_changed","config":{"status":"qualified"}}`),
		Conditions: json.RawMessage(`[{"field":"fields.budget","operator":"gt","value":1000}]`),
		Actions:    json.RawMessage(`[{"type":"create_task","config":{"title":"Send proposal"}}]`),
		Active:     true,
	})

	small := mustCreateLead(t, store, lead.Lead{
		AccountID: acct.ID, Name: "Small", Status: lead.StatusNew,
		Fields: map[string]string{"budget": "500"},
	})
	big := mustCreateLead(t, store, lead.Lead{
		AccountID: acct.ID, Name: "Big", Status: lead.StatusNew,
		Fields: map[string]string{"budget": "2500"},
	})

	change, updated := statusChange(small, lead.StatusNew, lead.StatusQualified)
	engine.LeadStatusChanged(context.Background(), change, updated)
	change, updated = statusChange(big, lead.StatusNew, lead.StatusQualified)
	engine.LeadStatusChanged(context.Background(), change, updated)

	execs, _ := store.ListExecutions(context.Background(), wf.ID)
	if len(execs) != 1 {
		t.Fatalf("only the matching lead may run, got %d executions", len(execs))
	}
	if execs[0].TriggeredBy != "lead_status_changed:"+big.ID {
		t.Fatalf("wrong lead fired: %q", execs[0].TriggeredBy)
	}
}

func TestUnknownConditionOperatorSkipsWorkflow(t *testing.T) {
	engine, store, acct := newTestEngine(t)

	wf := mustCreateWorkflow(t, store, workflow.Workflow{
		AccountID:  acct.ID,
		Name:       "odd-operator",
		Trigger:    json.RawMessage(`{"type":"lead_status_changed","config":{"status":"contacted"}}`),
		Conditions: json.RawMessage(`[{"field":"status","operator":"matches","value":"c.*"}]`),
		Actions:    json.RawMessage(`[{"type":"wait","config":{"duration":"1m"}}]`),
		Active:     true,
	})
	ld := mustCreateLead(t, store, lead.Lead{AccountID: acct.ID, Name: "Ada", Status: lead.StatusNew})

	change, updated := statusChange(ld, lead.StatusNew, lead.StatusContacted)
	engine.LeadStatusChanged(context.Background(), change, updated)

	execs, _ := store.ListExecutions(context.Background(), wf.ID)
	if len(execs) != 0 {
		t.Fatalf("unknown operator must skip the workflow, got %d executions", len(execs))
	}
}

func TestSendActionsDefaultRecipientsFromLead(t *testing.T) {
	engine, store, acct := newTestEngine(t)
	sender := &recordingSender{}
	engine.WithSender(sender)

	mustCreateWorkflow(t, store, workflow.Workflow{
		AccountID: acct.ID,
		Name:      "outreach",
		Trigger:   json.RawMessage(`{"type":"lead_status_changed","config":{"status":"contacted"}}`),
		Actions: json.RawMessage(`[
			{"type":"send_whatsapp","config":{"message":"hello there"}},
			{"type":"send_email","config":{"subject":"Welcome","body":"<p>hi</p>"}}
		]`),
		Active: true,
	})
	ld := mustCreateLead(t, store, lead.Lead{
		AccountID: acct.ID, Name: "Ada",
		Email: "ada@example.com", Phone: "+15550100",
		Status: lead.StatusNew,
	})

	change, updated := statusChange(ld, lead.StatusNew, lead.StatusContacted)
	engine.LeadStatusChanged(context.Background(), change, updated)

	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(sender.sent))
	}
	wa, mail := sender.sent[0], sender.sent[1]
	if wa.Channel != messaging.ChannelWhatsApp || wa.To != "+15550100" || wa.Body != "hello there" {
		t.Fatalf("unexpected whatsapp message: %+v", wa)
	}
	if mail.Channel != messaging.ChannelEmail || mail.To != "ada@example.com" || mail.Subject != "Welcome" {
		t.Fatalf("unexpected email message: %+v", mail)
	}
	if wa.AccountID != acct.ID || wa.LeadID != ld.ID {
		t.Fatalf("message must carry account and lead: %+v", wa)
	}
}

func TestUpdateLeadActionDoesNotRetrigger(t *testing.T) {
	engine, store, acct := newTestEngine(t)

	mustCreateWorkflow(t, store, workflow.Workflow{
		AccountID: acct.ID,
		Name:      "promote",
		Trigger:   json.RawMessage(`{"type":"lead_status_changed","config":{"status":"contacted"}}`),
		Actions:   json.RawMessage(`[{"type":"update_lead","config":{"status":"qualified"}}]`),
		Active:    true,
	})
	chained := mustCreateWorkflow(t, store, workflow.Workflow{
		AccountID: acct.ID,
		Name:      "on-qualified",
		Trigger:   json.RawMessage(`{"type":"lead_status_changed","config":{"status":"qualified"}}`),
		Actions:   json.RawMessage(`[{"type":"create_task","config":{"title":"Chained"}}]`),
		Active:    true,
	})
	ld := mustCreateLead(t, store, lead.Lead{AccountID: acct.ID, Name: "Ada", Status: lead.StatusNew})

	change, updated := statusChange(ld, lead.StatusNew, lead.StatusContacted)
	engine.LeadStatusChanged(context.Background(), change, updated)

	stored, err := store.GetLead(context.Background(), ld.ID)
	if err != nil {
		t.Fatalf("get lead: %v", err)
	}
	if stored.Status != lead.StatusQualified {
		t.Fatalf("update_lead must write the status, got %q", stored.Status)
	}
	execs, _ := store.ListExecutions(context.Background(), chained.ID)
	if len(execs) != 0 {
		t.Fatalf("workflow status writes must not re-enter evaluation, got %d executions", len(execs))
	}
	tasks, _ := store.ListTasks(context.Background(), acct.ID)
	if len(tasks) != 0 {
		t.Fatalf("chained workflow must not fire, got %+v", tasks)
	}
}

func TestUpdateLeadActionCustomField(t *testing.T) {
	engine, store, acct := newTestEngine(t)

	mustCreateWorkflow(t, store, workflow.Workflow{
		AccountID: acct.ID,
		Name:      "tag",
		Trigger:   json.RawMessage(`{"type":"lead_status_changed","config":{"status":"contacted"}}`),
		Actions:   json.RawMessage(`[{"type":"update_lead","config":{"field":"segment","value":"hot"}}]`),
		Active:    true,
	})
	ld := mustCreateLead(t, store, lead.Lead{AccountID: acct.ID, Name: "Ada", Status: lead.StatusNew})

	change, updated := statusChange(ld, lead.StatusNew, lead.StatusContacted)
	engine.LeadStatusChanged(context.Background(), change, updated)

	stored, _ := store.GetLead(context.Background(), ld.ID)
	if stored.Fields["segment"] != "hot" {
		t.Fatalf("custom field not written: %+v", stored.Fields)
	}
}

func TestLeadCreatedTriggerSourceFilter(t *testing.T) {
	engine, store, acct := newTestEngine(t)

	wf := mustCreateWorkflow(t, store, workflow.Workflow{
		AccountID: acct.ID,
		Name:      "webform-greeter",
		Trigger:   json.RawMessage(`{"type":"lead_created","config":{"source":"webform"}}`),
		Actions:   json.RawMessage(`[{"type":"create_task","config":{"title":"Greet"}}]`),
		Active:    true,
	})

	imported := mustCreateLead(t, store, lead.Lead{AccountID: acct.ID, Name: "Imp", Source: "import", Status: lead.StatusNew})
	engine.LeadCreated(context.Background(), imported)

	web := mustCreateLead(t, store, lead.Lead{AccountID: acct.ID, Name: "Web", Source: "webform", Status: lead.StatusNew})
	engine.LeadCreated(context.Background(), web)

	execs, _ := store.ListExecutions(context.Background(), wf.ID)
	if len(execs) != 1 {
		t.Fatalf("only the webform lead may fire, got %d executions", len(execs))
	}
	if execs[0].TriggeredBy != "lead_created:"+web.ID {
		t.Fatalf("wrong lead fired: %q", execs[0].TriggeredBy)
	}
}

func TestRunBookkeeping(t *testing.T) {
	engine, store, acct := newTestEngine(t)

	wf := mustCreateWorkflow(t, store, workflow.Workflow{
		AccountID: acct.ID,
		Name:      "counter",
		Trigger:   json.RawMessage(`{"type":"lead_status_changed","config":{"status":"contacted"}}`),
		Actions:   json.RawMessage(`[]`),
		Active:    true,
	})
	ld := mustCreateLead(t, store, lead.Lead{AccountID: acct.ID, Name: "Ada", Status: lead.StatusNew})

	change, updated := statusChange(ld, lead.StatusNew, lead.StatusContacted)
	engine.LeadStatusChanged(context.Background(), change, updated)

	stored, _ := store.GetWorkflow(context.Background(), wf.ID)
	if stored.ExecutionCount != 1 || stored.LastExecuted.IsZero() {
		t.Fatalf("run bookkeeping not recorded: count=%d last=%v", stored.ExecutionCount, stored.LastExecuted)
	}
}
