package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	app "github.com/LeadWire-CRM/automation_layer/internal/app"
)

const testAuthToken = "test-token"

func newTestHandler(t *testing.T) (http.Handler, *app.Application) {
	t.Helper()
	application, err := app.New(app.Stores{}, app.Options{}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	audit := newAuditLog(100, nil)
	handler := wrapWithAudit(wrapWithAuth(NewHandler(application, audit), []string{testAuthToken}, nil), audit)
	return handler, application
}

func TestHandlerLifecycle(t *testing.T) {
	handler, application := newTestHandler(t)

	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("start application: %v", err)
	}
	defer application.Stop(context.Background())

	// Account.
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/accounts", marshal(map[string]any{
		"name":  "Acme",
		"owner": "alice",
	})))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 create account, got %d: %s", resp.Code, resp.Body.String())
	}
	accountID := fieldString(t, resp.Body.Bytes(), "ID")

	// Workflow firing on the contacted status.
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/accounts/"+accountID+"/workflows", marshal(map[string]any{
		"name":    "welcome",
		"trigger": map[string]any{"type": "lead_status_changed", "config": map[string]string{"status": "contacted"}},
		"actions": []map[string]any{
			{"type": "create_task", "config": map[string]any{"title": "Call the lead"}},
			{"type": "wait", "config": map[string]any{"duration": "5m"}},
		},
	})))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 create workflow, got %d: %s", resp.Code, resp.Body.String())
	}
	workflowID := fieldString(t, resp.Body.Bytes(), "ID")

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/accounts/"+accountID+"/workflows", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 list workflows, got %d", resp.Code)
	}

	// Lead.
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/accounts/"+accountID+"/leads", marshal(map[string]any{
		"name":  "Ada",
		"phone": "+15550100",
	})))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 create lead, got %d: %s", resp.Code, resp.Body.String())
	}
	leadID := fieldString(t, resp.Body.Bytes(), "ID")

	// Status change runs the workflow synchronously.
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/accounts/"+accountID+"/leads/"+leadID+"/status", marshal(map[string]any{
		"status": "contacted",
	})))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 status change, got %d: %s", resp.Code, resp.Body.String())
	}
	var changed map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &changed); err != nil {
		t.Fatalf("unmarshal lead: %v", err)
	}
	if changed["Status"] != "contacted" {
		t.Fatalf("expected contacted lead, got %v", changed["Status"])
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/accounts/"+accountID+"/workflows/"+workflowID+"/executions", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 executions, got %d", resp.Code)
	}
	var execs []map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &execs); err != nil {
		t.Fatalf("unmarshal executions: %v", err)
	}
	if len(execs) != 1 || execs[0]["Status"] != "completed" {
		t.Fatalf("expected one completed execution, got %v", execs)
	}
	executionID := execs[0]["ID"].(string)

	// Lead activity feed: creation, status change, two action entries.
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/accounts/"+accountID+"/leads/"+leadID+"/activity", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 activity, got %d", resp.Code)
	}
	var feed []map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &feed); err != nil {
		t.Fatalf("unmarshal activity: %v", err)
	}
	if len(feed) != 4 {
		t.Fatalf("expected 4 feed entries, got %d: %v", len(feed), feed)
	}
	if feed[0]["ActionType"] != "lead_created" || feed[1]["ActionType"] != "status_changed" {
		t.Fatalf("unexpected feed order: %v", feed)
	}

	// The workflow's create_task action produced a task.
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/accounts/"+accountID+"/tasks", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 tasks, got %d", resp.Code)
	}
	var tasks []map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("unmarshal tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0]["Title"] != "Call the lead" {
		t.Fatalf("expected the workflow task, got %v", tasks)
	}
	taskID := tasks[0]["ID"].(string)

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPatch, "/accounts/"+accountID+"/tasks/"+taskID, marshal(map[string]any{
		"status": "done",
	})))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 patch task, got %d: %s", resp.Code, resp.Body.String())
	}

	// Execution admin.
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/accounts/"+accountID+"/executions/"+executionID, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 get execution, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/accounts/"+accountID+"/executions/"+executionID+"/cancel", marshal(map[string]any{})))
	if resp.Code != http.StatusConflict {
		t.Fatalf("cancelling a completed execution must 409, got %d", resp.Code)
	}

	// Full-document replace, then deactivate.
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPut, "/accounts/"+accountID+"/workflows/"+workflowID, marshal(map[string]any{
		"name":    "welcome v2",
		"trigger": map[string]any{"type": "lead_status_changed", "config": map[string]string{"status": "qualified"}},
		"actions": []map[string]any{{"type": "create_task", "config": map[string]any{"title": "Qualify"}}},
		"active":  true,
	})))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 replace, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/accounts/"+accountID+"/workflows/"+workflowID+"/activate", marshal(map[string]any{
		"active": false,
	})))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 deactivate, got %d", resp.Code)
	}

	// Inactive workflows never fire.
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/accounts/"+accountID+"/leads/"+leadID+"/status", marshal(map[string]any{
		"status": "qualified",
	})))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 status change, got %d", resp.Code)
	}
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/accounts/"+accountID+"/workflows/"+workflowID+"/executions", nil))
	if err := json.Unmarshal(resp.Body.Bytes(), &execs); err != nil {
		t.Fatalf("unmarshal executions: %v", err)
	}
	if len(execs) != 1 {
		t.Fatalf("inactive workflow must not fire, got %d executions", len(execs))
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/accounts/"+accountID+"/workflows/"+workflowID+"/logs", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 logs, got %d", resp.Code)
	}
	var logs []map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &logs); err != nil {
		t.Fatalf("unmarshal logs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 action log entries, got %d", len(logs))
	}

	// Operational endpoints.
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK || resp.Body.Len() == 0 {
		t.Fatalf("expected metrics output, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 health, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/system/info", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 system info, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/system/audit?limit=50", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 audit, got %d", resp.Code)
	}
	var trail []map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &trail); err != nil {
		t.Fatalf("unmarshal audit: %v", err)
	}
	if len(trail) == 0 {
		t.Fatalf("expected audit entries for the mutations above")
	}

	// Teardown.
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodDelete, "/accounts/"+accountID, nil))
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 delete account, got %d", resp.Code)
	}
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/accounts/"+accountID, nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.Code)
	}
}

func TestHandlerOwnership(t *testing.T) {
	handler, _ := newTestHandler(t)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/accounts", marshal(map[string]any{"name": "A", "owner": "a"})))
	first := fieldString(t, resp.Body.Bytes(), "ID")

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/accounts", marshal(map[string]any{"name": "B", "owner": "b"})))
	second := fieldString(t, resp.Body.Bytes(), "ID")

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/accounts/"+first+"/leads", marshal(map[string]any{"name": "Ada"})))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 create lead, got %d", resp.Code)
	}
	leadID := fieldString(t, resp.Body.Bytes(), "ID")

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/accounts/"+second+"/leads/"+leadID, nil))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("cross-account access must 403, got %d", resp.Code)
	}
}

func TestHandlerAuthRequired(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestActivityStreamPushesEvents(t *testing.T) {
	handler, _ := newTestHandler(t)
	server := httptest.NewServer(handler)
	defer server.Close()

	client := server.Client()
	resp, err := client.Do(serverRequest(server.URL, http.MethodPost, "/accounts", marshal(map[string]any{"name": "Acme", "owner": "a"})))
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	accountID := decodeField(t, resp, "ID")

	resp, err = client.Do(serverRequest(server.URL, http.MethodPost, "/accounts/"+accountID+"/workflows", marshal(map[string]any{
		"name":    "notify",
		"trigger": map[string]any{"type": "lead_created"},
		"actions": []map[string]any{{"type": "create_task", "config": map[string]any{"title": "Say hi"}}},
	})))
	if err != nil {
		t.Fatalf("create workflow: %v", err)
	}
	resp.Body.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/accounts/" + accountID + "/activity/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Authorization": []string{"Bearer " + testAuthToken}})
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	defer conn.Close()

	resp, err = client.Do(serverRequest(server.URL, http.MethodPost, "/accounts/"+accountID+"/leads", marshal(map[string]any{"name": "Ada"})))
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var event map[string]any
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event["account_id"] != accountID {
		t.Fatalf("expected event for the account, got %v", event)
	}
	if typ, _ := event["type"].(string); !strings.HasPrefix(typ, "workflow.") && !strings.HasPrefix(typ, "action.") {
		t.Fatalf("unexpected event type: %v", event)
	}
}

func serverRequest(baseURL, method, path string, body []byte) *http.Request {
	req, _ := http.NewRequest(method, baseURL+path, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testAuthToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func decodeField(t *testing.T, resp *http.Response, field string) string {
	t.Helper()
	defer resp.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	value, _ := payload[field].(string)
	if value == "" {
		t.Fatalf("missing %s in %v", field, payload)
	}
	return value
}

func authedRequest(method, url string, body []byte) *http.Request {
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testAuthToken)
	return req
}

func marshal(v any) []byte {
	buf, _ := json.Marshal(v)
	return buf
}

func fieldString(t *testing.T, body []byte, field string) string {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	value, _ := payload[field].(string)
	if value == "" {
		t.Fatalf("missing %s in %s", field, body)
	}
	return value
}
