package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gorillamux "github.com/gorilla/mux"

	app "github.com/LeadWire-CRM/automation_layer/internal/app"
	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/lead"
	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/task"
	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/workflow"
	"github.com/LeadWire-CRM/automation_layer/internal/app/metrics"
	workflowsvc "github.com/LeadWire-CRM/automation_layer/internal/app/services/workflows"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app   *app.Application
	audit *auditLog
}

// NewHandler returns a mux exposing the core REST API.
func NewHandler(application *app.Application, audit *auditLog) http.Handler {
	h := &handler{app: application, audit: audit}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthz)
	mux.HandleFunc("/accounts", h.accounts)
	mux.HandleFunc("/accounts/", h.accountResources)
	mux.HandleFunc("/system/info", h.systemInfo)
	mux.HandleFunc("/system/audit", h.systemAudit)
	mux.Handle("/metrics", metrics.Handler())

	if application.Messaging != nil {
		internal := gorillamux.NewRouter()
		application.Messaging.RegisterRoutes(internal)
		mux.Handle("/internal/messaging/", internal)
	}
	return mux
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) accounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Name     string            `json:"name"`
			Owner    string            `json:"owner"`
			Metadata map[string]string `json:"metadata"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		acct, err := h.app.Accounts.Create(r.Context(), payload.Name, payload.Owner, payload.Metadata)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, acct)

	case http.MethodGet:
		accts, err := h.app.Accounts.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, accts)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) accountResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/accounts"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	accountID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			acct, err := h.app.Accounts.Get(r.Context(), accountID)
			if err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, acct)
		case http.MethodPatch:
			var payload struct {
				Name     *string           `json:"name"`
				Owner    *string           `json:"owner"`
				Active   *bool             `json:"active"`
				Metadata map[string]string `json:"metadata"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			acct, err := h.app.Accounts.Update(r.Context(), accountID, payload.Name, payload.Owner, payload.Active, payload.Metadata)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusOK, acct)
		case http.MethodDelete:
			if err := h.app.Accounts.Delete(r.Context(), accountID); err != nil {
				status := http.StatusBadRequest
				if errors.Is(err, sql.ErrNoRows) {
					status = http.StatusNotFound
				}
				writeError(w, status, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	resource := parts[1]
	switch resource {
	case "leads":
		h.accountLeads(w, r, accountID, parts[2:])
	case "workflows":
		h.accountWorkflows(w, r, accountID, parts[2:])
	case "executions":
		h.accountExecutions(w, r, accountID, parts[2:])
	case "tasks":
		h.accountTasks(w, r, accountID, parts[2:])
	case "activity":
		if len(parts) == 3 && parts[2] == "stream" {
			h.activityStream(w, r, accountID)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) accountLeads(w http.ResponseWriter, r *http.Request, accountID string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodPost:
			var payload struct {
				Name     string            `json:"name"`
				Email    string            `json:"email"`
				Phone    string            `json:"phone"`
				Source   string            `json:"source"`
				Status   string            `json:"status"`
				Assignee string            `json:"assignee"`
				Fields   map[string]string `json:"fields"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}

			created, err := h.app.Leads.Create(r.Context(), lead.Lead{
				AccountID: accountID,
				Name:      payload.Name,
				Email:     payload.Email,
				Phone:     payload.Phone,
				Source:    payload.Source,
				Status:    payload.Status,
				Assignee:  payload.Assignee,
				Fields:    payload.Fields,
			})
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusCreated, created)

		case http.MethodGet:
			list, err := h.app.Leads.List(r.Context(), accountID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, list)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	leadID := rest[0]
	ld, err := h.app.Leads.Get(r.Context(), leadID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if ld.AccountID != accountID {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	if len(rest) == 1 {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, ld)
		case http.MethodPatch:
			var payload struct {
				Name     *string           `json:"name"`
				Email    *string           `json:"email"`
				Phone    *string           `json:"phone"`
				Source   *string           `json:"source"`
				Assignee *string           `json:"assignee"`
				Fields   map[string]string `json:"fields"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			updated, err := h.app.Leads.Update(r.Context(), leadID, payload.Name, payload.Email, payload.Phone, payload.Source, payload.Assignee, payload.Fields)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusOK, updated)
		case http.MethodDelete:
			if err := h.app.Leads.Delete(r.Context(), leadID); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	if len(rest) == 2 {
		switch rest[1] {
		case "status":
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			var payload struct {
				Status string `json:"status"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			// Workflow evaluation runs inside this call; its outcomes do not
			// change the response.
			updated, err := h.app.Leads.ChangeStatus(r.Context(), leadID, payload.Status)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusOK, updated)
			return
		case "activity":
			if r.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			feed, err := h.app.Leads.Activity(r.Context(), leadID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, feed)
			return
		}
	}

	w.WriteHeader(http.StatusNotFound)
}

func (h *handler) accountWorkflows(w http.ResponseWriter, r *http.Request, accountID string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodPost:
			var payload struct {
				Name        string          `json:"name"`
				Description string          `json:"description"`
				Trigger     json.RawMessage `json:"trigger"`
				Actions     json.RawMessage `json:"actions"`
				Conditions  json.RawMessage `json:"conditions"`
				Active      *bool           `json:"active"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}

			active := true
			if payload.Active != nil {
				active = *payload.Active
			}
			created, err := h.app.Workflows.Create(r.Context(), workflow.Workflow{
				AccountID:   accountID,
				Name:        payload.Name,
				Description: payload.Description,
				Trigger:     payload.Trigger,
				Actions:     payload.Actions,
				Conditions:  payload.Conditions,
				Active:      active,
			})
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusCreated, created)

		case http.MethodGet:
			list, err := h.app.Workflows.List(r.Context(), accountID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, list)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	workflowID := rest[0]
	wf, err := h.app.Workflows.Get(r.Context(), workflowID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if wf.AccountID != accountID {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	if len(rest) == 1 {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, wf)
		case http.MethodPut:
			// Full-document replace: omitted fields reset, including active.
			var payload struct {
				Name        string          `json:"name"`
				Description string          `json:"description"`
				Trigger     json.RawMessage `json:"trigger"`
				Actions     json.RawMessage `json:"actions"`
				Conditions  json.RawMessage `json:"conditions"`
				Active      bool            `json:"active"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			replaced, err := h.app.Workflows.Replace(r.Context(), workflowID, workflow.Workflow{
				Name:        payload.Name,
				Description: payload.Description,
				Trigger:     payload.Trigger,
				Actions:     payload.Actions,
				Conditions:  payload.Conditions,
				Active:      payload.Active,
			})
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusOK, replaced)
		case http.MethodDelete:
			if err := h.app.Workflows.Delete(r.Context(), workflowID); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	if len(rest) == 2 {
		switch rest[1] {
		case "activate":
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			var payload struct {
				Active bool `json:"active"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			updated, err := h.app.Workflows.SetActive(r.Context(), workflowID, payload.Active)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusOK, updated)
			return
		case "executions":
			if r.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			execs, err := h.app.Workflows.Executions(r.Context(), workflowID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, execs)
			return
		case "logs":
			if r.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			logs, err := h.app.Workflows.Logs(r.Context(), workflowID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, logs)
			return
		}
	}

	w.WriteHeader(http.StatusNotFound)
}

func (h *handler) accountExecutions(w http.ResponseWriter, r *http.Request, accountID string, rest []string) {
	if len(rest) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	executionID := rest[0]
	exec, err := h.app.Workflows.GetExecution(r.Context(), executionID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if exec.AccountID != accountID {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	if len(rest) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, exec)
		return
	}

	if len(rest) == 2 && rest[1] == "cancel" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		cancelled, err := h.app.Workflows.CancelExecution(r.Context(), executionID)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, workflowsvc.ErrNotRunning) {
				status = http.StatusConflict
			}
			writeError(w, status, err)
			return
		}
		writeJSON(w, http.StatusOK, cancelled)
		return
	}

	w.WriteHeader(http.StatusNotFound)
}

func (h *handler) accountTasks(w http.ResponseWriter, r *http.Request, accountID string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodPost:
			var payload struct {
				LeadID      string `json:"lead_id"`
				Title       string `json:"title"`
				Description string `json:"description"`
				Assignee    string `json:"assignee"`
				DueAt       string `json:"due_at"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			var due time.Time
			if strings.TrimSpace(payload.DueAt) != "" {
				parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(payload.DueAt))
				if err != nil {
					writeError(w, http.StatusBadRequest, fmt.Errorf("due_at must be RFC3339 timestamp"))
					return
				}
				due = parsed
			}
			created, err := h.app.Tasks.Create(r.Context(), task.Task{
				AccountID:   accountID,
				LeadID:      payload.LeadID,
				Title:       payload.Title,
				Description: payload.Description,
				Assignee:    payload.Assignee,
				DueAt:       due,
			})
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusCreated, created)

		case http.MethodGet:
			list, err := h.app.Tasks.List(r.Context(), accountID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, list)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	taskID := rest[0]
	tk, err := h.app.Tasks.Get(r.Context(), taskID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if tk.AccountID != accountID {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	if len(rest) != 1 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, tk)
	case http.MethodPatch:
		var payload struct {
			Title       *string `json:"title"`
			Description *string `json:"description"`
			Assignee    *string `json:"assignee"`
			Status      *string `json:"status"`
			DueAt       *string `json:"due_at"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		var due *time.Time
		if payload.DueAt != nil {
			trimmed := strings.TrimSpace(*payload.DueAt)
			if trimmed == "" {
				zero := time.Time{}
				due = &zero
			} else {
				parsed, err := time.Parse(time.RFC3339, trimmed)
				if err != nil {
					writeError(w, http.StatusBadRequest, fmt.Errorf("due_at must be RFC3339 timestamp"))
					return
				}
				due = &parsed
			}
		}

		updated, err := h.app.Tasks.Update(r.Context(), taskID, payload.Title, payload.Description, payload.Assignee, payload.Status, due)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
