package workflows

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType classifies engine events.
type EventType string

const (
	EventWorkflowMatched    EventType = "workflow.matched"
	EventWorkflowSkipped    EventType = "workflow.skipped"
	EventWorkflowCompleted  EventType = "workflow.completed"
	EventWorkflowFailed     EventType = "workflow.failed"
	EventActionSucceeded    EventType = "action.succeeded"
	EventActionFailed       EventType = "action.failed"
	EventExecutionCancelled EventType = "execution.cancelled"
)

// Severity indicates the importance of an event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is one engine occurrence. The activity stream pushes these to
// connected clients; the buffer keeps a short history for late joiners.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Severity    Severity  `json:"severity"`
	Timestamp   time.Time `json:"timestamp"`
	AccountID   string    `json:"account_id,omitempty"`
	WorkflowID  string    `json:"workflow_id,omitempty"`
	ExecutionID string    `json:"execution_id,omitempty"`
	LeadID      string    `json:"lead_id,omitempty"`
	ActionType  string    `json:"action_type,omitempty"`
	Message     string    `json:"message,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// EventHandler processes events as they occur.
type EventHandler func(Event)

// EventFilter decides whether a handler sees an event.
type EventFilter func(Event) bool

// EventLog is a thread-safe circular buffer of engine events with
// subscription support.
type EventLog struct {
	mu       sync.RWMutex
	events   []Event
	size     int
	head     int
	count    int
	handlers []handlerEntry
	nextID   int64
}

type handlerEntry struct {
	id      int64
	filter  EventFilter
	handler EventHandler
}

// NewEventLog creates an event buffer holding at most size events.
func NewEventLog(size int) *EventLog {
	if size <= 0 {
		size = 512
	}
	return &EventLog{
		events: make([]Event, size),
		size:   size,
	}
}

// Log adds an event and notifies subscribers.
func (el *EventLog) Log(event Event) {
	el.mu.Lock()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Severity == "" {
		event.Severity = SeverityInfo
	}

	el.events[el.head] = event
	el.head = (el.head + 1) % el.size
	if el.count < el.size {
		el.count++
	}

	handlers := make([]handlerEntry, len(el.handlers))
	copy(handlers, el.handlers)
	el.mu.Unlock()

	// Notify outside the lock; a slow subscriber must not block logging.
	for _, h := range handlers {
		if h.filter == nil || h.filter(event) {
			h.handler(event)
		}
	}
}

// Subscribe registers a handler for all events and returns an unsubscribe
// function.
func (el *EventLog) Subscribe(handler EventHandler) func() {
	return el.SubscribeFiltered(nil, handler)
}

// SubscribeFiltered registers a handler that only sees events passing the
// filter.
func (el *EventLog) SubscribeFiltered(filter EventFilter, handler EventHandler) func() {
	el.mu.Lock()
	id := el.nextID
	el.nextID++
	el.handlers = append(el.handlers, handlerEntry{id: id, filter: filter, handler: handler})
	el.mu.Unlock()

	return func() {
		el.mu.Lock()
		defer el.mu.Unlock()
		for i, h := range el.handlers {
			if h.id == id {
				el.handlers = append(el.handlers[:i], el.handlers[i+1:]...)
				return
			}
		}
	}
}

// Recent returns up to n events, newest first.
func (el *EventLog) Recent(n int) []Event {
	el.mu.RLock()
	defer el.mu.RUnlock()

	if n <= 0 || el.count == 0 {
		return nil
	}
	if n > el.count {
		n = el.count
	}
	result := make([]Event, n)
	for i := 0; i < n; i++ {
		idx := (el.head - 1 - i + el.size) % el.size
		result[i] = el.events[idx]
	}
	return result
}

// RecentByAccount returns up to n events for one account, newest first.
func (el *EventLog) RecentByAccount(accountID string, n int) []Event {
	el.mu.RLock()
	defer el.mu.RUnlock()

	if n <= 0 || el.count == 0 {
		return nil
	}
	var result []Event
	for i := 0; i < el.count && len(result) < n; i++ {
		idx := (el.head - 1 - i + el.size) % el.size
		if el.events[idx].AccountID == accountID {
			result = append(result, el.events[idx])
		}
	}
	return result
}

// Count returns the number of buffered events.
func (el *EventLog) Count() int {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return el.count
}
