package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	workflowsvc "github.com/LeadWire-CRM/automation_layer/internal/app/services/workflows"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Bearer-token auth already gates the route; browser origins vary per
	// deployment.
	CheckOrigin: func(*http.Request) bool { return true },
}

// activityStream pushes the account's engine events over a WebSocket. Events
// that arrive while the client is not keeping up are dropped, not queued.
func (h *handler) activityStream(w http.ResponseWriter, r *http.Request, accountID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, err := h.app.Accounts.Get(r.Context(), accountID); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	// Subscribe before the handshake so events fired right after the client
	// connects are not lost.
	events := make(chan workflowsvc.Event, 64)
	unsubscribe := h.app.Engine.Events().SubscribeFiltered(
		func(e workflowsvc.Event) bool { return e.AccountID == accountID },
		func(e workflowsvc.Event) {
			select {
			case events <- e:
			default:
			}
		},
	)
	defer unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}
	defer conn.Close()

	// Reader loop: we only care about the close signal.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case e := <-events:
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
