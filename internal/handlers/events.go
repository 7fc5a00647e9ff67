package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brazeiro63/vovo-achados-portal/types"
)

const eventsHeartbeat = 25 * time.Second

// SessionEvent is one message of the auth event stream.
type SessionEvent struct {
	Event   types.AuthEvent `json:"event"`
	UserID  string          `json:"user_id,omitempty"`
	IsAdmin bool            `json:"is_admin"`
}

// Events streams session changes of the caller as server-sent events. The
// stream starts with INITIAL_SESSION and ends after SIGNED_OUT.
func (h *AuthHandler) Events(w http.ResponseWriter, r *http.Request) {
	ra := authFrom(r)
	if ra == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	rc := http.NewResponseController(w)
	// The stream outlives the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	events := make(chan SessionEvent, 8)
	unsubscribe := ra.client.OnSessionChange(func(event types.AuthEvent, session *types.Session) {
		msg := SessionEvent{Event: event}
		if session != nil {
			msg.UserID = session.User.ID
		}
		select {
		case events <- msg:
		default:
			h.logger.Warn("auth event dropped", slog.String("event", string(event)))
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	state := ra.auth.Snapshot()
	initial := SessionEvent{Event: types.AuthEventInitialSession, IsAdmin: state.IsAdmin}
	if state.User != nil {
		initial.UserID = state.User.ID
	}
	if err := writeEvent(w, rc, initial); err != nil {
		return
	}

	ticker := time.NewTicker(eventsHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case msg := <-events:
			if msg.Event != types.AuthEventSignedOut {
				msg.IsAdmin = ra.auth.Snapshot().IsAdmin
			}
			if err := writeEvent(w, rc, msg); err != nil {
				return
			}
			if msg.Event == types.AuthEventSignedOut {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, msg SessionEvent) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, data); err != nil {
		return err
	}
	return rc.Flush()
}
