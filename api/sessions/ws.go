package sessions

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/gridtwin/gridtwin/core/session"
)

type wsCommand struct {
	Command string `json:"command"`
	Steps   int    `json:"steps"`
}

type wsFrame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
	Message string `json:"message,omitempty"`
}

// stream is the interactive WebSocket channel for stepping and monitoring
// a session. Commands: "ping", "step" (with a steps count) and "state".
// Every step/state command is answered with a state frame.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snap, err := h.registry.Snapshot(id)
	if err != nil {
		h.writeRegistryError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(wsFrame{Type: "state", Payload: snap}); err != nil {
		return
	}

	for {
		var cmd wsCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debugf("websocket session %s: %v", id, err)
			}
			return
		}

		switch cmd.Command {
		case "ping":
			if err := conn.WriteJSON(wsFrame{Type: "pong"}); err != nil {
				return
			}
		case "step":
			snap, err := h.registry.Step(id, cmd.Steps)
			if err != nil {
				if h.writeWSError(conn, err) != nil {
					return
				}
				if errors.Is(err, session.ErrNotFound) {
					return
				}
				continue
			}
			if err := conn.WriteJSON(wsFrame{Type: "state", Payload: snap}); err != nil {
				return
			}
		case "state":
			snap, err := h.registry.Snapshot(id)
			if err != nil {
				if h.writeWSError(conn, err) != nil {
					return
				}
				if errors.Is(err, session.ErrNotFound) {
					return
				}
				continue
			}
			if err := conn.WriteJSON(wsFrame{Type: "state", Payload: snap}); err != nil {
				return
			}
		default:
			if err := conn.WriteJSON(wsFrame{Type: "error", Message: "unknown command"}); err != nil {
				return
			}
		}
	}
}

func (h *Handler) writeWSError(conn *websocket.Conn, err error) error {
	return conn.WriteJSON(wsFrame{Type: "error", Message: err.Error()})
}
