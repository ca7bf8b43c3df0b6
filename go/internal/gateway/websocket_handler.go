package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/chimera/go/internal/session"
)

// WebSocketHandler attaches UI connections to the mounted session and turns
// their frames into session operations.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	session           Controller
	intentTimeout     time.Duration
}

func NewWebSocketHandler(cm *ConnectionManager, sess Controller, intentTimeout time.Duration) *WebSocketHandler {
	h := &WebSocketHandler{
		connectionManager: cm,
		session:           sess,
		intentTimeout:     intentTimeout,
	}
	cm.onMessage = h.handleClientMessage
	cm.onEmpty = h.handleLastDisconnect
	return h
}

// HandleSessionConnection upgrades the request and greets the client with
// the current view.
func (h *WebSocketHandler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	v := h.session.View()
	greeting, err := json.Marshal(Message{Type: MessageView, View: &v})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal session view")
		http.Error(w, "failed to render view", http.StatusInternalServerError)
		return
	}

	// Upgrade has already written an HTTP error on failure.
	if _, err := h.connectionManager.UpgradeConnection(w, r, greeting); err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
	}
}

func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/session", h.HandleSessionConnection)
}

func (h *WebSocketHandler) handleClientMessage(c *Connection, message []byte) {
	var intent Intent
	if err := json.Unmarshal(message, &intent); err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("malformed client message")
		h.reply(c, Message{Type: MessageError, Error: "malformed intent"})
		return
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("intent", string(intent.Type)).
		Msg("received client intent")

	// Intents may block on the network; keep reading while they run.
	go h.dispatch(c, intent)
}

func (h *WebSocketHandler) dispatch(c *Connection, intent Intent) {
	ctx, cancel := context.WithTimeout(context.Background(), h.intentTimeout)
	defer cancel()

	var err error
	suppressed := false
	switch intent.Type {
	case IntentSubmitAction:
		err = h.session.SubmitAction(ctx, intent.ActionType, intent.EntityID)
		if session.IsSuppressed(err) {
			suppressed, err = true, nil
		}
	case IntentLeave:
		h.session.Leave(ctx)
	case IntentEndMatch:
		err = h.session.EndMatch(ctx)
		if errors.Is(err, session.ErrEndInFlight) {
			suppressed, err = true, nil
		}
	case IntentStartGame:
		err = h.session.StartGame(ctx)
		if errors.Is(err, session.ErrStartInFlight) || errors.Is(err, session.ErrCannotStart) {
			suppressed, err = true, nil
		}
	case IntentPageHide:
		suppressed = !h.session.Abandon(session.ReasonPageHide)
	default:
		h.reply(c, Message{Type: MessageError, Intent: intent.Type, Error: "unknown intent"})
		return
	}

	if err != nil {
		h.reply(c, Message{Type: MessageError, Intent: intent.Type, Error: err.Error()})
		return
	}
	h.reply(c, Message{Type: MessageAck, Intent: intent.Type, Suppressed: suppressed})
}

func (h *WebSocketHandler) handleLastDisconnect() {
	if h.session.Abandon(session.ReasonPageHide) {
		log.Info().Msg("last UI connection closed; leave notification sent")
	}
}

func (h *WebSocketHandler) reply(c *Connection, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal reply")
		return
	}
	if !h.connectionManager.SendTo(c, data) {
		log.Debug().Str("connection_id", c.ID).Msg("reply dropped; connection gone")
	}
}
