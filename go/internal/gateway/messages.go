package gateway

import (
	"github.com/mcdev12/chimera/go/internal/models"
	"github.com/mcdev12/chimera/go/internal/session"
)

// IntentType is a user intent sent by the UI.
type IntentType string

const (
	IntentSubmitAction IntentType = "submit_action"
	IntentLeave        IntentType = "leave"
	IntentEndMatch     IntentType = "end_match"
	IntentStartGame    IntentType = "start_game"
	IntentPageHide     IntentType = "page_hide"
)

// Intent is an inbound frame.
type Intent struct {
	Type       IntentType        `json:"type"`
	ActionType models.ActionType `json:"action_type,omitempty"`
	EntityID   *uint             `json:"entity_id,omitempty"`
}

// MessageType tags outbound frames.
type MessageType string

const (
	MessageView  MessageType = "view"
	MessageAck   MessageType = "ack"
	MessageError MessageType = "error"
)

// Message is an outbound frame.
type Message struct {
	Type   MessageType   `json:"type"`
	View   *session.View `json:"view,omitempty"`
	Intent IntentType    `json:"intent,omitempty"`
	// Suppressed marks an intent that was a no-op, such as a second
	// action in the same round.
	Suppressed bool   `json:"suppressed,omitempty"`
	Error      string `json:"error,omitempty"`
}
