package conversation

import "github.com/qwennnzim-del/gen2-ai/internal/types"

// State is the controller's send state.
type State string

const (
	StateIdle    State = "idle"
	StateSending State = "sending"
	StateSettled State = "settled"
	StateFailed  State = "failed"
)

// EventType identifies what changed in the controller.
type EventType string

const (
	EventMessageAppended EventType = "message_appended"
	EventSessionCreated  EventType = "session_created"
	EventSessionSelected EventType = "session_selected"
	EventChatReset       EventType = "chat_reset"
	EventHistoryCleared  EventType = "history_cleared"
	EventSettingsChanged EventType = "settings_changed"
	EventStateChanged    EventType = "state_changed"
)

// Event describes one controller change. Only the fields relevant to Type
// are set.
type Event struct {
	Type      EventType          `json:"type"`
	SessionID types.SessionID    `json:"session_id,omitempty"`
	Message   *types.Message     `json:"message,omitempty"`
	Displayed bool               `json:"displayed,omitempty"`
	State     State              `json:"state,omitempty"`
	Settings  *types.AppSettings `json:"settings,omitempty"`
}

// Observer receives controller events. Observers are called synchronously
// after the controller lock is released and must not block for long.
type Observer func(Event)
