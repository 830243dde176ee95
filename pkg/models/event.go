package models

import "time"

// EventType enumerates the realtime event types observed by clients.
// The set is closed; new behavior means a new constant, not an ad-hoc string.
type EventType string

const (
	EventConnectionEstablished EventType = "connection_established"
	EventAgentInitialized      EventType = "agent_initialized"
	EventWorkspaceInfo         EventType = "workspace_info"
	EventProcessing            EventType = "processing"
	EventAgentThinking         EventType = "agent_thinking"
	EventToolCall              EventType = "tool_call"
	EventToolResult            EventType = "tool_result"
	EventAgentResponse         EventType = "agent_response"
	EventStreamComplete        EventType = "stream_complete"
	EventError                 EventType = "error"
	EventSystem                EventType = "system"
	EventPong                  EventType = "pong"
	EventUploadSuccess         EventType = "upload_success"
	EventBrowserUse            EventType = "browser_use"
	EventFileEdit              EventType = "file_edit"
	EventUserMessage           EventType = "user_message"
	EventPromptGenerated       EventType = "prompt_generated"
)

// Event is the wire unit of the system: every externally interesting state
// transition is one of these, streamed to the client and appended to the
// durable event log.
type Event struct {
	Type    EventType      `json:"type"`
	Content map[string]any `json:"content"`
}

// NewEvent builds an event; a nil content map is normalized to empty so the
// JSON form is always an object.
func NewEvent(typ EventType, content map[string]any) Event {
	if content == nil {
		content = map[string]any{}
	}
	return Event{Type: typ, Content: content}
}

// EventRecord is the persisted form of an Event.
type EventRecord struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Payload   string    `json:"event_payload"`
}
