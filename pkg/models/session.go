package models

import "time"

// Session binds a conversation to its workspace directory. One workspace per
// session, created on connect, never shared, never deleted by the runtime.
type Session struct {
	ID           string    `json:"id"`
	WorkspaceDir string    `json:"workspace_dir"`
	CreatedAt    time.Time `json:"created_at"`
	DeviceID     string    `json:"device_id,omitempty"`
}

// SessionSummary is the session list payload: the session plus the text of
// its first user message, used as a title by clients.
type SessionSummary struct {
	Session
	FirstMessage string `json:"first_message,omitempty"`
}
