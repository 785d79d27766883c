package models

import "time"

// DefaultSessionID is the single conversation every request shares today.
const DefaultSessionID = "default"

// SessionInfo describes one conversation held by the AI session manager.
type SessionInfo struct {
	ID        string            `json:"session_id"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Entries   []TranscriptEntry `json:"entries"`
}
