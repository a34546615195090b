package storage

import "time"

// EventWriter is the interface for writing security events.
// Write() must NEVER block the caller or surface an error: audit is best-effort.
type EventWriter interface {
	Write(event *SecurityEvent)
	Close()
}

// EventType classifies a security event.
type EventType string

const (
	EventBlock EventType = "block"
	EventWarn  EventType = "warn"
	EventAllow EventType = "allow"
	EventError EventType = "error"
)

// Action values recorded in SecurityEvent.ActionTaken.
const (
	ActionBlocked = "blocked"
	ActionAsked   = "asked_user"
	ActionAllowed = "allowed"
)

// Alert is the audit copy of a reputation alert.
type Alert struct {
	Name     string `json:"name"`
	Severity string `json:"severity"`
	Category string `json:"category"`
}

// SecurityEvent is one consequential gate decision. Events are append-only:
// once written they are never modified or removed by the gate.
type SecurityEvent struct {
	EventID       string    `json:"event_id"`
	Timestamp     time.Time `json:"timestamp"`
	SessionID     string    `json:"session_id"`
	EventType     EventType `json:"event_type"`
	Tool          string    `json:"tool"`
	Ecosystem     string    `json:"ecosystem,omitempty"`
	Package       string    `json:"package"`
	Alerts        []Alert   `json:"alerts"`
	Reason        string    `json:"reason"`
	ActionTaken   string    `json:"action_taken"`
	CommandDigest string    `json:"command_digest,omitempty"` // blake2b-256 hex of the raw command
}
