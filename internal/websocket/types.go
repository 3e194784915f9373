package websocket

import (
	"time"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeRedaction is a completed masking operation (counts only).
	EventTypeRedaction EventType = "redaction"
	// EventTypeAuditFailure is an audit event that did not reach the ledger.
	EventTypeAuditFailure EventType = "audit_failure"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping.
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// RedactionEvent describes the shape of a masking operation. It carries no
// text, masked or otherwise.
type RedactionEvent struct {
	Operation    string         `json:"operation"`
	InputLength  int            `json:"input_length"`
	BlockedItems int            `json:"blocked_items"`
	Categories   map[string]int `json:"categories"`
	ProcessingMS float64        `json:"processing_ms"`
}

// AuditFailureEvent reports an audit write that was dropped.
type AuditFailureEvent struct {
	Backend       string `json:"backend"`
	Reason        string `json:"reason"`
	TotalFailures int64  `json:"total_failures"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	Recognizers      int    `json:"recognizers"`
	ConnectedClients int    `json:"connected_clients"`
	AuditBackend     string `json:"audit_backend,omitempty"`
	AuditFailures    int64  `json:"audit_failures"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type   string      `json:"type"`
	Events []EventType `json:"events,omitempty"`
}
