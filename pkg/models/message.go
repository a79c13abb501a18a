package models

import "time"

// MessageType classifies a blackboard message.
type MessageType string

const (
	// MessageInfo is a progress or coordination note.
	MessageInfo MessageType = "info"
	// MessageRequest asks another agent for something.
	MessageRequest MessageType = "request"
	// MessageResult is a worker's terminal result for its task.
	MessageResult MessageType = "result"
	// MessageError is a worker's terminal failure report.
	MessageError MessageType = "error"
)

// Valid returns true if the type is a known value.
func (t MessageType) Valid() bool {
	switch t {
	case MessageInfo, MessageRequest, MessageResult, MessageError:
		return true
	default:
		return false
	}
}

// Message is one entry in the blackboard's append-only log.
type Message struct {
	// Timestamp is when the message was appended.
	Timestamp time.Time `json:"timestamp"`
	// AgentID identifies the poster ("orchestrator" or a worker agent ID).
	AgentID string `json:"agent_id"`
	// Type classifies the message.
	Type MessageType `json:"type"`
	// Content is the free-text body.
	Content string `json:"content"`
}
