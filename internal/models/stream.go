package models

import "time"

// StreamMessageType tags the messages of a run event stream
type StreamMessageType string

const (
	StreamStatus   StreamMessageType = "status"
	StreamProgress StreamMessageType = "progress"
	StreamResult   StreamMessageType = "result"
	StreamError    StreamMessageType = "error"
)

// StreamMessage is one server-sent event of a run
type StreamMessage struct {
	Type      StreamMessageType `json:"type"`
	RunID     string            `json:"run_id"`
	Timestamp time.Time         `json:"timestamp"`
	Data      interface{}       `json:"data,omitempty"`
}

// StatusMessage reports the lifecycle state of a run
type StatusMessage struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Elapsed  string `json:"elapsed,omitempty"`
	Finished bool   `json:"finished"`
}

// NewStreamMessage stamps a message for runID
func NewStreamMessage(kind StreamMessageType, runID string, data interface{}) StreamMessage {
	return StreamMessage{Type: kind, RunID: runID, Timestamp: time.Now(), Data: data}
}
