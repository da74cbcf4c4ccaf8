package server

import (
	"encoding/json"
	"time"
)

// MessageType identifies a websocket message
type MessageType string

const (
	// Client → Server
	MessageTypeSolve  MessageType = "solve"
	MessageTypeCancel MessageType = "cancel"

	// Server → Client
	MessageTypeProgress MessageType = "progress"
	MessageTypeResult   MessageType = "result"
	MessageTypeError    MessageType = "error"
)

// Message represents the base WebSocket message structure
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a message stamped with now
func NewMessage(messageType MessageType, data any, now time.Time) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: now,
	}, nil
}

// SolveData asks for an equilibrium search. When Hands is empty the server
// deals Players hands from Seed.
type SolveData struct {
	Hands         []string `json:"hands,omitempty"`
	Players       int      `json:"players,omitempty"`
	Seed          int64    `json:"seed"`
	MaxIterations int      `json:"max_iterations,omitempty"`
	TimeBudget    string   `json:"time_budget,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
