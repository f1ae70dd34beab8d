package websocket

import (
	"encoding/json"
	"time"
)

// SubscriptionType represents the type of subscription
type SubscriptionType string

const (
	// SubscribeContractDeployed delivers every recorded deployment
	SubscribeContractDeployed SubscriptionType = "contractDeployed"

	// SubscribePaymentRecorded delivers every applied payment settlement
	SubscribePaymentRecorded SubscriptionType = "paymentRecorded"
)

// Valid reports whether t names a published event stream
func (t SubscriptionType) Valid() bool {
	return t == SubscribeContractDeployed || t == SubscribePaymentRecorded
}

// Message represents a WebSocket message
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribeRequest represents a subscribe or unsubscribe request
type SubscribeRequest struct {
	Type SubscriptionType `json:"type"`
}

// Event represents a subscription event
type Event struct {
	ID        string           `json:"id"`
	Type      SubscriptionType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Data      interface{}      `json:"data"`
}

// ErrorMessage represents an error message
type ErrorMessage struct {
	Error string `json:"error"`
}

// SuccessMessage represents a success message
type SuccessMessage struct {
	Message string `json:"message"`
}
