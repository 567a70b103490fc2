package domain

import (
	"encoding/json"
	"time"
)

// CreateTransactionRequest is the API payload for admitting a new ledger
// entry. Amount is a signed decimal string; Reference is the caller's
// idempotency handle (re-posting the same reference returns the original
// transaction instead of creating a duplicate).
type CreateTransactionRequest struct {
	AccountID string          `json:"account_id" binding:"required"`
	Amount    string          `json:"amount" binding:"required"`
	Currency  string          `json:"currency" binding:"required"`
	Reference string          `json:"reference"`
	Metadata  json.RawMessage `json:"metadata"`
}

// TransitionRequest asks for a state change on an existing transaction.
type TransitionRequest struct {
	TargetState State  `json:"target_state" binding:"required"`
	Reason      string `json:"reason"`
}

// ProcessorEvent is the payload delivered to the processor webhook.
// Deliveries are at-least-once; duplicates resolve through the idempotent
// no-op transition rule rather than event-id bookkeeping.
type ProcessorEvent struct {
	EventID       string    `json:"event_id" binding:"required"`
	Type          string    `json:"type" binding:"required"`
	TransactionID string    `json:"transaction_id"`
	Reference     string    `json:"reference"`
	Reason        string    `json:"reason"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// TransitionEvent is broadcast to stream subscribers after a successful
// state change.
type TransitionEvent struct {
	TransactionID string    `json:"transaction_id"`
	AccountID     string    `json:"account_id"`
	FromState     State     `json:"from_state"`
	ToState       State     `json:"to_state"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
