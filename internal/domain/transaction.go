package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// State is the lifecycle state of a ledger transaction. The set is closed:
// every state the service will ever persist is declared here, and the legal
// movements between them live in the ledger package's transition table.
type State string

const (
	StateInitiated      State = "initiated"
	StatePending        State = "pending"
	StateProcessing     State = "processing"
	StatePosted         State = "posted"
	StateSettled        State = "settled"
	StateReturned       State = "returned"
	StateReversed       State = "reversed"
	StateFailed         State = "failed"
	StateHeldCompliance State = "held_compliance"
	StateDisputed       State = "disputed"
	StateRefunded       State = "refunded"
	StateAdjusted       State = "adjusted"
)

// States lists every member of the closed state set.
var States = []State{
	StateInitiated,
	StatePending,
	StateProcessing,
	StatePosted,
	StateSettled,
	StateReturned,
	StateReversed,
	StateFailed,
	StateHeldCompliance,
	StateDisputed,
	StateRefunded,
	StateAdjusted,
}

// Valid reports whether s is a member of the closed state set.
func (s State) Valid() bool {
	for _, known := range States {
		if s == known {
			return true
		}
	}
	return false
}

// Transaction is a single ledger entry for an account. Amount is signed:
// positive credits the account, negative debits it. Amount and Currency are
// immutable after creation; only State (and bookkeeping fields) change.
// Version backs the optimistic concurrency check in the transaction
// repository so two concurrent webhook deliveries cannot both write.
type Transaction struct {
	ID        string          `json:"id" db:"id"`
	AccountID string          `json:"account_id" db:"account_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount" db:"amount" binding:"required"`
	Currency  string          `json:"currency" db:"currency" binding:"required"`
	State     State           `json:"state" db:"state"`
	Reference string          `json:"reference" db:"reference"`
	Metadata  json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	Version   int64           `json:"version" db:"version"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// TransactionHistory records one successful state transition. Rows are
// append-only: they are never updated or deleted.
type TransactionHistory struct {
	ID            string    `json:"id" db:"id"`
	TransactionID string    `json:"transaction_id" db:"transaction_id"`
	FromState     State     `json:"from_state" db:"from_state"`
	ToState       State     `json:"to_state" db:"to_state"`
	Reason        string    `json:"reason,omitempty" db:"reason"`
	OccurredAt    time.Time `json:"occurred_at" db:"occurred_at"`
}
