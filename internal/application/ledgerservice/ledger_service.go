package ledgerservice

import (
	"context"
	"errors"

	"github.com/arvopay/ledger/internal/domain"
)

var (
	// ErrTransactionNotFound is returned when the transaction id resolves
	// to nothing.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrConflictRetriesExhausted is returned when repeated optimistic
	// concurrency conflicts prevented the transition from being applied.
	ErrConflictRetriesExhausted = errors.New("transition retries exhausted due to concurrent updates")
)

// TransitionResult reports an applied (or idempotently skipped) transition.
type TransitionResult struct {
	Transaction *domain.Transaction `json:"transaction"`
	NoOp        bool                `json:"no_op"`
}

// TransitionBroadcaster receives successful transition events, typically
// the WebSocket hub. Implementations must not block.
type TransitionBroadcaster interface {
	BroadcastTransition(event domain.TransitionEvent)
}

type ILedgerService interface {
	CreateTransaction(ctx context.Context, req *domain.CreateTransactionRequest) (*domain.Transaction, error)
	Transition(ctx context.Context, transactionID string, target domain.State, reason string) (*TransitionResult, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	GetTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	GetHistory(ctx context.Context, transactionID string) ([]*domain.TransactionHistory, error)
	ListTransactions(ctx context.Context, state domain.State, limit, offset int) ([]*domain.Transaction, error)
	ListAccountTransactions(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error)
	GetBalance(ctx context.Context, accountID string) (*domain.BalanceSnapshot, error)
	Reconcile(ctx context.Context, accountID string) (*domain.DriftReport, error)
	RunDriftMonitor(ctx context.Context)
}
