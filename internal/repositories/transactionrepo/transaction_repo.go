package transactionrepo

import (
	"context"
	"errors"

	"github.com/arvopay/ledger/internal/domain"
)

// ErrVersionConflict is returned by UpdateState when the row was modified
// since it was read. The caller reloads the transaction and retries.
var ErrVersionConflict = errors.New("transaction version conflict")

type ITransactionRepository interface {
	Create(ctx context.Context, tx *domain.Transaction) error
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	GetByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	GetByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error)
	ListByState(ctx context.Context, state domain.State, limit, offset int) ([]*domain.Transaction, error)
	ListAccountIDs(ctx context.Context) ([]string, error)
	UpdateState(ctx context.Context, id string, state domain.State, expectedVersion int64) error
}
