package historyrepo

import (
	"context"

	"github.com/arvopay/ledger/internal/domain"
)

// IHistoryRepository stores transition history rows. The table is
// append-only; there are no update or delete operations.
type IHistoryRepository interface {
	Append(ctx context.Context, entry *domain.TransactionHistory) error
	ListByTransaction(ctx context.Context, transactionID string) ([]*domain.TransactionHistory, error)
}
