package balancerepo

import (
	"context"
	"errors"

	"github.com/arvopay/ledger/internal/domain"
)

// ErrVersionConflict is returned by UpsertSnapshot when another writer
// updated the snapshot since it was read.
var ErrVersionConflict = errors.New("balance snapshot version conflict")

type IBalanceRepository interface {
	GetSnapshot(ctx context.Context, accountID string) (*domain.BalanceSnapshot, error)
	UpsertSnapshot(ctx context.Context, snapshot *domain.BalanceSnapshot) error
}
