package balancerepo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arvopay/ledger/internal/domain"
	"github.com/arvopay/ledger/internal/infrastructure/database"
)

type balanceRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func New(db *database.DBManager, logger zerolog.Logger) IBalanceRepository {
	return &balanceRepository{
		db:     db.Db,
		logger: logger,
	}
}

func (r *balanceRepository) GetSnapshot(ctx context.Context, accountID string) (*domain.BalanceSnapshot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT account_id, currency, available, pending, ledger, settled, restricted, version, updated_at
		FROM balance_snapshots WHERE account_id = $1`, accountID)

	var (
		snapshot  domain.BalanceSnapshot
		available string
		pending   string
		ledger    string
		settled   string
		restrict  string
	)
	err := row.Scan(
		&snapshot.AccountID,
		&snapshot.Currency,
		&available,
		&pending,
		&ledger,
		&settled,
		&restrict,
		&snapshot.Version,
		&snapshot.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("account_id", accountID).Msg("Failed to get balance snapshot")
		return nil, fmt.Errorf("failed to get balance snapshot: %w", err)
	}

	fields := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{available, &snapshot.Available},
		{pending, &snapshot.Pending},
		{ledger, &snapshot.Ledger},
		{settled, &snapshot.Settled},
		{restrict, &snapshot.Restricted},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt balance on account %s: %w", accountID, err)
		}
		*f.dst = d
	}

	return &snapshot, nil
}

// UpsertSnapshot persists the snapshot with an optimistic version check.
// Version 0 means the account has no snapshot yet and a fresh row is
// inserted; both a lost insert race and a stale update surface as
// ErrVersionConflict so the caller re-reads and retries.
func (r *balanceRepository) UpsertSnapshot(ctx context.Context, snapshot *domain.BalanceSnapshot) error {
	now := time.Now().UTC()

	var (
		result sql.Result
		err    error
	)
	if snapshot.Version == 0 {
		result, err = r.db.ExecContext(ctx, `
			INSERT INTO balance_snapshots (account_id, currency, available, pending, ledger, settled, restricted, version, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8)
			ON CONFLICT (account_id) DO NOTHING`,
			snapshot.AccountID,
			snapshot.Currency,
			snapshot.Available.String(),
			snapshot.Pending.String(),
			snapshot.Ledger.String(),
			snapshot.Settled.String(),
			snapshot.Restricted.String(),
			now,
		)
	} else {
		result, err = r.db.ExecContext(ctx, `
			UPDATE balance_snapshots
			SET available = $1, pending = $2, ledger = $3, settled = $4, restricted = $5,
			    version = version + 1, updated_at = $6
			WHERE account_id = $7 AND version = $8`,
			snapshot.Available.String(),
			snapshot.Pending.String(),
			snapshot.Ledger.String(),
			snapshot.Settled.String(),
			snapshot.Restricted.String(),
			now,
			snapshot.AccountID,
			snapshot.Version,
		)
	}
	if err != nil {
		r.logger.Error().Err(err).Str("account_id", snapshot.AccountID).Msg("Failed to upsert balance snapshot")
		return fmt.Errorf("failed to upsert balance snapshot: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}

	snapshot.Version++
	snapshot.UpdatedAt = now
	return nil
}
