package historyrepo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arvopay/ledger/internal/domain"
	"github.com/arvopay/ledger/internal/infrastructure/database"
)

type historyRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func New(db *database.DBManager, logger zerolog.Logger) IHistoryRepository {
	return &historyRepository{
		db:     db.Db,
		logger: logger,
	}
}

func (r *historyRepository) Append(ctx context.Context, entry *domain.TransactionHistory) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transaction_history (id, transaction_id, from_state, to_state, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.MustParse(entry.ID),
		uuid.MustParse(entry.TransactionID),
		string(entry.FromState),
		string(entry.ToState),
		sql.NullString{String: entry.Reason, Valid: entry.Reason != ""},
		entry.OccurredAt,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("transaction_id", entry.TransactionID).Msg("Failed to append transaction history")
		return fmt.Errorf("failed to append transaction history: %w", err)
	}

	return nil
}

func (r *historyRepository) ListByTransaction(ctx context.Context, transactionID string) ([]*domain.TransactionHistory, error) {
	txID, err := uuid.Parse(transactionID)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction id format: %v", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, transaction_id, from_state, to_state, reason, occurred_at
		FROM transaction_history
		WHERE transaction_id = $1 ORDER BY occurred_at ASC`, txID)
	if err != nil {
		r.logger.Error().Err(err).Str("transaction_id", transactionID).Msg("Failed to list transaction history")
		return nil, fmt.Errorf("failed to list transaction history: %w", err)
	}
	defer rows.Close()

	var entries []*domain.TransactionHistory
	for rows.Next() {
		var (
			id       uuid.UUID
			tid      uuid.UUID
			from, to string
			reason   sql.NullString
			entry    domain.TransactionHistory
		)
		if err := rows.Scan(&id, &tid, &from, &to, &reason, &entry.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction history: %w", err)
		}
		entry.ID = id.String()
		entry.TransactionID = tid.String()
		entry.FromState = domain.State(from)
		entry.ToState = domain.State(to)
		entry.Reason = reason.String
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
