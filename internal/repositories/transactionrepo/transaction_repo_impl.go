package transactionrepo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sqlc-dev/pqtype"

	"github.com/arvopay/ledger/internal/domain"
	"github.com/arvopay/ledger/internal/infrastructure/database"
)

type transactionRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func New(db *database.DBManager, logger zerolog.Logger) ITransactionRepository {
	return &transactionRepository{
		db:     db.Db,
		logger: logger,
	}
}

const transactionColumns = `id, account_id, amount, currency, state, reference, metadata, version, created_at, updated_at`

func (r *transactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	tx.Version = 1
	tx.CreatedAt = now
	tx.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, account_id, amount, currency, state, reference, metadata, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.MustParse(tx.ID),
		tx.AccountID,
		tx.Amount.String(),
		tx.Currency,
		string(tx.State),
		sql.NullString{String: tx.Reference, Valid: tx.Reference != ""},
		pqtype.NullRawMessage{RawMessage: tx.Metadata, Valid: tx.Metadata != nil},
		tx.Version,
		tx.CreatedAt,
		tx.UpdatedAt,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("account_id", tx.AccountID).Msg("Failed to create transaction")
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

func (r *transactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	txID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction id format: %v", err)
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, txID)

	tx, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("id", id).Msg("Failed to get transaction by ID")
		return nil, fmt.Errorf("failed to get transaction by ID: %w", err)
	}

	return tx, nil
}

func (r *transactionRepository) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE reference = $1`, reference)

	tx, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("reference", reference).Msg("Failed to get transaction by reference")
		return nil, fmt.Errorf("failed to get transaction by reference: %w", err)
	}

	return tx, nil
}

func (r *transactionRepository) GetByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		accountID, limit, offset)
	if err != nil {
		r.logger.Error().Err(err).Str("account_id", accountID).Msg("Failed to list transactions by account")
		return nil, fmt.Errorf("failed to list transactions by account: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ListByState lists transactions in the given state; an empty state lists
// across all states.
func (r *transactionRepository) ListByState(ctx context.Context, state domain.State, limit, offset int) ([]*domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE ($1 = '' OR state = $1) ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		string(state), limit, offset)
	if err != nil {
		r.logger.Error().Err(err).Str("state", string(state)).Msg("Failed to list transactions by state")
		return nil, fmt.Errorf("failed to list transactions by state: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func (r *transactionRepository) ListAccountIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT account_id FROM transactions`)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to list account ids")
		return nil, fmt.Errorf("failed to list account ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateState writes the new state only if the row still carries
// expectedVersion; a zero row count means a concurrent writer won and the
// caller must reload and retry.
func (r *transactionRepository) UpdateState(ctx context.Context, id string, state domain.State, expectedVersion int64) error {
	txID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid transaction id format: %v", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET state = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		string(state), time.Now().UTC(), txID, expectedVersion)
	if err != nil {
		r.logger.Error().Err(err).Str("id", id).Str("state", string(state)).Msg("Failed to update transaction state")
		return fmt.Errorf("failed to update transaction state: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		id        uuid.UUID
		amount    string
		state     string
		reference sql.NullString
		metadata  pqtype.NullRawMessage
		tx        domain.Transaction
	)

	err := row.Scan(
		&id,
		&tx.AccountID,
		&amount,
		&tx.Currency,
		&state,
		&reference,
		&metadata,
		&tx.Version,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.ID = id.String()
	tx.State = domain.State(state)
	tx.Reference = reference.String
	if metadata.Valid {
		tx.Metadata = metadata.RawMessage
	}

	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount on transaction %s: %w", tx.ID, err)
	}

	return &tx, nil
}

func scanTransactions(rows *sql.Rows) ([]*domain.Transaction, error) {
	var txs []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
