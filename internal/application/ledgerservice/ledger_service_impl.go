package ledgerservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/arvopay/ledger/internal/domain"
	"github.com/arvopay/ledger/internal/infrastructure/cache"
	"github.com/arvopay/ledger/internal/ledger"
	"github.com/arvopay/ledger/internal/repositories/balancerepo"
	"github.com/arvopay/ledger/internal/repositories/historyrepo"
	"github.com/arvopay/ledger/internal/repositories/transactionrepo"
	"github.com/arvopay/ledger/pkg/config"
	"github.com/arvopay/ledger/pkg/money"
)

const reconcilePageSize = 500

type ledgerService struct {
	transactionRepo transactionrepo.ITransactionRepository
	balanceRepo     balancerepo.IBalanceRepository
	historyRepo     historyrepo.IHistoryRepository
	lifecycle       *ledger.Lifecycle
	projector       *ledger.Projector
	snapshotCache   *cache.SnapshotCache
	broadcaster     TransitionBroadcaster
	config          config.LedgerConfig
	reconciler      config.ReconcilerConfig
	logger          zerolog.Logger
}

func NewLedgerService(
	transactionRepo transactionrepo.ITransactionRepository,
	balanceRepo balancerepo.IBalanceRepository,
	historyRepo historyrepo.IHistoryRepository,
	lifecycle *ledger.Lifecycle,
	projector *ledger.Projector,
	snapshotCache *cache.SnapshotCache,
	broadcaster TransitionBroadcaster,
	cfg config.LedgerConfig,
	reconciler config.ReconcilerConfig,
	logger zerolog.Logger,
) ILedgerService {
	return &ledgerService{
		transactionRepo: transactionRepo,
		balanceRepo:     balanceRepo,
		historyRepo:     historyRepo,
		lifecycle:       lifecycle,
		projector:       projector,
		snapshotCache:   snapshotCache,
		broadcaster:     broadcaster,
		config:          cfg,
		reconciler:      reconciler,
		logger:          logger,
	}
}

func (s *ledgerService) CreateTransaction(ctx context.Context, req *domain.CreateTransactionRequest) (*domain.Transaction, error) {
	if !money.ValidCurrency(req.Currency) {
		return nil, fmt.Errorf("invalid currency code %q", req.Currency)
	}

	amount, err := money.ParseAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	if req.Reference != "" {
		existing, err := s.transactionRepo.GetByReference(ctx, req.Reference)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.logger.Info().
				Str("transaction_id", existing.ID).
				Str("reference", req.Reference).
				Msg("Duplicate create request, returning existing transaction")
			return existing, nil
		}
	}

	tx := &domain.Transaction{
		AccountID: req.AccountID,
		Amount:    amount,
		Currency:  req.Currency,
		State:     domain.StateInitiated,
		Reference: req.Reference,
		Metadata:  req.Metadata,
	}

	if err := s.transactionRepo.Create(ctx, tx); err != nil {
		return nil, err
	}

	if err := s.applyDelta(ctx, tx.AccountID, tx.Currency, s.lifecycle.CreationDelta(tx)); err != nil {
		// The transaction row is already durable; the snapshot is derived
		// state and the reconciler will converge it.
		s.logger.Error().Err(err).
			Str("transaction_id", tx.ID).
			Str("account_id", tx.AccountID).
			Msg("Failed to project creation delta, snapshot will drift until reconciled")
	}

	s.logger.Info().
		Str("transaction_id", tx.ID).
		Str("account_id", tx.AccountID).
		Str("amount", money.Format(tx.Amount, tx.Currency)).
		Msg("Transaction created")

	return tx, nil
}

// Transition drives one state change end to end: load, decide, persist
// with an optimistic version check, project the balance delta, append
// history. A version conflict means a concurrent writer got there first;
// the transaction is re-read and the transition re-evaluated, which
// resolves duplicate deliveries to the idempotent no-op case.
func (s *ledgerService) Transition(ctx context.Context, transactionID string, target domain.State, reason string) (*TransitionResult, error) {
	for attempt := 0; attempt < s.config.TransitionRetry; attempt++ {
		tx, err := s.transactionRepo.GetByID(ctx, transactionID)
		if err != nil {
			return nil, err
		}
		if tx == nil {
			return nil, ErrTransactionNotFound
		}

		outcome, err := s.lifecycle.Transition(tx, target, reason)
		if err != nil {
			return nil, err
		}

		if outcome.NoOp {
			s.logger.Info().
				Str("transaction_id", tx.ID).
				Str("state", string(tx.State)).
				Msg("Transition is a no-op, state already current")
			return &TransitionResult{Transaction: tx, NoOp: true}, nil
		}

		err = s.transactionRepo.UpdateState(ctx, tx.ID, outcome.NewState, tx.Version)
		if errors.Is(err, transactionrepo.ErrVersionConflict) {
			s.logger.Warn().
				Str("transaction_id", tx.ID).
				Int("attempt", attempt+1).
				Msg("Concurrent transition detected, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}

		if err := s.historyRepo.Append(ctx, outcome.History); err != nil {
			return nil, err
		}

		if err := s.applyDelta(ctx, tx.AccountID, tx.Currency, outcome.Delta); err != nil {
			s.logger.Error().Err(err).
				Str("transaction_id", tx.ID).
				Str("account_id", tx.AccountID).
				Msg("Failed to project transition delta, snapshot will drift until reconciled")
		}

		if s.broadcaster != nil {
			s.broadcaster.BroadcastTransition(domain.TransitionEvent{
				TransactionID: tx.ID,
				AccountID:     tx.AccountID,
				FromState:     outcome.History.FromState,
				ToState:       outcome.History.ToState,
				Reason:        reason,
				OccurredAt:    outcome.History.OccurredAt,
			})
		}

		s.logger.Info().
			Str("transaction_id", tx.ID).
			Str("from_state", string(outcome.History.FromState)).
			Str("to_state", string(outcome.History.ToState)).
			Msg("Transaction transitioned")

		tx.State = outcome.NewState
		tx.Version++
		return &TransitionResult{Transaction: tx}, nil
	}

	return nil, ErrConflictRetriesExhausted
}

// applyDelta folds one balance delta into the account snapshot under the
// snapshot's own optimistic concurrency loop. Two transactions for the
// same account may transition concurrently; only the snapshot write is
// serialized, by retrying against the latest version.
func (s *ledgerService) applyDelta(ctx context.Context, accountID, currency string, delta ledger.BalanceDelta) error {
	if delta.IsZero() {
		return nil
	}

	for attempt := 0; attempt < s.config.TransitionRetry; attempt++ {
		snapshot, err := s.balanceRepo.GetSnapshot(ctx, accountID)
		if err != nil {
			return err
		}
		if snapshot == nil {
			fresh := s.projector.NewSnapshot(accountID, currency)
			snapshot = &fresh
		}

		next, err := s.projector.Apply(*snapshot, delta)
		if err != nil {
			return err
		}
		next.Version = snapshot.Version

		err = s.balanceRepo.UpsertSnapshot(ctx, &next)
		if errors.Is(err, balancerepo.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return err
		}

		if s.snapshotCache != nil {
			s.snapshotCache.Set(ctx, &next)
		}
		return nil
	}

	return ErrConflictRetriesExhausted
}

func (s *ledgerService) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	tx, err := s.transactionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrTransactionNotFound
	}
	return tx, nil
}

func (s *ledgerService) GetTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	tx, err := s.transactionRepo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrTransactionNotFound
	}
	return tx, nil
}

func (s *ledgerService) GetHistory(ctx context.Context, transactionID string) ([]*domain.TransactionHistory, error) {
	tx, err := s.transactionRepo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrTransactionNotFound
	}
	return s.historyRepo.ListByTransaction(ctx, transactionID)
}

func (s *ledgerService) ListTransactions(ctx context.Context, state domain.State, limit, offset int) ([]*domain.Transaction, error) {
	if state != "" && !state.Valid() {
		return nil, &ledger.UnknownStateError{State: state}
	}
	return s.transactionRepo.ListByState(ctx, state, limit, offset)
}

func (s *ledgerService) ListAccountTransactions(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error) {
	return s.transactionRepo.GetByAccount(ctx, accountID, limit, offset)
}

func (s *ledgerService) GetBalance(ctx context.Context, accountID string) (*domain.BalanceSnapshot, error) {
	if s.snapshotCache != nil {
		if cached := s.snapshotCache.Get(ctx, accountID); cached != nil {
			return cached, nil
		}
	}

	snapshot, err := s.balanceRepo.GetSnapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, nil
	}

	if s.snapshotCache != nil {
		s.snapshotCache.Set(ctx, snapshot)
	}
	return snapshot, nil
}

// Reconcile recomputes the account's snapshot from its full transaction
// set and compares it with the stored one. On drift the recomputed
// snapshot is written back, since the transaction rows are the source of
// truth and the snapshot is only a cache of them.
func (s *ledgerService) Reconcile(ctx context.Context, accountID string) (*domain.DriftReport, error) {
	var all []*domain.Transaction
	for offset := 0; ; offset += reconcilePageSize {
		page, err := s.transactionRepo.GetByAccount(ctx, accountID, reconcilePageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < reconcilePageSize {
			break
		}
	}

	stored, err := s.balanceRepo.GetSnapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}

	currency := ""
	if stored != nil {
		currency = stored.Currency
	} else if len(all) > 0 {
		currency = all[0].Currency
	}

	recomputed, err := s.projector.Recompute(accountID, currency, all)
	if err != nil {
		return nil, err
	}

	report := &domain.DriftReport{
		AccountID:  accountID,
		Stored:     stored,
		Recomputed: &recomputed,
		CheckedAt:  time.Now().UTC(),
	}
	report.InDrift = stored == nil && len(all) > 0 ||
		stored != nil && !snapshotsEqual(stored, &recomputed)

	if report.InDrift {
		s.logger.Warn().
			Str("account_id", accountID).
			Msg("Balance drift detected, rewriting snapshot from transactions")

		if stored != nil {
			recomputed.Version = stored.Version
		}
		if err := s.balanceRepo.UpsertSnapshot(ctx, &recomputed); err != nil {
			return nil, err
		}
		if s.snapshotCache != nil {
			s.snapshotCache.Set(ctx, &recomputed)
		}
	}

	return report, nil
}

// RunDriftMonitor periodically reconciles every known account until the
// context is cancelled. Runs in its own goroutine from main.
func (s *ledgerService) RunDriftMonitor(ctx context.Context) {
	if !s.reconciler.Enabled {
		return
	}

	interval := s.reconciler.Interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	s.logger.Info().Dur("interval", interval).Msg("Drift monitor started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Drift monitor stopped")
			return
		case <-ticker.C:
			s.sweepAccounts(ctx)
		}
	}
}

func (s *ledgerService) sweepAccounts(ctx context.Context) {
	accountIDs, err := s.transactionRepo.ListAccountIDs(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Drift monitor failed to list accounts")
		return
	}

	for _, accountID := range accountIDs {
		report, err := s.Reconcile(ctx, accountID)
		if err != nil {
			s.logger.Error().Err(err).Str("account_id", accountID).Msg("Drift monitor reconcile failed")
			continue
		}
		if report.InDrift {
			s.logger.Warn().Str("account_id", accountID).Msg("Drift monitor healed snapshot")
		}
	}
}

func snapshotsEqual(a, b *domain.BalanceSnapshot) bool {
	return a.Currency == b.Currency &&
		a.Available.Equal(b.Available) &&
		a.Pending.Equal(b.Pending) &&
		a.Ledger.Equal(b.Ledger) &&
		a.Settled.Equal(b.Settled) &&
		a.Restricted.Equal(b.Restricted)
}
