package ledgerservice

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvopay/ledger/internal/domain"
	"github.com/arvopay/ledger/internal/ledger"
	"github.com/arvopay/ledger/internal/repositories/balancerepo"
	"github.com/arvopay/ledger/internal/repositories/transactionrepo"
	"github.com/arvopay/ledger/pkg/config"
)

// ---------------------------------------------------------------------------
// In-memory fakes
// ---------------------------------------------------------------------------

type fakeTransactionRepo struct {
	mu  sync.Mutex
	txs map[string]*domain.Transaction

	// conflictOnce makes the next UpdateState fail with a version conflict
	// exactly once, simulating a concurrent writer.
	conflictOnce bool
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{txs: make(map[string]*domain.Transaction)}
}

func (f *fakeTransactionRepo) Create(_ context.Context, tx *domain.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	tx.Version = 1
	clone := *tx
	f.txs[tx.ID] = &clone
	return nil
}

func (f *fakeTransactionRepo) GetByID(_ context.Context, id string) (*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[id]
	if !ok {
		return nil, nil
	}
	clone := *tx
	return &clone, nil
}

func (f *fakeTransactionRepo) GetByReference(_ context.Context, reference string) (*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.txs {
		if tx.Reference == reference {
			clone := *tx
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *fakeTransactionRepo) GetByAccount(_ context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Transaction
	for _, tx := range f.txs {
		if tx.AccountID == accountID {
			clone := *tx
			out = append(out, &clone)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	return out[offset:], nil
}

func (f *fakeTransactionRepo) ListByState(_ context.Context, state domain.State, limit, offset int) ([]*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Transaction
	for _, tx := range f.txs {
		if state == "" || tx.State == state {
			clone := *tx
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeTransactionRepo) ListAccountIDs(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool)
	var ids []string
	for _, tx := range f.txs {
		if !seen[tx.AccountID] {
			seen[tx.AccountID] = true
			ids = append(ids, tx.AccountID)
		}
	}
	return ids, nil
}

func (f *fakeTransactionRepo) UpdateState(_ context.Context, id string, state domain.State, expectedVersion int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflictOnce {
		f.conflictOnce = false
		return transactionrepo.ErrVersionConflict
	}
	tx, ok := f.txs[id]
	if !ok || tx.Version != expectedVersion {
		return transactionrepo.ErrVersionConflict
	}
	tx.State = state
	tx.Version++
	return nil
}

type fakeBalanceRepo struct {
	mu        sync.Mutex
	snapshots map[string]*domain.BalanceSnapshot
}

func newFakeBalanceRepo() *fakeBalanceRepo {
	return &fakeBalanceRepo{snapshots: make(map[string]*domain.BalanceSnapshot)}
}

func (f *fakeBalanceRepo) GetSnapshot(_ context.Context, accountID string) (*domain.BalanceSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot, ok := f.snapshots[accountID]
	if !ok {
		return nil, nil
	}
	clone := *snapshot
	return &clone, nil
}

func (f *fakeBalanceRepo) UpsertSnapshot(_ context.Context, snapshot *domain.BalanceSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.snapshots[snapshot.AccountID]
	if snapshot.Version == 0 {
		if ok {
			return balancerepo.ErrVersionConflict
		}
	} else if !ok || existing.Version != snapshot.Version {
		return balancerepo.ErrVersionConflict
	}
	snapshot.Version++
	clone := *snapshot
	f.snapshots[snapshot.AccountID] = &clone
	return nil
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	entries []*domain.TransactionHistory
}

func (f *fakeHistoryRepo) Append(_ context.Context, entry *domain.TransactionHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeHistoryRepo) ListByTransaction(_ context.Context, transactionID string) ([]*domain.TransactionHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.TransactionHistory
	for _, e := range f.entries {
		if e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	return out, nil
}

type captureBroadcaster struct {
	mu     sync.Mutex
	events []domain.TransitionEvent
}

func (c *captureBroadcaster) BroadcastTransition(event domain.TransitionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type harness struct {
	svc         ILedgerService
	txRepo      *fakeTransactionRepo
	balRepo     *fakeBalanceRepo
	histRepo    *fakeHistoryRepo
	broadcaster *captureBroadcaster
}

func newHarness() *harness {
	txRepo := newFakeTransactionRepo()
	balRepo := newFakeBalanceRepo()
	histRepo := &fakeHistoryRepo{}
	broadcaster := &captureBroadcaster{}

	svc := NewLedgerService(
		txRepo,
		balRepo,
		histRepo,
		ledger.NewLifecycle(),
		ledger.NewProjector(nil),
		nil,
		broadcaster,
		config.LedgerConfig{TransitionRetry: 3},
		config.ReconcilerConfig{},
		zerolog.Nop(),
	)

	return &harness{
		svc:         svc,
		txRepo:      txRepo,
		balRepo:     balRepo,
		histRepo:    histRepo,
		broadcaster: broadcaster,
	}
}

func (h *harness) createUSD(t *testing.T, amount string) *domain.Transaction {
	t.Helper()
	tx, err := h.svc.CreateTransaction(context.Background(), &domain.CreateTransactionRequest{
		AccountID: "acc-1",
		Amount:    amount,
		Currency:  "USD",
	})
	require.NoError(t, err)
	return tx
}

func (h *harness) drive(t *testing.T, id string, states ...domain.State) {
	t.Helper()
	for _, s := range states {
		_, err := h.svc.Transition(context.Background(), id, s, "")
		require.NoError(t, err)
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestLedgerService_CreateProjectsPendingBalance(t *testing.T) {
	t.Parallel()

	h := newHarness()
	tx := h.createUSD(t, "100.00")

	assert.Equal(t, domain.StateInitiated, tx.State)
	assert.NotEmpty(t, tx.ID)

	snapshot, err := h.svc.GetBalance(context.Background(), "acc-1")
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.True(t, decimal.RequireFromString("100.00").Equal(snapshot.Pending))
	assert.True(t, decimal.RequireFromString("100.00").Equal(snapshot.Ledger))
	assert.True(t, snapshot.Settled.IsZero())
}

func TestLedgerService_CreateIsIdempotentByReference(t *testing.T) {
	t.Parallel()

	h := newHarness()
	req := &domain.CreateTransactionRequest{
		AccountID: "acc-1",
		Amount:    "10.00",
		Currency:  "USD",
		Reference: "evt-123",
	}

	first, err := h.svc.CreateTransaction(context.Background(), req)
	require.NoError(t, err)
	second, err := h.svc.CreateTransaction(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	snapshot, err := h.svc.GetBalance(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("10.00").Equal(snapshot.Pending), "pending counted once, got %s", snapshot.Pending)
}

func TestLedgerService_CreateRejectsBadInput(t *testing.T) {
	t.Parallel()

	h := newHarness()

	_, err := h.svc.CreateTransaction(context.Background(), &domain.CreateTransactionRequest{
		AccountID: "acc-1", Amount: "10.00", Currency: "usd",
	})
	require.Error(t, err)

	_, err = h.svc.CreateTransaction(context.Background(), &domain.CreateTransactionRequest{
		AccountID: "acc-1", Amount: "0", Currency: "USD",
	})
	require.Error(t, err)
}

func TestLedgerService_HappyPathToSettled(t *testing.T) {
	t.Parallel()

	h := newHarness()
	tx := h.createUSD(t, "100.00")
	h.drive(t, tx.ID, domain.StatePending, domain.StateProcessing, domain.StatePosted, domain.StateSettled)

	got, err := h.svc.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSettled, got.State)

	snapshot, err := h.svc.GetBalance(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("100.00").Equal(snapshot.Settled))
	assert.True(t, snapshot.Pending.IsZero())
	assert.True(t, decimal.RequireFromString("100.00").Equal(snapshot.Available))

	history, err := h.svc.GetHistory(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, domain.StateInitiated, history[0].FromState)
	assert.Equal(t, domain.StateSettled, history[3].ToState)

	assert.Len(t, h.broadcaster.events, 4)
	assert.Equal(t, "acc-1", h.broadcaster.events[0].AccountID)
}

func TestLedgerService_IllegalTransitionRejected(t *testing.T) {
	t.Parallel()

	h := newHarness()
	tx := h.createUSD(t, "100.00")
	h.drive(t, tx.ID, domain.StatePending, domain.StateFailed)

	_, err := h.svc.Transition(context.Background(), tx.ID, domain.StatePending, "")
	var illegal *ledger.IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, domain.StateFailed, illegal.From)
	assert.Equal(t, domain.StatePending, illegal.To)

	// No history or balance movement from the rejected request.
	history, err := h.svc.GetHistory(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestLedgerService_DuplicateDeliveryIsNoOp(t *testing.T) {
	t.Parallel()

	h := newHarness()
	tx := h.createUSD(t, "100.00")
	h.drive(t, tx.ID, domain.StatePending)

	result, err := h.svc.Transition(context.Background(), tx.ID, domain.StatePending, "webhook redelivery")
	require.NoError(t, err)
	assert.True(t, result.NoOp)

	history, err := h.svc.GetHistory(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestLedgerService_VersionConflictRetries(t *testing.T) {
	t.Parallel()

	h := newHarness()
	tx := h.createUSD(t, "100.00")

	h.txRepo.conflictOnce = true
	result, err := h.svc.Transition(context.Background(), tx.ID, domain.StatePending, "")
	require.NoError(t, err)
	assert.False(t, result.NoOp)
	assert.Equal(t, domain.StatePending, result.Transaction.State)
}

func TestLedgerService_TransitionNotFound(t *testing.T) {
	t.Parallel()

	h := newHarness()
	_, err := h.svc.Transition(context.Background(), uuid.New().String(), domain.StatePending, "")
	require.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestLedgerService_ReconcileHealsDrift(t *testing.T) {
	t.Parallel()

	h := newHarness()
	tx := h.createUSD(t, "100.00")
	h.drive(t, tx.ID, domain.StatePending, domain.StateProcessing, domain.StatePosted, domain.StateSettled)

	// Corrupt the stored snapshot to simulate drift.
	h.balRepo.mu.Lock()
	h.balRepo.snapshots["acc-1"].Settled = decimal.RequireFromString("999.00")
	h.balRepo.mu.Unlock()

	report, err := h.svc.Reconcile(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.True(t, report.InDrift)
	assert.True(t, decimal.RequireFromString("100.00").Equal(report.Recomputed.Settled))

	snapshot, err := h.svc.GetBalance(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("100.00").Equal(snapshot.Settled))
}

func TestLedgerService_ReconcileCleanAccount(t *testing.T) {
	t.Parallel()

	h := newHarness()
	tx := h.createUSD(t, "50.00")
	h.drive(t, tx.ID, domain.StatePending, domain.StateProcessing, domain.StatePosted, domain.StateSettled, domain.StateDisputed)

	report, err := h.svc.Reconcile(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.False(t, report.InDrift)
	assert.True(t, decimal.RequireFromString("50.00").Equal(report.Recomputed.Restricted))
	assert.True(t, report.Recomputed.Available.IsZero())
}
