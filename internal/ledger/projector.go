package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/arvopay/ledger/internal/domain"
)

// BalanceDelta describes how one transaction's state change moves value
// between balance buckets. Each field is a signed adjustment to the
// corresponding bucket sum.
type BalanceDelta struct {
	Currency   string
	Pending    decimal.Decimal
	Settled    decimal.Decimal
	Restricted decimal.Decimal
}

// IsZero reports whether the delta adjusts nothing.
func (d BalanceDelta) IsZero() bool {
	return d.Pending.IsZero() && d.Settled.IsZero() && d.Restricted.IsZero()
}

func emptyDelta(currency string) BalanceDelta {
	return BalanceDelta{Currency: currency}
}

// contribution maps a lifecycle state to the bucket sums a transaction's
// amount counts toward while in that state.
//
//	initiated, pending, processing, held_compliance, posted -> pending
//	settled, adjusted                                       -> settled
//	disputed        -> settled, with the amount mirrored into restricted
//	returned, reversed, failed, refunded                    -> none (void)
func contribution(s domain.State, amount decimal.Decimal) (pending, settled, restricted decimal.Decimal) {
	switch s {
	case domain.StateInitiated, domain.StatePending, domain.StateProcessing,
		domain.StateHeldCompliance, domain.StatePosted:
		return amount, decimal.Zero, decimal.Zero
	case domain.StateSettled, domain.StateAdjusted:
		return decimal.Zero, amount, decimal.Zero
	case domain.StateDisputed:
		return decimal.Zero, amount, amount
	default:
		// returned, reversed, failed, refunded: economically void.
		return decimal.Zero, decimal.Zero, decimal.Zero
	}
}

func deltaBetween(from, to domain.State, amount decimal.Decimal, currency string) BalanceDelta {
	fromPending, fromSettled, fromRestricted := contribution(from, amount)
	toPending, toSettled, toRestricted := contribution(to, amount)
	return BalanceDelta{
		Currency:   currency,
		Pending:    toPending.Sub(fromPending),
		Settled:    toSettled.Sub(fromSettled),
		Restricted: toRestricted.Sub(fromRestricted),
	}
}

// OverdraftFunc resolves the configured overdraft limit for an account.
// The limit is a non-negative amount; available balance never drops below
// its negation. A nil func means no account may overdraw.
type OverdraftFunc func(accountID string) decimal.Decimal

// Projector recomputes and patches the five per-account balance views.
// Pure computation: both Apply and Recompute return new snapshots and
// never touch storage.
type Projector struct {
	overdraft OverdraftFunc
}

func NewProjector(overdraft OverdraftFunc) *Projector {
	if overdraft == nil {
		overdraft = func(string) decimal.Decimal { return decimal.Zero }
	}
	return &Projector{overdraft: overdraft}
}

// NewSnapshot returns the zero-valued snapshot for an account, used when
// the account's first transaction arrives.
func (p *Projector) NewSnapshot(accountID, currency string) domain.BalanceSnapshot {
	return domain.BalanceSnapshot{
		AccountID: accountID,
		Currency:  currency,
	}
}

// Apply folds a single delta into a snapshot and rederives the ledger and
// available views. The input snapshot is not modified.
func (p *Projector) Apply(snapshot domain.BalanceSnapshot, delta BalanceDelta) (domain.BalanceSnapshot, error) {
	if snapshot.Currency != delta.Currency {
		return domain.BalanceSnapshot{}, &CurrencyMismatchError{Want: snapshot.Currency, Got: delta.Currency}
	}

	next := snapshot
	next.Pending = snapshot.Pending.Add(delta.Pending)
	next.Settled = snapshot.Settled.Add(delta.Settled)
	next.Restricted = snapshot.Restricted.Add(delta.Restricted)
	p.derive(&next)

	return next, nil
}

// Recompute independently sums every non-void transaction into its bucket.
// It is order-independent and must agree exactly with incrementally folding
// Apply over the same transaction set; the reconciler leans on that
// equivalence for drift detection. Transactions in a different currency are
// rejected, never summed.
func (p *Projector) Recompute(accountID, currency string, txs []*domain.Transaction) (domain.BalanceSnapshot, error) {
	snapshot := p.NewSnapshot(accountID, currency)
	for _, tx := range txs {
		if tx.Currency != currency {
			return domain.BalanceSnapshot{}, &CurrencyMismatchError{Want: currency, Got: tx.Currency}
		}
		pending, settled, restricted := contribution(tx.State, tx.Amount)
		snapshot.Pending = snapshot.Pending.Add(pending)
		snapshot.Settled = snapshot.Settled.Add(settled)
		snapshot.Restricted = snapshot.Restricted.Add(restricted)
	}
	p.derive(&snapshot)
	snapshot.UpdatedAt = time.Now().UTC()
	return snapshot, nil
}

// derive rederives the dependent views from the bucket sums: ledger is
// pending plus settled by construction, and available is ledger minus
// restricted, floored at the account's overdraft limit.
func (p *Projector) derive(s *domain.BalanceSnapshot) {
	s.Ledger = s.Pending.Add(s.Settled)

	available := s.Ledger.Sub(s.Restricted)
	floor := p.overdraft(s.AccountID).Neg()
	if available.LessThan(floor) {
		available = floor
	}
	s.Available = available
}
