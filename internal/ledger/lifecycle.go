package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arvopay/ledger/internal/domain"
)

// transitionTable defines every legal state movement. Every member of the
// closed state set has an entry; terminal states map to an empty set.
//
// Post-settlement exceptions: settled may move to disputed, refunded or
// adjusted, and a dispute resolves to reversed (payee loses) or back to
// settled (payee keeps the funds). There is no disputed -> refunded edge;
// refunds are only initiated from settled.
var transitionTable = map[domain.State][]domain.State{
	domain.StateInitiated:      {domain.StatePending, domain.StateFailed},
	domain.StatePending:        {domain.StateProcessing, domain.StateFailed, domain.StateHeldCompliance},
	domain.StateProcessing:     {domain.StatePosted, domain.StateFailed, domain.StateHeldCompliance},
	domain.StateHeldCompliance: {domain.StatePending, domain.StateProcessing, domain.StateFailed},
	domain.StatePosted:         {domain.StateSettled, domain.StateReturned, domain.StateReversed},
	domain.StateSettled:        {domain.StateDisputed, domain.StateRefunded, domain.StateAdjusted},
	domain.StateDisputed:       {domain.StateReversed, domain.StateSettled},
	domain.StateReturned:       {},
	domain.StateReversed:       {},
	domain.StateFailed:         {},
	domain.StateRefunded:       {},
	domain.StateAdjusted:       {},
}

func init() {
	// The table is a literal; a missing entry is a programmer error and
	// should stop the process before it serves a single request.
	for _, s := range domain.States {
		if _, ok := transitionTable[s]; !ok {
			panic(fmt.Sprintf("ledger: state %q has no transition table entry", s))
		}
	}
	for from, targets := range transitionTable {
		if !from.Valid() {
			panic(fmt.Sprintf("ledger: transition table keyed by unknown state %q", from))
		}
		for _, to := range targets {
			if !to.Valid() {
				panic(fmt.Sprintf("ledger: transition %s -> %q targets unknown state", from, to))
			}
		}
	}
}

// Outcome is the result of a successful transition: the new state, the
// history row to append, and the balance delta to feed the projector.
// For the idempotent no-op case History is nil and Delta is empty.
type Outcome struct {
	NewState domain.State
	History  *domain.TransactionHistory
	Delta    BalanceDelta
	NoOp     bool
}

// Lifecycle decides whether a requested state transition is legal and
// computes its side effects. It holds no state and performs no I/O, so a
// single instance is safe for concurrent use.
type Lifecycle struct{}

func NewLifecycle() *Lifecycle {
	return &Lifecycle{}
}

// Transition validates the (current, target) pair against the transition
// table and, when legal, returns the outcome to persist. Requesting the
// transaction's current state is accepted as a no-op success so duplicate
// webhook deliveries from upstream processors do not surface as errors.
// Nothing is mutated; persistence is the caller's responsibility.
func (l *Lifecycle) Transition(tx *domain.Transaction, target domain.State, reason string) (*Outcome, error) {
	if !target.Valid() {
		return nil, &UnknownStateError{State: target}
	}
	if !tx.State.Valid() {
		return nil, &UnknownStateError{State: tx.State}
	}

	if target == tx.State {
		return &Outcome{
			NewState: target,
			Delta:    emptyDelta(tx.Currency),
			NoOp:     true,
		}, nil
	}

	if !transitionAllowed(tx.State, target) {
		return nil, &IllegalTransitionError{From: tx.State, To: target}
	}

	return &Outcome{
		NewState: target,
		History: &domain.TransactionHistory{
			ID:            uuid.New().String(),
			TransactionID: tx.ID,
			FromState:     tx.State,
			ToState:       target,
			Reason:        reason,
			OccurredAt:    time.Now().UTC(),
		},
		Delta: deltaBetween(tx.State, target, tx.Amount, tx.Currency),
	}, nil
}

// CreationDelta admits a freshly created transaction into the balance view.
// New transactions start in initiated, so the full amount lands in the
// pending bucket.
func (l *Lifecycle) CreationDelta(tx *domain.Transaction) BalanceDelta {
	pending, settled, restricted := contribution(tx.State, tx.Amount)
	return BalanceDelta{
		Currency:   tx.Currency,
		Pending:    pending,
		Settled:    settled,
		Restricted: restricted,
	}
}

// Terminal reports whether s accepts no further transitions.
func Terminal(s domain.State) bool {
	return len(transitionTable[s]) == 0
}

func transitionAllowed(from, to domain.State) bool {
	for _, allowed := range transitionTable[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
