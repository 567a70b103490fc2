package ledger

import (
	"fmt"

	"github.com/arvopay/ledger/internal/domain"
)

// IllegalTransitionError reports a (from, to) pair that is not in the
// transition table. It carries the attempted pair for diagnostics.
type IllegalTransitionError struct {
	From domain.State
	To   domain.State
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition: %s -> %s", e.From, e.To)
}

// UnknownStateError reports a state outside the closed state set.
type UnknownStateError struct {
	State domain.State
}

func (e *UnknownStateError) Error() string {
	return fmt.Sprintf("unknown state: %q", e.State)
}

// CurrencyMismatchError reports an attempt to mix currencies in one
// account's balance view. Cross-currency amounts are rejected, not summed.
type CurrencyMismatchError struct {
	Want string
	Got  string
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("currency mismatch: snapshot is %s, transaction is %s", e.Want, e.Got)
}
