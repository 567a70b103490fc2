package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceSnapshot is the per-account aggregate view over that account's
// transactions. It is derived state: always reconstructible from the
// transaction set, so it may be treated as a cache. One snapshot per
// account, created lazily on the account's first transaction.
//
// Invariants maintained by the ledger package:
//
//	Ledger == Pending + Settled
//	Available == Ledger - Restricted, floored at the account's overdraft limit
type BalanceSnapshot struct {
	AccountID  string          `json:"account_id" db:"account_id"`
	Currency   string          `json:"currency" db:"currency"`
	Available  decimal.Decimal `json:"available" db:"available"`
	Pending    decimal.Decimal `json:"pending" db:"pending"`
	Ledger     decimal.Decimal `json:"ledger" db:"ledger"`
	Settled    decimal.Decimal `json:"settled" db:"settled"`
	Restricted decimal.Decimal `json:"restricted" db:"restricted"`
	Version    int64           `json:"version" db:"version"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// DriftReport is the outcome of reconciling a stored snapshot against a
// fresh recomputation from the account's transactions.
type DriftReport struct {
	AccountID  string           `json:"account_id"`
	InDrift    bool             `json:"in_drift"`
	Stored     *BalanceSnapshot `json:"stored,omitempty"`
	Recomputed *BalanceSnapshot `json:"recomputed"`
	CheckedAt  time.Time        `json:"checked_at"`
}
