/*
Package ledger provides the transaction-processing core of the payments engine.

PURPOSE:
  This package holds per-client account state and the history of monetary
  movements, and applies the dispute lifecycle (deposit, withdrawal, dispute,
  resolve, chargeback) with exact decimal precision. It has no knowledge of
  files, flags or output formats: it receives one validated Transaction at a
  time and reports an outcome.

KEY CONCEPTS IN THIS FILE (types.go):
  - TransactionType: closed set of the five transaction kinds
  - Transaction: an immutable, validated input record
  - Account: mutable per-client balances (total is always derived)
  - HistoryEntry: the stored record of a deposit or withdrawal, with its
    dispute state

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, never float64
  2. Derived totals: total = available + held is computed, never stored
  3. Single choke point: all state changes go through Store (store.go)
  4. No partial effects: a rejected transaction leaves state untouched

USAGE:
  engine := ledger.NewEngine(store.NewTxMemory())
  tx, err := ledger.ParseRecord([]string{"deposit", "1", "1", "1.5"})
  if err == nil {
      err = engine.Apply(ctx, tx)
  }

SEE ALSO:
  - parse.go: Record validation
  - engine.go: The state machine
  - projection.go: Reportable account views and full-state snapshots
*/
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ClientID uint16
type TxID uint32

// Sequence is the arrival order of a record, assigned during ingestion.
type Sequence uint32

// Scale is the maximum number of fractional digits an amount may carry.
const Scale int32 = 4

// =============================================================================
// TRANSACTION TYPE - Closed enumeration
// =============================================================================

type TransactionType int

const (
	Deposit TransactionType = iota + 1
	Withdrawal
	Dispute
	Resolve
	Chargeback
)

func (t TransactionType) String() string {
	switch t {
	case Deposit:
		return "deposit"
	case Withdrawal:
		return "withdrawal"
	case Dispute:
		return "dispute"
	case Resolve:
		return "resolve"
	case Chargeback:
		return "chargeback"
	}
	return fmt.Sprintf("TransactionType(%d)", int(t))
}

// IsMovement reports whether t creates a history entry (deposit, withdrawal).
func (t TransactionType) IsMovement() bool {
	return t == Deposit || t == Withdrawal
}

// MarshalText renders the lowercase input spelling.
func (t TransactionType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// =============================================================================
// TRANSACTION - Validated input record
// =============================================================================

// Transaction is immutable once built by ParseRecord. For movements TxID names
// a new movement; for dispute-class kinds it names the movement being
// referenced and Amount must equal that movement's stored amount.
type Transaction struct {
	Sequence Sequence
	Kind     TransactionType
	ClientID ClientID
	TxID     TxID
	Amount   decimal.Decimal
}

// WithSequence returns a copy of tx stamped with seq.
func (tx Transaction) WithSequence(seq Sequence) Transaction {
	tx.Sequence = seq
	return tx
}

func (tx Transaction) String() string {
	return fmt.Sprintf("#%d %s client=%d tx=%d amount=%s",
		tx.Sequence, tx.Kind, tx.ClientID, tx.TxID, tx.Amount.String())
}

// =============================================================================
// ACCOUNT - Per-client balances
// =============================================================================

type Account struct {
	ClientID  ClientID
	Available decimal.Decimal
	Held      decimal.Decimal
	Locked    bool
}

// NewAccount returns an unlocked account with zero balances.
func NewAccount(id ClientID) Account {
	return Account{ClientID: id, Available: decimal.Zero, Held: decimal.Zero}
}

// Total is derived on every call so it can never drift from its parts.
func (a Account) Total() decimal.Decimal {
	return a.Available.Add(a.Held)
}

// =============================================================================
// HISTORY ENTRY - Stored movement with dispute state
// =============================================================================

type DisputeState string

const (
	StateSettled      DisputeState = "settled"
	StateDisputed     DisputeState = "disputed"
	StateChargebacked DisputeState = "chargebacked"
)

// HistoryEntry records an accepted deposit or withdrawal. Entries are never
// deleted; only State changes after creation.
type HistoryEntry struct {
	TxID     TxID
	ClientID ClientID
	Kind     TransactionType
	Amount   decimal.Decimal
	Sequence Sequence
	State    DisputeState
}

// NewHistoryEntry builds the Settled entry for an accepted movement.
func NewHistoryEntry(tx Transaction) HistoryEntry {
	return HistoryEntry{
		TxID:     tx.TxID,
		ClientID: tx.ClientID,
		Kind:     tx.Kind,
		Amount:   tx.Amount,
		Sequence: tx.Sequence,
		State:    StateSettled,
	}
}
