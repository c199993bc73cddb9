/*
engine.go - The ledger state machine

PURPOSE:
  Applies one validated Transaction at a time to account and history state,
  enforcing the dispute lifecycle and cross-transaction invariants.

PRE-CHECKS (in order, for every transaction):
  1. Get or create the client's account (zero balances, unlocked)
  2. Movements only: reject a tx id that is already in history

PER-KIND EFFECTS:
  deposit     available += amount; new Settled entry
  withdrawal  available -= amount if available >= amount; new Settled entry
  dispute     Settled  -> Disputed:     available -= amount, held += amount
  resolve     Disputed -> Settled:      available += amount, held -= amount
  chargeback  Disputed -> Chargebacked: held -= amount, account locked

HISTORY ENTRY LIFECYCLE:
  Settled --dispute--> Disputed --resolve--> Settled
                       Disputed --chargeback--> Chargebacked (terminal)

FAILURE SEMANTICS:
  Every check runs before any write, and when the store is a TxStore the
  whole Apply runs inside WithTx. A rejected transaction leaves accounts and
  history exactly as they were, including not creating the account.

LOCKS:
  A chargeback locks the account for the rest of the run. The lock is
  reported but does not gate later deposits or withdrawals.

CONCURRENCY:
  Apply is meant for a single writer. Parallel producers would need one
  mutex around Apply.
*/
package ledger

import (
	"context"
	"fmt"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store   Store
	txStore TxStore // nil if store has no transaction support
}

// NewEngine creates a state machine over store. If store implements TxStore,
// every Apply is atomic.
func NewEngine(store Store) *Engine {
	e := &Engine{store: store}
	if ts, ok := store.(TxStore); ok {
		e.txStore = ts
	}
	return e
}

// Store exposes the backing store for projections.
func (e *Engine) Store() Store {
	return e.store
}

// Apply validates tx against current state and applies its effect.
func (e *Engine) Apply(ctx context.Context, tx Transaction) error {
	if e.txStore != nil {
		return e.txStore.WithTx(ctx, func(s Store) error {
			return apply(ctx, s, tx)
		})
	}
	return apply(ctx, e.store, tx)
}

func apply(ctx context.Context, s Store, tx Transaction) error {
	acct, err := s.EnsureAccount(ctx, tx.ClientID)
	if err != nil {
		return err
	}

	if tx.Kind.IsMovement() {
		existing, found, err := s.Movement(ctx, tx.TxID)
		if err != nil {
			return err
		}
		if found {
			return &DuplicateTransactionError{TxID: tx.TxID, Existing: existing.ClientID}
		}
	}

	switch tx.Kind {
	case Deposit:
		return deposit(ctx, s, acct, tx)
	case Withdrawal:
		return withdraw(ctx, s, acct, tx)
	case Dispute:
		return dispute(ctx, s, acct, tx)
	case Resolve:
		return resolve(ctx, s, acct, tx)
	case Chargeback:
		return chargeback(ctx, s, acct, tx)
	}
	return fmt.Errorf("apply %s: %w", tx, ErrUnknownTransactionType)
}

// =============================================================================
// MOVEMENTS
// =============================================================================

func deposit(ctx context.Context, s Store, acct Account, tx Transaction) error {
	if err := s.RecordMovement(ctx, NewHistoryEntry(tx)); err != nil {
		return err
	}
	acct.Available = acct.Available.Add(tx.Amount)
	return s.PutAccount(ctx, acct)
}

// withdraw records no history for a rejected withdrawal, so its tx id stays
// free for a later movement.
func withdraw(ctx context.Context, s Store, acct Account, tx Transaction) error {
	if acct.Available.LessThan(tx.Amount) {
		return &InsufficientFundsError{
			ClientID:  acct.ClientID,
			Available: acct.Available,
			Requested: tx.Amount,
		}
	}
	if err := s.RecordMovement(ctx, NewHistoryEntry(tx)); err != nil {
		return err
	}
	acct.Available = acct.Available.Sub(tx.Amount)
	return s.PutAccount(ctx, acct)
}

// =============================================================================
// DISPUTE LIFECYCLE
// =============================================================================

// referenced loads the movement a dispute-class tx points at and checks that
// it belongs to the same client, carries the same amount and is in state want.
func referenced(ctx context.Context, s Store, tx Transaction, want DisputeState) (HistoryEntry, error) {
	entry, found, err := s.Movement(ctx, tx.TxID)
	if err != nil {
		return HistoryEntry{}, err
	}
	if !found {
		return HistoryEntry{}, refErr(tx, ErrReferencedTransactionNotFound, "")
	}
	if entry.ClientID != tx.ClientID {
		return HistoryEntry{}, refErr(tx, ErrClientMismatch,
			fmt.Sprintf("movement belongs to client %d", entry.ClientID))
	}
	if !entry.Amount.Equal(tx.Amount) {
		return HistoryEntry{}, refErr(tx, ErrAmountMismatch,
			fmt.Sprintf("recorded %s, carried %s", entry.Amount.String(), tx.Amount.String()))
	}
	if entry.State != want {
		sentinel := ErrNotDisputed
		if want == StateSettled {
			sentinel = ErrAlreadyDisputed
		}
		return HistoryEntry{}, refErr(tx, sentinel, fmt.Sprintf("state %s", entry.State))
	}
	return entry, nil
}

func refErr(tx Transaction, sentinel error, detail string) error {
	return &ReferenceError{Kind: tx.Kind, TxID: tx.TxID, ClientID: tx.ClientID, Err: sentinel, Detail: detail}
}

func dispute(ctx context.Context, s Store, acct Account, tx Transaction) error {
	entry, err := referenced(ctx, s, tx, StateSettled)
	if err != nil {
		return err
	}
	if err := s.SetMovementState(ctx, entry.TxID, StateDisputed); err != nil {
		return err
	}
	acct.Available = acct.Available.Sub(entry.Amount)
	acct.Held = acct.Held.Add(entry.Amount)
	return s.PutAccount(ctx, acct)
}

func resolve(ctx context.Context, s Store, acct Account, tx Transaction) error {
	entry, err := referenced(ctx, s, tx, StateDisputed)
	if err != nil {
		return err
	}
	if err := s.SetMovementState(ctx, entry.TxID, StateSettled); err != nil {
		return err
	}
	acct.Available = acct.Available.Add(entry.Amount)
	acct.Held = acct.Held.Sub(entry.Amount)
	return s.PutAccount(ctx, acct)
}

func chargeback(ctx context.Context, s Store, acct Account, tx Transaction) error {
	entry, err := referenced(ctx, s, tx, StateDisputed)
	if err != nil {
		return err
	}
	if err := s.SetMovementState(ctx, entry.TxID, StateChargebacked); err != nil {
		return err
	}
	acct.Held = acct.Held.Sub(entry.Amount)
	acct.Locked = true
	return s.PutAccount(ctx, acct)
}
