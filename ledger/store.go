/*
store.go - State interface for accounts and movement history

PURPOSE:
  Defines the single choke point through which the state machine reads and
  writes ledger state. The engine never touches maps or tables directly, so
  the invariants below are enforced in one place per backend.

KEY INTERFACES:
  Store:   Account and history access
  TxStore: Store plus all-or-nothing execution of one Apply

INVARIANTS ENFORCED BY EVERY STORE:
  - One account per client, created by EnsureAccount with zero balances
  - One history entry per movement tx id (RecordMovement rejects duplicates)
  - History entries are never deleted; only their state changes
  - PutAccount never clears a lock

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory (default)
  - store/sqlite/sqlite.go: SQLite, for on-disk diagnostics

SEE ALSO:
  - engine.go: The only caller that mutates through Store
*/
package ledger

import "context"

// =============================================================================
// STORE - Interface for ledger state
// =============================================================================

type Store interface {
	// EnsureAccount returns the client's account, creating a zero, unlocked
	// one if it does not exist yet.
	EnsureAccount(ctx context.Context, id ClientID) (Account, error)

	// Account returns the client's account and whether it exists.
	Account(ctx context.Context, id ClientID) (Account, bool, error)

	// PutAccount overwrites balances. A locked account stays locked.
	PutAccount(ctx context.Context, a Account) error

	// Movement returns the history entry for a movement tx id.
	Movement(ctx context.Context, id TxID) (HistoryEntry, bool, error)

	// RecordMovement inserts a new history entry. Returns a
	// DuplicateTransactionError if the tx id already exists.
	RecordMovement(ctx context.Context, e HistoryEntry) error

	// SetMovementState moves an existing entry through the dispute lifecycle.
	SetMovementState(ctx context.Context, id TxID, state DisputeState) error

	// Accounts returns every account ordered by client id.
	Accounts(ctx context.Context) ([]Account, error)

	// History returns every movement ordered by arrival sequence.
	History(ctx context.Context) ([]HistoryEntry, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For all-or-nothing application
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the given Store is undone.
	WithTx(ctx context.Context, fn func(Store) error) error
}
