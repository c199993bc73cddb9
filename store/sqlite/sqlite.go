/*
Package sqlite provides a SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Runs the ledger state machine against a SQLite database instead of
  process memory. The file is truncated when a run starts (Reset), so no
  state ever carries over between runs; what remains on disk afterwards is
  a queryable copy of the final ledger for diagnostics.

INTERFACES IMPLEMENTED:
  ledger.Store:   Account and history access
  ledger.TxStore: One SQL transaction per Apply

KEY TABLES:
  accounts:  One row per client (balances as exact decimal text)
  movements: One row per accepted deposit/withdrawal, keyed by tx id

INSERT-ONLY HISTORY:
  - No DELETE on movements outside Reset
  - The only UPDATE on movements changes the dispute state

LOCKS:
  accounts.locked is written as MAX(locked, new), so a lock can never be
  cleared through PutAccount.

CONCURRENCY:
  Uses sync.RWMutex and a single connection, which also keeps ":memory:"
  databases coherent across calls.

WAL MODE:
  File databases are opened with WAL journaling.

USAGE:
  store, err := sqlite.New("./ledger.db")
  if err != nil {
      return err
  }
  defer store.Close()
  if err := store.Reset(ctx); err != nil {
      return err
  }
  engine := ledger.NewEngine(store)

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/payments-engine/ledger"
)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_journal_mode=WAL"
	if dbPath == ":memory:" {
		dsn = dbPath
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		client_id INTEGER PRIMARY KEY,
		available TEXT NOT NULL,
		held TEXT NOT NULL,
		locked INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS movements (
		tx_id INTEGER PRIMARY KEY,
		client_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		state TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_movements_sequence
		ON movements(sequence);
	CREATE INDEX IF NOT EXISTS idx_movements_client
		ON movements(client_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset removes all accounts and movements.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM movements"); err != nil {
		return fmt.Errorf("failed to reset movements: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM accounts"); err != nil {
		return fmt.Errorf("failed to reset accounts: %w", err)
	}
	return nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *Store) EnsureAccount(ctx context.Context, id ledger.ClientID) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ensureAccount(ctx, s.db, id)
}

func (s *Store) Account(ctx context.Context, id ledger.ClientID) (ledger.Account, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadAccount(ctx, s.db, id)
}

func (s *Store) PutAccount(ctx context.Context, a ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putAccount(ctx, s.db, a)
}

func (s *Store) Accounts(ctx context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadAccounts(ctx, s.db)
}

func ensureAccount(ctx context.Context, q querier, id ledger.ClientID) (ledger.Account, error) {
	_, err := q.ExecContext(ctx,
		"INSERT OR IGNORE INTO accounts (client_id, available, held, locked) VALUES (?, '0', '0', 0)",
		int64(id),
	)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("failed to create account %d: %w", id, err)
	}
	a, _, err := loadAccount(ctx, q, id)
	return a, err
}

func loadAccount(ctx context.Context, q querier, id ledger.ClientID) (ledger.Account, bool, error) {
	row := q.QueryRowContext(ctx,
		"SELECT client_id, available, held, locked FROM accounts WHERE client_id = ?",
		int64(id),
	)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, false, nil
	}
	if err != nil {
		return ledger.Account{}, false, err
	}
	return a, true, nil
}

func putAccount(ctx context.Context, q querier, a ledger.Account) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO accounts (client_id, available, held, locked) VALUES (?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			available = excluded.available,
			held = excluded.held,
			locked = MAX(accounts.locked, excluded.locked)
	`,
		int64(a.ClientID),
		a.Available.String(),
		a.Held.String(),
		boolToInt(a.Locked),
	)
	if err != nil {
		return fmt.Errorf("failed to save account %d: %w", a.ClientID, err)
	}
	return nil
}

func loadAccounts(ctx context.Context, q querier) ([]ledger.Account, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT client_id, available, held, locked FROM accounts ORDER BY client_id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var result []ledger.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// =============================================================================
// MOVEMENTS
// =============================================================================

func (s *Store) Movement(ctx context.Context, id ledger.TxID) (ledger.HistoryEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadMovement(ctx, s.db, id)
}

func (s *Store) RecordMovement(ctx context.Context, e ledger.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return recordMovement(ctx, s.db, e)
}

func (s *Store) SetMovementState(ctx context.Context, id ledger.TxID, state ledger.DisputeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setMovementState(ctx, s.db, id, state)
}

func (s *Store) History(ctx context.Context) ([]ledger.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadHistory(ctx, s.db)
}

func loadMovement(ctx context.Context, q querier, id ledger.TxID) (ledger.HistoryEntry, bool, error) {
	row := q.QueryRowContext(ctx,
		"SELECT tx_id, client_id, kind, amount, sequence, state FROM movements WHERE tx_id = ?",
		int64(id),
	)
	e, err := scanMovement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.HistoryEntry{}, false, nil
	}
	if err != nil {
		return ledger.HistoryEntry{}, false, err
	}
	return e, true, nil
}

func recordMovement(ctx context.Context, q querier, e ledger.HistoryEntry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO movements (tx_id, client_id, kind, amount, sequence, state)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		int64(e.TxID),
		int64(e.ClientID),
		e.Kind.String(),
		e.Amount.String(),
		int64(e.Sequence),
		string(e.State),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			existing, _, lookupErr := loadMovement(ctx, q, e.TxID)
			if lookupErr != nil {
				return lookupErr
			}
			return &ledger.DuplicateTransactionError{TxID: e.TxID, Existing: existing.ClientID}
		}
		return fmt.Errorf("failed to record movement %d: %w", e.TxID, err)
	}
	return nil
}

func setMovementState(ctx context.Context, q querier, id ledger.TxID, state ledger.DisputeState) error {
	res, err := q.ExecContext(ctx, "UPDATE movements SET state = ? WHERE tx_id = ?", string(state), int64(id))
	if err != nil {
		return fmt.Errorf("failed to update movement %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update movement %d: %w", id, err)
	}
	if n == 0 {
		return &ledger.ReferenceError{TxID: id, Err: ledger.ErrReferencedTransactionNotFound}
	}
	return nil
}

func loadHistory(ctx context.Context, q querier) ([]ledger.HistoryEntry, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT tx_id, client_id, kind, amount, sequence, state FROM movements ORDER BY sequence ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var result []ledger.HistoryEntry
	for rows.Next() {
		e, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) EnsureAccount(ctx context.Context, id ledger.ClientID) (ledger.Account, error) {
	return ensureAccount(ctx, ts.tx, id)
}

func (ts *txStore) Account(ctx context.Context, id ledger.ClientID) (ledger.Account, bool, error) {
	return loadAccount(ctx, ts.tx, id)
}

func (ts *txStore) PutAccount(ctx context.Context, a ledger.Account) error {
	return putAccount(ctx, ts.tx, a)
}

func (ts *txStore) Accounts(ctx context.Context) ([]ledger.Account, error) {
	return loadAccounts(ctx, ts.tx)
}

func (ts *txStore) Movement(ctx context.Context, id ledger.TxID) (ledger.HistoryEntry, bool, error) {
	return loadMovement(ctx, ts.tx, id)
}

func (ts *txStore) RecordMovement(ctx context.Context, e ledger.HistoryEntry) error {
	return recordMovement(ctx, ts.tx, e)
}

func (ts *txStore) SetMovementState(ctx context.Context, id ledger.TxID, state ledger.DisputeState) error {
	return setMovementState(ctx, ts.tx, id, state)
}

func (ts *txStore) History(ctx context.Context) ([]ledger.HistoryEntry, error) {
	return loadHistory(ctx, ts.tx)
}

// =============================================================================
// HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(sc scanner) (ledger.Account, error) {
	var (
		clientID        int64
		available, held string
		locked          int
	)
	if err := sc.Scan(&clientID, &available, &held, &locked); err != nil {
		return ledger.Account{}, err
	}
	avail, err := decimal.NewFromString(available)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("account %d: bad available %q: %w", clientID, available, err)
	}
	h, err := decimal.NewFromString(held)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("account %d: bad held %q: %w", clientID, held, err)
	}
	return ledger.Account{
		ClientID:  ledger.ClientID(clientID),
		Available: avail,
		Held:      h,
		Locked:    locked != 0,
	}, nil
}

func scanMovement(sc scanner) (ledger.HistoryEntry, error) {
	var (
		txID, clientID, sequence int64
		kind, amount, state      string
	)
	if err := sc.Scan(&txID, &clientID, &kind, &amount, &sequence, &state); err != nil {
		return ledger.HistoryEntry{}, err
	}
	k, err := ledger.ParseType(kind)
	if err != nil {
		return ledger.HistoryEntry{}, fmt.Errorf("movement %d: %w", txID, err)
	}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return ledger.HistoryEntry{}, fmt.Errorf("movement %d: bad amount %q: %w", txID, amount, err)
	}
	return ledger.HistoryEntry{
		TxID:     ledger.TxID(txID),
		ClientID: ledger.ClientID(clientID),
		Kind:     k,
		Amount:   amt,
		Sequence: ledger.Sequence(sequence),
		State:    ledger.DisputeState(state),
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
