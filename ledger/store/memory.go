// Package store provides in-memory ledger.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/payments-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (default backend)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	accounts map[ledger.ClientID]ledger.Account
	history  map[ledger.TxID]ledger.HistoryEntry
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[ledger.ClientID]ledger.Account),
		history:  make(map[ledger.TxID]ledger.HistoryEntry),
	}
}

func (m *Memory) EnsureAccount(_ context.Context, id ledger.ClientID) (ledger.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureLocked(id), nil
}

func (m *Memory) ensureLocked(id ledger.ClientID) ledger.Account {
	a, ok := m.accounts[id]
	if !ok {
		a = ledger.NewAccount(id)
		m.accounts[id] = a
	}
	return a
}

func (m *Memory) Account(_ context.Context, id ledger.ClientID) (ledger.Account, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	return a, ok, nil
}

func (m *Memory) PutAccount(_ context.Context, a ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(a)
	return nil
}

func (m *Memory) putLocked(a ledger.Account) {
	if prev, ok := m.accounts[a.ClientID]; ok && prev.Locked {
		a.Locked = true
	}
	m.accounts[a.ClientID] = a
}

func (m *Memory) Movement(_ context.Context, id ledger.TxID) (ledger.HistoryEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.history[id]
	return e, ok, nil
}

// RecordMovement inserts e. Insert-only: an existing tx id is never replaced.
func (m *Memory) RecordMovement(_ context.Context, e ledger.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recordLocked(e)
}

func (m *Memory) recordLocked(e ledger.HistoryEntry) error {
	if prev, ok := m.history[e.TxID]; ok {
		return &ledger.DuplicateTransactionError{TxID: e.TxID, Existing: prev.ClientID}
	}
	m.history[e.TxID] = e
	return nil
}

func (m *Memory) SetMovementState(_ context.Context, id ledger.TxID, state ledger.DisputeState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setStateLocked(id, state)
}

func (m *Memory) setStateLocked(id ledger.TxID, state ledger.DisputeState) error {
	e, ok := m.history[id]
	if !ok {
		return &ledger.ReferenceError{TxID: id, Err: ledger.ErrReferencedTransactionNotFound}
	}
	e.State = state
	m.history[id] = e
	return nil
}

func (m *Memory) Accounts(_ context.Context) ([]ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accountsLocked(), nil
}

func (m *Memory) accountsLocked() []ledger.Account {
	result := make([]ledger.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ClientID < result[j].ClientID })
	return result
}

func (m *Memory) History(_ context.Context) ([]ledger.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.historyLocked(), nil
}

func (m *Memory) historyLocked() []ledger.HistoryEntry {
	result := make([]ledger.HistoryEntry, 0, len(m.history))
	for _, e := range m.history {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Sequence < result[j].Sequence })
	return result
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, writes made through the view are journaled and undone on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	view := &txMemoryView{
		parent:   tm,
		accounts: make(map[ledger.ClientID]priorAccount),
		history:  make(map[ledger.TxID]priorEntry),
	}
	if err := fn(view); err != nil {
		view.rollback()
		return err
	}
	return nil
}

// priorAccount and priorEntry hold the value a key had before its first
// write in the current transaction.
type priorAccount struct {
	account ledger.Account
	existed bool
}

type priorEntry struct {
	entry   ledger.HistoryEntry
	existed bool
}

// txMemoryView is the Store handed to WithTx callbacks. The parent lock is
// already held, so it calls the *Locked helpers directly.
type txMemoryView struct {
	parent   *TxMemory
	accounts map[ledger.ClientID]priorAccount
	history  map[ledger.TxID]priorEntry
}

func (tv *txMemoryView) touchAccount(id ledger.ClientID) {
	if _, seen := tv.accounts[id]; seen {
		return
	}
	a, ok := tv.parent.accounts[id]
	tv.accounts[id] = priorAccount{account: a, existed: ok}
}

func (tv *txMemoryView) touchEntry(id ledger.TxID) {
	if _, seen := tv.history[id]; seen {
		return
	}
	e, ok := tv.parent.history[id]
	tv.history[id] = priorEntry{entry: e, existed: ok}
}

func (tv *txMemoryView) rollback() {
	for id, p := range tv.accounts {
		if p.existed {
			tv.parent.accounts[id] = p.account
		} else {
			delete(tv.parent.accounts, id)
		}
	}
	for id, p := range tv.history {
		if p.existed {
			tv.parent.history[id] = p.entry
		} else {
			delete(tv.parent.history, id)
		}
	}
}

func (tv *txMemoryView) EnsureAccount(_ context.Context, id ledger.ClientID) (ledger.Account, error) {
	tv.touchAccount(id)
	return tv.parent.ensureLocked(id), nil
}

func (tv *txMemoryView) Account(_ context.Context, id ledger.ClientID) (ledger.Account, bool, error) {
	a, ok := tv.parent.accounts[id]
	return a, ok, nil
}

func (tv *txMemoryView) PutAccount(_ context.Context, a ledger.Account) error {
	tv.touchAccount(a.ClientID)
	tv.parent.putLocked(a)
	return nil
}

func (tv *txMemoryView) Movement(_ context.Context, id ledger.TxID) (ledger.HistoryEntry, bool, error) {
	e, ok := tv.parent.history[id]
	return e, ok, nil
}

func (tv *txMemoryView) RecordMovement(_ context.Context, e ledger.HistoryEntry) error {
	tv.touchEntry(e.TxID)
	return tv.parent.recordLocked(e)
}

func (tv *txMemoryView) SetMovementState(_ context.Context, id ledger.TxID, state ledger.DisputeState) error {
	tv.touchEntry(id)
	return tv.parent.setStateLocked(id, state)
}

func (tv *txMemoryView) Accounts(_ context.Context) ([]ledger.Account, error) {
	return tv.parent.accountsLocked(), nil
}

func (tv *txMemoryView) History(_ context.Context) ([]ledger.HistoryEntry, error) {
	return tv.parent.historyLocked(), nil
}
