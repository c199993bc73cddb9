package ledger_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payments-engine/ledger"
	"github.com/warp/payments-engine/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestEngine() (*ledger.Engine, ledger.Store) {
	s := store.NewTxMemory()
	return ledger.NewEngine(s), s
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// seq numbers transactions built in one test so history order is stable.
type seq struct{ next ledger.Sequence }

func (s *seq) tx(kind ledger.TransactionType, client ledger.ClientID, id ledger.TxID, amount string) ledger.Transaction {
	t := ledger.Transaction{Sequence: s.next, Kind: kind, ClientID: client, TxID: id, Amount: dec(amount)}
	s.next++
	return t
}

func account(t *testing.T, s ledger.Store, id ledger.ClientID) ledger.Account {
	t.Helper()
	a, ok, err := s.Account(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok, "account %d should exist", id)
	return a
}

func assertBalances(t *testing.T, a ledger.Account, available, held string, locked bool) {
	t.Helper()
	assert.True(t, dec(available).Equal(a.Available), "available: want %s, got %s", available, a.Available)
	assert.True(t, dec(held).Equal(a.Held), "held: want %s, got %s", held, a.Held)
	assert.Equal(t, locked, a.Locked, "locked")
}

func movementState(t *testing.T, s ledger.Store, id ledger.TxID) ledger.DisputeState {
	t.Helper()
	e, ok, err := s.Movement(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok, "movement %d should exist", id)
	return e.State
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestScenario_SingleDeposit(t *testing.T) {
	ctx := context.Background()
	engine, s := newTestEngine()
	var q seq

	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Deposit, 1, 1, "200.00")))

	a := account(t, s, 1)
	assertBalances(t, a, "200", "0", false)
	assert.True(t, dec("200").Equal(a.Total()))
}

func TestScenario_DisputeResolved(t *testing.T) {
	ctx := context.Background()
	engine, s := newTestEngine()
	var q seq

	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Deposit, 1, 1, "400.00")))
	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Dispute, 1, 1, "400.00")))
	assertBalances(t, account(t, s, 1), "0", "400", false)
	assert.Equal(t, ledger.StateDisputed, movementState(t, s, 1))

	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Resolve, 1, 1, "400.00")))
	assertBalances(t, account(t, s, 1), "400", "0", false)
	assert.Equal(t, ledger.StateSettled, movementState(t, s, 1))
}

func TestScenario_Chargeback(t *testing.T) {
	ctx := context.Background()
	engine, s := newTestEngine()
	var q seq

	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Deposit, 1, 1, "400.00")))
	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Deposit, 1, 2, "400.00")))
	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Dispute, 1, 2, "400.00")))
	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Chargeback, 1, 2, "400.00")))

	a := account(t, s, 1)
	assertBalances(t, a, "400", "0", true)
	assert.True(t, dec("400").Equal(a.Total()))
	assert.Equal(t, ledger.StateChargebacked, movementState(t, s, 2))
}

func TestScenario_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	engine, s := newTestEngine()
	var q seq

	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Deposit, 1, 1, "200.00")))
	err := engine.Apply(ctx, q.tx(ledger.Withdrawal, 1, 2, "300.00"))

	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	var ife *ledger.InsufficientFundsError
	require.ErrorAs(t, err, &ife)
	assert.True(t, dec("200").Equal(ife.Available))
	assert.True(t, dec("300").Equal(ife.Requested))
	assertBalances(t, account(t, s, 1), "200", "0", false)
}

func TestScenario_DuplicateDeposit(t *testing.T) {
	for _, second := range []ledger.ClientID{1, 2} {
		ctx := context.Background()
		engine, s := newTestEngine()
		var q seq

		require.NoError(t, engine.Apply(ctx, q.tx(ledger.Deposit, 1, 1, "10")))
		err := engine.Apply(ctx, q.tx(ledger.Deposit, second, 1, "99"))

		assert.ErrorIs(t, err, ledger.ErrDuplicateTransaction)
		var dup *ledger.DuplicateTransactionError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, ledger.ClientID(1), dup.Existing)

		assertBalances(t, account(t, s, 1), "10", "0", false)
	}
}

// =============================================================================
// MOVEMENT TESTS
// =============================================================================

func TestWithdrawal_ExactBalanceSucceeds(t *testing.T) {
	ctx := context.Background()
	engine, s := newTestEngine()
	var q seq

	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Deposit, 1, 1, "5.1234")))
	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Withdrawal, 1, 2, "5.1234")))

	a := account(t, s, 1)
	assert.True(t, a.Available.IsZero())
	assert.Equal(t, ledger.StateSettled, movementState(t, s, 2))
}

func TestWithdrawal_RejectedLeavesTxIDFree(t *testing.T) {
	// GIVEN: A withdrawal rejected for insufficient funds
	// WHEN: A later deposit reuses its tx id
	// THEN: The deposit is accepted (rejected withdrawals record no history)

	ctx := context.Background()
	engine, s := newTestEngine()
	var q seq

	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Deposit, 1, 1, "1")))
	require.ErrorIs(t, engine.Apply(ctx, q.tx(ledger.Withdrawal, 1, 2, "5")), ledger.ErrInsufficientFunds)

	_, found, err := s.Movement(ctx, 2)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Deposit, 1, 2, "5")))
	assertBalances(t, account(t, s, 1), "6", "0", false)
}

func TestWithdrawal_FromNewClientRollsBackAccount(t *testing.T) {
	// GIVEN: No account for client 9
	// WHEN: Its first transaction is a rejected withdrawal
	// THEN: No account is left behind

	ctx := context.Background()
	engine, s := newTestEngine()
	var q seq

	err := engine.Apply(ctx, q.tx(ledger.Withdrawal, 9, 1, "1"))
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	_, ok, err := s.Account(ctx, 9)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeposit_ZeroAmountCreatesAccount(t *testing.T) {
	ctx := context.Background()
	engine, s := newTestEngine()
	var q seq

	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Deposit, 3, 1, "0")))
	assertBalances(t, account(t, s, 3), "0", "0", false)
}

func TestMovement_DuplicateOfWithdrawal(t *testing.T) {
	ctx := context.Background()
	engine, s := newTestEngine()
	var q seq

	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Deposit, 1, 1, "10")))
	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Withdrawal, 1, 2, "4")))
	assert.ErrorIs(t, engine.Apply(ctx, q.tx(ledger.Withdrawal, 1, 2, "4")), ledger.ErrDuplicateTransaction)
	assert.ErrorIs(t, engine.Apply(ctx, q.tx(ledger.Deposit, 1, 2, "4")), ledger.ErrDuplicateTransaction)

	assertBalances(t, account(t, s, 1), "6", "0", false)
}

// =============================================================================
// DISPUTE LIFECYCLE TESTS
// =============================================================================

func TestDispute_ReferenceChecks(t *testing.T) {
	cases := []struct {
		name    string
		dispute ledger.Transaction
		want    error
	}{
		{"unknown tx", ledger.Transaction{Kind: ledger.Dispute, ClientID: 1, TxID: 42, Amount: dec("10")}, ledger.ErrReferencedTransactionNotFound},
		{"other client", ledger.Transaction{Kind: ledger.Dispute, ClientID: 2, TxID: 1, Amount: dec("10")}, ledger.ErrClientMismatch},
		{"other amount", ledger.Transaction{Kind: ledger.Dispute, ClientID: 1, TxID: 1, Amount: dec("9.9999")}, ledger.ErrAmountMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			engine, s := newTestEngine()
			var q seq
			require.NoError(t, engine.Apply(ctx, q.tx(ledger.Deposit, 1, 1, "10")))

			err := engine.Apply(ctx, tc.dispute)
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, ledger.IsLedgerError(err))

			var refErr *ledger.ReferenceError
			require.ErrorAs(t, err, &refErr)
			assert.Equal(t, ledger.Dispute, refErr.Kind)

			assertBalances(t, account(t, s, 1), "10", "0", false)
			assert.Equal(t, ledger.StateSettled, movementState(t, s, 1))
		})
	}
}

func TestDispute_ClientMismatchLeavesNoAccount(t *testing.T) {
	ctx := context.Background()
	engine, s := newTestEngine()
	var q seq

	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Deposit, 1, 1, "10")))
	require.ErrorIs(t, engine.Apply(ctx, q.tx(ledger.Dispute, 2, 1, "10")), ledger.ErrClientMismatch)

	accounts, err := s.Accounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestDispute_AmountComparedByValue(t *testing.T) {
	ctx := context.Background()
	engine, s := newTestEngine()
	var q seq

	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Deposit, 1, 1, "10")))
	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Dispute, 1, 1, "10.0000")))
	assertBalances(t, account(t, s, 1), "0", "10", false)
}

func TestDispute_Twice(t *testing.T) {
	ctx := context.Background()
	engine, s := newTestEngine()
	var q seq

	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Deposit, 1, 1, "10")))
	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Dispute, 1, 1, "10")))
	assert.ErrorIs(t, engine.Apply(ctx, q.tx(ledger.Dispute, 1, 1, "10")), ledger.ErrAlreadyDisputed)

	assertBalances(t, account(t, s, 1), "0", "10", false)
}

func TestDispute_AfterResolveAllowed(t *testing.T) {
	ctx := context.Background()
	engine, s := newTestEngine()
	var q seq

	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Deposit, 1, 1, "10")))
	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Dispute, 1, 1, "10")))
	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Resolve, 1, 1, "10")))
	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Dispute, 1, 1, "10")))

	assertBalances(t, account(t, s, 1), "0", "10", false)
}

func TestDispute_WithdrawalCanGoNegative(t *testing.T) {
	// GIVEN: Deposit 10, withdraw 10 (available 0)
	// WHEN: The withdrawal is disputed
	// THEN: The amount moves from available to held with no funds check

	ctx := context.Background()
	engine, s := newTestEngine()
	var q seq

	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Deposit, 1, 1, "10")))
	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Withdrawal, 1, 2, "10")))
	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Dispute, 1, 2, "10")))

	a := account(t, s, 1)
	assertBalances(t, a, "-10", "10", false)
	assert.True(t, a.Total().IsZero())
}

func TestResolveAndChargeback_RequireDisputed(t *testing.T) {
	for _, kind := range []ledger.TransactionType{ledger.Resolve, ledger.Chargeback} {
		t.Run(kind.String(), func(t *testing.T) {
			ctx := context.Background()
			engine, s := newTestEngine()
			var q seq

			require.NoError(t, engine.Apply(ctx, q.tx(ledger.Deposit, 1, 1, "10")))
			err := engine.Apply(ctx, q.tx(kind, 1, 1, "10"))
			assert.ErrorIs(t, err, ledger.ErrNotDisputed)
			assert.Equal(t, "NotDisputed", ledger.Kind(err))

			assertBalances(t, account(t, s, 1), "10", "0", false)
		})
	}
}

func TestChargeback_IsTerminal(t *testing.T) {
	ctx := context.Background()
	engine, s := newTestEngine()
	var q seq

	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Deposit, 1, 1, "10")))
	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Dispute, 1, 1, "10")))
	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Chargeback, 1, 1, "10")))

	assert.ErrorIs(t, engine.Apply(ctx, q.tx(ledger.Dispute, 1, 1, "10")), ledger.ErrAlreadyDisputed)
	assert.ErrorIs(t, engine.Apply(ctx, q.tx(ledger.Resolve, 1, 1, "10")), ledger.ErrNotDisputed)
	assert.ErrorIs(t, engine.Apply(ctx, q.tx(ledger.Chargeback, 1, 1, "10")), ledger.ErrNotDisputed)
	assert.Equal(t, ledger.StateChargebacked, movementState(t, s, 1))
}

func TestChargeback_LockSurvivesLaterMovements(t *testing.T) {
	// GIVEN: A locked account
	// WHEN: Further deposits and withdrawals arrive
	// THEN: They are applied (the lock is advisory) and the lock stays set

	ctx := context.Background()
	engine, s := newTestEngine()
	var q seq

	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Deposit, 1, 1, "10")))
	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Dispute, 1, 1, "10")))
	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Chargeback, 1, 1, "10")))
	assertBalances(t, account(t, s, 1), "0", "0", true)

	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Deposit, 1, 2, "7")))
	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Withdrawal, 1, 3, "2")))
	assertBalances(t, account(t, s, 1), "5", "0", true)
}

// =============================================================================
// PROPERTY TESTS
// =============================================================================

func TestProperty_TotalIsReconstructable(t *testing.T) {
	// GIVEN: A mixed stream including rejected transactions
	// WHEN: Replaying only the accepted effects from zero
	// THEN: available + held matches the engine

	ctx := context.Background()
	engine, s := newTestEngine()
	var q seq

	stream := []ledger.Transaction{
		q.tx(ledger.Deposit, 1, 1, "100.5"),
		q.tx(ledger.Deposit, 1, 2, "20"),
		q.tx(ledger.Withdrawal, 1, 3, "500"), // rejected
		q.tx(ledger.Withdrawal, 1, 4, "0.5"),
		q.tx(ledger.Dispute, 1, 2, "20"),
		q.tx(ledger.Deposit, 1, 1, "1"), // duplicate
		q.tx(ledger.Resolve, 1, 2, "20"),
		q.tx(ledger.Dispute, 1, 1, "100.5"),
		q.tx(ledger.Chargeback, 1, 1, "100.5"),
		q.tx(ledger.Dispute, 1, 9, "1"), // not found
	}

	total := decimal.Zero
	for _, tx := range stream {
		if err := engine.Apply(ctx, tx); err != nil {
			continue
		}
		switch tx.Kind {
		case ledger.Deposit:
			total = total.Add(tx.Amount)
		case ledger.Withdrawal, ledger.Chargeback:
			total = total.Sub(tx.Amount)
		}
	}

	a := account(t, s, 1)
	assert.True(t, total.Equal(a.Total()), "want %s, got %s", total, a.Total())
	assert.True(t, dec("19.5").Equal(a.Total()))
}

func TestProperty_DisputeRoundTripRestoresBalances(t *testing.T) {
	ctx := context.Background()
	engine, s := newTestEngine()
	var q seq

	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Deposit, 4, 1, "3.3333")))
	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Deposit, 4, 2, "1.0001")))
	before := account(t, s, 4)

	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Dispute, 4, 2, "1.0001")))
	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Resolve, 4, 2, "1.0001")))

	after := account(t, s, 4)
	assert.True(t, before.Available.Equal(after.Available))
	assert.True(t, before.Held.Equal(after.Held))
	assert.False(t, after.Locked)
}

func TestEngine_HistoryOrderedBySequence(t *testing.T) {
	ctx := context.Background()
	engine, s := newTestEngine()
	var q seq

	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Deposit, 1, 30, "1")))
	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Deposit, 2, 10, "1")))
	require.NoError(t, engine.Apply(ctx, q.tx(ledger.Deposit, 1, 20, "1")))

	history, err := s.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []ledger.TxID{30, 10, 20}, []ledger.TxID{history[0].TxID, history[1].TxID, history[2].TxID})
}
