/*
projection.go - Reportable views of ledger state

PURPOSE:
  Derives what leaves the engine: one AccountView per client (with the
  computed total) and, for diagnostics, a Snapshot of every account and every
  history entry.

KEY INSIGHT:
  Total is never stored. Project computes it from available + held every
  time, so a report can never disagree with the balances it shows.

SEE ALSO:
  - report/: Text, table and JSON rendering of these views
*/
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCOUNT VIEW - One reportable row per client
// =============================================================================

type AccountView struct {
	ClientID  ClientID
	Available decimal.Decimal
	Held      decimal.Decimal
	Total     decimal.Decimal
	Locked    bool
}

// Project returns the reportable form of a.
func Project(a Account) AccountView {
	return AccountView{
		ClientID:  a.ClientID,
		Available: a.Available,
		Held:      a.Held,
		Total:     a.Total(),
		Locked:    a.Locked,
	}
}

// Views projects every account in the store, ordered by client id.
func Views(ctx context.Context, s Store) ([]AccountView, error) {
	accounts, err := s.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	views := make([]AccountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, Project(a))
	}
	return views, nil
}

// =============================================================================
// SNAPSHOT - Full ledger state for diagnostics
// =============================================================================

// Snapshot captures every account and every movement at the end of a run.
// It is a diagnostic artifact, not a stable contract.
type Snapshot struct {
	RunID    string
	Accounts []AccountView
	History  []HistoryEntry
}

// TakeSnapshot reads the complete state of s.
func TakeSnapshot(ctx context.Context, s Store, runID string) (Snapshot, error) {
	views, err := Views(ctx, s)
	if err != nil {
		return Snapshot{}, err
	}
	history, err := s.History(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load history: %w", err)
	}
	return Snapshot{RunID: runID, Accounts: views, History: history}, nil
}
