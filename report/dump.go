package report

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/warp/payments-engine/ledger"
)

// =============================================================================
// DUMP TYPES - JSON shape of a Snapshot
// =============================================================================

// DumpDTO is the full-state diagnostic document. It is not a stable contract.
type DumpDTO struct {
	RunID    string                         `json:"run_id"`
	Accounts map[ledger.ClientID]AccountDTO `json:"accounts"`
	History  map[ledger.TxID]HistoryDTO     `json:"history"`
}

type AccountDTO struct {
	Client    ledger.ClientID `json:"client"`
	Available string          `json:"available"`
	Held      string          `json:"held"`
	Total     string          `json:"total"`
	Locked    bool            `json:"locked"`
}

type HistoryDTO struct {
	Tx       ledger.TxID            `json:"tx"`
	Client   ledger.ClientID        `json:"client"`
	Type     ledger.TransactionType `json:"type"`
	Amount   string                 `json:"amount"`
	Sequence ledger.Sequence        `json:"sequence"`
	State    ledger.DisputeState    `json:"state"`
}

// NewDump converts a snapshot into its JSON shape.
func NewDump(s ledger.Snapshot) DumpDTO {
	d := DumpDTO{
		RunID:    s.RunID,
		Accounts: make(map[ledger.ClientID]AccountDTO, len(s.Accounts)),
		History:  make(map[ledger.TxID]HistoryDTO, len(s.History)),
	}
	for _, v := range s.Accounts {
		d.Accounts[v.ClientID] = AccountDTO{
			Client:    v.ClientID,
			Available: v.Available.String(),
			Held:      v.Held.String(),
			Total:     v.Total.String(),
			Locked:    v.Locked,
		}
	}
	for _, e := range s.History {
		d.History[e.TxID] = HistoryDTO{
			Tx:       e.TxID,
			Client:   e.ClientID,
			Type:     e.Kind,
			Amount:   e.Amount.String(),
			Sequence: e.Sequence,
			State:    e.State,
		}
	}
	return d
}

// WriteDump writes s as indented JSON.
func WriteDump(w io.Writer, s ledger.Snapshot) error {
	data, err := json.MarshalIndent(NewDump(s), "", "  ")
	if err != nil {
		return fmt.Errorf("encode dump: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write dump: %w", err)
	}
	return nil
}
