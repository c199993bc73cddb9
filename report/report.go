/*
Package report renders ledger projections for output.

PURPOSE:
  Turns []ledger.AccountView into the per-client report written to stdout,
  and a ledger.Snapshot into the diagnostic JSON dump.

FORMATS:
  csv:   client,available,held,total,locked (the default)
  table: Same columns, aligned for terminals
  dump:  Indented JSON with accounts, history and run_id

DECIMALS:
  Rendered with decimal.String: exact fixed-point text, never scientific
  notation, never rounded. Amounts were limited to four fractional digits on
  input, so no output carries more.

SEE ALSO:
  - ledger/projection.go: AccountView and Snapshot
*/
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/warp/payments-engine/ledger"
)

// Format selects the per-client report layout.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatTable Format = "table"
)

// Header is the column order of every per-client report.
var Header = []string{"client", "available", "held", "total", "locked"}

// Write renders views in the given format.
func Write(w io.Writer, format Format, views []ledger.AccountView) error {
	switch format {
	case FormatCSV, "":
		return WriteCSV(w, views)
	case FormatTable:
		return WriteTable(w, views)
	}
	return fmt.Errorf("unknown report format %q", format)
}

// Row returns the text columns for one account.
func Row(v ledger.AccountView) []string {
	return []string{
		strconv.FormatUint(uint64(v.ClientID), 10),
		v.Available.String(),
		v.Held.String(),
		v.Total.String(),
		strconv.FormatBool(v.Locked),
	}
}

// =============================================================================
// CSV
// =============================================================================

func WriteCSV(w io.Writer, views []ledger.AccountView) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, v := range views {
		if err := cw.Write(Row(v)); err != nil {
			return fmt.Errorf("write client %d: %w", v.ClientID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	return nil
}

// =============================================================================
// TABLE
// =============================================================================

func WriteTable(w io.Writer, views []ledger.AccountView) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader(Header)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, v := range views {
		table.Append(Row(v))
	}
	table.Render()
	return nil
}
