/*
main.go - Application entry point

PURPOSE:
  Runs one batch of transactions through the payments ledger and prints the
  final balance of every client.

RUN SEQUENCE:
  1. Load configuration (flags, PAYMENTS_* environment)
  2. Initialize logger with a fresh run id
  3. Open the ledger store (memory, or SQLite reset to empty)
  4. Open the input and ingest every record
  5. Write the per-client report to stdout
  6. Optionally write the full-state dump (--statelog)

EXIT STATUS:
  0  Report written
  1  Invalid configuration, unreadable input, aborted run (--stop-on-error)
     or report failure. No report rows are written in these cases.

EXAMPLES:
  # Default: continue past bad records, CSV report
  ./payments transactions.csv > accounts.csv

  # Abort on the first bad record, debug logs to a file
  ./payments --stop-on-error -d --logfile run.log transactions.csv

  # Keep an on-disk copy of the final ledger
  ./payments --store sqlite --db ./ledger.db transactions.csv

SEE ALSO:
  - config/config.go: Flags and environment
  - ingest/ingest.go: Continue/abort policy
  - ledger/engine.go: The state machine
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/warp/payments-engine/config"
	"github.com/warp/payments-engine/ingest"
	"github.com/warp/payments-engine/ledger"
	memstore "github.com/warp/payments-engine/ledger/store"
	"github.com/warp/payments-engine/logging"
	"github.com/warp/payments-engine/report"
	"github.com/warp/payments-engine/store/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one batch and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load(args)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "payments: %v\n", err)
		return 1
	}

	runID := uuid.NewString()
	logger, closer, err := logging.New(logging.Options{
		Debug:   cfg.Debug,
		LogFile: cfg.LogFile,
		RunID:   runID,
	})
	if err != nil {
		fmt.Fprintf(stderr, "payments: %v\n", err)
		return 1
	}
	defer closer.Close()

	if err := process(ctx, cfg, runID, logger, stdout); err != nil {
		logger.Error().Err(err).Str("kind", ledger.Kind(err)).Msg("run failed")
		return 1
	}
	return 0
}

func process(ctx context.Context, cfg config.Config, runID string, logger zerolog.Logger, stdout io.Writer) error {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	src, err := ingest.OpenFile(cfg.InputPath)
	if err != nil {
		return err
	}
	defer src.Close()

	logger.Info().
		Str("input", cfg.InputPath).
		Str("store", cfg.Store).
		Bool("stop_on_error", cfg.StopOnError).
		Msg("run started")

	engine := ledger.NewEngine(store)
	summary, err := ingest.NewIngestor(engine, cfg.StopOnError, logger).Run(ctx, src)
	if err != nil {
		return err
	}
	if summary.Rejected > 0 {
		logger.Warn().Interface("rejected_by_kind", summary.ByKind).Msg("some records were rejected")
	}

	views, err := ledger.Views(ctx, store)
	if err != nil {
		return err
	}
	if err := report.Write(stdout, report.Format(cfg.Format), views); err != nil {
		return err
	}

	if cfg.StateLog != "" {
		if err := writeStateLog(ctx, cfg.StateLog, store, runID); err != nil {
			return err
		}
		logger.Debug().Str("path", cfg.StateLog).Msg("state dump written")
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (ledger.TxStore, func() error, error) {
	if cfg.Store != "sqlite" {
		return memstore.NewTxMemory(), func() error { return nil }, nil
	}
	s, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if err := s.Reset(ctx); err != nil {
		s.Close()
		return nil, nil, err
	}
	return s, s.Close, nil
}

func writeStateLog(ctx context.Context, path string, store ledger.Store, runID string) error {
	snap, err := ledger.TakeSnapshot(ctx, store, runID)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create state log: %w", err)
	}
	if err := report.WriteDump(f, snap); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
