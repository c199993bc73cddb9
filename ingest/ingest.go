package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/warp/payments-engine/ledger"
)

// =============================================================================
// INGESTOR - Sequence numbering and failure policy
// =============================================================================

// Applier applies one validated transaction. *ledger.Engine satisfies it.
type Applier interface {
	Apply(ctx context.Context, tx ledger.Transaction) error
}

// Summary counts what a run did.
type Summary struct {
	Records      int            // rows read, excluding a header
	Applied      int            // transactions accepted by the ledger
	Rejected     int            // rows that failed validation or application
	ByKind       map[string]int // rejections per error kind
	NextSequence ledger.Sequence
}

type Ingestor struct {
	applier     Applier
	stopOnError bool
	logger      zerolog.Logger
}

// NewIngestor creates an ingestor. With stopOnError false (the default
// policy) every failed record is logged and skipped.
func NewIngestor(applier Applier, stopOnError bool, logger zerolog.Logger) *Ingestor {
	return &Ingestor{applier: applier, stopOnError: stopOnError, logger: logger}
}

// RecordFailure is returned by Run when the stop policy aborts on a record.
type RecordFailure struct {
	Line     int
	Sequence ledger.Sequence
	Numbered bool // false for structurally malformed records
	Raw      string
	Err      error
}

func (e *RecordFailure) Error() string {
	if e.Numbered {
		return fmt.Sprintf("record #%d (line %d): %v", e.Sequence, e.Line, e.Err)
	}
	return fmt.Sprintf("record at line %d: %v", e.Line, e.Err)
}

func (e *RecordFailure) Unwrap() error { return e.Err }

// Run consumes src until io.EOF. Sequence numbers start at 0 and are
// consumed by every record with the right number of fields, whether or not
// it is later rejected.
//
// Under the stop policy the first failed record ends the run with a
// *RecordFailure; transactions already applied stay applied. A source error
// always ends the run.
func (in *Ingestor) Run(ctx context.Context, src Source) (Summary, error) {
	sum := Summary{ByKind: make(map[string]int)}
	var next ledger.Sequence

	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		rec, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil && ledger.IsFatal(err) {
			return sum, err
		}
		sum.Records++

		failure := &RecordFailure{Line: rec.Line, Raw: rec.String()}
		if err == nil && len(rec.Fields) != ledger.RecordFields {
			err = &ledger.RecordError{Fields: len(rec.Fields)}
		}
		if err == nil {
			failure.Sequence, failure.Numbered = next, true
			next++
			err = in.process(ctx, rec, failure.Sequence)
		}
		if err == nil {
			sum.Applied++
			continue
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return sum, err
		}

		failure.Err = err
		sum.Rejected++
		sum.ByKind[ledger.Kind(err)]++
		if in.stopOnError {
			sum.NextSequence = next
			return sum, failure
		}
		in.logRejected(failure)
	}

	sum.NextSequence = next
	in.logger.Info().
		Int("records", sum.Records).
		Int("applied", sum.Applied).
		Int("rejected", sum.Rejected).
		Msg("ingestion complete")
	return sum, nil
}

func (in *Ingestor) process(ctx context.Context, rec RawRecord, seq ledger.Sequence) error {
	tx, err := ledger.ParseRecord(rec.Fields)
	if err != nil {
		return err
	}
	tx = tx.WithSequence(seq)
	if err := in.applier.Apply(ctx, tx); err != nil {
		return err
	}
	in.logger.Debug().Stringer("tx", tx).Msg("applied")
	return nil
}

func (in *Ingestor) logRejected(f *RecordFailure) {
	ev := in.logger.Error().Err(f.Err).
		Int("line", f.Line).
		Str("raw", f.Raw).
		Str("kind", ledger.Kind(f.Err))
	if f.Numbered {
		ev = ev.Uint32("seq", uint32(f.Sequence))
	}
	ev.Msg("record rejected")
}
