/*
Package ingest feeds raw input records to the ledger in arrival order.

PURPOSE:
  Reads row-oriented delimited text, numbers each record, validates it into a
  ledger.Transaction and hands it to an Applier, deciding per record whether
  a failure aborts the run or is logged and skipped.

KEY CONCEPTS:
  - Source: "get next raw record", ending with io.EOF
  - RawRecord: trimmed fields plus the input line they came from
  - Ingestor: sequence numbering and the continue/abort policy

SEE ALSO:
  - ledger/parse.go: Record validation
  - ledger/engine.go: The Applier used by the binary
*/
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/warp/payments-engine/ledger"
)

// =============================================================================
// SOURCE
// =============================================================================

// RawRecord is one input row before validation.
type RawRecord struct {
	Line   int
	Fields []string
}

func (r RawRecord) String() string {
	return strings.Join(r.Fields, ",")
}

// Source yields raw records until io.EOF.
//
// A returned error other than io.EOF is either a *ledger.RecordError (the row
// was unreadable, the next row may still be fine) or a SourceUnavailable
// error (the input itself failed).
type Source interface {
	Next() (RawRecord, error)
}

// =============================================================================
// CSV SOURCE
// =============================================================================

type CSVSource struct {
	r       *csv.Reader
	started bool
}

// NewCSVSource reads comma-separated records from r. Field counts are not
// enforced here so that the validator reports them.
func NewCSVSource(r io.Reader) *CSVSource {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return &CSVSource{r: cr}
}

func (s *CSVSource) Next() (RawRecord, error) {
	for {
		fields, err := s.r.Read()
		if err == io.EOF {
			return RawRecord{}, io.EOF
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				s.started = true
				return RawRecord{Line: pe.StartLine}, &ledger.RecordError{Detail: pe.Error()}
			}
			return RawRecord{}, &ledger.SourceError{Err: err}
		}

		line, _ := s.r.FieldPos(0)
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}

		first := !s.started
		s.started = true
		if first && isHeader(fields) {
			continue
		}
		return RawRecord{Line: line, Fields: fields}, nil
	}
}

func isHeader(fields []string) bool {
	return len(fields) > 0 && strings.EqualFold(fields[0], "type")
}

// =============================================================================
// FILE SOURCE
// =============================================================================

// File is a CSVSource over an opened file. Close releases the file.
type File struct {
	*CSVSource
	f    *os.File
	path string
}

// OpenFile opens path for reading. Failures are SourceUnavailable.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ledger.SourceError{Path: path, Err: err}
	}
	return &File{CSVSource: NewCSVSource(f), f: f, path: path}, nil
}

// Next attaches the file path to source errors.
func (f *File) Next() (RawRecord, error) {
	rec, err := f.CSVSource.Next()
	var se *ledger.SourceError
	if errors.As(err, &se) && se.Path == "" {
		se.Path = f.path
	}
	return rec, err
}

func (f *File) Close() error {
	if err := f.f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", f.path, err)
	}
	return nil
}
