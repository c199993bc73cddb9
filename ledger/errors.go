/*
errors.go - Centralized error types for the payments engine

PURPOSE:
  All error kinds in one place so that ingestion, the state machine and the
  binary classify failures the same way.

ERROR CATEGORIES:
  1. Validation errors - a raw record could not become a Transaction
  2. Ledger errors - a valid Transaction was rejected by the state machine
  3. Source errors - the input itself could not be read (always fatal)

USAGE:
  Every structured error unwraps to its sentinel:

    if errors.Is(err, ledger.ErrInsufficientFunds) {
        var ife *ledger.InsufficientFundsError
        errors.As(err, &ife)
    }

SEE ALSO:
  - parse.go: Produces validation errors
  - engine.go: Produces ledger errors
  - ingest/source.go: Produces source errors
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMalformedRecord is returned when a record does not have exactly four fields.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrMalformedField is returned when client, tx or amount cannot be parsed.
	ErrMalformedField = errors.New("malformed field")

	// ErrPrecisionExceeded is returned when an amount has more than four fractional digits.
	ErrPrecisionExceeded = errors.New("precision exceeded")

	// ErrUnknownTransactionType is returned for an unrecognised type spelling.
	ErrUnknownTransactionType = errors.New("unknown transaction type")
)

var (
	// ErrDuplicateTransaction is returned when a deposit or withdrawal reuses a
	// tx id that is already in the history, for any client.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrInsufficientFunds is returned when a withdrawal exceeds available funds.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrReferencedTransactionNotFound is returned when a dispute, resolve or
	// chargeback names a tx id with no history entry.
	ErrReferencedTransactionNotFound = errors.New("referenced transaction not found")

	// ErrClientMismatch is returned when the referenced movement belongs to another client.
	ErrClientMismatch = errors.New("client mismatch")

	// ErrAmountMismatch is returned when the carried amount differs from the stored one.
	ErrAmountMismatch = errors.New("amount mismatch")

	// ErrAlreadyDisputed is returned when a dispute targets a movement that is not settled.
	ErrAlreadyDisputed = errors.New("already disputed")

	// ErrNotDisputed is returned when a resolve or chargeback targets a movement
	// that is not currently disputed.
	ErrNotDisputed = errors.New("not disputed")
)

// ErrSourceUnavailable is returned when the input cannot be opened or read.
// It is never recoverable per record.
var ErrSourceUnavailable = errors.New("source unavailable")

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RecordError reports a record with the wrong number of fields.
type RecordError struct {
	Fields int
	Detail string
}

func (e *RecordError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("malformed record: %s", e.Detail)
	}
	return fmt.Sprintf("malformed record: expected 4 fields, got %d", e.Fields)
}

func (e *RecordError) Unwrap() error { return ErrMalformedRecord }

// FieldError reports a single field that failed validation.
type FieldError struct {
	Field string
	Value string
	Err   error // sentinel
	Cause error // underlying parse failure, may be nil
}

func (e *FieldError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v: %s %q: %v", e.Err, e.Field, e.Value, e.Cause)
	}
	return fmt.Sprintf("%v: %s %q", e.Err, e.Field, e.Value)
}

func (e *FieldError) Unwrap() error { return e.Err }

// DuplicateTransactionError names the movement that already owns the tx id.
type DuplicateTransactionError struct {
	TxID     TxID
	Existing ClientID
}

func (e *DuplicateTransactionError) Error() string {
	return fmt.Sprintf("duplicate transaction: tx %d already recorded for client %d", e.TxID, e.Existing)
}

func (e *DuplicateTransactionError) Unwrap() error { return ErrDuplicateTransaction }

// InsufficientFundsError provides details about a rejected withdrawal.
type InsufficientFundsError struct {
	ClientID  ClientID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: client %d available %s, requested %s",
		e.ClientID, e.Available.String(), e.Requested.String())
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// ReferenceError reports why a dispute-class transaction could not be matched
// to its movement.
type ReferenceError struct {
	Kind     TransactionType
	TxID     TxID
	ClientID ClientID
	Err      error // sentinel
	Detail   string
}

func (e *ReferenceError) Error() string {
	msg := fmt.Sprintf("%s of tx %d by client %d: %v", e.Kind, e.TxID, e.ClientID, e.Err)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *ReferenceError) Unwrap() error { return e.Err }

// SourceError wraps an I/O failure on the input.
type SourceError struct {
	Path string
	Err  error
}

func (e *SourceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("source unavailable: %v", e.Err)
	}
	return fmt.Sprintf("source unavailable: %s: %v", e.Path, e.Err)
}

func (e *SourceError) Unwrap() []error { return []error{ErrSourceUnavailable, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

var kinds = []struct {
	err  error
	name string
}{
	{ErrMalformedRecord, "MalformedRecord"},
	{ErrMalformedField, "MalformedField"},
	{ErrPrecisionExceeded, "PrecisionExceeded"},
	{ErrUnknownTransactionType, "UnknownTransactionType"},
	{ErrDuplicateTransaction, "DuplicateTransaction"},
	{ErrInsufficientFunds, "InsufficientFunds"},
	{ErrReferencedTransactionNotFound, "ReferencedTransactionNotFound"},
	{ErrClientMismatch, "ClientMismatch"},
	{ErrAmountMismatch, "AmountMismatch"},
	{ErrAlreadyDisputed, "AlreadyDisputed"},
	{ErrNotDisputed, "NotDisputed"},
	{ErrSourceUnavailable, "SourceUnavailable"},
}

// Kind names the taxonomy member err belongs to, or "Unknown".
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Unknown"
}

// IsValidationError returns true if a raw record failed validation.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrMalformedRecord) ||
		errors.Is(err, ErrMalformedField) ||
		errors.Is(err, ErrPrecisionExceeded) ||
		errors.Is(err, ErrUnknownTransactionType)
}

// IsLedgerError returns true if the state machine rejected a transaction.
func IsLedgerError(err error) bool {
	return errors.Is(err, ErrDuplicateTransaction) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrReferencedTransactionNotFound) ||
		errors.Is(err, ErrClientMismatch) ||
		errors.Is(err, ErrAmountMismatch) ||
		errors.Is(err, ErrAlreadyDisputed) ||
		errors.Is(err, ErrNotDisputed)
}

// IsFatal returns true if the run cannot continue regardless of policy.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSourceUnavailable)
}
