package ledger

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RECORD VALIDATION - raw fields to Transaction
// =============================================================================

// RecordFields is the number of fields every input record must carry.
const RecordFields = 4

var typeSpellings = map[string]TransactionType{
	"deposit":    Deposit,
	"withdrawal": Withdrawal,
	"withdraw":   Withdrawal,
	"dispute":    Dispute,
	"resolve":    Resolve,
	"chargeback": Chargeback,
}

// ParseType maps an input spelling to its TransactionType. Spellings are
// case-sensitive lowercase.
func ParseType(s string) (TransactionType, error) {
	t, ok := typeSpellings[s]
	if !ok {
		return 0, &FieldError{Field: "type", Value: s, Err: ErrUnknownTransactionType}
	}
	return t, nil
}

// ParseAmount parses an exact, non-negative decimal with at most Scale
// fractional digits. The returned value is the parsed value, never a rounded one.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, &FieldError{Field: "amount", Value: s, Err: ErrMalformedField, Cause: err}
	}
	if d.IsNegative() {
		return decimal.Decimal{}, &FieldError{Field: "amount", Value: s, Err: ErrMalformedField}
	}
	// 123.45670 passes, 123.45678 does not.
	if !d.Round(Scale).Equal(d) {
		return decimal.Decimal{}, &FieldError{Field: "amount", Value: s, Err: ErrPrecisionExceeded}
	}
	return d, nil
}

// ParseRecord converts the four raw fields (type, client, tx, amount) into a
// Transaction. Fields must already be trimmed. The Sequence is left at zero
// for the caller to stamp. It has no side effects.
func ParseRecord(fields []string) (Transaction, error) {
	if len(fields) != RecordFields {
		return Transaction{}, &RecordError{Fields: len(fields)}
	}

	kind, err := ParseType(fields[0])
	if err != nil {
		return Transaction{}, err
	}

	client, err := strconv.ParseUint(fields[1], 10, 16)
	if err != nil {
		return Transaction{}, &FieldError{Field: "client", Value: fields[1], Err: ErrMalformedField, Cause: err}
	}

	txID, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return Transaction{}, &FieldError{Field: "tx", Value: fields[2], Err: ErrMalformedField, Cause: err}
	}

	amount, err := ParseAmount(fields[3])
	if err != nil {
		return Transaction{}, err
	}

	return Transaction{
		Kind:     kind,
		ClientID: ClientID(client),
		TxID:     TxID(txID),
		Amount:   amount,
	}, nil
}
