// Package ledger models balance-history entries and groups them for display.
package ledger

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/logiride/client/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// TransactionType represents the kind of balance movement
type TransactionType string

const (
	TransactionTypeWithdrawRequested TransactionType = "WITHDRAW_REQUESTED"
	TransactionTypeDeposit           TransactionType = "DEPOSIT"
	TransactionTypeWithdraw          TransactionType = "WITHDRAW"
	TransactionTypeWithdrawApproved  TransactionType = "WITHDRAW_APPROVED"
	TransactionTypeWithdrawRejected  TransactionType = "WITHDRAW_REJECTED"
	TransactionTypePaymentReceived   TransactionType = "PAYMENT_RECEIVED"
)

// String returns the string representation of TransactionType
func (t TransactionType) String() string {
	return string(t)
}

// IsValid returns true if the transaction type is known
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeWithdrawRequested,
		TransactionTypeDeposit,
		TransactionTypeWithdraw,
		TransactionTypeWithdrawApproved,
		TransactionTypeWithdrawRejected,
		TransactionTypePaymentReceived:
		return true
	}
	return false
}

// Label returns the human readable name shown next to an entry
func (t TransactionType) Label() string {
	switch t {
	case TransactionTypeWithdrawRequested:
		return "Withdrawal requested"
	case TransactionTypeDeposit:
		return "Deposit"
	case TransactionTypeWithdraw:
		return "Withdrawal"
	case TransactionTypeWithdrawApproved:
		return "Withdrawal approved"
	case TransactionTypeWithdrawRejected:
		return "Withdrawal rejected"
	case TransactionTypePaymentReceived:
		return "Payment received"
	}
	return string(t)
}

// Transaction is a read-only ledger entry created server side. The sign of
// Amount decides whether it is displayed as a credit or a debit;
// CurrentBalance is a snapshot and is never recomputed on the client.
type Transaction struct {
	ID              string          `json:"id"`
	Type            TransactionType `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	CurrentBalance  decimal.Decimal `json:"currentBalance"`
	Description     string          `json:"description,omitempty"`
	ReferenceID     string          `json:"referenceId,omitempty"`
	TransactionDate Timestamp       `json:"transactionDate"`
}

// IsCredit returns true when the entry increases the balance
func (t Transaction) IsCredit() bool {
	return t.Amount.IsPositive()
}

// IsDebit returns true when the entry decreases the balance
func (t Transaction) IsDebit() bool {
	return t.Amount.IsNegative()
}

// Money returns the signed amount as VND money
func (t Transaction) Money() valueobject.Money {
	return valueobject.NewMoneyVND(t.Amount)
}

// Balance returns the balance snapshot as VND money
func (t Transaction) Balance() valueobject.Money {
	return valueobject.NewMoneyVND(t.CurrentBalance)
}

// DisplayAmount formats the amount with an explicit sign for credits
func (t Transaction) DisplayAmount() string {
	s := t.Money().Format()
	if t.IsCredit() {
		return "+" + s
	}
	return s
}

// When returns the parsed transaction time (zero when the server value could not be parsed)
func (t Transaction) When() time.Time {
	return t.TransactionDate.Time
}

// WhenIn returns the transaction time in loc, reading a zone-less server value
// as wall-clock time in loc
func (t Transaction) WhenIn(loc *time.Location) time.Time {
	return t.TransactionDate.Anchor(loc).Time
}

// Timestamp decodes the loosely formatted dates the API emits.
// Values that cannot be parsed decode to the zero time instead of failing the
// whole list.
type Timestamp struct {
	time.Time
	Raw string
	// Floating is set when the value carried no zone or offset
	Floating bool
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// zonedLayouts is the number of leading layouts that carry an offset
const zonedLayouts = 1

// ParseTimestamp parses a date string using the layouts the API is known to
// emit. Zone-less values are interpreted in loc.
func ParseTimestamp(s string, loc *time.Location) Timestamp {
	s = strings.TrimSpace(s)
	ts := Timestamp{Raw: s}
	if s == "" {
		return ts
	}
	if loc == nil {
		loc = time.Local
	}
	for i, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, s, loc); err == nil {
			ts.Time = parsed
			ts.Floating = i >= zonedLayouts
			return ts
		}
	}
	if millis, err := strconv.ParseInt(s, 10, 64); err == nil {
		ts.Time = time.UnixMilli(millis)
	}
	return ts
}

// UnmarshalJSON accepts strings in any known layout or epoch milliseconds
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	*t = ParseTimestamp(s, time.Local)
	return nil
}

// Anchor fixes a floating timestamp to the same wall-clock time in loc and
// converts any other timestamp to loc
func (t Timestamp) Anchor(loc *time.Location) Timestamp {
	if t.IsZero() {
		return t
	}
	if loc == nil {
		loc = time.Local
	}
	if !t.Floating {
		return Timestamp{Time: t.In(loc), Raw: t.Raw}
	}
	y, mo, d := t.Date()
	h, mi, sec := t.Clock()
	return Timestamp{Time: time.Date(y, mo, d, h, mi, sec, t.Nanosecond(), loc), Raw: t.Raw}
}

// MarshalJSON writes RFC3339, or the raw value when the time is unknown
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		if t.Raw == "" {
			return []byte("null"), nil
		}
		return json.Marshal(t.Raw)
	}
	return json.Marshal(t.Format(time.RFC3339))
}

// At wraps a parsed time as a Timestamp
func At(tm time.Time) Timestamp {
	return Timestamp{Time: tm}
}
