// Package claim implements validation and cross-referencing of claim and
// revert events.
package claim

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is a raw event as decoded from an input file. Numbers decode as
// json.Number.
type Record map[string]any

// Claim is a validated prescription fill
type Claim struct {
	ID        string
	NPI       string
	NDC       string
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Timestamp time.Time
}

// UnitPrice returns price per unit. Quantity is never zero for a
// validated claim.
func (c Claim) UnitPrice() decimal.Decimal {
	return c.Price.Div(c.Quantity)
}

// Revert is a validated reversal of a previously filed claim
type Revert struct {
	ID        string
	ClaimID   string
	Timestamp time.Time
}

// Reason explains why a record was rejected
type Reason string

const (
	ReasonMissingField     Reason = "missing_field"
	ReasonInvalidNumber    Reason = "invalid_number"
	ReasonZeroQuantity     Reason = "zero_quantity"
	ReasonInvalidTimestamp Reason = "invalid_timestamp"
)

// Reasons lists every rejection reason in reporting order
var Reasons = []Reason{
	ReasonMissingField,
	ReasonInvalidNumber,
	ReasonZeroQuantity,
	ReasonInvalidTimestamp,
}

// Outcome is the result of validating one record: either an accepted
// value or a rejection reason.
type Outcome[T any] struct {
	Value  T
	Reason Reason
}

// Accepted wraps a valid value
func Accepted[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v}
}

// Rejected records why a value was dropped
func Rejected[T any](reason Reason) Outcome[T] {
	return Outcome[T]{Reason: reason}
}

// OK reports whether the record was accepted
func (o Outcome[T]) OK() bool { return o.Reason == "" }
