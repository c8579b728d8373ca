package claim

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Field names of raw claim and revert records
const (
	FieldID        = "id"
	FieldNPI       = "npi"
	FieldNDC       = "ndc"
	FieldPrice     = "price"
	FieldQuantity  = "quantity"
	FieldTimestamp = "timestamp"
	FieldClaimID   = "claim_id"
)

var (
	claimFields  = []string{FieldID, FieldNPI, FieldNDC, FieldPrice, FieldQuantity, FieldTimestamp}
	revertFields = []string{FieldID, FieldClaimID, FieldTimestamp}
)

// timestampLayouts covers the ISO 8601 forms accepted for event times.
// Fractional seconds are accepted after any seconds field.
var timestampLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04Z07:00",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ValidateClaim converts a raw record into a Claim
func ValidateClaim(rec Record) Outcome[Claim] {
	if !hasFields(rec, claimFields) {
		return Rejected[Claim](ReasonMissingField)
	}

	id, _ := stringField(rec, FieldID)
	npi, _ := stringField(rec, FieldNPI)
	ndc, _ := stringField(rec, FieldNDC)

	price, ok := decimalField(rec, FieldPrice)
	if !ok {
		return Rejected[Claim](ReasonInvalidNumber)
	}
	quantity, ok := decimalField(rec, FieldQuantity)
	if !ok {
		return Rejected[Claim](ReasonInvalidNumber)
	}
	if quantity.IsZero() {
		return Rejected[Claim](ReasonZeroQuantity)
	}
	ts, ok := timestampField(rec, FieldTimestamp)
	if !ok {
		return Rejected[Claim](ReasonInvalidTimestamp)
	}

	return Accepted(Claim{
		ID:        id,
		NPI:       npi,
		NDC:       ndc,
		Price:     price,
		Quantity:  quantity,
		Timestamp: ts,
	})
}

// ValidateRevert converts a raw record into a Revert
func ValidateRevert(rec Record) Outcome[Revert] {
	if !hasFields(rec, revertFields) {
		return Rejected[Revert](ReasonMissingField)
	}

	id, _ := stringField(rec, FieldID)
	claimID, _ := stringField(rec, FieldClaimID)

	ts, ok := timestampField(rec, FieldTimestamp)
	if !ok {
		return Rejected[Revert](ReasonInvalidTimestamp)
	}

	return Accepted(Revert{ID: id, ClaimID: claimID, Timestamp: ts})
}

func hasFields(rec Record, fields []string) bool {
	for _, f := range fields {
		if _, ok := stringField(rec, f); !ok {
			return false
		}
	}
	return true
}

// stringField returns the textual form of a scalar field. Null, empty
// strings and non-scalar values count as missing.
func stringField(rec Record, key string) (string, bool) {
	switch v := rec[key].(type) {
	case string:
		return v, v != ""
	case json.Number:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	default:
		return "", false
	}
}

// Decimal magnitudes are held to the float64 range. Anything smaller than
// the smallest subnormal reads as zero; anything larger is invalid.
const (
	maxMagnitude = 308
	minMagnitude = -324
)

func decimalField(rec Record, key string) (decimal.Decimal, bool) {
	s, ok := stringField(rec, key)
	if !ok {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, false
	}
	if d.IsZero() {
		return decimal.Zero, true
	}

	switch m := magnitude(d); {
	case m > maxMagnitude:
		return decimal.Zero, false
	case m < minMagnitude:
		return decimal.Zero, true
	}
	return d, true
}

// magnitude returns the base-10 exponent of the leading digit of d
func magnitude(d decimal.Decimal) int64 {
	digits := len(strings.TrimPrefix(d.Coefficient().String(), "-"))
	return int64(d.Exponent()) + int64(digits) - 1
}

func timestampField(rec Record, key string) (time.Time, bool) {
	s, ok := rec[key].(string)
	if !ok {
		return time.Time{}, false
	}
	return ParseTimestamp(s)
}

// ParseTimestamp parses an ISO 8601 date or date-time. Values without a
// zone offset are taken as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
