package report

import (
	"github.com/shopspring/decimal"

	"github.com/drfirst/go-rxclaims/internal/domain/claim"
)

type metricKey struct {
	npi string
	ndc string
}

type metricAcc struct {
	fills        int
	reverted     int
	unitPriceSum decimal.Decimal
	totalPrice   decimal.Decimal
}

// CalculateMetrics aggregates fills, reverts and prices per (NPI, NDC).
// Entries are returned in the order their key was first seen.
func CalculateMetrics(claims []claim.Claim, reverts []claim.Revert) []Metric {
	reverted := make(map[string]struct{}, len(reverts))
	for _, r := range reverts {
		reverted[r.ClaimID] = struct{}{}
	}

	var order []metricKey
	accs := make(map[metricKey]*metricAcc)

	for _, c := range claims {
		key := metricKey{npi: c.NPI, ndc: c.NDC}
		acc, ok := accs[key]
		if !ok {
			acc = &metricAcc{unitPriceSum: decimal.Zero, totalPrice: decimal.Zero}
			accs[key] = acc
			order = append(order, key)
		}

		acc.fills++
		acc.unitPriceSum = acc.unitPriceSum.Add(c.UnitPrice())
		acc.totalPrice = acc.totalPrice.Add(c.Price)
		if _, ok := reverted[c.ID]; ok {
			acc.reverted++
		}
	}

	out := make([]Metric, 0, len(order))
	for _, key := range order {
		acc := accs[key]
		avg := acc.unitPriceSum.Div(decimal.NewFromInt(int64(acc.fills)))
		out = append(out, Metric{
			NPI:        key.npi,
			NDC:        key.ndc,
			Fills:      acc.fills,
			Reverted:   acc.reverted,
			AvgPrice:   toFloat(roundPrice(avg)),
			TotalPrice: toFloat(roundPrice(acc.totalPrice)),
		})
	}
	return out
}
