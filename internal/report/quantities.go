package report

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/drfirst/go-rxclaims/internal/domain/claim"
)

type quantityCount struct {
	value decimal.Decimal
	count int
}

// CalculateCommonQuantities returns up to MaxQuantities of the most
// frequent quantities per drug. Equal counts are ordered by ascending
// quantity.
func CalculateCommonQuantities(claims []claim.Claim) []CommonQuantity {
	var drugs []string
	histograms := make(map[string]map[string]*quantityCount)

	for _, c := range claims {
		hist, ok := histograms[c.NDC]
		if !ok {
			hist = make(map[string]*quantityCount)
			histograms[c.NDC] = hist
			drugs = append(drugs, c.NDC)
		}

		// String is canonical, so 10 and 10.0 share a bucket
		key := c.Quantity.String()
		qc, ok := hist[key]
		if !ok {
			qc = &quantityCount{value: c.Quantity}
			hist[key] = qc
		}
		qc.count++
	}

	out := make([]CommonQuantity, 0, len(drugs))
	for _, ndc := range drugs {
		hist := histograms[ndc]
		counts := make([]*quantityCount, 0, len(hist))
		for _, qc := range hist {
			counts = append(counts, qc)
		}

		sort.Slice(counts, func(i, j int) bool {
			if counts[i].count != counts[j].count {
				return counts[i].count > counts[j].count
			}
			return counts[i].value.LessThan(counts[j].value)
		})
		if len(counts) > MaxQuantities {
			counts = counts[:MaxQuantities]
		}

		quantities := make([]float64, len(counts))
		for i, qc := range counts {
			quantities[i] = toFloat(qc.value)
		}
		out = append(out, CommonQuantity{NDC: ndc, Quantities: quantities})
	}
	return out
}
