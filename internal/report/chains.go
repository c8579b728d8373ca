package report

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/drfirst/go-rxclaims/internal/domain/claim"
	"github.com/drfirst/go-rxclaims/internal/domain/pharmacy"
)

type chainAcc struct {
	name         string
	unitPriceSum decimal.Decimal
	count        int64
}

type chainAvg struct {
	name string
	avg  decimal.Decimal
}

// CalculateChainRecommendations ranks chains per drug by average unit
// price, cheapest first, and keeps the first MaxChains. Chains with equal
// rounded averages keep the order they were first seen in.
func CalculateChainRecommendations(claims []claim.Claim, dir *pharmacy.Directory) []ChainRecommendation {
	var drugs []string
	byDrug := make(map[string][]*chainAcc)
	index := make(map[[2]string]*chainAcc)

	for _, c := range claims {
		chain := dir.ChainOrUnknown(c.NPI)
		key := [2]string{c.NDC, chain}

		acc, ok := index[key]
		if !ok {
			if _, seen := byDrug[c.NDC]; !seen {
				drugs = append(drugs, c.NDC)
			}
			acc = &chainAcc{name: chain, unitPriceSum: decimal.Zero}
			index[key] = acc
			byDrug[c.NDC] = append(byDrug[c.NDC], acc)
		}
		acc.unitPriceSum = acc.unitPriceSum.Add(c.UnitPrice())
		acc.count++
	}

	out := make([]ChainRecommendation, 0, len(drugs))
	for _, ndc := range drugs {
		accs := byDrug[ndc]
		avgs := make([]chainAvg, len(accs))
		for i, acc := range accs {
			avg := acc.unitPriceSum.Div(decimal.NewFromInt(acc.count))
			avgs[i] = chainAvg{name: acc.name, avg: roundPrice(avg)}
		}

		sort.SliceStable(avgs, func(i, j int) bool {
			return avgs[i].avg.LessThan(avgs[j].avg)
		})
		if len(avgs) > MaxChains {
			avgs = avgs[:MaxChains]
		}

		chains := make([]ChainPrice, len(avgs))
		for i, a := range avgs {
			chains[i] = ChainPrice{Name: a.name, AvgPrice: toFloat(a.avg)}
		}
		out = append(out, ChainRecommendation{NDC: ndc, Chains: chains})
	}
	return out
}
