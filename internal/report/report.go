// Package report computes the aggregate reports over filtered claims:
// per pharmacy/drug fill metrics, cheapest chains per drug and the most
// common prescribed quantities per drug.
package report

import "github.com/shopspring/decimal"

const (
	// MaxChains is the number of chains recommended per drug
	MaxChains = 2
	// MaxQuantities is the number of quantities reported per drug
	MaxQuantities = 5

	pricePlaces = 2
)

// Metric is the fill summary for one (NPI, NDC) pair
type Metric struct {
	NPI        string  `json:"npi"`
	NDC        string  `json:"ndc"`
	Fills      int     `json:"fills"`
	Reverted   int     `json:"reverted"`
	AvgPrice   float64 `json:"avg_price"`
	TotalPrice float64 `json:"total_price"`
}

// ChainPrice is the average unit price of a drug at one chain
type ChainPrice struct {
	Name     string  `json:"name"`
	AvgPrice float64 `json:"avg_price"`
}

// ChainRecommendation lists the cheapest chains for a drug
type ChainRecommendation struct {
	NDC    string       `json:"ndc"`
	Chains []ChainPrice `json:"chain"`
}

// CommonQuantity lists the most prescribed quantities for a drug
type CommonQuantity struct {
	NDC        string    `json:"ndc"`
	Quantities []float64 `json:"most_prescribed_quantity"`
}

func roundPrice(d decimal.Decimal) decimal.Decimal {
	return d.Round(pricePlaces)
}

func toFloat(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
