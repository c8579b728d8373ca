package claim

import "github.com/drfirst/go-rxclaims/internal/domain/pharmacy"

// FilterStats summarizes what a filter kept and dropped
type FilterStats struct {
	Input      int
	Accepted   int
	Rejected   map[Reason]int
	Unresolved int
}

func newFilterStats(input int) FilterStats {
	return FilterStats{Input: input, Rejected: make(map[Reason]int)}
}

// TotalRejected returns the number of records dropped by validation
func (s FilterStats) TotalRejected() int {
	n := 0
	for _, c := range s.Rejected {
		n += c
	}
	return n
}

// FilterClaims keeps the claims that validate and belong to a known
// pharmacy, in input order.
func FilterClaims(records []Record, dir *pharmacy.Directory) ([]Claim, FilterStats) {
	stats := newFilterStats(len(records))
	claims := make([]Claim, 0, len(records))

	for _, rec := range records {
		out := ValidateClaim(rec)
		if !out.OK() {
			stats.Rejected[out.Reason]++
			continue
		}
		if !dir.Has(out.Value.NPI) {
			stats.Unresolved++
			continue
		}
		claims = append(claims, out.Value)
	}

	stats.Accepted = len(claims)
	return claims, stats
}

// IDs returns the set of claim identifiers
func IDs(claims []Claim) map[string]struct{} {
	ids := make(map[string]struct{}, len(claims))
	for _, c := range claims {
		ids[c.ID] = struct{}{}
	}
	return ids
}

// FilterReverts keeps the reverts that validate and reference a claim in
// validIDs, in input order. validIDs must come from FilterClaims output.
func FilterReverts(records []Record, validIDs map[string]struct{}) ([]Revert, FilterStats) {
	stats := newFilterStats(len(records))
	reverts := make([]Revert, 0, len(records))

	for _, rec := range records {
		out := ValidateRevert(rec)
		if !out.OK() {
			stats.Rejected[out.Reason]++
			continue
		}
		if _, ok := validIDs[out.Value.ClaimID]; !ok {
			stats.Unresolved++
			continue
		}
		reverts = append(reverts, out.Value)
	}

	stats.Accepted = len(reverts)
	return reverts, stats
}
