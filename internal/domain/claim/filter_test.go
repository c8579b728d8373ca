package claim

import (
	"testing"

	"github.com/drfirst/go-rxclaims/internal/domain/pharmacy"
)

func testDirectory() *pharmacy.Directory {
	d := pharmacy.NewDirectory()
	d.Add("111", "ChainA")
	d.Add("222", "ChainB")
	return d
}

func claimRecord(id, npi, quantity string) Record {
	return Record{
		"id":        id,
		"npi":       npi,
		"ndc":       "d1",
		"price":     "10",
		"quantity":  quantity,
		"timestamp": "2023-01-01T00:00:00",
	}
}

func TestFilterClaims(t *testing.T) {
	records := []Record{
		claimRecord("c1", "111", "1"),
		claimRecord("c2", "999", "1"), // unknown pharmacy
		claimRecord("c3", "222", "0"), // zero quantity
		claimRecord("c4", "222", "2"),
		{"id": "c5"},
	}

	claims, stats := FilterClaims(records, testDirectory())

	if len(claims) != 2 {
		t.Fatalf("expected 2 claims, got %d", len(claims))
	}
	if claims[0].ID != "c1" || claims[1].ID != "c4" {
		t.Errorf("order not preserved: %s, %s", claims[0].ID, claims[1].ID)
	}
	if stats.Input != 5 || stats.Accepted != 2 || stats.Unresolved != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.Rejected[ReasonZeroQuantity] != 1 || stats.Rejected[ReasonMissingField] != 1 {
		t.Errorf("unexpected rejections: %v", stats.Rejected)
	}
	if stats.TotalRejected() != 2 {
		t.Errorf("total rejected = %d, want 2", stats.TotalRejected())
	}
}

func TestFilterRevertsReferentialIntegrity(t *testing.T) {
	claims, _ := FilterClaims([]Record{
		claimRecord("c1", "111", "1"),
		claimRecord("c2", "999", "1"),
		claimRecord("c3", "111", "0"),
	}, testDirectory())
	ids := IDs(claims)

	reverts, stats := FilterReverts([]Record{
		{"id": "r1", "claim_id": "c1", "timestamp": "2023-01-02T00:00:00"},
		{"id": "r2", "claim_id": "c2", "timestamp": "2023-01-02T00:00:00"}, // unknown pharmacy claim
		{"id": "r3", "claim_id": "c3", "timestamp": "2023-01-02T00:00:00"}, // invalid claim
		{"id": "r4", "claim_id": "c1", "timestamp": "not a time"},
	}, ids)

	if len(reverts) != 1 || reverts[0].ID != "r1" {
		t.Fatalf("expected only r1, got %+v", reverts)
	}
	if stats.Unresolved != 2 {
		t.Errorf("unresolved = %d, want 2", stats.Unresolved)
	}
	if stats.Rejected[ReasonInvalidTimestamp] != 1 {
		t.Errorf("unexpected rejections: %v", stats.Rejected)
	}
}

func TestIDs(t *testing.T) {
	ids := IDs([]Claim{{ID: "a"}, {ID: "b"}, {ID: "a"}})
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}
	if _, ok := ids["b"]; !ok {
		t.Error("missing id b")
	}
}
