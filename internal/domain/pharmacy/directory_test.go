package pharmacy

import "testing"

func TestDirectoryLastWriteWins(t *testing.T) {
	d := NewDirectory()
	d.Add("111", "ChainA")
	d.Add("222", "ChainB")
	d.Add("111", "ChainC")

	if d.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", d.Len())
	}
	if chain, _ := d.Chain("111"); chain != "ChainC" {
		t.Errorf("chain for 111 = %q, want ChainC", chain)
	}
}

func TestDirectoryLookup(t *testing.T) {
	d := NewDirectory()
	d.Add("111", "ChainA")

	if !d.Has("111") {
		t.Error("expected 111 to be known")
	}
	if d.Has("999") {
		t.Error("999 should not be known")
	}
	if _, ok := d.Chain("999"); ok {
		t.Error("Chain(999) should report missing")
	}
	if got := d.ChainOrUnknown("999"); got != UnknownChain {
		t.Errorf("ChainOrUnknown(999) = %q, want %q", got, UnknownChain)
	}
}

func TestDirectoryMerge(t *testing.T) {
	a := NewDirectory()
	a.Add("111", "ChainA")
	a.Add("222", "ChainB")

	b := NewDirectory()
	b.Add("222", "ChainZ")
	b.Add("333", "ChainC")

	a.Merge(b)
	a.Merge(nil)

	if a.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", a.Len())
	}
	if chain, _ := a.Chain("222"); chain != "ChainZ" {
		t.Errorf("chain for 222 = %q, want ChainZ", chain)
	}
}
