// Package pharmacy holds the pharmacy reference data used to resolve
// claim NPIs to their chain.
package pharmacy

// UnknownChain is reported for an NPI that has no directory entry.
const UnknownChain = "unknown"

// Directory maps a pharmacy NPI to its chain name
type Directory struct {
	chains map[string]string
}

// NewDirectory creates an empty directory
func NewDirectory() *Directory {
	return &Directory{chains: make(map[string]string)}
}

// Add registers npi under chain. A later Add for the same NPI replaces
// the earlier chain.
func (d *Directory) Add(npi, chain string) {
	d.chains[npi] = chain
}

// Merge copies every entry of other into d, other winning on conflicts
func (d *Directory) Merge(other *Directory) {
	if other == nil {
		return
	}
	for npi, chain := range other.chains {
		d.chains[npi] = chain
	}
}

// Chain returns the chain for npi
func (d *Directory) Chain(npi string) (string, bool) {
	chain, ok := d.chains[npi]
	return chain, ok
}

// ChainOrUnknown returns the chain for npi or UnknownChain
func (d *Directory) ChainOrUnknown(npi string) string {
	if chain, ok := d.chains[npi]; ok {
		return chain
	}
	return UnknownChain
}

// Has reports whether npi is a known pharmacy
func (d *Directory) Has(npi string) bool {
	_, ok := d.chains[npi]
	return ok
}

// Len returns the number of known pharmacies
func (d *Directory) Len() int { return len(d.chains) }
