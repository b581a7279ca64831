// Package catalog is the server-side price table for Knowledge-Unit bundles.
// Any value that determines how much credit is granted must originate here or
// from a previously persisted checkout intent, never from a request body.
package catalog

// Package is a preset Knowledge-Unit bundle.
type Package struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Units  int    `json:"units"`
	Amount int64  `json:"amount"` // price in kobo
}

// UnitPrice is the per-unit price in kobo for custom-amount purchases.
const UnitPrice int64 = 5000

// LibrarySlotCost is the Knowledge-Unit cost of one additional library slot.
const LibrarySlotCost = 5

var packages = []Package{
	{ID: "starter", Name: "Starter", Units: 10, Amount: 50000},
	{ID: "scholar", Name: "Scholar", Units: 25, Amount: 100000},
	{ID: "genius", Name: "Genius", Units: 60, Amount: 200000},
}

// Lookup returns the package with the given id.
func Lookup(id string) (Package, bool) {
	for _, p := range packages {
		if p.ID == id {
			return p, true
		}
	}
	return Package{}, false
}

// PriceForUnits returns the expected charge for a custom unit count.
func PriceForUnits(units int) int64 {
	return int64(units) * UnitPrice
}

// All returns the full package list, for the checkout UI.
func All() []Package {
	out := make([]Package, len(packages))
	copy(out, packages)
	return out
}
