package catalog

import "strings"

// CategoryAll is the sentinel category meaning "no category filter".
const CategoryAll = "all"

// FilterState is the current category/search selection. It lives only for
// the browsing session and is never persisted.
type FilterState struct {
	Category   string
	SearchTerm string
}

// NewFilterState returns the unfiltered state.
func NewFilterState() FilterState {
	return FilterState{Category: CategoryAll}
}

// Filter computes the filtered view of the catalog. Both filters compose
// by AND; result ordering is the catalog order. Missing optional fields
// never match.
//
// The category filter deliberately also matches the term against name and
// description: category data is sparse in parts catalogs, so the category
// buttons double as a coarse keyword filter.
func Filter(all []Product, state FilterState) []Product {
	filtered := make([]Product, 0, len(all))
	filtered = append(filtered, all...)

	if category := normalizeTerm(state.Category); category != "" && category != CategoryAll {
		filtered = keep(filtered, func(p *Product) bool {
			return strings.ToLower(p.Category) == category ||
				containsFold(p.Name, category) ||
				containsFold(p.Description, category)
		})
	}

	if term := normalizeTerm(state.SearchTerm); term != "" {
		filtered = keep(filtered, func(p *Product) bool {
			return containsFold(p.Name, term) ||
				containsFold(p.Description, term) ||
				containsFold(p.Category, term) ||
				containsFold(p.Brand, term) ||
				containsFold(p.SKU, term)
		})
	}

	return filtered
}

func keep(products []Product, match func(*Product) bool) []Product {
	kept := products[:0]
	for i := range products {
		if match(&products[i]) {
			kept = append(kept, products[i])
		}
	}
	return kept
}

func containsFold(s, term string) bool {
	return s != "" && strings.Contains(strings.ToLower(s), term)
}

func normalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}
