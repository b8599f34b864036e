package request

import "github.com/kailas-cloud/libcat/internal/domain/search/field"

// Sort is a single ordering key.
type Sort struct {
	Field string
	Desc  bool
}

// ResolveSort maps sort_by/order parameters to an ordering.
// title sorts ascending, pub_date descending, anything else by creation date descending;
// an explicit order of asc or desc overrides the direction.
func ResolveSort(sortBy, order string) Sort {
	var s Sort
	switch sortBy {
	case "title":
		s = Sort{Field: field.SortTitle}
	case "pub_date":
		s = Sort{Field: field.PubDate, Desc: true}
	default:
		s = Sort{Field: field.CreatedAt, Desc: true}
	}
	switch order {
	case "asc":
		s.Desc = false
	case "desc":
		s.Desc = true
	}
	return s
}

// HarvestSort is the ordering used for OAI-PMH listings.
func HarvestSort() Sort { return Sort{Field: field.UpdatedAt, Desc: true} }

// Direction returns "asc" or "desc".
func (s Sort) Direction() string {
	if s.Desc {
		return "desc"
	}
	return "asc"
}
