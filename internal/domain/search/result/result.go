package result

import (
	"math"
	"sort"
)

// FacetCount is one value of a facet dimension with its hit count.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Facet is a named dimension with its value rows, in index order.
type Facet struct {
	Name string       `json:"name"`
	Rows []FacetCount `json:"rows"`
}

// Page is one window of an ordered search result.
type Page struct {
	ids       []int64
	total     int
	trueTotal int
	page      int
	perPage   int
	offset    int
	facets    []Facet
}

// NewPage creates a result page. total is the reported (capped) total, trueTotal the index total.
func NewPage(ids []int64, total, trueTotal, page, perPage int, facets []Facet) Page {
	if page < 1 {
		page = 1
	}
	return Page{
		ids: ids, total: total, trueTotal: trueTotal,
		page: page, perPage: perPage, offset: pageOffset(page, perPage), facets: facets,
	}
}

// AtOffset returns a copy that starts at a raw 0-based record offset instead of a
// page boundary. The page number becomes the page holding that record.
func (p Page) AtOffset(offset int) Page {
	if offset < 0 {
		offset = 0
	}
	p.offset = offset
	if p.perPage > 0 {
		p.page = offset/p.perPage + 1
	}
	return p
}

// pageOffset is (page-1)*perPage. It saturates a page below MaxInt so that
// Offset()+len(IDs())+1 stays positive.
func pageOffset(page, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	if page-1 >= (math.MaxInt-perPage)/perPage {
		return math.MaxInt - perPage
	}
	return (page - 1) * perPage
}

// IDs returns the record ids of this page in result order.
func (p Page) IDs() []int64 { return p.ids }

// Total returns the reported total, capped at the configured maximum.
func (p Page) Total() int { return p.total }

// TrueTotal returns the uncapped index total.
func (p Page) TrueTotal() int { return p.trueTotal }

// Number returns the 1-based page number.
func (p Page) Number() int { return p.page }

// PerPage returns the page size.
func (p Page) PerPage() int { return p.perPage }

// Offset returns the 0-based index of the first hit of this page.
func (p Page) Offset() int { return p.offset }

// TotalPages returns the number of pages in the capped window.
func (p Page) TotalPages() int {
	if p.perPage <= 0 || p.total == 0 {
		return 0
	}
	return (p.total + p.perPage - 1) / p.perPage
}

// HasNext reports whether another page follows inside the capped window.
func (p Page) HasNext() bool { return p.page < p.TotalPages() }

// IsEmpty reports whether the page holds no hits.
func (p Page) IsEmpty() bool { return len(p.ids) == 0 }

// Facets returns the facet dimensions.
func (p Page) Facets() []Facet { return p.facets }

// Facet returns the named facet rows, or nil.
func (p Page) Facet(name string) []FacetCount {
	for _, f := range p.facets {
		if f.Name == name {
			return f.Rows
		}
	}
	return nil
}

// SortRows orders facet rows by count descending, then value ascending.
func SortRows(rows []FacetCount) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Value < rows[j].Value
	})
}
