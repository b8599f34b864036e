package db

import (
	"time"

	"github.com/kailas-cloud/libcat/internal/domain/search/clause"
)

// SearchQuery is the input for a sorted, paginated FT.SEARCH.
type SearchQuery struct {
	IndexName string
	Clauses   clause.Set
	SortBy    string
	Desc      bool
	Offset    int
	Limit     int
	// Now anchors relative date bounds; zero means the current time.
	Now time.Time
}

// AggregateQuery counts documents per value of one field via FT.AGGREGATE.
type AggregateQuery struct {
	IndexName string
	Clauses   clause.Set
	Field     string
	Limit     int
	Now       time.Time
}

// SearchResult is the output of a search operation. Keys are in result order.
type SearchResult struct {
	Total int
	Keys  []string
}

// Bucket is one group of an aggregation.
type Bucket struct {
	Value string
	Count int
}
