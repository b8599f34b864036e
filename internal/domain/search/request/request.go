package request

import (
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/libcat/internal/domain/search/mode"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum accepted free-text length; longer input is truncated.
	MaxQueryLength = 4096
	DefaultPage    = 1
)

// Format is the requested output representation.
type Format string

// Output formats.
const (
	HTML Format = "html"
	JSON Format = "json"
	XML  Format = "xml"
	CSV  Format = "csv"
	RSS  Format = "rss"
	Atom Format = "atom"
	OAI  Format = "oai"
	SRU  Format = "sru"
	MODS Format = "mods"
)

var formats = map[Format]struct{}{
	HTML: {}, JSON: {}, XML: {}, CSV: {}, RSS: {}, Atom: {}, OAI: {}, SRU: {}, MODS: {},
}

// ParseFormat maps a raw format parameter to a Format. Empty means html.
func ParseFormat(s string) (Format, bool) {
	if s == "" {
		return HTML, true
	}
	f := Format(strings.ToLower(s))
	_, ok := formats[f]
	return f, ok
}

// IsBulk reports whether the format exports the whole capped result window.
func (f Format) IsBulk() bool { return f == CSV }

// Filters holds the optional structured filters of a listing.
// Blank values never contribute a clause.
type Filters struct {
	Tag                  string
	Creator              string
	Contributor          string
	Publisher            string
	ISBN                 string
	ISDN                 string
	ISSN                 string
	LCCN                 string
	NBN                  string
	ItemIdentifier       string
	NumberOfPagesAtLeast string
	NumberOfPagesAtMost  string
	PubDateFrom          string
	PubDateTo            string
	AcquiredFrom         string
	AcquiredTo           string

	// Facet selections, applied as filters outside the scored query.
	CarrierType string
	Library     string
	Language    string
	Subject     string
	Reservable  string
}

// Scope narrows a listing to records related to one entity. Zero ids are unset.
type Scope struct {
	SeriesStatementID     int64
	PatronID              int64
	CreatorID             int64
	ContributorID         int64
	PublisherID           int64
	SubjectID             int64
	OriginalManifestation int64
}

// Request is a manifestation listing request.
type Request struct {
	Query   string
	Filters Filters
	Scope   Scope
	SortBy  string
	Order   string
	Page    int
	Format  Format
	Mode    mode.Mode
	View    string
}

// Normalize clamps the page, truncates oversized queries and defaults the format.
func (r *Request) Normalize() {
	if r.Page < 1 {
		r.Page = DefaultPage
	}
	if len(r.Query) > MaxQueryLength {
		cut := MaxQueryLength
		for cut > 0 && !utf8.RuneStart(r.Query[cut]) {
			cut--
		}
		r.Query = r.Query[:cut]
	}
	if r.Format == "" {
		r.Format = HTML
	}
	if !r.Mode.IsValid() {
		r.Mode = mode.Normal
	}
}

// ReservableFlag parses the reservable facet selection. nil means unset.
func (f Filters) ReservableFlag() *bool {
	switch strings.TrimSpace(f.Reservable) {
	case "true":
		v := true
		return &v
	case "false":
		v := false
		return &v
	default:
		return nil
	}
}
