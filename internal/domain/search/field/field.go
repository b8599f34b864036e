// Package field names the searchable fields of a manifestation document and their index types.
package field

// Type is the indexing type of a field.
type Type string

// Field type constants.
const (
	// Text is analyzed full text.
	Text Type = "text"
	// Keyword is an exact-match, facetable string.
	Keyword Type = "keyword"
	// Integer is a whole number.
	Integer Type = "integer"
	// Date is a point in time, stored in UTC.
	Date Type = "date"
	// Bool is true/false.
	Bool Type = "bool"
)

// Field names of a manifestation document.
const (
	ID                       = "id"
	Title                    = "title"
	SortTitle                = "sort_title"
	Creator                  = "creator"
	Contributor              = "contributor"
	Publisher                = "publisher"
	Tag                      = "tag"
	ISBN                     = "isbn"
	ISDN                     = "isdn"
	ISSN                     = "issn"
	LCCN                     = "lccn"
	NBN                      = "nbn"
	ItemIdentifier           = "item_identifier"
	NumberOfPages            = "number_of_pages"
	PubDate                  = "pub_date"
	AcquiredAt               = "acquired_at"
	CreatedAt                = "created_at"
	UpdatedAt                = "updated_at"
	RequiredRoleID           = "required_role_id"
	Periodical               = "periodical"
	PeriodicalMaster         = "periodical_master"
	Reservable               = "reservable"
	CarrierType              = "carrier_type"
	Library                  = "library"
	Language                 = "language"
	Subject                  = "subject"
	SubjectIDs               = "subject_ids"
	CreatorIDs               = "creator_ids"
	ContributorIDs           = "contributor_ids"
	PublisherIDs             = "publisher_ids"
	OriginalManifestationIDs = "original_manifestation_ids"
	SeriesStatementID        = "series_statement_id"
)

var types = map[string]Type{
	Title:                    Text,
	SortTitle:                Keyword,
	Creator:                  Text,
	Contributor:              Text,
	Publisher:                Text,
	Tag:                      Keyword,
	ISBN:                     Keyword,
	ISDN:                     Keyword,
	ISSN:                     Keyword,
	LCCN:                     Keyword,
	NBN:                      Keyword,
	ItemIdentifier:           Keyword,
	NumberOfPages:            Integer,
	PubDate:                  Date,
	AcquiredAt:               Date,
	CreatedAt:                Date,
	UpdatedAt:                Date,
	RequiredRoleID:           Integer,
	Periodical:               Bool,
	PeriodicalMaster:         Bool,
	Reservable:               Bool,
	CarrierType:              Keyword,
	Library:                  Keyword,
	Language:                 Keyword,
	Subject:                  Keyword,
	SubjectIDs:               Keyword,
	CreatorIDs:               Keyword,
	ContributorIDs:           Keyword,
	PublisherIDs:             Keyword,
	OriginalManifestationIDs: Keyword,
	SeriesStatementID:        Integer,
}

// TypeOf returns the index type of a named field. Unknown fields are treated as text.
func TypeOf(name string) Type {
	if t, ok := types[name]; ok {
		return t
	}
	return Text
}

// Known reports whether name is a field of the manifestation document.
func Known(name string) bool {
	_, ok := types[name]
	return ok
}

// Names returns every field name with its type, for index schema creation.
func Names() map[string]Type {
	out := make(map[string]Type, len(types))
	for k, v := range types {
		out[k] = v
	}
	return out
}
