package search

import (
	"strconv"

	"github.com/kailas-cloud/libcat/internal/domain"
	"github.com/kailas-cloud/libcat/internal/domain/search/clause"
	"github.com/kailas-cloud/libcat/internal/domain/search/field"
	"github.com/kailas-cloud/libcat/internal/domain/search/mode"
	"github.com/kailas-cloud/libcat/internal/domain/search/query"
	"github.com/kailas-cloud/libcat/internal/domain/search/request"
)

// Scope is the resolved context a listing runs in.
type Scope struct {
	// Series is the series being browsed, nil for the generic listing.
	Series *domain.SeriesStatement
	// Entities holds patron, subject and derived-record scoping ids.
	Entities request.Scope
}

// Apply returns the visibility and scoping clauses for a listing.
// Curation mode returns none: staff must find records that are normally hidden.
func Apply(scope Scope, role domain.Role, m mode.Mode) clause.Set {
	if m.BypassesVisibility() {
		return nil
	}

	set := clause.Set{
		clause.NewRange(field.RequiredRoleID, clause.Open, strconv.Itoa(role.Rank())),
	}

	if s := scope.Series; s != nil {
		set = append(set,
			clause.NewEquality(field.SeriesStatementID, formatID(s.ID)),
			clause.NewEquality(field.PeriodicalMaster, "false"),
			clause.NewEquality(field.Periodical, strconv.FormatBool(s.Periodical)),
		)
	} else {
		set = append(set, clause.NewEquality(field.Periodical, "false"))
	}

	e := scope.Entities
	if e.PatronID != 0 {
		set = append(set, patronClause(e.PatronID))
	}
	set = appendID(set, field.CreatorIDs, e.CreatorID)
	set = appendID(set, field.ContributorIDs, e.ContributorID)
	set = appendID(set, field.PublisherIDs, e.PublisherID)
	set = appendID(set, field.SubjectIDs, e.SubjectID)
	set = appendID(set, field.OriginalManifestationIDs, e.OriginalManifestation)
	return set
}

// Selections returns the facet selection clauses. They apply in every mode.
// subject is the resolved subject selection; nil adds no subject clause.
func Selections(f request.Filters, subject *domain.Subject, circulation bool) clause.Set {
	var set clause.Set
	if circulation {
		if r := f.ReservableFlag(); r != nil {
			set = append(set, clause.NewEquality(field.Reservable, strconv.FormatBool(*r)))
		}
	}
	for _, v := range query.SplitTokens(f.CarrierType) {
		set = append(set, clause.NewEquality(field.CarrierType, v))
	}
	for _, v := range query.SplitTokens(f.Library) {
		set = append(set, clause.NewEquality(field.Library, v))
	}
	for _, v := range query.SplitTokens(f.Language) {
		set = append(set, clause.NewEquality(field.Language, v))
	}
	if subject != nil {
		set = append(set, clause.NewEquality(field.SubjectIDs, formatID(subject.ID)))
	}
	return set
}

// CheckMode rejects curation mode for anyone below Librarian.
func CheckMode(actor *domain.User, m mode.Mode) error {
	if m != mode.Add {
		return nil
	}
	if actor == nil || !actor.Role.AtLeast(domain.RoleLibrarian) {
		return domain.NewAccessDenied(actor, "add mode requires the librarian role")
	}
	return nil
}

// patronClause scopes /patrons/{id}/manifestations to the patron's own works.
// Contributor and publisher listings use their own parameters.
func patronClause(id int64) clause.Clause {
	return clause.NewEquality(field.CreatorIDs, formatID(id))
}

func appendID(set clause.Set, name string, id int64) clause.Set {
	if id == 0 {
		return set
	}
	return append(set, clause.NewEquality(name, formatID(id)))
}

func formatID(id int64) string { return strconv.FormatInt(id, 10) }
