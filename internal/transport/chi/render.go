package chi

import (
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/libcat/internal/domain"
	"github.com/kailas-cloud/libcat/internal/domain/search/request"
	"github.com/kailas-cloud/libcat/internal/domain/search/result"
)

const (
	contentTypeXML  = "application/xml; charset=utf-8"
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeRSS  = "application/rss+xml; charset=utf-8"
	contentTypeAtom = "application/atom+xml; charset=utf-8"
	dateLayout      = "2006-01-02"
)

type manifestationJSON struct {
	ID                 int64      `json:"id"`
	OriginalTitle      string     `json:"original_title"`
	TitleTranscription string     `json:"title_transcription,omitempty"`
	Creators           []string   `json:"creators,omitempty"`
	Publishers         []string   `json:"publishers,omitempty"`
	ISBN               string     `json:"isbn,omitempty"`
	ISSN               string     `json:"issn,omitempty"`
	CarrierType        string     `json:"carrier_type,omitempty"`
	Language           string     `json:"language,omitempty"`
	DateOfPublication  *time.Time `json:"date_of_publication,omitempty"`
	Periodical         bool       `json:"periodical"`
	SeriesStatementID  int64      `json:"series_statement_id,omitempty"`
	AccessAddress      string     `json:"access_address,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type seriesJSON struct {
	ID            int64  `json:"id"`
	OriginalTitle string `json:"original_title"`
	Periodical    bool   `json:"periodical"`
}

type tagJSON struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type listingJSON struct {
	Query           string              `json:"query"`
	Total           int                 `json:"total"`
	TrueTotal       int                 `json:"true_total"`
	Page            int                 `json:"page"`
	PerPage         int                 `json:"per_page"`
	TotalPages      int                 `json:"total_pages"`
	HasNext         bool                `json:"has_next"`
	Manifestations  []manifestationJSON `json:"manifestations"`
	Facets          []result.Facet      `json:"facets,omitempty"`
	SeriesStatement *seriesJSON         `json:"series_statement,omitempty"`
	Tags            []tagJSON           `json:"tags,omitempty"`
	Snapshot        *snapshotJSON       `json:"snapshot,omitempty"`
}

type snapshotJSON struct {
	Fresh bool `json:"fresh"`
}

type recordJSON struct {
	Manifestation manifestationJSON `json:"manifestation"`
	Prev          int64             `json:"prev,omitempty"`
	Next          int64             `json:"next,omitempty"`
	RedirectTo    *seriesJSON       `json:"redirect_to,omitempty"`
}

type tagCloudJSON struct {
	Tags []tagJSON `json:"tags"`
}

func manifestationToJSON(m *domain.Manifestation) manifestationJSON {
	return manifestationJSON{
		ID:                 m.ID,
		OriginalTitle:      m.OriginalTitle,
		TitleTranscription: m.TitleTranscription,
		Creators:           m.Creators,
		Publishers:         m.Publishers,
		ISBN:               m.ISBN,
		ISSN:               m.ISSN,
		CarrierType:        m.CarrierType,
		Language:           m.Language,
		DateOfPublication:  m.DateOfPublication,
		Periodical:         m.Periodical,
		SeriesStatementID:  m.SeriesStatementID,
		AccessAddress:      m.AccessAddress,
		CreatedAt:          m.CreatedAt.UTC(),
		UpdatedAt:          m.UpdatedAt.UTC(),
	}
}

func seriesToJSON(s *domain.SeriesStatement) *seriesJSON {
	if s == nil {
		return nil
	}
	return &seriesJSON{ID: s.ID, OriginalTitle: s.OriginalTitle, Periodical: s.Periodical}
}

func tagsToJSON(tags []domain.Tag) []tagJSON {
	out := make([]tagJSON, 0, len(tags))
	for _, t := range tags {
		out = append(out, tagJSON{Name: t.Name, Count: t.Count})
	}
	return out
}

func tagCloudToJSON(tags []domain.Tag) tagCloudJSON {
	return tagCloudJSON{Tags: tagsToJSON(tags)}
}

func listingToJSON(l *result.Listing) listingJSON {
	out := listingJSON{
		Query:           l.Query,
		Total:           l.Page.Total(),
		TrueTotal:       l.Page.TrueTotal(),
		Page:            l.Page.Number(),
		PerPage:         l.Page.PerPage(),
		TotalPages:      l.Page.TotalPages(),
		HasNext:         l.Page.HasNext(),
		Manifestations:  make([]manifestationJSON, 0, len(l.Records)),
		Facets:          l.Facets,
		SeriesStatement: seriesToJSON(l.Series),
	}
	for _, m := range l.Records {
		out.Manifestations = append(out.Manifestations, manifestationToJSON(m))
	}
	if len(l.Tags) > 0 {
		out.Tags = tagsToJSON(l.Tags)
	}
	if l.Snapshotted {
		out.Snapshot = &snapshotJSON{Fresh: l.Fresh}
	}
	return out
}

// renderListing writes a listing in the requested format. html renders the JSON model.
func renderListing(w http.ResponseWriter, r *http.Request, req *request.Request, l *result.Listing) error {
	switch req.Format {
	case request.XML:
		return writeXML(w, http.StatusOK, listingToXML(l))
	case request.CSV:
		return writeCSV(w, l.Records)
	case request.RSS:
		return writeXMLAs(w, contentTypeRSS, listingToRSS(r, req, l))
	case request.Atom:
		return writeXMLAs(w, contentTypeAtom, listingToAtom(r, req, l))
	case request.MODS:
		return writeXML(w, http.StatusOK, modsCollection(l.Records))
	default:
		writeJSON(w, http.StatusOK, listingToJSON(l))
		return nil
	}
}

// renderRecord writes a single record. Feed and harvesting formats are listing-only.
func renderRecord(w http.ResponseWriter, format request.Format, rec *result.Record) error {
	switch format {
	case request.HTML, request.JSON:
		writeJSON(w, http.StatusOK, recordJSON{
			Manifestation: manifestationToJSON(rec.Manifestation),
			Prev:          rec.Prev,
			Next:          rec.Next,
			RedirectTo:    seriesToJSON(rec.RedirectTo),
		})
		return nil
	case request.XML:
		return writeXML(w, http.StatusOK, manifestationToXML(rec.Manifestation))
	case request.MODS:
		return writeXML(w, http.StatusOK, modsRecord(rec.Manifestation))
	default:
		return fmt.Errorf("record format %s: %w", format, domain.ErrNotImplemented)
	}
}

func writeXML(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", contentTypeXML)
	w.WriteHeader(status)
	return encodeXML(w, v)
}

func writeXMLAs(w http.ResponseWriter, contentType string, v any) error {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	return encodeXML(w, v)
}

func encodeXML(w http.ResponseWriter, v any) error {
	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return fmt.Errorf("write xml header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode xml: %w", err)
	}
	return nil
}

var csvHeader = []string{
	"id", "original_title", "title_transcription", "creator", "publisher",
	"isbn", "issn", "carrier_type", "language", "date_of_publication", "created_at",
}

func writeCSV(w http.ResponseWriter, records []*domain.Manifestation) error {
	w.Header().Set("Content-Type", contentTypeCSV)
	w.Header().Set("Content-Disposition", `attachment; filename="manifestations.csv"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, m := range records {
		row := []string{
			strconv.FormatInt(m.ID, 10),
			m.OriginalTitle,
			m.TitleTranscription,
			strings.Join(m.Creators, "; "),
			strings.Join(m.Publishers, "; "),
			m.ISBN,
			m.ISSN,
			m.CarrierType,
			m.Language,
			formatDate(m.DateOfPublication),
			m.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

func manifestationPath(id int64) string {
	return "/manifestations/" + strconv.FormatInt(id, 10)
}
