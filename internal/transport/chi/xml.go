package chi

import (
	"encoding/xml"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kailas-cloud/libcat/internal/domain"
	"github.com/kailas-cloud/libcat/internal/domain/search/request"
	"github.com/kailas-cloud/libcat/internal/domain/search/result"
)

// XML namespaces.
const (
	nsMODS   = "http://www.loc.gov/mods/v3"
	nsDC     = "http://purl.org/dc/elements/1.1/"
	nsOAIDC  = "http://www.openarchives.org/OAI/2.0/oai_dc/"
	nsAtom   = "http://www.w3.org/2005/Atom"
	nsOpenSr = "http://a9.com/-/spec/opensearch/1.1/"
)

type manifestationXML struct {
	XMLName            xml.Name `xml:"manifestation"`
	ID                 int64    `xml:"id,attr"`
	OriginalTitle      string   `xml:"original_title"`
	TitleTranscription string   `xml:"title_transcription,omitempty"`
	Creators           []string `xml:"creators>creator,omitempty"`
	Publishers         []string `xml:"publishers>publisher,omitempty"`
	ISBN               string   `xml:"isbn,omitempty"`
	ISSN               string   `xml:"issn,omitempty"`
	CarrierType        string   `xml:"carrier_type,omitempty"`
	Language           string   `xml:"language,omitempty"`
	DateOfPublication  string   `xml:"date_of_publication,omitempty"`
	CreatedAt          string   `xml:"created_at"`
	UpdatedAt          string   `xml:"updated_at"`
}

type listingXML struct {
	XMLName        xml.Name           `xml:"manifestations"`
	Total          int                `xml:"total,attr"`
	Page           int                `xml:"page,attr"`
	PerPage        int                `xml:"per_page,attr"`
	Manifestations []manifestationXML `xml:"manifestation"`
}

func manifestationToXML(m *domain.Manifestation) manifestationXML {
	return manifestationXML{
		ID:                 m.ID,
		OriginalTitle:      m.OriginalTitle,
		TitleTranscription: m.TitleTranscription,
		Creators:           m.Creators,
		Publishers:         m.Publishers,
		ISBN:               m.ISBN,
		ISSN:               m.ISSN,
		CarrierType:        m.CarrierType,
		Language:           m.Language,
		DateOfPublication:  formatDate(m.DateOfPublication),
		CreatedAt:          m.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:          m.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func listingToXML(l *result.Listing) listingXML {
	out := listingXML{Total: l.Page.Total(), Page: l.Page.Number(), PerPage: l.Page.PerPage()}
	for _, m := range l.Records {
		out.Manifestations = append(out.Manifestations, manifestationToXML(m))
	}
	return out
}

// MODS

type modsTitleInfo struct {
	Title string `xml:"title"`
}

type modsRole struct {
	RoleTerm modsTerm `xml:"roleTerm"`
}

type modsTerm struct {
	Type      string `xml:"type,attr,omitempty"`
	Authority string `xml:"authority,attr,omitempty"`
	Value     string `xml:",chardata"`
}

type modsName struct {
	NamePart string   `xml:"namePart"`
	Role     modsRole `xml:"role"`
}

type modsOriginInfo struct {
	Publishers []string `xml:"publisher,omitempty"`
	DateIssued string   `xml:"dateIssued,omitempty"`
	Issuance   string   `xml:"issuance,omitempty"`
}

type modsIdentifier struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type modsLanguage struct {
	LanguageTerm modsTerm `xml:"languageTerm"`
}

type modsLocation struct {
	URL string `xml:"url"`
}

type modsRecordInfo struct {
	RecordIdentifier   string `xml:"recordIdentifier"`
	RecordCreationDate string `xml:"recordCreationDate"`
	RecordChangeDate   string `xml:"recordChangeDate"`
}

type modsXML struct {
	XMLName     xml.Name         `xml:"mods"`
	Xmlns       string           `xml:"xmlns,attr,omitempty"`
	Version     string           `xml:"version,attr,omitempty"`
	TitleInfo   modsTitleInfo    `xml:"titleInfo"`
	Names       []modsName       `xml:"name"`
	TypeOfRes   string           `xml:"typeOfResource,omitempty"`
	OriginInfo  modsOriginInfo   `xml:"originInfo"`
	Language    *modsLanguage    `xml:"language,omitempty"`
	Identifiers []modsIdentifier `xml:"identifier"`
	Location    *modsLocation    `xml:"location,omitempty"`
	RecordInfo  modsRecordInfo   `xml:"recordInfo"`
}

type modsCollectionXML struct {
	XMLName xml.Name  `xml:"modsCollection"`
	Xmlns   string    `xml:"xmlns,attr"`
	Records []modsXML `xml:"mods"`
}

func modsFor(m *domain.Manifestation) modsXML {
	out := modsXML{
		TitleInfo: modsTitleInfo{Title: m.OriginalTitle},
		TypeOfRes: "text",
		OriginInfo: modsOriginInfo{
			Publishers: m.Publishers,
			DateIssued: formatDate(m.DateOfPublication),
			Issuance:   "monographic",
		},
		RecordInfo: modsRecordInfo{
			RecordIdentifier:   strconv.FormatInt(m.ID, 10),
			RecordCreationDate: m.CreatedAt.UTC().Format(time.RFC3339),
			RecordChangeDate:   m.UpdatedAt.UTC().Format(time.RFC3339),
		},
	}
	if m.Periodical {
		out.OriginInfo.Issuance = "continuing"
	}
	for _, c := range m.Creators {
		out.Names = append(out.Names, modsName{
			NamePart: c,
			Role:     modsRole{RoleTerm: modsTerm{Type: "text", Authority: "marcrelator", Value: "creator"}},
		})
	}
	if m.Language != "" {
		out.Language = &modsLanguage{LanguageTerm: modsTerm{Type: "code", Authority: "iso639-2b", Value: m.Language}}
	}
	if m.ISBN != "" {
		out.Identifiers = append(out.Identifiers, modsIdentifier{Type: "isbn", Value: m.ISBN})
	}
	if m.ISSN != "" {
		out.Identifiers = append(out.Identifiers, modsIdentifier{Type: "issn", Value: m.ISSN})
	}
	if m.AccessAddress != "" {
		out.Location = &modsLocation{URL: m.AccessAddress}
	}
	return out
}

func modsRecord(m *domain.Manifestation) modsXML {
	out := modsFor(m)
	out.Xmlns = nsMODS
	out.Version = "3.4"
	return out
}

func modsCollection(records []*domain.Manifestation) modsCollectionXML {
	out := modsCollectionXML{Xmlns: nsMODS}
	for _, m := range records {
		out.Records = append(out.Records, modsFor(m))
	}
	return out
}

// Dublin Core

type dcXML struct {
	XMLName     xml.Name `xml:"oai_dc:dc"`
	XmlnsOAIDC  string   `xml:"xmlns:oai_dc,attr"`
	XmlnsDC     string   `xml:"xmlns:dc,attr"`
	Title       string   `xml:"dc:title"`
	Creators    []string `xml:"dc:creator"`
	Publishers  []string `xml:"dc:publisher"`
	Date        string   `xml:"dc:date,omitempty"`
	Type        string   `xml:"dc:type,omitempty"`
	Identifiers []string `xml:"dc:identifier"`
	Language    string   `xml:"dc:language,omitempty"`
}

func dcFor(m *domain.Manifestation) dcXML {
	out := dcXML{
		XmlnsOAIDC: nsOAIDC,
		XmlnsDC:    nsDC,
		Title:      m.OriginalTitle,
		Creators:   m.Creators,
		Publishers: m.Publishers,
		Date:       formatDate(m.DateOfPublication),
		Type:       m.CarrierType,
		Language:   m.Language,
	}
	if m.ISBN != "" {
		out.Identifiers = append(out.Identifiers, "urn:isbn:"+m.ISBN)
	}
	if m.ISSN != "" {
		out.Identifiers = append(out.Identifiers, "urn:issn:"+m.ISSN)
	}
	if m.AccessAddress != "" {
		out.Identifiers = append(out.Identifiers, m.AccessAddress)
	}
	return out
}

// RSS

type rssXML struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	XmlnsOS string     `xml:"xmlns:opensearch,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title        string    `xml:"title"`
	Link         string    `xml:"link"`
	Description  string    `xml:"description"`
	TotalResults int       `xml:"opensearch:totalResults"`
	StartIndex   int       `xml:"opensearch:startIndex"`
	ItemsPerPage int       `xml:"opensearch:itemsPerPage"`
	Items        []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	Author      string `xml:"author,omitempty"`
	Description string `xml:"description,omitempty"`
	PubDate     string `xml:"pubDate"`
}

func listingURL(r *http.Request, req *request.Request) string {
	v := url.Values{}
	if req.Query != "" {
		v.Set("query", req.Query)
	}
	u := requestURL(r, r.URL.Path)
	if len(v) > 0 {
		u += "?" + v.Encode()
	}
	return u
}

func feedTitle(l *result.Listing) string {
	switch {
	case l.Series != nil:
		return l.Series.OriginalTitle
	case l.Query != "":
		return "Search results for " + l.Query
	default:
		return "Catalog"
	}
}

func listingToRSS(r *http.Request, req *request.Request, l *result.Listing) rssXML {
	ch := rssChannel{
		Title:        feedTitle(l),
		Link:         listingURL(r, req),
		Description:  feedTitle(l),
		TotalResults: l.Page.Total(),
		StartIndex:   l.Page.Offset() + 1,
		ItemsPerPage: l.Page.PerPage(),
	}
	for _, m := range l.Records {
		link := requestURL(r, manifestationPath(m.ID))
		item := rssItem{
			Title:   m.OriginalTitle,
			Link:    link,
			GUID:    link,
			PubDate: m.CreatedAt.UTC().Format(time.RFC1123Z),
		}
		if len(m.Creators) > 0 {
			item.Author = m.Creators[0]
		}
		if len(m.Publishers) > 0 {
			item.Description = m.Publishers[0]
		}
		ch.Items = append(ch.Items, item)
	}
	return rssXML{Version: "2.0", XmlnsOS: nsOpenSr, Channel: ch}
}

// Atom

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr,omitempty"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomEntry struct {
	Title   string       `xml:"title"`
	ID      string       `xml:"id"`
	Link    atomLink     `xml:"link"`
	Updated string       `xml:"updated"`
	Authors []atomAuthor `xml:"author"`
}

type atomXML struct {
	XMLName      xml.Name    `xml:"feed"`
	Xmlns        string      `xml:"xmlns,attr"`
	XmlnsOS      string      `xml:"xmlns:opensearch,attr"`
	Title        string      `xml:"title"`
	ID           string      `xml:"id"`
	Link         atomLink    `xml:"link"`
	Updated      string      `xml:"updated"`
	TotalResults int         `xml:"opensearch:totalResults"`
	StartIndex   int         `xml:"opensearch:startIndex"`
	ItemsPerPage int         `xml:"opensearch:itemsPerPage"`
	Entries      []atomEntry `xml:"entry"`
}

func listingToAtom(r *http.Request, req *request.Request, l *result.Listing) atomXML {
	self := listingURL(r, req)
	updated := time.Time{}
	out := atomXML{
		Xmlns:        nsAtom,
		XmlnsOS:      nsOpenSr,
		Title:        feedTitle(l),
		ID:           self,
		Link:         atomLink{Href: self, Rel: "self"},
		TotalResults: l.Page.Total(),
		StartIndex:   l.Page.Offset() + 1,
		ItemsPerPage: l.Page.PerPage(),
	}
	for _, m := range l.Records {
		link := requestURL(r, manifestationPath(m.ID))
		e := atomEntry{
			Title:   m.OriginalTitle,
			ID:      link,
			Link:    atomLink{Href: link},
			Updated: m.UpdatedAt.UTC().Format(time.RFC3339),
		}
		for _, c := range m.Creators {
			e.Authors = append(e.Authors, atomAuthor{Name: c})
		}
		if m.UpdatedAt.After(updated) {
			updated = m.UpdatedAt
		}
		out.Entries = append(out.Entries, e)
	}
	if updated.IsZero() {
		updated = time.Now()
	}
	out.Updated = updated.UTC().Format(time.RFC3339)
	return out
}
