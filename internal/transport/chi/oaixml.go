package chi

import (
	"encoding/xml"
	"strconv"
	"time"

	"github.com/kailas-cloud/libcat/internal/domain"
	"github.com/kailas-cloud/libcat/internal/usecase/oai"
	"github.com/kailas-cloud/libcat/internal/usecase/sru"
)

const (
	nsOAI         = "http://www.openarchives.org/OAI/2.0/"
	nsXSI         = "http://www.w3.org/2001/XMLSchema-instance"
	oaiSchemaLoc  = "http://www.openarchives.org/OAI/2.0/ http://www.openarchives.org/OAI/2.0/OAI-PMH.xsd"
	nsSRU         = "http://www.loc.gov/zing/srw/"
	nsDiagnostic  = "http://www.loc.gov/zing/srw/diagnostic/"
	nsZeerex      = "http://explain.z3950.org/dtd/2.0/"
	oaiDatestamp  = "2006-01-02T15:04:05Z"
	sruPackingXML = "xml"
)

type oaiRequestXML struct {
	Verb            string `xml:"verb,attr,omitempty"`
	MetadataPrefix  string `xml:"metadataPrefix,attr,omitempty"`
	From            string `xml:"from,attr,omitempty"`
	Until           string `xml:"until,attr,omitempty"`
	Set             string `xml:"set,attr,omitempty"`
	Identifier      string `xml:"identifier,attr,omitempty"`
	ResumptionToken string `xml:"resumptionToken,attr,omitempty"`
	URL             string `xml:",chardata"`
}

type oaiErrorXML struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}

type oaiHeaderXML struct {
	Identifier string   `xml:"identifier"`
	Datestamp  string   `xml:"datestamp"`
	SetSpecs   []string `xml:"setSpec"`
}

type oaiMetadataXML struct {
	DC   *dcXML   `xml:",omitempty"`
	MODS *modsXML `xml:",omitempty"`
}

type oaiRecordXML struct {
	Header   oaiHeaderXML   `xml:"header"`
	Metadata oaiMetadataXML `xml:"metadata"`
}

type oaiTokenXML struct {
	CompleteListSize int    `xml:"completeListSize,attr"`
	Cursor           int    `xml:"cursor,attr"`
	Value            string `xml:",chardata"`
}

type oaiIdentifyXML struct {
	RepositoryName    string `xml:"repositoryName"`
	BaseURL           string `xml:"baseURL"`
	ProtocolVersion   string `xml:"protocolVersion"`
	AdminEmail        string `xml:"adminEmail,omitempty"`
	EarliestDatestamp string `xml:"earliestDatestamp"`
	DeletedRecord     string `xml:"deletedRecord"`
	Granularity       string `xml:"granularity"`
}

type oaiFormatXML struct {
	MetadataPrefix    string `xml:"metadataPrefix"`
	Schema            string `xml:"schema"`
	MetadataNamespace string `xml:"metadataNamespace"`
}

type oaiSetXML struct {
	Spec string `xml:"setSpec"`
	Name string `xml:"setName"`
}

type oaiListXML struct {
	Headers []oaiHeaderXML `xml:"header,omitempty"`
	Records []oaiRecordXML `xml:"record,omitempty"`
	Token   *oaiTokenXML   `xml:"resumptionToken,omitempty"`
}

type oaiSetsXML struct {
	Sets []oaiSetXML `xml:"set"`
}

type oaiFormatsXML struct {
	Formats []oaiFormatXML `xml:"metadataFormat"`
}

type oaiGetRecordXML struct {
	Record oaiRecordXML `xml:"record"`
}

type oaiPMHXML struct {
	XMLName             xml.Name         `xml:"OAI-PMH"`
	Xmlns               string           `xml:"xmlns,attr"`
	XmlnsXSI            string           `xml:"xmlns:xsi,attr"`
	SchemaLocation      string           `xml:"xsi:schemaLocation,attr"`
	ResponseDate        string           `xml:"responseDate"`
	Request             oaiRequestXML    `xml:"request"`
	Errors              []oaiErrorXML    `xml:"error,omitempty"`
	Identify            *oaiIdentifyXML  `xml:"Identify,omitempty"`
	ListMetadataFormats *oaiFormatsXML   `xml:"ListMetadataFormats,omitempty"`
	ListSets            *oaiSetsXML      `xml:"ListSets,omitempty"`
	ListIdentifiers     *oaiListXML      `xml:"ListIdentifiers,omitempty"`
	ListRecords         *oaiListXML      `xml:"ListRecords,omitempty"`
	GetRecord           *oaiGetRecordXML `xml:"GetRecord,omitempty"`
}

func oaiHeader(m *domain.Manifestation, identifier func(*domain.Manifestation) string) oaiHeaderXML {
	h := oaiHeaderXML{
		Identifier: identifier(m),
		Datestamp:  formatDatestamp(m.UpdatedAt),
	}
	if m.SeriesStatementID != 0 {
		h.SetSpecs = []string{strconv.FormatInt(m.SeriesStatementID, 10)}
	}
	return h
}

func oaiRecord(m *domain.Manifestation, prefix string, identifier func(*domain.Manifestation) string) oaiRecordXML {
	rec := oaiRecordXML{Header: oaiHeader(m, identifier)}
	if prefix == oai.FormatMODS.Prefix {
		mods := modsRecord(m)
		rec.Metadata.MODS = &mods
	} else {
		dc := dcFor(m)
		rec.Metadata.DC = &dc
	}
	return rec
}

// oaiToXML renders the OAI-PMH envelope. Protocol errors are rendered next to whatever
// payload the engine still produced.
func oaiToXML(resp *oai.Response, identifier func(*domain.Manifestation) string, baseURL string) oaiPMHXML {
	out := oaiPMHXML{
		Xmlns:          nsOAI,
		XmlnsXSI:       nsXSI,
		SchemaLocation: oaiSchemaLoc,
		ResponseDate:   formatDatestamp(resp.Date),
		Request:        oaiRequestXML{URL: baseURL},
	}
	// Arguments are echoed only for a legal verb.
	if !resp.HasError(oai.BadVerb) {
		p := resp.Params
		out.Request = oaiRequestXML{
			Verb:            p.Verb,
			MetadataPrefix:  p.MetadataPrefix,
			From:            p.From,
			Until:           p.Until,
			Set:             p.Set,
			Identifier:      p.Identifier,
			ResumptionToken: p.ResumptionToken,
			URL:             baseURL,
		}
	}
	for _, e := range resp.Errors {
		out.Errors = append(out.Errors, oaiErrorXML{Code: e.Code, Message: e.Message})
	}

	switch resp.Verb {
	case oai.Identify:
		if repo := resp.Repository; repo != nil {
			out.Identify = &oaiIdentifyXML{
				RepositoryName:    repo.Name,
				BaseURL:           repo.BaseURL,
				ProtocolVersion:   repo.ProtocolVersion,
				AdminEmail:        repo.AdminEmail,
				EarliestDatestamp: formatDatestamp(repo.EarliestDatestamp),
				DeletedRecord:     repo.DeletedRecord,
				Granularity:       repo.Granularity,
			}
		}
	case oai.ListMetadataFormats:
		if len(resp.Formats) > 0 {
			out.ListMetadataFormats = &oaiFormatsXML{}
			for _, f := range resp.Formats {
				out.ListMetadataFormats.Formats = append(out.ListMetadataFormats.Formats, oaiFormatXML{
					MetadataPrefix:    f.Prefix,
					Schema:            f.Schema,
					MetadataNamespace: f.Namespace,
				})
			}
		}
	case oai.ListSets:
		if resp.Sets != nil {
			out.ListSets = &oaiSetsXML{}
			for _, s := range resp.Sets {
				out.ListSets.Sets = append(out.ListSets.Sets, oaiSetXML{Spec: s.Spec, Name: s.Name})
			}
		}
	case oai.ListIdentifiers:
		if len(resp.Records) > 0 {
			list := &oaiListXML{Token: oaiToken(resp.Resumption)}
			for _, m := range resp.Records {
				list.Headers = append(list.Headers, oaiHeader(m, identifier))
			}
			out.ListIdentifiers = list
		}
	case oai.ListRecords:
		if len(resp.Records) > 0 {
			list := &oaiListXML{Token: oaiToken(resp.Resumption)}
			for _, m := range resp.Records {
				list.Records = append(list.Records, oaiRecord(m, resp.MetadataPrefix, identifier))
			}
			out.ListRecords = list
		}
	case oai.GetRecord:
		if len(resp.Records) > 0 {
			out.GetRecord = &oaiGetRecordXML{Record: oaiRecord(resp.Records[0], resp.MetadataPrefix, identifier)}
		}
	}
	return out
}

func oaiToken(r *oai.Resumption) *oaiTokenXML {
	if r == nil {
		return nil
	}
	return &oaiTokenXML{CompleteListSize: r.CompleteListSize, Cursor: r.Cursor, Value: r.Value}
}

// SRU

type sruDiagnosticXML struct {
	Xmlns   string `xml:"xmlns,attr"`
	URI     string `xml:"uri"`
	Details string `xml:"details,omitempty"`
	Message string `xml:"message"`
}

type sruDiagnosticsXML struct {
	Diagnostics []sruDiagnosticXML `xml:"diagnostic"`
}

type sruRecordDataXML struct {
	DC   *dcXML   `xml:",omitempty"`
	MODS *modsXML `xml:",omitempty"`
}

type sruRecordXML struct {
	RecordSchema   string           `xml:"recordSchema"`
	RecordPacking  string           `xml:"recordPacking"`
	RecordData     sruRecordDataXML `xml:"recordData"`
	RecordPosition int              `xml:"recordPosition"`
}

type sruRecordsXML struct {
	Records []sruRecordXML `xml:"record"`
}

type sruEchoXML struct {
	Version        string `xml:"version"`
	Query          string `xml:"query,omitempty"`
	StartRecord    string `xml:"startRecord,omitempty"`
	MaximumRecords string `xml:"maximumRecords,omitempty"`
	RecordSchema   string `xml:"recordSchema,omitempty"`
	SortKeys       string `xml:"sortKeys,omitempty"`
}

type sruSearchXML struct {
	XMLName            xml.Name           `xml:"searchRetrieveResponse"`
	Xmlns              string             `xml:"xmlns,attr"`
	Version            string             `xml:"version"`
	NumberOfRecords    int                `xml:"numberOfRecords"`
	Records            *sruRecordsXML     `xml:"records,omitempty"`
	NextRecordPosition int                `xml:"nextRecordPosition,omitempty"`
	Echoed             sruEchoXML         `xml:"echoedSearchRetrieveRequest"`
	Diagnostics        *sruDiagnosticsXML `xml:"diagnostics,omitempty"`
}

type zrIndexXML struct {
	Title string `xml:"title"`
	Name  string `xml:"map>name"`
}

type zrSchemaXML struct {
	Identifier string `xml:"identifier,attr"`
	Name       string `xml:"name,attr"`
	Title      string `xml:"title"`
}

type zrDefaultXML struct {
	Type  string `xml:"type,attr"`
	Value int    `xml:",chardata"`
}

type zrExplainXML struct {
	XMLName  xml.Name       `xml:"explain"`
	Xmlns    string         `xml:"xmlns,attr"`
	Host     string         `xml:"serverInfo>host"`
	Database string         `xml:"serverInfo>database"`
	Title    string         `xml:"databaseInfo>title"`
	Indexes  []zrIndexXML   `xml:"indexInfo>index"`
	Schemas  []zrSchemaXML  `xml:"schemaInfo>schema"`
	Defaults []zrDefaultXML `xml:"configInfo>default"`
}

type sruExplainRecordXML struct {
	RecordSchema  string       `xml:"recordSchema"`
	RecordPacking string       `xml:"recordPacking"`
	Explain       zrExplainXML `xml:"recordData>explain"`
}

type sruExplainXML struct {
	XMLName xml.Name            `xml:"explainResponse"`
	Xmlns   string              `xml:"xmlns,attr"`
	Version string              `xml:"version"`
	Record  sruExplainRecordXML `xml:"record"`
}

// sruToXML renders a searchRetrieve or explain response.
func sruToXML(resp *sru.Response) any {
	if resp.Explain != nil {
		ex := resp.Explain
		z := zrExplainXML{
			Xmlns:    nsZeerex,
			Host:     ex.BaseURL,
			Database: "manifestations",
			Title:    ex.Title,
			Defaults: []zrDefaultXML{{Type: "numberOfRecords", Value: ex.MaximumRecords}},
		}
		for _, name := range ex.Indexes {
			z.Indexes = append(z.Indexes, zrIndexXML{Title: name, Name: name})
		}
		for _, s := range ex.Schemas {
			z.Schemas = append(z.Schemas, zrSchemaXML{Identifier: s.Identifier, Name: s.Name, Title: s.Title})
		}
		return sruExplainXML{
			Xmlns:   nsSRU,
			Version: resp.Version,
			Record: sruExplainRecordXML{
				RecordSchema:  "http://explain.z3950.org/dtd/2.0/",
				RecordPacking: sruPackingXML,
				Explain:       z,
			},
		}
	}

	p := resp.Params
	out := sruSearchXML{
		Xmlns:              nsSRU,
		Version:            resp.Version,
		NumberOfRecords:    resp.NumberOfRecords,
		NextRecordPosition: resp.NextRecordPosition,
		Echoed: sruEchoXML{
			Version:        resp.Version,
			Query:          p.Query,
			StartRecord:    p.StartRecord,
			MaximumRecords: p.MaximumRecords,
			RecordSchema:   p.RecordSchema,
			SortKeys:       p.SortKeys,
		},
	}
	if len(resp.Records) > 0 {
		out.Records = &sruRecordsXML{}
		for _, rec := range resp.Records {
			x := sruRecordXML{
				RecordSchema:   resp.Schema.Identifier,
				RecordPacking:  sruPackingXML,
				RecordPosition: rec.Position,
			}
			if resp.Schema.Name == sru.SchemaMODS.Name {
				mods := modsRecord(rec.Manifestation)
				x.RecordData.MODS = &mods
			} else {
				dc := dcFor(rec.Manifestation)
				x.RecordData.DC = &dc
			}
			out.Records.Records = append(out.Records.Records, x)
		}
	}
	if len(resp.Diagnostics) > 0 {
		out.Diagnostics = &sruDiagnosticsXML{}
		for _, d := range resp.Diagnostics {
			out.Diagnostics.Diagnostics = append(out.Diagnostics.Diagnostics, sruDiagnosticXML{
				Xmlns:   nsDiagnostic,
				URI:     d.URI(),
				Details: d.Details,
				Message: d.Message,
			})
		}
	}
	return out
}

func formatDatestamp(t time.Time) string { return t.UTC().Format(oaiDatestamp) }
