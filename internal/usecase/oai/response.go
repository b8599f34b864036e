package oai

import (
	"time"

	"github.com/kailas-cloud/libcat/internal/domain"
)

// Verb is an OAI-PMH request verb.
type Verb string

// Supported verbs.
const (
	Identify            Verb = "Identify"
	ListMetadataFormats Verb = "ListMetadataFormats"
	ListSets            Verb = "ListSets"
	ListIdentifiers     Verb = "ListIdentifiers"
	ListRecords         Verb = "ListRecords"
	GetRecord           Verb = "GetRecord"
)

func (v Verb) valid() bool {
	switch v {
	case Identify, ListMetadataFormats, ListSets, ListIdentifiers, ListRecords, GetRecord:
		return true
	default:
		return false
	}
}

// Protocol error codes.
const (
	BadArgument             = "badArgument"
	BadResumptionToken      = "badResumptionToken"
	BadVerb                 = "badVerb"
	CannotDisseminateFormat = "cannotDisseminateFormat"
	IDDoesNotExist          = "idDoesNotExist"
	NoRecordsMatch          = "noRecordsMatch"
)

// State is the harvesting state a response leaves the client in.
type State int

// Harvest states.
const (
	Initial State = iota
	InProgress
	Exhausted
	Failed
)

func (s State) String() string {
	switch s {
	case Initial:
		return "initial"
	case InProgress:
		return "in_progress"
	case Exhausted:
		return "exhausted"
	case Failed:
		return "error"
	default:
		return "unknown"
	}
}

// Params are the raw request arguments.
type Params struct {
	Verb            string
	MetadataPrefix  string
	From            string
	Until           string
	Set             string
	Identifier      string
	ResumptionToken string
}

// Error is a protocol condition rendered inside the envelope.
type Error struct {
	Code    string
	Message string
}

// MetadataFormat describes a disseminated metadata format.
type MetadataFormat struct {
	Prefix    string
	Schema    string
	Namespace string
}

// Supported metadata formats.
var (
	FormatDC = MetadataFormat{
		Prefix:    "oai_dc",
		Schema:    "http://www.openarchives.org/OAI/2.0/oai_dc.xsd",
		Namespace: "http://www.openarchives.org/OAI/2.0/oai_dc/",
	}
	FormatMODS = MetadataFormat{
		Prefix:    "mods",
		Schema:    "http://www.loc.gov/standards/mods/v3/mods-3-7.xsd",
		Namespace: "http://www.loc.gov/mods/v3",
	}
	formats = []MetadataFormat{FormatDC, FormatMODS}
)

func supportedFormat(prefix string) bool {
	for _, f := range formats {
		if f.Prefix == prefix {
			return true
		}
	}
	return false
}

// Repository is the Identify payload.
type Repository struct {
	Name              string
	BaseURL           string
	ProtocolVersion   string
	AdminEmail        string
	EarliestDatestamp time.Time
	DeletedRecord     string
	Granularity       string
}

// Set is a series statement published as an OAI set.
type Set struct {
	Spec string
	Name string
}

// Resumption is the resumptionToken element. An empty Value closes the list.
type Resumption struct {
	Value            string
	Cursor           int
	CompleteListSize int
}

// Response is a fully evaluated OAI-PMH request.
type Response struct {
	Verb           Verb
	Params         Params
	Date           time.Time
	State          State
	Errors         []Error
	MetadataPrefix string

	Repository *Repository
	Formats    []MetadataFormat
	Sets       []Set
	Records    []*domain.Manifestation
	Resumption *Resumption
}

// HasErrors reports whether any protocol error was raised.
func (r *Response) HasErrors() bool { return len(r.Errors) > 0 }

// HasError reports whether the given protocol error was raised.
func (r *Response) HasError(code string) bool {
	for _, e := range r.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

func (r *Response) fail(code, msg string) {
	r.Errors = append(r.Errors, Error{Code: code, Message: msg})
	r.State = Failed
}
