package sru

import (
	"fmt"
	"strconv"
)

// DiagnosticPrefix is the namespace of SRU diagnostic URIs.
const DiagnosticPrefix = "info:srw/diagnostic/1/"

// Diagnostic codes.
const (
	DiagGeneral                = 1
	DiagUnsupportedOperation   = 4
	DiagUnsupportedParamValue  = 6
	DiagMissingParam           = 7
	DiagQuerySyntax            = 10
	DiagUnsupportedIndex       = 16
	DiagUnsupportedRelation    = 19
	DiagUnsupportedRelationMod = 20
	DiagEmptyTerm              = 27
	DiagInvalidTermFormat      = 36
	DiagUnsupportedBoolean     = 37
	DiagFirstRecordOutOfRange  = 61
	DiagUnknownRecordSchema    = 66
	DiagUnsupportedSortIndex   = 81
)

var diagnosticMessages = map[int]string{
	DiagGeneral:                "General system error",
	DiagUnsupportedOperation:   "Unsupported operation",
	DiagUnsupportedParamValue:  "Unsupported parameter value",
	DiagMissingParam:           "Mandatory parameter not supplied",
	DiagQuerySyntax:            "Query syntax error",
	DiagUnsupportedIndex:       "Unsupported index",
	DiagUnsupportedRelation:    "Unsupported relation",
	DiagUnsupportedRelationMod: "Unsupported relation modifier",
	DiagEmptyTerm:              "Empty term unsupported",
	DiagInvalidTermFormat:      "Term in invalid format for index or relation",
	DiagUnsupportedBoolean:     "Unsupported boolean operator",
	DiagFirstRecordOutOfRange:  "First record position out of range",
	DiagUnknownRecordSchema:    "Unknown schema for retrieval",
	DiagUnsupportedSortIndex:   "Unsupported sort type",
}

// Diagnostic is an SRU diagnostic rendered in the response body.
type Diagnostic struct {
	Code    int
	Details string
	Message string
}

// NewDiagnostic creates a diagnostic with the standard message for code.
func NewDiagnostic(code int, details string) *Diagnostic {
	msg, ok := diagnosticMessages[code]
	if !ok {
		msg = "Unknown diagnostic"
	}
	return &Diagnostic{Code: code, Details: details, Message: msg}
}

// URI returns the diagnostic identifier.
func (d *Diagnostic) URI() string {
	return DiagnosticPrefix + strconv.Itoa(d.Code)
}

func (d *Diagnostic) Error() string {
	if d.Details == "" {
		return fmt.Sprintf("%s: %s", d.URI(), d.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", d.URI(), d.Message, d.Details)
}
