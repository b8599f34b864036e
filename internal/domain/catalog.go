package domain

import "time"

// Manifestation is a catalog record.
type Manifestation struct {
	ID                 int64
	OriginalTitle      string
	TitleTranscription string
	Creators           []string
	Publishers         []string
	ISBN               string
	ISSN               string
	CarrierType        string
	Language           string
	DateOfPublication  *time.Time
	RequiredRoleID     int
	Periodical         bool
	PeriodicalMaster   bool
	SeriesStatementID  int64
	AccessAddress      string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SeriesStatement groups manifestations. Periodical series hold issues plus one master record.
type SeriesStatement struct {
	ID            int64
	OriginalTitle string
	Periodical    bool
}

// Patron is an agent (person or corporate body) linked to manifestations.
type Patron struct {
	ID       int64
	FullName string
}

// Subject is a controlled subject heading.
type Subject struct {
	ID   int64
	Term string
}

// Tag is a bookmark tag with its usage count.
type Tag struct {
	Name  string
	Count int
}

// TimeSpan is an inclusive time interval.
type TimeSpan struct {
	From  time.Time
	Until time.Time
}

// KeyPrefix namespaces every key this service writes to the shared RESP store.
const KeyPrefix = "libcat:"
