package mode

// Mode selects how a listing is scoped.
type Mode string

// Listing mode constants.
const (
	// Normal is the default patron-facing listing.
	Normal Mode = ""
	// Add is staff curation: a librarian looks for records to attach to another record.
	// It bypasses all visibility and scoping constraints.
	Add Mode = "add"
	// Recent limits results to records created within the last month.
	Recent Mode = "recent"
)

// Parse maps a raw mode parameter to a Mode. Unknown values are treated as Normal.
func Parse(s string) Mode {
	switch Mode(s) {
	case Add, Recent:
		return Mode(s)
	default:
		return Normal
	}
}

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Normal || m == Add || m == Recent
}

// BypassesVisibility reports whether the mode skips role, periodical and scope constraints.
func (m Mode) BypassesVisibility() bool { return m == Add }
