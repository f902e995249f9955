package commitment

// Status is a commitment's lifecycle state. The wire form is the small
// integer value below; this ordering is part of the external contract
// (persisted rows, CSV exports) and must not change.
type Status int

const (
	StatusInProgress Status = iota
	StatusComplete
	StatusExpired
	StatusDiscontinued
)

// statusTable is the single mapping consulted by both persistence and
// display; do not scatter switch statements over statuses.
var statusTable = [...]struct {
	name  string
	label string
}{
	StatusInProgress:   {"IN_PROGRESS", "In Progress"},
	StatusComplete:     {"COMPLETE", "Complete"},
	StatusExpired:      {"EXPIRED", "Past Due"},
	StatusDiscontinued: {"DISCONTINUED", "Discontinued"},
}

var AllStatuses = []Status{StatusInProgress, StatusComplete, StatusExpired, StatusDiscontinued}

func (s Status) Valid() bool {
	return s >= StatusInProgress && s <= StatusDiscontinued
}

// String returns the symbolic name, eg "IN_PROGRESS".
func (s Status) String() string {
	if !s.Valid() {
		return "UNKNOWN"
	}
	return statusTable[s].name
}

// Label returns the fixed English display string, eg "Past Due".
func (s Status) Label() string {
	if !s.Valid() {
		return "Unknown"
	}
	return statusTable[s].label
}

// ParseStatus maps a symbolic name, eg "IN_PROGRESS", back to its Status.
func ParseStatus(name string) (Status, bool) {
	for _, s := range AllStatuses {
		if statusTable[s].name == name {
			return s, true
		}
	}
	return 0, false
}

// Closed reports whether the commitment was closed by its owner
// (reminders are pruned on close; expiration is not a close).
func (s Status) Closed() bool {
	return s == StatusComplete || s == StatusDiscontinued
}
