package domain

import "strconv"

// Status is the liveness state of a registered service.
//
// Values are stable wire constants: they appear both in stored payloads and
// in index key segments, so they must never be renumbered.
type Status int32

const (
	// StatusUp means the service recently proved liveness and may be
	// routed to.
	StatusUp Status = 0

	// StatusDown means the service was deliberately marked unavailable,
	// usually for maintenance.
	StatusDown Status = 1
)

// statusNames maps each status to its canonical lowercase name.
var statusNames = map[Status]string{
	StatusUp:   "up",
	StatusDown: "down",
}

// statusValues is the inverse of statusNames.
var statusValues = map[string]Status{
	"up":   StatusUp,
	"down": StatusDown,
}

// AllStatuses lists every defined status, in wire-value order.
// Deletion sweeps iterate this to clear markers defensively.
func AllStatuses() []Status {
	return []Status{StatusUp, StatusDown}
}

// StatusName returns the canonical name of s, with ok=false when s is not a
// defined status.
func StatusName(s Status) (string, bool) {
	n, ok := statusNames[s]
	return n, ok
}

// StatusValue returns the status named n (case-sensitive, lowercase), with
// ok=false when the name is unknown.
func StatusValue(n string) (Status, bool) {
	s, ok := statusValues[n]
	return s, ok
}

// Valid reports whether s is a defined status value.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// String implements fmt.Stringer. Unknown values render as their number so
// bad data stays visible in logs.
func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return strconv.FormatInt(int64(s), 10)
}
