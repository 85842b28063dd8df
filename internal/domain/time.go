package domain

import (
	"fmt"
	"strings"
)

// TimeResolution indexes the time-field hierarchy, coarsest first.
type TimeResolution int

const (
	Year TimeResolution = iota
	Month
	Day
	Hour
	Minute
	Second
	Millisecond
	Microsecond
)

// NumTimeFields is the depth of the time-field hierarchy.
const NumTimeFields = int(Microsecond) + 1

var timeResolutionNames = [NumTimeFields]string{
	"year", "month", "day", "hour", "minute", "second", "millisecond", "microsecond",
}

func (r TimeResolution) String() string {
	if r < Year || r > Microsecond {
		return fmt.Sprintf("TimeResolution(%d)", int(r))
	}
	return timeResolutionNames[r]
}

// Valid reports whether r names a field of the hierarchy.
func (r TimeResolution) Valid() bool {
	return r >= Year && r <= Microsecond
}

// ParseTimeResolution maps a field name such as "month" to its resolution.
func ParseTimeResolution(s string) (TimeResolution, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range timeResolutionNames {
		if n == name {
			return TimeResolution(i), nil
		}
	}
	return 0, &ConfigurationError{Field: "time_resolution", Reason: fmt.Sprintf("unknown time resolution %q", s)}
}

// TimeKeys returns the field names from year down to r inclusive.
func TimeKeys(r TimeResolution) []string {
	if !r.Valid() {
		return nil
	}
	out := make([]string, int(r)+1)
	copy(out, timeResolutionNames[:int(r)+1])
	return out
}

// Padded two-digit template keys derived from the matching time fields.
const (
	Month2D = "month2d"
	Day2D   = "day2d"
	Hour2D  = "hour2d"
)

// Canonical coordinate field names.
const (
	FieldLat = "lat"
	FieldLon = "lon"
)
