package domain

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// NameSeparator joins the parts of every generated name.
const NameSeparator = "_"

// Period is a time tuple truncated at the storage granularity of a dataset,
// e.g. (2000, 10) for datasets stored one file per month.
type Period []int

// Resolution is the finest field present in the period.
func (p Period) Resolution() TimeResolution {
	return TimeResolution(len(p) - 1)
}

// Compare orders periods lexicographically.
func (p Period) Compare(o Period) int {
	return slices.Compare(p, o)
}

// String joins the fields with NameSeparator. It is the canonical key used
// in maps and file names.
func (p Period) String() string {
	parts := make([]string, len(p))
	for i, v := range p {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, NameSeparator)
}

// Values returns the template values of the period (year, month, month2d...).
func (p Period) Values() map[string]string {
	var fields [NumTimeFields]int
	copy(fields[:], p)
	return templateValues(fields[:], p.Resolution())
}

// ParsePeriod reverses Period.String.
func ParsePeriod(s string) (Period, error) {
	parts := strings.Split(s, NameSeparator)
	if len(parts) > NumTimeFields {
		return nil, fmt.Errorf("period %q has too many fields", s)
	}
	p := make(Period, len(parts))
	for i, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("parse period %q: %w", s, err)
		}
		p[i] = v
	}
	return p, nil
}

func templateValues(fields []int, r TimeResolution) map[string]string {
	values := make(map[string]string, NumTimeFields+3)
	for i := 0; i <= int(r) && i < len(fields); i++ {
		values[timeResolutionNames[i]] = strconv.Itoa(fields[i])
	}
	if r >= Month {
		values[Month2D] = fmt.Sprintf("%02d", fields[Month])
	}
	if r >= Day {
		values[Day2D] = fmt.Sprintf("%02d", fields[Day])
	}
	if r >= Hour {
		values[Hour2D] = fmt.Sprintf("%02d", fields[Hour])
	}
	return values
}
