package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Event is one labeled occurrence to extract a window around. Time holds the
// fields from year down to Resolution; finer fields are zero.
type Event struct {
	Label      string
	LabelNum   int
	Lat        float64
	Lon        float64
	LonFormat  CoordinateFormat
	Time       [NumTimeFields]int
	Resolution TimeResolution
}

// Period truncates the event time at granularity g.
func (e Event) Period(g TimeResolution) Period {
	p := make(Period, int(g)+1)
	copy(p, e.Time[:int(g)+1])
	return p
}

// TimeFields returns the time fields down to the event resolution.
func (e Event) TimeFields() []int {
	out := make([]int, int(e.Resolution)+1)
	copy(out, e.Time[:int(e.Resolution)+1])
	return out
}

// TemplateValues returns the values available to date and path templates,
// including the zero-padded month2d, day2d and hour2d fields.
func (e Event) TemplateValues() map[string]string {
	values := templateValues(e.Time[:], e.Resolution)
	values[FieldLat] = strconv.FormatFloat(e.Lat, 'f', -1, 64)
	values[FieldLon] = strconv.FormatFloat(e.Lon, 'f', -1, 64)
	return values
}

func (e Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s@(%g,%g)", e.Label, e.Lat, e.Lon)
	for i, v := range e.TimeFields() {
		if i == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteByte('-')
		}
		b.WriteString(strconv.Itoa(v))
	}
	return b.String()
}

// MetadataBlock holds the events of one label within one period, in table
// order. Blocks are built once by the partitioner and only read afterwards.
type MetadataBlock struct {
	Label  string
	Period Period
	Events []Event
}

// WorkUnit is one period with the blocks of every label that has events in
// it, sorted by label id.
type WorkUnit struct {
	Period Period
	Blocks []MetadataBlock
}

// EventCount sums the events of all blocks.
func (u WorkUnit) EventCount() int {
	n := 0
	for _, b := range u.Blocks {
		n += len(b.Events)
	}
	return n
}

// Table is a raw tabular label source: a header and string cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// ColumnIndex returns the position of name in the header, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}
