package domain

import "slices"

// MetadataRow describes one extracted image.
type MetadataRow struct {
	Label int
	Lat   float64
	Lon   float64
	Time  []int
}

// Equal compares two rows field by field.
func (r MetadataRow) Equal(o MetadataRow) bool {
	return r.Label == o.Label && r.Lat == o.Lat && r.Lon == o.Lon && slices.Equal(r.Time, o.Time)
}

// Metadata is the table aligned row for row with an extracted array.
type Metadata struct {
	Resolution TimeResolution
	Rows       []MetadataRow
}

// Columns returns the header of the metadata table.
func (m Metadata) Columns() []string {
	return append([]string{"label", FieldLat, FieldLon}, TimeKeys(m.Resolution)...)
}

// Len is the number of rows.
func (m Metadata) Len() int { return len(m.Rows) }

// Take copies the given rows, in order.
func (m Metadata) Take(idx []int) Metadata {
	out := Metadata{Resolution: m.Resolution, Rows: make([]MetadataRow, len(idx))}
	for i, j := range idx {
		out.Rows[i] = m.Rows[j]
	}
	return out
}

// Append concatenates the rows of o after the rows of m.
func (m Metadata) Append(o Metadata) Metadata {
	return Metadata{Resolution: m.Resolution, Rows: append(slices.Clone(m.Rows), o.Rows...)}
}

// Equal compares the tables row by row.
func (m Metadata) Equal(o Metadata) bool {
	return m.Resolution == o.Resolution && slices.EqualFunc(m.Rows, o.Rows, MetadataRow.Equal)
}

// RowFor builds the metadata row of an event, keeping time fields down to r.
func RowFor(e Event, r TimeResolution) MetadataRow {
	t := make([]int, int(r)+1)
	copy(t, e.Time[:int(r)+1])
	return MetadataRow{Label: e.LabelNum, Lat: e.Lat, Lon: e.Lon, Time: t}
}
