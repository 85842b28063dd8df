package domain

import "fmt"

// DBFormat names the on-disk format of a label event table.
type DBFormat string

const DBFormatCSV DBFormat = "csv"

// ParseDBFormat validates a label table format.
func ParseDBFormat(s string) (DBFormat, error) {
	if DBFormat(s) == DBFormatCSV {
		return DBFormatCSV, nil
	}
	return "", &ConfigurationError{Field: "db_format", Reason: fmt.Sprintf("unknown label database format %q", s)}
}

// CSVOptions tune the reading of a CSV label table.
type CSVOptions struct {
	Separator  rune
	HeaderLine int
	NASymbol   string
}

// Label describes one class of events and where its event table lives.
type Label struct {
	ID             string
	NumID          int
	DBPath         string
	DBFormat       DBFormat
	CSV            CSVOptions
	FieldMapping   map[string]string // canonical field name -> table column
	TimeResolution TimeResolution
	LatFormat      CoordinateFormat
	LonFormat      CoordinateFormat
}

// RequiredFields lists the canonical fields a table must provide to be
// grouped at granularity g.
func (l Label) RequiredFields(g TimeResolution) []string {
	finest := l.TimeResolution
	if g > finest {
		finest = g
	}
	return append([]string{FieldLat, FieldLon}, TimeKeys(finest)...)
}
