// Package partition groups label events by dataset period and merges the
// per-label groupings into ordered work units.
package partition

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/couchcryptid/nxtensor/internal/domain"
)

// Partition groups the rows of a label table by the period obtained when
// truncating their timestamp at granularity. Columns are renamed once using
// the label field mapping; events keep table order within each block.
func Partition(table *domain.Table, label domain.Label, granularity domain.TimeResolution) (map[string]domain.MetadataBlock, error) {
	if !granularity.Valid() {
		return nil, &domain.ConfigurationError{Field: "period_resolution", Reason: fmt.Sprintf("invalid granularity %d", int(granularity))}
	}

	fields := label.RequiredFields(granularity)
	columns, err := resolveColumns(table, label, fields)
	if err != nil {
		return nil, err
	}

	resolution := label.TimeResolution
	if granularity > resolution {
		resolution = granularity
	}

	blocks := make(map[string]domain.MetadataBlock)
	for i, row := range table.Rows {
		ev, err := parseEvent(row, columns, fields, label, resolution)
		if err != nil {
			return nil, &domain.ConfigurationError{
				Field:  label.ID,
				Reason: fmt.Sprintf("row %d", i+1),
				Err:    err,
			}
		}

		period := ev.Period(granularity)
		key := period.String()
		block, ok := blocks[key]
		if !ok {
			block = domain.MetadataBlock{Label: label.ID, Period: period}
		}
		block.Events = append(block.Events, ev)
		blocks[key] = block
	}
	return blocks, nil
}

// resolveColumns maps each canonical field to its column index.
func resolveColumns(table *domain.Table, label domain.Label, fields []string) ([]int, error) {
	columns := make([]int, len(fields))
	for i, field := range fields {
		name, ok := label.FieldMapping[field]
		if !ok || name == "" {
			return nil, &domain.ConfigurationError{
				Field:  "db_meta_data_mapping",
				Reason: fmt.Sprintf("label %q has no mapping for field %q", label.ID, field),
			}
		}
		idx := table.ColumnIndex(name)
		if idx < 0 {
			return nil, &domain.ConfigurationError{
				Field:  "db_meta_data_mapping",
				Reason: fmt.Sprintf("label %q maps field %q to missing column %q", label.ID, field, name),
			}
		}
		columns[i] = idx
	}
	return columns, nil
}

// parseEvent reads one row; fields[0] and fields[1] are lat and lon.
func parseEvent(row []string, columns []int, fields []string, label domain.Label, resolution domain.TimeResolution) (domain.Event, error) {
	ev := domain.Event{
		Label:      label.ID,
		LabelNum:   label.NumID,
		LonFormat:  label.LonFormat,
		Resolution: resolution,
	}

	for i, field := range fields {
		col := columns[i]
		if col >= len(row) {
			return domain.Event{}, fmt.Errorf("column %q: missing cell", label.FieldMapping[field])
		}
		cell := strings.TrimSpace(row[col])
		if cell == "" || (label.CSV.NASymbol != "" && cell == label.CSV.NASymbol) {
			return domain.Event{}, fmt.Errorf("column %q: missing value", label.FieldMapping[field])
		}

		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return domain.Event{}, fmt.Errorf("column %q: %w", label.FieldMapping[field], err)
		}
		switch i {
		case 0:
			ev.Lat = v
		case 1:
			ev.Lon = v
		default:
			if v != math.Trunc(v) {
				return domain.Event{}, fmt.Errorf("column %q: %q is not an integer", label.FieldMapping[field], cell)
			}
			ev.Time[i-2] = int(v)
		}
	}
	return ev, nil
}

// Merge combines per-label groupings, keyed by label id then period string,
// into work units: periods ascending, labels ascending within each period.
// Labels without events in a period are left out of that unit.
func Merge(perLabel map[string]map[string]domain.MetadataBlock) []domain.WorkUnit {
	periods := make(map[string]domain.Period)
	labels := make([]string, 0, len(perLabel))
	for label, blocks := range perLabel {
		labels = append(labels, label)
		for key, block := range blocks {
			if len(block.Events) > 0 {
				periods[key] = block.Period
			}
		}
	}
	sort.Strings(labels)

	keys := make([]string, 0, len(periods))
	for key := range periods {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return periods[keys[i]].Compare(periods[keys[j]]) < 0
	})

	units := make([]domain.WorkUnit, 0, len(keys))
	for _, key := range keys {
		unit := domain.WorkUnit{Period: periods[key]}
		for _, label := range labels {
			block, ok := perLabel[label][key]
			if !ok || len(block.Events) == 0 {
				continue
			}
			unit.Blocks = append(unit.Blocks, block)
		}
		units = append(units, unit)
	}
	return units
}

// Summary counts the events that an extraction over units will produce.
type Summary struct {
	Units   int
	Events  int
	ByLabel map[string]int
}

// Count tallies the events of units, overall and per label.
func Count(units []domain.WorkUnit) Summary {
	s := Summary{Units: len(units), ByLabel: make(map[string]int)}
	for _, u := range units {
		for _, b := range u.Blocks {
			s.Events += len(b.Events)
			s.ByLabel[b.Label] += len(b.Events)
		}
	}
	return s
}
