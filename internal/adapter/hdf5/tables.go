package hdf5

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/couchcryptid/nxtensor/internal/domain"
)

var statsHeader = []string{"channel", "mean", "std", "computed_at"}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// writeMetadata writes the metadata table with a header row.
func writeMetadata(w io.Writer, m domain.Metadata) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(m.Columns()); err != nil {
		return err
	}
	for _, r := range m.Rows {
		rec := make([]string, 0, 3+len(r.Time))
		rec = append(rec, strconv.Itoa(r.Label), formatFloat(r.Lat), formatFloat(r.Lon))
		for _, t := range r.Time {
			rec = append(rec, strconv.Itoa(t))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// readMetadata parses a table written by writeMetadata.
func readMetadata(r io.Reader) (domain.Metadata, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return domain.Metadata{}, fmt.Errorf("read metadata: %w", err)
	}
	if len(records) == 0 {
		return domain.Metadata{}, fmt.Errorf("read metadata: missing header")
	}
	header := records[0]
	nTime := len(header) - 3
	if nTime < 1 || nTime > domain.NumTimeFields {
		return domain.Metadata{}, fmt.Errorf("read metadata: unexpected header %v", header)
	}

	m := domain.Metadata{Resolution: domain.TimeResolution(nTime - 1), Rows: make([]domain.MetadataRow, 0, len(records)-1)}
	for i, rec := range records[1:] {
		if len(rec) != len(header) {
			return domain.Metadata{}, fmt.Errorf("read metadata: row %d has %d fields", i+1, len(rec))
		}
		label, err := strconv.Atoi(rec[0])
		if err != nil {
			return domain.Metadata{}, fmt.Errorf("read metadata: row %d label: %w", i+1, err)
		}
		lat, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return domain.Metadata{}, fmt.Errorf("read metadata: row %d lat: %w", i+1, err)
		}
		lon, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return domain.Metadata{}, fmt.Errorf("read metadata: row %d lon: %w", i+1, err)
		}
		t := make([]int, nTime)
		for j := range nTime {
			if t[j], err = strconv.Atoi(rec[3+j]); err != nil {
				return domain.Metadata{}, fmt.Errorf("read metadata: row %d %s: %w", i+1, header[3+j], err)
			}
		}
		m.Rows = append(m.Rows, domain.MetadataRow{Label: label, Lat: lat, Lon: lon, Time: t})
	}
	return m, nil
}

// writeStats writes one row per channel.
func writeStats(w io.Writer, channels []string, stats []domain.Stats) error {
	if len(channels) != len(stats) {
		return fmt.Errorf("write stats: %d channels but %d stats", len(channels), len(stats))
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(statsHeader); err != nil {
		return err
	}
	for i, s := range stats {
		if err := cw.Write([]string{channels[i], formatFloat(s.Mean), formatFloat(s.Std), s.ComputedAt.Format(time.RFC3339Nano)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// readStats parses a table written by writeStats.
func readStats(r io.Reader) ([]string, []domain.Stats, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read stats: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("read stats: missing header")
	}
	var (
		channels []string
		stats    []domain.Stats
	)
	for i, rec := range records[1:] {
		if len(rec) != len(statsHeader) {
			return nil, nil, fmt.Errorf("read stats: row %d has %d fields", i+1, len(rec))
		}
		mean, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("read stats: row %d mean: %w", i+1, err)
		}
		std, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("read stats: row %d std: %w", i+1, err)
		}
		at, err := time.Parse(time.RFC3339Nano, rec[3])
		if err != nil {
			return nil, nil, fmt.Errorf("read stats: row %d computed_at: %w", i+1, err)
		}
		channels = append(channels, rec[0])
		stats = append(stats, domain.Stats{Mean: mean, Std: std, ComputedAt: at})
	}
	return channels, stats, nil
}
