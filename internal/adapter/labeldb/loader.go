// Package labeldb loads the event tables of labels.
package labeldb

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/couchcryptid/nxtensor/internal/domain"
	"github.com/spf13/afero"
)

// Loader reads the raw event table of a label.
type Loader interface {
	Load(ctx context.Context, label domain.Label) (*domain.Table, error)
}

// LoaderFor returns the loader of a table format.
func LoaderFor(fs afero.Fs, format domain.DBFormat) (Loader, error) {
	switch format {
	case domain.DBFormatCSV:
		return &CSVLoader{fs: fs}, nil
	}
	return nil, &domain.ConfigurationError{Field: "db_format", Reason: fmt.Sprintf("no loader for label database format %q", format)}
}

// FormatLoader dispatches each label to the loader of its DBFormat.
type FormatLoader struct {
	fs afero.Fs
}

// NewFormatLoader creates a FormatLoader reading from fs.
func NewFormatLoader(fs afero.Fs) *FormatLoader {
	return &FormatLoader{fs: fs}
}

func (l *FormatLoader) Load(ctx context.Context, label domain.Label) (*domain.Table, error) {
	format := label.DBFormat
	if format == "" {
		format = domain.DBFormatCSV
	}
	loader, err := LoaderFor(l.fs, format)
	if err != nil {
		return nil, err
	}
	return loader.Load(ctx, label)
}

// CSVLoader reads delimited text tables. Lines before the header line are
// skipped.
type CSVLoader struct {
	fs afero.Fs
}

// NewCSVLoader creates a CSVLoader reading from fs.
func NewCSVLoader(fs afero.Fs) *CSVLoader {
	return &CSVLoader{fs: fs}
}

// Load reads the table at label.DBPath.
func (l *CSVLoader) Load(ctx context.Context, label domain.Label) (*domain.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := l.fs.Open(label.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open label table %s: %w", label.DBPath, err)
	}
	defer f.Close()

	opts := label.CSV
	r := csv.NewReader(f)
	if opts.Separator != 0 {
		r.Comma = opts.Separator
	}
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	for i := range opts.HeaderLine {
		if _, err := r.Read(); err != nil {
			return nil, fmt.Errorf("label table %s: skip line %d: %w", label.DBPath, i+1, err)
		}
	}

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("label table %s: missing header", label.DBPath)
	}
	if err != nil {
		return nil, fmt.Errorf("label table %s: header: %w", label.DBPath, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	table := &domain.Table{Columns: header}
	for line := opts.HeaderLine + 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("label table %s: line %d: %w", label.DBPath, line, err)
		}
		if len(rec) != len(header) {
			return nil, fmt.Errorf("label table %s: line %d has %d fields, header has %d", label.DBPath, line, len(rec), len(header))
		}
		table.Rows = append(table.Rows, rec)
	}
	return table, nil
}
