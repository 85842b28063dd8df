package labeldb_test

import (
	"context"
	"errors"
	"testing"

	"github.com/couchcryptid/nxtensor/internal/adapter/labeldb"
	"github.com/couchcryptid/nxtensor/internal/domain"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func TestLoaderFor(t *testing.T) {
	fs := afero.NewMemMapFs()
	l, err := labeldb.LoaderFor(fs, domain.DBFormatCSV)
	require.NoError(t, err)
	assert.IsType(t, &labeldb.CSVLoader{}, l)

	_, err = labeldb.LoaderFor(fs, domain.DBFormat("parquet"))
	var cfgErr *domain.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestCSVLoader_Load(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/db/tc.csv", "# ibtracs extract\n# generated 2024\nyear;month;day;hour;lat;lon\n2000;10;1;0;10.5;-48\n2000;10;2;6;NA;-47\n")

	label := domain.Label{
		ID:     "tc",
		DBPath: "/db/tc.csv",
		CSV:    domain.CSVOptions{Separator: ';', HeaderLine: 2, NASymbol: "NA"},
	}
	table, err := labeldb.NewCSVLoader(fs).Load(context.Background(), label)
	require.NoError(t, err)

	assert.Equal(t, []string{"year", "month", "day", "hour", "lat", "lon"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "10.5", table.Rows[0][4])
	assert.Equal(t, "NA", table.Rows[1][4], "NA cells are left to the partitioner")
	assert.Equal(t, 4, table.ColumnIndex("lat"))
}

func TestCSVLoader_DefaultComma(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/db/etc.csv", "year, lat, lon\n2001, 40, 10\n")

	table, err := labeldb.NewCSVLoader(fs).Load(context.Background(), domain.Label{DBPath: "/db/etc.csv"})
	require.NoError(t, err)
	assert.Equal(t, []string{"year", "lat", "lon"}, table.Columns)
	assert.Equal(t, []string{"2001", "40", "10"}, table.Rows[0])
}

func TestCSVLoader_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/db/ragged.csv", "a,b\n1,2\n3\n")
	writeFile(t, fs, "/db/empty.csv", "")

	loader := labeldb.NewCSVLoader(fs)
	tests := []struct {
		name  string
		label domain.Label
		want  string
	}{
		{"missing file", domain.Label{DBPath: "/db/none.csv"}, "open label table"},
		{"ragged row", domain.Label{DBPath: "/db/ragged.csv"}, "line 3 has 1 fields"},
		{"empty file", domain.Label{DBPath: "/db/empty.csv"}, "missing header"},
		{"header beyond end", domain.Label{DBPath: "/db/ragged.csv", CSV: domain.CSVOptions{HeaderLine: 5}}, "skip line"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.Load(context.Background(), tt.label)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFormatLoader(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/db/tc.csv", "lat,lon\n10,20\n")
	loader := labeldb.NewFormatLoader(fs)

	table, err := loader.Load(context.Background(), domain.Label{DBPath: "/db/tc.csv"})
	require.NoError(t, err)
	assert.Len(t, table.Rows, 1)

	_, err = loader.Load(context.Background(), domain.Label{DBPath: "/db/tc.csv", DBFormat: "sqlite"})
	var cfgErr *domain.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}
