package partition_test

import (
	"errors"
	"testing"

	"github.com/couchcryptid/nxtensor/internal/domain"
	"github.com/couchcryptid/nxtensor/internal/partition"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLabel(id string, num int) domain.Label {
	return domain.Label{
		ID:    id,
		NumID: num,
		FieldMapping: map[string]string{
			"lat": "LAT", "lon": "LON",
			"year": "YEAR", "month": "MONTH", "day": "DAY", "hour": "HOUR",
		},
		TimeResolution: domain.Hour,
		LonFormat:      domain.M180To180DegreeEast,
		CSV:            domain.CSVOptions{NASymbol: "NA"},
	}
}

func table(rows ...[]string) *domain.Table {
	return &domain.Table{
		Columns: []string{"ID", "LAT", "LON", "YEAR", "MONTH", "DAY", "HOUR"},
		Rows:    rows,
	}
}

func TestPartition_GroupsByPeriod(t *testing.T) {
	tbl := table(
		[]string{"1", "10.5", "-48", "2000", "10", "1", "0"},
		[]string{"2", "11.0", "-47", "2000", "11", "3", "6"},
		[]string{"3", "12.25", "-46", "2000", "10", "2", "18"},
	)

	blocks, err := partition.Partition(tbl, testLabel("cyclone", 1), domain.Month)
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	oct := blocks["2000_10"]
	assert.Equal(t, "cyclone", oct.Label)
	assert.Equal(t, domain.Period{2000, 10}, oct.Period)
	require.Len(t, oct.Events, 2)
	assert.Equal(t, 10.5, oct.Events[0].Lat)
	assert.Equal(t, 12.25, oct.Events[1].Lat, "table order kept")
	assert.Equal(t, [domain.NumTimeFields]int{2000, 10, 2, 18}, oct.Events[1].Time)
	assert.Equal(t, domain.Hour, oct.Events[1].Resolution)
	assert.Equal(t, 1, oct.Events[1].LabelNum)
	assert.Equal(t, domain.M180To180DegreeEast, oct.Events[1].LonFormat)

	assert.Len(t, blocks["2000_11"].Events, 1)
}

func TestPartition_Errors(t *testing.T) {
	t.Run("mapping misses a grouped field", func(t *testing.T) {
		label := testLabel("cyclone", 1)
		delete(label.FieldMapping, "month")
		_, err := partition.Partition(table(), label, domain.Month)

		var cfgErr *domain.ConfigurationError
		require.True(t, errors.As(err, &cfgErr))
		assert.Contains(t, cfgErr.Error(), `"month"`)
	})

	t.Run("mapped column absent from table", func(t *testing.T) {
		label := testLabel("cyclone", 1)
		label.FieldMapping["hour"] = "HH"
		_, err := partition.Partition(table(), label, domain.Month)

		var cfgErr *domain.ConfigurationError
		assert.True(t, errors.As(err, &cfgErr))
	})

	t.Run("NA cell", func(t *testing.T) {
		_, err := partition.Partition(table([]string{"1", "NA", "-48", "2000", "10", "1", "0"}), testLabel("cyclone", 1), domain.Month)
		var cfgErr *domain.ConfigurationError
		require.True(t, errors.As(err, &cfgErr))
		assert.Contains(t, cfgErr.Error(), "row 1")
	})

	t.Run("fractional time field", func(t *testing.T) {
		_, err := partition.Partition(table([]string{"1", "10", "-48", "2000", "10.5", "1", "0"}), testLabel("cyclone", 1), domain.Month)
		assert.Error(t, err)
	})
}

func block(label string, p domain.Period, lats ...float64) domain.MetadataBlock {
	b := domain.MetadataBlock{Label: label, Period: p}
	for _, lat := range lats {
		b.Events = append(b.Events, domain.Event{Label: label, Lat: lat})
	}
	return b
}

func TestMerge_OrdersPeriodsAndLabels(t *testing.T) {
	perLabel := map[string]map[string]domain.MetadataBlock{
		"tc": {
			"2000_10": block("tc", domain.Period{2000, 10}, 1),
			"1999_2":  block("tc", domain.Period{1999, 2}, 2),
		},
		"etc": {
			"2000_10": block("etc", domain.Period{2000, 10}, 3, 4),
			"2000_9":  block("etc", domain.Period{2000, 9}, 5),
		},
		"empty": {},
	}

	got := partition.Merge(perLabel)

	want := []domain.WorkUnit{
		{Period: domain.Period{1999, 2}, Blocks: []domain.MetadataBlock{perLabel["tc"]["1999_2"]}},
		{Period: domain.Period{2000, 9}, Blocks: []domain.MetadataBlock{perLabel["etc"]["2000_9"]}},
		{Period: domain.Period{2000, 10}, Blocks: []domain.MetadataBlock{perLabel["etc"]["2000_10"], perLabel["tc"]["2000_10"]}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_Deterministic(t *testing.T) {
	perLabel := map[string]map[string]domain.MetadataBlock{}
	for _, label := range []string{"d", "a", "c", "b"} {
		perLabel[label] = map[string]domain.MetadataBlock{}
		for m := 1; m <= 12; m++ {
			p := domain.Period{2001, m}
			perLabel[label][p.String()] = block(label, p, float64(m))
		}
	}

	first := partition.Merge(perLabel)
	for range 20 {
		if diff := cmp.Diff(first, partition.Merge(perLabel)); diff != "" {
			t.Fatalf("Merge() not deterministic:\n%s", diff)
		}
	}

	require.Len(t, first, 12)
	for i := 1; i < len(first); i++ {
		assert.Negative(t, first[i-1].Period.Compare(first[i].Period))
	}
	for _, u := range first {
		for i := 1; i < len(u.Blocks); i++ {
			assert.Less(t, u.Blocks[i-1].Label, u.Blocks[i].Label)
		}
	}
}

func TestCount(t *testing.T) {
	units := []domain.WorkUnit{
		{Period: domain.Period{2000, 1}, Blocks: []domain.MetadataBlock{block("a", domain.Period{2000, 1}, 1, 2), block("b", domain.Period{2000, 1}, 3)}},
		{Period: domain.Period{2000, 2}, Blocks: []domain.MetadataBlock{block("a", domain.Period{2000, 2}, 4)}},
	}
	s := partition.Count(units)
	assert.Equal(t, 2, s.Units)
	assert.Equal(t, 4, s.Events)
	assert.Equal(t, map[string]int{"a": 3, "b": 1}, s.ByLabel)
}
