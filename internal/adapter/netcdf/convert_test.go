package netcdf

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeUnits(t *testing.T) {
	tests := []struct {
		units string
		step  time.Duration
		ref   time.Time
	}{
		{"hours since 1900-01-01 00:00:00.0", time.Hour, time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"days since 2000-01-01", 24 * time.Hour, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"seconds since 1970-01-01T00:00:00Z", time.Second, time.Unix(0, 0).UTC()},
		{"minutes since 2010-6-15 12:30:00", time.Minute, time.Date(2010, 6, 15, 12, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.units, func(t *testing.T) {
			step, ref, err := parseTimeUnits(tt.units)
			require.NoError(t, err)
			assert.Equal(t, tt.step, step)
			assert.True(t, tt.ref.Equal(ref), "got %s", ref)
		})
	}
}

func TestParseTimeUnits_Invalid(t *testing.T) {
	for _, units := range []string{"", "hours", "fortnights since 2000-01-01", "hours since yesterday"} {
		_, _, err := parseTimeUnits(units)
		assert.Error(t, err, units)
	}
}

func TestDecodeTimes_ERA5Hours(t *testing.T) {
	step, ref, err := parseTimeUnits("hours since 1900-01-01 00:00:00.0")
	require.NoError(t, err)

	// 2000-10-01T00 and T06 in ERA5 encoding
	times := decodeTimes([]float64{883152, 883158}, step, ref)
	assert.Equal(t, time.Date(2000, 10, 1, 0, 0, 0, 0, time.UTC), times[0])
	assert.Equal(t, time.Date(2000, 10, 1, 6, 0, 0, 0, time.UTC), times[1])

	d, err := parseDate("2000-10-01T06")
	require.NoError(t, err)
	i, err := timeIndex(times, d)
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	d, err = parseDate("2000-10-01 12:00:00")
	require.NoError(t, err)
	_, err = timeIndex(times, d)
	assert.Error(t, err)
}

func TestParseDate_Layouts(t *testing.T) {
	want := time.Date(2000, 10, 1, 6, 0, 0, 0, time.UTC)
	for _, s := range []string{"2000-10-01T06", "2000-10-01 06:00", "2000-10-01T06:00:00", "2000-10-01T06:00:00Z"} {
		got, err := parseDate(s)
		require.NoError(t, err, s)
		assert.True(t, want.Equal(got), s)
	}
	_, err := parseDate("10/01/2000")
	assert.Error(t, err)
}

func TestIndexRange(t *testing.T) {
	decreasing := []float64{11, 10.75, 10.5, 10.25, 10, 9.75, 9.5}
	assert.Equal(t, []int{2, 3, 4, 5}, indexRange(decreasing, 9.75, 10.5))

	increasing := []float64{311, 311.25, 311.5, 311.75, 312, 312.25, 312.5, 312.75}
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, indexRange(increasing, 311.25, 312.5))

	// float32 storage error stays inside the range
	assert.Equal(t, []int{0}, indexRange([]float64{float64(float32(0.1))}, 0.1, 0.1))

	// window falls off the grid edge
	assert.Equal(t, []int{0, 1}, indexRange([]float64{90, 89.75, 89.5}, 89.75, 90.5))
}

func TestNearestIndex(t *testing.T) {
	levels := []float64{1000, 850, 500, 200}
	i, err := nearestIndex(levels, 500)
	require.NoError(t, err)
	assert.Equal(t, 2, i)

	_, err = nearestIndex(levels, 700)
	assert.Error(t, err)
}

func TestPacking_Unpack(t *testing.T) {
	p := packing{scale: 0.5, offset: 100, fill: -32767, hasFill: true}
	assert.Equal(t, 105.0, p.unpack(10))
	assert.True(t, math.IsNaN(p.unpack(-32767)))
	assert.Equal(t, 3.0, packing{scale: 1}.unpack(3))
}

func TestToFloats(t *testing.T) {
	got, err := toFloats([]float32{1.5, -2})
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -2}, got)

	got, err = toFloats([]int32{881712})
	require.NoError(t, err)
	assert.Equal(t, []float64{881712}, got)

	_, err = toFloats("nope")
	assert.ErrorIs(t, err, errNotNumeric)
}

func TestToFloat(t *testing.T) {
	for _, v := range []any{float32(2), float64(2), int16(2), []float32{2}, []float64{2}} {
		f, err := toFloat(v)
		require.NoError(t, err)
		assert.Equal(t, 2.0, f)
	}
	_, err := toFloat([]float64{1, 2})
	assert.Error(t, err)
}

func TestToGrid(t *testing.T) {
	g, err := toGrid([][][]int16{{{1, 2}, {3, 4}}}, 0)
	require.NoError(t, err)
	assert.Equal(t, 3.0, g(1, 0))

	g, err = toGrid([][][][]float32{{{{1}}, {{7}}}}, 1)
	require.NoError(t, err)
	assert.Equal(t, 7.0, g(0, 0))

	_, err = toGrid([]float64{1}, 0)
	assert.Error(t, err)
}
