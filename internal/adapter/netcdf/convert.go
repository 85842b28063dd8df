package netcdf

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// coordTolerance absorbs float32 storage error of coordinate axes.
const coordTolerance = 1e-4

var referenceLayouts = []string{
	"2006-01-02 15:04:05.0",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15",
	"2006-01-02",
	"2006-1-2 15:4:5",
	"2006-1-2",
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02T15",
	"2006-01-02 15",
	"2006-01-02",
	"2006-01",
	"2006",
}

// parseTimeUnits decodes a CF time units attribute such as
// "hours since 1900-01-01 00:00:00.0".
func parseTimeUnits(units string) (time.Duration, time.Time, error) {
	unit, ref, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return 0, time.Time{}, fmt.Errorf("time units %q: missing \"since\"", units)
	}

	var step time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "days", "day", "d":
		step = 24 * time.Hour
	case "hours", "hour", "hrs", "hr", "h":
		step = time.Hour
	case "minutes", "minute", "mins", "min":
		step = time.Minute
	case "seconds", "second", "secs", "sec", "s":
		step = time.Second
	case "milliseconds", "millisecond", "msec", "ms":
		step = time.Millisecond
	case "microseconds", "microsecond", "usec", "us":
		step = time.Microsecond
	default:
		return 0, time.Time{}, fmt.Errorf("time units %q: unsupported unit %q", units, unit)
	}

	ref = strings.TrimSuffix(strings.TrimSpace(ref), " UTC")
	for _, layout := range referenceLayouts {
		if t, err := time.ParseInLocation(layout, ref, time.UTC); err == nil {
			return step, t, nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("time units %q: unparseable reference %q", units, ref)
}

// decodeTimes converts raw offsets into absolute UTC times.
func decodeTimes(raw []float64, step time.Duration, ref time.Time) []time.Time {
	out := make([]time.Time, len(raw))
	for i, v := range raw {
		out[i] = ref.Add(time.Duration(math.Round(v * float64(step))))
	}
	return out
}

// parseDate reads a formatted event date.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// timeIndex locates date on the time axis.
func timeIndex(axis []time.Time, date time.Time) (int, error) {
	for i, t := range axis {
		if d := t.Sub(date); d > -time.Second && d < time.Second {
			return i, nil
		}
	}
	return 0, fmt.Errorf("date %s not on time axis", date.Format(time.RFC3339))
}

// indexRange returns the positions of axis values inside [lo, hi], in axis
// order. Axes may be increasing or decreasing.
func indexRange(axis []float64, lo, hi float64) []int {
	var idx []int
	for i, v := range axis {
		if v >= lo-coordTolerance && v <= hi+coordTolerance {
			idx = append(idx, i)
		}
	}
	return idx
}

// nearestIndex returns the position of the axis value closest to v when it
// lies within tolerance.
func nearestIndex(axis []float64, v float64) (int, error) {
	best, bestDist := -1, math.Inf(1)
	for i, a := range axis {
		if d := math.Abs(a - v); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 || bestDist > coordTolerance {
		return 0, fmt.Errorf("value %g not on axis", v)
	}
	return best, nil
}

// packing holds the CF unpacking attributes of a variable.
type packing struct {
	scale   float64
	offset  float64
	fill    float64
	hasFill bool
}

func (p packing) unpack(raw float64) float64 {
	if p.hasFill && raw == p.fill {
		return math.NaN()
	}
	return raw*p.scale + p.offset
}

var errNotNumeric = errors.New("not numeric")

// toFloat converts a scalar attribute value.
func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case []float64:
		if len(x) == 1 {
			return x[0], nil
		}
	case []float32:
		if len(x) == 1 {
			return float64(x[0]), nil
		}
	case []int16:
		if len(x) == 1 {
			return float64(x[0]), nil
		}
	}
	return 0, fmt.Errorf("%T: %w", v, errNotNumeric)
}

// toFloats converts a one-dimensional variable.
func toFloats(v any) ([]float64, error) {
	switch x := v.(type) {
	case []float64:
		return x, nil
	case []float32:
		return convert(x), nil
	case []int8:
		return convert(x), nil
	case []int16:
		return convert(x), nil
	case []int32:
		return convert(x), nil
	case []int64:
		return convert(x), nil
	case []uint8:
		return convert(x), nil
	case []uint16:
		return convert(x), nil
	case []uint32:
		return convert(x), nil
	case []uint64:
		return convert(x), nil
	}
	return nil, fmt.Errorf("1-d %T: %w", v, errNotNumeric)
}

type number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

func convert[T number](in []T) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

// grid is a two-dimensional accessor over a decoded slab.
type grid func(row, col int) float64

// toGrid extracts the 2-d plane of one time step from a GetSlice result.
// level selects the second axis of 4-d variables and is ignored for 3-d
// ones.
func toGrid(v any, level int) (grid, error) {
	switch x := v.(type) {
	case [][][]float64:
		return plane(x[0]), nil
	case [][][]float32:
		return plane(x[0]), nil
	case [][][]int16:
		return plane(x[0]), nil
	case [][][]int32:
		return plane(x[0]), nil
	case [][][]int8:
		return plane(x[0]), nil
	case [][][][]float64:
		return plane(x[0][level]), nil
	case [][][][]float32:
		return plane(x[0][level]), nil
	case [][][][]int16:
		return plane(x[0][level]), nil
	case [][][][]int32:
		return plane(x[0][level]), nil
	case [][][][]int8:
		return plane(x[0][level]), nil
	}
	return nil, fmt.Errorf("gridded %T: %w", v, errNotNumeric)
}

func plane[T number](p [][]T) grid {
	return func(row, col int) float64 { return float64(p[row][col]) }
}
