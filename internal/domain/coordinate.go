package domain

import (
	"fmt"
	"math"
)

// CoordinateFormat describes the range and orientation of a coordinate axis.
type CoordinateFormat string

const (
	DecreasingDegreeNorth CoordinateFormat = "decreasing_degree_north" // 90 to -90
	IncreasingDegreeNorth CoordinateFormat = "increasing_degree_north" // -90 to 90
	ZeroTo360DegreeEast   CoordinateFormat = "zero_to_360_degree_east"
	M180To180DegreeEast   CoordinateFormat = "m_180_to_180_degree_east"
)

// IsLatitude reports whether f is a north/south format.
func (f CoordinateFormat) IsLatitude() bool {
	return f == DecreasingDegreeNorth || f == IncreasingDegreeNorth
}

// IsLongitude reports whether f is an east/west format.
func (f CoordinateFormat) IsLongitude() bool {
	return f == ZeroTo360DegreeEast || f == M180To180DegreeEast
}

// ParseCoordinateFormat validates a format name.
func ParseCoordinateFormat(s string) (CoordinateFormat, error) {
	f := CoordinateFormat(s)
	if f.IsLatitude() || f.IsLongitude() {
		return f, nil
	}
	return "", &ConfigurationError{Field: "format", Reason: fmt.Sprintf("unknown coordinate format %q", s)}
}

// CoordinateSpec is the grid description of one axis of a gridded variable.
type CoordinateSpec struct {
	Format     CoordinateFormat
	Resolution float64
	Decimals   int
	AttrName   string
}

// Round snaps v to the axis grid.
func (c CoordinateSpec) Round(v float64) float64 {
	return RoundNearest(v, c.Resolution, c.Decimals)
}

// RoundNearest computes round(round(v/res)*res, decimals). Halves round to
// even, so a point midway between two grid cells snaps to the even one.
func RoundNearest(v, resolution float64, decimals int) float64 {
	snapped := math.RoundToEven(v/resolution) * resolution
	scale := math.Pow(10, float64(decimals))
	return math.RoundToEven(snapped*scale) / scale
}

// ConvertLongitude maps a longitude between the 0..360 and -180..180
// conventions. Latitude formats only differ by axis orientation, so values
// pass through unchanged.
func ConvertLongitude(v float64, from, to CoordinateFormat) float64 {
	if from == to {
		return v
	}
	switch {
	case from == M180To180DegreeEast && to == ZeroTo360DegreeEast:
		if v < 0 {
			return v + 360
		}
	case from == ZeroTo360DegreeEast && to == M180To180DegreeEast:
		if v > 180 {
			return v - 360
		}
	}
	return v
}
