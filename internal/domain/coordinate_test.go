package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundNearest(t *testing.T) {
	tests := []struct {
		name     string
		v, res   float64
		decimals int
		want     float64
	}{
		{"snaps to quarter degree", 39.7, 0.25, 2, 39.75},
		{"already on grid", 26.5, 0.25, 2, 26.5},
		{"negative", -48.1, 0.25, 2, -48.0},
		{"coarse grid", 12.6, 1, 0, 13},
		{"half cell rounds to even below", 0.125, 0.25, 2, 0},
		{"half cell rounds to even above", 39.625, 0.25, 2, 39.5},
		{"half cell negative", -0.375, 0.25, 2, -0.5},
		{"half degree on unit grid", 10.5, 1, 0, 10},
		{"half degree odd on unit grid", 11.5, 1, 0, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RoundNearest(tt.v, tt.res, tt.decimals), 1e-12)
		})
	}
}

func TestConvertLongitude(t *testing.T) {
	assert.Equal(t, 312.0, ConvertLongitude(-48, M180To180DegreeEast, ZeroTo360DegreeEast))
	assert.Equal(t, 10.0, ConvertLongitude(10, M180To180DegreeEast, ZeroTo360DegreeEast))
	assert.Equal(t, -48.0, ConvertLongitude(312, ZeroTo360DegreeEast, M180To180DegreeEast))
	assert.Equal(t, 179.0, ConvertLongitude(179, ZeroTo360DegreeEast, M180To180DegreeEast))
	assert.Equal(t, 5.0, ConvertLongitude(5, ZeroTo360DegreeEast, ZeroTo360DegreeEast))
}

func TestParseCoordinateFormat(t *testing.T) {
	f, err := ParseCoordinateFormat("decreasing_degree_north")
	require.NoError(t, err)
	assert.True(t, f.IsLatitude())

	_, err = ParseCoordinateFormat("gradians")
	var cfgErr *ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}
