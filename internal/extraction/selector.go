package extraction

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/couchcryptid/nxtensor/internal/domain"
)

// Frame is the half extent of extracted windows, in grid cells. Windows are
// 2*HalfLat rows by 2*HalfLon columns.
type Frame struct {
	HalfLat int
	HalfLon int
}

// Shape is the (rows, columns) shape of every window of the frame.
func (f Frame) Shape() []int {
	return []int{2 * f.HalfLat, 2 * f.HalfLon}
}

// Window computes the inclusive selection bounds around an event for the
// given grid source. The lower latitude bound and the upper longitude bound
// are pulled in by one grid step so that inclusive selection yields exactly
// Shape() cells.
func Window(src domain.GridSource, ev domain.Event, f Frame) (latMin, latMax, lonMin, lonMax float64) {
	lon := ev.Lon
	if ev.LonFormat != "" && src.Lon.Format != "" {
		lon = domain.ConvertLongitude(lon, ev.LonFormat, src.Lon.Format)
	}
	lat := src.Lat.Round(ev.Lat)
	lon = src.Lon.Round(lon)

	latRes, lonRes := src.Lat.Resolution, src.Lon.Resolution
	halfLat := float64(f.HalfLat) * latRes
	halfLon := float64(f.HalfLon) * lonRes

	latMin = src.Lat.Round(lat - halfLat + latRes)
	latMax = src.Lat.Round(lat + halfLat)
	lonMin = src.Lon.Round(lon - halfLon)
	lonMax = src.Lon.Round(lon + halfLon - lonRes)
	return latMin, latMax, lonMin, lonMax
}

// SelectRegion extracts the window of a Direct or Leveled variable around
// ev from an opened dataset.
func SelectRegion(ctx context.Context, ds Dataset, v domain.Variable, ev domain.Event, f Frame) (domain.Array, error) {
	var sel Selection
	var src domain.GridSource
	switch v := v.(type) {
	case *domain.DirectVariable:
		src = v.Source
	case *domain.LeveledVariable:
		src = v.Source
		level := v.Level
		sel.Level = &level
	default:
		return domain.Array{}, fmt.Errorf("variable %s: direct selection of %T", v.ID(), v)
	}

	date, err := domain.FormatTemplate(src.DateTemplate, ev.TemplateValues())
	if err != nil {
		return domain.Array{}, err
	}
	sel.Attr = src.AttrName
	sel.Date = date
	sel.LatMin, sel.LatMax, sel.LonMin, sel.LonMax = Window(src, ev, f)

	region, err := ds.Select(ctx, sel)
	if err != nil {
		var extErr *domain.ExtractionError
		if errors.As(err, &extErr) {
			return domain.Array{}, err
		}
		return domain.Array{}, &domain.ExtractionError{Variable: v.ID(), Event: &ev, Reason: "select " + date, Err: err}
	}

	if want := f.Shape(); !slices.Equal(region.Shape, want) {
		return domain.Array{}, &domain.ExtractionError{
			Variable: v.ID(),
			Event:    &ev,
			Reason: fmt.Sprintf("window lat[%g,%g] lon[%g,%g] at %s has shape %v, want %v",
				sel.LatMin, sel.LatMax, sel.LonMin, sel.LonMax, date, region.Shape, want),
		}
	}
	return region, nil
}
