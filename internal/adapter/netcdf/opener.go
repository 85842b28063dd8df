// Package netcdf reads gridded variables from netCDF files.
package netcdf

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/couchcryptid/nxtensor/internal/domain"
	"github.com/couchcryptid/nxtensor/internal/extraction"
	"github.com/couchcryptid/nxtensor/internal/observability"
)

// Opener opens one netCDF file per variable and period. It implements
// extraction.Opener.
type Opener struct {
	coords  *lruCache[[]float64]
	times   *lruCache[[]time.Time]
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewOpener creates an Opener whose axis caches hold up to cacheSize axes
// each.
func NewOpener(cacheSize int, logger *slog.Logger, metrics *observability.Metrics) *Opener {
	return &Opener{
		coords:  newLRUCache[[]float64](cacheSize),
		times:   newLRUCache[[]time.Time](cacheSize),
		logger:  logger,
		metrics: metrics,
	}
}

// Open formats the path template of v with the period values and opens the
// file.
func (o *Opener) Open(_ context.Context, v domain.Variable, period domain.Period) (extraction.Dataset, error) {
	src, ok := domain.SourceOf(v)
	if !ok {
		return nil, fmt.Errorf("variable %s has no gridded source", v.ID())
	}
	path, err := domain.FormatTemplate(src.PathTemplate, period.Values())
	if err != nil {
		return nil, err
	}

	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	ds := &Dataset{opener: o, path: path, nc: nc, src: src}
	if lv, ok := v.(*domain.LeveledVariable); ok {
		ds.levelAttr = lv.LevelAttr
	}
	o.logger.Debug("dataset opened", "variable", v.ID(), "period", period.String(), "path", path)
	return ds, nil
}

// Dataset is one opened netCDF file.
type Dataset struct {
	opener    *Opener
	path      string
	nc        api.Group
	src       domain.GridSource
	levelAttr string
}

// Select reads the inclusive window described by sel at the time step
// matching sel.Date.
func (d *Dataset) Select(ctx context.Context, sel extraction.Selection) (domain.Array, error) {
	if err := ctx.Err(); err != nil {
		return domain.Array{}, err
	}

	lats, err := d.coordAxis(d.src.Lat.AttrName)
	if err != nil {
		return domain.Array{}, err
	}
	lons, err := d.coordAxis(d.src.Lon.AttrName)
	if err != nil {
		return domain.Array{}, err
	}
	times, err := d.timeAxis()
	if err != nil {
		return domain.Array{}, err
	}

	date, err := parseDate(sel.Date)
	if err != nil {
		return domain.Array{}, err
	}
	ti, err := timeIndex(times, date)
	if err != nil {
		return domain.Array{}, fmt.Errorf("%s: %w", d.path, err)
	}

	level := 0
	if sel.Level != nil {
		levels, err := d.coordAxis(d.levelAttr)
		if err != nil {
			return domain.Array{}, err
		}
		if level, err = nearestIndex(levels, *sel.Level); err != nil {
			return domain.Array{}, fmt.Errorf("%s: level: %w", d.path, err)
		}
	}

	rows := indexRange(lats, sel.LatMin, sel.LatMax)
	cols := indexRange(lons, sel.LonMin, sel.LonMax)

	vg, err := d.nc.GetVarGetter(sel.Attr)
	if err != nil {
		return domain.Array{}, fmt.Errorf("%s: variable %s: %w", d.path, sel.Attr, err)
	}
	if want := 3 + btoi(sel.Level != nil); len(vg.Dimensions()) != want {
		return domain.Array{}, fmt.Errorf("%s: variable %s has dimensions %v, want %d", d.path, sel.Attr, vg.Dimensions(), want)
	}
	slab, err := vg.GetSlice(int64(ti), int64(ti)+1)
	if err != nil {
		return domain.Array{}, fmt.Errorf("%s: read %s at %s: %w", d.path, sel.Attr, sel.Date, err)
	}
	g, err := toGrid(slab, level)
	if err != nil {
		return domain.Array{}, fmt.Errorf("%s: %s: %w", d.path, sel.Attr, err)
	}
	pk := packingOf(vg.Attributes())

	out := domain.NewArray(len(rows), len(cols))
	for i, r := range rows {
		for j, c := range cols {
			out.Data[i*len(cols)+j] = pk.unpack(g(r, c))
		}
	}
	return out, nil
}

// Close releases the file.
func (d *Dataset) Close() error {
	d.nc.Close()
	return nil
}

func (d *Dataset) coordAxis(attr string) ([]float64, error) {
	key := d.path + "|" + attr
	if axis, ok := d.opener.coords.get(key); ok {
		d.opener.metrics.AxisCache.WithLabelValues("hit").Inc()
		return axis, nil
	}
	d.opener.metrics.AxisCache.WithLabelValues("miss").Inc()

	raw, err := d.values(attr)
	if err != nil {
		return nil, err
	}
	axis, err := toFloats(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: axis %s: %w", d.path, attr, err)
	}
	d.opener.coords.put(key, axis)
	return axis, nil
}

func (d *Dataset) timeAxis() ([]time.Time, error) {
	key := d.path + "|" + d.src.TimeAttr
	if axis, ok := d.opener.times.get(key); ok {
		d.opener.metrics.AxisCache.WithLabelValues("hit").Inc()
		return axis, nil
	}
	d.opener.metrics.AxisCache.WithLabelValues("miss").Inc()

	vg, err := d.nc.GetVarGetter(d.src.TimeAttr)
	if err != nil {
		return nil, fmt.Errorf("%s: time axis %s: %w", d.path, d.src.TimeAttr, err)
	}
	units, ok := vg.Attributes().Get("units")
	if !ok {
		return nil, fmt.Errorf("%s: time axis %s has no units", d.path, d.src.TimeAttr)
	}
	unitStr, _ := units.(string)
	step, ref, err := parseTimeUnits(unitStr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.path, err)
	}
	raw, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("%s: time axis: %w", d.path, err)
	}
	offsets, err := toFloats(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: time axis: %w", d.path, err)
	}

	axis := decodeTimes(offsets, step, ref)
	d.opener.times.put(key, axis)
	return axis, nil
}

func (d *Dataset) values(attr string) (any, error) {
	vg, err := d.nc.GetVarGetter(attr)
	if err != nil {
		return nil, fmt.Errorf("%s: axis %s: %w", d.path, attr, err)
	}
	v, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("%s: axis %s: %w", d.path, attr, err)
	}
	return v, nil
}

// packingOf reads scale_factor, add_offset and _FillValue.
func packingOf(attrs api.AttributeMap) packing {
	p := packing{scale: 1}
	if v, ok := attrs.Get("scale_factor"); ok {
		if f, err := toFloat(v); err == nil {
			p.scale = f
		}
	}
	if v, ok := attrs.Get("add_offset"); ok {
		if f, err := toFloat(v); err == nil {
			p.offset = f
		}
	}
	if v, ok := attrs.Get("_FillValue"); ok {
		if f, err := toFloat(v); err == nil {
			p.fill, p.hasFill = f, true
		}
	}
	return p
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
