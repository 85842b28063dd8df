package extraction_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/nxtensor/internal/domain"
	"github.com/couchcryptid/nxtensor/internal/extraction"
)

// --- fakes ---

// fakeDataset answers selections on a regular 0.25 degree grid. Every cell
// of a window holds fill(sel).
type fakeDataset struct {
	id    string
	fill  func(sel extraction.Selection) float64
	short int
	err   error
	delay time.Duration

	mu      sync.Mutex
	selects []extraction.Selection
	closed  atomic.Bool
	onClose func()
}

func (d *fakeDataset) Select(ctx context.Context, sel extraction.Selection) (domain.Array, error) {
	d.mu.Lock()
	d.selects = append(d.selects, sel)
	d.mu.Unlock()

	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return domain.Array{}, ctx.Err()
		}
	}
	if d.err != nil {
		return domain.Array{}, d.err
	}

	rows := int(math.Round((sel.LatMax-sel.LatMin)/0.25)) + 1 - d.short
	cols := int(math.Round((sel.LonMax-sel.LonMin)/0.25)) + 1
	arr := domain.NewArray(rows, cols)
	v := 1.0
	if d.fill != nil {
		v = d.fill(sel)
	}
	for i := range arr.Data {
		arr.Data[i] = v
	}
	return arr, nil
}

func (d *fakeDataset) Close() error {
	if d.closed.Swap(true) {
		return errors.New("closed twice")
	}
	if d.onClose != nil {
		d.onClose()
	}
	return nil
}

func (d *fakeDataset) selectCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.selects)
}

// fakeOpener builds a fresh fakeDataset per Open from the template
// registered for the variable id.
type fakeOpener struct {
	templates map[string]*fakeDataset
	openErr   map[string]error

	mu       sync.Mutex
	opened   []*fakeDataset
	inFlight atomic.Int64
	maxSeen  atomic.Int64
}

func (o *fakeOpener) Open(_ context.Context, v domain.Variable, _ domain.Period) (extraction.Dataset, error) {
	if err := o.openErr[v.ID()]; err != nil {
		return nil, err
	}
	tmpl, ok := o.templates[v.ID()]
	if !ok {
		return nil, errors.New("no such variable " + v.ID())
	}
	ds := &fakeDataset{id: v.ID(), fill: tmpl.fill, short: tmpl.short, err: tmpl.err, delay: tmpl.delay}

	n := o.inFlight.Add(1)
	for {
		m := o.maxSeen.Load()
		if n <= m || o.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	ds.onClose = func() { o.inFlight.Add(-1) }

	o.mu.Lock()
	o.opened = append(o.opened, ds)
	o.mu.Unlock()
	return ds, nil
}

func (o *fakeOpener) datasets() []*fakeDataset {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakeDataset(nil), o.opened...)
}

type fakeWriter struct {
	mu     sync.Mutex
	blocks []domain.Block
	err    error
}

func (w *fakeWriter) WriteBlock(_ context.Context, b domain.Block) (string, error) {
	if w.err != nil {
		return "", w.err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.blocks = append(w.blocks, b)
	return "/out/" + b.Key.Variable + "_" + b.Key.Label + "_" + b.Key.Period.String() + ".h5", nil
}

// --- fixtures ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSource(attr string) domain.GridSource {
	return domain.GridSource{
		AttrName:         attr,
		PathTemplate:     "/data/{year}/" + attr + "_{year}_{month2d}.nc",
		PeriodResolution: domain.Month,
		TimeResolution:   domain.Hour,
		DateTemplate:     "{year}-{month2d}-{day2d}T{hour2d}",
		TimeAttr:         "time",
		Lat:              domain.CoordinateSpec{Format: domain.DecreasingDegreeNorth, Resolution: 0.25, Decimals: 2, AttrName: "latitude"},
		Lon:              domain.CoordinateSpec{Format: domain.ZeroTo360DegreeEast, Resolution: 0.25, Decimals: 2, AttrName: "longitude"},
	}
}

func direct(name string) *domain.DirectVariable {
	return &domain.DirectVariable{Name: name, Source: testSource(name)}
}

func event(label string, num int, lat, lon float64, day, hour int) domain.Event {
	return domain.Event{
		Label:      label,
		LabelNum:   num,
		Lat:        lat,
		Lon:        lon,
		LonFormat:  domain.M180To180DegreeEast,
		Time:       [domain.NumTimeFields]int{2000, 10, day, hour},
		Resolution: domain.Hour,
	}
}

var testFrame = extraction.Frame{HalfLat: 2, HalfLon: 3}
