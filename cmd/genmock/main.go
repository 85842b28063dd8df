// Command genmock writes synthetic label tables for exercising a pipeline
// run without real event databases. Output is deterministic for a given
// seed: events fall on synoptic hours inside the requested box and months.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/mock/tc.csv \
//	  -n 200 -seed 7 -start 2000-10 -months 3 \
//	  -box 5,30,-80,-20
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand/v2"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/nxtensor/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
)

// generatedAt is stamped in the comment line so tables are byte-stable.
var generatedAt = time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC)

// options control one generated table.
type options struct {
	n      int
	seed   uint64
	start  time.Time
	months int
	latMin float64
	latMax float64
	lonMin float64
	lonMax float64
	sep    rune
}

func main() {
	if err := run(afero.NewOsFs()); err != nil {
		log.Fatal(err)
	}
}

func run(fs afero.Fs) error {
	out := flag.String("out", "", "output path of the label CSV")
	n := flag.Int("n", 100, "number of events")
	seed := flag.Uint64("seed", 1, "random seed")
	start := flag.String("start", "2000-01", "first month, YYYY-MM")
	months := flag.Int("months", 1, "number of months covered")
	box := flag.String("box", "-30,30,-180,180", "latMin,latMax,lonMin,lonMax in -180..180 degrees")
	sep := flag.String("sep", ",", "field separator")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	opts, err := parseOptions(*n, *seed, *start, *months, *box, *sep)
	if err != nil {
		return err
	}

	// Set a fixed clock for a reproducible header comment.
	domain.SetClock(clockwork.NewFakeClockAt(generatedAt))
	defer domain.SetClock(nil)

	if err := fs.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		return err
	}
	f, err := fs.Create(*out)
	if err != nil {
		return fmt.Errorf("create %s: %w", *out, err)
	}
	defer f.Close()

	if err := generate(f, opts); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}
	log.Printf("wrote %d events to %s (header_line: 1)", opts.n, *out)
	return nil
}

func parseOptions(n int, seed uint64, start string, months int, box, sep string) (options, error) {
	if n <= 0 || months <= 0 {
		return options{}, fmt.Errorf("-n and -months must be positive")
	}
	t, err := time.Parse("2006-01", start)
	if err != nil {
		return options{}, fmt.Errorf("invalid -start %q: %w", start, err)
	}
	parts := strings.Split(box, ",")
	if len(parts) != 4 {
		return options{}, fmt.Errorf("invalid -box %q: want 4 values", box)
	}
	var b [4]float64
	for i, p := range parts {
		if b[i], err = strconv.ParseFloat(strings.TrimSpace(p), 64); err != nil {
			return options{}, fmt.Errorf("invalid -box %q: %w", box, err)
		}
	}
	if b[0] >= b[1] || b[2] >= b[3] || b[0] < -90 || b[1] > 90 || b[2] < -180 || b[3] > 180 {
		return options{}, fmt.Errorf("invalid -box %q", box)
	}
	if len([]rune(sep)) != 1 {
		return options{}, fmt.Errorf("invalid -sep %q: want one character", sep)
	}
	return options{
		n: n, seed: seed, start: t, months: months,
		latMin: b[0], latMax: b[1], lonMin: b[2], lonMax: b[3],
		sep: []rune(sep)[0],
	}, nil
}

type event struct {
	at  time.Time
	lat float64
	lon float64
}

// generate writes a comment line, a header and opts.n events in time order.
func generate(w io.Writer, opts options) error {
	rng := rand.New(rand.NewPCG(opts.seed, opts.seed))
	end := opts.start.AddDate(0, opts.months, 0)
	synoptic := int(end.Sub(opts.start).Hours()) / 6

	events := make([]event, opts.n)
	for i := range events {
		events[i] = event{
			at:  opts.start.Add(time.Duration(rng.IntN(synoptic)*6) * time.Hour),
			lat: round2(opts.latMin + rng.Float64()*(opts.latMax-opts.latMin)),
			lon: round2(opts.lonMin + rng.Float64()*(opts.lonMax-opts.lonMin)),
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].at.Before(events[j].at) })

	if _, err := fmt.Fprintf(w, "# genmock seed=%d generated=%s\n", opts.seed, domain.Now().Format(time.RFC3339)); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	cw.Comma = opts.sep
	if err := cw.Write([]string{"year", "month", "day", "hour", "lat", "lon"}); err != nil {
		return err
	}
	for _, e := range events {
		rec := []string{
			strconv.Itoa(e.at.Year()),
			strconv.Itoa(int(e.at.Month())),
			strconv.Itoa(e.at.Day()),
			strconv.Itoa(e.at.Hour()),
			strconv.FormatFloat(e.lat, 'f', -1, 64),
			strconv.FormatFloat(e.lon, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
