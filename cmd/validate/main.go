// Command validate checks the integrity of a finished nxtensor run: every
// tensor split has aligned data and metadata, carries stats for each
// channel, and no extracted region appears in more than one split.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -output-dir ./output \
//	  -extraction-id tc_2000 \
//	  -tensor-id tc_env
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/couchcryptid/nxtensor/internal/adapter/hdf5"
	"github.com/couchcryptid/nxtensor/internal/domain"
)

// tensorReader is the part of the run store the checks need.
type tensorReader interface {
	TensorSplits(id string) ([]string, error)
	ReadTensor(ctx context.Context, id, split string) (domain.Tensor, error)
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	outputDir := flag.String("output-dir", "", "root directory of run outputs")
	extractionID := flag.String("extraction-id", "", "extraction id of the run")
	tensorID := flag.String("tensor-id", "", "tensor id; defaults to the extraction id")
	flag.Parse()

	if *outputDir == "" || *extractionID == "" {
		flag.Usage()
		os.Exit(1)
	}
	if *tensorID == "" {
		*tensorID = *extractionID
	}

	store := hdf5.NewStore(*outputDir, *extractionID, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if code := run(context.Background(), os.Stdout, store, *tensorID); code != 0 {
		os.Exit(code)
	}
}

func run(ctx context.Context, out io.Writer, store tensorReader, tensorID string) int {
	fmt.Fprintln(out, "=== nxtensor Run Validation ===")
	fmt.Fprintln(out)

	splits, err := store.TensorSplits(tensorID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: list splits of %s: %v\n", tensorID, err)
		return 1
	}
	if len(splits) == 0 {
		fmt.Fprintf(os.Stderr, "FATAL: tensor %s has no splits\n", tensorID)
		return 1
	}
	sort.Strings(splits)

	tensors := make([]domain.Tensor, 0, len(splits))
	for _, split := range splits {
		t, err := store.ReadTensor(ctx, tensorID, split)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: read %s/%s: %v\n", tensorID, split, err)
			return 1
		}
		tensors = append(tensors, t)
	}

	phases := []*phase{
		validateAlignment(tensors),
		validateStats(tensors),
		validateDisjoint(tensors),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	for _, t := range tensors {
		fmt.Fprintf(out, "%s/%s: shape %v, channels %s\n", t.ID, t.Split, t.Data.Shape, strings.Join(t.Channels, ","))
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// ── Phase 1: Alignment ──
// Data rows, metadata rows and channel count agree within each split, and
// every split has the same image shape.

func validateAlignment(tensors []domain.Tensor) *phase {
	p := &phase{name: "Phase 1: Alignment (data vs metadata)"}

	var image []int
	for _, t := range tensors {
		if len(t.Data.Shape) != 4 {
			p.errorf("%s: rank %d, want 4", t.Split, len(t.Data.Shape))
			continue
		}
		if t.Data.Len() != t.Metadata.Len() {
			p.errorf("%s: %d images but %d metadata rows", t.Split, t.Data.Len(), t.Metadata.Len())
		}
		if c := t.Data.Shape[3]; c != len(t.Channels) {
			p.errorf("%s: %d channels in data, %d named", t.Split, c, len(t.Channels))
		}
		if image == nil {
			image = t.Data.Shape[1:]
		} else if fmt.Sprint(image) != fmt.Sprint(t.Data.Shape[1:]) {
			p.errorf("%s: image shape %v, other splits have %v", t.Split, t.Data.Shape[1:], image)
		}
	}
	return p
}

// ── Phase 2: Stats ──
// Every channel of every split has finite normalization parameters, shared
// across splits.

func validateStats(tensors []domain.Tensor) *phase {
	p := &phase{name: "Phase 2: Stats (per channel)"}

	first := map[string]domain.Stats{}
	for _, t := range tensors {
		if len(t.Stats) != len(t.Channels) {
			p.errorf("%s: %d stats rows for %d channels", t.Split, len(t.Stats), len(t.Channels))
			continue
		}
		for i, ch := range t.Channels {
			s := t.Stats[i]
			if math.IsNaN(s.Mean) || math.IsInf(s.Mean, 0) || math.IsNaN(s.Std) || s.Std < 0 {
				p.errorf("%s/%s: invalid stats mean=%g std=%g", t.Split, ch, s.Mean, s.Std)
				continue
			}
			if prev, ok := first[ch]; ok && (prev.Mean != s.Mean || prev.Std != s.Std) {
				p.errorf("%s/%s: stats differ from other splits", t.Split, ch)
			}
			first[ch] = s
		}
	}
	return p
}

// ── Phase 3: Disjoint splits ──
// No (label, lat, lon, time) appears in two splits.

func validateDisjoint(tensors []domain.Tensor) *phase {
	p := &phase{name: "Phase 3: Disjoint splits (metadata)"}

	owner := map[string]string{}
	for _, t := range tensors {
		for i, row := range t.Metadata.Rows {
			key := rowKey(row)
			if prev, ok := owner[key]; ok && prev != t.Split {
				p.errorf("%s row %d: region %s already in %s", t.Split, i, key, prev)
				continue
			}
			owner[key] = t.Split
		}
	}
	return p
}

func rowKey(r domain.MetadataRow) string {
	parts := []string{
		strconv.Itoa(r.Label),
		strconv.FormatFloat(r.Lat, 'g', -1, 64),
		strconv.FormatFloat(r.Lon, 'g', -1, 64),
	}
	for _, v := range r.Time {
		parts = append(parts, strconv.Itoa(v))
	}
	return strings.Join(parts, "/")
}
