package extraction

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/couchcryptid/nxtensor/internal/domain"
	"github.com/couchcryptid/nxtensor/internal/observability"
	"golang.org/x/sync/errgroup"
)

// Written describes one persisted block.
type Written struct {
	Key  domain.BlockKey
	Path string
	Rows int
}

// Orchestrator extracts one variable over a sequence of work units. Each
// unit opens the datasets of the variable once for its period and closes
// them when the unit ends.
type Orchestrator struct {
	opener  Opener
	writer  BlockWriter
	frame   Frame
	workers int
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewOrchestrator creates an Orchestrator running at most workers units at
// a time.
func NewOrchestrator(opener Opener, writer BlockWriter, frame Frame, workers int, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		opener:  opener,
		writer:  writer,
		frame:   frame,
		workers: workers,
		logger:  logger,
		metrics: metrics,
	}
}

// Extract processes every unit and returns the written blocks in unit
// order. The first failing unit cancels the others and fails the variable.
func (o *Orchestrator) Extract(ctx context.Context, v domain.Variable, units []domain.WorkUnit) ([]Written, error) {
	if len(units) == 0 {
		return nil, nil
	}
	workers := min(o.workers, len(units))
	o.logger.Info("extraction started", "variable", v.ID(), "units", len(units), "workers", workers)

	results := make([][]Written, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, unit := range units {
		g.Go(func() error {
			written, err := o.processUnit(gctx, v, unit)
			results[i] = written
			return err
		})
	}
	if err := g.Wait(); err != nil {
		o.metrics.ExtractionErrors.Inc()
		o.logger.Error("extraction failed", "variable", v.ID(), "error", err)
		return nil, err
	}

	var out []Written
	for _, r := range results {
		out = append(out, r...)
	}
	o.logger.Info("extraction finished", "variable", v.ID(), "blocks", len(out))
	return out, nil
}

func (o *Orchestrator) processUnit(ctx context.Context, v domain.Variable, unit domain.WorkUnit) ([]Written, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	datasets, closeAll, err := o.openAll(ctx, v, unit.Period)
	if err != nil {
		return nil, err
	}
	defer closeAll()

	resolver := NewResolver(datasets, o.frame)
	timeRes := domain.TimeResolutionOf(v)
	written := make([]Written, 0, len(unit.Blocks))

	for _, mb := range unit.Blocks {
		regions := make([]domain.Array, 0, len(mb.Events))
		meta := domain.Metadata{Resolution: timeRes, Rows: make([]domain.MetadataRow, 0, len(mb.Events))}

		for _, ev := range mb.Events {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			region, err := resolver.Resolve(ctx, v, ev)
			if err != nil {
				return nil, annotate(err, v.ID(), unit.Period, mb.Label, ev)
			}
			regions = append(regions, region)
			meta.Rows = append(meta.Rows, domain.RowFor(ev, timeRes))
		}

		data, err := domain.Stack(regions)
		if err != nil {
			return nil, &domain.ExtractionError{Variable: v.ID(), Period: unit.Period.String(), Label: mb.Label, Reason: "stack regions", Err: err}
		}
		block := domain.Block{
			Key:      domain.BlockKey{Variable: v.ID(), Label: mb.Label, Period: unit.Period},
			Data:     data,
			Metadata: meta,
		}
		path, err := o.writer.WriteBlock(ctx, block)
		if err != nil {
			return nil, &domain.ExtractionError{Variable: v.ID(), Period: unit.Period.String(), Label: mb.Label, Reason: "write block", Err: err}
		}

		written = append(written, Written{Key: block.Key, Path: path, Rows: meta.Len()})
		o.metrics.EventsExtracted.Add(float64(meta.Len()))
		o.metrics.BlocksWritten.Inc()
	}

	o.metrics.UnitsProcessed.Inc()
	o.metrics.UnitDuration.Observe(time.Since(start).Seconds())
	o.logger.Debug("unit extracted",
		"variable", v.ID(),
		"period", unit.Period.String(),
		"labels", len(unit.Blocks),
		"events", unit.EventCount(),
	)
	return written, nil
}

// openAll opens one dataset per leaf of v. The returned func closes every
// dataset opened so far and must be called on every exit path.
func (o *Orchestrator) openAll(ctx context.Context, v domain.Variable, period domain.Period) (map[string]Dataset, func(), error) {
	leaves := domain.Leaves(v)
	datasets := make(map[string]Dataset, len(leaves))
	closeAll := func() {
		for id, ds := range datasets {
			if err := ds.Close(); err != nil {
				o.logger.Warn("close dataset failed", "variable", id, "period", period.String(), "error", err)
			}
		}
	}

	for _, leaf := range leaves {
		ds, err := o.opener.Open(ctx, leaf, period)
		if err != nil {
			closeAll()
			return nil, nil, &domain.ExtractionError{Variable: leaf.ID(), Period: period.String(), Reason: "open dataset", Err: err}
		}
		datasets[leaf.ID()] = ds
		o.metrics.DatasetOpens.WithLabelValues(leaf.ID()).Inc()
	}
	return datasets, closeAll, nil
}

// annotate attaches the work-unit coordinates to an event failure.
func annotate(err error, variable string, period domain.Period, label string, ev domain.Event) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var extErr *domain.ExtractionError
	if errors.As(err, &extErr) {
		if extErr.Period == "" {
			extErr.Period = period.String()
		}
		if extErr.Label == "" {
			extErr.Label = label
		}
		if extErr.Event == nil {
			extErr.Event = &ev
		}
		return err
	}
	return &domain.ExtractionError{Variable: variable, Period: period.String(), Label: label, Event: &ev, Err: err}
}
