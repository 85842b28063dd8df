// Package pipeline runs the three phases of an extraction: label
// preprocessing, per-variable extraction and tensor assembly.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/nxtensor/internal/assembly"
	"github.com/couchcryptid/nxtensor/internal/config"
	"github.com/couchcryptid/nxtensor/internal/domain"
	"github.com/couchcryptid/nxtensor/internal/extraction"
	"github.com/couchcryptid/nxtensor/internal/observability"
	"github.com/couchcryptid/nxtensor/internal/partition"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Phase names used in logs, metrics and status.
const (
	PhaseIdle       = "idle"
	PhasePreprocess = "preprocess"
	PhaseExtract    = "extract"
	PhaseAssemble   = "assemble"
	PhaseDone       = "done"
	PhaseFailed     = "failed"
)

// TableLoader reads the raw event table of a label.
type TableLoader interface {
	Load(ctx context.Context, label domain.Label) (*domain.Table, error)
}

// Store persists blocks, channels and tensors.
type Store interface {
	extraction.BlockWriter
	assembly.Store
	// ResetBlocks drops blocks of variable left by an earlier run.
	ResetBlocks(ctx context.Context, variable string) error
}

// Notifier announces persisted artifacts.
type Notifier interface {
	Publish(ctx context.Context, artifacts []domain.Artifact) error
}

// Deps are the adapters a Pipeline runs against.
type Deps struct {
	Labels   TableLoader
	Opener   extraction.Opener
	Store    Store
	Notifier Notifier
	// Process is an optional hook applied to every block before channel
	// assembly.
	Process assembly.BlockProcessor
}

// Units maps a period resolution to the work units partitioned at it.
type Units map[domain.TimeResolution][]domain.WorkUnit

// Status is a snapshot of a run for the status endpoint.
type Status struct {
	RunID        string    `json:"run_id"`
	ExtractionID string    `json:"extraction_id"`
	Phase        string    `json:"phase"`
	StartedAt    time.Time `json:"started_at,omitzero"`
	Units        int       `json:"units"`
	Events       int       `json:"events"`
	Artifacts    int       `json:"artifacts"`
	Error        string    `json:"error,omitempty"`

	// EventsByGranularity counts partitioned events per period resolution.
	EventsByGranularity map[string]int `json:"events_by_granularity,omitempty"`
}

// Pipeline orchestrates one extraction run.
type Pipeline struct {
	ex       *config.Extraction
	deps     Deps
	splits   []assembly.SplitSpec
	logger   *slog.Logger
	metrics  *observability.Metrics
	runID    string
	ready    atomic.Bool
	mu       sync.Mutex
	status   Status
	retryMax int
}

// New validates the assembly settings of ex and creates a Pipeline. Invalid
// splits are reported here, before any extraction work.
func New(ex *config.Extraction, deps Deps, logger *slog.Logger, metrics *observability.Metrics) (*Pipeline, error) {
	splits := make([]assembly.SplitSpec, len(ex.Splits))
	for i, s := range ex.Splits {
		splits[i] = assembly.SplitSpec{Name: s.Name, Ratio: s.Ratio}
	}
	if err := assembly.ValidateSplits(splits); err != nil {
		return nil, err
	}
	if deps.Notifier == nil {
		return nil, errors.New("pipeline: notifier is required")
	}

	runID := uuid.NewString()
	return &Pipeline{
		ex:       ex,
		deps:     deps,
		splits:   splits,
		logger:   logger.With("run_id", runID, "extraction_id", ex.ID),
		metrics:  metrics,
		runID:    runID,
		status:   Status{RunID: runID, ExtractionID: ex.ID, Phase: PhaseIdle},
		retryMax: 3,
	}, nil
}

// RunID identifies this run in logs and notifications.
func (p *Pipeline) RunID() string { return p.runID }

// CheckReadiness returns nil once preprocessing has succeeded and the run
// has not failed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not finished preprocessing yet")
	}
	return nil
}

// Status returns a snapshot of the run.
func (p *Pipeline) Status() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Run executes every phase in order.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "channels", p.ex.Tensor.Channels, "labels", len(p.ex.Labels))
	if p.ex.Tensor.SeedDrawn {
		p.logger.Info("no shuffle seed configured, drew one", "seed", p.ex.Tensor.Seed)
	}
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	p.update(func(s *Status) { s.StartedAt = domain.Now() })

	units, err := p.Preprocess(ctx)
	if err != nil {
		return p.fail(err)
	}
	if err := p.Extract(ctx, units); err != nil {
		return p.fail(err)
	}
	if err := p.Assemble(ctx); err != nil {
		return p.fail(err)
	}

	p.update(func(s *Status) { s.Phase = PhaseDone })
	p.logger.Info("pipeline finished")
	return nil
}

// Preprocess loads every label table once and partitions it at each
// period resolution used by the tensor channels.
func (p *Pipeline) Preprocess(ctx context.Context) (Units, error) {
	defer p.phase(PhasePreprocess)()

	granularities := make(map[domain.TimeResolution]bool)
	for _, v := range p.ex.Channels() {
		g, err := domain.PeriodResolution(v)
		if err != nil {
			return nil, err
		}
		granularities[g] = true
	}

	tables := make(map[string]*domain.Table, len(p.ex.Labels))
	for _, label := range p.ex.Labels {
		table, err := p.deps.Labels.Load(ctx, label)
		if err != nil {
			return nil, fmt.Errorf("load label %s: %w", label.ID, err)
		}
		tables[label.ID] = table
		p.logger.Debug("label table loaded", "label", label.ID, "rows", len(table.Rows))
	}

	units := make(Units, len(granularities))
	events := make(map[string]int, len(granularities))
	for g := range granularities {
		perLabel := make(map[string]map[string]domain.MetadataBlock, len(p.ex.Labels))
		for _, label := range p.ex.Labels {
			blocks, err := partition.Partition(tables[label.ID], label, g)
			if err != nil {
				return nil, err
			}
			perLabel[label.ID] = blocks
		}
		units[g] = partition.Merge(perLabel)

		summary := partition.Count(units[g])
		events[g.String()] = summary.Events
		p.logger.Info("labels partitioned",
			"granularity", g.String(),
			"units", summary.Units,
			"events", summary.Events,
			"by_label", summary.ByLabel,
		)
	}

	p.update(func(s *Status) {
		s.Events = 0
		s.EventsByGranularity = events
		for _, n := range events {
			s.Events = max(s.Events, n)
		}
		for _, u := range units {
			s.Units += len(u)
		}
	})
	p.ready.Store(true)
	return units, nil
}

// Extract runs one orchestrator per tensor channel, at most
// Workers.Variables at a time. The first failing variable cancels the rest.
func (p *Pipeline) Extract(ctx context.Context, units Units) error {
	defer p.phase(PhaseExtract)()

	frame := extraction.Frame{HalfLat: p.ex.Frame.HalfLat, HalfLon: p.ex.Frame.HalfLon}
	orch := extraction.NewOrchestrator(p.deps.Opener, p.deps.Store, frame, p.ex.Workers.Units, p.logger, p.metrics)

	channels := p.ex.Channels()
	written := make([][]extraction.Written, len(channels))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(p.ex.Workers.Variables, len(channels))))
	for i, v := range channels {
		g.Go(func() error {
			res, err := domain.PeriodResolution(v)
			if err != nil {
				return err
			}
			if err := p.deps.Store.ResetBlocks(gctx, v.ID()); err != nil {
				return err
			}
			out, err := orch.Extract(gctx, v, units[res])
			written[i] = out
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var artifacts []domain.Artifact
	for _, out := range written {
		for _, w := range out {
			artifacts = append(artifacts, domain.Artifact{
				Kind:    domain.ArtifactBlock,
				Subject: w.Key.Variable,
				Label:   w.Key.Label,
				Period:  w.Key.Period.String(),
				Path:    w.Path,
				Rows:    w.Rows,
			})
		}
	}
	return p.notify(ctx, artifacts)
}

// Assemble builds the channel of every tensor variable, then stacks the
// channels of every split into the tensor.
func (p *Pipeline) Assemble(ctx context.Context) error {
	defer p.phase(PhaseAssemble)()

	builder := assembly.NewChannelBuilder(p.deps.Store, p.deps.Store, p.splits, p.deps.Process, p.logger, p.metrics)
	names := p.ex.Tensor.Channels

	built := make([][]assembly.Output, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(p.ex.Workers.Channels, len(names))))
	for i, name := range names {
		g.Go(func() error {
			out, err := builder.Build(gctx, name)
			built[i] = out
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var artifacts []domain.Artifact
	for _, outs := range built {
		artifacts = append(artifacts, p.artifacts(domain.ArtifactChannel, outs)...)
	}
	if err := p.notify(ctx, artifacts); err != nil {
		return err
	}

	stacker := assembly.NewStacker(p.deps.Store, p.deps.Store, p.logger, p.metrics)
	req := assembly.StackRequest{
		TensorID:  p.ex.Tensor.ID,
		Variables: names,
		Shuffle:   p.ex.Tensor.Shuffle,
		Seed:      p.ex.Tensor.Seed,
	}
	tensors, err := stacker.StackAll(ctx, req, assembly.SplitNames(p.splits), p.ex.Workers.Splits)
	if err != nil {
		return err
	}
	return p.notify(ctx, p.artifacts(domain.ArtifactTensor, tensors))
}

func (p *Pipeline) artifacts(kind domain.ArtifactKind, outs []assembly.Output) []domain.Artifact {
	out := make([]domain.Artifact, len(outs))
	for i, o := range outs {
		out[i] = domain.Artifact{Kind: kind, Subject: o.Subject, Split: o.Split, Path: o.Path, Rows: o.Rows}
	}
	return out
}

// notify stamps artifacts with the run id and time, then publishes them,
// retrying with exponential backoff before giving up.
func (p *Pipeline) notify(ctx context.Context, artifacts []domain.Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}
	now := domain.Now()
	for i := range artifacts {
		artifacts[i].RunID = p.runID
		artifacts[i].ProducedAt = now
	}

	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second
	var err error
	for attempt := 1; attempt <= p.retryMax; attempt++ {
		if err = p.deps.Notifier.Publish(ctx, artifacts); err == nil {
			p.update(func(s *Status) { s.Artifacts += len(artifacts) })
			return nil
		}
		p.logger.Warn("publish artifacts failed", "error", err, "attempt", attempt, "artifacts", len(artifacts))
		if attempt == p.retryMax || !sleepWithContext(ctx, backoff) {
			break
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
	return fmt.Errorf("notify %d artifacts: %w", len(artifacts), err)
}

// phase records the current phase and returns a func observing its
// duration.
func (p *Pipeline) phase(name string) func() {
	start := time.Now()
	p.update(func(s *Status) { s.Phase = name })
	p.logger.Info("phase started", "phase", name)
	return func() {
		p.metrics.PhaseDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		p.logger.Info("phase finished", "phase", name, "duration", time.Since(start))
	}
}

func (p *Pipeline) fail(err error) error {
	p.ready.Store(false)
	p.update(func(s *Status) {
		s.Phase = PhaseFailed
		s.Error = err.Error()
	})
	p.logger.Error("pipeline failed", "error", err)
	return err
}

func (p *Pipeline) update(f func(*Status)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f(&p.status)
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
