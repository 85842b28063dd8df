package assembly

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"

	"github.com/couchcryptid/nxtensor/internal/domain"
	"github.com/couchcryptid/nxtensor/internal/observability"
	"golang.org/x/sync/errgroup"
)

// StackRequest describes a tensor: its id, the channel order and whether
// rows are shuffled.
type StackRequest struct {
	TensorID  string
	Variables []string
	Shuffle   bool
	Seed      uint64
}

// Stacker stacks the channels of a split along a trailing axis.
type Stacker struct {
	channels ChannelReader
	tensors  TensorWriter
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewStacker creates a Stacker.
func NewStacker(channels ChannelReader, tensors TensorWriter, logger *slog.Logger, metrics *observability.Metrics) *Stacker {
	return &Stacker{channels: channels, tensors: tensors, logger: logger, metrics: metrics}
}

// StackAll stacks every split with at most workers splits in flight. The
// first failure cancels the rest.
func (s *Stacker) StackAll(ctx context.Context, req StackRequest, splits []string, workers int) ([]Output, error) {
	out := make([]Output, len(splits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(workers, len(splits))))
	for i, split := range splits {
		g.Go(func() error {
			o, err := s.Stack(gctx, req, split)
			out[i] = o
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Stack builds and persists the tensor of one split. Nothing is written
// unless every channel is present and aligned.
func (s *Stacker) Stack(ctx context.Context, req StackRequest, split string) (Output, error) {
	t, err := s.Assemble(ctx, req, split)
	if err != nil {
		s.metrics.AssemblyErrors.Inc()
		return Output{}, err
	}
	path, err := s.tensors.WriteTensor(ctx, t)
	if err != nil {
		s.metrics.AssemblyErrors.Inc()
		return Output{}, &domain.AssemblyError{Subject: req.TensorID, Split: split, Reason: "write tensor", Err: err}
	}
	s.metrics.TensorsStacked.Inc()
	s.logger.Info("tensor stacked",
		"tensor", req.TensorID,
		"split", split,
		"rows", t.Metadata.Len(),
		"channels", len(req.Variables),
		"shuffled", req.Shuffle,
	)
	return Output{Subject: req.TensorID, Split: split, Path: path, Rows: t.Metadata.Len()}, nil
}

// Assemble loads and stacks the channels of one split without persisting.
func (s *Stacker) Assemble(ctx context.Context, req StackRequest, split string) (domain.Tensor, error) {
	if len(req.Variables) == 0 {
		return domain.Tensor{}, &domain.AssemblyError{Subject: req.TensorID, Split: split, Reason: "no channels requested"}
	}

	channels := make([]domain.Channel, len(req.Variables))
	stats := make([]domain.Stats, len(req.Variables))
	for i, v := range req.Variables {
		ch, st, err := s.channels.ReadChannel(ctx, v, split)
		if err != nil {
			reason := "read channel " + v
			if errors.Is(err, ErrNotFound) {
				reason = "missing split for channel " + v
			}
			return domain.Tensor{}, &domain.AssemblyError{Subject: req.TensorID, Split: split, Reason: reason, Err: err}
		}
		channels[i], stats[i] = ch, st
	}

	if err := checkAligned(req, split, channels); err != nil {
		return domain.Tensor{}, err
	}

	data := stackTrailing(channels)
	meta := channels[0].Metadata
	if req.Shuffle {
		perm := rand.New(rand.NewPCG(req.Seed, req.Seed)).Perm(meta.Len())
		data = data.Take(perm)
		meta = meta.Take(perm)
	}

	return domain.Tensor{
		ID:       req.TensorID,
		Split:    split,
		Channels: slices.Clone(req.Variables),
		Data:     data,
		Metadata: meta,
		Stats:    stats,
	}, nil
}

func checkAligned(req StackRequest, split string, channels []domain.Channel) error {
	first := channels[0]
	for i, ch := range channels[1:] {
		name := req.Variables[i+1]
		if ch.Data.Len() != first.Data.Len() || ch.Metadata.Len() != first.Metadata.Len() {
			return &domain.AssemblyError{
				Subject: req.TensorID,
				Split:   split,
				Reason: fmt.Sprintf("row count mismatch: %s has %d rows, %s has %d",
					req.Variables[0], first.Data.Len(), name, ch.Data.Len()),
			}
		}
		if !slices.Equal(ch.Data.Shape[1:], first.Data.Shape[1:]) {
			return &domain.AssemblyError{
				Subject: req.TensorID,
				Split:   split,
				Reason:  fmt.Sprintf("image shape mismatch: %s is %v, %s is %v", req.Variables[0], first.Data.Shape[1:], name, ch.Data.Shape[1:]),
			}
		}
		if !ch.Metadata.Equal(first.Metadata) {
			return &domain.AssemblyError{
				Subject: req.TensorID,
				Split:   split,
				Reason:  fmt.Sprintf("metadata of %s differs from %s", name, req.Variables[0]),
			}
		}
	}
	return nil
}

// stackTrailing interleaves aligned channels into (n, ..., channels).
func stackTrailing(channels []domain.Channel) domain.Array {
	c := len(channels)
	shape := append(slices.Clone(channels[0].Data.Shape), c)
	out := domain.NewArray(shape...)
	for k, ch := range channels {
		for i, v := range ch.Data.Data {
			out.Data[i*c+k] = v
		}
	}
	return out
}
