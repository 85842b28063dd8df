package assembly

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/couchcryptid/nxtensor/internal/domain"
	"github.com/couchcryptid/nxtensor/internal/observability"
)

// ChannelBuilder concatenates the blocks of a variable into a channel,
// normalizes it and persists it split by split.
type ChannelBuilder struct {
	blocks   BlockReader
	channels ChannelWriter
	splits   []SplitSpec
	process  BlockProcessor
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewChannelBuilder creates a ChannelBuilder. process may be nil.
func NewChannelBuilder(blocks BlockReader, channels ChannelWriter, splits []SplitSpec, process BlockProcessor, logger *slog.Logger, metrics *observability.Metrics) *ChannelBuilder {
	return &ChannelBuilder{
		blocks:   blocks,
		channels: channels,
		splits:   splits,
		process:  process,
		logger:   logger,
		metrics:  metrics,
	}
}

// Build assembles the channel of variable and writes one output per split.
func (b *ChannelBuilder) Build(ctx context.Context, variable string) ([]Output, error) {
	ch, err := b.Load(ctx, variable)
	if err != nil {
		b.metrics.AssemblyErrors.Inc()
		return nil, err
	}

	stats := ComputeStats(ch.Data)
	normalized := Normalize(ch.Data, stats)

	splits, err := StratifiedSplit(ch.Metadata, b.splits)
	if err != nil {
		return nil, err
	}

	out := make([]Output, 0, len(splits))
	for _, s := range splits {
		part := domain.Channel{
			Variable: variable,
			Data:     normalized.Take(s.Indexes),
			Metadata: ch.Metadata.Take(s.Indexes),
		}
		path, err := b.channels.WriteChannel(ctx, s.Name, part, stats)
		if err != nil {
			b.metrics.AssemblyErrors.Inc()
			return nil, &domain.AssemblyError{Subject: variable, Split: s.Name, Reason: "write channel", Err: err}
		}
		out = append(out, Output{Subject: variable, Split: s.Name, Path: path, Rows: len(s.Indexes)})
		b.metrics.ChannelsBuilt.Inc()
	}

	b.logger.Info("channel built",
		"variable", variable,
		"rows", ch.Metadata.Len(),
		"mean", stats.Mean,
		"std", stats.Std,
		"splits", len(out),
	)
	return out, nil
}

// Load reads every block of variable in period then label order, applies the
// block processor and concatenates the result. The channel is not
// normalized.
func (b *ChannelBuilder) Load(ctx context.Context, variable string) (domain.Channel, error) {
	keys, err := b.blocks.ListBlocks(ctx, variable)
	if err != nil {
		return domain.Channel{}, &domain.AssemblyError{Subject: variable, Reason: "list blocks", Err: err}
	}
	if len(keys) == 0 {
		return domain.Channel{}, &domain.AssemblyError{Subject: variable, Reason: "no blocks extracted"}
	}
	keys = slices.Clone(keys)
	slices.SortFunc(keys, domain.BlockKey.Compare)

	arrays := make([]domain.Array, 0, len(keys))
	var meta domain.Metadata
	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			return domain.Channel{}, err
		}
		block, err := b.blocks.ReadBlock(ctx, key)
		if err != nil {
			return domain.Channel{}, &domain.AssemblyError{Subject: variable, Reason: "read block " + key.Period.String() + "/" + key.Label, Err: err}
		}
		if b.process != nil {
			block, err = b.process(ctx, block)
			if err != nil {
				return domain.Channel{}, &domain.AssemblyError{Subject: variable, Reason: "process block " + key.Period.String() + "/" + key.Label, Err: err}
			}
		}
		if block.Data.Len() != block.Metadata.Len() {
			return domain.Channel{}, &domain.AssemblyError{
				Subject: variable,
				Reason:  fmt.Sprintf("block %s/%s has %d images but %d metadata rows", key.Period, key.Label, block.Data.Len(), block.Metadata.Len()),
			}
		}
		if i == 0 {
			meta.Resolution = block.Metadata.Resolution
		}
		arrays = append(arrays, block.Data)
		meta = meta.Append(block.Metadata)
	}

	data, err := domain.Concat(arrays...)
	if err != nil {
		return domain.Channel{}, &domain.AssemblyError{Subject: variable, Reason: "concatenate blocks", Err: err}
	}
	return domain.Channel{Variable: variable, Data: data, Metadata: meta}, nil
}
