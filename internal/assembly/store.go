// Package assembly turns extraction blocks into normalized, split channels
// and stacks channels into multi-channel tensors.
package assembly

import (
	"context"
	"errors"

	"github.com/couchcryptid/nxtensor/internal/domain"
)

// ErrNotFound is wrapped by stores when a requested block, channel or split
// does not exist.
var ErrNotFound = errors.New("not found")

// BlockReader lists and loads extraction blocks.
type BlockReader interface {
	ListBlocks(ctx context.Context, variable string) ([]domain.BlockKey, error)
	ReadBlock(ctx context.Context, key domain.BlockKey) (domain.Block, error)
}

// ChannelWriter persists one split of a channel with the channel stats.
type ChannelWriter interface {
	WriteChannel(ctx context.Context, split string, ch domain.Channel, stats domain.Stats) (string, error)
}

// ChannelReader loads one split of a channel with the channel stats.
type ChannelReader interface {
	ReadChannel(ctx context.Context, variable, split string) (domain.Channel, domain.Stats, error)
}

// TensorWriter persists one split of a tensor.
type TensorWriter interface {
	WriteTensor(ctx context.Context, t domain.Tensor) (string, error)
}

// Store is everything assembly needs from persistence.
type Store interface {
	BlockReader
	ChannelWriter
	ChannelReader
	TensorWriter
}

// BlockProcessor rewrites a block after it is loaded and before it joins
// its channel. It must keep data rows and metadata rows aligned.
type BlockProcessor func(ctx context.Context, block domain.Block) (domain.Block, error)

// Output describes one persisted split.
type Output struct {
	Subject string
	Split   string
	Path    string
	Rows    int
}
