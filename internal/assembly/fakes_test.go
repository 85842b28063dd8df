package assembly_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/couchcryptid/nxtensor/internal/assembly"
	"github.com/couchcryptid/nxtensor/internal/domain"
)

// memStore keeps blocks, channels and tensors in memory.
type memStore struct {
	mu       sync.Mutex
	blocks   map[string][]domain.Block
	channels map[string]memChannel
	tensors  map[string]domain.Tensor
	writeErr error
}

type memChannel struct {
	ch    domain.Channel
	stats domain.Stats
}

func newMemStore() *memStore {
	return &memStore{
		blocks:   map[string][]domain.Block{},
		channels: map[string]memChannel{},
		tensors:  map[string]domain.Tensor{},
	}
}

func (s *memStore) addBlock(b domain.Block) {
	s.blocks[b.Key.Variable] = append(s.blocks[b.Key.Variable], b)
}

func (s *memStore) ListBlocks(_ context.Context, variable string) ([]domain.BlockKey, error) {
	var keys []domain.BlockKey
	for _, b := range s.blocks[variable] {
		keys = append(keys, b.Key)
	}
	return keys, nil
}

func (s *memStore) ReadBlock(_ context.Context, key domain.BlockKey) (domain.Block, error) {
	for _, b := range s.blocks[key.Variable] {
		if b.Key.Label == key.Label && b.Key.Period.Compare(key.Period) == 0 {
			return b, nil
		}
	}
	return domain.Block{}, fmt.Errorf("block %v: %w", key, assembly.ErrNotFound)
}

func (s *memStore) WriteChannel(_ context.Context, split string, ch domain.Channel, stats domain.Stats) (string, error) {
	if s.writeErr != nil {
		return "", s.writeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	path := "channels/" + ch.Variable + "/" + ch.Variable + "_" + split + ".h5"
	s.channels[ch.Variable+"/"+split] = memChannel{ch: ch, stats: stats}
	return path, nil
}

func (s *memStore) ReadChannel(_ context.Context, variable, split string) (domain.Channel, domain.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.channels[variable+"/"+split]
	if !ok {
		return domain.Channel{}, domain.Stats{}, fmt.Errorf("channel %s/%s: %w", variable, split, assembly.ErrNotFound)
	}
	return c.ch, c.stats, nil
}

func (s *memStore) WriteTensor(_ context.Context, t domain.Tensor) (string, error) {
	if s.writeErr != nil {
		return "", s.writeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tensors[t.ID+"/"+t.Split] = t
	return "tensors/" + t.ID + "/" + t.ID + "_" + t.Split + ".h5", nil
}

// --- fixtures ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// rows builds metadata for n events of one label; lat encodes the row index
// offset by base.
func rows(label, n int, base float64) domain.Metadata {
	m := domain.Metadata{Resolution: domain.Hour}
	for i := range n {
		m.Rows = append(m.Rows, domain.MetadataRow{
			Label: label,
			Lat:   base + float64(i),
			Lon:   -48,
			Time:  []int{2000, 10, 1, i % 24},
		})
	}
	return m
}

// filled returns n images of shape (2, 3) where image i holds start+i.
func filled(n int, start float64) domain.Array {
	a := domain.NewArray(n, 2, 3)
	for i := range n {
		row := a.Row(i)
		for j := range row {
			row[j] = start + float64(i)
		}
	}
	return a
}

func testBlock(variable, label string, num int, p domain.Period, n int, start float64) domain.Block {
	return domain.Block{
		Key:      domain.BlockKey{Variable: variable, Label: label, Period: p},
		Data:     filled(n, start),
		Metadata: rows(num, n, start),
	}
}
