package hdf5

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/nxtensor/internal/assembly"
	"github.com/couchcryptid/nxtensor/internal/domain"
	h5 "github.com/scigolib/hdf5"
)

const (
	dataPath  = "/dataset"
	shapePath = "/shape"
)

// Store persists artifacts of one extraction under a root directory. It
// implements extraction.BlockWriter and assembly.Store.
type Store struct {
	layout Layout
	logger *slog.Logger
}

// NewStore creates a store rooted at <root>/<extractionID>.
func NewStore(root, extractionID string, logger *slog.Logger) *Store {
	return &Store{layout: Layout{Root: filepath.Join(root, extractionID)}, logger: logger}
}

// Layout exposes the file naming of the store.
func (s *Store) Layout() Layout { return s.layout }

// WriteBlock persists the data and metadata of a block.
func (s *Store) WriteBlock(_ context.Context, b domain.Block) (string, error) {
	base := s.layout.BlockBase(b.Key)
	if err := s.writeArtifact(base, b.Data, b.Metadata); err != nil {
		return "", fmt.Errorf("write block %s: %w", base, err)
	}
	return base + arrayExt, nil
}

// ListBlocks returns every block key written for variable.
func (s *Store) ListBlocks(_ context.Context, variable string) ([]domain.BlockKey, error) {
	dir := s.layout.BlockDir(variable)
	periods, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list blocks of %s: %w", variable, err)
	}

	var keys []domain.BlockKey
	for _, pd := range periods {
		if !pd.IsDir() {
			continue
		}
		period, err := domain.ParsePeriod(pd.Name())
		if err != nil {
			s.logger.Warn("skipping unexpected directory", "path", filepath.Join(dir, pd.Name()))
			continue
		}
		files, err := os.ReadDir(filepath.Join(dir, pd.Name()))
		if err != nil {
			return nil, fmt.Errorf("list blocks of %s: %w", variable, err)
		}
		for _, f := range files {
			if label, ok := parseBlockFile(f.Name(), variable, period); ok {
				keys = append(keys, domain.BlockKey{Variable: variable, Label: label, Period: period})
			}
		}
	}
	return keys, nil
}

// ResetBlocks removes every block of variable, so a rerun into the same
// root only lists what it wrote itself.
func (s *Store) ResetBlocks(_ context.Context, variable string) error {
	dir := s.layout.BlockDir(variable)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("reset blocks of %s: %w", variable, err)
	}
	s.logger.Debug("blocks reset", "path", dir)
	return nil
}

// ReadBlock loads a block.
func (s *Store) ReadBlock(_ context.Context, key domain.BlockKey) (domain.Block, error) {
	data, meta, err := s.readArtifact(s.layout.BlockBase(key))
	if err != nil {
		return domain.Block{}, err
	}
	return domain.Block{Key: key, Data: data, Metadata: meta}, nil
}

// WriteChannel persists one split of a channel and the channel stats.
func (s *Store) WriteChannel(_ context.Context, split string, ch domain.Channel, stats domain.Stats) (string, error) {
	base := s.layout.ChannelBase(ch.Variable, split)
	if err := s.writeArtifact(base, ch.Data, ch.Metadata); err != nil {
		return "", fmt.Errorf("write channel %s: %w", base, err)
	}
	if err := writeFile(base+statsSuffix, func(f *os.File) error {
		return writeStats(f, []string{ch.Variable}, []domain.Stats{stats})
	}); err != nil {
		return "", fmt.Errorf("write channel stats %s: %w", base, err)
	}
	return base + arrayExt, nil
}

// ReadChannel loads one split of a channel and its stats.
func (s *Store) ReadChannel(_ context.Context, variable, split string) (domain.Channel, domain.Stats, error) {
	base := s.layout.ChannelBase(variable, split)
	data, meta, err := s.readArtifact(base)
	if err != nil {
		return domain.Channel{}, domain.Stats{}, err
	}
	f, err := os.Open(base + statsSuffix)
	if err != nil {
		return domain.Channel{}, domain.Stats{}, notFound(err)
	}
	defer f.Close()
	_, stats, err := readStats(f)
	if err != nil {
		return domain.Channel{}, domain.Stats{}, fmt.Errorf("%s: %w", base, err)
	}
	if len(stats) != 1 {
		return domain.Channel{}, domain.Stats{}, fmt.Errorf("%s: expected one stats row, got %d", base, len(stats))
	}
	return domain.Channel{Variable: variable, Data: data, Metadata: meta}, stats[0], nil
}

// WriteTensor persists one split of a tensor with one stats row per channel.
func (s *Store) WriteTensor(_ context.Context, t domain.Tensor) (string, error) {
	base := s.layout.TensorBase(t.ID, t.Split)
	if err := s.writeArtifact(base, t.Data, t.Metadata); err != nil {
		return "", fmt.Errorf("write tensor %s: %w", base, err)
	}
	if err := writeFile(base+statsSuffix, func(f *os.File) error {
		return writeStats(f, t.Channels, t.Stats)
	}); err != nil {
		return "", fmt.Errorf("write tensor stats %s: %w", base, err)
	}
	return base + arrayExt, nil
}

// ReadTensor loads one split of a tensor.
func (s *Store) ReadTensor(_ context.Context, id, split string) (domain.Tensor, error) {
	base := s.layout.TensorBase(id, split)
	data, meta, err := s.readArtifact(base)
	if err != nil {
		return domain.Tensor{}, err
	}
	f, err := os.Open(base + statsSuffix)
	if err != nil {
		return domain.Tensor{}, notFound(err)
	}
	defer f.Close()
	channels, stats, err := readStats(f)
	if err != nil {
		return domain.Tensor{}, fmt.Errorf("%s: %w", base, err)
	}
	return domain.Tensor{ID: id, Split: split, Channels: channels, Data: data, Metadata: meta, Stats: stats}, nil
}

// TensorSplits lists the splits written for a tensor.
func (s *Store) TensorSplits(id string) ([]string, error) {
	entries, err := os.ReadDir(s.layout.TensorDir(id))
	if err != nil {
		return nil, notFound(err)
	}
	prefix := id + domain.NameSeparator
	var splits []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, arrayExt) || !strings.HasPrefix(name, prefix) {
			continue
		}
		splits = append(splits, strings.TrimSuffix(strings.TrimPrefix(name, prefix), arrayExt))
	}
	return splits, nil
}

func (s *Store) writeArtifact(base string, data domain.Array, meta domain.Metadata) error {
	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return err
	}
	if err := writeArray(base+arrayExt, data); err != nil {
		return err
	}
	return writeFile(base+metadataExt, func(f *os.File) error {
		return writeMetadata(f, meta)
	})
}

func (s *Store) readArtifact(base string) (domain.Array, domain.Metadata, error) {
	data, err := readArray(base + arrayExt)
	if err != nil {
		return domain.Array{}, domain.Metadata{}, err
	}
	f, err := os.Open(base + metadataExt)
	if err != nil {
		return domain.Array{}, domain.Metadata{}, notFound(err)
	}
	defer f.Close()
	meta, err := readMetadata(f)
	if err != nil {
		return domain.Array{}, domain.Metadata{}, fmt.Errorf("%s: %w", base, err)
	}
	if data.Len() != meta.Len() {
		return domain.Array{}, domain.Metadata{}, fmt.Errorf("%s: %d images but %d metadata rows", base, data.Len(), meta.Len())
	}
	return data, meta, nil
}

// writeArray stores data in /dataset and its shape in /shape. Zero-sized
// arrays only get a shape.
func writeArray(path string, a domain.Array) error {
	fw, err := h5.CreateForWrite(path, h5.CreateTruncate)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	shape := make([]float64, len(a.Shape))
	for i, d := range a.Shape {
		shape[i] = float64(d)
	}
	ds, err := fw.CreateDataset(shapePath, h5.Float64, []uint64{uint64(len(shape))})
	if err != nil {
		fw.Close()
		return fmt.Errorf("%s: create %s: %w", path, shapePath, err)
	}
	if err := ds.Write(shape); err != nil {
		fw.Close()
		return fmt.Errorf("%s: write %s: %w", path, shapePath, err)
	}

	if len(a.Data) > 0 {
		dims := make([]uint64, len(a.Shape))
		for i, d := range a.Shape {
			dims[i] = uint64(d)
		}
		ds, err := fw.CreateDataset(dataPath, h5.Float64, dims)
		if err != nil {
			fw.Close()
			return fmt.Errorf("%s: create %s: %w", path, dataPath, err)
		}
		if err := ds.Write(a.Data); err != nil {
			fw.Close()
			return fmt.Errorf("%s: write %s: %w", path, dataPath, err)
		}
	}
	return fw.Close()
}

func readArray(path string) (domain.Array, error) {
	if _, err := os.Stat(path); err != nil {
		return domain.Array{}, notFound(err)
	}
	f, err := h5.Open(path)
	if err != nil {
		return domain.Array{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var (
		shape, data []float64
		readErr     error
	)
	f.Walk(func(p string, obj h5.Object) {
		ds, ok := obj.(*h5.Dataset)
		if !ok || readErr != nil {
			return
		}
		switch "/" + strings.TrimPrefix(p, "/") {
		case shapePath:
			shape, readErr = ds.Read()
		case dataPath:
			data, readErr = ds.Read()
		}
	})
	if readErr != nil {
		return domain.Array{}, fmt.Errorf("read %s: %w", path, readErr)
	}
	if shape == nil {
		return domain.Array{}, fmt.Errorf("read %s: missing %s", path, shapePath)
	}

	a := domain.Array{Shape: make([]int, len(shape)), Data: data}
	n := 1
	for i, d := range shape {
		a.Shape[i] = int(d)
		n *= int(d)
	}
	if a.Data == nil {
		a.Data = []float64{}
	}
	if len(a.Data) != n {
		return domain.Array{}, fmt.Errorf("read %s: %d values for shape %v", path, len(a.Data), a.Shape)
	}
	return a, nil
}

// writeFile creates path through a temporary file so readers never see a
// partial table.
func writeFile(path string, fill func(f *os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if err := fill(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func notFound(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", assembly.ErrNotFound, err)
	}
	return err
}
