package assembly_test

import (
	"context"
	"errors"
	"testing"

	"github.com/couchcryptid/nxtensor/internal/assembly"
	"github.com/couchcryptid/nxtensor/internal/domain"
	"github.com/couchcryptid/nxtensor/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putChannel(t *testing.T, s *memStore, variable, split string, data domain.Array, meta domain.Metadata, mean float64) {
	t.Helper()
	_, err := s.WriteChannel(context.Background(), split, domain.Channel{Variable: variable, Data: data, Metadata: meta}, domain.Stats{Mean: mean, Std: 1})
	require.NoError(t, err)
}

func newStacker(s *memStore) *assembly.Stacker {
	return assembly.NewStacker(s, s, testLogger(), observability.NewMetricsForTesting())
}

func TestStacker_Stack_TrailingAxis(t *testing.T) {
	store := newMemStore()
	meta := rows(1, 4, 0)
	putChannel(t, store, "msl", "train", filled(4, 0), meta, 1)
	putChannel(t, store, "tcwv", "train", filled(4, 100), meta, 2)

	req := assembly.StackRequest{TensorID: "tc_env", Variables: []string{"msl", "tcwv"}}
	out, err := newStacker(store).Stack(context.Background(), req, "train")
	require.NoError(t, err)
	assert.Equal(t, 4, out.Rows)
	assert.Equal(t, "tensors/tc_env/tc_env_train.h5", out.Path)

	tensor := store.tensors["tc_env/train"]
	assert.Equal(t, []int{4, 2, 3, 2}, tensor.Data.Shape)
	assert.Equal(t, []string{"msl", "tcwv"}, tensor.Channels)
	require.Len(t, tensor.Stats, 2)
	assert.Equal(t, 2.0, tensor.Stats[1].Mean)

	// image 2, cell 0: channel values interleaved last
	row := tensor.Data.Row(2)
	assert.Equal(t, 2.0, row[0])
	assert.Equal(t, 102.0, row[1])
	assert.True(t, tensor.Metadata.Equal(meta))
}

func TestStacker_Stack_RowCountMismatch(t *testing.T) {
	store := newMemStore()
	putChannel(t, store, "msl", "train", filled(4, 0), rows(1, 4, 0), 0)
	putChannel(t, store, "tcwv", "train", filled(3, 0), rows(1, 3, 0), 0)

	_, err := newStacker(store).Stack(context.Background(), assembly.StackRequest{TensorID: "t", Variables: []string{"msl", "tcwv"}}, "train")

	var asmErr *domain.AssemblyError
	require.True(t, errors.As(err, &asmErr))
	assert.Equal(t, "train", asmErr.Split)
	assert.Contains(t, asmErr.Reason, "row count mismatch")
	assert.Empty(t, store.tensors, "nothing written on mismatch")
}

func TestStacker_Stack_MetadataMismatch(t *testing.T) {
	store := newMemStore()
	putChannel(t, store, "msl", "train", filled(3, 0), rows(1, 3, 0), 0)
	putChannel(t, store, "tcwv", "train", filled(3, 0), rows(1, 3, 10), 0)

	_, err := newStacker(store).Stack(context.Background(), assembly.StackRequest{TensorID: "t", Variables: []string{"msl", "tcwv"}}, "train")

	var asmErr *domain.AssemblyError
	require.True(t, errors.As(err, &asmErr))
	assert.Contains(t, asmErr.Reason, "metadata")
	assert.Empty(t, store.tensors)
}

func TestStacker_Stack_MissingSplit(t *testing.T) {
	store := newMemStore()
	putChannel(t, store, "msl", "train", filled(3, 0), rows(1, 3, 0), 0)

	_, err := newStacker(store).Stack(context.Background(), assembly.StackRequest{TensorID: "t", Variables: []string{"msl"}}, "test")

	var asmErr *domain.AssemblyError
	require.True(t, errors.As(err, &asmErr))
	assert.ErrorIs(t, err, assembly.ErrNotFound)
	assert.Contains(t, asmErr.Reason, "missing split")
}

func TestStacker_Stack_NoVariables(t *testing.T) {
	_, err := newStacker(newMemStore()).Stack(context.Background(), assembly.StackRequest{TensorID: "t"}, "train")
	var asmErr *domain.AssemblyError
	assert.True(t, errors.As(err, &asmErr))
}

func TestStacker_Stack_ShuffleKeepsRowsPaired(t *testing.T) {
	store := newMemStore()
	meta := rows(1, 50, 0)
	putChannel(t, store, "msl", "train", filled(50, 0), meta, 0)
	putChannel(t, store, "tcwv", "train", filled(50, 1000), meta, 0)

	req := assembly.StackRequest{TensorID: "t", Variables: []string{"msl", "tcwv"}, Shuffle: true, Seed: 42}
	s := newStacker(store)
	tensor, err := s.Assemble(context.Background(), req, "train")
	require.NoError(t, err)

	moved := 0
	for i := range tensor.Metadata.Len() {
		lat := tensor.Metadata.Rows[i].Lat
		row := tensor.Data.Row(i)
		assert.Equal(t, lat, row[0], "data and metadata permuted together")
		assert.Equal(t, lat+1000, row[1])
		if lat != float64(i) {
			moved++
		}
	}
	assert.Positive(t, moved)

	again, err := s.Assemble(context.Background(), req, "train")
	require.NoError(t, err)
	assert.Equal(t, tensor.Data.Data, again.Data.Data, "same seed, same permutation")
}

func TestStacker_StackAll(t *testing.T) {
	store := newMemStore()
	for _, split := range []string{"train", "val", "test"} {
		putChannel(t, store, "msl", split, filled(3, 0), rows(1, 3, 0), 0)
		putChannel(t, store, "tcwv", split, filled(3, 0), rows(1, 3, 0), 0)
	}

	out, err := newStacker(store).StackAll(context.Background(),
		assembly.StackRequest{TensorID: "t", Variables: []string{"msl", "tcwv"}},
		[]string{"train", "val", "test"}, 2)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "val", out[1].Split)
	assert.Len(t, store.tensors, 3)
}

func TestStacker_StackAll_FailsAll(t *testing.T) {
	store := newMemStore()
	putChannel(t, store, "msl", "train", filled(3, 0), rows(1, 3, 0), 0)

	_, err := newStacker(store).StackAll(context.Background(),
		assembly.StackRequest{TensorID: "t", Variables: []string{"msl"}},
		[]string{"train", "test"}, 2)
	var asmErr *domain.AssemblyError
	require.True(t, errors.As(err, &asmErr))
	assert.Equal(t, "test", asmErr.Split)
}
