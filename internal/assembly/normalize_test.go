package assembly_test

import (
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/nxtensor/internal/assembly"
	"github.com/couchcryptid/nxtensor/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestComputeStats_Population(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC))
	domain.SetClock(fakeClock)
	t.Cleanup(func() { domain.SetClock(nil) })

	a := domain.Array{Shape: []int{2, 2}, Data: []float64{1, 2, 3, 4}}
	s := assembly.ComputeStats(a)

	assert.InDelta(t, 2.5, s.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(1.25), s.Std, 1e-12)
	assert.Equal(t, fakeClock.Now(), s.ComputedAt)
}

func TestNormalize_RoundTrip(t *testing.T) {
	a := filled(5, 3)
	s := assembly.ComputeStats(a)

	n := assembly.Normalize(a, s)
	assert.InDelta(t, 0, assembly.ComputeStats(n).Mean, 1e-12)
	assert.InDelta(t, 1, assembly.ComputeStats(n).Std, 1e-12)

	back := assembly.Denormalize(n, s)
	assert.Equal(t, a.Shape, back.Shape)
	assert.InDeltaSlice(t, a.Data, back.Data, 1e-9)
	assert.Equal(t, 3.0, a.Data[0], "input untouched")
}

func TestNormalize_ConstantChannel(t *testing.T) {
	a := domain.Array{Shape: []int{3}, Data: []float64{7, 7, 7}}
	s := assembly.ComputeStats(a)
	assert.Zero(t, s.Std)

	n := assembly.Normalize(a, s)
	assert.Equal(t, []float64{0, 0, 0}, n.Data)
	assert.Equal(t, a.Data, assembly.Denormalize(n, s).Data)
}
