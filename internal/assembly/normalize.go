package assembly

import (
	"github.com/couchcryptid/nxtensor/internal/domain"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ComputeStats returns the population mean and standard deviation over
// every element of a.
func ComputeStats(a domain.Array) domain.Stats {
	mean, std := stat.PopMeanStdDev(a.Data, nil)
	return domain.Stats{Mean: mean, Std: std, ComputedAt: domain.Now()}
}

// Normalize returns (a - mean) / std. A constant channel has std 0 and is
// only centered.
func Normalize(a domain.Array, s domain.Stats) domain.Array {
	out := a.Clone()
	floats.AddConst(-s.Mean, out.Data)
	floats.Scale(1/scaleOf(s), out.Data)
	return out
}

// Denormalize reverses Normalize.
func Denormalize(a domain.Array, s domain.Stats) domain.Array {
	out := a.Clone()
	floats.Scale(scaleOf(s), out.Data)
	floats.AddConst(s.Mean, out.Data)
	return out
}

func scaleOf(s domain.Stats) float64 {
	if s.Std == 0 {
		return 1
	}
	return s.Std
}
