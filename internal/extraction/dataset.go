// Package extraction resolves variables into spatial windows around events
// and drives the per-period extraction of a variable.
package extraction

import (
	"context"

	"github.com/couchcryptid/nxtensor/internal/domain"
)

// Selection addresses one window of a gridded variable. Bounds are inclusive
// and expressed in the variable's coordinate format.
type Selection struct {
	Attr   string
	Date   string
	Level  *float64
	LatMin float64
	LatMax float64
	LonMin float64
	LonMax float64
}

// Dataset is an opened gridded source covering one period.
type Dataset interface {
	Select(ctx context.Context, sel Selection) (domain.Array, error)
	Close() error
}

// Opener opens the gridded files of a Direct or Leveled variable for one
// period.
type Opener interface {
	Open(ctx context.Context, v domain.Variable, period domain.Period) (Dataset, error)
}

// BlockWriter persists the extraction output of one (period, label,
// variable) and returns where it went.
type BlockWriter interface {
	WriteBlock(ctx context.Context, block domain.Block) (string, error)
}
