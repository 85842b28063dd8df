package extraction

import (
	"context"
	"fmt"

	"github.com/couchcryptid/nxtensor/internal/domain"
	"github.com/couchcryptid/nxtensor/internal/rpn"
)

// Resolver turns a variable and an event into a window, dispatching on the
// variable kind. Derived variables are resolved depth-first; each operand is
// resolved at most once per event through a memo that is cleared when the
// outermost derived resolution returns. A Resolver never opens or closes
// datasets and is not safe for concurrent use.
type Resolver struct {
	datasets map[string]Dataset
	frame    Frame
	memo     map[string]domain.Array
	depth    int
}

// NewResolver creates a resolver over datasets keyed by leaf variable id.
func NewResolver(datasets map[string]Dataset, frame Frame) *Resolver {
	return &Resolver{
		datasets: datasets,
		frame:    frame,
		memo:     make(map[string]domain.Array),
	}
}

// Resolve extracts the window of v around ev.
func (r *Resolver) Resolve(ctx context.Context, v domain.Variable, ev domain.Event) (domain.Array, error) {
	switch v := v.(type) {
	case *domain.DirectVariable, *domain.LeveledVariable:
		ds, ok := r.datasets[v.ID()]
		if !ok {
			return domain.Array{}, &domain.ExtractionError{Variable: v.ID(), Event: &ev, Reason: "no dataset opened"}
		}
		return SelectRegion(ctx, ds, v, ev, r.frame)
	case *domain.DerivedVariable:
		return r.resolveDerived(ctx, v, ev)
	default:
		return domain.Array{}, fmt.Errorf("unsupported variable type %T", v)
	}
}

func (r *Resolver) resolveDerived(ctx context.Context, v *domain.DerivedVariable, ev domain.Event) (domain.Array, error) {
	r.depth++
	defer func() {
		r.depth--
		if r.depth == 0 {
			clear(r.memo)
		}
	}()

	operands := make(map[string]domain.Array, len(v.Operands))
	for _, op := range v.Operands {
		region, ok := r.memo[op.ID()]
		if !ok {
			var err error
			region, err = r.Resolve(ctx, op, ev)
			if err != nil {
				return domain.Array{}, err
			}
			r.memo[op.ID()] = region
		}
		operands[op.ID()] = region
	}

	result, err := rpn.Evaluate(v.Expression, operands)
	if err != nil {
		return domain.Array{}, err
	}
	r.memo[v.ID()] = result
	return result, nil
}
