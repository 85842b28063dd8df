package assembly

import (
	"fmt"
	"math"
	"slices"

	"github.com/couchcryptid/nxtensor/internal/domain"
)

// ratioTolerance absorbs float error when ratios are meant to sum to one.
const ratioTolerance = 1e-6

// SplitSpec names a dataset split and the share of rows it receives.
type SplitSpec struct {
	Name  string
	Ratio float64
}

// Split is the row selection of one split, in channel order.
type Split struct {
	Name    string
	Indexes []int
}

// ValidateSplits checks names and ratios of a split configuration.
func ValidateSplits(specs []SplitSpec) error {
	if len(specs) == 0 {
		return &domain.ConfigurationError{Field: "splits", Reason: "at least one split is required"}
	}
	seen := make(map[string]bool, len(specs))
	sum := 0.0
	for _, s := range specs {
		if s.Name == "" {
			return &domain.ConfigurationError{Field: "splits", Reason: "split name is empty"}
		}
		if seen[s.Name] {
			return &domain.ConfigurationError{Field: "splits", Reason: fmt.Sprintf("duplicate split %q", s.Name)}
		}
		seen[s.Name] = true
		if !(s.Ratio > 0 && s.Ratio <= 1) {
			return &domain.ConfigurationError{Field: "splits." + s.Name, Reason: fmt.Sprintf("ratio %g outside (0, 1]", s.Ratio)}
		}
		sum += s.Ratio
	}
	if sum > 1+ratioTolerance {
		return &domain.ConfigurationError{Field: "splits", Reason: fmt.Sprintf("ratios sum to %g, above 1", sum)}
	}
	return nil
}

// SplitNames returns the names in configuration order.
func SplitNames(specs []SplitSpec) []string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}

// StratifiedSplit partitions the rows of meta so that every label keeps the
// configured proportions in every split. Within a label, rows are dealt out
// contiguously in channel order with cumulative rounded boundaries. When the
// ratios sum to one the last split takes the remainder; otherwise leftover
// rows belong to no split.
func StratifiedSplit(meta domain.Metadata, specs []SplitSpec) ([]Split, error) {
	if err := ValidateSplits(specs); err != nil {
		return nil, err
	}
	sum := 0.0
	for _, s := range specs {
		sum += s.Ratio
	}
	covering := sum >= 1-ratioTolerance

	byLabel := make(map[int][]int)
	for i, row := range meta.Rows {
		byLabel[row.Label] = append(byLabel[row.Label], i)
	}
	labels := make([]int, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, l)
	}
	slices.Sort(labels)

	out := make([]Split, len(specs))
	for i, s := range specs {
		out[i] = Split{Name: s.Name, Indexes: []int{}}
	}

	for _, l := range labels {
		rows := byLabel[l]
		n := len(rows)
		cum, lo := 0.0, 0
		for k, s := range specs {
			cum += s.Ratio
			hi := min(int(math.Round(cum*float64(n))), n)
			if k == len(specs)-1 && covering {
				hi = n
			}
			hi = max(hi, lo)
			out[k].Indexes = append(out[k].Indexes, rows[lo:hi]...)
			lo = hi
		}
	}

	for i := range out {
		slices.Sort(out[i].Indexes)
	}
	return out, nil
}
