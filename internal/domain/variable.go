package domain

import (
	"fmt"
	"sort"
)

// Variable is a named quantity to extract. The set of implementations is
// closed: *DirectVariable, *LeveledVariable and *DerivedVariable.
type Variable interface {
	ID() string
	isVariable()
}

// GridSource locates a variable inside gridded files.
type GridSource struct {
	AttrName         string
	PathTemplate     string
	PeriodResolution TimeResolution // time span covered by one file
	TimeResolution   TimeResolution // step of the time axis
	DateTemplate     string
	TimeAttr         string
	Lat              CoordinateSpec
	Lon              CoordinateSpec
}

// DirectVariable is backed by one gridded array.
type DirectVariable struct {
	Name   string
	Source GridSource
}

// LeveledVariable is a gridded array selected at a fixed vertical level.
type LeveledVariable struct {
	Name      string
	Source    GridSource
	Level     float64
	LevelAttr string
}

// DerivedVariable is computed by an RPN expression over its operands.
// Operand ids are the names used in Expression.
type DerivedVariable struct {
	Name       string
	Expression string
	Operands   []Variable
}

func (v *DirectVariable) ID() string  { return v.Name }
func (v *LeveledVariable) ID() string { return v.Name }
func (v *DerivedVariable) ID() string { return v.Name }

func (*DirectVariable) isVariable()  {}
func (*LeveledVariable) isVariable() {}
func (*DerivedVariable) isVariable() {}

// SourceOf returns the grid source of a Direct or Leveled variable.
func SourceOf(v Variable) (GridSource, bool) {
	switch v := v.(type) {
	case *DirectVariable:
		return v.Source, true
	case *LeveledVariable:
		return v.Source, true
	}
	return GridSource{}, false
}

// Leaves returns the distinct Direct and Leveled variables reachable from v,
// sorted by id. A Direct or Leveled variable is its own only leaf.
func Leaves(v Variable) []Variable {
	seen := make(map[string]Variable)
	var walk func(Variable)
	walk = func(v Variable) {
		if d, ok := v.(*DerivedVariable); ok {
			for _, op := range d.Operands {
				walk(op)
			}
			return
		}
		seen[v.ID()] = v
	}
	walk(v)

	out := make([]Variable, 0, len(seen))
	for _, leaf := range seen {
		out = append(out, leaf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// PeriodResolution is the file granularity shared by every leaf of v.
func PeriodResolution(v Variable) (TimeResolution, error) {
	leaves := Leaves(v)
	if len(leaves) == 0 {
		return 0, &ConfigurationError{Field: v.ID(), Reason: "variable has no gridded source"}
	}
	first, _ := SourceOf(leaves[0])
	for _, leaf := range leaves[1:] {
		src, _ := SourceOf(leaf)
		if src.PeriodResolution != first.PeriodResolution {
			return 0, &ConfigurationError{
				Field: v.ID(),
				Reason: fmt.Sprintf("operands %s and %s have different period resolutions (%s, %s)",
					leaves[0].ID(), leaf.ID(), first.PeriodResolution, src.PeriodResolution),
			}
		}
	}
	return first.PeriodResolution, nil
}

// TimeResolutionOf is the finest time step among the leaves of v. It sets
// the time columns of the extracted metadata.
func TimeResolutionOf(v Variable) TimeResolution {
	r := Year
	for _, leaf := range Leaves(v) {
		src, _ := SourceOf(leaf)
		if src.TimeResolution > r {
			r = src.TimeResolution
		}
	}
	return r
}
