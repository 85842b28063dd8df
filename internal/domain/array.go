package domain

import (
	"fmt"
	"slices"
)

// Array is a dense row-major float64 array. The first axis indexes images.
type Array struct {
	Shape []int
	Data  []float64
}

// NewArray allocates a zero-filled array.
func NewArray(shape ...int) Array {
	return Array{Shape: slices.Clone(shape), Data: make([]float64, product(shape))}
}

// Len is the size of the first axis.
func (a Array) Len() int {
	if len(a.Shape) == 0 {
		return 0
	}
	return a.Shape[0]
}

// RowSize is the number of elements of one image.
func (a Array) RowSize() int {
	if len(a.Shape) == 0 {
		return 0
	}
	return product(a.Shape[1:])
}

// Row returns image i as a view into the backing data.
func (a Array) Row(i int) []float64 {
	n := a.RowSize()
	return a.Data[i*n : (i+1)*n]
}

// Take copies the given images, in order, into a new array.
func (a Array) Take(idx []int) Array {
	shape := slices.Clone(a.Shape)
	shape[0] = len(idx)
	out := Array{Shape: shape, Data: make([]float64, 0, len(idx)*a.RowSize())}
	for _, i := range idx {
		out.Data = append(out.Data, a.Row(i)...)
	}
	return out
}

// Clone deep-copies the array.
func (a Array) Clone() Array {
	return Array{Shape: slices.Clone(a.Shape), Data: slices.Clone(a.Data)}
}

// SameShape reports whether both arrays have identical dimensions.
func SameShape(a, b Array) bool {
	return slices.Equal(a.Shape, b.Shape)
}

// Stack turns equally shaped regions into one array with a new leading axis.
func Stack(regions []Array) (Array, error) {
	if len(regions) == 0 {
		return Array{}, nil
	}
	shape := append([]int{len(regions)}, regions[0].Shape...)
	out := Array{Shape: shape, Data: make([]float64, 0, product(shape))}
	for i, r := range regions {
		if !SameShape(r, regions[0]) {
			return Array{}, fmt.Errorf("region %d has shape %v, want %v", i, r.Shape, regions[0].Shape)
		}
		out.Data = append(out.Data, r.Data...)
	}
	return out, nil
}

// Concat joins arrays along the first axis. Trailing dimensions must match.
func Concat(arrays ...Array) (Array, error) {
	var out Array
	for i, a := range arrays {
		if len(a.Shape) == 0 {
			continue
		}
		if out.Shape == nil {
			out.Shape = slices.Clone(a.Shape)
			out.Shape[0] = 0
		}
		if !slices.Equal(out.Shape[1:], a.Shape[1:]) {
			return Array{}, fmt.Errorf("array %d has shape %v, want [* %v]", i, a.Shape, out.Shape[1:])
		}
		out.Shape[0] += a.Shape[0]
		out.Data = append(out.Data, a.Data...)
	}
	return out, nil
}

func product(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}
