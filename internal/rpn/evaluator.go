// Package rpn evaluates reverse-Polish expressions over named arrays.
package rpn

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/couchcryptid/nxtensor/internal/domain"
	"gonum.org/v1/gonum/floats"
)

type operator struct {
	arity  int
	binary func(dst, a, b []float64)
	unary  func(dst, a []float64)
}

var operators = map[string]operator{
	"+":     {arity: 2, binary: func(dst, a, b []float64) { floats.AddTo(dst, a, b) }},
	"-":     {arity: 2, binary: func(dst, a, b []float64) { floats.SubTo(dst, a, b) }},
	"*":     {arity: 2, binary: func(dst, a, b []float64) { floats.MulTo(dst, a, b) }},
	"/":     {arity: 2, binary: func(dst, a, b []float64) { floats.DivTo(dst, a, b) }},
	"pow":   {arity: 2, binary: elementwise2(math.Pow)},
	"sq":    {arity: 1, unary: func(dst, a []float64) { floats.MulTo(dst, a, a) }},
	"log10": {arity: 1, unary: elementwise1(math.Log10)},
	"sqrt":  {arity: 1, unary: elementwise1(math.Sqrt)},
}

// IsOperator reports whether tok is a known operator.
func IsOperator(tok string) bool {
	_, ok := operators[tok]
	return ok
}

// value is either a scalar or an array; arrays are never mutated once stored.
type value struct {
	scalar  float64
	array   domain.Array
	isArray bool
}

// Evaluator computes expressions against a fixed set of operands. Results of
// sub-expressions are memoized for the lifetime of the evaluator, so an
// identical sub-expression is computed at most once. An Evaluator is not
// safe for concurrent use.
type Evaluator struct {
	operands map[string]domain.Array
	memo     map[string]value
}

// New creates an evaluator over the given named operands.
func New(operands map[string]domain.Array) *Evaluator {
	return &Evaluator{
		operands: operands,
		memo:     make(map[string]value),
	}
}

// Evaluate is a shorthand for New(operands).Evaluate(expr).
func Evaluate(expr string, operands map[string]domain.Array) (domain.Array, error) {
	return New(operands).Evaluate(expr)
}

// Evaluate runs the expression and returns the resulting array.
func (e *Evaluator) Evaluate(expr string) (domain.Array, error) {
	tokens := strings.Fields(expr)
	if len(tokens) == 0 {
		return domain.Array{}, &domain.ExpressionError{Expression: expr, Reason: "empty expression"}
	}

	// The stack holds labels: operand names, canonical literals or memo keys.
	stack := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		op, isOp := operators[tok]
		if !isOp {
			label, err := e.operandLabel(expr, tok)
			if err != nil {
				return domain.Array{}, err
			}
			stack = append(stack, label)
			continue
		}

		if len(stack) < op.arity {
			return domain.Array{}, &domain.ExpressionError{
				Expression: expr,
				Token:      tok,
				Reason:     fmt.Sprintf("operator needs %d operands, stack has %d", op.arity, len(stack)),
			}
		}
		args := slices.Clone(stack[len(stack)-op.arity:])
		stack = stack[:len(stack)-op.arity]

		key := tok + "(" + strings.Join(args, ",") + ")"
		if _, done := e.memo[key]; !done {
			result, err := e.apply(expr, tok, op, args)
			if err != nil {
				return domain.Array{}, err
			}
			e.memo[key] = result
		}
		stack = append(stack, key)
	}

	if len(stack) != 1 {
		return domain.Array{}, &domain.ExpressionError{
			Expression: expr,
			Reason:     fmt.Sprintf("expression leaves %d values on the stack, want 1", len(stack)),
		}
	}
	result, err := e.resolve(expr, stack[0])
	if err != nil {
		return domain.Array{}, err
	}
	if !result.isArray {
		return domain.Array{}, &domain.ExpressionError{Expression: expr, Reason: "expression evaluates to a scalar"}
	}
	return result.array, nil
}

// operandLabel validates a non-operator token and returns its stack label.
// Literals are canonicalized so that "2" and "2.0" share memo entries.
func (e *Evaluator) operandLabel(expr, tok string) (string, error) {
	if _, ok := e.operands[tok]; ok {
		return tok, nil
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return "", &domain.ExpressionError{Expression: expr, Token: tok, Reason: "unknown operand"}
	}
	return strconv.FormatFloat(v, 'g', -1, 64), nil
}

func (e *Evaluator) resolve(expr, label string) (value, error) {
	if v, ok := e.memo[label]; ok {
		return v, nil
	}
	if a, ok := e.operands[label]; ok {
		return value{array: a, isArray: true}, nil
	}
	f, err := strconv.ParseFloat(label, 64)
	if err != nil {
		return value{}, &domain.ExpressionError{Expression: expr, Token: label, Reason: "unresolved operand"}
	}
	return value{scalar: f}, nil
}

func (e *Evaluator) apply(expr, tok string, op operator, labels []string) (value, error) {
	args := make([]value, len(labels))
	for i, l := range labels {
		v, err := e.resolve(expr, l)
		if err != nil {
			return value{}, err
		}
		args[i] = v
	}

	var shape []int
	for _, a := range args {
		if !a.isArray {
			continue
		}
		if shape == nil {
			shape = a.array.Shape
			continue
		}
		if !slices.Equal(shape, a.array.Shape) {
			return value{}, &domain.ExpressionError{
				Expression: expr,
				Token:      tok,
				Reason:     fmt.Sprintf("operand shapes differ: %v and %v", shape, a.array.Shape),
			}
		}
	}

	if shape == nil {
		return scalarApply(op, args), nil
	}

	n := len(args[0].array.Data)
	if !args[0].isArray {
		n = len(args[1].array.Data)
	}
	dst := make([]float64, n)
	if op.arity == 1 {
		op.unary(dst, args[0].array.Data)
	} else {
		op.binary(dst, broadcast(args[0], n), broadcast(args[1], n))
	}
	return value{array: domain.Array{Shape: slices.Clone(shape), Data: dst}, isArray: true}, nil
}

func scalarApply(op operator, args []value) value {
	dst := make([]float64, 1)
	if op.arity == 1 {
		op.unary(dst, []float64{args[0].scalar})
	} else {
		op.binary(dst, []float64{args[0].scalar}, []float64{args[1].scalar})
	}
	return value{scalar: dst[0]}
}

func broadcast(v value, n int) []float64 {
	if v.isArray {
		return v.array.Data
	}
	out := make([]float64, n)
	floats.AddConst(v.scalar, out)
	return out
}

func elementwise1(f func(float64) float64) func(dst, a []float64) {
	return func(dst, a []float64) {
		for i, x := range a {
			dst[i] = f(x)
		}
	}
}

func elementwise2(f func(float64, float64) float64) func(dst, a, b []float64) {
	return func(dst, a, b []float64) {
		for i := range a {
			dst[i] = f(a[i], b[i])
		}
	}
}
