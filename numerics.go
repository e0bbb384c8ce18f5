package segsim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Method defines the quadrature family used to place the collocation points.
type Method uint8

const (
	// Chebyshev places the points at the Chebyshev-Gauss-Lobatto nodes (pseudospectral).
	Chebyshev Method = iota + 1
	// Linear places the points evenly, for segments needing constant time steps.
	Linear
)

func (m Method) String() string {
	switch m {
	case Chebyshev:
		return "chebyshev"
	case Linear:
		return "linear"
	}
	panic("cannot stringify unknown discretization method")
}

// MethodFromString returns the discretization method from its name.
func MethodFromString(name string) (Method, error) {
	switch name {
	case "chebyshev", "":
		return Chebyshev, nil
	case "linear":
		return Linear, nil
	}
	return 0, &ConfigurationError{Field: "numerics.method", Reason: fmt.Sprintf("unknown method `%s`", name)}
}

// Grid is an immutable set of normalized collocation points in [0,1] with the
// differentiation (D) and integration (I) operators over them.
// (D·I)[1:,1:] is the identity: I integrates from the first point with a zero initial value.
type Grid struct {
	Method    Method
	abscissas []float64
	d, i      *mat.Dense
}

// Operators are the grid operators rescaled by a dimensional span.
type Operators struct {
	Span          float64
	Points        []float64
	Differentiate *mat.Dense
	Integrate     *mat.Dense
}

// NewGrid builds a grid of n points for the given method.
func NewGrid(n int, method Method) (*Grid, error) {
	if n < 2 {
		return nil, &ConfigurationError{Field: "numerics.points", Reason: fmt.Sprintf("need at least two collocation points, got %d", n)}
	}
	var x []float64
	var d *mat.Dense
	switch method {
	case Chebyshev:
		x, d = chebyshev(n)
	case Linear:
		x, d = linear(n)
	default:
		return nil, &ConfigurationError{Field: "numerics.method", Reason: fmt.Sprintf("unsupported method %d", method)}
	}
	i, err := integrationOperator(d)
	if err != nil {
		return nil, err
	}
	return &Grid{method, x, d, i}, nil
}

// Points returns the number of collocation points.
func (g *Grid) Points() int {
	return len(g.abscissas)
}

// Abscissas returns a copy of the normalized points.
func (g *Grid) Abscissas() []float64 {
	return append([]float64(nil), g.abscissas...)
}

// Differentiate returns a copy of the normalized differentiation operator.
func (g *Grid) Differentiate() *mat.Dense {
	return mat.DenseCopyOf(g.d)
}

// Integrate returns a copy of the normalized integration operator.
func (g *Grid) Integrate() *mat.Dense {
	return mat.DenseCopyOf(g.i)
}

// Rescale returns the operators for a physical span S: x·S, D/S and I·S.
func (g *Grid) Rescale(span float64) (Operators, error) {
	if !(span > 0) || math.IsInf(span, 0) {
		return Operators{}, fmt.Errorf("cannot rescale collocation grid by span %v", span)
	}
	pts := g.Abscissas()
	floats.Scale(span, pts)
	var d, i mat.Dense
	d.Scale(1/span, g.d)
	i.Scale(span, g.i)
	return Operators{span, pts, &d, &i}, nil
}

// chebyshev returns the Chebyshev-Gauss-Lobatto nodes mapped to [0,1] and their
// differentiation matrix. The barycentric formula is applied on the mapped nodes
// directly, the diagonal being the negative off diagonal row sum.
func chebyshev(n int) ([]float64, *mat.Dense) {
	x := make([]float64, n)
	c := make([]float64, n)
	for k := 0; k < n; k++ {
		x[k] = 0.5 * (1 - math.Cos(math.Pi*float64(k)/float64(n-1)))
		c[k] = 1
		if k == 0 || k == n-1 {
			c[k] = 2
		}
		if k%2 == 1 {
			c[k] = -c[k]
		}
	}
	d := mat.NewDense(n, n, nil)
	for r := 0; r < n; r++ {
		sum := 0.0
		for k := 0; k < n; k++ {
			if k == r {
				continue
			}
			v := (c[r] / c[k]) / (x[r] - x[k])
			d.Set(r, k, v)
			sum += v
		}
		d.Set(r, r, -sum)
	}
	return x, d
}

// linear returns evenly spaced nodes with one-sided differences: forward on the
// first row, backward on all others.
func linear(n int) ([]float64, *mat.Dense) {
	x := make([]float64, n)
	floats.Span(x, 0, 1)
	h := 1 / float64(n-1)
	d := mat.NewDense(n, n, nil)
	d.Set(0, 0, -1/h)
	d.Set(0, 1, 1/h)
	for r := 1; r < n; r++ {
		d.Set(r, r-1, -1/h)
		d.Set(r, r, 1/h)
	}
	return x, d
}

// integrationOperator inverts D without its first row and column, and pads the
// result with zeros so that integration starts at the first point.
func integrationOperator(d *mat.Dense) (*mat.Dense, error) {
	n, _ := d.Dims()
	var inv mat.Dense
	if err := inv.Inverse(d.Slice(1, n, 1, n)); err != nil {
		return nil, fmt.Errorf("could not build integration operator: %w", err)
	}
	i := mat.NewDense(n, n, nil)
	i.Slice(1, n, 1, n).(*mat.Dense).Copy(&inv)
	return i, nil
}

// storeNumerics writes the grid and its time operators under the numerics subtree.
func storeNumerics(numerics *Conditions, g *Grid, ops Operators) {
	n := g.Points()
	dimless := numerics.Sub("dimensionless")
	dimless.Set("control_points", mat.NewDense(n, 1, g.Abscissas()))
	dimless.Set("differentiate", g.Differentiate())
	dimless.Set("integrate", g.Integrate())
	timeOps := numerics.Sub("time")
	timeOps.Set("control_points", mat.NewDense(n, 1, ops.Points))
	timeOps.Set("differentiate", ops.Differentiate)
	timeOps.Set("integrate", ops.Integrate)
}

// RescaleTime is a stage which rebuilds the time operators from the current time span,
// at the same normalized points, and re-integrates the time leaf from its first value.
// Segments whose duration is solved for must run it at the start of every iteration.
var RescaleTime = StageFunc(func(seg *Segment) error {
	t, ok := seg.State.Array("conditions.frames.inertial.time")
	if !ok {
		return &StructuralMismatchError{Path: "conditions.frames.inertial.time", Reason: "missing time leaf"}
	}
	rows, _ := t.Dims()
	t0 := t.At(0, 0)
	span := t.At(rows-1, 0) - t0
	if dt, ok := seg.State.Scalar("unknowns.elapsed_time"); ok {
		span = dt
	}
	ops, err := seg.Grid.Rescale(span)
	if err != nil {
		return err
	}
	storeNumerics(seg.State.Sub("numerics"), seg.Grid, ops)
	for r := 0; r < rows; r++ {
		t.Set(r, 0, t0+ops.Points[r])
	}
	return nil
})
