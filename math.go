package segsim

import (
	"math"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

const (
	deg2rad = math.Pi / 180
)

// Deg2rad converts degrees to radians. Flight angles are signed, so no wrapping is done.
func Deg2rad(a float64) float64 {
	return a * deg2rad
}

// Rad2deg converts radians to degrees.
func Rad2deg(a float64) float64 {
	return a / deg2rad
}

// Sign returns the sign of a given number, zero being positive.
func Sign(v float64) float64 {
	if scalar.EqualWithinAbs(v, 0, 1e-12) {
		return 1
	}
	return v / math.Abs(v)
}

// Norm returns the row-wise euclidean norm of an n×m array, as an n×1 array.
func Norm(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		sum := 0.0
		for j := 0; j < c; j++ {
			sum += m.At(i, j) * m.At(i, j)
		}
		out.Set(i, 0, math.Sqrt(sum))
	}
	return out
}

// Apply returns f applied element-wise to m.
func Apply(m mat.Matrix, f func(float64) float64) *mat.Dense {
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 { return f(v) }, m)
	return &out
}

// Column returns the j-th column of m as a slice.
func Column(m mat.Matrix, j int) []float64 {
	return mat.Col(nil, j, m)
}
