package segsim

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Rotations of the vertical plane of the inertial frame, x forward and z up.
// A positive angle pitches the rotated frame nose up.

// R2 rotation about the 2nd (pitch) axis, from a rotated frame (body or wind axes)
// to the inertial frame.
func R2(x float64) *mat.Dense {
	s, c := math.Sincos(x)
	return mat.NewDense(2, 2, []float64{c, -s, s, c})
}

// MxV22 multiplies a matrix with a vector. Note that there is no dimension check!
func MxV22(m mat.Matrix, v []float64) []float64 {
	var r mat.VecDense
	r.MulVec(m, mat.NewVecDense(len(v), v))
	return []float64{r.AtVec(0), r.AtVec(1)}
}

// RotateRows rotates every row of the n×2 vectors by the angle on the same row of the
// n×1 angles, and returns the inertial vectors.
func RotateRows(angles, vectors mat.Matrix) *mat.Dense {
	n, _ := vectors.Dims()
	out := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		out.SetRow(i, MxV22(R2(angles.At(i, 0)), []float64{vectors.At(i, 0), vectors.At(i, 1)}))
	}
	return out
}
