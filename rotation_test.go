package segsim

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

func TestR2(t *testing.T) {
	x := math.Pi / 3.0
	s, c := math.Sincos(x)
	r2 := R2(x)
	if r2.At(0, 0) != r2.At(1, 1) || r2.At(1, 1) != c {
		t.Fatal("expected R2 cosines misplaced")
	}
	if r2.At(1, 0) != -r2.At(0, 1) || r2.At(1, 0) != s {
		t.Fatal("expected R2 sines misplaced")
	}
	// Pitching the nose up by 90 degrees points the body x axis up.
	up := MxV22(R2(math.Pi/2), []float64{1, 0})
	if !floats.EqualApprox(up, []float64{0, 1}, 1e-12) {
		t.Fatalf("body x axis got %v exp [0 1]", up)
	}
	// R2(x)·R2(-x) is the identity.
	var id mat.Dense
	id.Mul(R2(x), R2(-x))
	if !mat.EqualApprox(&id, mat.NewDiagDense(2, []float64{1, 1}), 1e-12) {
		t.Fatalf("R2(x)·R2(-x) = %v", mat.Formatted(&id))
	}
}

func TestRotateRows(t *testing.T) {
	angles := mat.NewDense(3, 1, []float64{0, math.Pi / 2, math.Pi})
	vectors := mat.NewDense(3, 2, []float64{1, 0, 2, 0, 1, 1})
	got := RotateRows(angles, vectors)
	exp := mat.NewDense(3, 2, []float64{1, 0, 0, 2, -1, -1})
	if !mat.EqualApprox(got, exp, 1e-12) {
		t.Fatalf("got\n%v\nexp\n%v", mat.Formatted(got), mat.Formatted(exp))
	}
	// Rotations keep the norm.
	n := Norm(got)
	for i, exp := range []float64{1, 2, math.Sqrt2} {
		if !scalar.EqualWithinAbs(n.At(i, 0), exp, 1e-12) {
			t.Fatalf("norm of row %d got %f exp %f", i, n.At(i, 0), exp)
		}
	}
}
