package segsim

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

func TestAngles(t *testing.T) {
	for i := -180.0; i <= 180; i += 0.5 {
		if got := Rad2deg(Deg2rad(i)); !scalar.EqualWithinAbs(got, i, 1e-12) {
			t.Fatalf("Rad2deg(Deg2rad(%f)) = %f", i, got)
		}
	}
	if got := Deg2rad(-90); !scalar.EqualWithinAbs(got, -math.Pi/2, 1e-15) {
		t.Fatalf("Deg2rad(-90) = %f, exp -π/2", got)
	}
}

func TestSign(t *testing.T) {
	for _, c := range []struct{ v, exp float64 }{{-3, -1}, {2.5, 1}, {0, 1}, {-1e-14, 1}} {
		if got := Sign(c.v); got != c.exp {
			t.Fatalf("Sign(%f) = %f, exp %f", c.v, got, c.exp)
		}
	}
}

func TestNormApplyColumn(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{3, 4, 6, 8})
	n := Norm(m)
	if !mat.EqualApprox(n, mat.NewDense(2, 1, []float64{5, 10}), 1e-12) {
		t.Fatalf("invalid row norms: %v", mat.Formatted(n))
	}
	sq := Apply(m, func(v float64) float64 { return v * v })
	if sq.At(1, 1) != 64 {
		t.Fatalf("invalid Apply: got %f exp 64", sq.At(1, 1))
	}
	if col := Column(m, 1); !floats.Equal(col, []float64{4, 8}) {
		t.Fatalf("invalid column: %v", col)
	}
}
