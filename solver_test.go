package segsim

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

// altitudeSegment solves for the altitude at every point, the computed altitude being target.
func altitudeSegment(t *testing.T, points int, target float64, settings SolverSettings) (*Segment, *int) {
	seg := testSegment(t, points)
	seg.Driver.Settings = settings
	seg.State.Set("unknowns.altitude", Fill(1, 1, 1000))
	calls := new(int)
	seg.Process.Iterate.AppendFunc("altitude", func(seg *Segment) error {
		*calls++
		u, _ := seg.State.Array("unknowns.altitude")
		n, _ := u.Dims()
		r := mat.NewDense(n, 1, nil)
		for i := 0; i < n; i++ {
			r.Set(i, 0, (u.At(i, 0)-target)/target)
		}
		seg.State.Set("conditions.freestream.altitude", mat.DenseCopyOf(u))
		seg.State.Set("residuals.altitude", r)
		return nil
	})
	return seg, calls
}

func settings(method SolverMethod, budget int) SolverSettings {
	return SolverSettings{Method: method, Tolerance: 1e-6, MaxEvaluations: budget, Step: 1e-7}
}

func TestSolveAltitude(t *testing.T) {
	for _, method := range []SolverMethod{RootFinder, Optimizer} {
		t.Run(method.String(), func(t *testing.T) {
			seg, calls := altitudeSegment(t, 2, 1200, settings(method, 5000))
			res, err := seg.Evaluate()
			require.NoError(t, err)
			require.Equal(t, Converged, res.Status, res.Message)
			require.True(t, seg.Converged)
			require.Equal(t, SegmentConverged, seg.Status)
			require.Less(t, res.ResidualNorm, 1e-6)
			require.Equal(t, *calls, res.Evaluations)
			require.LessOrEqual(t, res.Evaluations, 5000)
			if !floats.EqualApprox(res.Unknowns, []float64{1200, 1200}, 1e-5) {
				t.Fatalf("altitude got %v exp 1200", res.Unknowns)
			}
			// The state is left at the solution.
			alt, _ := seg.State.Array("conditions.freestream.altitude")
			if !scalar.EqualWithinAbs(alt.At(1, 0), 1200, 1e-2) {
				t.Fatalf("state altitude got %f exp 1200", alt.At(1, 0))
			}
			require.True(t, seg.State.Frozen())
		})
	}
}

func TestSolveZeroUnknowns(t *testing.T) {
	seg := testSegment(t, 4)
	calls := 0
	seg.Process.Iterate.AppendFunc("physics", func(seg *Segment) error {
		calls++
		seg.State.Set("conditions.freestream.altitude", seg.Column(1000))
		return nil
	})
	res, err := seg.Evaluate()
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, 1, res.Evaluations)
	require.Equal(t, Converged, res.Status)
	require.True(t, seg.Converged)
}

func TestSolveZeroBudget(t *testing.T) {
	for _, method := range []SolverMethod{RootFinder, Optimizer} {
		seg, calls := altitudeSegment(t, 2, 1200, settings(method, 0))
		res, err := seg.Evaluate()
		require.NoError(t, err, "a failure to converge is not an error")
		require.Equal(t, Failed, res.Status)
		require.Zero(t, *calls)
		require.Zero(t, res.Evaluations)
		require.False(t, seg.Converged)
		require.Equal(t, SegmentFailed, seg.Status)
		require.ErrorIs(t, res.Err, ErrConvergence)
		require.Contains(t, res.Message, "budget")
	}
}

func TestSolveUnreachable(t *testing.T) {
	seg := testSegment(t, 3)
	seg.Driver.Settings = settings(RootFinder, 60)
	seg.State.Set("unknowns.altitude", Fill(1, 1, 1))
	seg.Process.Iterate.AppendFunc("physics", func(seg *Segment) error {
		u, _ := seg.State.Array("unknowns.altitude")
		seg.State.Set("residuals.altitude_error", Apply(u, func(v float64) float64 { return v*v + 1 }))
		return nil
	})
	res, err := seg.Evaluate()
	require.NoError(t, err)
	require.Equal(t, Failed, res.Status)
	require.LessOrEqual(t, res.Evaluations, 60)
	require.GreaterOrEqual(t, res.ResidualNorm, 1.0)

	var cf *ConvergenceFailure
	require.ErrorAs(t, res.Err, &cf)
	require.Equal(t, "test", cf.Segment)
	require.True(t, strings.HasPrefix(cf.Worst, "altitude_error["), cf.Worst)
	require.True(t, strings.HasPrefix(cf.Paired, "altitude["), cf.Paired)
	require.Equal(t, res.Evaluations, cf.Evaluations)
	require.Equal(t, res.ResidualNorm, cf.ResidualNorm)
}

func TestSolveUnbalanced(t *testing.T) {
	seg := testSegment(t, 2)
	seg.Driver.Settings = settings(RootFinder, 100)
	seg.State.Set("unknowns.altitude", Fill(1, 1, 1000))
	seg.Process.Iterate.AppendFunc("mean", func(seg *Segment) error {
		u, _ := seg.State.Array("unknowns.altitude")
		seg.State.SetScalar("residuals.mean", (u.At(0, 0)+u.At(1, 0))/2400-1)
		return nil
	})
	res, err := seg.Evaluate()
	require.NoError(t, err)
	require.Equal(t, Converged, res.Status, res.Message)
	if !scalar.EqualWithinAbs(res.Unknowns[0]+res.Unknowns[1], 2400, 1e-2) {
		t.Fatalf("minimum norm step got %v", res.Unknowns)
	}
}

func TestSolveStructuralChange(t *testing.T) {
	seg, calls := altitudeSegment(t, 2, 1200, settings(RootFinder, 100))
	seg.Process.Iterate.AppendFunc("grow", func(seg *Segment) error {
		if *calls > 1 {
			seg.State.Set("unknowns.extra", seg.Column(0))
		}
		return nil
	})
	res, err := seg.Evaluate()
	require.ErrorIs(t, err, ErrStructuralMismatch)
	require.Equal(t, Failed, res.Status)
	require.False(t, seg.Converged)
	require.Equal(t, SegmentFailed, seg.Status)
	require.Equal(t, 2, res.Evaluations)
}

func TestSolveStageError(t *testing.T) {
	boom := errors.New("no atmosphere above 20 km")
	for _, method := range []SolverMethod{RootFinder, Optimizer} {
		seg, calls := altitudeSegment(t, 2, 1200, settings(method, 100))
		seg.Process.Iterate.AppendFunc("atmosphere", func(*Segment) error {
			if *calls > 2 {
				return boom
			}
			return nil
		})
		_, err := seg.Evaluate()
		require.ErrorIs(t, err, boom)
		var se *StageError
		require.ErrorAs(t, err, &se)
		require.Equal(t, "converge.converge_root.iterate.atmosphere", se.Stage)
		require.False(t, seg.Converged)
	}
}

func TestSolverMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	seg, calls := altitudeSegment(t, 3, 1200, settings(RootFinder, 100))
	seg.Driver.Metrics = metrics
	res, err := seg.Evaluate()
	require.NoError(t, err)
	require.Equal(t, Converged, res.Status)
	require.Equal(t, float64(*calls), testutil.ToFloat64(metrics.Evaluations.WithLabelValues("test")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Solves.WithLabelValues("root_finder", "converged")))
	require.Equal(t, 1, testutil.CollectAndCount(metrics.SolveEvaluations))

	var nilMetrics *Metrics
	require.NotPanics(t, func() {
		nilMetrics.evaluated("x")
		nilMetrics.solved(RootFinder, Failed, 1)
		nilMetrics.segment(SegmentFailed)
	})
}

func TestSolverEnums(t *testing.T) {
	for name, exp := range map[string]SolverMethod{"": RootFinder, "root_finder": RootFinder, "optimizer": Optimizer} {
		m, err := SolverMethodFromString(name)
		require.NoError(t, err)
		require.Equal(t, exp, m)
	}
	_, err := SolverMethodFromString("simplex")
	require.ErrorIs(t, err, ErrConfiguration)
	require.Equal(t, "unconverged", SolverResult{}.Status.String())
	require.Equal(t, "failed", Failed.String())
	require.Panics(t, func() { _ = SolverStatus(7).String() })
	require.Panics(t, func() { _ = SolverMethod(0).String() })
	require.True(t, math.IsInf(infNorm([]float64{1, math.Inf(-1)}), 1))
	require.Zero(t, infNorm(nil))
}

func TestSolveDefaultMethod(t *testing.T) {
	seg, _ := altitudeSegment(t, 2, 1200, SolverSettings{Tolerance: 1e-6, MaxEvaluations: 100})
	seg.Driver.Metrics = NewMetrics(prometheus.NewRegistry())
	res, err := seg.Evaluate()
	require.NoError(t, err)
	require.Equal(t, Converged, res.Status, res.Message)
	require.Equal(t, 1.0, testutil.ToFloat64(seg.Driver.Metrics.Solves.WithLabelValues("root_finder", "converged")))

	seg, calls := altitudeSegment(t, 2, 1200, settings(SolverMethod(9), 100))
	_, err = seg.Evaluate()
	require.ErrorIs(t, err, ErrConfiguration)
	var se *StageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "converge.converge_root", se.Stage)
	require.Zero(t, *calls)
	require.Equal(t, SegmentFailed, seg.Status)
}

func TestSolveBudgetSpentInJacobian(t *testing.T) {
	// The second evaluation perturbs the first unknown, the third is over budget.
	seg, calls := altitudeSegment(t, 2, 1200, settings(RootFinder, 2))
	res, err := seg.Evaluate()
	require.NoError(t, err)
	require.Equal(t, Failed, res.Status)
	require.Equal(t, 2, *calls)
	require.Equal(t, []float64{1000, 1000}, res.Unknowns)
	for _, path := range []string{"unknowns.altitude", "conditions.freestream.altitude"} {
		m, _ := seg.State.Array(path)
		require.Equal(t, []float64{1000, 1000}, Column(m, 0), path)
	}
	r, _ := seg.State.Array("residuals.altitude")
	require.Equal(t, res.Residuals, Column(r, 0))
}
