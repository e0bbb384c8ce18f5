package segsim

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewState(t *testing.T) {
	s := NewState()
	require.Equal(t, []string{Unknowns, Residuals, ConditionsTree, Numerics, Initials}, s.Keys())
	conds, ok := s.Tree(ConditionsTree)
	require.True(t, ok)
	require.Equal(t, []string{"frames", "freestream", "weights", "energy", "noise", "emissions", "aerodynamics", "propulsion"}, conds.Keys())
	rows, err := s.Rows()
	require.NoError(t, err)
	require.Zero(t, rows)
}

func TestConditionsPaths(t *testing.T) {
	c := NewConditions()
	c.Set("b.x", Fill(2, 1, 1))
	c.SetScalar("a", 3)
	c.Set("b.y", Fill(2, 2, 2))
	c.Set("b.x", Fill(2, 1, 4)) // replaced in place
	require.Equal(t, []string{"b", "a"}, c.Keys())
	b, ok := c.Tree("b")
	require.True(t, ok)
	require.Equal(t, []string{"x", "y"}, b.Keys())

	x, ok := c.Array("b.x")
	require.True(t, ok)
	require.Equal(t, 4.0, x.At(1, 0))
	v, ok := c.Scalar("a")
	require.True(t, ok)
	require.Equal(t, 3.0, v)

	_, ok = c.Array("a")
	require.False(t, ok, "a scalar is not an array")
	_, ok = c.Scalar("b.x")
	require.False(t, ok, "an array is not a scalar")
	_, ok = c.Lookup("b.x.z")
	require.False(t, ok)
	_, ok = c.Lookup("nope")
	require.False(t, ok)
	require.Panics(t, func() { c.Sub("b.x") })

	var paths []string
	require.NoError(t, c.Walk(func(path string, e *Entry) error {
		paths = append(paths, path+":"+e.Kind.String())
		return nil
	}))
	require.Equal(t, []string{"b.x:array", "b.y:array", "a:scalar"}, paths)

	b.Delete("x")
	b.Delete("missing")
	require.Equal(t, []string{"y"}, b.Keys())
	require.Equal(t, "b.y [2x2]\na = 3\n", c.String())
}

func TestExpandRows(t *testing.T) {
	s := NewState()
	s.Set("unknowns.throttle", Fill(1, 1, 0.5))
	cyc := mat.NewDense(3, 1, []float64{1, 2, 3})
	s.Set("conditions.frames.inertial.velocity", mat.NewDense(1, 2, []float64{60, 3}))
	s.Set("conditions.freestream.altitude", cyc)
	full := Fill(5, 1, 7)
	s.Set("conditions.weights.total_mass", full)
	s.SetScalar("conditions.weights.tag", 42)
	s.Set("numerics.dimensionless.control_points", Fill(2, 1, 0))
	s.Set("conditions.extra.initials.kept", Fill(1, 1, 9))

	s.ExpandRows(5, false)
	rows, err := s.Rows()
	require.NoError(t, err)
	require.Equal(t, 5, rows)

	thr, _ := s.Array("unknowns.throttle")
	require.Equal(t, []float64{0.5, 0.5, 0.5, 0.5, 0.5}, Column(thr, 0))
	vel, _ := s.Array("conditions.frames.inertial.velocity")
	r, c := vel.Dims()
	require.Equal(t, [2]int{5, 2}, [2]int{r, c})
	require.Equal(t, []float64{3, 3, 3, 3, 3}, Column(vel, 1))
	alt, _ := s.Array("conditions.freestream.altitude")
	require.Equal(t, []float64{1, 2, 3, 1, 2}, Column(alt, 0), "existing rows are kept and cycled")
	mass, _ := s.Array("conditions.weights.total_mass")
	require.True(t, mass == full, "a leaf with the right rows is untouched")
	tag, _ := s.Scalar("conditions.weights.tag")
	require.Equal(t, 42.0, tag)
	cp, _ := s.Array("numerics.dimensionless.control_points")
	r, _ = cp.Dims()
	require.Equal(t, 2, r, "numerics are not resized")
	kept, _ := s.Array("conditions.extra.initials.kept")
	r, _ = kept.Dims()
	require.Equal(t, 1, r, "initials are not resized at any depth")

	s.ExpandRows(5, true)
	alt, _ = s.Array("conditions.freestream.altitude")
	require.Equal(t, []float64{1, 1, 1, 1, 1}, Column(alt, 0), "override broadcasts the first row")
	mass, _ = s.Array("conditions.weights.total_mass")
	require.False(t, mass == full, "override rebuilds every leaf")

	s.ExpandRows(3, false)
	rows, err = s.Rows()
	require.NoError(t, err)
	require.Equal(t, 3, rows)
}

func TestRowsMismatch(t *testing.T) {
	s := NewState()
	s.Set("unknowns.throttle", Fill(4, 1, 0.5))
	s.Set("conditions.freestream.altitude", Fill(3, 1, 1000))
	_, err := s.Rows()
	require.ErrorIs(t, err, ErrStructuralMismatch)
	var sm *StructuralMismatchError
	require.ErrorAs(t, err, &sm)
	require.Equal(t, "conditions.freestream.altitude", sm.Path)
}

func TestCloneFinalRowFreeze(t *testing.T) {
	s := NewState()
	s.Set("conditions.freestream.altitude", mat.NewDense(3, 1, []float64{1000, 1100, 1200}))
	s.Set("unknowns.angles", mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6}))
	s.SetScalar("unknowns.elapsed_time", 60)

	last := s.FinalRow()
	alt, _ := last.Array("conditions.freestream.altitude")
	require.Equal(t, []float64{1200}, Column(alt, 0))
	ang, _ := last.Array("unknowns.angles")
	require.True(t, mat.Equal(ang, mat.NewDense(1, 2, []float64{5, 6})))
	dt, _ := last.Scalar("unknowns.elapsed_time")
	require.Equal(t, 60.0, dt)

	clone := s.Clone()
	s.Freeze()
	require.True(t, s.Frozen())
	sub, _ := s.Tree("conditions.freestream")
	require.True(t, sub.Frozen())
	require.Panics(t, func() { s.Set("conditions.freestream.altitude", Fill(1, 1, 0)) })
	require.Panics(t, func() { s.SetScalar("unknowns.elapsed_time", 0) })
	require.Panics(t, func() { s.ExpandRows(5, false) })
	require.Panics(t, func() { s.Sub("conditions.new") })
	require.Panics(t, func() { sub.Delete("altitude") })

	require.False(t, clone.Frozen())
	clone.Set("conditions.freestream.altitude", Fill(1, 1, 0))
	alt, _ = s.Array("conditions.freestream.altitude")
	require.Equal(t, 1200.0, alt.At(2, 0), "clone is deep")
}
