package segsim

import (
	"errors"
	"sync/atomic"
	"testing"

	kitlog "github.com/go-kit/log"
	"github.com/stretchr/testify/require"
)

func testSegment(t *testing.T, points int) *Segment {
	g, err := NewGrid(points, Chebyshev)
	require.NoError(t, err)
	seg, err := NewSegment("test", g)
	require.NoError(t, err)
	seg.SetLogger(kitlog.NewNopLogger())
	return seg
}

func recorder(trace *[]string, name string) Stage {
	return StageFunc(func(*Segment) error {
		*trace = append(*trace, name)
		return nil
	})
}

func TestProcessOrder(t *testing.T) {
	var trace []string
	p := NewProcess().
		Append("a", recorder(&trace, "a")).
		Append("b", recorder(&trace, "b")).
		Append("c", recorder(&trace, "c"))
	require.NoError(t, p.InsertAfter("a", "a2", recorder(&trace, "a2")))
	p.Set("b", recorder(&trace, "B"))
	p.Set("d", recorder(&trace, "d"))
	p.Delete("c")
	p.Delete("missing")
	require.Equal(t, []string{"a", "a2", "b", "d"}, p.Names())
	require.Equal(t, 4, p.Len())

	require.NoError(t, p.Run(testSegment(t, 2)))
	require.Equal(t, []string{"a", "a2", "B", "d"}, trace)

	_, ok := p.Get("a2")
	require.True(t, ok)
	_, ok = p.Get("c")
	require.False(t, ok)

	require.Error(t, p.InsertAfter("missing", "x", recorder(&trace, "x")))
	require.Error(t, p.InsertAfter("a", "b", recorder(&trace, "x")))
	require.Panics(t, func() { p.Append("a", recorder(&trace, "x")) })
}

func TestProcessNestedError(t *testing.T) {
	boom := errors.New("boom")
	var trace []string
	inner := NewProcess().
		Append("atmosphere", recorder(&trace, "atmosphere")).
		AppendFunc("aerodynamics", func(*Segment) error { return boom })
	outer := NewProcess().
		Append("conditions", inner).
		Append("never", recorder(&trace, "never"))

	err := outer.Run(testSegment(t, 2))
	require.ErrorIs(t, err, boom)
	var se *StageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "conditions.aerodynamics", se.Stage)
	require.True(t, se.Err == boom, "the stage error is kept as is")
	require.Equal(t, []string{"atmosphere"}, trace, "the pipeline stops at the first error")
	require.Equal(t, "stage `conditions.aerodynamics`: boom", err.Error())
}

func TestConcurrent(t *testing.T) {
	seg := testSegment(t, 3)
	var calls int32
	c := NewConcurrent()
	for _, sub := range []string{"aerodynamics", "propulsion"} {
		sub := sub
		c.AppendFunc(sub, func(seg *Segment) error {
			atomic.AddInt32(&calls, 1)
			seg.State.Sub("conditions."+sub).Set("force", seg.Column(1))
			return nil
		})
	}
	require.NoError(t, NewProcess().Append("loads", c).Run(seg))
	require.Equal(t, int32(2), calls)
	for _, path := range []string{"conditions.aerodynamics.force", "conditions.propulsion.force"} {
		_, ok := seg.State.Array(path)
		require.True(t, ok, path)
	}

	boom := errors.New("boom")
	c.AppendFunc("noise", func(*Segment) error { return boom })
	err := NewProcess().Append("loads", c).Run(seg)
	require.ErrorIs(t, err, boom)
	var se *StageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "loads.noise", se.Stage)
}
