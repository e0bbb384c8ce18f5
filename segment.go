package segsim

import (
	"fmt"
	"os"

	kitlog "github.com/go-kit/log"
	"gonum.org/v1/gonum/mat"
)

// SegmentStatus is the state of a segment within a mission.
type SegmentStatus uint8

const (
	// SegmentPending segments have not been evaluated yet.
	SegmentPending SegmentStatus = iota
	// SegmentRunning segments are being initialized or solved.
	SegmentRunning
	// SegmentConverged segments were solved and post processed.
	SegmentConverged
	// SegmentFailed segments did not converge or returned an error.
	SegmentFailed
)

func (s SegmentStatus) String() string {
	switch s {
	case SegmentPending:
		return "pending"
	case SegmentRunning:
		return "running"
	case SegmentConverged:
		return "converged"
	case SegmentFailed:
		return "failed"
	}
	panic("cannot stringify unknown segment status")
}

// Attributes are the named configuration scalars of a segment (altitude_start, air_speed, ...).
// They are set before the mission runs and only read while solving.
type Attributes map[string]float64

// Float returns the attribute if it is set.
func (a Attributes) Float(key string) (float64, bool) {
	v, ok := a[key]
	return v, ok
}

// Processes are the four top level pipelines of a segment.
type Processes struct {
	Initialize  *Process // one shot, boundary and starting conditions
	Iterate     *Process // once per solver evaluation
	Converge    *Process // drives the solver
	PostProcess *Process // one shot, derived quantities
}

// Segment is one leg of a mission. It owns its state tree, grid and pipelines.
type Segment struct {
	Tag       string
	State     *Conditions
	Grid      *Grid
	Config    Attributes
	Process   Processes
	Driver    *Driver
	Status    SegmentStatus
	Converged bool
	Result    SolverResult
	logger    kitlog.Logger
}

// NewSegment returns a segment with empty pipelines, whose converge process runs a
// driver configured from the defaults. If grid is nil, the default grid is used.
func NewSegment(tag string, grid *Grid) (*Segment, error) {
	if grid == nil {
		var err error
		if grid, err = DefaultGrid(); err != nil {
			return nil, err
		}
	}
	driver := NewDriver(DefaultSolverSettings())
	s := &Segment{
		Tag:    tag,
		State:  NewState(),
		Grid:   grid,
		Config: Attributes{},
		Process: Processes{
			Initialize:  NewProcess(),
			Iterate:     NewProcess(),
			Converge:    NewProcess().Append("converge_root", driver),
			PostProcess: NewProcess(),
		},
		Driver: driver,
	}
	ops, err := grid.Rescale(1)
	if err != nil {
		return nil, err
	}
	storeNumerics(s.State.Sub(Numerics), grid, ops)
	klog := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	s.logger = kitlog.With(klog, "segment", tag)
	return s, nil
}

// SetLogger sets the logger of this segment.
func (s *Segment) SetLogger(l kitlog.Logger) {
	s.logger = kitlog.With(l, "segment", s.Tag)
}

func (s *Segment) log(keyvals ...interface{}) {
	if s.logger != nil {
		s.logger.Log(keyvals...)
	}
}

// Points returns the number of collocation points.
func (s *Segment) Points() int {
	return s.Grid.Points()
}

// Column returns an n×1 array filled with v, n being the number of collocation points.
func (s *Segment) Column(v float64) *mat.Dense {
	return Fill(s.Points(), 1, v)
}

// SetTimeSpan sets the time leaf to start at t0 and span the provided duration, and
// rescales the time operators accordingly.
func (s *Segment) SetTimeSpan(t0, span float64) error {
	ops, err := s.Grid.Rescale(span)
	if err != nil {
		return &ConfigurationError{Segment: s.Tag, Field: "time span", Reason: err.Error()}
	}
	storeNumerics(s.State.Sub(Numerics), s.Grid, ops)
	t := mat.NewDense(s.Points(), 1, nil)
	for i, x := range ops.Points {
		t.Set(i, 0, t0+x)
	}
	s.State.Set("conditions.frames.inertial.time", t)
	return nil
}

// TimeOperators returns the current dimensional differentiation and integration operators.
func (s *Segment) TimeOperators() (d, i *mat.Dense) {
	d, _ = s.State.Array("numerics.time.differentiate")
	i, _ = s.State.Array("numerics.time.integrate")
	return d, i
}

// HasInitials returns whether a preceding segment supplied initial conditions.
func (s *Segment) HasInitials() bool {
	initials, ok := s.State.Tree(Initials)
	return ok && initials.Len() > 0
}

// thaw replaces a state frozen by a previous evaluation with a writable copy.
func (s *Segment) thaw() {
	if s.State.Frozen() {
		s.State = s.State.Clone()
	}
}

// SetInitials stores a frozen copy of the final row of a predecessor state.
func (s *Segment) SetInitials(previous *Conditions) {
	s.thaw()
	initials := NewConditions()
	for _, k := range []string{Unknowns, Residuals, ConditionsTree} {
		if t, ok := previous.Tree(k); ok {
			initials.SetTree(k, t.FinalRow())
		}
	}
	initials.Freeze()
	s.State.SetTree(Initials, initials)
}

// InitialValue returns the first column of the last row at `initials.<path>`.
func (s *Segment) InitialValue(path string) (float64, error) {
	if !s.HasInitials() {
		return 0, &ConfigurationError{Segment: s.Tag, Field: path, Reason: "unset and there is no preceding segment to inherit it from"}
	}
	m, ok := s.State.Array(Initials + "." + path)
	if !ok {
		return 0, &ConfigurationError{Segment: s.Tag, Field: path, Reason: "the preceding segment does not provide it"}
	}
	r, _ := m.Dims()
	return m.At(r-1, 0), nil
}

// Boundary returns the configuration attribute key if set, or else the initial value at path.
func (s *Segment) Boundary(key, path string) (float64, error) {
	if v, ok := s.Config.Float(key); ok {
		return v, nil
	}
	v, err := s.InitialValue(path)
	if err != nil {
		return 0, &ConfigurationError{Segment: s.Tag, Field: key, Reason: err.(*ConfigurationError).Reason}
	}
	return v, nil
}

// Require returns the configuration attribute or a configuration error.
func (s *Segment) Require(key string) (float64, error) {
	v, ok := s.Config.Float(key)
	if !ok {
		return 0, &ConfigurationError{Segment: s.Tag, Field: key, Reason: "required"}
	}
	return v, nil
}

// Evaluate expands the state to the grid, runs initialize, converge and post process,
// and returns the result of the solve. A failure to converge is not an error; stage
// errors and structural errors are. The state is frozen once the solve is over, and
// copied back to a writable tree if the segment is evaluated again.
func (s *Segment) Evaluate() (SolverResult, error) {
	s.thaw()
	s.Status = SegmentRunning
	s.Converged = false
	s.Result = SolverResult{}
	n := s.Points()
	s.State.ExpandRows(n, false)
	if err := s.Process.Initialize.Run(s); err != nil {
		s.Status = SegmentFailed
		return s.Result, stageError("initialize", err)
	}
	s.State.ExpandRows(n, false)
	if _, err := s.State.Rows(); err != nil {
		s.Status = SegmentFailed
		return s.Result, err
	}
	if err := s.Process.Converge.Run(s); err != nil {
		s.Status = SegmentFailed
		return s.Result, stageError("converge", err)
	}
	if !s.Converged {
		s.Status = SegmentFailed
		s.State.Freeze()
		return s.Result, nil
	}
	if err := s.Process.PostProcess.Run(s); err != nil {
		s.Status = SegmentFailed
		return s.Result, stageError("post_process", err)
	}
	s.Status = SegmentConverged
	s.State.Freeze()
	return s.Result, nil
}

func (s *Segment) String() string {
	return fmt.Sprintf("%s (%d points, %s)", s.Tag, s.Points(), s.Status)
}
