package segsim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// SolverMethod selects the convergence strategy of the Driver.
type SolverMethod uint8

// SolverStatus is the state of a solve.
type SolverStatus uint8

const (
	// RootFinder drives the residuals to zero with damped Newton steps on a forward difference Jacobian.
	RootFinder SolverMethod = iota + 1
	// Optimizer minimizes a dummy objective under the residuals as equality constraints,
	// encoded as the least squares penalty ½‖R‖² and minimized with Nelder-Mead.
	Optimizer
)

const (
	// Unconverged is the initial status.
	Unconverged SolverStatus = iota
	// Converged means ‖R‖∞ fell under the tolerance.
	Converged
	// Failed means the budget was spent or the method gave up.
	Failed
)

func (m SolverMethod) String() string {
	switch m {
	case RootFinder:
		return "root_finder"
	case Optimizer:
		return "optimizer"
	}
	panic("cannot stringify unknown solver method")
}

// SolverMethodFromString returns the solver method from its name.
func SolverMethodFromString(name string) (SolverMethod, error) {
	switch name {
	case "root_finder", "":
		return RootFinder, nil
	case "optimizer":
		return Optimizer, nil
	}
	return 0, &ConfigurationError{Field: "solver.method", Reason: fmt.Sprintf("unknown method `%s`", name)}
}

func (s SolverStatus) String() string {
	switch s {
	case Unconverged:
		return "unconverged"
	case Converged:
		return "converged"
	case Failed:
		return "failed"
	}
	panic("cannot stringify unknown solver status")
}

const (
	maxBacktracks = 8
)

// SolverSettings configures a Driver.
type SolverSettings struct {
	Method         SolverMethod
	Tolerance      float64 // on the infinity norm of the residuals
	MaxEvaluations int     // budget of iterate runs
	Step           float64 // relative forward difference step
}

// method returns the configured method, the root finder being the default.
func (s SolverSettings) method() SolverMethod {
	if s.Method == 0 {
		return RootFinder
	}
	return s.Method
}

// SolverResult is the outcome of a solve.
type SolverResult struct {
	Status       SolverStatus
	Evaluations  int
	Iterations   int
	ResidualNorm float64
	Unknowns     []float64
	Residuals    []float64
	Message      string
	Err          error // *ConvergenceFailure when Failed
}

// Driver solves a segment: it searches the unknowns for which the iterate process
// zeroes the residuals.
type Driver struct {
	Settings SolverSettings
	Metrics  *Metrics
}

// NewDriver returns a driver with the provided settings.
func NewDriver(settings SolverSettings) *Driver {
	return &Driver{Settings: settings}
}

// Run implements the Stage interface: it solves the segment and stores the result on it.
// Only fatal errors are returned, a failure to converge is reported via the segment.
func (d *Driver) Run(seg *Segment) error {
	res, err := d.Solve(seg)
	seg.Result = res
	seg.Converged = res.Status == Converged
	return err
}

// evaluator is the residual function R(U) of a segment, with its evaluation budget.
type evaluator struct {
	seg                 *Segment
	unknowns, residuals *Conditions
	size, rsize         int
	budget, count       int
	metrics             *Metrics
	err                 error // fatal
	exhausted           bool
	last                []float64
	accepted            *Conditions // conditions and residuals of the current iterate
}

// accept records the trees of the last evaluation as those of the current iterate.
func (e *evaluator) accept() {
	e.accepted = NewConditions()
	for _, k := range []string{ConditionsTree, Residuals} {
		if t, ok := e.seg.State.Tree(k); ok {
			e.accepted.SetTree(k, t.Clone())
		}
	}
}

// restore leaves the state at the iterate u when the last evaluation was elsewhere.
func (e *evaluator) restore(u []float64) {
	if e.accepted == nil || floats.Equal(e.last, u) {
		return
	}
	if err := e.unknowns.UnpackArray(u); err != nil {
		return
	}
	for _, k := range e.accepted.Keys() {
		t, _ := e.accepted.Tree(k)
		e.seg.State.SetTree(k, t)
	}
	e.last = append(e.last[:0], u...)
}

func (e *evaluator) stopped() bool {
	return e.err != nil || e.exhausted
}

// residual unpacks u, runs the iterate process and returns the packed residuals.
func (e *evaluator) residual(u []float64) ([]float64, bool) {
	if e.stopped() {
		return nil, false
	}
	if e.count >= e.budget {
		e.exhausted = true
		return nil, false
	}
	if err := e.unknowns.UnpackArray(u); err != nil {
		e.err = err
		return nil, false
	}
	e.count++
	e.metrics.evaluated(e.seg.Tag)
	e.last = append(e.last[:0], u...)
	if err := e.seg.Process.Iterate.Run(e.seg); err != nil {
		e.err = stageError("iterate", err)
		return nil, false
	}
	if size := e.unknowns.Size(); size != e.size {
		e.err = &StructuralMismatchError{Path: Unknowns, Reason: fmt.Sprintf("changed from %d to %d values during the solve", e.size, size)}
		return nil, false
	}
	r := e.residuals.PackArray()
	switch {
	case len(r) == 0:
		e.err = &StructuralMismatchError{Path: Residuals, Reason: fmt.Sprintf("no residuals to drive %d unknowns", e.size)}
		return nil, false
	case e.rsize == 0:
		e.rsize = len(r)
	case len(r) != e.rsize:
		e.err = &StructuralMismatchError{Path: Residuals, Reason: fmt.Sprintf("changed from %d to %d values during the solve", e.rsize, len(r))}
		return nil, false
	}
	return r, true
}

// Solve drives the unknowns of the segment until the residuals vanish or the budget is spent.
// The returned error is only set for fatal conditions: a stage error or a structural change.
func (d *Driver) Solve(seg *Segment) (SolverResult, error) {
	method := d.Settings.method()
	if method != RootFinder && method != Optimizer {
		return SolverResult{Status: Failed, Message: "unknown solver method"},
			&ConfigurationError{Segment: seg.Tag, Field: "solver.method", Reason: fmt.Sprintf("unknown method %d", d.Settings.Method)}
	}
	unknowns := seg.State.Sub(Unknowns)
	residuals := seg.State.Sub(Residuals)
	size := unknowns.Size()
	if size == 0 {
		// Nothing to solve for, the state only needs to be evaluated once.
		d.Metrics.evaluated(seg.Tag)
		if err := seg.Process.Iterate.Run(seg); err != nil {
			return SolverResult{Status: Failed, Evaluations: 1}, stageError("iterate", err)
		}
		r := residuals.PackArray()
		res := SolverResult{Status: Converged, Evaluations: 1, ResidualNorm: infNorm(r), Residuals: r, Message: "no unknowns"}
		d.Metrics.solved(method, res.Status, res.Evaluations)
		return res, nil
	}
	ev := &evaluator{seg: seg, unknowns: unknowns, residuals: residuals, size: size, budget: d.Settings.MaxEvaluations, metrics: d.Metrics}
	x0 := unknowns.PackArray()
	var res SolverResult
	if method == Optimizer {
		res = d.minimize(ev, x0)
	} else {
		res = d.newton(ev, x0)
	}
	res.Evaluations = ev.count
	if ev.err != nil {
		res.Status = Failed
		res.Message = ev.err.Error()
		d.Metrics.solved(method, res.Status, res.Evaluations)
		return res, ev.err
	}
	if res.Status != Converged {
		res.Status = Failed
		if ev.exhausted {
			res.Message = fmt.Sprintf("evaluation budget of %d exhausted", d.Settings.MaxEvaluations)
		}
		ev.restore(res.Unknowns)
		res.Err = d.diagnose(seg, res)
	}
	d.Metrics.solved(method, res.Status, res.Evaluations)
	seg.log("level", levelOf(res.Status), "subsys", "solver", "method", method, "status", res.Status, "evaluations", res.Evaluations, "iterations", res.Iterations, "|R|", res.ResidualNorm)
	return res, nil
}

// newton runs damped Newton iterations with a forward difference Jacobian.
func (d *Driver) newton(ev *evaluator, x []float64) SolverResult {
	res := SolverResult{Status: Unconverged, Unknowns: x, ResidualNorm: math.Inf(1)}
	r, ok := ev.residual(x)
	if !ok {
		return res
	}
	ev.accept()
	n := len(x)
	for {
		norm := infNorm(r)
		res.Residuals, res.ResidualNorm, res.Unknowns = r, norm, append([]float64(nil), x...)
		if norm < d.Settings.Tolerance {
			res.Status = Converged
			return res
		}
		if math.IsNaN(norm) || math.IsInf(norm, 0) {
			res.Message = "residuals are not finite"
			return res
		}
		m := len(r)
		jac := mat.NewDense(m, n, nil)
		fd.Jacobian(jac, func(y, u []float64) {
			ry, ok := ev.residual(u)
			if !ok || len(ry) != len(y) {
				floats.AddConst(math.NaN(), y)
				return
			}
			copy(y, ry)
		}, append([]float64(nil), x...), &fd.JacobianSettings{
			Formula:     fd.Forward,
			OriginValue: r,
			Step:        d.Settings.Step * math.Max(1, infNorm(x)),
		})
		if ev.stopped() {
			return res
		}
		negR := make([]float64, m)
		floats.ScaleTo(negR, -1, r)
		var dx mat.VecDense
		if err := dx.SolveVec(jac, mat.NewVecDense(m, negR)); err != nil {
			// An ill conditioned Jacobian still yields a usable step.
			if _, ill := err.(mat.Condition); !ill || floats.HasNaN(dx.RawVector().Data) {
				res.Message = fmt.Sprintf("singular Jacobian: %s", err)
				return res
			}
		}
		// Backtrack on the step length while the residuals grow.
		α := 1.0
		trial := make([]float64, n)
		for k := 0; ; k++ {
			floats.AddScaledTo(trial, x, α, dx.RawVector().Data)
			rt, ok := ev.residual(trial)
			if !ok {
				return res
			}
			if infNorm(rt) < norm || k == maxBacktracks {
				copy(x, trial)
				r = rt
				ev.accept()
				break
			}
			α /= 2
		}
		res.Iterations++
	}
}

// residualConverger stops the minimization once ‖R‖₂ = √(2F) is within tolerance.
type residualConverger struct {
	tol float64
}

func (c *residualConverger) Init(dim int) {}

func (c *residualConverger) Converged(loc *optimize.Location) optimize.Status {
	if math.Sqrt(2*loc.F) < c.tol {
		return optimize.Success
	}
	return optimize.NotTerminated
}

// minimize solves the equality constrained problem through the penalty ½‖R‖².
func (d *Driver) minimize(ev *evaluator, x0 []float64) SolverResult {
	res := SolverResult{Status: Unconverged, Unknowns: x0, ResidualNorm: math.Inf(1)}
	r, ok := ev.residual(x0)
	if !ok {
		return res
	}
	best, bestR := append([]float64(nil), x0...), r
	res.Residuals, res.ResidualNorm = r, infNorm(r)
	if res.ResidualNorm < d.Settings.Tolerance {
		res.Status = Converged
		return res
	}
	// One evaluation is kept to leave the state at the best point.
	remaining := ev.budget - ev.count - 1
	if remaining < 1 {
		ev.exhausted = true
		return res
	}
	problem := optimize.Problem{
		Func: func(u []float64) float64 {
			r, ok := ev.residual(u)
			if !ok {
				return math.Inf(1)
			}
			if infNorm(r) < infNorm(bestR) {
				best, bestR = append(best[:0], u...), r
			}
			return 0.5 * floats.Dot(r, r)
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: remaining,
		Converger:       &residualConverger{d.Settings.Tolerance},
	}
	// Keep the evaluation of the final point out of the penalty search.
	ev.budget--
	optRes, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	ev.budget++
	if ev.err != nil {
		return res
	}
	spent := ev.exhausted
	ev.exhausted = false
	if err != nil && optRes == nil {
		res.Message = err.Error()
		return res
	}
	if optRes != nil {
		res.Iterations = optRes.Stats.MajorIterations
	}
	if !floats.Equal(ev.last, best) {
		if r, ok := ev.residual(best); ok {
			bestR = r
		}
	}
	res.Unknowns, res.Residuals, res.ResidualNorm = best, bestR, infNorm(bestR)
	if res.ResidualNorm < d.Settings.Tolerance {
		res.Status = Converged
		return res
	}
	ev.exhausted = spent || ev.count >= ev.budget
	if err != nil {
		res.Message = err.Error()
	}
	return res
}

// diagnose builds the failure naming the largest residual and the unknown at the same index.
func (d *Driver) diagnose(seg *Segment, res SolverResult) *ConvergenceFailure {
	cf := &ConvergenceFailure{Segment: seg.Tag, Cause: res.Message, Evaluations: res.Evaluations, ResidualNorm: res.ResidualNorm}
	if cf.Cause == "" {
		cf.Cause = "residuals did not vanish"
	}
	if len(res.Residuals) == 0 {
		return cf
	}
	worst := floats.MaxIdx(absAll(res.Residuals))
	if labels := seg.State.Sub(Residuals).Labels(); worst < len(labels) {
		cf.Worst = labels[worst]
	}
	if labels := seg.State.Sub(Unknowns).Labels(); worst < len(labels) {
		cf.Paired = labels[worst]
	}
	if nu, nr := seg.State.Sub(Unknowns).Size(), len(res.Residuals); nu != nr {
		cf.Cause += fmt.Sprintf(" (unbalanced: %d unknowns for %d residuals)", nu, nr)
	}
	return cf
}

func infNorm(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, math.Inf(1))
}

func absAll(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, val := range v {
		out[i] = math.Abs(val)
	}
	return out
}

func levelOf(s SolverStatus) string {
	if s == Converged {
		return "info"
	}
	return "critical"
}
