package segments

import (
	"fmt"
	"math"

	"github.com/leadsgroup/segsim"
	"gonum.org/v1/gonum/mat"
)

const (
	timePath      = "conditions.frames.inertial.time"
	positionPath  = "conditions.frames.inertial.position"
	velocityPath  = "conditions.frames.inertial.velocity"
	altitudePath  = "conditions.freestream.altitude"
	bodyAnglePath = "conditions.frames.body.angle"
	throttlePath  = "conditions.propulsion.throttle"
)

// start returns the time and downrange distance at which the segment starts: where the
// preceding segment ended, or zero for the first segment.
func start(seg *segsim.Segment) (t0, x0 float64, err error) {
	if !seg.HasInitials() {
		return 0, 0, nil
	}
	if t0, err = seg.InitialValue(timePath); err != nil {
		return
	}
	x0, err = seg.InitialValue(positionPath)
	return
}

// flyPath sets the velocity from the speed and per point flight path angles, and integrates
// the position from (x0, h0) with the current time operators.
func flyPath(seg *segsim.Segment, speed float64, gamma []float64, x0, h0 float64) {
	n := seg.Points()
	vel := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		s, c := math.Sincos(gamma[i])
		vel.Set(i, 0, speed*c)
		vel.Set(i, 1, speed*s)
	}
	_, integrate := seg.TimeOperators()
	var pos mat.Dense
	pos.Mul(integrate, vel)
	for i := 0; i < n; i++ {
		pos.Set(i, 0, pos.At(i, 0)+x0)
		pos.Set(i, 1, pos.At(i, 1)+h0)
	}
	alt := mat.NewDense(n, 1, nil)
	alt.Copy(pos.ColView(1))
	seg.State.Set(velocityPath, vel)
	seg.State.Set(positionPath, &pos)
	seg.State.Set(altitudePath, alt)
}

// constantPath sets the time span and a straight flight path at constant speed and angle.
func constantPath(seg *segsim.Segment, speed, gamma, duration, h0 float64) error {
	t0, x0, err := start(seg)
	if err != nil {
		return err
	}
	if err := seg.SetTimeSpan(t0, duration); err != nil {
		return err
	}
	g := make([]float64, seg.Points())
	for i := range g {
		g[i] = gamma
	}
	flyPath(seg, speed, g, x0, h0)
	return nil
}

// Freestream computes the dynamic pressure and Mach number from the velocity and the atmosphere.
var Freestream = segsim.StageFunc(func(seg *segsim.Segment) error {
	vel, ok := seg.State.Array(velocityPath)
	if !ok {
		return fmt.Errorf("no velocity")
	}
	rho, ok := seg.State.Array("conditions.freestream.density")
	if !ok {
		return fmt.Errorf("no density")
	}
	a, _ := seg.State.Array("conditions.freestream.speed_of_sound")
	V := segsim.Norm(vel)
	n, _ := V.Dims()
	q := mat.NewDense(n, 1, nil)
	mach := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		q.Set(i, 0, 0.5*rho.At(i, 0)*V.At(i, 0)*V.At(i, 0))
		mach.Set(i, 0, V.At(i, 0)/a.At(i, 0))
	}
	fs := seg.State.Sub("conditions.freestream")
	fs.Set("velocity", V)
	fs.Set("dynamic_pressure", q)
	fs.Set("mach_number", mach)
	return nil
})

// Forces sums the aerodynamic, propulsive and gravity forces, and differentiates the
// velocity into the inertial acceleration.
var Forces = segsim.StageFunc(func(seg *segsim.Segment) error {
	var total mat.Dense
	for i, path := range []string{"conditions.aerodynamics.force", "conditions.propulsion.force", "conditions.frames.inertial.gravity_force"} {
		f, ok := seg.State.Array(path)
		if !ok {
			return fmt.Errorf("missing force `%s`", path)
		}
		if i == 0 {
			total.CloneFrom(f)
			continue
		}
		total.Add(&total, f)
	}
	vel, _ := seg.State.Array(velocityPath)
	differentiate, _ := seg.TimeOperators()
	var acc mat.Dense
	acc.Mul(differentiate, vel)
	frame := seg.State.Sub("conditions.frames.inertial")
	frame.Set("total_force", &total)
	frame.Set("acceleration", &acc)
	return nil
})

// ForceResiduals is Newton's second law at every point, normalized by the weight:
// R = (F − m·a)/(m·g).
var ForceResiduals = segsim.StageFunc(func(seg *segsim.Segment) error {
	F, _ := seg.State.Array("conditions.frames.inertial.total_force")
	acc, _ := seg.State.Array("conditions.frames.inertial.acceleration")
	m, ok := seg.State.Array("conditions.weights.total_mass")
	if F == nil || acc == nil || !ok {
		return fmt.Errorf("forces were not computed")
	}
	n, _ := F.Dims()
	r := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		w := m.At(i, 0) * Gravity
		for j := 0; j < 2; j++ {
			r.Set(i, j, (F.At(i, j)-m.At(i, 0)*acc.At(i, j))/w)
		}
	}
	seg.State.Set("residuals.forces", r)
	return nil
})

// Energy computes the kinetic and potential energies, the propulsive power and its
// integral over the segment.
var Energy = segsim.StageFunc(func(seg *segsim.Segment) error {
	vel, _ := seg.State.Array(velocityPath)
	h, _ := seg.State.Array(altitudePath)
	m, _ := seg.State.Array("conditions.weights.total_mass")
	thrust, ok := seg.State.Array("conditions.propulsion.force")
	if vel == nil || h == nil || m == nil || !ok {
		return fmt.Errorf("state is incomplete")
	}
	n, _ := vel.Dims()
	kinetic := mat.NewDense(n, 1, nil)
	potential := mat.NewDense(n, 1, nil)
	power := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		v2 := vel.At(i, 0)*vel.At(i, 0) + vel.At(i, 1)*vel.At(i, 1)
		kinetic.Set(i, 0, 0.5*m.At(i, 0)*v2)
		potential.Set(i, 0, m.At(i, 0)*Gravity*h.At(i, 0))
		power.Set(i, 0, thrust.At(i, 0)*vel.At(i, 0)+thrust.At(i, 1)*vel.At(i, 1))
	}
	_, integrate := seg.TimeOperators()
	var work mat.Dense
	work.Mul(integrate, power)
	energy := seg.State.Sub("conditions.energy")
	energy.Set("kinetic", kinetic)
	energy.Set("potential", potential)
	energy.Set("propulsive_power", power)
	energy.Set("propulsive_work", &work)
	return nil
})

// unpack copies unknowns into the conditions they drive, as {unknown, condition} pairs.
func unpack(pairs ...[2]string) segsim.Stage {
	return segsim.StageFunc(func(seg *segsim.Segment) error {
		for _, pair := range pairs {
			from, to := pair[0], pair[1]
			u, ok := seg.State.Array(from)
			if !ok {
				return fmt.Errorf("missing unknown `%s`", from)
			}
			seg.State.Set(to, mat.DenseCopyOf(u))
		}
		return nil
	})
}

// standard builds the iterate and post process pipelines shared by every segment type:
// unpack the unknowns, evaluate the atmosphere, the loads and the force balance.
func standard(seg *segsim.Segment, v *Vehicle, unknowns ...[2]string) {
	conditions := segsim.NewProcess().
		Append("atmosphere", Atmosphere).
		Append("freestream", Freestream)
	loads := segsim.NewConcurrent()
	loads.Append("aerodynamics", v.Aerodynamics())
	loads.Append("propulsion", v.Propulsion())
	seg.Process.Iterate.
		Append("unpack_unknowns", unpack(unknowns...)).
		Append("conditions", conditions).
		Append("weights", v.Weights()).
		Append("loads", loads).
		Append("forces", Forces).
		Append("residuals", ForceResiduals)
	seg.Process.PostProcess.Append("energy", Energy)
}
