package segments

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/leadsgroup/segsim"
	"gonum.org/v1/gonum/mat"
)

// Propulsor defines the propulsion system of a vehicle.
type Propulsor interface {
	// Returns the available thrust in Newtons at the provided air density.
	MaxThrust(density float64) float64
}

/* Available propulsors */

// LapseEngine is an air breathing engine whose thrust scales with density as (ρ/ρ₀)^Exponent.
type LapseEngine struct {
	SeaLevelThrust float64
	Exponent       float64
}

// MaxThrust implements the Propulsor interface.
func (e *LapseEngine) MaxThrust(density float64) float64 {
	return e.SeaLevelThrust * math.Pow(density/SeaLevelDensity, e.Exponent)
}

// ConstantThrust provides the same thrust at any density (e.g. a rocket).
type ConstantThrust struct {
	Thrust float64
}

// MaxThrust implements the Propulsor interface.
func (c *ConstantThrust) MaxThrust(density float64) float64 {
	return c.Thrust
}

// VehicleConfig is the decoded vehicle table of a scenario.
type VehicleConfig struct {
	Name          string  `mapstructure:"name" validate:"required"`
	Mass          float64 `mapstructure:"mass" validate:"gt=0"`
	ReferenceArea float64 `mapstructure:"reference_area" validate:"gt=0"`
	LiftSlope     float64 `mapstructure:"lift_slope" validate:"gt=0"`
	ZeroLiftDrag  float64 `mapstructure:"cd0" validate:"gte=0"`
	InducedDrag   float64 `mapstructure:"k" validate:"gte=0"`
	MaxThrust     float64 `mapstructure:"max_thrust" validate:"gt=0"`
	ThrustLapse   float64 `mapstructure:"thrust_lapse" validate:"gte=0"`
}

// Vehicle is a point mass with a parabolic drag polar and a single propulsor. It stands
// in for the aerodynamic and propulsion correlations of a real vehicle.
type Vehicle struct {
	Name          string
	Mass          float64 // kg
	ReferenceArea float64 // m²
	LiftSlope     float64 // per radian
	ZeroLiftDrag  float64 // CD0
	InducedDrag   float64 // K in CD = CD0 + K·CL²
	Propulsor     Propulsor
}

// NewVehicle validates the configuration and returns the vehicle.
func NewVehicle(conf VehicleConfig) (*Vehicle, error) {
	if err := validator.New().Struct(conf); err != nil {
		return nil, &segsim.ConfigurationError{Field: "vehicle", Reason: err.Error()}
	}
	return &Vehicle{
		Name:          conf.Name,
		Mass:          conf.Mass,
		ReferenceArea: conf.ReferenceArea,
		LiftSlope:     conf.LiftSlope,
		ZeroLiftDrag:  conf.ZeroLiftDrag,
		InducedDrag:   conf.InducedDrag,
		Propulsor:     &LapseEngine{conf.MaxThrust, conf.ThrustLapse},
	}, nil
}

func (v *Vehicle) String() string {
	return fmt.Sprintf("%s (%.1f kg, S=%.2f m²)", v.Name, v.Mass, v.ReferenceArea)
}

// Weights sets the mass of every point and the gravity force.
func (v *Vehicle) Weights() segsim.Stage {
	return segsim.StageFunc(func(seg *segsim.Segment) error {
		n := seg.Points()
		seg.State.Set("conditions.weights.total_mass", seg.Column(v.Mass))
		gravity := mat.NewDense(n, 2, nil)
		for i := 0; i < n; i++ {
			gravity.Set(i, 1, -v.Mass*Gravity)
		}
		seg.State.Set("conditions.frames.inertial.gravity_force", gravity)
		return nil
	})
}

// Aerodynamics computes the lift and drag of the drag polar, and the resulting inertial force.
// It only writes under `conditions.aerodynamics`.
func (v *Vehicle) Aerodynamics() segsim.Stage {
	return segsim.StageFunc(func(seg *segsim.Segment) error {
		theta, ok := seg.State.Array(bodyAnglePath)
		if !ok {
			return fmt.Errorf("no body angle")
		}
		vel, _ := seg.State.Array(velocityPath)
		q, ok := seg.State.Array("conditions.freestream.dynamic_pressure")
		if !ok {
			return fmt.Errorf("no dynamic pressure")
		}
		n := seg.Points()
		alpha := mat.NewDense(n, 1, nil)
		cl := mat.NewDense(n, 1, nil)
		cd := mat.NewDense(n, 1, nil)
		gammas := mat.NewDense(n, 1, nil)
		wind := mat.NewDense(n, 2, nil)
		for i := 0; i < n; i++ {
			gamma := math.Atan2(vel.At(i, 1), vel.At(i, 0))
			α := theta.At(i, 0) - gamma
			CL := v.LiftSlope * α
			CD := v.ZeroLiftDrag + v.InducedDrag*CL*CL
			qS := q.At(i, 0) * v.ReferenceArea
			gammas.Set(i, 0, gamma)
			alpha.Set(i, 0, α)
			cl.Set(i, 0, CL)
			cd.Set(i, 0, CD)
			// Drag opposes the velocity, lift is normal to it.
			wind.Set(i, 0, -qS*CD)
			wind.Set(i, 1, qS*CL)
		}
		aero := seg.State.Sub("conditions.aerodynamics")
		aero.Set("angle_of_attack", alpha)
		aero.Set("lift_coefficient", cl)
		aero.Set("drag_coefficient", cd)
		aero.Set("force", segsim.RotateRows(gammas, wind))
		return nil
	})
}

// Propulsion computes the thrust from `conditions.propulsion.throttle`, along the body axis.
// It only writes under `conditions.propulsion`.
func (v *Vehicle) Propulsion() segsim.Stage {
	return segsim.StageFunc(func(seg *segsim.Segment) error {
		throttle, ok := seg.State.Array(throttlePath)
		if !ok {
			return fmt.Errorf("no throttle")
		}
		theta, ok := seg.State.Array(bodyAnglePath)
		if !ok {
			return fmt.Errorf("no body angle")
		}
		rho, ok := seg.State.Array("conditions.freestream.density")
		if !ok {
			return fmt.Errorf("no density")
		}
		n := seg.Points()
		thrust := mat.NewDense(n, 1, nil)
		body := mat.NewDense(n, 2, nil)
		for i := 0; i < n; i++ {
			T := throttle.At(i, 0) * v.Propulsor.MaxThrust(rho.At(i, 0))
			thrust.Set(i, 0, T)
			body.Set(i, 0, T)
		}
		prop := seg.State.Sub("conditions.propulsion")
		prop.Set("thrust", thrust)
		prop.Set("force", segsim.RotateRows(theta, body))
		return nil
	})
}
