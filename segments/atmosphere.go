package segments

import (
	"fmt"
	"math"

	"github.com/leadsgroup/segsim"
	"gonum.org/v1/gonum/mat"
)

// International standard atmosphere, troposphere and lower stratosphere.
const (
	SeaLevelTemperature = 288.15   // K
	SeaLevelPressure    = 101325.0 // Pa
	SeaLevelDensity     = 1.225    // kg/m³
	LapseRate           = 0.0065   // K/m
	GasConstant         = 287.05   // J/(kg·K)
	HeatRatio           = 1.4
	Gravity             = 9.80665 // m/s²
	tropopause          = 11000.0
	ceiling             = 20000.0
)

// Air holds the thermodynamic state of the air at one altitude.
type Air struct {
	Temperature, Pressure, Density, SpeedOfSound float64
}

// ISA returns the standard atmosphere at the provided geometric altitude in meters.
func ISA(altitude float64) (Air, error) {
	if altitude < -500 || altitude > ceiling || math.IsNaN(altitude) {
		return Air{}, fmt.Errorf("altitude %.1f m out of the atmosphere model range", altitude)
	}
	// The stratosphere is isothermal at the tropopause temperature.
	T := SeaLevelTemperature - LapseRate*math.Min(altitude, tropopause)
	p := SeaLevelPressure * math.Pow(T/SeaLevelTemperature, Gravity/(LapseRate*GasConstant))
	if altitude > tropopause {
		p *= math.Exp(-Gravity * (altitude - tropopause) / (GasConstant * T))
	}
	return Air{T, p, p / (GasConstant * T), math.Sqrt(HeatRatio * GasConstant * T)}, nil
}

// Atmosphere is a stage computing the freestream air properties from `conditions.freestream.altitude`.
var Atmosphere = segsim.StageFunc(func(seg *segsim.Segment) error {
	h, ok := seg.State.Array(altitudePath)
	if !ok {
		return fmt.Errorf("no altitude to evaluate the atmosphere at")
	}
	n, _ := h.Dims()
	T := mat.NewDense(n, 1, nil)
	p := mat.NewDense(n, 1, nil)
	rho := mat.NewDense(n, 1, nil)
	a := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		air, err := ISA(h.At(i, 0))
		if err != nil {
			return err
		}
		T.Set(i, 0, air.Temperature)
		p.Set(i, 0, air.Pressure)
		rho.Set(i, 0, air.Density)
		a.Set(i, 0, air.SpeedOfSound)
	}
	fs := seg.State.Sub("conditions.freestream")
	fs.Set("temperature", T)
	fs.Set("pressure", p)
	fs.Set("density", rho)
	fs.Set("speed_of_sound", a)
	return nil
})
