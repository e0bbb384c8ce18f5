package segments

import (
	"math"

	"github.com/leadsgroup/segsim"
	"gonum.org/v1/gonum/mat"
)

const climbAngleGuess = 3.0 // deg

// FreeTimeClimb returns a segment climbing at constant air speed and constant throttle
// to `altitude_end`. The flight path angle at every point and the duration of the segment
// are solved for, so the time discretization is rebuilt at every iteration.
// Attributes: air_speed, throttle, altitude_end, altitude_start (optional),
// climb_angle_guess (optional, degrees).
func FreeTimeClimb(tag string, v *Vehicle, grid *segsim.Grid) (*segsim.Segment, error) {
	seg, err := segsim.NewSegment(tag, grid)
	if err != nil {
		return nil, err
	}
	seg.State.Set("unknowns.body_angle", segsim.Fill(1, 1, bodyAngleGuess))
	seg.State.Set("unknowns.flight_path_angle", segsim.Fill(1, 1, segsim.Deg2rad(climbAngleGuess)))
	seg.State.SetScalar("unknowns.elapsed_time", 1)
	standard(seg, v, bodyAngleUnknown)

	var x0, h0, h1, speed float64
	seg.Process.Initialize.AppendFunc("flight_path", func(seg *segsim.Segment) error {
		var t0 float64
		var err error
		if h0, err = seg.Boundary("altitude_start", altitudePath); err != nil {
			return err
		}
		if h1, err = seg.Require("altitude_end"); err != nil {
			return err
		}
		if speed, err = seg.Require("air_speed"); err != nil {
			return err
		}
		throttle, err := seg.Require("throttle")
		if err != nil {
			return err
		}
		switch {
		case throttle <= 0 || throttle > 1:
			return &segsim.ConfigurationError{Segment: seg.Tag, Field: "throttle", Reason: "must be within (0, 1]"}
		case speed <= 0:
			return &segsim.ConfigurationError{Segment: seg.Tag, Field: "air_speed", Reason: "must be positive"}
		case h1 <= h0:
			return &segsim.ConfigurationError{Segment: seg.Tag, Field: "altitude_end", Reason: "must be above the start altitude"}
		}
		if t0, x0, err = start(seg); err != nil {
			return err
		}
		guess := climbAngleGuess
		if g, ok := seg.Config.Float("climb_angle_guess"); ok {
			guess = g
		}
		γ := segsim.Deg2rad(guess)
		duration := (h1 - h0) / (speed * math.Sin(γ))
		seg.State.Set("unknowns.flight_path_angle", seg.Column(γ))
		seg.State.SetScalar("unknowns.elapsed_time", duration)
		seg.State.Set(throttlePath, seg.Column(throttle))
		if err := seg.SetTimeSpan(t0, duration); err != nil {
			return err
		}
		gamma := make([]float64, seg.Points())
		for i := range gamma {
			gamma[i] = γ
		}
		flyPath(seg, speed, gamma, x0, h0)
		return nil
	})

	kinematics := segsim.StageFunc(func(seg *segsim.Segment) error {
		gamma, _ := seg.State.Array("unknowns.flight_path_angle")
		flyPath(seg, speed, mat.Col(nil, 0, gamma), x0, h0)
		return nil
	})
	if err := seg.Process.Iterate.InsertAfter("unpack_unknowns", "rescale_time", segsim.RescaleTime); err != nil {
		return nil, err
	}
	if err := seg.Process.Iterate.InsertAfter("rescale_time", "kinematics", kinematics); err != nil {
		return nil, err
	}
	seg.Process.Iterate.AppendFunc("final_altitude", func(seg *segsim.Segment) error {
		h, _ := seg.State.Array(altitudePath)
		n, _ := h.Dims()
		seg.State.SetScalar("residuals.altitude_end", (h.At(n-1, 0)-h1)/(h1-h0))
		return nil
	})
	return seg, nil
}
