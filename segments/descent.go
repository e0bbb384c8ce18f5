package segments

import (
	"math"

	"github.com/leadsgroup/segsim"
)

// Descent returns a segment descending at constant air speed along a constant angle
// (in degrees, positive downwards) to `altitude_end`.
// Attributes: air_speed, descent_angle, altitude_end, altitude_start (optional).
func Descent(tag string, v *Vehicle, grid *segsim.Grid) (*segsim.Segment, error) {
	seg, err := trimmed(tag, v, grid)
	if err != nil {
		return nil, err
	}
	seg.Process.Initialize.AppendFunc("flight_path", func(seg *segsim.Segment) error {
		h0, err := seg.Boundary("altitude_start", altitudePath)
		if err != nil {
			return err
		}
		h1, err := seg.Require("altitude_end")
		if err != nil {
			return err
		}
		speed, err := seg.Require("air_speed")
		if err != nil {
			return err
		}
		angle, err := seg.Require("descent_angle")
		if err != nil {
			return err
		}
		switch {
		case angle <= 0 || angle >= 90:
			return &segsim.ConfigurationError{Segment: seg.Tag, Field: "descent_angle", Reason: "must be within (0, 90) degrees"}
		case h1 >= h0:
			return &segsim.ConfigurationError{Segment: seg.Tag, Field: "altitude_end", Reason: "must be below the start altitude"}
		}
		γ := segsim.Deg2rad(angle)
		return constantPath(seg, speed, -γ, (h0-h1)/(speed*math.Sin(γ)), h0)
	})
	return seg, nil
}
