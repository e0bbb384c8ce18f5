package segments

import (
	"math"

	"github.com/leadsgroup/segsim"
)

// Initial guesses of the force balance unknowns.
const (
	throttleGuess  = 0.5
	bodyAngleGuess = 0.1 // rad
)

var (
	throttleUnknown  = [2]string{"unknowns.throttle", throttlePath}
	bodyAngleUnknown = [2]string{"unknowns.body_angle", bodyAnglePath}
)

// trimmed creates a segment whose unknowns are the throttle and the body angle at every
// point, driving the two force residuals to zero.
func trimmed(tag string, v *Vehicle, grid *segsim.Grid) (*segsim.Segment, error) {
	seg, err := segsim.NewSegment(tag, grid)
	if err != nil {
		return nil, err
	}
	seg.State.Set("unknowns.throttle", segsim.Fill(1, 1, throttleGuess))
	seg.State.Set("unknowns.body_angle", segsim.Fill(1, 1, bodyAngleGuess))
	standard(seg, v, throttleUnknown, bodyAngleUnknown)
	return seg, nil
}

// Climb returns a segment climbing at constant air speed and constant rate, from
// `altitude_start` (or where the previous segment ended) to `altitude_end`.
// Attributes: air_speed, climb_rate, altitude_end, altitude_start (optional).
func Climb(tag string, v *Vehicle, grid *segsim.Grid) (*segsim.Segment, error) {
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
		rate, err := seg.Require("climb_rate")
		if err != nil {
			return err
		}
		switch {
		case rate <= 0 || rate >= speed:
			return &segsim.ConfigurationError{Segment: seg.Tag, Field: "climb_rate", Reason: "must be positive and below the air speed"}
		case h1 <= h0:
			return &segsim.ConfigurationError{Segment: seg.Tag, Field: "altitude_end", Reason: "must be above the start altitude"}
		}
		return constantPath(seg, speed, math.Asin(rate/speed), (h1-h0)/rate, h0)
	})
	return seg, nil
}
