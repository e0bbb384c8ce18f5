package segments

import "github.com/leadsgroup/segsim"

// Cruise returns a segment flying level at constant air speed over a given distance.
// Attributes: air_speed, distance, altitude (optional, else where the previous segment ended).
func Cruise(tag string, v *Vehicle, grid *segsim.Grid) (*segsim.Segment, error) {
	seg, err := trimmed(tag, v, grid)
	if err != nil {
		return nil, err
	}
	seg.Process.Initialize.AppendFunc("flight_path", func(seg *segsim.Segment) error {
		h, err := seg.Boundary("altitude", altitudePath)
		if err != nil {
			return err
		}
		speed, err := seg.Require("air_speed")
		if err != nil {
			return err
		}
		distance, err := seg.Require("distance")
		if err != nil {
			return err
		}
		if distance <= 0 || speed <= 0 {
			return &segsim.ConfigurationError{Segment: seg.Tag, Field: "distance", Reason: "distance and air speed must be positive"}
		}
		return constantPath(seg, speed, 0, distance/speed, h)
	})
	return seg, nil
}
