package segments

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/leadsgroup/segsim"
	"github.com/mitchellh/mapstructure"
)

// Template creates a segment of a given type.
type Template func(tag string, v *Vehicle, grid *segsim.Grid) (*segsim.Segment, error)

// Templates are the available segment types, by scenario name.
var Templates = map[string]Template{
	"climb":           Climb,
	"cruise":          Cruise,
	"descent":         Descent,
	"free_time_climb": FreeTimeClimb,
}

// required are the attributes each segment type cannot run without.
var required = map[string][]string{
	"climb":           {"altitude_end", "climb_rate"},
	"cruise":          {"distance"},
	"descent":         {"altitude_end", "descent_angle"},
	"free_time_climb": {"altitude_end", "throttle"},
}

// Config is one segment table of a scenario file.
type Config struct {
	Tag            string `mapstructure:"tag" validate:"required"`
	Type           string `mapstructure:"type" validate:"required,oneof=climb cruise descent free_time_climb"`
	Points         int    `mapstructure:"points" validate:"omitempty,min=2"`
	Method         string `mapstructure:"method" validate:"omitempty,oneof=chebyshev linear"`
	Solver         string `mapstructure:"solver" validate:"omitempty,oneof=root_finder optimizer"`
	MaxEvaluations int    `mapstructure:"max_evaluations" validate:"omitempty,min=1"`

	AltitudeStart   *float64 `mapstructure:"altitude_start" validate:"omitempty,gte=0,lte=20000"`
	AltitudeEnd     *float64 `mapstructure:"altitude_end" validate:"omitempty,gte=0,lte=20000"`
	Altitude        *float64 `mapstructure:"altitude" validate:"omitempty,gte=0,lte=20000"`
	AirSpeed        float64  `mapstructure:"air_speed" validate:"gt=0"`
	ClimbRate       *float64 `mapstructure:"climb_rate" validate:"omitempty,gt=0"`
	DescentAngle    *float64 `mapstructure:"descent_angle" validate:"omitempty,gt=0,lt=90"`
	Distance        *float64 `mapstructure:"distance" validate:"omitempty,gt=0"`
	Throttle        *float64 `mapstructure:"throttle" validate:"omitempty,gt=0,lte=1"`
	ClimbAngleGuess *float64 `mapstructure:"climb_angle_guess" validate:"omitempty,gt=0,lt=90"`
}

// Attributes returns the segment attributes which are set.
func (c Config) Attributes() segsim.Attributes {
	attrs := segsim.Attributes{"air_speed": c.AirSpeed}
	for key, ptr := range map[string]*float64{
		"altitude_start":    c.AltitudeStart,
		"altitude_end":      c.AltitudeEnd,
		"altitude":          c.Altitude,
		"climb_rate":        c.ClimbRate,
		"descent_angle":     c.DescentAngle,
		"distance":          c.Distance,
		"throttle":          c.Throttle,
		"climb_angle_guess": c.ClimbAngleGuess,
	} {
		if ptr != nil {
			attrs[key] = *ptr
		}
	}
	return attrs
}

// decode copies a scenario table into result. Numbers may be written as strings,
// unknown keys are an error.
func decode(raw map[string]interface{}, result interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           result,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// Decode decodes and validates a segment table.
func Decode(raw map[string]interface{}) (Config, error) {
	var conf Config
	if err := decode(raw, &conf); err != nil {
		return conf, &segsim.ConfigurationError{Segment: fmt.Sprint(raw["tag"]), Field: "segment", Reason: err.Error()}
	}
	if err := validator.New().Struct(conf); err != nil {
		return conf, &segsim.ConfigurationError{Segment: conf.Tag, Field: "segment", Reason: err.Error()}
	}
	attrs := conf.Attributes()
	for _, key := range required[conf.Type] {
		if _, ok := attrs[key]; !ok {
			return conf, &segsim.ConfigurationError{Segment: conf.Tag, Field: key, Reason: fmt.Sprintf("required by %s segments", conf.Type)}
		}
	}
	return conf, nil
}

// DecodeVehicle decodes a vehicle table.
func DecodeVehicle(raw map[string]interface{}) (*Vehicle, error) {
	var conf VehicleConfig
	if err := decode(raw, &conf); err != nil {
		return nil, &segsim.ConfigurationError{Field: "vehicle", Reason: err.Error()}
	}
	return NewVehicle(conf)
}

// Build creates the segment described by conf, flown by v. The default grid and solver
// settings are used unless conf overrides them.
func Build(conf Config, v *Vehicle) (*segsim.Segment, error) {
	template, ok := Templates[conf.Type]
	if !ok {
		return nil, &segsim.ConfigurationError{Segment: conf.Tag, Field: "type", Reason: fmt.Sprintf("unknown segment type `%s`", conf.Type)}
	}
	var grid *segsim.Grid
	if conf.Points > 0 || conf.Method != "" {
		def, err := segsim.DefaultGrid()
		if err != nil {
			return nil, err
		}
		points, method := def.Points(), def.Method
		if conf.Points > 0 {
			points = conf.Points
		}
		if conf.Method != "" {
			if method, err = segsim.MethodFromString(conf.Method); err != nil {
				return nil, err
			}
		}
		if grid, err = segsim.NewGrid(points, method); err != nil {
			return nil, err
		}
	}
	seg, err := template(conf.Tag, v, grid)
	if err != nil {
		return nil, err
	}
	for k, val := range conf.Attributes() {
		seg.Config[k] = val
	}
	if conf.Solver != "" {
		if seg.Driver.Settings.Method, err = segsim.SolverMethodFromString(conf.Solver); err != nil {
			return nil, err
		}
	}
	if conf.MaxEvaluations > 0 {
		seg.Driver.Settings.MaxEvaluations = conf.MaxEvaluations
	}
	return seg, nil
}
