package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/leadsgroup/segsim"
	"github.com/leadsgroup/segsim/segments"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/spf13/viper"
)

const dateFormat = "2006-01-02 15:04:05"

// Scenario is a mission read from a scenario file, ready to be evaluated.
type Scenario struct {
	Mission *segsim.Mission
	Vehicle *segments.Vehicle
	Export  segsim.ExportConfig
}

// loadScenario reads the scenario file and builds every segment.
func loadScenario(path string) (*Scenario, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	name := v.GetString("mission.name")
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	epoch, err := confReadJDEorTime(v, "mission.epoch")
	if err != nil {
		return nil, err
	}

	vehicle, err := segments.DecodeVehicle(v.GetStringMap("vehicle"))
	if err != nil {
		return nil, err
	}

	var raw []map[string]interface{}
	if err := v.UnmarshalKey("segments", &raw); err != nil {
		return nil, &segsim.ConfigurationError{Field: "segments", Reason: err.Error()}
	}
	if len(raw) == 0 {
		return nil, &segsim.ConfigurationError{Field: "segments", Reason: "at least one segment is required"}
	}
	m := segsim.NewMission(name)
	m.ContinueOnFailure = v.GetBool("mission.continue_on_failure")
	for i, table := range raw {
		conf, err := segments.Decode(table)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		if _, dup := m.Segment(conf.Tag); dup {
			return nil, &segsim.ConfigurationError{Segment: conf.Tag, Field: "tag", Reason: "used by more than one segment"}
		}
		seg, err := segments.Build(conf, vehicle)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		m.Append(seg)
	}

	export := segsim.ExportConfig{
		Filename:  name,
		Epoch:     epoch,
		AsCSV:     v.GetBool("export.csv"),
		Merged:    v.GetBool("export.merged"),
		Summary:   v.GetBool("export.summary"),
		Timestamp: v.GetBool("export.timestamp"),
	}
	if v.IsSet("export.filename") {
		export.Filename = v.GetString("export.filename")
	}
	return &Scenario{Mission: m, Vehicle: vehicle, Export: export}, nil
}

// confReadJDEorTime reads a date either as a Julian date or as a `2006-01-02 15:04:05` UTC string.
// An unset key is the zero time.
func confReadJDEorTime(v *viper.Viper, key string) (dt time.Time, err error) {
	if !v.IsSet(key) {
		return
	}
	jde := v.GetFloat64(key)
	if jde == 0 {
		dt, err = time.Parse(dateFormat, v.GetString(key))
		if err != nil {
			err = &segsim.ConfigurationError{Field: key, Reason: err.Error()}
		}
	} else {
		dt = julian.JDToTime(jde)
	}
	return
}
