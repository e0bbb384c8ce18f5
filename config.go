package segsim

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

var (
	cfgLoaded = false
	config    = _segsimconfig{}
)

// _segsimconfig is a "hidden" struct, just use `segsimConfig`
type _segsimconfig struct {
	Solver    SolverSettings
	Points    int
	Method    Method
	outputDir string
}

func defaultConfig() _segsimconfig {
	return _segsimconfig{
		Solver:    SolverSettings{Method: RootFinder, Tolerance: 1e-6, MaxEvaluations: 2000, Step: 1e-7},
		Points:    16,
		Method:    Chebyshev,
		outputDir: ".",
	}
}

// segsimConfig returns the segsim configuration. The configuration is read from
// `conf.toml` in the directory pointed to by `SEGSIM_CONFIG`, and defaults are used
// for anything which is not set (or if the variable is unset).
func segsimConfig() _segsimconfig {
	if cfgLoaded {
		return config
	}
	conf, err := loadConfig(os.Getenv("SEGSIM_CONFIG"))
	if err != nil {
		panic(err)
	}
	config = conf
	cfgLoaded = true
	return config
}

func loadConfig(confPath string) (_segsimconfig, error) {
	conf := defaultConfig()
	if confPath == "" {
		return conf, nil
	}
	v := viper.New()
	v.SetConfigName("conf")
	v.AddConfigPath(confPath)
	if err := v.ReadInConfig(); err != nil {
		return conf, fmt.Errorf("%s/conf.toml: %w", confPath, err)
	}
	if v.IsSet("solver.method") {
		m, err := SolverMethodFromString(v.GetString("solver.method"))
		if err != nil {
			return conf, err
		}
		conf.Solver.Method = m
	}
	if v.IsSet("solver.tolerance") {
		conf.Solver.Tolerance = v.GetFloat64("solver.tolerance")
	}
	if v.IsSet("solver.max_evaluations") {
		conf.Solver.MaxEvaluations = v.GetInt("solver.max_evaluations")
	}
	if v.IsSet("solver.step") {
		conf.Solver.Step = v.GetFloat64("solver.step")
	}
	if v.IsSet("numerics.points") {
		conf.Points = v.GetInt("numerics.points")
	}
	if v.IsSet("numerics.method") {
		m, err := MethodFromString(v.GetString("numerics.method"))
		if err != nil {
			return conf, err
		}
		conf.Method = m
	}
	if v.IsSet("general.output_path") {
		conf.outputDir = v.GetString("general.output_path")
	}
	if conf.Solver.Tolerance <= 0 {
		return conf, &ConfigurationError{Field: "solver.tolerance", Reason: "must be positive"}
	}
	return conf, nil
}

// DefaultSolverSettings returns the solver settings from the configuration.
func DefaultSolverSettings() SolverSettings {
	return segsimConfig().Solver
}

// DefaultGrid returns a grid built from the configured number of points and method.
func DefaultGrid() (*Grid, error) {
	conf := segsimConfig()
	return NewGrid(conf.Points, conf.Method)
}

// OutputDir returns the configured output directory.
func OutputDir() string {
	return segsimConfig().outputDir
}
