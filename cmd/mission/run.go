package main

import (
	"fmt"
	"os"

	kitlog "github.com/go-kit/log"
	"github.com/leadsgroup/segsim"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate the mission and export its results",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("scenario")
		verbose, _ := cmd.Flags().GetBool("verbose")
		gateway, _ := cmd.Flags().GetString("pushgateway")
		return run(path, verbose, gateway)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Read the scenario and build every segment without solving",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("scenario")
		sc, err := loadScenario(path)
		if err != nil {
			return err
		}
		fmt.Printf("vehicle: %s\n", sc.Vehicle)
		for i, seg := range sc.Mission.Segments {
			fmt.Printf("%02d %s\n", i, seg)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().String("pushgateway", "", "Prometheus push gateway URL for the solver metrics")
	rootCmd.AddCommand(runCmd, validateCmd)
}

func run(path string, verbose bool, gateway string) error {
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	sc, err := loadScenario(path)
	if err != nil {
		return err
	}
	m := sc.Mission
	if verbose {
		m.SetLogger(logger)
	} else {
		m.SetLogger(kitlog.NewNopLogger())
	}
	reg := prometheus.NewRegistry()
	m.Metrics = segsim.NewMetrics(reg)
	logger.Log("level", "info", "subsys", "mission", "scenario", path, "vehicle", sc.Vehicle, "segments", len(m.Segments))

	res, evalErr := m.Evaluate()
	if evalErr != nil {
		logger.Log("level", "critical", "subsys", "mission", "err", evalErr)
	}
	if res != nil && !sc.Export.IsUseless() {
		files, err := segsim.Export(sc.Export, m, res)
		for _, f := range files {
			logger.Log("level", "info", "subsys", "export", "file", f)
		}
		if err != nil {
			return err
		}
	}
	if gateway != "" {
		if err := push.New(gateway, "segsim").Grouping("mission", m.Tag).Gatherer(reg).Push(); err != nil {
			logger.Log("level", "warning", "subsys", "metrics", "gateway", gateway, "err", err)
		}
	}
	if evalErr != nil {
		return evalErr
	}
	logger.Log("level", "notice", "subsys", "mission", "status", "converged", "id", res.ID)
	return nil
}
