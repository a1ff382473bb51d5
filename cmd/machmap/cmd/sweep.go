package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/Ozmachines/Eletric-Machines/pkg/metrics"
	"github.com/Ozmachines/Eletric-Machines/pkg/mtpa"
	"github.com/Ozmachines/Eletric-Machines/pkg/shutdown"
	"github.com/Ozmachines/Eletric-Machines/pkg/sweep"
)

var (
	sweepCurrents    []float64
	sweepBetas       []float64
	sweepRotorSteps  int
	sweepWorkers     int
	sweepMetricsAddr string
	sweepResumeID    string
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Capture field data across the operating range",
	Long: `Runs the field capture: for each current magnitude at its MTPA angle,
one solver run per rotor step across a full mechanical revolution. Field
frames persist to the sweep database as they arrive, so an interrupted run
can be finished with --resume.

Without --betas the MTPA search runs first.`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().Float64SliceVar(&sweepCurrents, "currents", sweep.ReferenceCurrents,
		"current magnitudes in ampere peak")
	sweepCmd.Flags().Float64SliceVar(&sweepBetas, "betas", nil,
		"current angles in degrees, one per current (default: run the MTPA search)")
	sweepCmd.Flags().IntVar(&sweepRotorSteps, "rotor-steps", 30, "rotor positions per revolution")
	sweepCmd.Flags().IntVar(&sweepWorkers, "workers", 1, "concurrent solver invocations")
	sweepCmd.Flags().StringVar(&sweepMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while sweeping")
	sweepCmd.Flags().StringVar(&sweepResumeID, "resume", "", "finish an interrupted sweep by ID")
}

func runSweep(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}

	machine, err := loadMachine()
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}

	s, err := newSolver(machine, log)
	if err != nil {
		st.Close()
		return err
	}

	mgr := shutdown.New(30 * time.Second)
	mgr.Register(shutdown.CloseResource(st, "sweep database"))
	mgr.Register(shutdown.CloseResource(s, "solver"))
	mgr.Register(shutdown.CloseResource(log, "logger"))
	defer mgr.Shutdown()

	ctx := mgr.CancelOnSignal(context.Background())

	var m *metrics.SweepMetrics
	if sweepMetricsAddr != "" {
		m = metrics.NewSweepMetrics()
		srv := m.Serve(sweepMetricsAddr)
		mgr.Register(shutdown.StopHTTPServer(srv, "metrics"))
		log.Info("Metrics server listening", map[string]interface{}{"addr": sweepMetricsAddr})
	}

	runner := sweep.NewRunner(s, machine, st, m, log)

	var result *sweep.Result
	if sweepResumeID != "" {
		result, err = runner.Resume(ctx, sweepResumeID, sweepWorkers)
	} else {
		betas := sweepBetas
		if len(betas) == 0 {
			log.Info("No beta angles given, running MTPA search first")
			mtpaResults, merr := mtpa.SearchAll(ctx, s, machine, sweepCurrents, mtpa.DefaultConfig(), log)
			if merr != nil {
				return merr
			}
			betas = make([]float64, len(mtpaResults))
			for i, r := range mtpaResults {
				betas[i] = r.Beta
			}
		}

		result, err = runner.Run(ctx, sweep.Config{
			Currents:   sweepCurrents,
			Betas:      betas,
			RotorSteps: sweepRotorSteps,
			Workers:    sweepWorkers,
		})
	}
	if err != nil {
		return err
	}

	fmt.Printf("Sweep %s completed\n\n", result.Sweep.ID)

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Current (A)", "Beta (deg)", "Avg Torque (Nm)")
	for i, current := range result.Sweep.Currents {
		table.Append(
			fmt.Sprintf("%.2f", current),
			fmt.Sprintf("%.2f", result.Sweep.Betas[i]),
			fmt.Sprintf("%.2f", result.AvgTorque[i]),
		)
	}
	table.Render()

	return nil
}
