package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/Ozmachines/Eletric-Machines/pkg/mtpa"
	"github.com/Ozmachines/Eletric-Machines/pkg/shutdown"
	"github.com/Ozmachines/Eletric-Machines/pkg/sweep"
)

var (
	mtpaCurrents  []float64
	mtpaBetaMin   float64
	mtpaBetaMax   float64
	mtpaBetaSteps int
)

var mtpaCmd = &cobra.Command{
	Use:   "mtpa",
	Short: "Find the maximum-torque current angle per current magnitude",
	Long: `Sweeps the current vector angle beta over a grid for each current
magnitude and reports the angle that maximizes the electromagnetic torque.
One solver run per (current, beta) pair, rotor held fixed.`,
	RunE: runMTPA,
}

func init() {
	rootCmd.AddCommand(mtpaCmd)

	mtpaCmd.Flags().Float64SliceVar(&mtpaCurrents, "currents", sweep.ReferenceCurrents,
		"current magnitudes in ampere peak")
	mtpaCmd.Flags().Float64Var(&mtpaBetaMin, "beta-min", 0, "first beta angle in degrees")
	mtpaCmd.Flags().Float64Var(&mtpaBetaMax, "beta-max", 90, "last beta angle in degrees")
	mtpaCmd.Flags().IntVar(&mtpaBetaSteps, "beta-steps", 15, "number of beta angles")
}

func runMTPA(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Close()

	machine, err := loadMachine()
	if err != nil {
		return err
	}

	s, err := newSolver(machine, log)
	if err != nil {
		return err
	}
	defer s.Close()

	mgr := shutdown.New(10 * time.Second)
	ctx := mgr.CancelOnSignal(context.Background())

	cfg := mtpa.Config{
		BetaMin:   mtpaBetaMin,
		BetaMax:   mtpaBetaMax,
		BetaSteps: mtpaBetaSteps,
	}

	results, err := mtpa.SearchAll(ctx, s, machine, mtpaCurrents, cfg, log)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		out, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Current (A)", "Beta (deg)", "Torque (Nm)")
	for _, r := range results {
		table.Append(
			fmt.Sprintf("%.2f", r.Current),
			fmt.Sprintf("%.2f", r.Beta),
			fmt.Sprintf("%.2f", r.Torque),
		)
	}
	table.Render()

	return nil
}
