package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/Ozmachines/Eletric-Machines/pkg/effmap"
	"github.com/Ozmachines/Eletric-Machines/pkg/harmonics"
	"github.com/Ozmachines/Eletric-Machines/pkg/models"
	"github.com/Ozmachines/Eletric-Machines/pkg/store"
	"github.com/Ozmachines/Eletric-Machines/pkg/sweep"
)

var (
	mapSpeedMin   float64
	mapSpeedMax   float64
	mapSpeedSteps int
	mapPlotPath   string
	mapSigma      float64
	mapFloor      float64
	mapLatest     bool
)

var mapCmd = &cobra.Command{
	Use:   "map [sweep-id]",
	Short: "Compute losses and assemble the efficiency map",
	Long: `Post-processes a completed sweep: per-element FFT over the rotor
steps, loss aggregation by mechanism across the speed grid, and the
torque/speed efficiency map. Reads everything from the sweep database;
no solver runs.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMap,
}

func init() {
	rootCmd.AddCommand(mapCmd)

	mapCmd.Flags().Float64Var(&mapSpeedMin, "speed-min", 400, "lowest speed in rpm")
	mapCmd.Flags().Float64Var(&mapSpeedMax, "speed-max", 4000, "highest speed in rpm")
	mapCmd.Flags().IntVar(&mapSpeedSteps, "speed-steps", 9, "number of speed points")
	mapCmd.Flags().StringVar(&mapPlotPath, "plot", "", "write a contour plot to this file (.png, .pdf, .svg)")
	mapCmd.Flags().Float64Var(&mapSigma, "sigma", 0.8, "Gaussian smoothing for the plot, 0 disables")
	mapCmd.Flags().Float64Var(&mapFloor, "floor", 40, "clamp plot efficiencies below this percent")
	mapCmd.Flags().BoolVar(&mapLatest, "latest", false, "use the most recent completed sweep")
}

func runMap(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Close()

	machine, err := loadMachine()
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	sweepID, err := resolveSweepID(st, args)
	if err != nil {
		return err
	}

	result, err := sweep.Load(st, sweepID)
	if err != nil {
		return err
	}

	log.Info("Post-processing sweep", map[string]interface{}{
		"sweep":    sweepID,
		"rows":     len(result.Sweep.Currents),
		"elements": len(result.Mesh.Elements),
	})

	rows := make([]effmap.RowInput, len(result.Sweep.Currents))
	for i := range result.Sweep.Currents {
		spec, err := harmonics.Analyze(result.Frames[i], result.Mesh, machine.RotorMagnets)
		if err != nil {
			return fmt.Errorf("harmonic analysis of row %d: %w", i, err)
		}
		rows[i] = effmap.RowInput{
			Current:   result.Sweep.Currents[i],
			Beta:      result.Sweep.Betas[i],
			AvgTorque: result.AvgTorque[i],
			Spectrum:  spec,
		}
	}

	grid := effmap.SpeedGrid{Min: mapSpeedMin, Max: mapSpeedMax, Steps: mapSpeedSteps}
	m, err := effmap.Assemble(machine, result.Mesh, rows, grid)
	if err != nil {
		return err
	}

	if mapPlotPath != "" {
		opts := effmap.RenderOptions{Sigma: mapSigma, Floor: mapFloor, Levels: 17}
		if err := effmap.Render(m, opts, mapPlotPath); err != nil {
			return err
		}
		fmt.Printf("Efficiency map written to %s\n", mapPlotPath)
	}

	if outputFormat == "json" {
		out, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	printMapTable(m)
	return nil
}

// resolveSweepID picks the sweep from the argument or --latest
func resolveSweepID(st store.Store, args []string) (string, error) {
	if len(args) == 1 && !mapLatest {
		return args[0], nil
	}
	if len(args) == 1 {
		return "", fmt.Errorf("give either a sweep ID or --latest, not both")
	}
	if !mapLatest {
		return "", fmt.Errorf("sweep ID required (or use --latest)")
	}

	sweeps, err := st.ListSweeps()
	if err != nil {
		return "", err
	}
	for i := len(sweeps) - 1; i >= 0; i-- {
		if sweeps[i].Status == models.SweepStatusCompleted {
			return sweeps[i].ID, nil
		}
	}
	return "", fmt.Errorf("no completed sweeps in the database")
}

// printMapTable renders the efficiency grid with one row per torque level
func printMapTable(m *effmap.Map) {
	table := tablewriter.NewWriter(os.Stdout)

	header := make([]string, 0, len(m.Speeds)+1)
	header = append(header, "Torque (Nm) \\ Speed (rpm)")
	for _, s := range m.Speeds {
		header = append(header, fmt.Sprintf("%.0f", s))
	}
	table.Header(toAnySlice(header)...)

	for _, row := range m.Rows {
		cells := make([]string, 0, len(row.Cells)+1)
		cells = append(cells, fmt.Sprintf("%.1f", row.Torque))
		for _, c := range row.Cells {
			cells = append(cells, fmt.Sprintf("%.1f%%", c.Efficiency))
		}
		table.Append(toAnySlice(cells)...)
	}
	table.Render()

	peak := m.Peak()
	fmt.Printf("\nPeak efficiency %.1f%% at %.1f Nm, %.0f rpm (losses: %.0f W)\n",
		peak.Efficiency, peak.Torque, peak.Speed, peak.Losses.Total())
}

func toAnySlice(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
