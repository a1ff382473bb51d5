package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var sweepsCmd = &cobra.Command{
	Use:   "sweeps",
	Short: "List sweeps in the database",
	RunE:  runSweeps,
}

func init() {
	rootCmd.AddCommand(sweepsCmd)
}

func runSweeps(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	sweeps, err := st.ListSweeps()
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		out, err := json.MarshalIndent(sweeps, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	if len(sweeps) == 0 {
		fmt.Println("No sweeps in the database")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Machine", "Solver", "Currents", "Steps", "Status", "Created")
	for _, s := range sweeps {
		table.Append(
			s.ID,
			s.Machine,
			s.Solver,
			fmt.Sprintf("%d", len(s.Currents)),
			fmt.Sprintf("%d", s.RotorSteps),
			string(s.Status),
			s.CreatedAt.Format(time.RFC3339),
		)
	}
	table.Render()

	return nil
}
