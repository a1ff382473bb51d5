package cmd

import (
	"fmt"
	"os/exec"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the host and the solver setup",
	Long: `Doctor surveys the host (CPU cores, memory), checks whether the
external solver binary is reachable, and suggests a worker count
for sweeps on this machine.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	physical, err := cpu.Counts(false)
	if err != nil {
		return fmt.Errorf("failed to count CPUs: %w", err)
	}
	logical, err := cpu.Counts(true)
	if err != nil {
		return fmt.Errorf("failed to count CPUs: %w", err)
	}

	fmt.Printf("CPU: %d physical cores, %d logical\n", physical, logical)

	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		fmt.Printf("Model: %s\n", infos[0].ModelName)
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return fmt.Errorf("failed to read memory info: %w", err)
	}
	fmt.Printf("Memory: %.1f GB total, %.1f GB available\n",
		float64(vm.Total)/1e9, float64(vm.Available)/1e9)

	// Each solver process loads the full mesh, so leave a core for the
	// coordinator and cap by available memory (~1 GB per worker).
	workers := physical - 1
	if workers < 1 {
		workers = 1
	}
	if byMem := int(vm.Available / (1 << 30)); byMem < workers && byMem >= 1 {
		workers = byMem
	}
	fmt.Printf("Suggested sweep workers: %d\n", workers)

	if path, err := exec.LookPath(solverBinary); err == nil {
		fmt.Printf("Solver binary: %s (%s)\n", solverBinary, path)
	} else {
		fmt.Printf("Solver binary: %s not found on PATH, sweeps will use the analytic backend\n", solverBinary)
	}

	return nil
}
