package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Ozmachines/Eletric-Machines/pkg/logging"
	"github.com/Ozmachines/Eletric-Machines/pkg/models"
	"github.com/Ozmachines/Eletric-Machines/pkg/solver"
	"github.com/Ozmachines/Eletric-Machines/pkg/store"
)

var (
	cfgFile      string
	machineFile  string
	dbPath       string
	solverKind   string
	solverBinary string
	modelDoc     string
	logLevel     string
	logDir       string
	outputFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "machmap",
	Short: "Efficiency-map pipeline for permanent magnet machines",
	Long: `machmap drives an external magnetostatic FEM solver across operating
points of a permanent magnet synchronous machine and post-processes the
field solutions into harmonic loss estimates and a torque/speed
efficiency map.`,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.machmap/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&machineFile, "machine", "", "machine description YAML (default: built-in Prius 2004)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "sweep database path (default $HOME/.machmap/machmap.db)")
	rootCmd.PersistentFlags().StringVar(&solverKind, "solver", "auto", "solver backend: auto, external or analytic")
	rootCmd.PersistentFlags().StringVar(&solverBinary, "solver-bin", "femmcli", "external solver binary")
	rootCmd.PersistentFlags().StringVar(&modelDoc, "model", "", "solver model document (default from machine description)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "also write logs to <dir>/machmap.log")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}

		viper.AddConfigPath(filepath.Join(home, ".machmap"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("machmap")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		applyConfigString("machine", &machineFile)
		applyConfigString("db", &dbPath)
		applyConfigString("solver", &solverKind)
		applyConfigString("solver_bin", &solverBinary)
		applyConfigString("model", &modelDoc)
		applyConfigString("log_level", &logLevel)
		applyConfigString("log_dir", &logDir)
	}
}

// applyConfigString fills a flag variable from config unless the flag was
// set explicitly (flags take precedence over the config file)
func applyConfigString(key string, target *string) {
	v := viper.GetString(key)
	if v == "" {
		return
	}
	if !rootCmd.PersistentFlags().Changed(flagName(key)) {
		*target = v
	}
}

// flagName maps config keys to flag names
func flagName(key string) string {
	switch key {
	case "solver_bin":
		return "solver-bin"
	case "log_level":
		return "log-level"
	case "log_dir":
		return "log-dir"
	default:
		return key
	}
}

// newLogger builds the shared logger from the global flags, tee'd into
// <log-dir>/machmap.log when a log directory is configured
func newLogger() (*logging.Logger, error) {
	level := logging.ParseLevel(logLevel)
	if logDir == "" {
		return logging.NewLogger(level, false), nil
	}
	return logging.NewFileLogger(logDir, "machmap", level, false)
}

// loadMachine resolves the machine description
func loadMachine() (*models.Machine, error) {
	if machineFile == "" {
		return models.Prius2004(), nil
	}
	return models.LoadMachine(machineFile)
}

// openStore opens the sweep database
func openStore() (store.Store, error) {
	path := dbPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to find home directory: %w", err)
		}
		dir := filepath.Join(home, ".machmap")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
		path = filepath.Join(dir, "machmap.db")
	}
	return store.NewSQLiteStore(path)
}

// newSolver builds the solver backend from the global flags
func newSolver(machine *models.Machine, log *logging.Logger) (solver.Solver, error) {
	doc := modelDoc
	if doc == "" {
		doc = machine.Document
	}
	cfg := solver.DefaultExternalConfig(doc)
	cfg.Binary = solverBinary
	return solver.Select(solver.Kind(solverKind), machine, cfg, log)
}
