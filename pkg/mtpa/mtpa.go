// Package mtpa finds, per stator current magnitude, the current vector angle
// that maximizes the solver-reported electromagnetic torque.
package mtpa

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Ozmachines/Eletric-Machines/pkg/logging"
	"github.com/Ozmachines/Eletric-Machines/pkg/models"
	"github.com/Ozmachines/Eletric-Machines/pkg/park"
	"github.com/Ozmachines/Eletric-Machines/pkg/solver"
)

// Config controls the angle search grid
type Config struct {
	BetaMin    float64 // degrees, inclusive
	BetaMax    float64 // degrees, inclusive
	BetaSteps  int
	RotorAngle float64 // mechanical degrees, fixed during the search
}

// DefaultConfig matches the reference sweep: 0 to 90 degrees in 15 steps
func DefaultConfig() Config {
	return Config{
		BetaMin:   0,
		BetaMax:   90,
		BetaSteps: 15,
	}
}

// Sample is one evaluated angle
type Sample struct {
	Beta   float64 `json:"beta"`
	Torque float64 `json:"torque"`
}

// Result is the outcome of the search for one current magnitude
type Result struct {
	Current float64  `json:"current"`
	Beta    float64  `json:"beta"`   // angle of maximum torque
	Torque  float64  `json:"torque"` // torque at that angle
	Curve   []Sample `json:"curve"`
}

// betaGrid expands the search grid
func betaGrid(cfg Config) ([]float64, error) {
	if cfg.BetaSteps <= 0 {
		return nil, fmt.Errorf("beta grid needs at least one step, got %d", cfg.BetaSteps)
	}
	if cfg.BetaSteps == 1 {
		return []float64{cfg.BetaMin}, nil
	}
	grid := make([]float64, cfg.BetaSteps)
	for i := range grid {
		grid[i] = cfg.BetaMin + (cfg.BetaMax-cfg.BetaMin)*float64(i)/float64(cfg.BetaSteps-1)
	}
	return grid, nil
}

// Search evaluates the torque over the beta grid for one current magnitude
// and returns the maximizing angle. A zero current returns beta 0 without
// touching the solver: every angle produces zero torque there.
func Search(ctx context.Context, s solver.Solver, machine *models.Machine, current float64, cfg Config) (Result, error) {
	if current == 0 {
		return Result{Current: 0}, nil
	}

	grid, err := betaGrid(cfg)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Current: current,
		Torque:  math.Inf(-1),
		Curve:   make([]Sample, 0, len(grid)),
	}

	for _, beta := range grid {
		id, iq := park.DQ(current, beta)
		req := solver.Request{
			PhaseCurrents: park.Phase(id, iq, machine.PolePairs, cfg.RotorAngle),
			RotorAngle:    cfg.RotorAngle,
		}

		frame, err := s.Analyze(ctx, req)
		if err != nil {
			return Result{}, fmt.Errorf("torque at %.1f A, beta %.1f deg: %w", current, beta, err)
		}

		result.Curve = append(result.Curve, Sample{Beta: beta, Torque: frame.Torque})
		if frame.Torque > result.Torque {
			result.Torque = frame.Torque
			result.Beta = beta
		}
	}

	return result, nil
}

// SearchAll runs the search for a ladder of current magnitudes
func SearchAll(ctx context.Context, s solver.Solver, machine *models.Machine, currents []float64, cfg Config, log *logging.Logger) ([]Result, error) {
	results := make([]Result, 0, len(currents))
	for _, current := range currents {
		start := time.Now()
		res, err := Search(ctx, s, machine, current, cfg)
		if err != nil {
			return nil, err
		}
		log.Info("MTPA angle found", map[string]interface{}{
			"current": current,
			"beta":    res.Beta,
			"torque":  res.Torque,
			"elapsed": time.Since(start).Seconds(),
		})
		results = append(results, res)
	}
	return results, nil
}
