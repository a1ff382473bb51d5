// Package effmap assembles per-current loss breakdowns into a torque/speed
// efficiency map.
package effmap

import (
	"fmt"
	"math"

	"github.com/Ozmachines/Eletric-Machines/pkg/harmonics"
	"github.com/Ozmachines/Eletric-Machines/pkg/loss"
	"github.com/Ozmachines/Eletric-Machines/pkg/models"
)

// SpeedGrid describes the speed axis in rpm
type SpeedGrid struct {
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
	Steps int     `yaml:"steps"`
}

// DefaultSpeedGrid matches the reference study: 400 to 4000 rpm in 9 steps
func DefaultSpeedGrid() SpeedGrid {
	return SpeedGrid{Min: 400, Max: 4000, Steps: 9}
}

// Speeds expands the grid
func (g SpeedGrid) Speeds() ([]float64, error) {
	if g.Steps <= 0 {
		return nil, fmt.Errorf("speed grid needs at least one step, got %d", g.Steps)
	}
	if g.Steps == 1 {
		return []float64{g.Min}, nil
	}
	speeds := make([]float64, g.Steps)
	for i := range speeds {
		speeds[i] = g.Min + (g.Max-g.Min)*float64(i)/float64(g.Steps-1)
	}
	return speeds, nil
}

// RowInput is the post-processed field data of one current magnitude
type RowInput struct {
	Current   float64 // peak phase current
	Beta      float64 // MTPA angle, degrees
	AvgTorque float64 // gap torque averaged over the rotor steps
	Spectrum  *harmonics.Spectrum
}

// Cell is one (torque row, speed) entry of the map
type Cell struct {
	Speed       float64        `json:"speed"`  // rpm
	Torque      float64        `json:"torque"` // N m
	OutputPower float64        `json:"output_power"`
	Losses      loss.Breakdown `json:"losses"`
	Efficiency  float64        `json:"efficiency"` // percent, 0 when no output
}

// Row is the map row of one current magnitude
type Row struct {
	Current float64 `json:"current"`
	Beta    float64 `json:"beta"`
	Torque  float64 `json:"torque"`
	Cells   []Cell  `json:"cells"`
}

// Map is the assembled efficiency map
type Map struct {
	Machine string    `json:"machine"`
	Speeds  []float64 `json:"speeds"`
	Rows    []Row     `json:"rows"`
}

// Assemble computes the loss breakdown and efficiency for every
// (current, speed) cell. Rows keep the input order; each row is keyed by its
// average torque. Cells with no positive output power get efficiency 0
// rather than a division blow-up: a zero-current or zero-speed point
// delivers nothing to the shaft.
func Assemble(machine *models.Machine, mesh *models.Mesh, rows []RowInput, grid SpeedGrid) (*Map, error) {
	speeds, err := grid.Speeds()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no current rows to assemble")
	}

	coeffs := loss.CoefficientsFor(machine)
	volumes := mesh.Volumes()

	out := &Map{
		Machine: machine.Name,
		Speeds:  speeds,
		Rows:    make([]Row, 0, len(rows)),
	}

	for _, in := range rows {
		row := Row{
			Current: in.Current,
			Beta:    in.Beta,
			Torque:  in.AvgTorque,
			Cells:   make([]Cell, 0, len(speeds)),
		}

		for _, rpm := range speeds {
			breakdown := loss.Compute(in.Spectrum, mesh, volumes, coeffs, rpm, in.Current)

			omega := rpm * 2 * math.Pi / 60
			pout := in.AvgTorque * omega

			cell := Cell{
				Speed:       rpm,
				Torque:      in.AvgTorque,
				OutputPower: pout,
				Losses:      breakdown,
			}
			if pout > 0 {
				cell.Efficiency = 100 * pout / (pout + breakdown.Total())
			}
			row.Cells = append(row.Cells, cell)
		}

		out.Rows = append(out.Rows, row)
	}

	return out, nil
}

// EfficiencyGrid returns the efficiency surface as rows x speeds
func (m *Map) EfficiencyGrid() [][]float64 {
	grid := make([][]float64, len(m.Rows))
	for i, row := range m.Rows {
		grid[i] = make([]float64, len(row.Cells))
		for j, cell := range row.Cells {
			grid[i][j] = cell.Efficiency
		}
	}
	return grid
}

// Torques returns the torque axis, one value per row
func (m *Map) Torques() []float64 {
	t := make([]float64, len(m.Rows))
	for i, row := range m.Rows {
		t[i] = row.Torque
	}
	return t
}

// Peak returns the cell with the highest efficiency
func (m *Map) Peak() Cell {
	var best Cell
	for _, row := range m.Rows {
		for _, cell := range row.Cells {
			if cell.Efficiency > best.Efficiency {
				best = cell
			}
		}
	}
	return best
}
