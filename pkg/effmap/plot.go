package effmap

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// RenderOptions controls the contour rendering
type RenderOptions struct {
	Sigma  float64 // Gaussian smoothing, 0 disables
	Floor  float64 // clamp floor in percent, 0 disables
	Levels int     // number of contour levels
}

// DefaultRenderOptions matches the reference plot: sigma 0.8, floor 40 %,
// 17 levels
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{Sigma: 0.8, Floor: 40, Levels: 17}
}

// mapGrid adapts the efficiency surface to the plotter grid interface:
// columns are speeds, rows are torque levels.
type mapGrid struct {
	speeds  []float64
	torques []float64
	eff     [][]float64 // [row][col]
}

func (g mapGrid) Dims() (c, r int)   { return len(g.speeds), len(g.torques) }
func (g mapGrid) Z(c, r int) float64 { return g.eff[r][c] }
func (g mapGrid) X(c int) float64    { return g.speeds[c] }
func (g mapGrid) Y(r int) float64    { return g.torques[r] }

// Render draws the efficiency map as a filled heat map with contour lines
// and writes it to path (format by extension, e.g. .png or .pdf).
func Render(m *Map, opts RenderOptions, path string) error {
	if len(m.Rows) < 2 || len(m.Speeds) < 2 {
		return fmt.Errorf("map too small to render: %d rows x %d speeds", len(m.Rows), len(m.Speeds))
	}

	eff := m.EfficiencyGrid()
	if opts.Floor > 0 {
		eff = Clamp(eff, opts.Floor)
	}
	if opts.Sigma > 0 {
		eff = Smooth(eff, opts.Sigma)
	}

	grid := mapGrid{
		speeds:  m.Speeds,
		torques: m.Torques(),
		eff:     eff,
	}

	levels := opts.Levels
	if levels <= 0 {
		levels = 17
	}

	lo, hi := gridRange(eff)
	contourLevels := make([]float64, levels)
	for i := range contourLevels {
		contourLevels[i] = lo + (hi-lo)*float64(i+1)/float64(levels+1)
	}

	p := plot.New()
	p.Title.Text = m.Machine + " efficiency map"
	p.X.Label.Text = "Speed (rpm)"
	p.Y.Label.Text = "Torque (Nm)"

	colors := moreland.SmoothBlueRed().Palette(levels)
	p.Add(plotter.NewHeatMap(grid, colors))

	contours := plotter.NewContour(grid, contourLevels, moreland.BlackBody().Palette(1))
	p.Add(contours)

	if err := p.Save(6.5*vg.Inch, 3.5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save efficiency map: %w", err)
	}
	return nil
}

func gridRange(grid [][]float64) (lo, hi float64) {
	first := true
	for _, row := range grid {
		for _, v := range row {
			if first {
				lo, hi = v, v
				first = false
				continue
			}
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	return lo, hi
}
