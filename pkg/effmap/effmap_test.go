package effmap

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/Ozmachines/Eletric-Machines/pkg/harmonics"
	"github.com/Ozmachines/Eletric-Machines/pkg/models"
)

func TestSpeedGrid(t *testing.T) {
	tests := []struct {
		name    string
		grid    SpeedGrid
		want    []float64
		wantErr bool
	}{
		// The reference axis: 400..4000 rpm in 9 steps of 450
		{"default", DefaultSpeedGrid(), []float64{400, 850, 1300, 1750, 2200, 2650, 3100, 3550, 4000}, false},
		{"single", SpeedGrid{Min: 1000, Max: 2000, Steps: 1}, []float64{1000}, false},
		{"invalid", SpeedGrid{Steps: 0}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			speeds, err := tt.grid.Speeds()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(speeds) != len(tt.want) {
				t.Fatalf("got %d speeds, want %d", len(speeds), len(tt.want))
			}
			for i := range speeds {
				if math.Abs(speeds[i]-tt.want[i]) > 1e-9 {
					t.Errorf("speeds[%d] = %v, want %v", i, speeds[i], tt.want[i])
				}
			}
		})
	}
}

// emptySpectrum builds a spectrum with no harmonic content for a mesh
func emptySpectrum(steps, elements int) *harmonics.Spectrum {
	bins := steps/2 + 1
	spec := &harmonics.Spectrum{Steps: steps}
	spec.Bsq = make([][]float64, bins)
	spec.BsqEx = make([][]float64, bins)
	spec.Jm = make([][]complex128, bins)
	for k := 0; k < bins; k++ {
		spec.Bsq[k] = make([]float64, elements)
		spec.BsqEx[k] = make([]float64, elements)
		spec.Jm[k] = make([]complex128, elements)
	}
	return spec
}

func testMesh() *models.Mesh {
	return &models.Mesh{
		Elements: []models.Element{
			{Area: 2, Group: models.GroupStatorIron},
			{Area: 1, Group: models.GroupWindings},
		},
		Depth:     10,
		UnitScale: 1e-3,
	}
}

func TestAssemble(t *testing.T) {
	machine := models.Prius2004()
	mesh := testMesh()

	rows := []RowInput{
		{Current: 0, Beta: 0, AvgTorque: 0, Spectrum: emptySpectrum(30, 2)},
		{Current: 100, Beta: 40, AvgTorque: 120, Spectrum: emptySpectrum(30, 2)},
	}

	m, err := Assemble(machine, mesh, rows, DefaultSpeedGrid())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(m.Rows) != 2 || len(m.Rows[0].Cells) != 9 {
		t.Fatalf("map shape = %d rows x %d speeds", len(m.Rows), len(m.Rows[0].Cells))
	}

	// Zero torque delivers nothing: efficiency pinned to 0, not NaN
	for _, cell := range m.Rows[0].Cells {
		if cell.Efficiency != 0 {
			t.Errorf("zero-torque efficiency = %v, want 0", cell.Efficiency)
		}
	}

	// The loaded row has only ohmic loss (empty spectrum), so efficiency
	// rises with speed as output power grows against a fixed loss
	cells := m.Rows[1].Cells
	for j := range cells {
		omega := cells[j].Speed * 2 * math.Pi / 60
		wantPout := 120 * omega
		if math.Abs(cells[j].OutputPower-wantPout) > 1e-6 {
			t.Errorf("speed %v: Pout = %v, want %v", cells[j].Speed, cells[j].OutputPower, wantPout)
		}
		want := 100 * wantPout / (wantPout + cells[j].Losses.Total())
		if math.Abs(cells[j].Efficiency-want) > 1e-9 {
			t.Errorf("speed %v: efficiency = %v, want %v", cells[j].Speed, cells[j].Efficiency, want)
		}
		if j > 0 && cells[j].Efficiency <= cells[j-1].Efficiency {
			t.Errorf("efficiency not increasing with speed at %v rpm", cells[j].Speed)
		}
	}

	// Peak must come from the loaded row at the top speed
	peak := m.Peak()
	if peak.Speed != 4000 {
		t.Errorf("peak at %v rpm, want 4000", peak.Speed)
	}
}

func TestAssembleNoRows(t *testing.T) {
	if _, err := Assemble(models.Prius2004(), testMesh(), nil, DefaultSpeedGrid()); err == nil {
		t.Error("expected an error with no rows")
	}
}

func TestEfficiencyGridShape(t *testing.T) {
	machine := models.Prius2004()
	rows := []RowInput{
		{Current: 50, AvgTorque: 30, Spectrum: emptySpectrum(30, 2)},
		{Current: 100, AvgTorque: 80, Spectrum: emptySpectrum(30, 2)},
	}
	m, err := Assemble(machine, testMesh(), rows, SpeedGrid{Min: 1000, Max: 3000, Steps: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	grid := m.EfficiencyGrid()
	if len(grid) != 2 || len(grid[0]) != 3 {
		t.Fatalf("grid shape = %dx%d, want 2x3", len(grid), len(grid[0]))
	}
	torques := m.Torques()
	if torques[0] != 30 || torques[1] != 80 {
		t.Errorf("torque axis = %v", torques)
	}
}

func TestSmooth(t *testing.T) {
	// A constant field is a fixed point of the filter, including the edges
	grid := [][]float64{{5, 5, 5}, {5, 5, 5}, {5, 5, 5}}
	out := Smooth(grid, 0.8)
	for i := range out {
		for j := range out[i] {
			if math.Abs(out[i][j]-5) > 1e-12 {
				t.Errorf("constant grid changed at (%d,%d): %v", i, j, out[i][j])
			}
		}
	}

	// A spike spreads but the center stays the maximum
	grid = [][]float64{{0, 0, 0}, {0, 9, 0}, {0, 0, 0}}
	out = Smooth(grid, 0.8)
	if out[1][1] >= 9 || out[1][1] <= 0 {
		t.Errorf("center = %v, want between 0 and 9", out[1][1])
	}
	if out[0][0] <= 0 {
		t.Errorf("corner = %v, want spread above 0", out[0][0])
	}
	if out[0][0] >= out[1][1] {
		t.Error("smoothing moved the maximum off the spike")
	}

	// Sigma 0 copies the input
	out = Smooth(grid, 0)
	if out[1][1] != 9 || out[0][0] != 0 {
		t.Errorf("sigma 0 altered the grid: %v", out)
	}
}

func TestClamp(t *testing.T) {
	grid := [][]float64{{10, 50}, {40, 95}}
	out := Clamp(grid, 40)
	want := [][]float64{{40, 50}, {40, 95}}
	for i := range want {
		for j := range want[i] {
			if out[i][j] != want[i][j] {
				t.Errorf("clamp (%d,%d) = %v, want %v", i, j, out[i][j], want[i][j])
			}
		}
	}
	// Input untouched
	if grid[0][0] != 10 {
		t.Error("Clamp modified its input")
	}
}

func TestRender(t *testing.T) {
	machine := models.Prius2004()
	rows := []RowInput{
		{Current: 50, AvgTorque: 30, Spectrum: emptySpectrum(30, 2)},
		{Current: 100, AvgTorque: 80, Spectrum: emptySpectrum(30, 2)},
		{Current: 150, AvgTorque: 140, Spectrum: emptySpectrum(30, 2)},
	}
	m, err := Assemble(machine, testMesh(), rows, SpeedGrid{Min: 400, Max: 4000, Steps: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "map.png")
	if err := Render(m, DefaultRenderOptions(), path); err != nil {
		t.Fatalf("render failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("no output file: %v", err)
	}
	if info.Size() == 0 {
		t.Error("rendered file is empty")
	}
}
