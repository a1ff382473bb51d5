package loss

import (
	"math"
	"testing"

	"github.com/Ozmachines/Eletric-Machines/pkg/harmonics"
	"github.com/Ozmachines/Eletric-Machines/pkg/models"
)

func TestCoefficientsFor(t *testing.T) {
	m := models.Prius2004()
	c := CoefficientsFor(m)

	// Catalog coefficients are per 0.45 kg, so the volumetric value is
	// coeff * density / 0.45
	wantCh := m.HysteresisCoeff * m.SteelDensity / 0.45
	if math.Abs(c.Ch-wantCh) > 1e-9*wantCh {
		t.Errorf("Ch = %v, want %v", c.Ch, wantCh)
	}

	// AWG 25 wire diameter per the standard gauge formula
	wantD := 0.324861 * 0.0254 * math.Exp(-0.115942*25)
	wantO := 58e6 / (1 + 90*0.004)
	wantCePhase := (math.Pi * math.Pi / 8) * wantD * wantD * m.WindingFill * wantO
	if math.Abs(c.CePhase-wantCePhase) > 1e-9*wantCePhase {
		t.Errorf("CePhase = %v, want %v", c.CePhase, wantCePhase)
	}

	// Bin 1 of a one-revolution sweep is the pole-pair fundamental
	if c.LowestHarmonic != m.PolePairs {
		t.Errorf("LowestHarmonic = %d, want %d", c.LowestHarmonic, m.PolePairs)
	}
}

// lossFixture puts unit harmonic content in bin 1 of a four-element mesh,
// one element per region group
func lossFixture() (*harmonics.Spectrum, *models.Mesh) {
	return lossFixtureSteps(30)
}

func lossFixtureSteps(steps int) (*harmonics.Spectrum, *models.Mesh) {
	mesh := &models.Mesh{
		Elements: []models.Element{
			{Area: 2, Group: models.GroupStatorIron},
			{Area: 3, Group: models.GroupRotorIron},
			{Area: 1, Group: models.GroupWindings},
			{Area: 1.5, Group: models.GroupRotorIron + 1},
		},
		Depth:     10,
		UnitScale: 1e-3,
	}

	bins := steps/2 + 1
	spec := &harmonics.Spectrum{Steps: steps}
	spec.Bsq = make([][]float64, bins)
	spec.BsqEx = make([][]float64, bins)
	spec.Jm = make([][]complex128, bins)
	for k := 0; k < bins; k++ {
		spec.Bsq[k] = make([]float64, 4)
		spec.BsqEx[k] = make([]float64, 4)
		spec.Jm[k] = make([]complex128, 4)
	}

	// One harmonic at bin 1: the pole-pair fundamental
	spec.Bsq[1][0] = 1.0
	spec.Bsq[1][1] = 1.0
	spec.Bsq[1][2] = 1.0
	spec.BsqEx[1][0] = 1.0
	spec.BsqEx[1][1] = 1.0
	spec.Jm[1][3] = complex(3e-3, 4e-3)

	return spec, mesh
}

func TestComputeZeroSpeed(t *testing.T) {
	// At standstill only conduction loss remains
	spec, mesh := lossFixture()
	c := CoefficientsFor(models.Prius2004())

	b := Compute(spec, mesh, mesh.Volumes(), c, 0, 100)
	if b.StatorIron != 0 || b.RotorIron != 0 || b.Excess != 0 || b.Proximity != 0 || b.Magnet != 0 {
		t.Errorf("frequency-dependent losses at zero speed: %+v", b)
	}

	// 3 * R * Irms^2 with Irms = 100/sqrt(2)
	wantOhmic := 3 * c.PhaseResistance * (100 / math.Sqrt2) * (100 / math.Sqrt2)
	if math.Abs(b.Ohmic-wantOhmic) > 1e-9*wantOhmic {
		t.Errorf("Ohmic = %v, want %v", b.Ohmic, wantOhmic)
	}
	if math.Abs(b.Total()-wantOhmic) > 1e-9*wantOhmic {
		t.Errorf("Total = %v, want %v", b.Total(), wantOhmic)
	}
}

func TestComputeSingleHarmonic(t *testing.T) {
	spec, mesh := lossFixture()
	m := models.Prius2004()
	c := CoefficientsFor(m)
	volumes := mesh.Volumes()

	const rpm = 3000.0
	fk := float64(c.LowestHarmonic) * rpm / 60 // bin 1 frequency

	b := Compute(spec, mesh, volumes, c, rpm, 0)

	ironFactor := c.Cs * (c.Ch*fk + c.Ce*fk*fk)
	if want := ironFactor * volumes[0]; math.Abs(b.StatorIron-want) > 1e-9*want {
		t.Errorf("StatorIron = %v, want %v", b.StatorIron, want)
	}
	if want := ironFactor * volumes[1]; math.Abs(b.RotorIron-want) > 1e-9*want {
		t.Errorf("RotorIron = %v, want %v", b.RotorIron, want)
	}

	if want := c.CePhase * fk * fk * volumes[2]; math.Abs(b.Proximity-want) > 1e-9*want {
		t.Errorf("Proximity = %v, want %v", b.Proximity, want)
	}

	// Magnet eddy: 0.5 * sigma * (2*pi*f)^2 * |Jm|^2 * v
	jmSq := 3e-3*3e-3 + 4e-3*4e-3
	omega := 2 * math.Pi * fk
	if want := 0.5 * c.MagnetConductivity * omega * omega * jmSq * volumes[3]; math.Abs(b.Magnet-want) > 1e-9*want {
		t.Errorf("Magnet = %v, want %v", b.Magnet, want)
	}

	// Default machine has no excess coefficient
	if b.Excess != 0 {
		t.Errorf("Excess = %v, want 0 with Cx = 0", b.Excess)
	}
	if b.Ohmic != 0 {
		t.Errorf("Ohmic = %v, want 0 with zero current", b.Ohmic)
	}
}

func TestComputeOddStepsKeepsTopBin(t *testing.T) {
	// 31 rotor steps resolve bins up to 15 (15 < 15.5); the top bin must
	// not be swallowed by the Nyquist mask
	spec, mesh := lossFixtureSteps(31)
	topBin := spec.Steps / 2 // 15
	spec.Bsq[topBin][0] = 1.0

	c := CoefficientsFor(models.Prius2004())
	volumes := mesh.Volumes()
	b := Compute(spec, mesh, volumes, c, 3000, 0)

	if b.StatorIron == 0 {
		t.Fatalf("bin %d of a %d-step sweep is below Nyquist but produced no iron loss", topBin, spec.Steps)
	}

	// Exact value: the fixture's bin 1 plus the injected top bin
	ironAt := func(k int) float64 {
		fk := float64(c.LowestHarmonic) * 3000 / 60 * float64(k)
		return c.Cs * (c.Ch*fk + c.Ce*fk*fk) * volumes[0]
	}
	want := ironAt(1) + ironAt(topBin)
	if math.Abs(b.StatorIron-want) > 1e-9*want {
		t.Errorf("StatorIron = %v, want %v", b.StatorIron, want)
	}
}

func TestComputeMasksNyquist(t *testing.T) {
	// Content at and above Steps/2 must not contribute
	spec, mesh := lossFixture()
	nyquist := spec.Steps / 2
	spec.Bsq[nyquist][0] = 100
	spec.BsqEx[nyquist][0] = 100

	c := CoefficientsFor(models.Prius2004())
	b := Compute(spec, mesh, mesh.Volumes(), c, 3000, 0)

	withNyquist := b.StatorIron
	spec.Bsq[nyquist][0] = 0
	spec.BsqEx[nyquist][0] = 0
	b2 := Compute(spec, mesh, mesh.Volumes(), c, 3000, 0)

	if withNyquist != b2.StatorIron {
		t.Errorf("Nyquist bin leaked into the iron loss: %v != %v", withNyquist, b2.StatorIron)
	}
}

func TestComputeExcess(t *testing.T) {
	spec, mesh := lossFixture()
	m := models.Prius2004()
	m.ExcessCoeff = 1e-4
	c := CoefficientsFor(m)
	volumes := mesh.Volumes()

	const rpm = 1200.0
	fk := float64(c.LowestHarmonic) * rpm / 60

	b := Compute(spec, mesh, volumes, c, rpm, 0)
	want := c.Cs * c.Cx * math.Pow(fk, 1.5) * (volumes[0] + volumes[1])
	if math.Abs(b.Excess-want) > 1e-9*want {
		t.Errorf("Excess = %v, want %v", b.Excess, want)
	}
}
