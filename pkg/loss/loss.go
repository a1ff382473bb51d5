// Package loss converts harmonic field spectra and RMS currents into power
// losses by mechanism: iron hysteresis/eddy, excess, winding proximity,
// magnet eddy currents and ohmic conduction.
package loss

import (
	"math"

	"github.com/Ozmachines/Eletric-Machines/pkg/harmonics"
	"github.com/Ozmachines/Eletric-Machines/pkg/models"
	"github.com/Ozmachines/Eletric-Machines/pkg/park"
)

// catalogMassFactor converts the lamination catalog's per-pound coefficients
// to per-kilogram before the density multiplication
const catalogMassFactor = 0.45

// Coefficients are the volumetric loss coefficients in SI units, derived
// once per machine
type Coefficients struct {
	Ch float64 // W/(m^3 T^2.045 Hz), hysteresis
	Ce float64 // W/(m^3 T^2.045 Hz^2), classical eddy
	Cx float64 // W/(m^3 T^1.5 Hz^1.5), excess
	Cs float64 // lamination stacking factor applied to iron terms

	CePhase float64 // W/(m^3 T^2 Hz^2), winding proximity effect

	MagnetConductivity float64 // S/m
	PhaseResistance    float64 // ohm per phase

	// LowestHarmonic is the electrical order of FFT bin 1: a sweep covers
	// one mechanical revolution, so bin 1 is the pole-pair fundamental.
	LowestHarmonic int
}

// CoefficientsFor derives the SI coefficient set from machine parameters
func CoefficientsFor(m *models.Machine) Coefficients {
	massToVolume := m.SteelDensity / catalogMassFactor

	// Proximity-effect coefficient from wire gauge, slot fill and the
	// temperature-corrected copper conductivity.
	dwire := 0.324861 * 0.0254 * math.Exp(-0.115942*m.WireAWG)
	owire := 58e6 / (1 + m.TemperatureRise*0.004)
	cePhase := (math.Pi * math.Pi / 8) * dwire * dwire * m.WindingFill * owire

	return Coefficients{
		Ch:                 m.HysteresisCoeff * massToVolume,
		Ce:                 m.EddyCoeff * massToVolume,
		Cx:                 m.ExcessCoeff * massToVolume,
		Cs:                 m.StackingFactor,
		CePhase:            cePhase,
		MagnetConductivity: m.MagnetConductivity,
		PhaseResistance:    m.PhaseResistance,
		LowestHarmonic:     m.PolePairs,
	}
}

// Breakdown is the loss total of one operating cell, split by mechanism.
// All values are watts.
type Breakdown struct {
	StatorIron float64 `json:"stator_iron"`
	RotorIron  float64 `json:"rotor_iron"`
	Excess     float64 `json:"excess,omitempty"`
	Proximity  float64 `json:"proximity"`
	Magnet     float64 `json:"magnet"`
	Ohmic      float64 `json:"ohmic"`
}

// Total sums all mechanisms
func (b Breakdown) Total() float64 {
	return b.StatorIron + b.RotorIron + b.Excess + b.Proximity + b.Magnet + b.Ohmic
}

// Compute aggregates the loss breakdown for one current row at one speed.
// phasePeak is the peak phase current of the row; volumes must come from the
// same mesh the spectrum was built on. At zero speed every frequency-
// dependent term vanishes and only the ohmic loss remains.
func Compute(spec *harmonics.Spectrum, mesh *models.Mesh, volumes []float64, c Coefficients, rpm, phasePeak float64) Breakdown {
	var b Breakdown

	mechFreq := rpm / 60 // mechanical revolutions per second
	bins := spec.Bins()

	for k := 0; k < bins; k++ {
		// Bins at or above Nyquist carry no resolvable harmonic;
		// zeroing the frequency removes them from every term. The
		// comparison stays fractional so an odd step count keeps its
		// top sub-Nyquist bin (k=15 of 31 steps: 15 < 15.5).
		var fk float64
		if 2*k < spec.Steps {
			fk = float64(c.LowestHarmonic) * mechFreq * float64(k)
		}
		if fk == 0 {
			continue
		}

		ironFactor := c.Cs * (c.Ch*fk + c.Ce*fk*fk)
		excessFactor := c.Cs * c.Cx * math.Pow(fk, 1.5)
		proxFactor := c.CePhase * fk * fk
		magnetFactor := 0.5 * c.MagnetConductivity * (2 * math.Pi * fk) * (2 * math.Pi * fk)

		for m, e := range mesh.Elements {
			v := volumes[m]
			switch {
			case e.Group == models.GroupStatorIron:
				b.StatorIron += ironFactor * spec.Bsq[k][m] * v
				b.Excess += excessFactor * spec.BsqEx[k][m] * v
			case e.Group == models.GroupRotorIron:
				b.RotorIron += ironFactor * spec.Bsq[k][m] * v
				b.Excess += excessFactor * spec.BsqEx[k][m] * v
			case e.Group == models.GroupWindings:
				b.Proximity += proxFactor * spec.Bsq[k][m] * v
			case models.IsMagnet(e.Group):
				jm := spec.Jm[k][m]
				b.Magnet += magnetFactor * (real(jm)*real(jm) + imag(jm)*imag(jm)) * v
			}
		}
	}

	irms := park.RMS(phasePeak)
	b.Ohmic = 3 * c.PhaseResistance * irms * irms

	return b
}
