// Package harmonics extracts the harmonic content of the per-element field
// time series a sweep produces: one FFT over the rotor steps per element,
// plus the derived quantities the loss models consume.
package harmonics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/Ozmachines/Eletric-Machines/pkg/models"
)

// Exponents of the harmonic amplitude terms. The iron term uses a
// Steinmetz-like exponent fitted to the lamination catalog data rather than
// the textbook 2.
const (
	ironExponent   = 2.045
	excessExponent = 1.5
)

// Spectrum holds per-bin, per-element harmonic quantities for one current
// magnitude. Bins run 0..Steps/2 (real-input FFT half spectrum); only bins
// below Steps/2 carry loss, the caller masks the rest via frequency zeroing.
type Spectrum struct {
	Steps int // rotor samples per mechanical revolution

	// Bsq is |Bx_k|^2.045 + |By_k|^2.045, the iron-loss amplitude term
	Bsq [][]float64
	// BsqEx is |Bx_k|^1.5 + |By_k|^1.5, the excess-loss amplitude term
	BsqEx [][]float64
	// Jm is the complex FFT of the magnet vector potential, zero-mean per
	// magnet so each magnet carries no net eddy current
	Jm [][]complex128
}

// Bins returns the number of stored half-spectrum bins
func (s *Spectrum) Bins() int {
	return s.Steps/2 + 1
}

// Analyze runs the per-element FFT over one revolution of field frames.
// Frames must be ordered by rotor step and cover the revolution uniformly;
// their field arrays must match the mesh.
func Analyze(frames []*models.FieldFrame, mesh *models.Mesh, rotorMagnets int) (*Spectrum, error) {
	ns := len(frames)
	if ns < 2 {
		return nil, fmt.Errorf("need at least 2 rotor steps for an FFT, got %d", ns)
	}
	nn := len(mesh.Elements)
	if nn == 0 {
		return nil, fmt.Errorf("mesh has no elements")
	}
	for j, f := range frames {
		if len(f.Bx) != nn || len(f.By) != nn || len(f.A) != nn {
			return nil, fmt.Errorf("frame %d field arrays do not match mesh size %d", j, nn)
		}
	}

	bins := ns/2 + 1
	spec := &Spectrum{
		Steps: ns,
		Bsq:   makeGrid(bins, nn),
		BsqEx: makeGrid(bins, nn),
		Jm:    makeComplexGrid(bins, nn),
	}

	fft := fourier.NewFFT(ns)
	seq := make([]float64, ns)
	coef := make([]complex128, bins)

	// Amplitude normalization matching a two-sided spectrum folded onto
	// the half spectrum: 2/ns.
	norm := 2.0 / float64(ns)

	for m := 0; m < nn; m++ {
		group := mesh.Elements[m].Group

		if models.IsIron(group) || group == models.GroupWindings {
			for j := range frames {
				seq[j] = frames[j].Bx[m]
			}
			fft.Coefficients(coef, seq)
			for k := 0; k < bins; k++ {
				amp := norm * cmplxAbs(coef[k])
				spec.Bsq[k][m] += math.Pow(amp, ironExponent)
				spec.BsqEx[k][m] += math.Pow(amp, excessExponent)
			}

			for j := range frames {
				seq[j] = frames[j].By[m]
			}
			fft.Coefficients(coef, seq)
			for k := 0; k < bins; k++ {
				amp := norm * cmplxAbs(coef[k])
				spec.Bsq[k][m] += math.Pow(amp, ironExponent)
				spec.BsqEx[k][m] += math.Pow(amp, excessExponent)
			}
		}

		if models.IsMagnet(group) {
			for j := range frames {
				seq[j] = frames[j].A[m]
			}
			fft.Coefficients(coef, seq)
			for k := 0; k < bins; k++ {
				spec.Jm[k][m] = complex(norm, 0) * coef[k]
			}
		}
	}

	removeMagnetMean(spec, mesh, rotorMagnets)

	return spec, nil
}

// removeMagnetMean subtracts the volume-weighted mean of Jm from each
// magnet's elements, bin by bin. Physically the net current through a magnet
// cross-section is zero; the raw vector potential FFT does not honor that.
func removeMagnetMean(spec *Spectrum, mesh *models.Mesh, rotorMagnets int) {
	volumes := mesh.Volumes()

	for magnet := 1; magnet <= rotorMagnets; magnet++ {
		group := models.GroupRotorIron + magnet

		var vmag float64
		for m, e := range mesh.Elements {
			if e.Group == group {
				vmag += volumes[m]
			}
		}
		if vmag == 0 {
			continue
		}

		for k := range spec.Jm {
			var mean complex128
			for m, e := range mesh.Elements {
				if e.Group == group {
					mean += spec.Jm[k][m] * complex(volumes[m], 0)
				}
			}
			mean /= complex(vmag, 0)
			for m, e := range mesh.Elements {
				if e.Group == group {
					spec.Jm[k][m] -= mean
				}
			}
		}
	}
}

func makeGrid(rows, cols int) [][]float64 {
	g := make([][]float64, rows)
	for i := range g {
		g[i] = make([]float64, cols)
	}
	return g
}

func makeComplexGrid(rows, cols int) [][]complex128 {
	g := make([][]complex128, rows)
	for i := range g {
		g[i] = make([]complex128, cols)
	}
	return g
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}
