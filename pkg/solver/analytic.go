package solver

import (
	"context"
	"math"

	"github.com/Ozmachines/Eletric-Machines/pkg/models"
	"github.com/Ozmachines/Eletric-Machines/pkg/park"
)

// Analytic model parameters. Inductances and magnet flux linkage are rough
// Prius 2004 figures; the backend exists to exercise the pipeline, not to
// reproduce the FEM solution.
const (
	analyticFluxLinkage = 0.192   // Wb, magnet flux linkage
	analyticLd          = 1.60e-3 // H
	analyticLq          = 3.70e-3 // H
	analyticRippleFrac  = 0.03    // slot-harmonic torque ripple fraction

	analyticIronB0    = 0.9    // T, no-load iron flux density amplitude
	analyticIronBSlope = 0.4   // T per unit of rated current
	analyticMagnetA0  = 5e-3   // Wb/m, vector potential amplitude on magnets
	analyticRatedCurrent = 250 // A peak
)

// AnalyticSolver is a closed-form dq machine model with a small synthetic
// mesh. Its field frames contain a single electrical harmonic, which makes
// the downstream FFT and loss numbers easy to predict in tests.
type AnalyticSolver struct {
	machine *models.Machine
	mesh    *models.Mesh
}

// NewAnalytic creates the analytic backend for a machine
func NewAnalytic(m *models.Machine) *AnalyticSolver {
	return &AnalyticSolver{
		machine: m,
		mesh:    syntheticMesh(m),
	}
}

// Name returns the backend name
func (s *AnalyticSolver) Name() string {
	return "analytic"
}

// Mesh returns the synthetic element geometry
func (s *AnalyticSolver) Mesh() *models.Mesh {
	return s.mesh
}

// Close is a no-op for the analytic backend
func (s *AnalyticSolver) Close() error {
	return nil
}

// Analyze evaluates the dq model at one operating point
func (s *AnalyticSolver) Analyze(ctx context.Context, req Request) (*models.FieldFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id, iq := phasesToDQ(req.PhaseCurrents, s.machine.PolePairs, req.RotorAngle)
	p := float64(s.machine.PolePairs)

	// Average electromagnetic torque of the dq model plus a small
	// slot-harmonic ripple so rotor-step averaging is not a no-op.
	torque := 1.5 * p * (analyticFluxLinkage*iq + (analyticLd-analyticLq)*id*iq)
	thetaE := park.ElectricalAngle(s.machine.PolePairs, req.RotorAngle)
	torque *= 1 + analyticRippleFrac*math.Cos(6*thetaE)

	frame := &models.FieldFrame{
		PointID:       req.PointID,
		RotorAngle:    req.RotorAngle,
		PhaseCurrents: req.PhaseCurrents,
		Torque:        torque,
	}

	if !req.NeedFields {
		return frame, nil
	}

	amps := park.Magnitude(id, iq)
	bAmp := analyticIronB0 + analyticIronBSlope*amps/analyticRatedCurrent
	aAmp := analyticMagnetA0 * amps / analyticRatedCurrent

	n := len(s.mesh.Elements)
	frame.Bx = make([]float64, n)
	frame.By = make([]float64, n)
	frame.A = make([]float64, n)

	for m, e := range s.mesh.Elements {
		// Element angular position sets the spatial phase; the field
		// rotates with the electrical angle.
		phi := math.Atan2(e.Y, e.X)
		arg := thetaE + p*phi

		switch {
		case models.IsIron(e.Group), e.Group == models.GroupWindings:
			frame.Bx[m] = bAmp * math.Cos(arg)
			frame.By[m] = bAmp * math.Sin(arg)
		case models.IsMagnet(e.Group):
			frame.A[m] = aAmp * math.Cos(arg)
		}
	}

	return frame, nil
}

// phasesToDQ recovers the dq pair from instantaneous phase currents,
// inverting the basis used by park.Phase.
func phasesToDQ(iabc [3]float64, polePairs int, thetaRDeg float64) (id, iq float64) {
	thetaE := park.ElectricalAngle(polePairs, thetaRDeg)
	for k := 0; k < 3; k++ {
		phi := thetaE - 2*math.Pi*float64(k)/3
		id += iabc[k] * math.Sin(phi)
		iq += iabc[k] * math.Cos(phi)
	}
	id *= 2.0 / 3.0
	iq *= 2.0 / 3.0
	return id, iq
}

// syntheticMesh builds a tiny annular mesh with the region groups the loss
// models expect: stator iron, windings, rotor iron and the magnets.
func syntheticMesh(m *models.Machine) *models.Mesh {
	const perRing = 24

	ring := func(radius, area float64, group func(i int) int) []models.Element {
		out := make([]models.Element, perRing)
		for i := 0; i < perRing; i++ {
			phi := 2 * math.Pi * float64(i) / perRing
			out[i] = models.Element{
				X:     radius * math.Cos(phi),
				Y:     radius * math.Sin(phi),
				Area:  area,
				Group: group(i),
			}
		}
		return out
	}

	var elements []models.Element
	elements = append(elements, ring(120, 8.0, func(int) int { return models.GroupStatorIron })...)
	elements = append(elements, ring(95, 4.0, func(int) int { return models.GroupWindings })...)
	elements = append(elements, ring(60, 6.0, func(int) int { return models.GroupRotorIron })...)
	// Magnet ring: consecutive arcs assigned to magnets 1..RotorMagnets
	elements = append(elements, ring(75, 3.0, func(i int) int {
		return models.GroupRotorIron + 1 + i*m.RotorMagnets/perRing
	})...)

	return &models.Mesh{
		Elements:  elements,
		Depth:     83.6, // axial stack length, millimeters
		UnitScale: 1e-3,
	}
}
