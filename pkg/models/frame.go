package models

// Element region groups as reported by the solver. The block numbering
// follows the reference model: 0 is air/gap, 1 stator iron, 2 windings,
// 10 rotor iron and 10+k the k-th rotor magnet.
const (
	GroupAir        = 0
	GroupStatorIron = 1
	GroupWindings   = 2
	GroupRotorIron  = 10
)

// IsMagnet reports whether a group number belongs to a rotor magnet
func IsMagnet(group int) bool {
	return group > GroupRotorIron
}

// MagnetIndex returns the 1-based magnet number for a magnet group, 0 otherwise
func MagnetIndex(group int) int {
	if !IsMagnet(group) {
		return 0
	}
	return group - GroupRotorIron
}

// IsIron reports whether a group number is laminated iron (stator or rotor)
func IsIron(group int) bool {
	return group == GroupStatorIron || group == GroupRotorIron
}

// Element is one mesh triangle of the solver's discretization
type Element struct {
	X     float64 `json:"x"` // centroid, problem length units
	Y     float64 `json:"y"`
	Area  float64 `json:"area"` // problem length units squared
	Group int     `json:"group"`
}

// Mesh is the element geometry of the solved model. It is captured once per
// sweep: the solver re-meshes identically for every rotor position because
// rotation happens in the sliding band, not in the mesh.
type Mesh struct {
	Elements  []Element `json:"elements"`
	Depth     float64   `json:"depth"`      // axial length, problem length units
	UnitScale float64   `json:"unit_scale"` // meters per problem length unit
}

// Volumes returns the element volumes in cubic meters. Area and Depth are
// both in problem length units, so the unit scale enters cubed.
func (m *Mesh) Volumes() []float64 {
	scale := m.UnitScale * m.UnitScale * m.UnitScale
	v := make([]float64, len(m.Elements))
	for i, e := range m.Elements {
		v[i] = e.Area * m.Depth * scale
	}
	return v
}

// FieldFrame is the solver output for one operating point: per-element flux
// density in the iron, vector potential on the magnets, and the air-gap
// torque. Bx, By and A are indexed like Mesh.Elements; entries outside the
// relevant region are zero.
type FieldFrame struct {
	PointID       string     `json:"point_id,omitempty"`
	RotorAngle    float64    `json:"rotor_angle"` // mechanical degrees
	PhaseCurrents [3]float64 `json:"phase_currents"`
	Bx            []float64  `json:"bx,omitempty"`
	By            []float64  `json:"by,omitempty"`
	A             []float64  `json:"a,omitempty"`
	Torque        float64    `json:"torque"` // N m, from gap integral
}
