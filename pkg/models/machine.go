package models

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Machine describes the simulated PMSM: pole/magnet counts, winding data and
// the material coefficients the loss models need. Field-level geometry lives
// in the solver's model document, not here.
type Machine struct {
	Name     string `yaml:"name"`
	Document string `yaml:"document"` // solver model file, e.g. prius-2004.fem

	PolePairs    int `yaml:"pole_pairs"`
	RotorMagnets int `yaml:"rotor_magnets"`

	// Winding data
	PhaseResistance float64 `yaml:"phase_resistance"` // ohm per phase at 20 C
	TemperatureRise float64 `yaml:"temperature_rise"` // K above 20 C
	WindingFill     float64 `yaml:"winding_fill"`     // slot fill factor
	WireAWG         float64 `yaml:"wire_awg"`

	// Lamination loss coefficients, catalog units: W/(lb T^2 Hz) and
	// W/(lb T^2 Hz^2). Converted to volumetric SI by loss.CoefficientsFor.
	HysteresisCoeff float64 `yaml:"hysteresis_coeff"`
	EddyCoeff       float64 `yaml:"eddy_coeff"`
	ExcessCoeff     float64 `yaml:"excess_coeff"`    // W/(lb T^1.5 Hz^1.5), usually 0
	StackingFactor  float64 `yaml:"stacking_factor"` // lamination stacking factor
	SteelDensity    float64 `yaml:"steel_density"`   // kg/m^3

	MagnetConductivity float64 `yaml:"magnet_conductivity"` // S/m
}

// Prius2004 returns the parameter set of the Toyota Prius 2004 traction
// machine, the reference model this tool was built around.
func Prius2004() *Machine {
	return &Machine{
		Name:               "Toyota Prius 2004",
		Document:           "prius-2004.fem",
		PolePairs:          4,
		RotorMagnets:       8,
		PhaseResistance:    0.7742,
		TemperatureRise:    90,
		WindingFill:        0.3882,
		WireAWG:            25,
		HysteresisCoeff:    0.0084,
		EddyCoeff:          3.12e-5,
		ExcessCoeff:        0,
		StackingFactor:     0.97,
		SteelDensity:       7700,
		MagnetConductivity: 0.556e6,
	}
}

// LoadMachine reads a machine description from a YAML file. Fields missing
// from the file keep the Prius 2004 defaults so partial overrides work.
func LoadMachine(path string) (*Machine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read machine file: %w", err)
	}

	m := Prius2004()
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse machine file %s: %w", path, err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid machine %s: %w", path, err)
	}

	return m, nil
}

// Validate checks the parameter set for values the pipeline cannot work with
func (m *Machine) Validate() error {
	if m.PolePairs <= 0 {
		return fmt.Errorf("pole_pairs must be positive, got %d", m.PolePairs)
	}
	if m.RotorMagnets <= 0 {
		return fmt.Errorf("rotor_magnets must be positive, got %d", m.RotorMagnets)
	}
	if m.PhaseResistance < 0 {
		return fmt.Errorf("phase_resistance must not be negative, got %g", m.PhaseResistance)
	}
	if m.WindingFill <= 0 || m.WindingFill > 1 {
		return fmt.Errorf("winding_fill must be in (0, 1], got %g", m.WindingFill)
	}
	if m.StackingFactor <= 0 || m.StackingFactor > 1 {
		return fmt.Errorf("stacking_factor must be in (0, 1], got %g", m.StackingFactor)
	}
	if m.SteelDensity <= 0 {
		return fmt.Errorf("steel_density must be positive, got %g", m.SteelDensity)
	}
	if m.MagnetConductivity < 0 {
		return fmt.Errorf("magnet_conductivity must not be negative, got %g", m.MagnetConductivity)
	}
	return nil
}
