package models

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Machine)
		wantErr bool
	}{
		{"defaults are valid", func(m *Machine) {}, false},
		{"zero pole pairs", func(m *Machine) { m.PolePairs = 0 }, true},
		{"no magnets", func(m *Machine) { m.RotorMagnets = 0 }, true},
		{"negative resistance", func(m *Machine) { m.PhaseResistance = -1 }, true},
		// Superconducting windings are fine as far as validation goes
		{"zero resistance", func(m *Machine) { m.PhaseResistance = 0 }, false},
		{"fill above 1", func(m *Machine) { m.WindingFill = 1.2 }, true},
		{"zero stacking", func(m *Machine) { m.StackingFactor = 0 }, true},
		{"zero density", func(m *Machine) { m.SteelDensity = 0 }, true},
		{"negative conductivity", func(m *Machine) { m.MagnetConductivity = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Prius2004()
			tt.mutate(m)
			err := m.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected an error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadMachinePartialOverride(t *testing.T) {
	// Fields absent from the file keep the reference defaults
	path := filepath.Join(t.TempDir(), "machine.yaml")
	data := "name: Test Machine\npole_pairs: 6\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadMachine(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name != "Test Machine" || m.PolePairs != 6 {
		t.Errorf("overrides not applied: %+v", m)
	}
	if m.PhaseResistance != 0.7742 || m.RotorMagnets != 8 {
		t.Errorf("defaults lost: %+v", m)
	}
}

func TestLoadMachineErrors(t *testing.T) {
	// Missing file
	if _, err := LoadMachine("/nonexistent/machine.yaml"); err == nil {
		t.Error("expected an error for a missing file")
	}

	// Invalid values fail validation after the overlay
	path := filepath.Join(t.TempDir(), "machine.yaml")
	if err := os.WriteFile(path, []byte("pole_pairs: -2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadMachine(path); err == nil {
		t.Error("expected a validation error")
	}
}

func TestGroupClassification(t *testing.T) {
	tests := []struct {
		group       int
		isMagnet    bool
		isIron      bool
		magnetIndex int
	}{
		{GroupAir, false, false, 0},
		{GroupStatorIron, false, true, 0},
		{GroupWindings, false, false, 0},
		{GroupRotorIron, false, true, 0},
		{GroupRotorIron + 1, true, false, 1},
		{GroupRotorIron + 8, true, false, 8},
	}

	for _, tt := range tests {
		if got := IsMagnet(tt.group); got != tt.isMagnet {
			t.Errorf("IsMagnet(%d) = %v, want %v", tt.group, got, tt.isMagnet)
		}
		if got := IsIron(tt.group); got != tt.isIron {
			t.Errorf("IsIron(%d) = %v, want %v", tt.group, got, tt.isIron)
		}
		if got := MagnetIndex(tt.group); got != tt.magnetIndex {
			t.Errorf("MagnetIndex(%d) = %v, want %v", tt.group, got, tt.magnetIndex)
		}
	}
}

func TestMeshVolumes(t *testing.T) {
	// A 2 mm^2 element over an 80 mm stack is 160 mm^3 = 1.6e-7 m^3
	mesh := &Mesh{
		Elements:  []Element{{Area: 2, Group: GroupStatorIron}},
		Depth:     80,
		UnitScale: 1e-3,
	}
	v := mesh.Volumes()
	if len(v) != 1 || math.Abs(v[0]-1.6e-7) > 1e-15 {
		t.Errorf("volumes = %v, want [1.6e-7]", v)
	}
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to PointStatus
		wantErr  bool
	}{
		{PointStatusPending, PointStatusRunning, false},
		{PointStatusRunning, PointStatusCompleted, false},
		{PointStatusRunning, PointStatusFailed, false},
		// A failed point may retry
		{PointStatusFailed, PointStatusRunning, false},
		// Completed is terminal
		{PointStatusCompleted, PointStatusRunning, true},
		// No skipping the running state
		{PointStatusPending, PointStatusCompleted, true},
		{PointStatusPending, PointStatusFailed, true},
	}

	for _, tt := range tests {
		err := ValidateTransition(tt.from, tt.to)
		if tt.wantErr && err == nil {
			t.Errorf("%s -> %s: expected an error", tt.from, tt.to)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("%s -> %s: unexpected error: %v", tt.from, tt.to, err)
		}
	}
}
