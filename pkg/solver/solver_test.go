package solver

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/Ozmachines/Eletric-Machines/pkg/logging"
	"github.com/Ozmachines/Eletric-Machines/pkg/models"
	"github.com/Ozmachines/Eletric-Machines/pkg/park"
)

func TestBuildCommand(t *testing.T) {
	s := &ExternalSolver{cfg: ExternalConfig{
		Binary:   "femmcli",
		Document: "prius.fem",
	}}

	got := s.BuildCommand("/tmp/case_000001.json", "/tmp/frame_000001.json")
	want := []string{"femmcli", "solve", "--model", "prius.fem", "--case", "/tmp/case_000001.json", "--out", "/tmp/frame_000001.json"}
	if len(got) != len(want) {
		t.Fatalf("command has %d args, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantErr  bool
		wantMesh bool
	}{
		// Torque-only frame, the MTPA fast path
		{"torque only", `{"torque": 42.5}`, false, false},
		// First field frame delivers the mesh alongside the arrays
		{
			"with mesh",
			`{"torque": 10, "mesh": {"elements": [{"x": 1, "y": 2, "area": 0.5, "group": 1}], "depth": 83.6, "unit_scale": 0.001}, "bx": [0.1], "by": [0.2], "a": [0]}`,
			false, true,
		},
		// Solver-reported case errors surface as errors, not frames
		{"solver error", `{"error": "mesh generation failed"}`, true, false},
		{"garbage", `not json`, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, mesh, err := decodeFrame([]byte(tt.data))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (mesh != nil) != tt.wantMesh {
				t.Errorf("mesh presence = %v, want %v", mesh != nil, tt.wantMesh)
			}
			if frame.Torque == 0 {
				t.Error("torque not decoded")
			}
		})
	}
}

func TestLastLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"single error\n", "single error"},
		{"warning: slow\nfatal: no mesh\n", "fatal: no mesh"},
		{"\n\n  padded  \n\n", "padded"},
	}
	for _, tt := range tests {
		if got := lastLine([]byte(tt.in)); got != tt.want {
			t.Errorf("lastLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSelect(t *testing.T) {
	machine := models.Prius2004()
	log := logging.NewLogger(logging.ERROR, false)

	// Analytic kind always works
	s, err := Select(KindAnalytic, machine, ExternalConfig{}, log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Name() != "analytic" {
		t.Errorf("backend = %s, want analytic", s.Name())
	}

	// Auto falls back to analytic when the binary is missing
	cfg := DefaultExternalConfig("missing.fem")
	cfg.Binary = "no-such-solver-binary"
	s, err = Select(KindAuto, machine, cfg, log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Name() != "analytic" {
		t.Errorf("backend = %s, want analytic fallback", s.Name())
	}

	// External with a missing binary is an error
	if _, err := Select(KindExternal, machine, cfg, log); err == nil {
		t.Error("expected an error for a missing solver binary")
	}

	// Unknown kinds are rejected with a typed error
	_, err = Select(Kind("quantum"), machine, cfg, log)
	var unknown *UnknownKindError
	if !errors.As(err, &unknown) {
		t.Errorf("error = %v, want UnknownKindError", err)
	}
}

func TestAnalyticTorque(t *testing.T) {
	machine := models.Prius2004()
	s := NewAnalytic(machine)

	// Pure q-axis current at rotor angle 0: the ripple term is at its
	// maximum there, so torque is 1.5*p*lambda*iq*(1+ripple)
	iq := 100.0
	req := Request{
		PhaseCurrents: park.Phase(0, iq, machine.PolePairs, 0),
		RotorAngle:    0,
	}
	frame, err := s.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := 1.5 * float64(machine.PolePairs) * analyticFluxLinkage * iq * (1 + analyticRippleFrac)
	if math.Abs(frame.Torque-want) > 1e-6 {
		t.Errorf("torque = %v, want %v", frame.Torque, want)
	}

	// Torque-only requests must not allocate field arrays
	if frame.Bx != nil || frame.By != nil || frame.A != nil {
		t.Error("torque-only request returned field arrays")
	}
}

func TestAnalyticFields(t *testing.T) {
	machine := models.Prius2004()
	s := NewAnalytic(machine)

	req := Request{
		PhaseCurrents: park.Phase(-50, 100, machine.PolePairs, 12),
		RotorAngle:    12,
		NeedFields:    true,
	}
	frame, err := s.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mesh := s.Mesh()
	n := len(mesh.Elements)
	if len(frame.Bx) != n || len(frame.By) != n || len(frame.A) != n {
		t.Fatalf("field arrays do not match the mesh size %d", n)
	}

	// Iron and winding elements carry B, magnets carry A, air carries nothing
	for m, e := range mesh.Elements {
		switch {
		case models.IsIron(e.Group), e.Group == models.GroupWindings:
			if frame.Bx[m] == 0 && frame.By[m] == 0 {
				t.Errorf("element %d (group %d): no flux density", m, e.Group)
			}
			if frame.A[m] != 0 {
				t.Errorf("element %d (group %d): unexpected vector potential", m, e.Group)
			}
		case models.IsMagnet(e.Group):
			if frame.Bx[m] != 0 || frame.By[m] != 0 {
				t.Errorf("magnet element %d: unexpected flux density", m)
			}
		}
	}
}

func TestAnalyticMeshGroups(t *testing.T) {
	machine := models.Prius2004()
	mesh := NewAnalytic(machine).Mesh()

	// The synthetic mesh must cover every region the loss models read
	seen := map[string]bool{}
	magnets := map[int]bool{}
	for _, e := range mesh.Elements {
		switch {
		case e.Group == models.GroupStatorIron:
			seen["stator"] = true
		case e.Group == models.GroupWindings:
			seen["windings"] = true
		case e.Group == models.GroupRotorIron:
			seen["rotor"] = true
		case models.IsMagnet(e.Group):
			magnets[models.MagnetIndex(e.Group)] = true
		}
	}
	for _, region := range []string{"stator", "windings", "rotor"} {
		if !seen[region] {
			t.Errorf("synthetic mesh has no %s elements", region)
		}
	}
	if len(magnets) != machine.RotorMagnets {
		t.Errorf("mesh covers %d magnets, want %d", len(magnets), machine.RotorMagnets)
	}
}

func TestPhasesToDQRoundTrip(t *testing.T) {
	// phasesToDQ must invert park.Phase at any rotor angle
	for _, angle := range []float64{0, 12, 90, 187.5} {
		abc := park.Phase(-70, 130, 4, angle)
		id, iq := phasesToDQ(abc, 4, angle)
		if math.Abs(id+70) > 1e-9 || math.Abs(iq-130) > 1e-9 {
			t.Errorf("angle %v: dq = (%v, %v), want (-70, 130)", angle, id, iq)
		}
	}
}
