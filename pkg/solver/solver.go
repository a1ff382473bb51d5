// Package solver drives magnetostatic field solutions for single operating
// points. The actual field solving is delegated: either to an external FEM
// solver binary or, for dry runs and tests, to a closed-form dq model.
package solver

import (
	"context"
	"os/exec"

	"github.com/Ozmachines/Eletric-Machines/pkg/logging"
	"github.com/Ozmachines/Eletric-Machines/pkg/models"
)

// Request is one magnetostatic case: instantaneous phase currents at a rotor
// position. NeedFields asks for per-element field data; torque-only runs
// (the MTPA search) leave it false and are considerably cheaper.
type Request struct {
	PointID       string     `json:"point_id,omitempty"`
	PhaseCurrents [3]float64 `json:"phase_currents"`
	RotorAngle    float64    `json:"rotor_angle"` // mechanical degrees
	NeedFields    bool       `json:"need_fields"`
}

// Solver produces a field frame for a single operating point
type Solver interface {
	// Name returns the backend name
	Name() string

	// Analyze solves one case and returns the resulting frame
	Analyze(ctx context.Context, req Request) (*models.FieldFrame, error)

	// Mesh returns the element geometry of the solved model. For the
	// external backend this is nil until the first Analyze with
	// NeedFields has completed.
	Mesh() *models.Mesh

	// Close releases backend resources
	Close() error
}

// Kind selects a solver backend
type Kind string

const (
	KindAuto     Kind = "auto"
	KindExternal Kind = "external"
	KindAnalytic Kind = "analytic"
)

// Select picks a backend. "auto" prefers the external solver when its binary
// is on PATH and falls back to the analytic model otherwise.
func Select(kind Kind, machine *models.Machine, cfg ExternalConfig, log *logging.Logger) (Solver, error) {
	switch kind {
	case KindExternal:
		return NewExternal(cfg, log)
	case KindAnalytic:
		return NewAnalytic(machine), nil
	case KindAuto, "":
		if _, err := exec.LookPath(cfg.Binary); err == nil {
			return NewExternal(cfg, log)
		}
		log.Warn("External solver binary not found, using analytic model", map[string]interface{}{
			"binary": cfg.Binary,
		})
		return NewAnalytic(machine), nil
	default:
		return nil, &UnknownKindError{Kind: kind}
	}
}

// UnknownKindError is returned by Select for an unrecognized backend name
type UnknownKindError struct {
	Kind Kind
}

func (e *UnknownKindError) Error() string {
	return "unknown solver kind: " + string(e.Kind)
}
