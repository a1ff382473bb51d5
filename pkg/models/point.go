package models

import (
	"fmt"
	"time"
)

// PointStatus represents the status of an operating point within a sweep
type PointStatus string

const (
	PointStatusPending   PointStatus = "pending"
	PointStatusRunning   PointStatus = "running"
	PointStatusCompleted PointStatus = "completed"
	PointStatusFailed    PointStatus = "failed"
)

// OperatingPoint is one solver case: a stator current vector at a rotor
// position. Current is the peak phase magnitude, Beta the current vector
// angle in electrical degrees measured from the q axis.
type OperatingPoint struct {
	ID         string      `json:"id"`
	SweepID    string      `json:"sweep_id"`
	Index      int         `json:"index"` // position within the sweep
	Current    float64     `json:"current"`
	Beta       float64     `json:"beta"`
	Id         float64     `json:"id_current"` // d-axis current
	Iq         float64     `json:"iq_current"` // q-axis current
	RotorAngle float64     `json:"rotor_angle"`
	Status     PointStatus `json:"status"`
	RetryCount int         `json:"retry_count"`
	CreatedAt  time.Time   `json:"created_at"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Error      string      `json:"error,omitempty"`

	// Filled when the point completes
	Torque  float64 `json:"torque,omitempty"`
	Elapsed float64 `json:"elapsed_seconds,omitempty"`
}

// validTransitions maps each point status to its allowed successors
var validTransitions = map[PointStatus][]PointStatus{
	PointStatusPending:   {PointStatusRunning},
	PointStatusRunning:   {PointStatusCompleted, PointStatusFailed},
	PointStatusFailed:    {PointStatusRunning}, // retry
	PointStatusCompleted: {},
}

// ValidateTransition checks whether a point status transition is allowed
func ValidateTransition(from, to PointStatus) error {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("cannot transition point from %s to %s", from, to)
}

// SweepStatus represents the status of a whole field sweep
type SweepStatus string

const (
	SweepStatusRunning   SweepStatus = "running"
	SweepStatusCompleted SweepStatus = "completed"
	SweepStatusFailed    SweepStatus = "failed"
)

// Sweep is one full field-capture run: every current magnitude of the ladder
// at its MTPA angle, across a full mechanical revolution of rotor steps.
type Sweep struct {
	ID         string      `json:"id"`
	Machine    string      `json:"machine"`
	Solver     string      `json:"solver"`
	Currents   []float64   `json:"currents"`
	Betas      []float64   `json:"betas"` // MTPA angle per current, same order
	RotorSteps int         `json:"rotor_steps"`
	StepDeg    float64     `json:"step_deg"`
	Status     SweepStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Error      string      `json:"error,omitempty"`
}
