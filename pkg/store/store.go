// Package store persists sweeps, operating points and raw field frames so a
// capture run can be post-processed (or resumed) later.
package store

import (
	"errors"

	"github.com/Ozmachines/Eletric-Machines/pkg/models"
)

// ErrNotFound is returned when a sweep, point or frame does not exist
var ErrNotFound = errors.New("not found")

// FrameKey addresses one frame within a sweep: the current-row index and the
// rotor-step index
type FrameKey struct {
	Row  int
	Step int
}

// Store is the persistence interface for sweep data
type Store interface {
	CreateSweep(sweep *models.Sweep) error
	UpdateSweep(sweep *models.Sweep) error
	GetSweep(id string) (*models.Sweep, error)
	ListSweeps() ([]*models.Sweep, error)

	SaveMesh(sweepID string, mesh *models.Mesh) error
	GetMesh(sweepID string) (*models.Mesh, error)

	CreatePoint(point *models.OperatingPoint) error
	UpdatePoint(point *models.OperatingPoint) error
	ListPoints(sweepID string) ([]*models.OperatingPoint, error)

	SaveFrame(sweepID string, key FrameKey, frame *models.FieldFrame) error
	LoadFrames(sweepID string) (map[FrameKey]*models.FieldFrame, error)

	Close() error
}
