package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Ozmachines/Eletric-Machines/pkg/models"
)

// MemoryStore is an in-memory implementation of the data store, used in
// tests and for throwaway runs
type MemoryStore struct {
	mu     sync.RWMutex
	sweeps map[string]*models.Sweep
	meshes map[string]*models.Mesh
	points map[string]map[string]*models.OperatingPoint // sweepID -> pointID
	frames map[string]map[FrameKey]*models.FieldFrame
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sweeps: make(map[string]*models.Sweep),
		meshes: make(map[string]*models.Mesh),
		points: make(map[string]map[string]*models.OperatingPoint),
		frames: make(map[string]map[FrameKey]*models.FieldFrame),
	}
}

// CreateSweep stores a new sweep
func (s *MemoryStore) CreateSweep(sweep *models.Sweep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sweeps[sweep.ID]; exists {
		return fmt.Errorf("sweep %s already exists", sweep.ID)
	}
	cp := *sweep
	s.sweeps[sweep.ID] = &cp
	s.points[sweep.ID] = make(map[string]*models.OperatingPoint)
	s.frames[sweep.ID] = make(map[FrameKey]*models.FieldFrame)
	return nil
}

// UpdateSweep replaces a stored sweep
func (s *MemoryStore) UpdateSweep(sweep *models.Sweep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sweeps[sweep.ID]; !exists {
		return fmt.Errorf("sweep %s: %w", sweep.ID, ErrNotFound)
	}
	cp := *sweep
	s.sweeps[sweep.ID] = &cp
	return nil
}

// GetSweep retrieves a sweep by ID
func (s *MemoryStore) GetSweep(id string) (*models.Sweep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sweep, exists := s.sweeps[id]
	if !exists {
		return nil, fmt.Errorf("sweep %s: %w", id, ErrNotFound)
	}
	cp := *sweep
	return &cp, nil
}

// ListSweeps returns all sweeps ordered by creation time
func (s *MemoryStore) ListSweeps() ([]*models.Sweep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Sweep, 0, len(s.sweeps))
	for _, sweep := range s.sweeps {
		cp := *sweep
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// SaveMesh stores the mesh geometry for a sweep
func (s *MemoryStore) SaveMesh(sweepID string, mesh *models.Mesh) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sweeps[sweepID]; !exists {
		return fmt.Errorf("sweep %s: %w", sweepID, ErrNotFound)
	}
	s.meshes[sweepID] = copyMesh(mesh)
	return nil
}

// GetMesh retrieves the mesh geometry of a sweep
func (s *MemoryStore) GetMesh(sweepID string) (*models.Mesh, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mesh, exists := s.meshes[sweepID]
	if !exists {
		return nil, fmt.Errorf("mesh for sweep %s: %w", sweepID, ErrNotFound)
	}
	return copyMesh(mesh), nil
}

// copyMesh detaches a mesh from the caller so later mutations do not reach
// into the store
func copyMesh(mesh *models.Mesh) *models.Mesh {
	out := *mesh
	out.Elements = make([]models.Element, len(mesh.Elements))
	copy(out.Elements, mesh.Elements)
	return &out
}

// CreatePoint stores a new operating point
func (s *MemoryStore) CreatePoint(point *models.OperatingPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	points, exists := s.points[point.SweepID]
	if !exists {
		return fmt.Errorf("sweep %s: %w", point.SweepID, ErrNotFound)
	}
	cp := *point
	points[point.ID] = &cp
	return nil
}

// UpdatePoint replaces a stored operating point. Status changes go through
// the transition table; writing the same status again is an idempotent no-op
// check.
func (s *MemoryStore) UpdatePoint(point *models.OperatingPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	points, exists := s.points[point.SweepID]
	if !exists {
		return fmt.Errorf("sweep %s: %w", point.SweepID, ErrNotFound)
	}
	prev, exists := points[point.ID]
	if !exists {
		return fmt.Errorf("point %s: %w", point.ID, ErrNotFound)
	}
	if prev.Status != point.Status {
		if err := models.ValidateTransition(prev.Status, point.Status); err != nil {
			return fmt.Errorf("point %s: %w", point.ID, err)
		}
	}
	cp := *point
	points[point.ID] = &cp
	return nil
}

// ListPoints returns the operating points of a sweep ordered by index
func (s *MemoryStore) ListPoints(sweepID string) ([]*models.OperatingPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	points, exists := s.points[sweepID]
	if !exists {
		return nil, fmt.Errorf("sweep %s: %w", sweepID, ErrNotFound)
	}
	out := make([]*models.OperatingPoint, 0, len(points))
	for _, p := range points {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// SaveFrame stores a field frame
func (s *MemoryStore) SaveFrame(sweepID string, key FrameKey, frame *models.FieldFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	frames, exists := s.frames[sweepID]
	if !exists {
		return fmt.Errorf("sweep %s: %w", sweepID, ErrNotFound)
	}
	frames[key] = frame
	return nil
}

// LoadFrames returns all stored frames of a sweep
func (s *MemoryStore) LoadFrames(sweepID string) (map[FrameKey]*models.FieldFrame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	frames, exists := s.frames[sweepID]
	if !exists {
		return nil, fmt.Errorf("sweep %s: %w", sweepID, ErrNotFound)
	}
	out := make(map[FrameKey]*models.FieldFrame, len(frames))
	for k, f := range frames {
		out[k] = f
	}
	return out, nil
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error {
	return nil
}
