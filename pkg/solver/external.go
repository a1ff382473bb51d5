package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/Ozmachines/Eletric-Machines/pkg/logging"
	"github.com/Ozmachines/Eletric-Machines/pkg/models"
	"github.com/Ozmachines/Eletric-Machines/pkg/retry"
)

// ExternalConfig holds settings for the external FEM solver backend
type ExternalConfig struct {
	Binary        string        // solver executable, e.g. femmcli
	Document      string        // model document the solver loads
	WorkDir       string        // scratch directory for case/frame files
	Timeout       time.Duration // per-invocation limit, 0 means no limit
	Retry         retry.Config  // transient-failure policy
	KeepCaseFiles bool          // leave case/frame JSON behind for debugging
}

// DefaultExternalConfig returns defaults for a solver reachable on PATH
func DefaultExternalConfig(document string) ExternalConfig {
	return ExternalConfig{
		Binary:   "femmcli",
		Document: document,
		WorkDir:  filepath.Join(os.TempDir(), "machmap"),
		Timeout:  5 * time.Minute,
		Retry:    retry.DefaultConfig(),
	}
}

// ExternalSolver invokes a FEM solver binary once per operating point. The
// exchange is file-based: a case JSON in, a frame JSON out, matching the
// batch interface of the solver's scripting front end.
type ExternalSolver struct {
	cfg ExternalConfig
	log *logging.Logger

	mu      sync.Mutex
	mesh    *models.Mesh
	seq     int
	onRetry func(pointID string)
}

// NewExternal creates the external backend and verifies the binary and the
// model document exist.
func NewExternal(cfg ExternalConfig, log *logging.Logger) (*ExternalSolver, error) {
	if _, err := exec.LookPath(cfg.Binary); err != nil {
		return nil, fmt.Errorf("solver binary %q not found: %w", cfg.Binary, err)
	}
	if _, err := os.Stat(cfg.Document); err != nil {
		return nil, fmt.Errorf("model document %q: %w", cfg.Document, err)
	}
	if err := os.MkdirAll(cfg.WorkDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	return &ExternalSolver{cfg: cfg, log: log}, nil
}

// Name returns the backend name
func (s *ExternalSolver) Name() string {
	return "external"
}

// NotifyRetries registers a callback invoked, with the point ID, each time a
// transient solver failure is about to be retried
func (s *ExternalSolver) NotifyRetries(fn func(pointID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRetry = fn
}

func (s *ExternalSolver) noteRetry(pointID string) {
	s.mu.Lock()
	fn := s.onRetry
	s.mu.Unlock()
	if fn != nil {
		fn(pointID)
	}
}

// Mesh returns the cached element geometry, nil before the first field solve
func (s *ExternalSolver) Mesh() *models.Mesh {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mesh
}

// Close removes the scratch directory unless case files are kept
func (s *ExternalSolver) Close() error {
	if s.cfg.KeepCaseFiles {
		return nil
	}
	return os.RemoveAll(s.cfg.WorkDir)
}

// BuildCommand generates the solver command line for a case/frame file pair
func (s *ExternalSolver) BuildCommand(casePath, framePath string) []string {
	return []string{
		s.cfg.Binary,
		"solve",
		"--model", s.cfg.Document,
		"--case", casePath,
		"--out", framePath,
	}
}

// Analyze writes the case file, runs the solver and parses the frame it
// writes back. Transient failures (killed or stuck solver processes) are
// retried with backoff; solver-reported case errors are not.
func (s *ExternalSolver) Analyze(ctx context.Context, req Request) (*models.FieldFrame, error) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	casePath := filepath.Join(s.cfg.WorkDir, fmt.Sprintf("case_%06d.json", seq))
	framePath := filepath.Join(s.cfg.WorkDir, fmt.Sprintf("frame_%06d.json", seq))

	caseData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal case: %w", err)
	}
	if err := os.WriteFile(casePath, caseData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write case file: %w", err)
	}
	if !s.cfg.KeepCaseFiles {
		defer os.Remove(casePath)
		defer os.Remove(framePath)
	}

	args := s.BuildCommand(casePath, framePath)

	// Only transient failures go through the backoff loop; a case the
	// solver rejected will be rejected again, so permanent errors return
	// immediately.
	start := time.Now()
	rcfg := s.cfg.Retry
	rcfg.OnRetry = func(int, error) {
		s.noteRetry(req.PointID)
	}
	var permErr error
	err = retry.Do(ctx, rcfg, func() error {
		runErr := s.runOnce(ctx, args)
		if runErr != nil && !retry.IsRetryable(runErr) {
			permErr = runErr
			return nil
		}
		return runErr
	})
	if err == nil && permErr != nil {
		err = permErr
	}
	if err != nil {
		return nil, err
	}

	frameData, err := os.ReadFile(framePath)
	if err != nil {
		return nil, fmt.Errorf("solver wrote no frame file: %w", err)
	}

	frame, mesh, err := decodeFrame(frameData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame %s: %w", framePath, err)
	}
	frame.PointID = req.PointID
	frame.RotorAngle = req.RotorAngle
	frame.PhaseCurrents = req.PhaseCurrents

	if mesh != nil {
		s.mu.Lock()
		if s.mesh == nil {
			s.mesh = mesh
		}
		s.mu.Unlock()
	}

	if req.NeedFields {
		if err := s.checkFrame(frame); err != nil {
			return nil, err
		}
	}

	s.log.Debug("Solver run complete", map[string]interface{}{
		"point":   req.PointID,
		"theta_r": req.RotorAngle,
		"torque":  frame.Torque,
		"elapsed": time.Since(start).Seconds(),
	})

	return frame, nil
}

// runOnce executes one solver invocation with the configured timeout
func (s *ExternalSolver) runOnce(ctx context.Context, args []string) error {
	runCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("solver timeout after %s", s.cfg.Timeout)
		}
		msg := lastLine(stderr.Bytes())
		if msg != "" {
			return fmt.Errorf("solver failed: %s: %w", msg, err)
		}
		return fmt.Errorf("solver failed: %w", err)
	}
	return nil
}

// checkFrame validates field arrays against the cached mesh
func (s *ExternalSolver) checkFrame(frame *models.FieldFrame) error {
	mesh := s.Mesh()
	if mesh == nil {
		return fmt.Errorf("solver returned fields without mesh geometry")
	}
	n := len(mesh.Elements)
	if len(frame.Bx) != n || len(frame.By) != n {
		return fmt.Errorf("flux density length %d does not match mesh size %d", len(frame.Bx), n)
	}
	if len(frame.A) != n {
		return fmt.Errorf("vector potential length %d does not match mesh size %d", len(frame.A), n)
	}
	return nil
}

// frameEnvelope is the on-disk frame format written by the solver front end
type frameEnvelope struct {
	Torque float64      `json:"torque"`
	Mesh   *models.Mesh `json:"mesh,omitempty"`
	Bx     []float64    `json:"bx,omitempty"`
	By     []float64    `json:"by,omitempty"`
	A      []float64    `json:"a,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// decodeFrame parses a frame file into a field frame and optional mesh
func decodeFrame(data []byte) (*models.FieldFrame, *models.Mesh, error) {
	var env frameEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, err
	}
	if env.Error != "" {
		return nil, nil, fmt.Errorf("solver reported: %s", env.Error)
	}
	frame := &models.FieldFrame{
		Torque: env.Torque,
		Bx:     env.Bx,
		By:     env.By,
		A:      env.A,
	}
	return frame, env.Mesh, nil
}

// lastLine returns the last non-empty line of solver stderr
func lastLine(b []byte) string {
	lines := bytes.Split(bytes.TrimSpace(b), []byte("\n"))
	if len(lines) == 0 {
		return ""
	}
	return string(bytes.TrimSpace(lines[len(lines)-1]))
}
