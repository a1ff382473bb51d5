// Package sweep orchestrates field-capture runs: every current magnitude of
// a ladder, at its MTPA angle, across one mechanical revolution of rotor
// steps, one solver invocation per point.
package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ozmachines/Eletric-Machines/pkg/logging"
	"github.com/Ozmachines/Eletric-Machines/pkg/metrics"
	"github.com/Ozmachines/Eletric-Machines/pkg/models"
	"github.com/Ozmachines/Eletric-Machines/pkg/park"
	"github.com/Ozmachines/Eletric-Machines/pkg/solver"
	"github.com/Ozmachines/Eletric-Machines/pkg/store"
)

// ReferenceCurrents is the stator current ladder of the reference study, in
// ampere peak
var ReferenceCurrents = []float64{10, 12.96, 21.85, 36.67, 57.41, 84.07, 116.67, 155.19, 199.63, 250}

// Config describes one sweep
type Config struct {
	Currents   []float64 // peak phase magnitudes
	Betas      []float64 // MTPA angle per current, same length
	RotorSteps int       // samples per mechanical revolution
	Workers    int       // concurrent solver invocations
}

// DefaultConfig covers one revolution in 30 steps with a single worker
func DefaultConfig() Config {
	return Config{
		Currents:   ReferenceCurrents,
		RotorSteps: 30,
		Workers:    1,
	}
}

// Validate checks a sweep configuration
func (c Config) Validate() error {
	if len(c.Currents) == 0 {
		return fmt.Errorf("no current magnitudes")
	}
	if len(c.Betas) != len(c.Currents) {
		return fmt.Errorf("got %d beta angles for %d currents", len(c.Betas), len(c.Currents))
	}
	if c.RotorSteps < 2 {
		return fmt.Errorf("rotor_steps must be at least 2, got %d", c.RotorSteps)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	return nil
}

// Result is the in-memory outcome of a sweep, ready for harmonic analysis
type Result struct {
	Sweep     *models.Sweep
	Mesh      *models.Mesh
	Frames    [][]*models.FieldFrame // [current row][rotor step]
	AvgTorque []float64              // gap torque averaged per row
}

// Runner drives sweeps against a solver backend and persists as it goes
type Runner struct {
	solver  solver.Solver
	machine *models.Machine
	store   store.Store
	metrics *metrics.SweepMetrics // optional
	log     *logging.Logger

	mu       sync.Mutex
	inFlight map[string]*models.OperatingPoint // point ID -> record being solved
}

// retryNotifier is implemented by solver backends that report transient
// failures they are about to retry
type retryNotifier interface {
	NotifyRetries(fn func(pointID string))
}

// NewRunner creates a sweep runner. metrics may be nil.
func NewRunner(s solver.Solver, machine *models.Machine, st store.Store, m *metrics.SweepMetrics, log *logging.Logger) *Runner {
	r := &Runner{
		solver:   s,
		machine:  machine,
		store:    st,
		metrics:  m,
		log:      log,
		inFlight: make(map[string]*models.OperatingPoint),
	}
	if n, ok := s.(retryNotifier); ok {
		n.NotifyRetries(r.noteRetry)
	}
	return r
}

// noteRetry records a transient solver failure against the in-flight point.
// The solver calls it from the same goroutine that is solving the point, so
// the record is not written concurrently.
func (r *Runner) noteRetry(pointID string) {
	r.mu.Lock()
	point := r.inFlight[pointID]
	r.mu.Unlock()
	if point == nil {
		return
	}
	point.RetryCount++
	if err := r.store.UpdatePoint(point); err != nil {
		r.log.Error("Failed to record point retry", map[string]interface{}{"point": pointID, "error": err.Error()})
	}
	if r.metrics != nil {
		r.metrics.RetryObserved()
	}
	r.log.Warn("Solver retry", map[string]interface{}{"point": pointID, "retries": point.RetryCount})
}

// task is one pending solver invocation
type task struct {
	row, step int
}

// Run executes a full sweep. Frames persist point by point, so a cancelled
// or crashed run can be finished later with Resume.
func (r *Runner) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sweep config: %w", err)
	}

	sweep := &models.Sweep{
		ID:         uuid.NewString(),
		Machine:    r.machine.Name,
		Solver:     r.solver.Name(),
		Currents:   cfg.Currents,
		Betas:      cfg.Betas,
		RotorSteps: cfg.RotorSteps,
		StepDeg:    360.0 / float64(cfg.RotorSteps),
		Status:     models.SweepStatusRunning,
		CreatedAt:  time.Now(),
	}
	if err := r.store.CreateSweep(sweep); err != nil {
		return nil, fmt.Errorf("failed to create sweep: %w", err)
	}

	r.log.Info("Sweep started", map[string]interface{}{
		"sweep":       sweep.ID,
		"currents":    len(cfg.Currents),
		"rotor_steps": cfg.RotorSteps,
		"workers":     cfg.Workers,
		"solver":      r.solver.Name(),
	})

	tasks := make([]task, 0, len(cfg.Currents)*cfg.RotorSteps)
	for i := range cfg.Currents {
		for j := 0; j < cfg.RotorSteps; j++ {
			tasks = append(tasks, task{row: i, step: j})
		}
	}

	result, err := r.runTasks(ctx, sweep, tasks, nil, cfg.Workers)
	return r.finishSweep(sweep, result, err)
}

// Resume finishes an interrupted sweep, re-solving only the points that have
// no stored frame.
func (r *Runner) Resume(ctx context.Context, sweepID string, workers int) (*Result, error) {
	sweep, err := r.store.GetSweep(sweepID)
	if err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}

	have, err := r.store.LoadFrames(sweepID)
	if err != nil {
		return nil, err
	}

	var tasks []task
	for i := range sweep.Currents {
		for j := 0; j < sweep.RotorSteps; j++ {
			if _, ok := have[store.FrameKey{Row: i, Step: j}]; !ok {
				tasks = append(tasks, task{row: i, step: j})
			}
		}
	}

	r.log.Info("Sweep resumed", map[string]interface{}{
		"sweep":   sweep.ID,
		"missing": len(tasks),
		"stored":  len(have),
	})

	sweep.Status = models.SweepStatusRunning
	sweep.Error = ""
	sweep.FinishedAt = nil
	if err := r.store.UpdateSweep(sweep); err != nil {
		return nil, err
	}

	result, err := r.runTasks(ctx, sweep, tasks, have, workers)
	return r.finishSweep(sweep, result, err)
}

// runTasks solves the given tasks with a worker pool and assembles the full
// frame matrix, mixing in pre-existing frames for a resume.
func (r *Runner) runTasks(ctx context.Context, sweep *models.Sweep, tasks []task, have map[store.FrameKey]*models.FieldFrame, workers int) (*Result, error) {
	nRows := len(sweep.Currents)
	ns := sweep.RotorSteps

	frames := make([][]*models.FieldFrame, nRows)
	for i := range frames {
		frames[i] = make([]*models.FieldFrame, ns)
	}
	for key, f := range have {
		if key.Row < nRows && key.Step < ns {
			frames[key.Row][key.Step] = f
		}
	}

	if len(tasks) > 0 {
		workers = minInt(maxInt(1, workers), len(tasks))
	} else {
		workers = 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		firstErr  error
		completed = len(have)
		total     = nRows * ns
	)

	taskCh := make(chan task)

	worker := func() {
		defer wg.Done()
		for t := range taskCh {
			frame, err := r.solvePoint(runCtx, sweep, t)
			mu.Lock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				mu.Unlock()
				continue
			}
			frames[t.row][t.step] = frame
			completed++
			done := completed
			mu.Unlock()

			if r.metrics != nil {
				r.metrics.SetProgress(done, total)
			}
		}
	}

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go worker()
	}

	for _, t := range tasks {
		select {
		case taskCh <- t:
		case <-runCtx.Done():
		}
		if runCtx.Err() != nil {
			break
		}
	}
	close(taskCh)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mesh := r.solver.Mesh()
	if mesh != nil {
		if err := r.store.SaveMesh(sweep.ID, mesh); err != nil {
			return nil, fmt.Errorf("failed to persist mesh: %w", err)
		}
	} else {
		// Resume with nothing left to solve: the geometry is already
		// in the store.
		var err error
		mesh, err = r.store.GetMesh(sweep.ID)
		if err != nil {
			return nil, fmt.Errorf("solver produced no mesh geometry: %w", err)
		}
	}

	return &Result{
		Sweep:     sweep,
		Mesh:      mesh,
		Frames:    frames,
		AvgTorque: averageTorques(frames),
	}, nil
}

// solvePoint runs one operating point through the solver, tracking its
// lifecycle in the store
func (r *Runner) solvePoint(ctx context.Context, sweep *models.Sweep, t task) (*models.FieldFrame, error) {
	current := sweep.Currents[t.row]
	beta := sweep.Betas[t.row]
	thetaR := float64(t.step) * sweep.StepDeg
	id, iq := park.DQ(current, beta)

	point := &models.OperatingPoint{
		ID:         uuid.NewString(),
		SweepID:    sweep.ID,
		Index:      t.row*sweep.RotorSteps + t.step,
		Current:    current,
		Beta:       beta,
		Id:         id,
		Iq:         iq,
		RotorAngle: thetaR,
		Status:     models.PointStatusPending,
		CreatedAt:  time.Now(),
	}
	if err := r.store.CreatePoint(point); err != nil {
		return nil, fmt.Errorf("failed to create point: %w", err)
	}

	now := time.Now()
	point.Status = models.PointStatusRunning
	point.StartedAt = &now
	if err := r.store.UpdatePoint(point); err != nil {
		return nil, fmt.Errorf("failed to update point: %w", err)
	}

	req := solver.Request{
		PointID:       point.ID,
		PhaseCurrents: park.Phase(id, iq, r.machine.PolePairs, thetaR),
		RotorAngle:    thetaR,
		NeedFields:    true,
	}

	r.mu.Lock()
	r.inFlight[point.ID] = point
	r.mu.Unlock()

	start := time.Now()
	frame, err := r.solver.Analyze(ctx, req)
	elapsed := time.Since(start)

	r.mu.Lock()
	delete(r.inFlight, point.ID)
	r.mu.Unlock()
	finished := time.Now()
	point.FinishedAt = &finished
	point.Elapsed = elapsed.Seconds()

	if err != nil {
		point.Status = models.PointStatusFailed
		point.Error = err.Error()
		if uerr := r.store.UpdatePoint(point); uerr != nil {
			r.log.Error("Failed to record point failure", map[string]interface{}{"point": point.ID, "error": uerr.Error()})
		}
		if r.metrics != nil {
			r.metrics.PointFailed()
		}
		return nil, fmt.Errorf("point %.2f A at %.1f deg: %w", current, thetaR, err)
	}

	point.Status = models.PointStatusCompleted
	point.Torque = frame.Torque
	if err := r.store.UpdatePoint(point); err != nil {
		return nil, fmt.Errorf("failed to update point: %w", err)
	}
	if err := r.store.SaveFrame(sweep.ID, store.FrameKey{Row: t.row, Step: t.step}, frame); err != nil {
		return nil, fmt.Errorf("failed to persist frame: %w", err)
	}

	if r.metrics != nil {
		r.metrics.PointCompleted(fmt.Sprintf("%.2f", current), frame.Torque, elapsed.Seconds())
	}

	r.log.Info("Point solved", map[string]interface{}{
		"theta_r": thetaR,
		"current": current,
		"beta":    beta,
		"torque":  frame.Torque,
		"id":      id,
		"iq":      iq,
		"elapsed": elapsed.Seconds(),
	})

	return frame, nil
}

// finishSweep records the terminal sweep state and passes the result through
func (r *Runner) finishSweep(sweep *models.Sweep, result *Result, err error) (*Result, error) {
	now := time.Now()
	sweep.FinishedAt = &now
	if err != nil {
		sweep.Status = models.SweepStatusFailed
		sweep.Error = err.Error()
	} else {
		sweep.Status = models.SweepStatusCompleted
	}
	if uerr := r.store.UpdateSweep(sweep); uerr != nil {
		r.log.Error("Failed to record sweep state", map[string]interface{}{"sweep": sweep.ID, "error": uerr.Error()})
	}
	if err != nil {
		return nil, err
	}

	r.log.Info("Sweep finished", map[string]interface{}{
		"sweep":  sweep.ID,
		"status": string(sweep.Status),
	})
	return result, nil
}

// Load reconstructs a completed sweep's result from the store for
// post-processing
func Load(st store.Store, sweepID string) (*Result, error) {
	sweep, err := st.GetSweep(sweepID)
	if err != nil {
		return nil, err
	}
	mesh, err := st.GetMesh(sweepID)
	if err != nil {
		return nil, err
	}
	stored, err := st.LoadFrames(sweepID)
	if err != nil {
		return nil, err
	}

	frames := make([][]*models.FieldFrame, len(sweep.Currents))
	for i := range frames {
		frames[i] = make([]*models.FieldFrame, sweep.RotorSteps)
		for j := 0; j < sweep.RotorSteps; j++ {
			f, ok := stored[store.FrameKey{Row: i, Step: j}]
			if !ok {
				return nil, fmt.Errorf("sweep %s is missing frame (%d,%d); resume it first", sweepID, i, j)
			}
			frames[i][j] = f
		}
	}

	return &Result{
		Sweep:     sweep,
		Mesh:      mesh,
		Frames:    frames,
		AvgTorque: averageTorques(frames),
	}, nil
}

// averageTorques averages the gap torque over the rotor steps of each row
func averageTorques(frames [][]*models.FieldFrame) []float64 {
	out := make([]float64, len(frames))
	for i, row := range frames {
		var sum float64
		for _, f := range row {
			sum += f.Torque
		}
		if len(row) > 0 {
			out[i] = sum / float64(len(row))
		}
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
