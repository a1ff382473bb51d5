package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Ozmachines/Eletric-Machines/pkg/models"
)

// SQLiteStore is a SQLite-based implementation of the data store. Field
// frames are stored as JSON blobs: they are written once per point and read
// back in bulk for post-processing, so relational access buys nothing.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore creates a new SQLite store at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// WAL plus a busy timeout keeps concurrent sweep workers from
	// tripping over each other; a single writer connection serializes
	// the actual writes.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database schema
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sweeps (
		id TEXT PRIMARY KEY,
		machine TEXT NOT NULL,
		solver TEXT NOT NULL,
		currents TEXT NOT NULL,
		betas TEXT NOT NULL,
		rotor_steps INTEGER NOT NULL,
		step_deg REAL NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		finished_at DATETIME,
		error TEXT,
		mesh TEXT
	);

	CREATE TABLE IF NOT EXISTS points (
		id TEXT PRIMARY KEY,
		sweep_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		current REAL NOT NULL,
		beta REAL NOT NULL,
		id_current REAL NOT NULL,
		iq_current REAL NOT NULL,
		rotor_angle REAL NOT NULL,
		status TEXT NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		started_at DATETIME,
		finished_at DATETIME,
		error TEXT,
		torque REAL,
		elapsed_seconds REAL,
		FOREIGN KEY (sweep_id) REFERENCES sweeps(id)
	);
	CREATE INDEX IF NOT EXISTS idx_points_sweep ON points(sweep_id);

	CREATE TABLE IF NOT EXISTS frames (
		sweep_id TEXT NOT NULL,
		row_idx INTEGER NOT NULL,
		step INTEGER NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (sweep_id, row_idx, step),
		FOREIGN KEY (sweep_id) REFERENCES sweeps(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateSweep stores a new sweep
func (s *SQLiteStore) CreateSweep(sweep *models.Sweep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	currents, err := json.Marshal(sweep.Currents)
	if err != nil {
		return fmt.Errorf("marshal currents: %w", err)
	}
	betas, err := json.Marshal(sweep.Betas)
	if err != nil {
		return fmt.Errorf("marshal betas: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO sweeps (id, machine, solver, currents, betas, rotor_steps, step_deg, status, created_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sweep.ID, sweep.Machine, sweep.Solver, string(currents), string(betas),
		sweep.RotorSteps, sweep.StepDeg, string(sweep.Status), sweep.CreatedAt, sweep.Error)
	if err != nil {
		return fmt.Errorf("insert sweep: %w", err)
	}
	return nil
}

// UpdateSweep updates the mutable sweep columns
func (s *SQLiteStore) UpdateSweep(sweep *models.Sweep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE sweeps SET status = ?, finished_at = ?, error = ? WHERE id = ?
	`, string(sweep.Status), sweep.FinishedAt, sweep.Error, sweep.ID)
	if err != nil {
		return fmt.Errorf("update sweep: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sweep %s: %w", sweep.ID, ErrNotFound)
	}
	return nil
}

// GetSweep retrieves a sweep by ID
func (s *SQLiteStore) GetSweep(id string) (*models.Sweep, error) {
	row := s.db.QueryRow(`
		SELECT id, machine, solver, currents, betas, rotor_steps, step_deg, status, created_at, finished_at, error
		FROM sweeps WHERE id = ?
	`, id)
	sweep, err := scanSweep(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sweep %s: %w", id, ErrNotFound)
	}
	return sweep, err
}

// ListSweeps returns all sweeps ordered by creation time
func (s *SQLiteStore) ListSweeps() ([]*models.Sweep, error) {
	rows, err := s.db.Query(`
		SELECT id, machine, solver, currents, betas, rotor_steps, step_deg, status, created_at, finished_at, error
		FROM sweeps ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list sweeps: %w", err)
	}
	defer rows.Close()

	var out []*models.Sweep
	for rows.Next() {
		sweep, err := scanSweep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sweep)
	}
	return out, rows.Err()
}

// scanner covers both sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSweep(sc scanner) (*models.Sweep, error) {
	var sweep models.Sweep
	var currents, betas, status string
	var finishedAt sql.NullTime
	var errStr sql.NullString

	err := sc.Scan(&sweep.ID, &sweep.Machine, &sweep.Solver, &currents, &betas,
		&sweep.RotorSteps, &sweep.StepDeg, &status, &sweep.CreatedAt, &finishedAt, &errStr)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(currents), &sweep.Currents); err != nil {
		return nil, fmt.Errorf("unmarshal currents: %w", err)
	}
	if err := json.Unmarshal([]byte(betas), &sweep.Betas); err != nil {
		return nil, fmt.Errorf("unmarshal betas: %w", err)
	}
	sweep.Status = models.SweepStatus(status)
	if finishedAt.Valid {
		sweep.FinishedAt = &finishedAt.Time
	}
	if errStr.Valid {
		sweep.Error = errStr.String
	}
	return &sweep, nil
}

// SaveMesh stores the mesh geometry for a sweep
func (s *SQLiteStore) SaveMesh(sweepID string, mesh *models.Mesh) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(mesh)
	if err != nil {
		return fmt.Errorf("marshal mesh: %w", err)
	}
	res, err := s.db.Exec(`UPDATE sweeps SET mesh = ? WHERE id = ?`, string(data), sweepID)
	if err != nil {
		return fmt.Errorf("save mesh: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sweep %s: %w", sweepID, ErrNotFound)
	}
	return nil
}

// GetMesh retrieves the mesh geometry of a sweep
func (s *SQLiteStore) GetMesh(sweepID string) (*models.Mesh, error) {
	var data sql.NullString
	err := s.db.QueryRow(`SELECT mesh FROM sweeps WHERE id = ?`, sweepID).Scan(&data)
	if err == sql.ErrNoRows || (err == nil && !data.Valid) {
		return nil, fmt.Errorf("mesh for sweep %s: %w", sweepID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get mesh: %w", err)
	}

	var mesh models.Mesh
	if err := json.Unmarshal([]byte(data.String), &mesh); err != nil {
		return nil, fmt.Errorf("unmarshal mesh: %w", err)
	}
	return &mesh, nil
}

// CreatePoint stores a new operating point
func (s *SQLiteStore) CreatePoint(point *models.OperatingPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO points (id, sweep_id, idx, current, beta, id_current, iq_current, rotor_angle,
			status, retry_count, created_at, started_at, finished_at, error, torque, elapsed_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, point.ID, point.SweepID, point.Index, point.Current, point.Beta, point.Id, point.Iq,
		point.RotorAngle, string(point.Status), point.RetryCount, point.CreatedAt,
		point.StartedAt, point.FinishedAt, point.Error, point.Torque, point.Elapsed)
	if err != nil {
		return fmt.Errorf("insert point: %w", err)
	}
	return nil
}

// UpdatePoint replaces the mutable point columns. Status changes go through
// the transition table; writing the same status again is an idempotent no-op
// check.
func (s *SQLiteStore) UpdatePoint(point *models.OperatingPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current string
	err := s.db.QueryRow(`SELECT status FROM points WHERE id = ?`, point.ID).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("point %s: %w", point.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get point status: %w", err)
	}
	if models.PointStatus(current) != point.Status {
		if err := models.ValidateTransition(models.PointStatus(current), point.Status); err != nil {
			return fmt.Errorf("point %s: %w", point.ID, err)
		}
	}

	res, err := s.db.Exec(`
		UPDATE points SET status = ?, retry_count = ?, started_at = ?, finished_at = ?,
			error = ?, torque = ?, elapsed_seconds = ?
		WHERE id = ?
	`, string(point.Status), point.RetryCount, point.StartedAt, point.FinishedAt,
		point.Error, point.Torque, point.Elapsed, point.ID)
	if err != nil {
		return fmt.Errorf("update point: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("point %s: %w", point.ID, ErrNotFound)
	}
	return nil
}

// ListPoints returns the operating points of a sweep ordered by index
func (s *SQLiteStore) ListPoints(sweepID string) ([]*models.OperatingPoint, error) {
	rows, err := s.db.Query(`
		SELECT id, sweep_id, idx, current, beta, id_current, iq_current, rotor_angle,
			status, retry_count, created_at, started_at, finished_at, error, torque, elapsed_seconds
		FROM points WHERE sweep_id = ? ORDER BY idx
	`, sweepID)
	if err != nil {
		return nil, fmt.Errorf("list points: %w", err)
	}
	defer rows.Close()

	var out []*models.OperatingPoint
	for rows.Next() {
		var p models.OperatingPoint
		var status string
		var startedAt, finishedAt sql.NullTime
		var errStr sql.NullString
		var torque, elapsed sql.NullFloat64

		err := rows.Scan(&p.ID, &p.SweepID, &p.Index, &p.Current, &p.Beta, &p.Id, &p.Iq,
			&p.RotorAngle, &status, &p.RetryCount, &p.CreatedAt, &startedAt, &finishedAt,
			&errStr, &torque, &elapsed)
		if err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}

		p.Status = models.PointStatus(status)
		if startedAt.Valid {
			p.StartedAt = &startedAt.Time
		}
		if finishedAt.Valid {
			p.FinishedAt = &finishedAt.Time
		}
		if errStr.Valid {
			p.Error = errStr.String
		}
		if torque.Valid {
			p.Torque = torque.Float64
		}
		if elapsed.Valid {
			p.Elapsed = elapsed.Float64
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// SaveFrame stores a field frame as a JSON blob
func (s *SQLiteStore) SaveFrame(sweepID string, key FrameKey, frame *models.FieldFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO frames (sweep_id, row_idx, step, data) VALUES (?, ?, ?, ?)
	`, sweepID, key.Row, key.Step, string(data))
	if err != nil {
		return fmt.Errorf("insert frame: %w", err)
	}
	return nil
}

// LoadFrames returns all stored frames of a sweep
func (s *SQLiteStore) LoadFrames(sweepID string) (map[FrameKey]*models.FieldFrame, error) {
	rows, err := s.db.Query(`SELECT row_idx, step, data FROM frames WHERE sweep_id = ?`, sweepID)
	if err != nil {
		return nil, fmt.Errorf("load frames: %w", err)
	}
	defer rows.Close()

	out := make(map[FrameKey]*models.FieldFrame)
	for rows.Next() {
		var key FrameKey
		var data string
		if err := rows.Scan(&key.Row, &key.Step, &data); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		var frame models.FieldFrame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			return nil, fmt.Errorf("unmarshal frame (%d,%d): %w", key.Row, key.Step, err)
		}
		out[key] = &frame
	}
	return out, rows.Err()
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sanity check against interface drift
var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
