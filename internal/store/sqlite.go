// Package store persists finished experiments in a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/mendoza/internal/simulation"
)

// DBFile is the database file name inside the store directory.
const DBFile = "runs.db"

// timeLayout sorts lexically in creation order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when no run matches the requested ID.
var ErrNotFound = errors.New("run not found")

// RunParams records the settings a run was produced with.
type RunParams struct {
	TStart      float64   `json:"t_start"`
	TEnd        float64   `json:"t_end"`
	Samples     int       `json:"samples"`
	Repetitions int       `json:"repetitions"`
	Steepness   float64   `json:"steepness"`
	Gamma       []float64 `json:"gamma"`
	Mode        string    `json:"mode,omitempty"`
	// PerturbationRepetitions is 0 when no perturbation was run.
	PerturbationRepetitions int `json:"perturbation_repetitions,omitempty"`
}

// Run is one stored experiment: the baseline samples, their aggregate, and
// any perturbation rows computed against it.
type Run struct {
	ID            string                    `json:"id"`
	CreatedAt     time.Time                 `json:"created_at"`
	Network       string                    `json:"network"`
	Nodes         []string                  `json:"nodes"`
	Seed          uint64                    `json:"seed"`
	Params        RunParams                 `json:"params"`
	Requested     int                       `json:"requested"`
	Succeeded     int                       `json:"succeeded"`
	Samples       [][]float64               `json:"samples,omitempty"`
	Baseline      simulation.Baseline       `json:"baseline"`
	Perturbations []simulation.Perturbation `json:"perturbations,omitempty"`
}

// RunSummary is the listing view of a run.
type RunSummary struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Network       string    `json:"network"`
	NodeCount     int       `json:"node_count"`
	Seed          uint64    `json:"seed"`
	Requested     int       `json:"requested"`
	Succeeded     int       `json:"succeeded"`
	Perturbations int       `json:"perturbations"`
}

// RunStore is a SQLite-backed run history.
type RunStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// Open opens (or creates) the run database in dir.
func Open(dir string) (*RunStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	dbPath := filepath.Join(dir, DBFile)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &RunStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *RunStore) Path() string { return s.dbPath }

// Close closes the database.
func (s *RunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveRun stores run in a single transaction. An empty ID is replaced with a
// new UUID and a zero CreatedAt with the current time. The stored ID is
// returned.
func (s *RunStore) SaveRun(ctx context.Context, run *Run) (string, error) {
	if run == nil {
		return "", fmt.Errorf("run is required")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	nodes, err := json.Marshal(run.Nodes)
	if err != nil {
		return "", fmt.Errorf("failed to encode nodes: %w", err)
	}
	params, err := json.Marshal(run.Params)
	if err != nil {
		return "", fmt.Errorf("failed to encode params: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, network, nodes, seed, params, requested, succeeded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UTC().Format(timeLayout), run.Network, string(nodes),
		strconv.FormatUint(run.Seed, 10), string(params), run.Requested, run.Succeeded)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	for i, state := range run.Samples {
		enc, err := encodeVector(state)
		if err != nil {
			return "", fmt.Errorf("sample %d: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO samples (run_id, repetition, state) VALUES (?, ?, ?)`,
			run.ID, i, enc); err != nil {
			return "", fmt.Errorf("failed to insert sample %d: %w", i, err)
		}
	}

	if err := insertBaseline(ctx, tx, run.ID, run.Baseline); err != nil {
		return "", err
	}

	for i, p := range run.Perturbations {
		if err := insertPerturbation(ctx, tx, run.ID, i, p); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return run.ID, nil
}

func insertBaseline(ctx context.Context, tx *sql.Tx, id string, b simulation.Baseline) error {
	mean, err := encodeVector(b.Mean)
	if err != nil {
		return fmt.Errorf("baseline mean: %w", err)
	}
	median, err := encodeVector(b.Median)
	if err != nil {
		return fmt.Errorf("baseline median: %w", err)
	}
	std, err := encodeVector(b.Std)
	if err != nil {
		return fmt.Errorf("baseline std: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO baselines (run_id, mean, median, std, count) VALUES (?, ?, ?, ?, ?)`,
		id, mean, median, std, b.Count); err != nil {
		return fmt.Errorf("failed to insert baseline: %w", err)
	}
	return nil
}

func insertPerturbation(ctx context.Context, tx *sql.Tx, id string, position int, p simulation.Perturbation) error {
	stimuli, err := json.Marshal(p.Stimuli)
	if err != nil {
		return fmt.Errorf("perturbation %d stimuli: %w", position, err)
	}
	final, err := encodeVector(p.Final)
	if err != nil {
		return fmt.Errorf("perturbation %d final: %w", position, err)
	}
	spread, err := encodeVector(p.Spread)
	if err != nil {
		return fmt.Errorf("perturbation %d spread: %w", position, err)
	}
	diff, err := encodeVector(p.Diff)
	if err != nil {
		return fmt.Errorf("perturbation %d diff: %w", position, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO perturbations (run_id, position, stimuli, final, spread, diff, requested, succeeded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, position, string(stimuli), final, spread, diff, p.Requested, p.Succeeded); err != nil {
		return fmt.Errorf("failed to insert perturbation %d: %w", position, err)
	}
	return nil
}

// ListRuns returns the most recent runs first. A limit of 0 or less returns
// every run.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT r.id, r.created_at, r.network, r.nodes, r.seed, r.requested, r.succeeded,
		       (SELECT COUNT(*) FROM perturbations p WHERE p.run_id = r.id)
		FROM runs r
		ORDER BY r.created_at DESC, r.id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			sum            RunSummary
			created, nodes string
			seed           string
		)
		if err := rows.Scan(&sum.ID, &created, &sum.Network, &nodes, &seed,
			&sum.Requested, &sum.Succeeded, &sum.Perturbations); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if sum.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("run %s: bad created_at: %w", sum.ID, err)
		}
		if sum.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
			return nil, fmt.Errorf("run %s: bad seed: %w", sum.ID, err)
		}
		var names []string
		if err := json.Unmarshal([]byte(nodes), &names); err != nil {
			return nil, fmt.Errorf("run %s: bad nodes: %w", sum.ID, err)
		}
		sum.NodeCount = len(names)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// GetRun loads a run by ID or unique ID prefix.
func (s *RunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("run ID is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	fullID, err := s.resolveID(ctx, id)
	if err != nil {
		return nil, err
	}

	run := &Run{ID: fullID}
	var created, nodes, seed, params string
	err = s.db.QueryRowContext(ctx, `
		SELECT created_at, network, nodes, seed, params, requested, succeeded
		FROM runs WHERE id = ?`, fullID).
		Scan(&created, &run.Network, &nodes, &seed, &params, &run.Requested, &run.Succeeded)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", fullID, err)
	}
	if run.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("run %s: bad created_at: %w", fullID, err)
	}
	if run.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
		return nil, fmt.Errorf("run %s: bad seed: %w", fullID, err)
	}
	if err := json.Unmarshal([]byte(nodes), &run.Nodes); err != nil {
		return nil, fmt.Errorf("run %s: bad nodes: %w", fullID, err)
	}
	if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
		return nil, fmt.Errorf("run %s: bad params: %w", fullID, err)
	}

	if err := s.loadSamples(ctx, run); err != nil {
		return nil, err
	}
	if err := s.loadBaseline(ctx, run); err != nil {
		return nil, err
	}
	if err := s.loadPerturbations(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// resolveID expands a prefix to a full run ID.
func (s *RunStore) resolveID(ctx context.Context, prefix string) (string, error) {
	pattern := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM runs WHERE id LIKE ? ESCAPE '\' ORDER BY id LIMIT 2`, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to look up run: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("failed to scan run id: %w", err)
		}
		if id == prefix {
			return id, nil
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, prefix)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("run ID prefix %q is ambiguous", prefix)
	}
}

func (s *RunStore) loadSamples(ctx context.Context, run *Run) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state FROM samples WHERE run_id = ? ORDER BY repetition`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var enc string
		if err := rows.Scan(&enc); err != nil {
			return fmt.Errorf("failed to scan sample: %w", err)
		}
		v, err := decodeVector(enc)
		if err != nil {
			return fmt.Errorf("run %s: bad sample: %w", run.ID, err)
		}
		run.Samples = append(run.Samples, v)
	}
	return rows.Err()
}

func (s *RunStore) loadBaseline(ctx context.Context, run *Run) error {
	var mean, median, std string
	err := s.db.QueryRowContext(ctx,
		`SELECT mean, median, std, count FROM baselines WHERE run_id = ?`, run.ID).
		Scan(&mean, &median, &std, &run.Baseline.Count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load baseline: %w", err)
	}
	for _, f := range []struct {
		enc string
		dst *[]float64
	}{{mean, &run.Baseline.Mean}, {median, &run.Baseline.Median}, {std, &run.Baseline.Std}} {
		if *f.dst, err = decodeVector(f.enc); err != nil {
			return fmt.Errorf("run %s: bad baseline: %w", run.ID, err)
		}
	}
	return nil
}

func (s *RunStore) loadPerturbations(ctx context.Context, run *Run) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stimuli, final, spread, diff, requested, succeeded
		FROM perturbations WHERE run_id = ? ORDER BY position`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to query perturbations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p                            simulation.Perturbation
			stimuli, final, spread, diff string
		)
		if err := rows.Scan(&stimuli, &final, &spread, &diff, &p.Requested, &p.Succeeded); err != nil {
			return fmt.Errorf("failed to scan perturbation: %w", err)
		}
		if err := json.Unmarshal([]byte(stimuli), &p.Stimuli); err != nil {
			return fmt.Errorf("run %s: bad stimuli: %w", run.ID, err)
		}
		p.Indices = make([]int, 0, len(p.Stimuli))
		for _, name := range p.Stimuli {
			for i, n := range run.Nodes {
				if n == name {
					p.Indices = append(p.Indices, i)
					break
				}
			}
		}
		if p.Final, err = decodeVector(final); err != nil {
			return fmt.Errorf("run %s: bad perturbation: %w", run.ID, err)
		}
		if p.Spread, err = decodeVector(spread); err != nil {
			return fmt.Errorf("run %s: bad perturbation: %w", run.ID, err)
		}
		if p.Diff, err = decodeVector(diff); err != nil {
			return fmt.Errorf("run %s: bad perturbation: %w", run.ID, err)
		}
		run.Perturbations = append(run.Perturbations, p)
	}
	return rows.Err()
}

// DeleteRun removes a run and its child rows.
func (s *RunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("run ID is required")
	}
	fullID, err := s.resolveID(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, fullID); err != nil {
		return fmt.Errorf("failed to delete run %s: %w", fullID, err)
	}
	return nil
}
