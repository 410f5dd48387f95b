// Package store archives finished simulation runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/orgsim/internal/models"
)

// ErrRunNotFound is returned when a run ID is not in the archive.
var ErrRunNotFound = errors.New("run not found")

// timeFormat is fixed width so finished_at sorts chronologically as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// RunInfo describes the configuration a run was produced with.
type RunInfo struct {
	Preset string `json:"preset"`
	Model  string `json:"model"`
	Policy string `json:"policy"`
	Seed   uint64 `json:"seed"`

	// VariantJSON is the resolved variant, stored verbatim.
	VariantJSON string `json:"-"`
}

// Run is the summary row of one archived run.
type Run struct {
	ID string `json:"id"`
	RunInfo

	TickCount         int       `json:"tick_count"`
	MeanPerformance   float64   `json:"mean_performance"`
	MinPerformance    float64   `json:"min_performance"`
	MaxPerformance    float64   `json:"max_performance"`
	FinalEnvironment  float64   `json:"final_environment"`
	FinalOrganization float64   `json:"final_organization"`
	ShockCount        int       `json:"shock_count"`
	FinishedAt        time.Time `json:"finished_at"`
}

// Summarize computes the summary fields of a run from its history.
func Summarize(records []models.TickRecord) Run {
	var r Run
	if len(records) == 0 {
		return r
	}
	r.TickCount = len(records)
	r.MinPerformance = math.Inf(1)
	r.MaxPerformance = math.Inf(-1)
	var sum float64
	for _, rec := range records {
		sum += rec.Performance
		r.MinPerformance = math.Min(r.MinPerformance, rec.Performance)
		r.MaxPerformance = math.Max(r.MaxPerformance, rec.Performance)
		if rec.Shock != 0 {
			r.ShockCount++
		}
	}
	r.MeanPerformance = sum / float64(len(records))
	last := records[len(records)-1]
	r.FinalEnvironment = last.Environment
	r.FinalOrganization = last.Organization
	return r
}

// Archive is a SQLite-backed run archive. It is safe for concurrent use.
type Archive struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens or creates the archive at path. ":memory:" opens a private
// in-memory archive.
func Open(path string) (*Archive, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
		dsn = path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	ctx := context.Background()
	if path == ":memory:" {
		if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}
	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Archive{db: db}, nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// SaveRun stores a run and its full history in one transaction and returns
// the new run's ID.
func (a *Archive) SaveRun(ctx context.Context, info RunInfo, records []models.TickRecord, finishedAt time.Time) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	run := Summarize(records)
	id := uuid.NewString()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, preset, model, policy, seed, tick_count,
			mean_performance, min_performance, max_performance,
			final_environment, final_organization, shock_count,
			variant_json, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, info.Preset, info.Model, info.Policy, int64(info.Seed), run.TickCount,
		finite(run.MeanPerformance), finite(run.MinPerformance), finite(run.MaxPerformance),
		run.FinalEnvironment, run.FinalOrganization, run.ShockCount,
		nullString(info.VariantJSON), finishedAt.UTC().Format(timeFormat))
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ticks (run_id, tick, environment, organization, modularity,
			diversification, slack, shock, performance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare tick insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, id, r.Tick, r.Environment, r.Organization,
			r.Modularity, r.Diversification, r.Slack, r.Shock, r.Performance); err != nil {
			return "", fmt.Errorf("failed to insert tick %d: %w", r.Tick, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return id, nil
}

const runColumns = `id, preset, model, policy, seed, tick_count,
	mean_performance, min_performance, max_performance,
	final_environment, final_organization, shock_count, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		r        Run
		seed     int64
		finished string
	)
	if err := row.Scan(&r.ID, &r.Preset, &r.Model, &r.Policy, &seed, &r.TickCount,
		&r.MeanPerformance, &r.MinPerformance, &r.MaxPerformance,
		&r.FinalEnvironment, &r.FinalOrganization, &r.ShockCount, &finished); err != nil {
		return Run{}, err
	}
	r.Seed = uint64(seed)
	t, err := time.Parse(timeFormat, finished)
	if err != nil {
		return Run{}, fmt.Errorf("parsing finished_at %q: %w", finished, err)
	}
	r.FinishedAt = t
	return r, nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (a *Archive) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY finished_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LoadRun returns a run's summary and its full history in tick order.
func (a *Archive) LoadRun(ctx context.Context, id string) (Run, []models.TickRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	run, err := scanRun(a.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT tick, environment, organization, modularity, diversification,
			slack, shock, performance
		FROM ticks WHERE run_id = ? ORDER BY tick`, id)
	if err != nil {
		return Run{}, nil, fmt.Errorf("failed to query ticks: %w", err)
	}
	defer rows.Close()

	records := make([]models.TickRecord, 0, run.TickCount)
	for rows.Next() {
		var r models.TickRecord
		if err := rows.Scan(&r.Tick, &r.Environment, &r.Organization, &r.Modularity,
			&r.Diversification, &r.Slack, &r.Shock, &r.Performance); err != nil {
			return Run{}, nil, fmt.Errorf("failed to scan tick: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return Run{}, nil, err
	}
	return run, records, nil
}

// DeleteRun removes a run and its history.
func (a *Archive) DeleteRun(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// finite maps the infinities of an empty summary to 0 for storage.
func finite(f float64) float64 {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
