// Package store keeps a history of scored maps in SQLite or Postgres.
// The history is write-mostly and never feeds back into scoring.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

// Driver names a supported database.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// Run is one recorded evaluation.
type Run struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	MapName        string    `json:"map_name"`
	MinScore       float64   `json:"min_score"`
	MaxScore       float64   `json:"max_score"`
	Segments       int       `json:"segments"`
	BlackAndWhite  bool      `json:"black_and_white"`
	LegendHasBlack bool      `json:"legend_has_black"`
	LegendVersion  int       `json:"legend_version"`
	AverageScore   float64   `json:"average_score"`
	PixelCount     int       `json:"pixel_count"`
	MatchedColors  []string  `json:"matched_colors"`
}

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:geomapscore.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/geomapscore?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return db, nil
}

// Same DDL for both drivers: DOUBLE PRECISION and BIGINT are accepted by SQLite.
const schema = `
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  created_at BIGINT NOT NULL,
  map_name TEXT NOT NULL DEFAULT '',
  min_score DOUBLE PRECISION NOT NULL,
  max_score DOUBLE PRECISION NOT NULL,
  segments INTEGER NOT NULL,
  black_and_white BOOLEAN NOT NULL,
  legend_has_black BOOLEAN NOT NULL,
  legend_version INTEGER NOT NULL,
  average_score DOUBLE PRECISION NOT NULL,
  pixel_count BIGINT NOT NULL,
  matched_colors_json TEXT NOT NULL
);
`

// RunStore persists runs.
type RunStore struct {
	db *sql.DB
}

func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// SaveRun inserts r, assigning an id and timestamp when missing, and
// returns the stored run.
func (s *RunStore) SaveRun(ctx context.Context, r Run) (Run, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.MatchedColors == nil {
		r.MatchedColors = []string{}
	}
	cj, err := json.Marshal(r.MatchedColors)
	if err != nil {
		return Run{}, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO runs
		(id,created_at,map_name,min_score,max_score,segments,black_and_white,legend_has_black,legend_version,average_score,pixel_count,matched_colors_json)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		r.ID, r.CreatedAt.UnixMilli(), r.MapName, r.MinScore, r.MaxScore, r.Segments,
		r.BlackAndWhite, r.LegendHasBlack, r.LegendVersion, r.AverageScore, r.PixelCount, string(cj))
	if err != nil {
		return Run{}, fmt.Errorf("inserting run: %w", err)
	}
	return r, nil
}

const runColumns = `id,created_at,map_name,min_score,max_score,segments,black_and_white,legend_has_black,legend_version,average_score,pixel_count,matched_colors_json`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	var created int64
	var cj string
	if err := row.Scan(&r.ID, &created, &r.MapName, &r.MinScore, &r.MaxScore, &r.Segments,
		&r.BlackAndWhite, &r.LegendHasBlack, &r.LegendVersion, &r.AverageScore, &r.PixelCount, &cj); err != nil {
		return Run{}, err
	}
	r.CreatedAt = time.UnixMilli(created)
	if err := json.Unmarshal([]byte(cj), &r.MatchedColors); err != nil {
		return Run{}, fmt.Errorf("decoding matched colors of run %s: %w", r.ID, err)
	}
	return r, nil
}

// GetRun loads one run by id.
func (s *RunStore) GetRun(ctx context.Context, id string) (Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

// ListRuns returns up to limit runs, newest first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
