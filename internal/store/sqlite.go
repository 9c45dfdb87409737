package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/revgate/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer; several hook invocations
	// may record at once, so serialize through one connection.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Check if already applied
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func marshalList(v []string) string {
	data, err := json.Marshal(v)
	if err != nil || v == nil {
		return "[]"
	}
	return string(data)
}

func limitClause(limit int) string {
	if limit > 0 {
		return fmt.Sprintf(" LIMIT %d", limit)
	}
	return ""
}

// --- Gate events ---

func (s *SQLiteStore) RecordGateEvent(ctx context.Context, e *models.GateEvent) error {
	if e.ID == "" {
		e.ID = newULID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO gate_events (id, action, outcome, path, reason, bypass_source, kind, branch, commit_hash, diff_hash, dir, warnings, detected_target_files, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Action, string(e.Outcome), e.Path, e.Reason, e.BypassSource,
		e.Kind, e.Branch, e.Commit, e.DiffHash, e.Dir,
		marshalList(e.Warnings), marshalList(e.DetectedTargetFiles), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record gate event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListGateEvents(ctx context.Context, filter EventFilter) ([]*models.GateEvent, error) {
	query := `SELECT id, action, outcome, path, reason, bypass_source, kind, branch, commit_hash, diff_hash, dir, warnings, detected_target_files, created_at
		FROM gate_events WHERE 1=1`
	var args []any
	if filter.Branch != "" {
		query += " AND branch = ?"
		args = append(args, filter.Branch)
	}
	if filter.Action != "" {
		query += " AND action = ?"
		args = append(args, filter.Action)
	}
	query += " ORDER BY created_at DESC, id DESC" + limitClause(filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list gate events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*models.GateEvent
	for rows.Next() {
		e := &models.GateEvent{}
		var warningsJSON, filesJSON string
		if err := rows.Scan(&e.ID, &e.Action, &e.Outcome, &e.Path, &e.Reason, &e.BypassSource,
			&e.Kind, &e.Branch, &e.Commit, &e.DiffHash, &e.Dir,
			&warningsJSON, &filesJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan gate event: %w", err)
		}
		_ = json.Unmarshal([]byte(warningsJSON), &e.Warnings)
		_ = json.Unmarshal([]byte(filesJSON), &e.DetectedTargetFiles)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Plan rounds ---

func (s *SQLiteStore) RecordPlanRound(ctx context.Context, r *models.PlanRound) error {
	if r.ID == "" {
		r.ID = newULID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO plan_rounds (id, session_id, plan_file, plan_hash, iteration, result, reason, forced_by, skipped, finding_count, highest_severity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.PlanFile, r.PlanHash, r.Iteration, r.Result, r.Reason,
		r.ForcedBy, boolToInt(r.Skipped), r.FindingCount, r.HighestSeverity, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record plan round: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListPlanRounds(ctx context.Context, sessionID string, limit int) ([]*models.PlanRound, error) {
	query := `SELECT id, session_id, plan_file, plan_hash, iteration, result, reason, forced_by, skipped, finding_count, highest_severity, created_at
		FROM plan_rounds`
	var args []any
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY created_at DESC, id DESC" + limitClause(limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list plan rounds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rounds []*models.PlanRound
	for rows.Next() {
		r := &models.PlanRound{}
		if err := rows.Scan(&r.ID, &r.SessionID, &r.PlanFile, &r.PlanHash, &r.Iteration, &r.Result, &r.Reason,
			&r.ForcedBy, &r.Skipped, &r.FindingCount, &r.HighestSeverity, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan plan round: %w", err)
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

// --- Review runs ---

func (s *SQLiteStore) RecordReviewRun(ctx context.Context, r *models.ReviewRun) error {
	if r.ID == "" {
		r.ID = newULID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO review_runs (id, kind, reviewer, branch, commit_hash, diff_hash, approved, rate_limited, cycle_count, highest_severity, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Kind, r.Reviewer, r.Branch, r.Commit, r.DiffHash,
		boolToInt(r.Approved), boolToInt(r.RateLimited), r.CycleCount, r.HighestSeverity, r.Error, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record review run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListReviewRuns(ctx context.Context, filter EventFilter) ([]*models.ReviewRun, error) {
	query := `SELECT id, kind, reviewer, branch, commit_hash, diff_hash, approved, rate_limited, cycle_count, highest_severity, error, created_at
		FROM review_runs WHERE 1=1`
	var args []any
	if filter.Branch != "" {
		query += " AND branch = ?"
		args = append(args, filter.Branch)
	}
	if filter.Action != "" {
		query += " AND kind = ?"
		args = append(args, filter.Action)
	}
	query += " ORDER BY created_at DESC, id DESC" + limitClause(filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list review runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*models.ReviewRun
	for rows.Next() {
		r := &models.ReviewRun{}
		if err := rows.Scan(&r.ID, &r.Kind, &r.Reviewer, &r.Branch, &r.Commit, &r.DiffHash,
			&r.Approved, &r.RateLimited, &r.CycleCount, &r.HighestSeverity, &r.Error, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
