package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aldermoor/conductor/internal/task"
)

// SQLite is a durable task store. Hosts that must survive restarts point the
// coordinator at one of these instead of the in-memory store.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) a SQLite-backed store at the given
// path. Enables WAL mode and a busy timeout.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		description TEXT NOT NULL DEFAULT '',
		team TEXT NOT NULL DEFAULT '',
		feature_group TEXT NOT NULL DEFAULT '',
		priority INTEGER NOT NULL DEFAULT 0,
		status INTEGER NOT NULL DEFAULT 0,
		estimate_ms INTEGER NOT NULL DEFAULT 0,
		metadata TEXT,
		failure_reason TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS task_dependencies (
		task_id TEXT NOT NULL,
		depends_on_id TEXT NOT NULL,
		PRIMARY KEY (task_id, depends_on_id),
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE,
		FOREIGN KEY (depends_on_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_task_dependencies_task_id ON task_dependencies(task_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Add saves a task and its dependency edges. Idempotent via upsert.
func (s *SQLite) Add(t *task.Node) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var metadata []byte
	if t.Metadata != nil {
		metadata, err = json.Marshal(t.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for task %q: %w", t.ID, err)
		}
	}

	_, err = tx.Exec(`
		INSERT INTO tasks (id, description, team, feature_group, priority, status, estimate_ms, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			team = excluded.team,
			feature_group = excluded.feature_group,
			priority = excluded.priority,
			status = excluded.status,
			estimate_ms = excluded.estimate_ms,
			metadata = excluded.metadata,
			updated_at = CURRENT_TIMESTAMP
	`, t.ID, t.Description, string(t.Team), t.Group, t.Priority, int(t.Status), t.Estimate.Milliseconds(), metadata)
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM task_dependencies WHERE task_id = ?`, t.ID); err != nil {
		return fmt.Errorf("failed to delete old dependencies: %w", err)
	}
	for _, depID := range t.DependsOn {
		if _, err := tx.Exec(`
			INSERT INTO task_dependencies (task_id, depends_on_id) VALUES (?, ?)
		`, t.ID, depID); err != nil {
			return fmt.Errorf("failed to insert dependency %s -> %s: %w", t.ID, depID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const taskColumns = `id, description, team, feature_group, priority, status, estimate_ms, metadata, failure_reason`

func (s *SQLite) scanTask(row interface{ Scan(...any) error }) (*task.Node, error) {
	t := &task.Node{}
	var team string
	var status int
	var estimateMs int64
	var metadata sql.NullString
	var failureReason string

	err := row.Scan(&t.ID, &t.Description, &team, &t.Group, &t.Priority, &status, &estimateMs, &metadata, &failureReason)
	if err != nil {
		return nil, err
	}

	t.Team = task.Team(team)
	t.Status = task.Status(status)
	t.Estimate = time.Duration(estimateMs) * time.Millisecond
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &t.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for task %q: %w", t.ID, err)
		}
	}
	if failureReason != "" {
		if t.Metadata == nil {
			t.Metadata = make(map[string]any)
		}
		t.Metadata["failure_reason"] = failureReason
	}
	return t, nil
}

func (s *SQLite) loadDeps(t *task.Node) error {
	rows, err := s.db.Query(`SELECT depends_on_id FROM task_dependencies WHERE task_id = ? ORDER BY depends_on_id`, t.ID)
	if err != nil {
		return fmt.Errorf("failed to query dependencies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var depID string
		if err := rows.Scan(&depID); err != nil {
			return fmt.Errorf("failed to scan dependency: %w", err)
		}
		t.DependsOn = append(t.DependsOn, depID)
	}
	return rows.Err()
}

// Get returns the task with the given id.
func (s *SQLite) Get(id string) (*task.Node, bool) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := s.scanTask(row)
	if err != nil {
		return nil, false
	}
	if err := s.loadDeps(t); err != nil {
		return nil, false
	}
	return t, true
}

// All returns every task record, oldest first.
func (s *SQLite) All() []*task.Node {
	return s.query(`SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at, id`)
}

// ByStatus returns every task currently in the given status.
func (s *SQLite) ByStatus(status task.Status) []*task.Node {
	return s.query(`SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY created_at, id`, int(status))
}

func (s *SQLite) query(q string, args ...any) []*task.Node {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil
	}
	var out []*task.Node
	for rows.Next() {
		t, err := s.scanTask(rows)
		if err != nil {
			rows.Close()
			return out
		}
		out = append(out, t)
	}
	rows.Close()

	for _, t := range out {
		if err := s.loadDeps(t); err != nil {
			break
		}
	}
	return out
}

// SetStatus moves a task to the given status unconditionally.
func (s *SQLite) SetStatus(id string, status task.Status) error {
	return s.updateStatus(id, status, "")
}

// Start marks a pending or ready task as running.
func (s *SQLite) Start(id string) error {
	res, err := s.db.Exec(`
		UPDATE tasks SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN (?, ?)
	`, int(task.StatusRunning), id, int(task.StatusPending), int(task.StatusReady))
	if err != nil {
		return fmt.Errorf("failed to start task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		if _, ok := s.Get(id); !ok {
			return &task.NotFoundError{ID: id}
		}
		return fmt.Errorf("task %q is not eligible to start", id)
	}
	return nil
}

// Complete marks a task as completed.
func (s *SQLite) Complete(id string) error {
	return s.updateStatus(id, task.StatusCompleted, "")
}

// Fail marks a task as failed with a reason.
func (s *SQLite) Fail(id string, reason string) error {
	return s.updateStatus(id, task.StatusFailed, reason)
}

func (s *SQLite) updateStatus(id string, status task.Status, failureReason string) error {
	res, err := s.db.Exec(`
		UPDATE tasks SET status = ?, failure_reason = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, int(status), failureReason, id)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return &task.NotFoundError{ID: id}
	}
	return nil
}

var _ task.Store = (*SQLite)(nil)
