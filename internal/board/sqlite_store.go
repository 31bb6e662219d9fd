package board

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// SQLiteStore implements Store on top of a local SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if absent) the task board database at path,
// enabling WAL mode and a busy timeout so concurrent Orchestrator/CLI
// processes don't trip SQLITE_BUSY under normal contention.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open board database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping board database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate board database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		priority INTEGER NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		parent_id TEXT,
		payload TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_status_priority ON tasks (status, priority DESC, created_at ASC);
	CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks (parent_id);`)
	return err
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Add(ctx context.Context, t *Task) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	return s.upsert(ctx, t)
}

func (s *SQLiteStore) upsert(ctx context.Context, t *Task) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", t.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO tasks (id, priority, status, created_at, parent_id, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET priority=excluded.priority, status=excluded.status,
			parent_id=excluded.parent_id, payload=excluded.payload`,
		t.ID, t.Priority, string(t.Status), t.CreatedAt, nullableString(t.ParentID), string(payload))
	return err
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM tasks WHERE id = ?`, id)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{ID: id}
		}
		return nil, err
	}
	var t Task
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]*Task, error) {
	query := `SELECT payload FROM tasks WHERE 1=1`
	var args []interface{}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.ParentID != nil {
		query += ` AND parent_id = ?`
		args = append(args, *f.ParentID)
	}
	query += ` ORDER BY priority DESC, created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var t Task
		if err := json.Unmarshal([]byte(payload), &t); err != nil {
			return nil, err
		}
		if f.Tag != "" && !hasTag(t.Tags, f.Tag) {
			continue
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ListPending implements the board's ordering contract: priority descending
// then createdAt ascending, including in_progress tasks left over from a
// crashed session, excluding decomposed parents.
func (s *SQLiteStore) ListPending(ctx context.Context) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM tasks
		WHERE status IN (?, ?) ORDER BY priority DESC, created_at ASC`,
		string(StatusPending), string(StatusInProgress))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var t Task
		if err := json.Unmarshal([]byte(payload), &t); err != nil {
			return nil, err
		}
		if t.IsDecomposed {
			continue
		}
		tasks = append(tasks, &t)
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority > tasks[j].Priority
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, rows.Err()
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status Status, errMsg string) error {
	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	t.Status = status
	now := time.Now()
	switch status {
	case StatusInProgress:
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
	case StatusComplete, StatusFailed:
		t.CompletedAt = &now
	}
	if errMsg != "" {
		t.LastAttempt.Error = errMsg
	}
	return s.upsert(ctx, t)
}

// Decompose flips the parent's IsDecomposed flag and inserts all subtasks in
// a single transaction, so readers never see one without the other.
func (s *SQLiteStore) Decompose(ctx context.Context, parentID string, subtasks []*Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT payload FROM tasks WHERE id = ?`, parentID)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return &ErrNotFound{ID: parentID}
		}
		return err
	}
	var parent Task
	if err := json.Unmarshal([]byte(payload), &parent); err != nil {
		return err
	}

	subtaskIDs := make([]string, 0, len(subtasks))
	for _, sub := range subtasks {
		sub.ParentID = parentID
		if sub.CreatedAt.IsZero() {
			sub.CreatedAt = time.Now()
		}
		subPayload, err := json.Marshal(sub)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO tasks (id, priority, status, created_at, parent_id, payload)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET priority=excluded.priority, status=excluded.status,
				parent_id=excluded.parent_id, payload=excluded.payload`,
			sub.ID, sub.Priority, string(sub.Status), sub.CreatedAt, parentID, string(subPayload)); err != nil {
			return err
		}
		subtaskIDs = append(subtaskIDs, sub.ID)
	}

	parent.IsDecomposed = true
	parent.SubtaskIDs = append(parent.SubtaskIDs, subtaskIDs...)
	parent.Status = StatusDecomposed
	parentPayload, err := json.Marshal(parent)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?, payload=? WHERE id=?`,
		string(parent.Status), string(parentPayload), parentID); err != nil {
		return err
	}

	return tx.Commit()
}

// CompleteParentIfAllSubtasksDone auto-completes parentID when every one of
// its subtasks has reached StatusComplete.
func (s *SQLiteStore) CompleteParentIfAllSubtasksDone(ctx context.Context, parentID string) error {
	parentIDPtr := &parentID
	children, err := s.List(ctx, Filter{ParentID: parentIDPtr})
	if err != nil {
		return err
	}
	if len(children) == 0 {
		return nil
	}
	for _, c := range children {
		if c.Status != StatusComplete {
			return nil
		}
	}
	return s.UpdateStatus(ctx, parentID, StatusComplete, "")
}
