package board

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	_ "github.com/lib/pq" // Postgres driver, alternate board backend
)

// PostgresStore implements Store against a Postgres database, for
// deployments that share the board across hosts via a conventional server
// instead of a single SQLite file.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens connURL (a standard postgres:// DSN) and applies
// the board schema.
func NewPostgresStore(connURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres board store: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres board store: %w", err)
	}
	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate postgres board store: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		priority INTEGER NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		parent_id TEXT,
		payload JSONB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_status_priority ON tasks (status, priority DESC, created_at ASC);
	CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks (parent_id);`)
	return err
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) Add(ctx context.Context, t *Task) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	return s.upsert(ctx, t)
}

func (s *PostgresStore) upsert(ctx context.Context, t *Task) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", t.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO tasks (id, priority, status, created_at, parent_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET priority=excluded.priority, status=excluded.status,
			parent_id=excluded.parent_id, payload=excluded.payload`,
		t.ID, t.Priority, string(t.Status), t.CreatedAt, pgNullable(t.ParentID), payload)
	return err
}

func pgNullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM tasks WHERE id = $1`, id)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{ID: id}
		}
		return nil, err
	}
	var t Task
	if err := json.Unmarshal(payload, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]*Task, error) {
	query := `SELECT payload FROM tasks WHERE 1=1`
	var args []interface{}
	n := 1
	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, string(f.Status))
		n++
	}
	if f.ParentID != nil {
		query += fmt.Sprintf(" AND parent_id = $%d", n)
		args = append(args, *f.ParentID)
		n++
	}
	query += ` ORDER BY priority DESC, created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var t Task
		if err := json.Unmarshal(payload, &t); err != nil {
			return nil, err
		}
		if f.Tag != "" && !hasTag(t.Tags, f.Tag) {
			continue
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

func (s *PostgresStore) ListPending(ctx context.Context) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM tasks
		WHERE status IN ($1, $2) ORDER BY priority DESC, created_at ASC`,
		string(StatusPending), string(StatusInProgress))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var t Task
		if err := json.Unmarshal(payload, &t); err != nil {
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

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status Status, errMsg string) error {
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

func (s *PostgresStore) Decompose(ctx context.Context, parentID string, subtasks []*Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT payload FROM tasks WHERE id = $1`, parentID)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return &ErrNotFound{ID: parentID}
		}
		return err
	}
	var parent Task
	if err := json.Unmarshal(payload, &parent); err != nil {
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
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET priority=excluded.priority, status=excluded.status,
				parent_id=excluded.parent_id, payload=excluded.payload`,
			sub.ID, sub.Priority, string(sub.Status), sub.CreatedAt, parentID, subPayload); err != nil {
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
	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET status=$1, payload=$2 WHERE id=$3`,
		string(parent.Status), parentPayload, parentID); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *PostgresStore) CompleteParentIfAllSubtasksDone(ctx context.Context, parentID string) error {
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
