package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/taipm/agentrun/agent"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tasks (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	progress       REAL NOT NULL DEFAULT 0,
	start_time     DATETIME NOT NULL,
	end_time       DATETIME,
	parent_id      TEXT NOT NULL DEFAULT '',
	subtasks       TEXT NOT NULL DEFAULT '[]',
	dependencies   TEXT NOT NULL DEFAULT '[]',
	assigned_tools TEXT NOT NULL DEFAULT '[]',
	artifacts      TEXT NOT NULL DEFAULT '[]',
	metadata       TEXT NOT NULL DEFAULT '{}',
	error          TEXT NOT NULL DEFAULT '',
	result         TEXT NOT NULL DEFAULT 'null',
	retry_attempt  INTEGER NOT NULL DEFAULT 0,
	cost_estimate  REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_tasks_parent_id ON tasks(parent_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
`

// SQLiteStore is a mattn/go-sqlite3-backed Storage implementation: one row
// per task, JSON columns for the collection-typed fields, schema created
// idempotently on Open. A write mutex serializes statements since SQLite
// only supports a single writer at a time (busy-timeout pragma covers the
// rest).
type SQLiteStore struct {
	db *sql.DB
	mu sqliteWriteMutex
}

type sqliteWriteMutex struct{ ch chan struct{} }

func newSQLiteWriteMutex() sqliteWriteMutex {
	m := sqliteWriteMutex{ch: make(chan struct{}, 1)}
	m.ch <- struct{}{}
	return m
}

func (m sqliteWriteMutex) Lock()   { <-m.ch }
func (m sqliteWriteMutex) Unlock() { m.ch <- struct{}{} }

// OpenSQLiteStore opens (creating if necessary) a SQLite-backed store at
// path and ensures its schema exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create storage directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db, mu: newSQLiteWriteMutex()}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, task *agent.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := taskToRow(task)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, name, description, status, progress, start_time, end_time,
			parent_id, subtasks, dependencies, assigned_tools, artifacts, metadata, error, result,
			retry_attempt, cost_estimate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, description=excluded.description, status=excluded.status,
			progress=excluded.progress, start_time=excluded.start_time, end_time=excluded.end_time,
			parent_id=excluded.parent_id, subtasks=excluded.subtasks, dependencies=excluded.dependencies,
			assigned_tools=excluded.assigned_tools, artifacts=excluded.artifacts, metadata=excluded.metadata,
			error=excluded.error, result=excluded.result, retry_attempt=excluded.retry_attempt,
			cost_estimate=excluded.cost_estimate`,
		row.id, row.name, row.description, row.status, row.progress, row.startTime, row.endTime,
		row.parentID, row.subtasks, row.dependencies, row.assignedTools, row.artifacts, row.metadata,
		row.errorText, row.result, row.retryAttempt, row.costEstimate)
	if err != nil {
		return fmt.Errorf("save task %s: %w", task.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (*agent.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, description, status, progress, start_time,
		end_time, parent_id, subtasks, dependencies, assigned_tools, artifacts, metadata, error,
		result, retry_attempt, cost_estimate FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", id, err)
	}
	return task, nil
}

func (s *SQLiteStore) LoadAll(ctx context.Context) ([]*agent.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, status, progress, start_time,
		end_time, parent_id, subtasks, dependencies, assigned_tools, artifacts, metadata, error,
		result, retry_attempt, cost_estimate FROM tasks`)
	if err != nil {
		return nil, fmt.Errorf("load all tasks: %w", err)
	}
	defer rows.Close()

	var out []*agent.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Update(ctx context.Context, id string, mutate func(*agent.Task)) (*agent.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.loadLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, nil
	}
	mutate(task)

	row, err := taskToRow(task)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE tasks SET name=?, description=?, status=?, progress=?,
		start_time=?, end_time=?, parent_id=?, subtasks=?, dependencies=?, assigned_tools=?,
		artifacts=?, metadata=?, error=?, result=?, retry_attempt=?, cost_estimate=? WHERE id=?`,
		row.name, row.description, row.status, row.progress, row.startTime, row.endTime,
		row.parentID, row.subtasks, row.dependencies, row.assignedTools, row.artifacts,
		row.metadata, row.errorText, row.result, row.retryAttempt, row.costEstimate, row.id)
	if err != nil {
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}
	return task, nil
}

func (s *SQLiteStore) loadLocked(ctx context.Context, id string) (*agent.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, description, status, progress, start_time,
		end_time, parent_id, subtasks, dependencies, assigned_tools, artifacts, metadata, error,
		result, retry_attempt, cost_estimate FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", id, err)
	}
	return task, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

type taskRow struct {
	id, name, description, status, parentID               string
	subtasks, dependencies, assignedTools, artifacts        string
	metadata, errorText, result                             string
	progress, costEstimate                                  float64
	startTime                                                time.Time
	endTime                                                  sql.NullTime
	retryAttempt                                             int
}

func taskToRow(task *agent.Task) (taskRow, error) {
	subtasksJSON, err := json.Marshal(task.Subtasks)
	if err != nil {
		return taskRow{}, err
	}
	depsJSON, err := json.Marshal(task.Dependencies)
	if err != nil {
		return taskRow{}, err
	}
	toolsJSON, err := json.Marshal(task.AssignedTools)
	if err != nil {
		return taskRow{}, err
	}
	artifactsJSON, err := json.Marshal(task.Artifacts)
	if err != nil {
		return taskRow{}, err
	}
	metadataJSON, err := json.Marshal(task.Metadata)
	if err != nil {
		return taskRow{}, err
	}
	resultJSON, err := json.Marshal(task.Result)
	if err != nil {
		return taskRow{}, err
	}

	row := taskRow{
		id:            task.ID,
		name:          task.Name,
		description:   task.Description,
		status:        string(task.Status),
		progress:      task.Progress,
		startTime:     task.StartTime,
		parentID:      task.ParentID,
		subtasks:      string(subtasksJSON),
		dependencies:  string(depsJSON),
		assignedTools: string(toolsJSON),
		artifacts:     string(artifactsJSON),
		metadata:      string(metadataJSON),
		errorText:     task.Error,
		result:        string(resultJSON),
		retryAttempt:  task.RetryAttempt,
		costEstimate:  task.CostEstimate,
	}
	if task.EndTime != nil {
		row.endTime = sql.NullTime{Time: *task.EndTime, Valid: true}
	}
	return row, nil
}

// rowScanner abstracts over *sql.Row and *sql.Rows, which share Scan's
// signature but not a common interface in database/sql.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(scanner rowScanner) (*agent.Task, error) {
	var row taskRow
	if err := scanner.Scan(&row.id, &row.name, &row.description, &row.status, &row.progress,
		&row.startTime, &row.endTime, &row.parentID, &row.subtasks, &row.dependencies,
		&row.assignedTools, &row.artifacts, &row.metadata, &row.errorText, &row.result,
		&row.retryAttempt, &row.costEstimate); err != nil {
		return nil, err
	}

	task := &agent.Task{
		ID:            row.id,
		Name:          row.name,
		Description:   row.description,
		Status:        agent.Status(row.status),
		Progress:      row.progress,
		StartTime:     row.startTime,
		ParentID:      row.parentID,
		Error:         row.errorText,
		RetryAttempt:  row.retryAttempt,
		CostEstimate:  row.costEstimate,
	}
	if row.endTime.Valid {
		endTime := row.endTime.Time
		task.EndTime = &endTime
	}
	if err := json.Unmarshal([]byte(row.subtasks), &task.Subtasks); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(row.dependencies), &task.Dependencies); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(row.assignedTools), &task.AssignedTools); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(row.artifacts), &task.Artifacts); err != nil {
		return nil, err
	}
	if row.metadata != "" && row.metadata != "null" {
		if err := json.Unmarshal([]byte(row.metadata), &task.Metadata); err != nil {
			return nil, err
		}
	}
	if row.result != "" && row.result != "null" {
		if err := json.Unmarshal([]byte(row.result), &task.Result); err != nil {
			return nil, err
		}
	}
	return task, nil
}
