package repo

import (
	"context"
	"database/sql"

	"github.com/sjmog/vibesuite/internal/domain"
)

const taskColumns = `id,project_id,title,description,status,assigned_persona_id,created_at,updated_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var desc, assigned sql.NullString
	err := scan(&t.ID, &t.ProjectID, &t.Title, &desc, &t.Status, &assigned, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Description = desc.String
	if assigned.Valid {
		t.AssignedPersonaID = &assigned.String
	}
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, t domain.Task) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO tasks(id,project_id,title,description,status,assigned_persona_id,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Title, nullable(t.Description), t.Status,
		nullableStringPtr(t.AssignedPersonaID), t.CreatedAt, t.UpdatedAt)
	return mapConstraint(err)
}

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,project_id,title,description,status,assigned_persona_id,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Title, nullable(t.Description), t.Status,
		nullableStringPtr(t.AssignedPersonaID), t.CreatedAt, t.UpdatedAt)
	return mapConstraint(err)
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks
WHERE project_id=? ORDER BY created_at DESC, id DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) UpdateTaskStatus(ctx context.Context, id, status, updatedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE tasks SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) AssignTask(ctx context.Context, id string, personaID *string, updatedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE tasks SET assigned_persona_id=?, updated_at=? WHERE id=?`,
		nullableStringPtr(personaID), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- attempts ---

func (r Repo) InsertAttempt(ctx context.Context, a domain.TaskAttempt) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO task_attempts(id,task_id,executor,merge_commit,created_at)
VALUES (?,?,?,?,?)`,
		a.ID, a.TaskID, nullableStringPtr(a.Executor), nullableStringPtr(a.MergeCommit), a.CreatedAt)
	return mapConstraint(err)
}

func (r Repo) GetAttempt(ctx context.Context, id string) (domain.TaskAttempt, error) {
	var a domain.TaskAttempt
	var executor, mergeCommit sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,task_id,executor,merge_commit,created_at
FROM task_attempts WHERE id=?`, id).Scan(&a.ID, &a.TaskID, &executor, &mergeCommit, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if executor.Valid {
		a.Executor = &executor.String
	}
	if mergeCommit.Valid {
		a.MergeCommit = &mergeCommit.String
	}
	return a, nil
}

// SetMergeCommit marks an attempt merged. The derived task status picks the
// change up on the next read.
func (r Repo) SetMergeCommit(ctx context.Context, attemptID, commit string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE task_attempts SET merge_commit=? WHERE id=?`, commit, attemptID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListAttempts(ctx context.Context, taskID string) ([]domain.TaskAttempt, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,executor,merge_commit,created_at
FROM task_attempts WHERE task_id=? ORDER BY created_at ASC, id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskAttempt
	for rows.Next() {
		var a domain.TaskAttempt
		var executor, mergeCommit sql.NullString
		if err := rows.Scan(&a.ID, &a.TaskID, &executor, &mergeCommit, &a.CreatedAt); err != nil {
			return nil, err
		}
		if executor.Valid {
			a.Executor = &executor.String
		}
		if mergeCommit.Valid {
			a.MergeCommit = &mergeCommit.String
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// --- execution processes ---

func (r Repo) InsertProcess(ctx context.Context, p domain.ExecutionProcess) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO execution_processes(id,task_attempt_id,process_type,status,created_at)
VALUES (?,?,?,?,?)`,
		p.ID, p.AttemptID, string(p.Type), string(p.Status), p.CreatedAt)
	return mapConstraint(err)
}

func (r Repo) UpdateProcessStatus(ctx context.Context, id string, status domain.ProcessStatus) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE execution_processes SET status=? WHERE id=?`, string(status), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListProcesses(ctx context.Context, attemptID string) ([]domain.ExecutionProcess, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_attempt_id,process_type,status,created_at
FROM execution_processes WHERE task_attempt_id=? ORDER BY created_at ASC, id ASC`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ExecutionProcess
	for rows.Next() {
		var p domain.ExecutionProcess
		if err := rows.Scan(&p.ID, &p.AttemptID, (*string)(&p.Type), (*string)(&p.Status), &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// TaskSnapshot is everything the status resolver needs for one task: its
// attempts and each attempt's processes.
type TaskSnapshot struct {
	Attempts  []domain.TaskAttempt
	Processes map[string][]domain.ExecutionProcess
}

// LoadTaskSnapshot fetches the attempt and process history for a task in two
// queries, keyed for the resolver.
func (r Repo) LoadTaskSnapshot(ctx context.Context, taskID string) (TaskSnapshot, error) {
	snap := TaskSnapshot{Processes: map[string][]domain.ExecutionProcess{}}
	attempts, err := r.ListAttempts(ctx, taskID)
	if err != nil {
		return snap, err
	}
	snap.Attempts = attempts
	rows, err := r.DB.QueryContext(ctx, `SELECT p.id,p.task_attempt_id,p.process_type,p.status,p.created_at
FROM execution_processes p
JOIN task_attempts a ON a.id = p.task_attempt_id
WHERE a.task_id=? ORDER BY p.created_at ASC, p.id ASC`, taskID)
	if err != nil {
		return snap, err
	}
	defer rows.Close()
	for rows.Next() {
		var p domain.ExecutionProcess
		if err := rows.Scan(&p.ID, &p.AttemptID, (*string)(&p.Type), (*string)(&p.Status), &p.CreatedAt); err != nil {
			return snap, err
		}
		snap.Processes[p.AttemptID] = append(snap.Processes[p.AttemptID], p)
	}
	return snap, rows.Err()
}
