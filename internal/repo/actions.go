package repo

import (
	"context"
	"database/sql"

	"github.com/sjmog/vibesuite/internal/domain"
)

const actionColumns = `id,persona_id,task_id,activity_id,kind,category,tool_name,parameters_json,result_status,execution_time_ms,description,created_at`

func scanAction(scan func(dest ...any) error) (domain.Action, error) {
	var a domain.Action
	var taskID, activityID, toolName, params sql.NullString
	var execMs sql.NullInt64
	err := scan(&a.ID, &a.PersonaID, &taskID, &activityID, (*string)(&a.Kind), (*string)(&a.Category),
		&toolName, &params, (*string)(&a.ResultStatus), &execMs, &a.Description, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if taskID.Valid {
		a.TaskID = &taskID.String
	}
	if activityID.Valid {
		a.ActivityID = &activityID.String
	}
	if toolName.Valid {
		a.ToolName = &toolName.String
	}
	if params.Valid {
		a.ParametersJSON = &params.String
	}
	if execMs.Valid {
		a.ExecutionTimeMs = &execMs.Int64
	}
	return a, nil
}

func (r Repo) InsertAction(ctx context.Context, a domain.Action) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO persona_actions(id,persona_id,task_id,activity_id,kind,category,
tool_name,parameters_json,result_status,execution_time_ms,description,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.PersonaID, nullableStringPtr(a.TaskID), nullableStringPtr(a.ActivityID), string(a.Kind), string(a.Category),
		nullableStringPtr(a.ToolName), nullableStringPtr(a.ParametersJSON), string(a.ResultStatus),
		nullableInt64Ptr(a.ExecutionTimeMs), a.Description, a.CreatedAt)
	return mapConstraint(err)
}

func (r Repo) GetAction(ctx context.Context, id string) (domain.Action, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM persona_actions WHERE id=?`, id)
	return scanAction(row.Scan)
}

// SetActionResult records the observed outcome of a previously created
// action. The two-phase shape (create, then complete) lets callers log the
// action before its final status is known.
func (r Repo) SetActionResult(ctx context.Context, id string, result domain.ResultStatus, executionTimeMs *int64) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE persona_actions SET result_status=?, execution_time_ms=? WHERE id=?`,
		string(result), nullableInt64Ptr(executionTimeMs), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAction removes an action; its artifacts go with it via the cascade.
func (r Repo) DeleteAction(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM persona_actions WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActionsWithArtifacts returns the newest actions first, each eagerly
// loaded with its artifacts in chronological order.
func (r Repo) ListActionsWithArtifacts(ctx context.Context, personaID string, limit int) ([]domain.ActionWithArtifacts, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+actionColumns+` FROM persona_actions
WHERE persona_id=? ORDER BY created_at DESC, id DESC LIMIT ?`, personaID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var actions []domain.Action
	for rows.Next() {
		a, err := scanAction(rows.Scan)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	res := make([]domain.ActionWithArtifacts, 0, len(actions))
	for _, a := range actions {
		artifacts, err := r.ListArtifacts(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		res = append(res, domain.ActionWithArtifacts{Action: a, Artifacts: artifacts})
	}
	return res, nil
}

// --- artifacts ---

const artifactColumns = `id,action_id,artifact_type,file_path,content_before,content_after,git_hash,output_json,size_bytes,created_at`

func scanArtifact(scan func(dest ...any) error) (domain.Artifact, error) {
	var a domain.Artifact
	var filePath, before, after, gitHash, output sql.NullString
	var size sql.NullInt64
	err := scan(&a.ID, &a.ActionID, (*string)(&a.Type), &filePath, &before, &after, &gitHash, &output, &size, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if filePath.Valid {
		a.FilePath = &filePath.String
	}
	if before.Valid {
		a.ContentBefore = &before.String
	}
	if after.Valid {
		a.ContentAfter = &after.String
	}
	if gitHash.Valid {
		a.GitHash = &gitHash.String
	}
	if output.Valid {
		a.OutputJSON = &output.String
	}
	if size.Valid {
		a.SizeBytes = &size.Int64
	}
	return a, nil
}

func (r Repo) InsertArtifact(ctx context.Context, a domain.Artifact) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO action_artifacts(id,action_id,artifact_type,file_path,
content_before,content_after,git_hash,output_json,size_bytes,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.ActionID, string(a.Type), nullableStringPtr(a.FilePath),
		nullableStringPtr(a.ContentBefore), nullableStringPtr(a.ContentAfter), nullableStringPtr(a.GitHash),
		nullableStringPtr(a.OutputJSON), nullableInt64Ptr(a.SizeBytes), a.CreatedAt)
	return mapConstraint(err)
}

func (r Repo) ListArtifacts(ctx context.Context, actionID string) ([]domain.Artifact, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+artifactColumns+` FROM action_artifacts
WHERE action_id=? ORDER BY created_at ASC, id ASC`, actionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
