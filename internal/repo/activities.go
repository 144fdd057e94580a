package repo

import (
	"context"
	"database/sql"

	"github.com/sjmog/vibesuite/internal/domain"
)

const activityColumns = `id,persona_id,task_id,kind,description,professionalism_change,quality_change,task_size,metadata_json,created_at`

func scanActivity(scan func(dest ...any) error) (domain.Activity, error) {
	var a domain.Activity
	var taskID, metadata sql.NullString
	err := scan(&a.ID, &a.PersonaID, &taskID, (*string)(&a.Kind), &a.Description,
		&a.ProfessionalismDelta, &a.QualityDelta, (*string)(&a.TaskSize), &metadata, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if taskID.Valid {
		a.TaskID = &taskID.String
	}
	if metadata.Valid {
		a.MetadataJSON = &metadata.String
	}
	return a, nil
}

// InsertActivityTx writes one immutable activity record. There is no update
// or single-row delete path on purpose; corrections go through a new
// score_adjustment activity.
func (r Repo) InsertActivityTx(ctx context.Context, tx *sql.Tx, a domain.Activity) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO persona_activities(id,persona_id,task_id,kind,description,
professionalism_change,quality_change,task_size,metadata_json,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.PersonaID, nullableStringPtr(a.TaskID), string(a.Kind), a.Description,
		a.ProfessionalismDelta, a.QualityDelta, string(a.TaskSize), nullableStringPtr(a.MetadataJSON), a.CreatedAt)
	return mapConstraint(err)
}

func (r Repo) GetActivity(ctx context.Context, id string) (domain.Activity, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM persona_activities WHERE id=?`, id)
	return scanActivity(row.Scan)
}

func (r Repo) ListActivities(ctx context.Context, personaID string, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+activityColumns+` FROM persona_activities
WHERE persona_id=? ORDER BY created_at DESC, id DESC LIMIT ?`, personaID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// SumActivityDeltas totals the deltas stored on a persona's activity records.
// Used to verify the cumulative score never drifts from its ledger.
func (r Repo) SumActivityDeltas(ctx context.Context, personaID string) (prof, quality float64, err error) {
	err = r.DB.QueryRowContext(ctx, `SELECT COALESCE(SUM(professionalism_change),0), COALESCE(SUM(quality_change),0)
FROM persona_activities WHERE persona_id=?`, personaID).Scan(&prof, &quality)
	return prof, quality, err
}
