package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/sjmog/vibesuite/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// mapConstraint converts SQLite unique-constraint failures to ErrDuplicate
// so callers can surface them as conflicts.
func mapConstraint(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrDuplicate
	}
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// --- projects ---

type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

func (r Repo) InsertProject(ctx context.Context, p Project) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO projects(id,name,description,created_at) VALUES (?,?,?,?)`,
		p.ID, p.Name, nullable(p.Description), p.CreatedAt)
	return mapConstraint(err)
}

func (r Repo) GetProject(ctx context.Context, id string) (Project, error) {
	var p Project
	var desc sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,description,created_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &desc, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if desc.Valid {
		p.Description = desc.String
	}
	return p, err
}

func (r Repo) EnsureProject(ctx context.Context, tx *sql.Tx, id string, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO projects(id,name,created_at) VALUES (?,?,?)`, id, id, now)
	return err
}

func (r Repo) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(description,''),created_at FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// --- persona templates ---

func (r Repo) UpsertTemplate(ctx context.Context, t domain.PersonaTemplate) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO persona_templates(id,name,role_type,default_instructions,description,kudos_quota_daily,is_system,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?)
ON CONFLICT(name) DO UPDATE SET role_type=excluded.role_type, default_instructions=excluded.default_instructions,
description=excluded.description, kudos_quota_daily=excluded.kudos_quota_daily, updated_at=excluded.updated_at`,
		t.ID, t.Name, string(t.RoleType), nullable(t.DefaultInstructions), nullable(t.Description),
		t.KudosQuotaDaily, t.IsSystem, t.CreatedAt, t.UpdatedAt)
	return err
}

func scanTemplate(scan func(dest ...any) error) (domain.PersonaTemplate, error) {
	var t domain.PersonaTemplate
	var instructions, desc sql.NullString
	err := scan(&t.ID, &t.Name, (*string)(&t.RoleType), &instructions, &desc, &t.KudosQuotaDaily, &t.IsSystem, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if instructions.Valid {
		t.DefaultInstructions = instructions.String
	}
	if desc.Valid {
		t.Description = desc.String
	}
	return t, nil
}

const templateColumns = `id,name,role_type,default_instructions,description,kudos_quota_daily,is_system,created_at,updated_at`

func (r Repo) GetTemplate(ctx context.Context, id string) (domain.PersonaTemplate, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM persona_templates WHERE id=?`, id)
	return scanTemplate(row.Scan)
}

func (r Repo) GetTemplateByName(ctx context.Context, name string) (domain.PersonaTemplate, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM persona_templates WHERE name=?`, name)
	return scanTemplate(row.Scan)
}

func (r Repo) ListTemplates(ctx context.Context, systemOnly bool) ([]domain.PersonaTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM persona_templates`
	if systemOnly {
		query += ` WHERE is_system=1`
	}
	query += ` ORDER BY is_system DESC, name ASC`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PersonaTemplate
	for rows.Next() {
		t, err := scanTemplate(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// --- personas ---

const personaColumns = `id,project_id,template_id,custom_name,custom_instructions,is_active,
professionalism_score,quality_score,kudos_quota_used,wtf_quota_used,last_quota_reset,
imported_from_project_id,imported_at,created_at,updated_at`

func scanPersona(scan func(dest ...any) error) (domain.Persona, error) {
	var p domain.Persona
	var customName, customInstr, importedFrom, importedAt sql.NullString
	err := scan(&p.ID, &p.ProjectID, &p.TemplateID, &customName, &customInstr, &p.IsActive,
		&p.ProfessionalismScore, &p.QualityScore, &p.KudosQuotaUsed, &p.WtfQuotaUsed, &p.LastQuotaReset,
		&importedFrom, &importedAt, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if customName.Valid {
		p.CustomName = &customName.String
	}
	if customInstr.Valid {
		p.CustomInstructions = &customInstr.String
	}
	if importedFrom.Valid {
		p.ImportedFromProjectID = &importedFrom.String
	}
	if importedAt.Valid {
		p.ImportedAt = &importedAt.String
	}
	return p, nil
}

func (r Repo) InsertPersonaTx(ctx context.Context, tx *sql.Tx, p domain.Persona) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO personas(id,project_id,template_id,custom_name,custom_instructions,is_active,
professionalism_score,quality_score,kudos_quota_used,wtf_quota_used,last_quota_reset,
imported_from_project_id,imported_at,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.ProjectID, p.TemplateID, nullableStringPtr(p.CustomName), nullableStringPtr(p.CustomInstructions), p.IsActive,
		p.ProfessionalismScore, p.QualityScore, p.KudosQuotaUsed, p.WtfQuotaUsed, p.LastQuotaReset,
		nullableStringPtr(p.ImportedFromProjectID), nullableStringPtr(p.ImportedAt), p.CreatedAt, p.UpdatedAt)
	return mapConstraint(err)
}

func (r Repo) GetPersona(ctx context.Context, id string) (domain.Persona, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+personaColumns+` FROM personas WHERE id=?`, id)
	return scanPersona(row.Scan)
}

// GetPersonaTx reads a persona inside a transaction; the ledger relies on
// this so quota checks and score updates see a consistent row.
func (r Repo) GetPersonaTx(ctx context.Context, tx *sql.Tx, id string) (domain.Persona, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+personaColumns+` FROM personas WHERE id=?`, id)
	return scanPersona(row.Scan)
}

func (r Repo) ListPersonas(ctx context.Context, projectID string, includeInactive bool) ([]domain.Persona, error) {
	query := `SELECT ` + personaColumns + ` FROM personas WHERE project_id=?`
	if !includeInactive {
		query += ` AND is_active=1`
	}
	query += ` ORDER BY created_at ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Persona
	for rows.Next() {
		p, err := scanPersona(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// AddPersonaScoresTx applies score deltas as SQL-side increments. The
// cumulative score is never read and rewritten from Go, so concurrent
// ledger writes cannot lose updates.
func (r Repo) AddPersonaScoresTx(ctx context.Context, tx *sql.Tx, personaID string, profDelta, qualityDelta float64, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE personas
SET professionalism_score = professionalism_score + ?,
    quality_score = quality_score + ?,
    updated_at = ?
WHERE id=?`, profDelta, qualityDelta, now, personaID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetPersonaQuotaTx zeroes both quota counters and advances the reset
// marker.
func (r Repo) ResetPersonaQuotaTx(ctx context.Context, tx *sql.Tx, personaID, now string) error {
	_, err := tx.ExecContext(ctx, `UPDATE personas SET kudos_quota_used=0, wtf_quota_used=0, last_quota_reset=? WHERE id=?`, now, personaID)
	return err
}

// BumpPersonaQuotaTx increments one of the quota counters.
func (r Repo) BumpPersonaQuotaTx(ctx context.Context, tx *sql.Tx, personaID, column string) error {
	var query string
	switch column {
	case "kudos":
		query = `UPDATE personas SET kudos_quota_used = kudos_quota_used + 1 WHERE id=?`
	case "wtf":
		query = `UPDATE personas SET wtf_quota_used = wtf_quota_used + 1 WHERE id=?`
	default:
		return errors.New("unknown quota counter")
	}
	_, err := tx.ExecContext(ctx, query, personaID)
	return err
}

type PersonaUpdate struct {
	CustomName         *string
	CustomInstructions *string
	IsActive           *bool
}

func (r Repo) UpdatePersona(ctx context.Context, id string, u PersonaUpdate) error {
	var fields []string
	var args []any
	if u.CustomName != nil {
		fields = append(fields, "custom_name=?")
		args = append(args, nullable(*u.CustomName))
	}
	if u.CustomInstructions != nil {
		fields = append(fields, "custom_instructions=?")
		args = append(args, nullable(*u.CustomInstructions))
	}
	if u.IsActive != nil {
		fields = append(fields, "is_active=?")
		args = append(args, *u.IsActive)
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, time.Now().UTC().Format(time.RFC3339), id)
	res, err := r.DB.ExecContext(ctx, `UPDATE personas SET `+strings.Join(fields, ",")+` WHERE id=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePersona removes the persona row. Historical activities deliberately
// survive as an audit trail; they reference the persona by id only.
func (r Repo) DeletePersona(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM personas WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
