// Package ledger owns the persona reputation ledger: the append-only
// activity trail and the scores derived from it. Every write happens in one
// transaction so scores, quotas and the activity row can never drift apart.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/sjmog/vibesuite/internal/config"
	"github.com/sjmog/vibesuite/internal/domain"
	"github.com/sjmog/vibesuite/internal/events"
	"github.com/sjmog/vibesuite/internal/repo"
	"github.com/sjmog/vibesuite/internal/scoring"
)

// ErrQuotaExceeded is returned when a kudos or wtf activity would exceed the
// persona's daily allowance. Nothing is written in that case.
var ErrQuotaExceeded = errors.New("daily quota exceeded")

const quotaWindow = 24 * time.Hour

type Ledger struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Rules  *scoring.Table
	Logger *log.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Ledger {
	return Ledger{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Rules:  scoring.NewTable(cfg.Scoring.Rules),
		Now:    time.Now,
	}
}

func (l Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l Ledger) logf(format string, args ...any) {
	if l.Logger != nil {
		l.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// RecordActivityOptions are parameters for one ledger write.
type RecordActivityOptions struct {
	PersonaID   string
	Kind        domain.ActivityKind
	TaskID      *string
	TaskSize    domain.TaskSize
	Description string
	Metadata    map[string]any
	ActorID     string
}

// RecordActivity appends one activity and applies its score deltas
// atomically. Kudos and wtf activities consume the persona's daily quota; the
// rolling 24h window resets inside the same transaction when it has elapsed.
// A kind with no scoring rule still records, with zero deltas.
func (l Ledger) RecordActivity(ctx context.Context, opts RecordActivityOptions) (domain.Activity, error) {
	if !opts.Kind.Valid() {
		return domain.Activity{}, fmt.Errorf("invalid activity kind %q", opts.Kind)
	}
	size := opts.TaskSize
	if size == "" {
		size = domain.SizeStandard
	}
	if !size.Valid() {
		return domain.Activity{}, fmt.Errorf("invalid task size %q", opts.TaskSize)
	}

	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Activity{}, err
	}
	defer tx.Rollback()

	persona, err := l.Repo.GetPersonaTx(ctx, tx, opts.PersonaID)
	if err != nil {
		return domain.Activity{}, err
	}

	now := l.now().UTC()
	nowStr := now.Format(time.RFC3339)

	if quotaDue(persona.LastQuotaReset, now) {
		if err := l.Repo.ResetPersonaQuotaTx(ctx, tx, persona.ID, nowStr); err != nil {
			return domain.Activity{}, fmt.Errorf("reset quota: %w", err)
		}
		persona.KudosQuotaUsed = 0
		persona.WtfQuotaUsed = 0
	}

	if col, used, counted := quotaColumn(opts.Kind, persona); counted {
		quota, err := l.personaQuota(ctx, persona)
		if err != nil {
			return domain.Activity{}, err
		}
		// -1 means unlimited.
		if quota >= 0 && used >= quota {
			return domain.Activity{}, ErrQuotaExceeded
		}
		if err := l.Repo.BumpPersonaQuotaTx(ctx, tx, persona.ID, col); err != nil {
			return domain.Activity{}, fmt.Errorf("bump quota: %w", err)
		}
	}

	prof, qual, _ := l.Rules.Lookup(opts.Kind, size)

	activity := domain.Activity{
		ID:                   uuid.NewString(),
		PersonaID:            persona.ID,
		TaskID:               opts.TaskID,
		Kind:                 opts.Kind,
		Description:          opts.Description,
		ProfessionalismDelta: prof,
		QualityDelta:         qual,
		TaskSize:             size,
		CreatedAt:            nowStr,
	}
	if len(opts.Metadata) > 0 {
		raw, err := json.Marshal(opts.Metadata)
		if err != nil {
			return domain.Activity{}, fmt.Errorf("marshal metadata: %w", err)
		}
		s := string(raw)
		activity.MetadataJSON = &s
	}

	if err := l.Repo.InsertActivityTx(ctx, tx, activity); err != nil {
		return domain.Activity{}, fmt.Errorf("insert activity: %w", err)
	}
	if err := l.Repo.AddPersonaScoresTx(ctx, tx, persona.ID, prof, qual, nowStr); err != nil {
		return domain.Activity{}, fmt.Errorf("apply scores: %w", err)
	}
	if err := l.Events.Append(ctx, tx, "activity.recorded", persona.ProjectID, "activity", activity.ID, opts.ActorID, events.EventPayload{
		"persona_id": persona.ID,
		"kind":       string(opts.Kind),
	}); err != nil {
		return domain.Activity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Activity{}, err
	}
	return activity, nil
}

// quotaDue reports whether a full quota window has elapsed since the last
// reset. An unparsable reset timestamp counts as due.
func quotaDue(lastReset string, now time.Time) bool {
	t, err := time.Parse(time.RFC3339, lastReset)
	if err != nil {
		return true
	}
	return !now.Before(t.Add(quotaWindow))
}

// quotaColumn maps quota-consuming activity kinds to their usage counter.
func quotaColumn(kind domain.ActivityKind, p domain.Persona) (column string, used int64, counted bool) {
	switch kind {
	case domain.ActivityKudosReceived:
		return "kudos", p.KudosQuotaUsed, true
	case domain.ActivityWtfReceived:
		return "wtf", p.WtfQuotaUsed, true
	}
	return "", 0, false
}

// personaQuota resolves the effective daily quota for a persona from its
// template row.
func (l Ledger) personaQuota(ctx context.Context, p domain.Persona) (int64, error) {
	tpl, err := l.Repo.GetTemplate(ctx, p.TemplateID)
	if err != nil {
		return 0, fmt.Errorf("load template: %w", err)
	}
	return tpl.KudosQuotaDaily, nil
}

// AdjustScore records a manual score correction. Corrections never rewrite
// history; they append a score_adjustment activity with explicit deltas.
func (l Ledger) AdjustScore(ctx context.Context, personaID string, profDelta, qualDelta float64, reason, actorID string) (domain.Activity, error) {
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Activity{}, err
	}
	defer tx.Rollback()

	persona, err := l.Repo.GetPersonaTx(ctx, tx, personaID)
	if err != nil {
		return domain.Activity{}, err
	}
	nowStr := l.now().UTC().Format(time.RFC3339)
	activity := domain.Activity{
		ID:                   uuid.NewString(),
		PersonaID:            persona.ID,
		Kind:                 domain.ActivityScoreAdjustment,
		Description:          reason,
		ProfessionalismDelta: profDelta,
		QualityDelta:         qualDelta,
		TaskSize:             domain.SizeStandard,
		CreatedAt:            nowStr,
	}
	if err := l.Repo.InsertActivityTx(ctx, tx, activity); err != nil {
		return domain.Activity{}, fmt.Errorf("insert adjustment: %w", err)
	}
	if err := l.Repo.AddPersonaScoresTx(ctx, tx, persona.ID, profDelta, qualDelta, nowStr); err != nil {
		return domain.Activity{}, fmt.Errorf("apply adjustment: %w", err)
	}
	if err := l.Events.Append(ctx, tx, "activity.adjusted", persona.ProjectID, "activity", activity.ID, actorID, events.EventPayload{
		"persona_id": persona.ID,
	}); err != nil {
		return domain.Activity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Activity{}, err
	}
	return activity, nil
}

// CreatePersonaOptions are parameters for instantiating a persona from a
// template in a project.
type CreatePersonaOptions struct {
	ProjectID          string
	TemplateID         string
	CustomName         *string
	CustomInstructions *string
	ActorID            string
}

// CreatePersona instantiates a template in a project. At most one persona per
// (project, template) pair may exist; a second attempt returns ErrDuplicate.
func (l Ledger) CreatePersona(ctx context.Context, opts CreatePersonaOptions) (domain.Persona, error) {
	if _, err := l.Repo.GetTemplate(ctx, opts.TemplateID); err != nil {
		return domain.Persona{}, fmt.Errorf("template: %w", err)
	}
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Persona{}, err
	}
	defer tx.Rollback()

	nowStr := l.now().UTC().Format(time.RFC3339)
	if err := l.Repo.EnsureProject(ctx, tx, opts.ProjectID, nowStr); err != nil {
		return domain.Persona{}, fmt.Errorf("ensure project: %w", err)
	}
	p := domain.Persona{
		ID:                 uuid.NewString(),
		ProjectID:          opts.ProjectID,
		TemplateID:         opts.TemplateID,
		CustomName:         opts.CustomName,
		CustomInstructions: opts.CustomInstructions,
		IsActive:           true,
		LastQuotaReset:     nowStr,
		CreatedAt:          nowStr,
		UpdatedAt:          nowStr,
	}
	if err := l.Repo.InsertPersonaTx(ctx, tx, p); err != nil {
		return domain.Persona{}, err
	}
	if err := l.Events.Append(ctx, tx, "persona.created", p.ProjectID, "persona", p.ID, opts.ActorID, events.EventPayload{
		"template_id": p.TemplateID,
	}); err != nil {
		return domain.Persona{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Persona{}, err
	}
	return p, nil
}

// SyncTemplates upserts the configured persona templates as system
// templates. Existing templates keep their IDs; fields are refreshed from
// config.
func (l Ledger) SyncTemplates(ctx context.Context) ([]domain.PersonaTemplate, error) {
	nowStr := l.now().UTC().Format(time.RFC3339)
	var out []domain.PersonaTemplate
	for _, tc := range l.Config.Templates {
		tpl := domain.PersonaTemplate{
			ID:                  uuid.NewString(),
			Name:                tc.Name,
			RoleType:            domain.RoleType(tc.RoleType),
			DefaultInstructions: tc.Instructions,
			Description:         tc.Description,
			KudosQuotaDaily:     l.Config.TemplateQuota(tc),
			IsSystem:            true,
			CreatedAt:           nowStr,
			UpdatedAt:           nowStr,
		}
		if err := l.Repo.UpsertTemplate(ctx, tpl); err != nil {
			return nil, fmt.Errorf("upsert template %q: %w", tc.Name, err)
		}
		stored, err := l.Repo.GetTemplateByName(ctx, tc.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	return out, nil
}

// ImportDefaultPersonas creates one persona per configured template in the
// project. Each template is attempted independently: duplicates are skipped,
// any other per-template failure is logged and the loop moves on, so one bad
// template never blocks the rest. Each created persona gets a best-effort
// "imported" activity; a failure there is logged and never fails the import.
func (l Ledger) ImportDefaultPersonas(ctx context.Context, projectID, actorID string) ([]domain.Persona, error) {
	templates, err := l.SyncTemplates(ctx)
	if err != nil {
		return nil, err
	}
	var created []domain.Persona
	for _, tpl := range templates {
		p, err := l.CreatePersona(ctx, CreatePersonaOptions{
			ProjectID:  projectID,
			TemplateID: tpl.ID,
			ActorID:    actorID,
		})
		if err != nil {
			if !errors.Is(err, repo.ErrDuplicate) {
				l.logf("import: create persona from template %q: %v", tpl.Name, err)
			}
			continue
		}
		if _, err := l.RecordActivity(ctx, RecordActivityOptions{
			PersonaID:   p.ID,
			Kind:        domain.ActivityImported,
			TaskSize:    domain.SizeSmall,
			Description: fmt.Sprintf("Default persona %s imported to project", tpl.Name),
			Metadata: map[string]any{
				"import_type": "bulk_default_import",
				"template_id": tpl.ID,
			},
			ActorID: actorID,
		}); err != nil {
			l.logf("import: record imported activity for %s: %v", p.ID, err)
		}
		created = append(created, p)
	}
	return created, nil
}

// UpdatePersona applies a partial update and emits an event.
func (l Ledger) UpdatePersona(ctx context.Context, id string, u repo.PersonaUpdate, actorID string) (domain.Persona, error) {
	if err := l.Repo.UpdatePersona(ctx, id, u); err != nil {
		return domain.Persona{}, err
	}
	p, err := l.Repo.GetPersona(ctx, id)
	if err != nil {
		return domain.Persona{}, err
	}
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Persona{}, err
	}
	defer tx.Rollback()
	if err := l.Events.Append(ctx, tx, "persona.updated", p.ProjectID, "persona", p.ID, actorID, nil); err != nil {
		return domain.Persona{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Persona{}, err
	}
	return p, nil
}

// DeletePersona removes a persona row. Its activities stay behind as audit
// history.
func (l Ledger) DeletePersona(ctx context.Context, id, actorID string) error {
	p, err := l.Repo.GetPersona(ctx, id)
	if err != nil {
		return err
	}
	if err := l.Repo.DeletePersona(ctx, id); err != nil {
		return err
	}
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := l.Events.Append(ctx, tx, "persona.deleted", p.ProjectID, "persona", p.ID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateTask inserts a task, creating its project row on first use the same
// way persona creation does.
func (l Ledger) CreateTask(ctx context.Context, t domain.Task) error {
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := l.Repo.EnsureProject(ctx, tx, t.ProjectID, l.now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("ensure project: %w", err)
	}
	if err := l.Repo.InsertTaskTx(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit()
}
