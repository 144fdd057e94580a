// Package actionlog records the fine-grained things personas do: tool calls,
// file edits, git operations, and their artifacts. Actions are telemetry, not
// reputation; recording one never touches scores.
package actionlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sjmog/vibesuite/internal/domain"
	"github.com/sjmog/vibesuite/internal/events"
	"github.com/sjmog/vibesuite/internal/repo"
)

type Log struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Now    func() time.Time
}

func New(db *sql.DB) Log {
	return Log{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Now:    time.Now,
	}
}

func (l Log) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// RecordActionOptions are parameters for logging one action.
type RecordActionOptions struct {
	PersonaID   string
	TaskID      *string
	ActivityID  *string
	Kind        domain.ActionKind
	Category    domain.ActionCategory
	ToolName    *string
	Parameters  map[string]any
	Description string
	ActorID     string
}

// RecordAction logs an action with a provisional success status. Callers
// that learn the real outcome later complete it with CompleteAction.
func (l Log) RecordAction(ctx context.Context, opts RecordActionOptions) (domain.Action, error) {
	if !opts.Kind.Valid() {
		return domain.Action{}, fmt.Errorf("invalid action kind %q", opts.Kind)
	}
	if !opts.Category.Valid() {
		return domain.Action{}, fmt.Errorf("invalid action category %q", opts.Category)
	}
	if _, err := l.Repo.GetPersona(ctx, opts.PersonaID); err != nil {
		return domain.Action{}, fmt.Errorf("persona: %w", err)
	}
	if opts.ActivityID != nil {
		if _, err := l.Repo.GetActivity(ctx, *opts.ActivityID); err != nil {
			return domain.Action{}, fmt.Errorf("activity: %w", err)
		}
	}
	a := domain.Action{
		ID:           uuid.NewString(),
		PersonaID:    opts.PersonaID,
		TaskID:       opts.TaskID,
		ActivityID:   opts.ActivityID,
		Kind:         opts.Kind,
		Category:     opts.Category,
		ToolName:     opts.ToolName,
		ResultStatus: domain.ResultSuccess,
		Description:  opts.Description,
		CreatedAt:    l.now().UTC().Format(time.RFC3339),
	}
	if len(opts.Parameters) > 0 {
		raw, err := json.Marshal(opts.Parameters)
		if err != nil {
			return domain.Action{}, fmt.Errorf("marshal parameters: %w", err)
		}
		s := string(raw)
		a.ParametersJSON = &s
	}
	if err := l.Repo.InsertAction(ctx, a); err != nil {
		return domain.Action{}, err
	}
	return a, nil
}

// CompleteAction records the real outcome of a previously logged action.
func (l Log) CompleteAction(ctx context.Context, id string, result domain.ResultStatus, executionTimeMs *int64) (domain.Action, error) {
	if !result.Valid() {
		return domain.Action{}, fmt.Errorf("invalid result status %q", result)
	}
	if err := l.Repo.SetActionResult(ctx, id, result, executionTimeMs); err != nil {
		return domain.Action{}, err
	}
	return l.Repo.GetAction(ctx, id)
}

// AttachArtifactOptions are parameters for attaching evidence to an action.
type AttachArtifactOptions struct {
	ActionID      string
	Type          domain.ArtifactType
	FilePath      *string
	ContentBefore *string
	ContentAfter  *string
	GitHash       *string
	Output        map[string]any
	SizeBytes     *int64
}

// AttachArtifact stores a piece of evidence under an action.
func (l Log) AttachArtifact(ctx context.Context, opts AttachArtifactOptions) (domain.Artifact, error) {
	if !opts.Type.Valid() {
		return domain.Artifact{}, fmt.Errorf("invalid artifact type %q", opts.Type)
	}
	if _, err := l.Repo.GetAction(ctx, opts.ActionID); err != nil {
		return domain.Artifact{}, err
	}
	a := domain.Artifact{
		ID:            uuid.NewString(),
		ActionID:      opts.ActionID,
		Type:          opts.Type,
		FilePath:      opts.FilePath,
		ContentBefore: opts.ContentBefore,
		ContentAfter:  opts.ContentAfter,
		GitHash:       opts.GitHash,
		SizeBytes:     opts.SizeBytes,
		CreatedAt:     l.now().UTC().Format(time.RFC3339),
	}
	if len(opts.Output) > 0 {
		raw, err := json.Marshal(opts.Output)
		if err != nil {
			return domain.Artifact{}, fmt.Errorf("marshal output: %w", err)
		}
		s := string(raw)
		a.OutputJSON = &s
	}
	if err := l.Repo.InsertArtifact(ctx, a); err != nil {
		return domain.Artifact{}, err
	}
	return a, nil
}

// ListActions returns a persona's actions newest first, with artifacts.
func (l Log) ListActions(ctx context.Context, personaID string, limit int) ([]domain.ActionWithArtifacts, error) {
	return l.Repo.ListActionsWithArtifacts(ctx, personaID, limit)
}

// DeleteAction removes an action and, through the schema cascade, its
// artifacts.
func (l Log) DeleteAction(ctx context.Context, id string) error {
	return l.Repo.DeleteAction(ctx, id)
}
