// Package status derives task status from attempt and process history.
// Derived fields are never stored; every read recomputes them from the rows,
// so there is no stored flag to fall out of sync.
package status

import (
	"context"
	"database/sql"

	"github.com/sjmog/vibesuite/internal/domain"
	"github.com/sjmog/vibesuite/internal/repo"
)

// Resolve computes the derived status overlay for one task from its attempt
// snapshot. Only setupscript, cleanupscript and codingagent processes count;
// devserver processes are ignored.
func Resolve(snap repo.TaskSnapshot) domain.DerivedStatus {
	var st domain.DerivedStatus

	// Newest qualifying process across the whole task decides
	// last_attempt_failed. On equal timestamps a terminal process outranks a
	// running one: the finished state is the fresher fact.
	var latest *domain.ExecutionProcess

	for i := range snap.Attempts {
		a := snap.Attempts[i]
		if a.MergeCommit != nil {
			st.Merged = true
		}
		for j := range snap.Processes[a.ID] {
			p := snap.Processes[a.ID][j]
			if !p.Type.CountsTowardStatus() {
				continue
			}
			if p.Status == domain.ProcessRunning {
				st.InProgress = true
			}
			if latest == nil || newer(p, *latest) {
				latest = &snap.Processes[a.ID][j]
			}
		}
	}

	if latest != nil {
		switch latest.Status {
		case domain.ProcessFailed, domain.ProcessKilled:
			st.LastAttemptFailed = true
		}
	}

	if n := len(snap.Attempts); n > 0 {
		newest := snap.Attempts[0]
		for _, a := range snap.Attempts[1:] {
			if a.CreatedAt > newest.CreatedAt || (a.CreatedAt == newest.CreatedAt && a.ID > newest.ID) {
				newest = a
			}
		}
		st.LatestAttemptExecutor = newest.Executor
	}

	return st
}

func newer(a, b domain.ExecutionProcess) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}
	if a.Status.Terminal() != b.Status.Terminal() {
		return a.Status.Terminal()
	}
	return a.ID > b.ID
}

// Resolver loads task snapshots and applies the overlay.
type Resolver struct {
	Repo repo.Repo
}

func New(db *sql.DB) Resolver {
	return Resolver{Repo: repo.Repo{DB: db}}
}

// ResolveTask returns one task with its derived status.
func (r Resolver) ResolveTask(ctx context.Context, taskID string) (domain.TaskWithStatus, error) {
	task, err := r.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.TaskWithStatus{}, err
	}
	snap, err := r.Repo.LoadTaskSnapshot(ctx, taskID)
	if err != nil {
		return domain.TaskWithStatus{}, err
	}
	return domain.TaskWithStatus{Task: task, DerivedStatus: Resolve(snap)}, nil
}

// ListTasks returns a project's tasks newest first, each with its derived
// status overlay.
func (r Resolver) ListTasks(ctx context.Context, projectID string) ([]domain.TaskWithStatus, error) {
	tasks, err := r.Repo.ListTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	res := make([]domain.TaskWithStatus, 0, len(tasks))
	for _, t := range tasks {
		snap, err := r.Repo.LoadTaskSnapshot(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		res = append(res, domain.TaskWithStatus{Task: t, DerivedStatus: Resolve(snap)})
	}
	return res, nil
}
