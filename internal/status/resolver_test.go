package status

import (
	"testing"

	"github.com/sjmog/vibesuite/internal/domain"
	"github.com/sjmog/vibesuite/internal/repo"
)

func strptr(s string) *string { return &s }

func attempt(id, createdAt string, executor, mergeCommit *string) domain.TaskAttempt {
	return domain.TaskAttempt{ID: id, TaskID: "task-1", Executor: executor, MergeCommit: mergeCommit, CreatedAt: createdAt}
}

func process(id, attemptID string, typ domain.ProcessType, st domain.ProcessStatus, createdAt string) domain.ExecutionProcess {
	return domain.ExecutionProcess{ID: id, AttemptID: attemptID, Type: typ, Status: st, CreatedAt: createdAt}
}

func TestResolveEmptyHistory(t *testing.T) {
	st := Resolve(repo.TaskSnapshot{Processes: map[string][]domain.ExecutionProcess{}})
	if st.InProgress || st.Merged || st.LastAttemptFailed || st.LatestAttemptExecutor != nil {
		t.Fatalf("empty history must resolve to all-false, got %+v", st)
	}
}

func TestResolveRunningProcessMeansInProgress(t *testing.T) {
	snap := repo.TaskSnapshot{
		Attempts: []domain.TaskAttempt{attempt("a1", "2024-01-01T10:00:00Z", strptr("claude"), nil)},
		Processes: map[string][]domain.ExecutionProcess{
			"a1": {process("p1", "a1", domain.ProcessCodingAgent, domain.ProcessRunning, "2024-01-01T10:01:00Z")},
		},
	}
	st := Resolve(snap)
	if !st.InProgress {
		t.Fatal("running codingagent must mean in progress")
	}
	if st.LastAttemptFailed {
		t.Fatal("running process is not a failure")
	}
}

func TestResolveDevServerNeverCounts(t *testing.T) {
	snap := repo.TaskSnapshot{
		Attempts: []domain.TaskAttempt{attempt("a1", "2024-01-01T10:00:00Z", nil, nil)},
		Processes: map[string][]domain.ExecutionProcess{
			"a1": {
				process("p1", "a1", domain.ProcessCodingAgent, domain.ProcessCompleted, "2024-01-01T10:01:00Z"),
				process("p2", "a1", domain.ProcessDevServer, domain.ProcessRunning, "2024-01-01T10:02:00Z"),
			},
		},
	}
	st := Resolve(snap)
	if st.InProgress {
		t.Fatal("a running devserver must not mark the task in progress")
	}
	if st.LastAttemptFailed {
		t.Fatal("completed codingagent is not a failure")
	}
}

func TestResolveMergedAttempt(t *testing.T) {
	snap := repo.TaskSnapshot{
		Attempts: []domain.TaskAttempt{
			attempt("a1", "2024-01-01T10:00:00Z", nil, strptr("abc123")),
			attempt("a2", "2024-01-01T11:00:00Z", strptr("gemini"), nil),
		},
		Processes: map[string][]domain.ExecutionProcess{},
	}
	st := Resolve(snap)
	if !st.Merged {
		t.Fatal("any merged attempt must set merged")
	}
	if st.LatestAttemptExecutor == nil || *st.LatestAttemptExecutor != "gemini" {
		t.Fatalf("latest executor %v, want gemini", st.LatestAttemptExecutor)
	}
}

func TestResolveLastAttemptFailedUsesNewestProcessTaskWide(t *testing.T) {
	// The failed process on the older attempt is newer than everything on
	// the newer attempt, so the task reads as failed.
	snap := repo.TaskSnapshot{
		Attempts: []domain.TaskAttempt{
			attempt("a1", "2024-01-01T10:00:00Z", nil, nil),
			attempt("a2", "2024-01-01T11:00:00Z", nil, nil),
		},
		Processes: map[string][]domain.ExecutionProcess{
			"a1": {process("p1", "a1", domain.ProcessCleanupScript, domain.ProcessFailed, "2024-01-01T12:00:00Z")},
			"a2": {process("p2", "a2", domain.ProcessCodingAgent, domain.ProcessCompleted, "2024-01-01T11:30:00Z")},
		},
	}
	st := Resolve(snap)
	if !st.LastAttemptFailed {
		t.Fatal("newest qualifying process failed, task must read failed")
	}
}

func TestResolveKilledCountsAsFailed(t *testing.T) {
	snap := repo.TaskSnapshot{
		Attempts: []domain.TaskAttempt{attempt("a1", "2024-01-01T10:00:00Z", nil, nil)},
		Processes: map[string][]domain.ExecutionProcess{
			"a1": {process("p1", "a1", domain.ProcessSetupScript, domain.ProcessKilled, "2024-01-01T10:01:00Z")},
		},
	}
	if st := Resolve(snap); !st.LastAttemptFailed {
		t.Fatal("killed process must read as failed")
	}
}

func TestResolveTerminalBeatsRunningOnEqualTimestamps(t *testing.T) {
	ts := "2024-01-01T10:00:00Z"
	snap := repo.TaskSnapshot{
		Attempts: []domain.TaskAttempt{attempt("a1", ts, nil, nil)},
		Processes: map[string][]domain.ExecutionProcess{
			"a1": {
				process("p1", "a1", domain.ProcessCodingAgent, domain.ProcessRunning, ts),
				process("p2", "a1", domain.ProcessCodingAgent, domain.ProcessFailed, ts),
			},
		},
	}
	st := Resolve(snap)
	if !st.LastAttemptFailed {
		t.Fatal("terminal process must outrank running on equal timestamps")
	}
	// Order in the slice must not matter.
	snap.Processes["a1"][0], snap.Processes["a1"][1] = snap.Processes["a1"][1], snap.Processes["a1"][0]
	if st := Resolve(snap); !st.LastAttemptFailed {
		t.Fatal("tie-break must be order independent")
	}
}

func TestResolveNewerSuccessClearsFailure(t *testing.T) {
	snap := repo.TaskSnapshot{
		Attempts: []domain.TaskAttempt{attempt("a1", "2024-01-01T10:00:00Z", nil, nil)},
		Processes: map[string][]domain.ExecutionProcess{
			"a1": {
				process("p1", "a1", domain.ProcessCodingAgent, domain.ProcessFailed, "2024-01-01T10:01:00Z"),
				process("p2", "a1", domain.ProcessCodingAgent, domain.ProcessCompleted, "2024-01-01T10:05:00Z"),
			},
		},
	}
	if st := Resolve(snap); st.LastAttemptFailed {
		t.Fatal("a newer completed process must clear the failed state")
	}
}

func TestResolveLatestExecutorFromNewestAttempt(t *testing.T) {
	snap := repo.TaskSnapshot{
		Attempts: []domain.TaskAttempt{
			attempt("a1", "2024-01-01T10:00:00Z", strptr("claude"), nil),
			attempt("a2", "2024-01-01T12:00:00Z", nil, nil),
		},
		Processes: map[string][]domain.ExecutionProcess{},
	}
	st := Resolve(snap)
	if st.LatestAttemptExecutor != nil {
		t.Fatalf("newest attempt has no executor, got %v", *st.LatestAttemptExecutor)
	}
}
