package scoring

import (
	"testing"

	"github.com/sjmog/vibesuite/internal/config"
	"github.com/sjmog/vibesuite/internal/domain"
)

func TestLookupKnownRule(t *testing.T) {
	cfg := config.Default("proj-1")
	table := NewTable(cfg.Scoring.Rules)

	prof, qual, ok := table.Lookup(domain.ActivityTaskCompleted, domain.SizeStandard)
	if !ok {
		t.Fatal("expected rule for task_completed/standard")
	}
	if prof != 5.0 || qual != 3.0 {
		t.Fatalf("got deltas %v/%v, want 5/3", prof, qual)
	}

	prof, qual, ok = table.Lookup(domain.ActivityTaskCompleted, domain.SizeSmall)
	if !ok || prof != 2.0 || qual != 1.0 {
		t.Fatalf("small completion: ok=%v deltas %v/%v", ok, prof, qual)
	}
}

func TestLookupMissingRuleScoresZero(t *testing.T) {
	table := NewTable(nil)
	prof, qual, ok := table.Lookup(domain.ActivityKudosReceived, domain.SizeStandard)
	if ok {
		t.Fatal("expected no rule in empty table")
	}
	if prof != 0 || qual != 0 {
		t.Fatalf("missing rule must score zero, got %v/%v", prof, qual)
	}
}

func TestLookupDistinguishesTaskSize(t *testing.T) {
	table := NewTable([]config.ScoringRuleConfig{
		{Kind: "task_failed", TaskSize: "standard", Professionalism: -3, Quality: -2},
		{Kind: "task_failed", TaskSize: "small", Professionalism: -1, Quality: -1},
	})
	prof, _, ok := table.Lookup(domain.ActivityTaskFailed, domain.SizeSmall)
	if !ok || prof != -1 {
		t.Fatalf("small failure: ok=%v prof=%v", ok, prof)
	}
	prof, _, ok = table.Lookup(domain.ActivityTaskFailed, domain.SizeStandard)
	if !ok || prof != -3 {
		t.Fatalf("standard failure: ok=%v prof=%v", ok, prof)
	}
}
