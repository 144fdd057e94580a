package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sjmog/vibesuite/internal/config"
	"github.com/sjmog/vibesuite/internal/db"
	"github.com/sjmog/vibesuite/internal/domain"
	"github.com/sjmog/vibesuite/internal/ledger"
	"github.com/sjmog/vibesuite/internal/migrate"
	"github.com/sjmog/vibesuite/internal/repo"
)

type testEnv struct {
	Ledger  *ledger.Ledger
	Persona domain.Persona
	Ctx     context.Context
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("proj-1")
	led := ledger.New(conn, cfg)
	led.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	templates, err := led.SyncTemplates(ctx)
	if err != nil {
		t.Fatalf("sync templates: %v", err)
	}
	p, err := led.CreatePersona(ctx, ledger.CreatePersonaOptions{
		ProjectID:  "proj-1",
		TemplateID: templates[0].ID,
		ActorID:    "tester",
	})
	if err != nil {
		t.Fatalf("create persona: %v", err)
	}
	return &testEnv{Ledger: &led, Persona: p, Ctx: ctx}
}

func TestRecordActivityAppliesDeltas(t *testing.T) {
	env := newTestEnv(t)
	act, err := env.Ledger.RecordActivity(env.Ctx, ledger.RecordActivityOptions{
		PersonaID:   env.Persona.ID,
		Kind:        domain.ActivityTaskCompleted,
		Description: "shipped the thing",
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if act.ProfessionalismDelta != 5.0 || act.QualityDelta != 3.0 {
		t.Fatalf("deltas %v/%v, want 5/3", act.ProfessionalismDelta, act.QualityDelta)
	}
	p, err := env.Ledger.Repo.GetPersona(env.Ctx, env.Persona.ID)
	if err != nil {
		t.Fatalf("get persona: %v", err)
	}
	if p.ProfessionalismScore != 5.0 || p.QualityScore != 3.0 {
		t.Fatalf("scores %v/%v, want 5/3", p.ProfessionalismScore, p.QualityScore)
	}
}

func TestRecordActivitySmallTaskUsesSmallRule(t *testing.T) {
	env := newTestEnv(t)
	act, err := env.Ledger.RecordActivity(env.Ctx, ledger.RecordActivityOptions{
		PersonaID: env.Persona.ID,
		Kind:      domain.ActivityTaskCompleted,
		TaskSize:  domain.SizeSmall,
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if act.ProfessionalismDelta != 2.0 || act.QualityDelta != 1.0 {
		t.Fatalf("deltas %v/%v, want 2/1", act.ProfessionalismDelta, act.QualityDelta)
	}
}

func TestRecordActivityUnknownKindScoresZero(t *testing.T) {
	env := newTestEnv(t)
	act, err := env.Ledger.RecordActivity(env.Ctx, ledger.RecordActivityOptions{
		PersonaID: env.Persona.ID,
		Kind:      domain.ActivityTaskAssigned,
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if act.ProfessionalismDelta != 0 || act.QualityDelta != 0 {
		t.Fatalf("deltas %v/%v, want 0/0", act.ProfessionalismDelta, act.QualityDelta)
	}
	p, _ := env.Ledger.Repo.GetPersona(env.Ctx, env.Persona.ID)
	if p.ProfessionalismScore != 0 || p.QualityScore != 0 {
		t.Fatalf("unscored kind must not move scores, got %v/%v", p.ProfessionalismScore, p.QualityScore)
	}
	acts, err := env.Ledger.Repo.ListActivities(env.Ctx, env.Persona.ID, 0)
	if err != nil || len(acts) == 0 {
		t.Fatalf("unscored activity must still be recorded: %v", err)
	}
}

func TestScoresMatchActivitySum(t *testing.T) {
	env := newTestEnv(t)
	kinds := []domain.ActivityKind{
		domain.ActivityTaskCompleted,
		domain.ActivityTaskFailed,
		domain.ActivityQualityIssue,
		domain.ActivityPeerReview,
	}
	for _, k := range kinds {
		if _, err := env.Ledger.RecordActivity(env.Ctx, ledger.RecordActivityOptions{
			PersonaID: env.Persona.ID, Kind: k, ActorID: "tester",
		}); err != nil {
			t.Fatalf("record %s: %v", k, err)
		}
	}
	prof, qual, err := env.Ledger.Repo.SumActivityDeltas(env.Ctx, env.Persona.ID)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	p, _ := env.Ledger.Repo.GetPersona(env.Ctx, env.Persona.ID)
	if p.ProfessionalismScore != prof || p.QualityScore != qual {
		t.Fatalf("scores %v/%v drifted from activity sum %v/%v",
			p.ProfessionalismScore, p.QualityScore, prof, qual)
	}
}

func TestKudosQuotaEnforced(t *testing.T) {
	env := newTestEnv(t)
	// Default config allows 5 kudos per day.
	for i := 0; i < 5; i++ {
		if _, err := env.Ledger.RecordActivity(env.Ctx, ledger.RecordActivityOptions{
			PersonaID: env.Persona.ID, Kind: domain.ActivityKudosReceived, ActorID: "tester",
		}); err != nil {
			t.Fatalf("kudos %d: %v", i, err)
		}
	}
	_, err := env.Ledger.RecordActivity(env.Ctx, ledger.RecordActivityOptions{
		PersonaID: env.Persona.ID, Kind: domain.ActivityKudosReceived, ActorID: "tester",
	})
	if !errors.Is(err, ledger.ErrQuotaExceeded) {
		t.Fatalf("want ErrQuotaExceeded, got %v", err)
	}
	// The rejected write must leave no trace.
	p, _ := env.Ledger.Repo.GetPersona(env.Ctx, env.Persona.ID)
	if p.KudosQuotaUsed != 5 {
		t.Fatalf("quota used %d, want 5", p.KudosQuotaUsed)
	}
	acts, _ := env.Ledger.Repo.ListActivities(env.Ctx, env.Persona.ID, 100)
	count := 0
	for _, a := range acts {
		if a.Kind == domain.ActivityKudosReceived {
			count++
		}
	}
	if count != 5 {
		t.Fatalf("recorded %d kudos activities, want 5", count)
	}
}

func TestQuotaResetsAfterWindow(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		if _, err := env.Ledger.RecordActivity(env.Ctx, ledger.RecordActivityOptions{
			PersonaID: env.Persona.ID, Kind: domain.ActivityKudosReceived, ActorID: "tester",
		}); err != nil {
			t.Fatalf("kudos %d: %v", i, err)
		}
	}
	// Just inside the window: still blocked.
	env.Ledger.Now = func() time.Time {
		return time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)
	}
	if _, err := env.Ledger.RecordActivity(env.Ctx, ledger.RecordActivityOptions{
		PersonaID: env.Persona.ID, Kind: domain.ActivityKudosReceived, ActorID: "tester",
	}); !errors.Is(err, ledger.ErrQuotaExceeded) {
		t.Fatalf("inside window: want ErrQuotaExceeded, got %v", err)
	}
	// Past the window: counter resets and the write goes through.
	env.Ledger.Now = func() time.Time {
		return time.Date(2024, 1, 2, 0, 0, 1, 0, time.UTC)
	}
	if _, err := env.Ledger.RecordActivity(env.Ctx, ledger.RecordActivityOptions{
		PersonaID: env.Persona.ID, Kind: domain.ActivityKudosReceived, ActorID: "tester",
	}); err != nil {
		t.Fatalf("after window: %v", err)
	}
	p, _ := env.Ledger.Repo.GetPersona(env.Ctx, env.Persona.ID)
	if p.KudosQuotaUsed != 1 {
		t.Fatalf("quota used %d after reset, want 1", p.KudosQuotaUsed)
	}
}

func TestUnlimitedQuotaBypassesCheck(t *testing.T) {
	env := newTestEnv(t)
	tpl, err := env.Ledger.Repo.GetTemplate(env.Ctx, env.Persona.TemplateID)
	if err != nil {
		t.Fatalf("get template: %v", err)
	}
	tpl.KudosQuotaDaily = -1
	if err := env.Ledger.Repo.UpsertTemplate(env.Ctx, tpl); err != nil {
		t.Fatalf("set unlimited quota: %v", err)
	}
	for i := 0; i < 20; i++ {
		if _, err := env.Ledger.RecordActivity(env.Ctx, ledger.RecordActivityOptions{
			PersonaID: env.Persona.ID, Kind: domain.ActivityKudosReceived, ActorID: "tester",
		}); err != nil {
			t.Fatalf("kudos %d with unlimited quota: %v", i, err)
		}
	}
}

func TestAdjustScoreAppendsActivity(t *testing.T) {
	env := newTestEnv(t)
	act, err := env.Ledger.AdjustScore(env.Ctx, env.Persona.ID, -2.5, 1.0, "calibration", "admin")
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if act.Kind != domain.ActivityScoreAdjustment {
		t.Fatalf("kind %s, want score_adjustment", act.Kind)
	}
	p, _ := env.Ledger.Repo.GetPersona(env.Ctx, env.Persona.ID)
	if p.ProfessionalismScore != -2.5 || p.QualityScore != 1.0 {
		t.Fatalf("scores %v/%v, want -2.5/1", p.ProfessionalismScore, p.QualityScore)
	}
}

func TestCreatePersonaDuplicateRejected(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Ledger.CreatePersona(env.Ctx, ledger.CreatePersonaOptions{
		ProjectID:  "proj-1",
		TemplateID: env.Persona.TemplateID,
		ActorID:    "tester",
	})
	if !errors.Is(err, repo.ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}
}

func TestImportDefaultPersonas(t *testing.T) {
	env := newTestEnv(t)
	created, err := env.Ledger.ImportDefaultPersonas(env.Ctx, "proj-2", "tester")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(created) != len(env.Ledger.Config.Templates) {
		t.Fatalf("created %d personas, want %d", len(created), len(env.Ledger.Config.Templates))
	}
	for _, p := range created {
		acts, err := env.Ledger.Repo.ListActivities(env.Ctx, p.ID, 10)
		if err != nil {
			t.Fatalf("list activities: %v", err)
		}
		if len(acts) != 1 || acts[0].Kind != domain.ActivityImported {
			t.Fatalf("persona %s: want a single imported activity, got %d", p.ID, len(acts))
		}
		if acts[0].TaskSize != domain.SizeSmall {
			t.Fatalf("imported activity size %s, want small", acts[0].TaskSize)
		}
		if acts[0].MetadataJSON == nil || !strings.Contains(*acts[0].MetadataJSON, "bulk_default_import") {
			t.Fatalf("imported activity metadata %v, want bulk_default_import marker", acts[0].MetadataJSON)
		}
	}
	// Importing again is a no-op for existing personas.
	again, err := env.Ledger.ImportDefaultPersonas(env.Ctx, "proj-2", "tester")
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("re-import created %d personas, want 0", len(again))
	}
}

func TestImportDefaultPersonasSurvivesTemplateFailures(t *testing.T) {
	env := newTestEnv(t)
	env.Ledger.Logger = log.New(io.Discard, "", 0)
	// With the events table gone, every persona create rolls back, which
	// must be tolerated per template rather than aborting the whole import.
	if _, err := env.Ledger.DB.ExecContext(env.Ctx, `DROP TABLE events`); err != nil {
		t.Fatalf("drop events: %v", err)
	}
	created, err := env.Ledger.ImportDefaultPersonas(env.Ctx, "proj-3", "tester")
	if err != nil {
		t.Fatalf("import surfaced a per-template error: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("created %d personas, want 0", len(created))
	}
	personas, err := env.Ledger.Repo.ListPersonas(env.Ctx, "proj-3", true)
	if err != nil {
		t.Fatalf("list personas: %v", err)
	}
	if len(personas) != 0 {
		t.Fatalf("failed creates left %d personas behind", len(personas))
	}
}

func TestActivitiesSurvivePersonaDeletion(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Ledger.RecordActivity(env.Ctx, ledger.RecordActivityOptions{
		PersonaID: env.Persona.ID, Kind: domain.ActivityTaskCompleted, ActorID: "tester",
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := env.Ledger.DeletePersona(env.Ctx, env.Persona.ID, "admin"); err != nil {
		t.Fatalf("delete persona: %v", err)
	}
	if _, err := env.Ledger.Repo.GetPersona(env.Ctx, env.Persona.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("persona should be gone, got %v", err)
	}
	acts, err := env.Ledger.Repo.ListActivities(env.Ctx, env.Persona.ID, 10)
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	if len(acts) == 0 {
		t.Fatal("activities must survive persona deletion")
	}
}

func TestConcurrentActivitiesSumExactly(t *testing.T) {
	env := newTestEnv(t)
	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.Ledger.RecordActivity(env.Ctx, ledger.RecordActivityOptions{
				PersonaID:   env.Persona.ID,
				Kind:        domain.ActivityPeerReview,
				Description: fmt.Sprintf("review %d", i),
				ActorID:     "tester",
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent record: %v", err)
		}
	}
	p, _ := env.Ledger.Repo.GetPersona(env.Ctx, env.Persona.ID)
	if p.ProfessionalismScore != float64(writers)*1.0 || p.QualityScore != float64(writers)*1.0 {
		t.Fatalf("scores %v/%v, want %d/%d", p.ProfessionalismScore, p.QualityScore, writers, writers)
	}
}
