package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/valpere/batchtran/internal/orchestrator"
	"github.com/valpere/batchtran/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetRun(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	run := store.Run{
		ID:         "run-1",
		InputFile:  "corpus.csv",
		OutputFile: "translated.csv",
		SourceLang: "en",
		TargetLang: "uk",
		Model:      "gpt-4o",
		Excerpt:    "Hello world",
	}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, found, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if !found {
		t.Fatal("expected run to be found")
	}
	if got.TargetLang != "uk" || got.Model != "gpt-4o" || got.Excerpt != "Hello world" {
		t.Errorf("unexpected run: %+v", got)
	}
	if got.Status != "running" {
		t.Errorf("expected default status running, got %q", got.Status)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	s := openStore(t)

	_, found, err := s.GetRun(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if found {
		t.Error("expected run not to be found")
	}
}

func TestUpdateRunStatus(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.SaveRun(ctx, store.Run{ID: "run-1", InputFile: "in.csv", TargetLang: "uk", Model: "gpt-4o"}); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := s.UpdateRunStatus(ctx, "run-1", "completed"); err != nil {
		t.Fatalf("UpdateRunStatus failed: %v", err)
	}

	got, _, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != "completed" {
		t.Errorf("expected status completed, got %q", got.Status)
	}
}

func TestRecordTransitionAndJobEvents(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.SaveRun(ctx, store.Run{ID: "run-1", InputFile: "in.csv", TargetLang: "uk", Model: "gpt-4o"}); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	transitions := []struct {
		batchID  string
		from, to orchestrator.State
	}{
		{"", orchestrator.StatePendingUpload, orchestrator.StateUploaded},
		{"batch-1", orchestrator.StateUploaded, orchestrator.StateSubmitted},
		{"batch-1", orchestrator.StateSubmitted, orchestrator.StateInProgress},
		{"batch-1", orchestrator.StateInProgress, orchestrator.StateCompleted},
	}
	for _, tr := range transitions {
		if err := s.RecordTransition(ctx, "run-1", tr.batchID, tr.from, tr.to, ""); err != nil {
			t.Fatalf("RecordTransition failed: %v", err)
		}
	}

	events, err := s.JobEvents(ctx, "run-1")
	if err != nil {
		t.Fatalf("JobEvents failed: %v", err)
	}
	if len(events) != len(transitions) {
		t.Fatalf("expected %d events, got %d", len(transitions), len(events))
	}
	for i, ev := range events {
		if ev.FromState != string(transitions[i].from) || ev.ToState != string(transitions[i].to) {
			t.Errorf("event %d: expected %s->%s, got %s->%s",
				i, transitions[i].from, transitions[i].to, ev.FromState, ev.ToState)
		}
	}
	if events[3].ToState != string(orchestrator.StateCompleted) {
		t.Errorf("expected final event completed, got %s", events[3].ToState)
	}
}

func TestFailedJobs(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.SaveRun(ctx, store.Run{ID: "run-1", InputFile: "in.csv", TargetLang: "uk", Model: "gpt-4o"}); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := s.RecordTransition(ctx, "run-1", "batch-1", orchestrator.StateInProgress, orchestrator.StateCompleted, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordTransition(ctx, "run-1", "batch-2", orchestrator.StateInProgress, orchestrator.StateFailed, "model not found"); err != nil {
		t.Fatal(err)
	}

	failed, err := s.FailedJobs(ctx, "run-1")
	if err != nil {
		t.Fatalf("FailedJobs failed: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("expected 1 failed job, got %d", len(failed))
	}
	if failed[0].BatchID != "batch-2" || failed[0].Detail != "model not found" {
		t.Errorf("unexpected failure record: %+v", failed[0])
	}
}

func TestSaveRun_NormalizesExcerpt(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	// "e" followed by a combining acute accent; the stored form should be
	// the single composed rune.
	decomposed := "cafe\u0301"
	if err := s.SaveRun(ctx, store.Run{ID: "run-1", InputFile: "in.csv", TargetLang: "fr", Model: "gpt-4o", Excerpt: decomposed}); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, _, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Excerpt != "caf\u00e9" {
		t.Errorf("expected NFC-composed excerpt, got %q", got.Excerpt)
	}
}
