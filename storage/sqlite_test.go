package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/richinex/llmtools/llm"
	"github.com/richinex/llmtools/prompt"
)

func newTestStorage(t *testing.T) *SqliteStorage {
	t.Helper()
	storage, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { storage.Close() })
	return storage
}

func TestSqliteStorage_StartAndFinishRun(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	runID, err := storage.StartRun(ctx, "apply", "localllama", "notes.md")
	if err != nil {
		t.Fatalf("Failed to start run: %v", err)
	}
	if runID == "" {
		t.Fatal("Expected run ID")
	}

	runs, err := storage.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}
	if runs[0].Status != StatusRunning {
		t.Errorf("Expected status %q, got %q", StatusRunning, runs[0].Status)
	}
	if !runs[0].FinishedAt.IsZero() {
		t.Error("Running run should have no finish time")
	}

	if err := storage.FinishRun(ctx, runID, StatusCompleted); err != nil {
		t.Fatalf("Failed to finish run: %v", err)
	}

	runs, err = storage.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to list runs: %v", err)
	}
	if runs[0].Status != StatusCompleted {
		t.Errorf("Expected status %q, got %q", StatusCompleted, runs[0].Status)
	}
	if runs[0].FinishedAt.IsZero() {
		t.Error("Expected finish time to be set")
	}
	if runs[0].Command != "apply" || runs[0].Backend != "localllama" || runs[0].Source != "notes.md" {
		t.Errorf("Unexpected run fields: %+v", runs[0])
	}
}

func TestSqliteStorage_FinishUnknownRun(t *testing.T) {
	storage := newTestStorage(t)

	err := storage.FinishRun(context.Background(), "nope", StatusFailed)
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("Expected ErrRunNotFound, got %v", err)
	}
}

func TestSqliteStorage_Invocations(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	runID, err := storage.StartRun(ctx, "apply", "openai", "-")
	if err != nil {
		t.Fatalf("Failed to start run: %v", err)
	}

	out := "summary"
	records := []Invocation{
		{RunID: runID, Index: 1, System: "sys", User: "second", Output: &out, Truncated: true, Duration: 1500 * time.Millisecond},
		{RunID: runID, Index: 0, System: "sys", User: "first"},
	}
	for _, rec := range records {
		if err := storage.AddInvocation(ctx, rec); err != nil {
			t.Fatalf("Failed to add invocation: %v", err)
		}
	}

	got, err := storage.Invocations(ctx, runID)
	if err != nil {
		t.Fatalf("Failed to load invocations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 invocations, got %d", len(got))
	}
	if got[0].User != "first" || got[1].User != "second" {
		t.Errorf("Expected execution order, got %q then %q", got[0].User, got[1].User)
	}
	if got[0].Output != nil {
		t.Errorf("Expected no output, got %q", *got[0].Output)
	}
	if got[1].Output == nil || *got[1].Output != "summary" {
		t.Errorf("Expected output 'summary', got %v", got[1].Output)
	}
	if !got[1].Truncated {
		t.Error("Expected truncated flag")
	}
	if got[1].Duration != 1500*time.Millisecond {
		t.Errorf("Expected 1.5s, got %v", got[1].Duration)
	}

	runs, err := storage.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("Failed to list runs: %v", err)
	}
	if runs[0].Invocations != 2 || runs[0].Truncated != 1 {
		t.Errorf("Expected 2 invocations and 1 truncated, got %d and %d", runs[0].Invocations, runs[0].Truncated)
	}
}

func TestSqliteStorage_DuplicateIndexRejected(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	runID, _ := storage.StartRun(ctx, "apply", "openai", "-")
	if err := storage.AddInvocation(ctx, Invocation{RunID: runID, Index: 0}); err != nil {
		t.Fatalf("Failed to add invocation: %v", err)
	}
	if err := storage.AddInvocation(ctx, Invocation{RunID: runID, Index: 0}); err == nil {
		t.Fatal("Expected error for duplicate prompt index")
	}
}

func TestSqliteStorage_ListRunsLimit(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	var last string
	for i := 0; i < 3; i++ {
		id, err := storage.StartRun(ctx, "apply", "openai", "-")
		if err != nil {
			t.Fatalf("Failed to start run: %v", err)
		}
		last = id
	}

	runs, err := storage.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("Failed to list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != last {
		t.Errorf("Expected newest run first, got %s", runs[0].ID)
	}
}

func TestSqliteStorage_DeleteRun(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	runID, _ := storage.StartRun(ctx, "apply", "openai", "-")
	if err := storage.AddInvocation(ctx, Invocation{RunID: runID, Index: 0}); err != nil {
		t.Fatalf("Failed to add invocation: %v", err)
	}

	if err := storage.DeleteRun(ctx, runID); err != nil {
		t.Fatalf("Failed to delete run: %v", err)
	}

	runs, _ := storage.ListRuns(ctx, 0)
	if len(runs) != 0 {
		t.Errorf("Expected no runs, got %d", len(runs))
	}
	invs, _ := storage.Invocations(ctx, runID)
	if len(invs) != 0 {
		t.Errorf("Expected no invocations, got %d", len(invs))
	}

	if err := storage.DeleteRun(ctx, runID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound on second delete, got %v", err)
	}
}

func TestSqliteStorage_Recorder(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	runID, _ := storage.StartRun(ctx, "apply", "localllama", "-")
	p := prompt.New("sys", "user", nil)
	if err := p.SetOutput("looped"); err != nil {
		t.Fatalf("Failed to set output: %v", err)
	}

	var rec prompt.Recorder = storage.Recorder(runID)
	err := rec.RecordInvocation(ctx, prompt.Invocation{
		Index:    0,
		Backend:  "localllama",
		Prompt:   p,
		Result:   &llm.Result{Text: "looped", Truncated: true},
		Duration: time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to record invocation: %v", err)
	}

	invs, err := storage.Invocations(ctx, runID)
	if err != nil {
		t.Fatalf("Failed to load invocations: %v", err)
	}
	if len(invs) != 1 || !invs[0].Truncated || *invs[0].Output != "looped" {
		t.Errorf("Unexpected recorded invocation: %+v", invs)
	}
}

func TestOpenSqlite_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	storage, err := OpenSqlite(path)
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	defer storage.Close()

	if _, err := storage.StartRun(context.Background(), "apply", "openai", "-"); err != nil {
		t.Fatalf("Failed to start run: %v", err)
	}
}

func TestSqliteStorage_RecorderNumbersSequentially(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	runID, _ := storage.StartRun(ctx, "postprocess", "localllama", "-")
	rec := storage.Recorder(runID)
	// Two prompt sets in one run both start at index 0.
	for _, user := range []string{"postprocess", "translate"} {
		inv := prompt.Invocation{Index: 0, Prompt: prompt.New("sys", user, nil)}
		if err := rec.RecordInvocation(ctx, inv); err != nil {
			t.Fatalf("Failed to record invocation: %v", err)
		}
	}

	invs, err := storage.Invocations(ctx, runID)
	if err != nil {
		t.Fatalf("Failed to load invocations: %v", err)
	}
	if len(invs) != 2 {
		t.Fatalf("Expected 2 invocations, got %d", len(invs))
	}
	if invs[0].Index != 0 || invs[1].Index != 1 || invs[1].User != "translate" {
		t.Errorf("Unexpected numbering: %+v", invs)
	}
}
