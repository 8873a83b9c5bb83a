package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/llmtools/prompt"
	"github.com/richinex/llmtools/storage"
)

func TestShowPrompt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.prompt")
	p := prompt.New("be terse", "fix this", prompt.Meta{"split": "none"})
	require.NoError(t, p.SetOutput("fixed"))
	p.Deltas = json.RawMessage(`[{"op":"replace"}]`)
	require.NoError(t, p.Write(path))

	opts, out := testOptions("")
	require.NoError(t, ShowPrompt(path, opts))

	text := out.String()
	assert.Contains(t, text, "== System ==\nbe terse\n== User ==\nfix this\n")
	assert.Contains(t, text, "== Meta ==\nsplit: none\n")
	assert.Contains(t, text, "== Output ==\nfixed\n")
	assert.Contains(t, text, `[{"op":"replace"}]`)
}

func TestShowPromptRejectsOtherFiles(t *testing.T) {
	opts, _ := testOptions("")
	assert.Error(t, ShowPrompt(filepath.Join(t.TempDir(), "p.txt"), opts))
}

func TestHistoryNeedsDatabase(t *testing.T) {
	t.Setenv("LLMTOOLS_HISTORY", "")
	opts, _ := testOptions("")
	assert.Error(t, History(context.Background(), "", 10, opts))
}

func TestHistoryListsRunsAndInvocations(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	history, err := storage.OpenSqlite(db)
	require.NoError(t, err)
	runID, err := history.StartRun(ctx, "apply", "localllama", "notes.md")
	require.NoError(t, err)
	out := "<|loop_detected|>"
	require.NoError(t, history.AddInvocation(ctx, storage.Invocation{
		RunID: runID, Index: 0, System: "sys", User: "usr", Output: &out, Truncated: true,
	}))
	require.NoError(t, history.FinishRun(ctx, runID, storage.StatusCompleted))
	require.NoError(t, history.Close())

	opts, buf := testOptions("")
	opts.DBPath = db
	require.NoError(t, History(ctx, "", 10, opts))
	assert.Contains(t, buf.String(), runID)
	assert.Contains(t, buf.String(), "completed")
	assert.Contains(t, buf.String(), "notes.md")

	buf.Reset()
	require.NoError(t, History(ctx, runID, 0, opts))
	assert.Contains(t, buf.String(), "== Prompt 1 (loop detected, 0s) ==")
	assert.Contains(t, buf.String(), "== User ==\nusr")

	buf.Reset()
	err = History(ctx, "missing", 0, opts)
	assert.ErrorIs(t, err, storage.ErrRunNotFound)
}

func TestDeleteRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	history, err := storage.OpenSqlite(db)
	require.NoError(t, err)
	keep, err := history.StartRun(ctx, "apply", "upper", "a.md")
	require.NoError(t, err)
	drop, err := history.StartRun(ctx, "apply", "upper", "b.md")
	require.NoError(t, err)
	require.NoError(t, history.Close())

	opts, buf := testOptions("")
	opts.DBPath = db
	require.NoError(t, DeleteRun(ctx, drop, opts))
	assert.Equal(t, "Deleted run "+drop+"\n", buf.String())

	buf.Reset()
	require.NoError(t, History(ctx, "", 0, opts))
	assert.Contains(t, buf.String(), keep)
	assert.NotContains(t, buf.String(), drop)

	err = DeleteRun(ctx, drop, opts)
	assert.ErrorIs(t, err, storage.ErrRunNotFound)
}

func TestDeleteRunNeedsDatabase(t *testing.T) {
	t.Setenv("LLMTOOLS_HISTORY", "")
	opts, _ := testOptions("")
	assert.Error(t, DeleteRun(context.Background(), "run", opts))
}

func TestHistoryEmpty(t *testing.T) {
	opts, buf := testOptions("")
	opts.DBPath = filepath.Join(t.TempDir(), "history.db")
	require.NoError(t, History(context.Background(), "", 0, opts))
	assert.Equal(t, "No runs recorded.\n", buf.String())
}
