package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/richinex/llmtools/config"
	"github.com/richinex/llmtools/internal/errchain"
	"github.com/richinex/llmtools/prompt"
	"github.com/richinex/llmtools/storage"
)

// ShowPrompt prints a saved prompt and its sidecars.
func ShowPrompt(path string, opts Options) error {
	opts = opts.withDefaults()

	p, err := prompt.ReadPrompt(path)
	if err != nil {
		return errchain.Wrapf(err, "could not read prompt %s", path)
	}

	w := opts.Stdout
	fmt.Fprint(w, prompt.Serialize(p.System, p.User))
	fmt.Fprintln(w)
	if len(p.Meta) > 0 {
		fmt.Fprintln(w, "== Meta ==")
		for _, key := range slices.Sorted(maps.Keys(p.Meta)) {
			fmt.Fprintf(w, "%s: %v\n", key, p.Meta[key])
		}
	}
	if p.HasOutput() {
		fmt.Fprintln(w, "== Output ==")
		fmt.Fprintln(w, p.OutputText())
	}
	if p.Deltas != nil {
		fmt.Fprintln(w, "== Deltas ==")
		fmt.Fprintln(w, string(p.Deltas))
	}
	return nil
}

// History lists recorded runs, or the invocations of one run when runID
// is set.
func History(ctx context.Context, runID string, limit int, opts Options) error {
	opts = opts.withDefaults()

	history, err := openHistory(opts)
	if err != nil {
		return err
	}
	defer history.Close()

	if runID != "" {
		return printInvocations(ctx, history, runID, opts.Stdout)
	}
	return printRuns(ctx, history, limit, opts.Stdout)
}

// DeleteRun removes a recorded run and its invocations.
func DeleteRun(ctx context.Context, runID string, opts Options) error {
	opts = opts.withDefaults()

	history, err := openHistory(opts)
	if err != nil {
		return err
	}
	defer history.Close()

	if err := history.DeleteRun(ctx, runID); err != nil {
		return errchain.Wrapf(err, "could not delete run %s", runID)
	}
	opts.Log.Info("run deleted", "run_id", runID)
	fmt.Fprintf(opts.Stdout, "Deleted run %s\n", runID)
	return nil
}

// openHistory opens the database named by --db, falling back to
// LLMTOOLS_HISTORY.
func openHistory(opts Options) (*storage.SqliteStorage, error) {
	path := opts.DBPath
	if path == "" {
		settings, err := config.New(opts.Backend)
		if err != nil {
			return nil, errchain.Wrap(err, "invalid configuration")
		}
		path = settings.HistoryPath
	}
	if path == "" {
		return nil, errors.New("no run history configured: pass --db or set LLMTOOLS_HISTORY")
	}

	history, err := storage.OpenSqlite(path)
	if err != nil {
		return nil, errchain.Wrap(err, "could not open run history")
	}
	return history, nil
}

func printRuns(ctx context.Context, history *storage.SqliteStorage, limit int, out io.Writer) error {
	runs, err := history.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tCOMMAND\tBACKEND\tSTATUS\tPROMPTS\tLOOPS\tSOURCE")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Format(time.DateTime), r.Command, r.Backend, r.Status, r.Invocations, r.Truncated, r.Source)
	}
	return tw.Flush()
}

func printInvocations(ctx context.Context, history *storage.SqliteStorage, runID string, out io.Writer) error {
	invs, err := history.Invocations(ctx, runID)
	if err != nil {
		return err
	}
	if len(invs) == 0 {
		return fmt.Errorf("%w: %s", storage.ErrRunNotFound, runID)
	}

	for _, inv := range invs {
		status := "ok"
		switch {
		case inv.Output == nil:
			status = "no output"
		case inv.Truncated:
			status = "loop detected"
		}
		fmt.Fprintf(out, "== Prompt %d (%s, %s) ==\n", inv.Index+1, status, inv.Duration.Round(time.Millisecond))
		fmt.Fprintln(out, prompt.Serialize(inv.System, inv.User))
		if inv.Output != nil {
			fmt.Fprintln(out, "== Output ==")
			fmt.Fprintln(out, *inv.Output)
		}
	}
	return nil
}
