// Command execution for CLI commands.
//
// Information Hiding:
// - Settings, backend and history wiring hidden
// - Operation directory resolution hidden
// - Output and sidecar writing hidden

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/richinex/llmtools/config"
	"github.com/richinex/llmtools/internal/errchain"
	"github.com/richinex/llmtools/internal/logger"
	"github.com/richinex/llmtools/llm"
	"github.com/richinex/llmtools/prompt"
	"github.com/richinex/llmtools/segment"
	"github.com/richinex/llmtools/storage"
)

// Options holds settings shared by every command.
type Options struct {
	Backend string
	// DBPath overrides LLMTOOLS_HISTORY.
	DBPath string
	Log    *logger.Logger

	// Stdin, Stdout and Diagnostics default to the process streams.
	Stdin       io.Reader
	Stdout      io.Writer
	Diagnostics io.Writer
}

// DefaultOptions returns default CLI options.
func DefaultOptions() Options {
	return Options{
		Log:         logger.NewNop(),
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Diagnostics: os.Stderr,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Log == nil {
		o.Log = d.Log
	}
	if o.Stdin == nil {
		o.Stdin = d.Stdin
	}
	if o.Stdout == nil {
		o.Stdout = d.Stdout
	}
	if o.Diagnostics == nil {
		o.Diagnostics = d.Diagnostics
	}
	return o
}

// ApplyOptions configures Apply.
type ApplyOptions struct {
	// Input is the document to read; "" or "-" reads stdin.
	Input string
	// Operations is a set name under the template directory, or a
	// directory path when it contains a '/'.
	Operations string
	TemplateDir string
	// Lang selects "<name>-<lang>.yaml" templates; empty uses the
	// configured language. AllLanguages matches every ".yaml" file.
	Lang         string
	AllLanguages bool
	Split        string
	SplitLevel   int
	Separator    string
	// Outfile receives the result; empty writes to stdout.
	Outfile string
	// SavePrompts writes every executed prompt as sidecar files here.
	SavePrompts string
}

// PostprocessOptions configures Postprocess.
type PostprocessOptions struct {
	Input       string
	Outfile     string
	TemplateDir string
	// Lang is the language the document is written in.
	Lang string
	// Level is the headline level to split at; 0 sends the whole text.
	Level       int
	Postprocess bool
	// Translate is the target language; empty skips translation.
	Translate string
}

// newBackend is replaced in tests.
var newBackend = llm.New

// session is the per-command runtime: settings, backend and history.
type session struct {
	opts     Options
	settings config.Settings
	backend  llm.Backend
	history  *storage.SqliteStorage
	runID    string
}

func openSession(ctx context.Context, command, source string, opts Options) (*session, error) {
	settings, err := config.New(opts.Backend)
	if err != nil {
		return nil, errchain.Wrap(err, "invalid configuration")
	}
	backend, err := newBackend(settings, opts.Log, opts.Diagnostics)
	if err != nil {
		return nil, errchain.Wrap(err, "could not create LLM backend")
	}

	s := &session{opts: opts, settings: settings, backend: backend}

	path := opts.DBPath
	if path == "" {
		path = settings.HistoryPath
	}
	if path != "" {
		history, err := storage.OpenSqlite(path)
		if err != nil {
			return nil, errchain.Wrap(err, "could not open run history")
		}
		runID, err := history.StartRun(ctx, command, backend.Name(), source)
		if err != nil {
			history.Close()
			return nil, errchain.Wrap(err, "could not start run")
		}
		s.history = history
		s.runID = runID
		opts.Log.Debug("recording run", "run_id", runID, "db", path)
	}
	return s, nil
}

func (s *session) executor() *prompt.Executor {
	e := prompt.NewExecutor(s.backend, s.opts.Log)
	if s.history != nil {
		e = e.WithRecorder(s.history.Recorder(s.runID))
	}
	return e
}

// close finishes the run with a status derived from err.
func (s *session) close(err error) {
	if s.history == nil {
		return
	}
	status := storage.StatusCompleted
	if err != nil {
		status = storage.StatusFailed
	}
	// The run context may already be cancelled.
	if ferr := s.history.FinishRun(context.Background(), s.runID, status); ferr != nil {
		s.opts.Log.Warn("failed to finish run", "run_id", s.runID, "error", ferr)
	}
	if cerr := s.history.Close(); cerr != nil {
		s.opts.Log.Warn("failed to close run history", "error", cerr)
	}
}

// Apply runs a set of operations over a document and writes the
// concatenated outputs.
func Apply(ctx context.Context, ao ApplyOptions, opts Options) (err error) {
	opts = opts.withDefaults()

	text, err := readInput(ao.Input, opts.Stdin)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, "apply", sourceName(ao.Input), opts)
	if err != nil {
		return err
	}
	defer func() { s.close(err) }()

	dir := operationsDir(ao.Operations, firstNonEmpty(ao.TemplateDir, s.settings.Templates.Dir))
	lang := firstNonEmpty(ao.Lang, s.settings.Templates.Lang)
	if ao.AllLanguages {
		lang = ""
	}

	builder := prompt.NewSetBuilder(prompt.NewTemplateStore(), opts.Log)
	set, err := builder.Build(text, dir, lang, prompt.BuildOptions{
		Split:           ao.Split,
		SplitLevel:      ao.SplitLevel,
		RequireNonEmpty: true,
	})
	if err != nil {
		return errchain.Wrapf(err, "could not load operations %q", ao.Operations)
	}
	opts.Log.Info("applying operations", "dir", dir, "lang", lang, "prompts", set.Len())

	result, execErr := s.executor().Execute(ctx, set, ao.Separator)

	// Sidecars are written even for a failed run so the executed part can
	// be inspected.
	if ao.SavePrompts != "" {
		if err := savePrompts(ao.SavePrompts, set); err != nil {
			return err
		}
	}
	if execErr != nil {
		return execErr
	}

	return writeOutput(ao.Outfile, result, opts.Stdout, opts.Log)
}

// Postprocess runs the postprocess and translate templates over a
// markdown document, one headline section at a time, keeping each
// section's trailing newlines.
func Postprocess(ctx context.Context, po PostprocessOptions, opts Options) (err error) {
	opts = opts.withDefaults()
	if !po.Postprocess && po.Translate == "" {
		return fmt.Errorf("nothing to do: enable postprocessing or choose a translation language")
	}

	text, err := readInput(po.Input, opts.Stdin)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, "postprocess", sourceName(po.Input), opts)
	if err != nil {
		return err
	}
	defer func() { s.close(err) }()

	dir := firstNonEmpty(po.TemplateDir, s.settings.Templates.Dir)
	lang := firstNonEmpty(po.Lang, s.settings.Templates.Lang)
	store := prompt.NewTemplateStore()
	exec := s.executor()

	if po.Postprocess {
		path := filepath.Join(dir, "postprocess-"+lang+".yaml")
		if text, err = transformSections(ctx, exec, store, path, text, po.Level, opts.Log); err != nil {
			return errchain.Wrap(err, "postprocessing failed")
		}
	}
	if po.Translate != "" {
		path := filepath.Join(dir, "translate-"+po.Translate+".yaml")
		if text, err = transformSections(ctx, exec, store, path, text, po.Level, opts.Log); err != nil {
			return errchain.Wrapf(err, "translation to %q failed", po.Translate)
		}
	}

	return writeOutput(po.Outfile, text, opts.Stdout, opts.Log)
}

// transformSections renders the template at path once per headline
// section and reassembles the outputs. A section the backend produced no
// output for is kept unchanged, and a blank preamble before the first
// heading is carried over as is.
func transformSections(ctx context.Context, exec *prompt.Executor, store *prompt.TemplateStore, path, text string, level int, log *logger.Logger) (string, error) {
	segs, err := segment.Split(text, segment.ModeHeadline, level)
	if err != nil {
		return "", err
	}

	kept := 0
	for _, seg := range segs {
		kept += len(seg.Content)
	}
	preamble := text[:len(text)-kept]

	outputs := make([]string, len(segs))
	for i, seg := range segs {
		p, err := store.NewPrompt(path, seg.Content)
		if err != nil {
			return "", err
		}
		log.Info("processing section", "section", i+1, "of", len(segs), "template", filepath.Base(path))
		if _, err := exec.Run(ctx, p); err != nil {
			return "", errchain.Wrapf(err, "section %d of %d failed", i+1, len(segs))
		}
		if p.HasOutput() {
			outputs[i] = p.OutputText()
		} else {
			log.Warn("keeping section unchanged", "section", i+1)
			outputs[i] = seg.Content
		}
	}
	out, err := segment.Reassemble(segment.ModeHeadline, segs, outputs)
	if err != nil {
		return "", err
	}
	return preamble + out, nil
}

func savePrompts(dir string, set *prompt.PromptSet) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create prompt directory: %w", err)
	}
	for i, p := range set.Prompts() {
		path := filepath.Join(dir, fmt.Sprintf("%03d%s", i+1, prompt.PromptExt))
		if err := p.Write(path); err != nil {
			return errchain.Wrapf(err, "could not save prompt %d", i+1)
		}
	}
	return nil
}

// operationsDir resolves a set name to a directory under templateDir.
// A value containing a '/' is used as a path.
func operationsDir(operations, templateDir string) string {
	if strings.Contains(operations, "/") {
		return operations
	}
	return filepath.Join(templateDir, operations)
}

func readInput(path string, stdin io.Reader) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errchain.Wrapf(err, "could not read %s", path)
	}
	return string(data), nil
}

func writeOutput(path, text string, stdout io.Writer, log *logger.Logger) error {
	if path == "" {
		_, err := io.WriteString(stdout, text)
		return err
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return errchain.Wrapf(err, "could not write %s", path)
	}
	log.Info("output written", "path", path)
	return nil
}

func sourceName(input string) string {
	if input == "" {
		return "-"
	}
	return input
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
